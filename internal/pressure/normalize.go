package pressure

// DefaultHorizon is the number of hourly samples kept from a forecast.
const DefaultHorizon = 48

// Readings above this are pascals; hPa values never get near it.
const pascalCutoff = 2000.0

// RawSeries is a provider response: parallel timestamp and reading arrays.
// Values are pointers because providers send null for missing hours.
type RawSeries struct {
	Times  []string
	Values []*float64
}

// ToHPa converts a raw reading to hectopascals.
func ToHPa(v float64) float64 {
	if v > pascalCutoff {
		return v / 100.0
	}
	return v
}

// Normalize converts a raw series into at most horizon samples in hPa with
// canonical labels. The series stops at the first missing reading so that
// consecutive samples stay one hour apart.
func Normalize(raw RawSeries, horizon int) ([]Sample, error) {
	if horizon <= 0 {
		horizon = DefaultHorizon
	}
	n := min(len(raw.Times), len(raw.Values), horizon)

	samples := make([]Sample, 0, n)
	for i := 0; i < n; i++ {
		v := raw.Values[i]
		if v == nil {
			break
		}
		samples = append(samples, Sample{
			Label: canonicalLabel(raw.Times[i]),
			HPa:   ToHPa(*v),
		})
	}

	if len(samples) == 0 {
		return nil, ErrDataUnavailable
	}
	return samples, nil
}
