package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/lox/barowatch/internal/models"
	"github.com/lox/barowatch/internal/pressure"
)

type HealthStatus struct {
	Status        string        `json:"status"`
	SchemaVersion int           `json:"schema_version"`
	FetchErrors   []FetchHealth `json:"recent_fetch_errors,omitempty"`
}

type FetchHealth struct {
	StartedAt  time.Time `json:"started_at"`
	Location   string    `json:"location,omitempty"`
	HTTPStatus int64     `json:"http_status,omitempty"`
	Error      string    `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	version, err := s.store.MigrationVersion()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "error", "error": err.Error()})
		return
	}

	health := HealthStatus{Status: "ok", SchemaVersion: version}
	runs, err := s.store.GetRecentFetchErrors(5)
	if err != nil {
		s.logger.Warn("api: recent fetch errors", zap.Error(err))
	}
	for _, run := range runs {
		health.FetchErrors = append(health.FetchErrors, FetchHealth{
			StartedAt:  run.StartedAt,
			Location:   run.Location.String,
			HTTPStatus: run.HTTPStatus.Int64,
			Error:      run.ErrorMessage.String,
		})
	}
	writeJSON(w, http.StatusOK, health)
}

// handlePressure serves the dashboard payload for ?user=ID or ?lat=&lon=.
// With neither, the configured default location is used.
func (s *Server) handlePressure(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, lon := s.opts.DefaultLat, s.opts.DefaultLon

	switch {
	case q.Get("user") != "":
		id, err := strconv.ParseInt(q.Get("user"), 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid user id")
			return
		}
		u, err := s.store.GetUser(id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if u == nil {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		lat, lon = u.Latitude, u.Longitude
	case q.Get("lat") != "" || q.Get("lon") != "":
		var err error
		lat, lon, err = parseCoordinate(q.Get("lat"), q.Get("lon"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	nightMode := s.opts.NightMode
	if v := q.Get("night"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid night flag")
			return
		}
		nightMode = b
	}

	samples, err := s.provider.FetchSeries(r.Context(), lat, lon)
	if err == nil {
		var res *pressure.Result
		res, err = pressure.Analyze(samples, s.now().In(s.loc), pressure.Options{NightMode: nightMode})
		if err == nil {
			writeJSON(w, http.StatusOK, res)
			return
		}
	}

	var upstream *pressure.UpstreamError
	switch {
	case errors.Is(err, pressure.ErrDataUnavailable):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &upstream):
		s.logger.Warn("api: provider failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "pressure provider unavailable")
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func parseCoordinate(latStr, lonStr string) (lat, lon float64, err error) {
	lat, err = strconv.ParseFloat(latStr, 64)
	if err != nil || lat < -90 || lat > 90 {
		return 0, 0, errors.New("invalid lat")
	}
	lon, err = strconv.ParseFloat(lonStr, 64)
	if err != nil || lon < -180 || lon > 180 {
		return 0, 0, errors.New("invalid lon")
	}
	return lat, lon, nil
}

// userFromPath resolves {id}, writing the error response itself when it fails.
func (s *Server) userFromPath(w http.ResponseWriter, r *http.Request) (*models.User, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return nil, false
	}
	u, err := s.store.GetUser(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	if u == nil {
		writeError(w, http.StatusNotFound, "user not found")
		return nil, false
	}
	return u, true
}

func limitParam(r *http.Request, def, max int) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return def
	}
	return min(n, max)
}

type alertJSON struct {
	Date      string    `json:"date"`
	Kind      string    `json:"kind"`
	MetricHPa float64   `json:"metric_hpa"`
	SentAt    time.Time `json:"sent_at"`
}

func (s *Server) handleUserAlerts(w http.ResponseWriter, r *http.Request) {
	u, ok := s.userFromPath(w, r)
	if !ok {
		return
	}
	entries, err := s.store.ListAlerts(u.ID, limitParam(r, 30, 200))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]alertJSON, 0, len(entries))
	for _, e := range entries {
		out = append(out, alertJSON{Date: e.Date, Kind: string(e.Kind), MetricHPa: e.MetricHPa, SentAt: e.SentAt})
	}
	writeJSON(w, http.StatusOK, out)
}

type symptomJSON struct {
	ID       int64     `json:"id"`
	Symptom  string    `json:"symptom"`
	Severity int       `json:"severity"`
	Memo     *string   `json:"memo"`
	LoggedAt time.Time `json:"logged_at"`
}

func (s *Server) handleUserSymptoms(w http.ResponseWriter, r *http.Request) {
	u, ok := s.userFromPath(w, r)
	if !ok {
		return
	}
	logs, err := s.store.ListSymptomLogs(u.ID, limitParam(r, 50, 50))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]symptomJSON, 0, len(logs))
	for _, l := range logs {
		sj := symptomJSON{ID: l.ID, Symptom: l.Symptom, Severity: l.Severity, LoggedAt: l.LoggedAt}
		if l.Memo.Valid {
			memo := l.Memo.String
			sj.Memo = &memo
		}
		out = append(out, sj)
	}
	writeJSON(w, http.StatusOK, out)
}

type dailyJSON struct {
	Date        string   `json:"date"`
	PressureHPa float64  `json:"pressure_hpa"`
	MinHPa      *float64 `json:"min_hpa"`
	MaxHPa      *float64 `json:"max_hpa"`
	RangeHPa    *float64 `json:"range_hpa"`
}

func (s *Server) handleUserDaily(w http.ResponseWriter, r *http.Request) {
	u, ok := s.userFromPath(w, r)
	if !ok {
		return
	}
	today := s.now().In(s.loc)
	from := r.URL.Query().Get("from")
	if from == "" {
		from = today.AddDate(0, 0, -30).Format(models.DateLayout)
	}
	to := r.URL.Query().Get("to")
	if to == "" {
		to = today.Format(models.DateLayout)
	}
	for _, d := range []string{from, to} {
		if _, err := time.Parse(models.DateLayout, d); err != nil {
			writeError(w, http.StatusBadRequest, "dates must be YYYY-MM-DD")
			return
		}
	}

	records, err := s.store.ListDailyRecords(u.ID, from, to)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]dailyJSON, 0, len(records))
	for _, rec := range records {
		dj := dailyJSON{Date: rec.Date, PressureHPa: rec.PressureHPa}
		if rec.MinHPa.Valid {
			dj.MinHPa = &rec.MinHPa.Float64
		}
		if rec.MaxHPa.Valid {
			dj.MaxHPa = &rec.MaxHPa.Float64
		}
		if rec.RangeHPa.Valid {
			dj.RangeHPa = &rec.RangeHPa.Float64
		}
		out = append(out, dj)
	}
	writeJSON(w, http.StatusOK, out)
}
