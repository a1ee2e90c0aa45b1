package store

import (
	"database/sql"
	"time"

	"github.com/lox/barowatch/internal/models"
)

// UpsertDailyRecord stores the day's representative pressure. Re-running the
// same (user, date) overwrites the previous values.
func (s *Store) UpsertDailyRecord(r models.DailyPressureRecord) error {
	updatedAt := r.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO pressure_daily (user_id, date, pressure_hpa, min_hpa, max_hpa, range_hpa, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, date) DO UPDATE SET
			pressure_hpa = excluded.pressure_hpa,
			min_hpa = excluded.min_hpa,
			max_hpa = excluded.max_hpa,
			range_hpa = excluded.range_hpa,
			updated_at = excluded.updated_at
	`, r.UserID, r.Date, r.PressureHPa, r.MinHPa, r.MaxHPa, r.RangeHPa, updatedAt)
	return err
}

// GetDailyRecord returns nil when no record exists for (userID, date).
func (s *Store) GetDailyRecord(userID int64, date string) (*models.DailyPressureRecord, error) {
	var r models.DailyPressureRecord
	err := s.db.QueryRow(`
		SELECT user_id, date, pressure_hpa, min_hpa, max_hpa, range_hpa, updated_at
		FROM pressure_daily WHERE user_id = ? AND date = ?
	`, userID, date).Scan(&r.UserID, &r.Date, &r.PressureHPa, &r.MinHPa, &r.MaxHPa, &r.RangeHPa, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ListDailyRecords returns a user's records between from and to inclusive, oldest first.
func (s *Store) ListDailyRecords(userID int64, from, to string) ([]models.DailyPressureRecord, error) {
	rows, err := s.db.Query(`
		SELECT user_id, date, pressure_hpa, min_hpa, max_hpa, range_hpa, updated_at
		FROM pressure_daily
		WHERE user_id = ? AND date >= ? AND date <= ?
		ORDER BY date
	`, userID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.DailyPressureRecord
	for rows.Next() {
		var r models.DailyPressureRecord
		if err := rows.Scan(&r.UserID, &r.Date, &r.PressureHPa, &r.MinHPa, &r.MaxHPa, &r.RangeHPa, &r.UpdatedAt); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
