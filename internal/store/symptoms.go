package store

import (
	"time"

	"github.com/lox/barowatch/internal/models"
)

// SymptomListLimit caps ListSymptomLogs when no positive limit is given.
const SymptomListLimit = 50

func (s *Store) InsertSymptomLog(l models.SymptomLog) (int64, error) {
	loggedAt := l.LoggedAt
	if loggedAt.IsZero() {
		loggedAt = time.Now().UTC()
	}
	result, err := s.db.Exec(`
		INSERT INTO symptom_logs (user_id, symptom, severity, memo, logged_at)
		VALUES (?, ?, ?, ?, ?)
	`, l.UserID, l.Symptom, l.Severity, l.Memo, loggedAt)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// ListSymptomLogs returns a user's most recent symptom logs, newest first.
func (s *Store) ListSymptomLogs(userID int64, limit int) ([]models.SymptomLog, error) {
	if limit <= 0 || limit > SymptomListLimit {
		limit = SymptomListLimit
	}
	rows, err := s.db.Query(`
		SELECT id, user_id, symptom, severity, memo, logged_at
		FROM symptom_logs
		WHERE user_id = ?
		ORDER BY logged_at DESC, id DESC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []models.SymptomLog
	for rows.Next() {
		var l models.SymptomLog
		if err := rows.Scan(&l.ID, &l.UserID, &l.Symptom, &l.Severity, &l.Memo, &l.LoggedAt); err != nil {
			return nil, err
		}
		l.LoggedAt = s.local(l.LoggedAt)
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
