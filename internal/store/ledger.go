package store

import (
	"time"

	"go.uber.org/zap"

	"github.com/lox/barowatch/internal/models"
)

// HasAlert reports whether an alert of kind was already recorded for (userID, date).
func (s *Store) HasAlert(userID int64, date string, kind models.AlertKind) (bool, error) {
	var n int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM alerts_sent WHERE user_id = ? AND date = ? AND kind = ?
	`, userID, date, string(kind)).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ClaimAlert inserts the ledger row if absent. inserted is false when another
// pass already holds (user, date, kind); the UNIQUE constraint makes this atomic.
func (s *Store) ClaimAlert(e models.AlertLedgerEntry) (inserted bool, err error) {
	sentAt := e.SentAt
	if sentAt.IsZero() {
		sentAt = time.Now().UTC()
	}
	result, err := s.db.Exec(`
		INSERT INTO alerts_sent (user_id, date, kind, metric_hpa, sent_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id, date, kind) DO NOTHING
	`, e.UserID, e.Date, string(e.Kind), e.MetricHPa, sentAt)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ReleaseAlert removes a claimed ledger row so a later pass can retry the send.
func (s *Store) ReleaseAlert(userID int64, date string, kind models.AlertKind) error {
	result, err := s.db.Exec(`
		DELETE FROM alerts_sent WHERE user_id = ? AND date = ? AND kind = ?
	`, userID, date, string(kind))
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		s.logger.Warn("ledger: release found no row",
			zap.Int64("user_id", userID), zap.String("date", date), zap.String("kind", string(kind)))
	}
	return nil
}

// ListAlerts returns a user's ledger entries, newest first.
func (s *Store) ListAlerts(userID int64, limit int) ([]models.AlertLedgerEntry, error) {
	rows, err := s.db.Query(`
		SELECT user_id, date, kind, COALESCE(metric_hpa, 0), sent_at
		FROM alerts_sent
		WHERE user_id = ?
		ORDER BY date DESC, sent_at DESC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.AlertLedgerEntry
	for rows.Next() {
		var e models.AlertLedgerEntry
		var kind string
		if err := rows.Scan(&e.UserID, &e.Date, &kind, &e.MetricHPa, &e.SentAt); err != nil {
			return nil, err
		}
		e.Kind = models.AlertKind(kind)
		e.SentAt = s.local(e.SentAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
