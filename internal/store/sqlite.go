package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/lox/barowatch/internal/models"
)

// ErrEmailTaken is returned when registering an email that already exists.
var ErrEmailTaken = errors.New("email already registered")

// Store is the durable store. The *sql.DB pool hands out a connection per
// operation; nothing is held between calls.
type Store struct {
	db     *sql.DB
	loc    *time.Location
	logger *zap.Logger
}

func New(db *sql.DB, loc *time.Location, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, loc: loc, logger: logger}
}

// local converts a stored timestamp into the store's display timezone.
func (s *Store) local(t time.Time) time.Time {
	if s.loc == nil {
		return t
	}
	return t.In(s.loc)
}

// Open opens the SQLite database at path with WAL journaling and a busy timeout.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000", "PRAGMA foreign_keys=ON"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	return db, nil
}

// CreateUser registers a user and returns its ID. Emails are stored lower-cased.
func (s *Store) CreateUser(u models.User) (int64, error) {
	email := strings.ToLower(strings.TrimSpace(u.Email))
	existing, err := s.GetUserByEmail(email)
	if err != nil {
		return 0, err
	}
	if existing != nil {
		return 0, ErrEmailTaken
	}

	createdAt := u.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	result, err := s.db.Exec(`
		INSERT INTO users (email, notify_enabled, threshold_hpa, latitude, longitude, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, email, u.NotifyEnabled, u.ThresholdHPa, u.Latitude, u.Longitude, createdAt)
	if err != nil {
		return 0, fmt.Errorf("insert user: %w", err)
	}
	return result.LastInsertId()
}

const userColumns = `id, email, notify_enabled, threshold_hpa, latitude, longitude, created_at`

func scanUser(row interface{ Scan(...any) error }) (models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Email, &u.NotifyEnabled, &u.ThresholdHPa, &u.Latitude, &u.Longitude, &u.CreatedAt)
	return u, err
}

func (s *Store) GetUser(id int64) (*models.User, error) {
	u, err := scanUser(s.db.QueryRow(`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) GetUserByEmail(email string) (*models.User, error) {
	u, err := scanUser(s.db.QueryRow(`SELECT `+userColumns+` FROM users WHERE email = ?`, strings.ToLower(strings.TrimSpace(email))))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) ListUsers() ([]models.User, error) {
	return s.queryUsers(`SELECT ` + userColumns + ` FROM users ORDER BY id`)
}

// ListNotifiableUsers returns users with notifications enabled, in ID order.
func (s *Store) ListNotifiableUsers() ([]models.User, error) {
	return s.queryUsers(`SELECT ` + userColumns + ` FROM users WHERE notify_enabled = TRUE ORDER BY id`)
}

func (s *Store) queryUsers(query string, args ...any) ([]models.User, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// UpdateUserSettings replaces the notification settings of a user.
func (s *Store) UpdateUserSettings(id int64, settings models.UserSettings) error {
	result, err := s.db.Exec(`
		UPDATE users SET notify_enabled = ?, threshold_hpa = ?, latitude = ?, longitude = ?
		WHERE id = ?
	`, settings.NotifyEnabled, settings.ThresholdHPa, settings.Latitude, settings.Longitude, id)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("update user %d: %w", id, sql.ErrNoRows)
	}
	return nil
}
