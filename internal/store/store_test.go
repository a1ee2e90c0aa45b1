package store

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/lox/barowatch/internal/models"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	store := New(db, time.FixedZone("JST", 9*3600), zap.NewNop())
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store
}

func createUser(t *testing.T, s *Store, email string) int64 {
	t.Helper()
	id, err := s.CreateUser(models.User{
		Email:         email,
		NotifyEnabled: true,
		ThresholdHPa:  8.0,
		Latitude:      33.59,
		Longitude:     132.97,
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return id
}

func TestMigrate_Idempotent(t *testing.T) {
	store := setupTestStore(t)
	if err := store.Migrate(); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
	version, err := store.MigrationVersion()
	if err != nil {
		t.Fatalf("MigrationVersion: %v", err)
	}
	if version != len(migrations) {
		t.Errorf("version = %d, want %d", version, len(migrations))
	}
}

func TestCreateUser(t *testing.T) {
	store := setupTestStore(t)
	id := createUser(t, store, "  Alice@Example.com ")

	u, err := store.GetUser(id)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if u == nil {
		t.Fatal("GetUser returned nil")
	}
	if u.Email != "alice@example.com" {
		t.Errorf("Email = %q, want alice@example.com", u.Email)
	}
	if !u.NotifyEnabled {
		t.Error("NotifyEnabled = false, want true")
	}

	_, err = store.CreateUser(models.User{Email: "ALICE@example.com", Latitude: 1, Longitude: 1, ThresholdHPa: 5})
	if !errors.Is(err, ErrEmailTaken) {
		t.Errorf("duplicate email err = %v, want ErrEmailTaken", err)
	}
}

func TestGetUser_NotFound(t *testing.T) {
	store := setupTestStore(t)
	u, err := store.GetUser(42)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if u != nil {
		t.Errorf("GetUser = %+v, want nil", u)
	}
}

func TestListNotifiableUsers(t *testing.T) {
	store := setupTestStore(t)
	a := createUser(t, store, "a@example.com")
	b := createUser(t, store, "b@example.com")

	settings := models.UserSettings{NotifyEnabled: false, ThresholdHPa: 6, Latitude: 35.0, Longitude: 139.0}
	if err := store.UpdateUserSettings(b, settings); err != nil {
		t.Fatalf("UpdateUserSettings: %v", err)
	}

	users, err := store.ListNotifiableUsers()
	if err != nil {
		t.Fatalf("ListNotifiableUsers: %v", err)
	}
	if len(users) != 1 || users[0].ID != a {
		t.Errorf("notifiable users = %+v, want only user %d", users, a)
	}

	all, err := store.ListUsers()
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("len(all) = %d, want 2", len(all))
	}
	if all[1].ThresholdHPa != 6 || all[1].Latitude != 35.0 {
		t.Errorf("updated user = %+v", all[1])
	}
}

func TestUpdateUserSettings_Missing(t *testing.T) {
	store := setupTestStore(t)
	err := store.UpdateUserSettings(99, models.UserSettings{ThresholdHPa: 5})
	if !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("err = %v, want sql.ErrNoRows", err)
	}
}

func TestDailyRecord_Upsert(t *testing.T) {
	store := setupTestStore(t)
	uid := createUser(t, store, "a@example.com")

	rec, err := store.GetDailyRecord(uid, "2025-03-01")
	if err != nil {
		t.Fatalf("GetDailyRecord: %v", err)
	}
	if rec != nil {
		t.Fatalf("GetDailyRecord = %+v, want nil", rec)
	}

	first := models.DailyPressureRecord{UserID: uid, Date: "2025-03-01", PressureHPa: 1012.0}
	if err := store.UpsertDailyRecord(first); err != nil {
		t.Fatalf("UpsertDailyRecord: %v", err)
	}
	second := models.DailyPressureRecord{
		UserID:      uid,
		Date:        "2025-03-01",
		PressureHPa: 1010.5,
		MinHPa:      sql.NullFloat64{Float64: 1008, Valid: true},
		MaxHPa:      sql.NullFloat64{Float64: 1013, Valid: true},
		RangeHPa:    sql.NullFloat64{Float64: 5, Valid: true},
	}
	if err := store.UpsertDailyRecord(second); err != nil {
		t.Fatalf("UpsertDailyRecord again: %v", err)
	}

	rec, err = store.GetDailyRecord(uid, "2025-03-01")
	if err != nil {
		t.Fatalf("GetDailyRecord: %v", err)
	}
	if rec == nil {
		t.Fatal("GetDailyRecord returned nil")
	}
	if rec.PressureHPa != 1010.5 {
		t.Errorf("PressureHPa = %v, want 1010.5", rec.PressureHPa)
	}
	if !rec.RangeHPa.Valid || rec.RangeHPa.Float64 != 5 {
		t.Errorf("RangeHPa = %+v, want 5", rec.RangeHPa)
	}

	records, err := store.ListDailyRecords(uid, "2025-02-01", "2025-03-31")
	if err != nil {
		t.Fatalf("ListDailyRecords: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("len(records) = %d, want 1", len(records))
	}
}

func TestLedger_ClaimOnce(t *testing.T) {
	store := setupTestStore(t)
	uid := createUser(t, store, "a@example.com")
	entry := models.AlertLedgerEntry{UserID: uid, Date: "2025-03-01", Kind: models.AlertDailyRange, MetricHPa: 4.5}

	has, err := store.HasAlert(uid, entry.Date, entry.Kind)
	require.NoError(t, err)
	assert.False(t, has)

	inserted, err := store.ClaimAlert(entry)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = store.ClaimAlert(entry)
	require.NoError(t, err)
	assert.False(t, inserted, "second claim for the same key must lose")

	has, err = store.HasAlert(uid, entry.Date, entry.Kind)
	require.NoError(t, err)
	assert.True(t, has)

	other, err := store.HasAlert(uid, entry.Date, models.AlertDailyDelta)
	require.NoError(t, err)
	assert.False(t, other, "kinds are independent")

	entries, err := store.ListAlerts(uid, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.AlertDailyRange, entries[0].Kind)
	assert.Equal(t, 4.5, entries[0].MetricHPa)
}

func TestLedger_Release(t *testing.T) {
	store := setupTestStore(t)
	uid := createUser(t, store, "a@example.com")
	entry := models.AlertLedgerEntry{UserID: uid, Date: "2025-03-01", Kind: models.AlertTomorrowRisk}

	_, err := store.ClaimAlert(entry)
	require.NoError(t, err)
	require.NoError(t, store.ReleaseAlert(uid, entry.Date, entry.Kind))

	has, err := store.HasAlert(uid, entry.Date, entry.Kind)
	require.NoError(t, err)
	assert.False(t, has)

	inserted, err := store.ClaimAlert(entry)
	require.NoError(t, err)
	assert.True(t, inserted, "released key can be claimed again")
}

func TestSymptomLogs_NewestFirst(t *testing.T) {
	store := setupTestStore(t)
	uid := createUser(t, store, "a@example.com")
	base := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

	for i, symptom := range []string{"headache", "dizziness", "joint pain"} {
		_, err := store.InsertSymptomLog(models.SymptomLog{
			UserID:   uid,
			Symptom:  symptom,
			Severity: i + 1,
			LoggedAt: base.Add(time.Duration(i) * time.Hour),
		})
		if err != nil {
			t.Fatalf("InsertSymptomLog: %v", err)
		}
	}

	logs, err := store.ListSymptomLogs(uid, 0)
	if err != nil {
		t.Fatalf("ListSymptomLogs: %v", err)
	}
	if len(logs) != 3 {
		t.Fatalf("len(logs) = %d, want 3", len(logs))
	}
	if logs[0].Symptom != "joint pain" {
		t.Errorf("logs[0].Symptom = %q, want joint pain", logs[0].Symptom)
	}
}

func TestSymptomLogs_SeverityConstraint(t *testing.T) {
	store := setupTestStore(t)
	uid := createUser(t, store, "a@example.com")
	_, err := store.InsertSymptomLog(models.SymptomLog{UserID: uid, Symptom: "headache", Severity: 6})
	if err == nil {
		t.Error("severity 6 accepted, want constraint error")
	}
}

func TestFetchRuns(t *testing.T) {
	store := setupTestStore(t)

	run, err := store.StartFetchRun("open-meteo", "v1/jma", "33.59,132.97")
	require.NoError(t, err)
	run.HTTPStatus = sql.NullInt64{Int64: 503, Valid: true}
	run.ErrorMessage = sql.NullString{String: "status 503", Valid: true}
	require.NoError(t, store.CompleteFetchRun(run))

	ok, err := store.StartFetchRun("open-meteo", "v1/jma", "33.59,132.97")
	require.NoError(t, err)
	ok.Success = true
	require.NoError(t, store.CompleteFetchRun(ok))

	failed, err := store.GetRecentFetchErrors(10)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, run.ID, failed[0].ID)
	assert.Equal(t, int64(503), failed[0].HTTPStatus.Int64)
}

func TestRawPayloads_Dedupe(t *testing.T) {
	store := setupTestStore(t)
	payload := []byte(`{"hourly":{"time":["2025-03-01T00:00"],"pressure_msl":[1012.3]}}`)

	id, err := store.StoreRawPayload(0, "open-meteo", "v1/jma", "33.59,132.97", payload)
	require.NoError(t, err)
	require.NotZero(t, id)

	dup, err := store.StoreRawPayload(0, "open-meteo", "v1/jma", "33.59,132.97", payload)
	require.NoError(t, err)
	assert.Zero(t, dup)

	got, err := store.GetRawPayload(id)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	removed, err := store.CleanupOldRawPayloads(30)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestClaimAlert_DatabaseError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := New(db, time.UTC, zap.NewNop())
	mock.ExpectExec("INSERT INTO alerts_sent").
		WithArgs(int64(7), "2025-03-01", "daily_range", 4.2, sqlmock.AnyArg()).
		WillReturnError(errors.New("disk I/O error"))

	inserted, err := store.ClaimAlert(models.AlertLedgerEntry{
		UserID: 7, Date: "2025-03-01", Kind: models.AlertDailyRange, MetricHPa: 4.2,
	})
	assert.Error(t, err)
	assert.False(t, inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHasAlert_DatabaseError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := New(db, time.UTC, zap.NewNop())
	mock.ExpectQuery("SELECT COUNT").
		WithArgs(int64(7), "2025-03-01", "tomorrow_risk").
		WillReturnError(errors.New("database is locked"))

	_, err = store.HasAlert(7, "2025-03-01", models.AlertTomorrowRisk)
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
