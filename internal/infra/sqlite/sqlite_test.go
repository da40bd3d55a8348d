package sqlite

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/moodi-app/moodi/internal/domain"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	dir := t.TempDir()
	db, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// award returns a GameStateFunc that adds one coin award and sets the date.
func award(reason domain.AwardReason, amount int64, date domain.Date) domain.GameStateFunc {
	return func(s domain.UserGameState) (domain.UserGameState, []domain.CoinAward) {
		s.Moodcoins += amount
		if s.LastMoodDate == nil {
			s.StreakDays = 1
		}
		s.LastMoodDate = &date
		return s, []domain.CoinAward{{Reason: reason, Amount: amount}}
	}
}

var ctx = context.Background()

// ─── Database Lifecycle ─────────────────────────────────────────────────────

func TestOpen_CreatesDatabase(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(filepath.Join(dir, "state.db")); os.IsNotExist(err) {
		t.Error("state.db should exist")
	}
}

func TestOpen_Ping(t *testing.T) {
	db := newTestDB(t)
	if err := db.Ping(ctx); err != nil {
		t.Fatalf("Ping() error: %v", err)
	}
}

func TestOpen_Reopen(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	if _, err := db.UpdateGameState(ctx, "u1", "m1", award(domain.AwardDailyPost, 5, domain.NewDate(2025, 11, 7))); err != nil {
		t.Fatalf("UpdateGameState() error: %v", err)
	}
	db.Close()

	db2, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	defer db2.Close()

	s, err := db2.GameState(ctx, "u1")
	if err != nil {
		t.Fatalf("GameState() error: %v", err)
	}
	if s.Moodcoins != 5 {
		t.Errorf("Moodcoins = %d, want 5", s.Moodcoins)
	}
}

func TestNewDB_MigrationFailure(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error: %v", err)
	}
	defer mockDB.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS game_states").
		WillReturnError(errors.New("disk I/O error"))

	if _, err := newDB(mockDB); err == nil {
		t.Fatal("newDB() should fail when a migration fails")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestUpdateGameState_RollsBackOnError(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error: %v", err)
	}
	defer mockDB.Close()
	db := &DB{db: mockDB, now: time.Now}

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT streak_days, moodcoins, last_mood_date, updated_at FROM game_states").
		WithArgs("u1").
		WillReturnError(errors.New("database is locked"))
	mock.ExpectRollback()

	_, err = db.UpdateGameState(ctx, "u1", "ref", award(domain.AwardDailyPost, 5, domain.NewDate(2025, 1, 1)))
	if err == nil {
		t.Fatal("UpdateGameState() should fail")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

// ─── Game State ─────────────────────────────────────────────────────────────

func TestGameState_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GameState(ctx, "nobody")
	if !errors.Is(err, domain.ErrStateNotFound) {
		t.Errorf("GameState() error = %v, want ErrStateNotFound", err)
	}
}

func TestUpdateGameState_RequiresUserID(t *testing.T) {
	db := newTestDB(t)

	_, err := db.UpdateGameState(ctx, "", "ref", award(domain.AwardDailyPost, 5, domain.NewDate(2025, 1, 1)))
	if !errors.Is(err, domain.ErrUserIDRequired) {
		t.Errorf("error = %v, want ErrUserIDRequired", err)
	}
}

func TestUpdateGameState_CreatesAndPersists(t *testing.T) {
	db := newTestDB(t)
	day := domain.NewDate(2025, 11, 7)

	got, err := db.UpdateGameState(ctx, "u1", "m1", award(domain.AwardDailyPost, 5, day))
	if err != nil {
		t.Fatalf("UpdateGameState() error: %v", err)
	}
	if got.UserID != "u1" || got.StreakDays != 1 || got.Moodcoins != 5 {
		t.Errorf("returned state = %+v", got)
	}

	stored, err := db.GameState(ctx, "u1")
	if err != nil {
		t.Fatalf("GameState() error: %v", err)
	}
	if stored.StreakDays != 1 {
		t.Errorf("StreakDays = %d, want 1", stored.StreakDays)
	}
	if stored.Moodcoins != 5 {
		t.Errorf("Moodcoins = %d, want 5", stored.Moodcoins)
	}
	if stored.LastMoodDate == nil || *stored.LastMoodDate != day {
		t.Errorf("LastMoodDate = %v, want %v", stored.LastMoodDate, day)
	}
}

func TestUpdateGameState_PersistsUnlocksInOrder(t *testing.T) {
	db := newTestDB(t)

	grant := func(ids ...string) domain.GameStateFunc {
		return func(s domain.UserGameState) (domain.UserGameState, []domain.CoinAward) {
			s.Unlocks = append(s.Unlocks, ids...)
			return s, nil
		}
	}

	if _, err := db.UpdateGameState(ctx, "u1", "", grant("voice_reflection")); err != nil {
		t.Fatalf("UpdateGameState() error: %v", err)
	}
	if _, err := db.UpdateGameState(ctx, "u1", "", grant("custom_gradient")); err != nil {
		t.Fatalf("UpdateGameState() error: %v", err)
	}

	s, err := db.GameState(ctx, "u1")
	if err != nil {
		t.Fatalf("GameState() error: %v", err)
	}
	if len(s.Unlocks) != 2 {
		t.Fatalf("Unlocks = %v, want 2 entries", s.Unlocks)
	}
	if s.Unlocks[0] != "voice_reflection" || s.Unlocks[1] != "custom_gradient" {
		t.Errorf("Unlocks = %v, want grant order", s.Unlocks)
	}
}

func TestUpdateGameState_ConcurrentUpdatesSerialize(t *testing.T) {
	db := newTestDB(t)
	day := domain.NewDate(2025, 11, 7)

	const workers = 20
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := db.UpdateGameState(ctx, "u1", "", award(domain.AwardReferral, 25, day)); err != nil {
				t.Errorf("UpdateGameState() error: %v", err)
			}
		}()
	}
	wg.Wait()

	s, err := db.GameState(ctx, "u1")
	if err != nil {
		t.Fatalf("GameState() error: %v", err)
	}
	if s.Moodcoins != workers*25 {
		t.Errorf("Moodcoins = %d, want %d", s.Moodcoins, workers*25)
	}
}

// ─── Coin Ledger ────────────────────────────────────────────────────────────

func TestLedger_DoubleEntry(t *testing.T) {
	db := newTestDB(t)
	day := domain.NewDate(2025, 11, 7)

	if _, err := db.UpdateGameState(ctx, "u1", "m1", award(domain.AwardDailyPost, 5, day)); err != nil {
		t.Fatalf("UpdateGameState() error: %v", err)
	}
	if _, err := db.UpdateGameState(ctx, "u2", "m2", award(domain.AwardReferral, 25, day)); err != nil {
		t.Fatalf("UpdateGameState() error: %v", err)
	}

	totals, err := db.LedgerTotals(ctx)
	if err != nil {
		t.Fatalf("LedgerTotals() error: %v", err)
	}
	if totals.Debits != 30 || totals.Credits != 30 {
		t.Errorf("totals = %+v, want 30/30", totals)
	}

	pool, err := db.LedgerBalance(ctx, domain.PoolAccount)
	if err != nil {
		t.Fatalf("LedgerBalance() error: %v", err)
	}
	if pool != -30 {
		t.Errorf("pool balance = %d, want -30", pool)
	}

	u1, _ := db.LedgerBalance(ctx, domain.UserAccount("u1"))
	if u1 != 5 {
		t.Errorf("u1 balance = %d, want 5", u1)
	}
}

func TestLedgerEntries_NewestFirst(t *testing.T) {
	db := newTestDB(t)
	day := domain.NewDate(2025, 11, 7)

	db.UpdateGameState(ctx, "u1", "m1", award(domain.AwardDailyPost, 5, day))
	db.UpdateGameState(ctx, "u1", "m2", award(domain.AwardStreakBonus, 5, day))

	entries, err := db.LedgerEntries(ctx, domain.UserAccount("u1"), 10)
	if err != nil {
		t.Fatalf("LedgerEntries() error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].Reason != domain.AwardStreakBonus {
		t.Errorf("first entry reason = %q, want streak_bonus", entries[0].Reason)
	}
	if entries[0].Balance != 10 {
		t.Errorf("running balance = %d, want 10", entries[0].Balance)
	}
	if entries[0].Reference != "m2" {
		t.Errorf("Reference = %q, want m2", entries[0].Reference)
	}
	if entries[0].EntryType != domain.EntryCredit {
		t.Errorf("EntryType = %q, want CREDIT", entries[0].EntryType)
	}
}

func TestLedgerBalance_Empty(t *testing.T) {
	db := newTestDB(t)

	bal, err := db.LedgerBalance(ctx, "user:nobody")
	if err != nil {
		t.Fatalf("LedgerBalance() error: %v", err)
	}
	if bal != 0 {
		t.Errorf("balance = %d, want 0", bal)
	}
}

// ─── Referrals ──────────────────────────────────────────────────────────────

func newReferral(id, inviter, invitee string) domain.Referral {
	return domain.Referral{ID: id, InviterUserID: inviter, InviteeUserID: invitee, CreatedAt: time.Now()}
}

func TestCreateReferral_RoundTrip(t *testing.T) {
	db := newTestDB(t)

	if err := db.CreateReferral(ctx, newReferral("r1", "alice", "bob")); err != nil {
		t.Fatalf("CreateReferral() error: %v", err)
	}
	got, err := db.GetReferral(ctx, "r1")
	if err != nil {
		t.Fatalf("GetReferral() error: %v", err)
	}
	if got.InviterUserID != "alice" || got.InviteeUserID != "bob" {
		t.Errorf("referral = %+v", got)
	}
	if got.Accepted || got.AcceptedAt != nil {
		t.Error("new referral should be pending")
	}
}

func TestCreateReferral_DuplicateInvitee(t *testing.T) {
	db := newTestDB(t)

	db.CreateReferral(ctx, newReferral("r1", "alice", "bob"))
	err := db.CreateReferral(ctx, newReferral("r2", "carol", "bob"))
	if !errors.Is(err, domain.ErrReferralExists) {
		t.Errorf("error = %v, want ErrReferralExists", err)
	}
}

func TestGetReferral_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetReferral(ctx, "missing")
	if !errors.Is(err, domain.ErrReferralNotFound) {
		t.Errorf("error = %v, want ErrReferralNotFound", err)
	}
}

func TestAcceptReferral_CreditsOnce(t *testing.T) {
	db := newTestDB(t)
	db.CreateReferral(ctx, newReferral("r1", "alice", "bob"))

	credit := func(s domain.UserGameState) (domain.UserGameState, []domain.CoinAward) {
		s.Moodcoins += 25
		return s, []domain.CoinAward{{Reason: domain.AwardReferral, Amount: 25}}
	}

	ref, state, err := db.AcceptReferral(ctx, "r1", time.Now(), credit)
	if err != nil {
		t.Fatalf("AcceptReferral() error: %v", err)
	}
	if !ref.Accepted || ref.AcceptedAt == nil {
		t.Error("referral should be accepted")
	}
	if state.UserID != "alice" || state.Moodcoins != 25 {
		t.Errorf("inviter state = %+v", state)
	}

	_, _, err = db.AcceptReferral(ctx, "r1", time.Now(), credit)
	if !errors.Is(err, domain.ErrReferralAlreadyAccepted) {
		t.Errorf("second accept error = %v, want ErrReferralAlreadyAccepted", err)
	}

	s, _ := db.GameState(ctx, "alice")
	if s.Moodcoins != 25 {
		t.Errorf("Moodcoins after double accept = %d, want 25", s.Moodcoins)
	}
	entries, _ := db.LedgerEntries(ctx, domain.UserAccount("alice"), 10)
	if len(entries) != 1 || entries[0].Reference != "referral:r1" {
		t.Errorf("ledger entries = %+v, want one referral:r1 credit", entries)
	}
}

func TestAcceptReferral_NotFound(t *testing.T) {
	db := newTestDB(t)

	noop := func(s domain.UserGameState) (domain.UserGameState, []domain.CoinAward) { return s, nil }
	_, _, err := db.AcceptReferral(ctx, "missing", time.Now(), noop)
	if !errors.Is(err, domain.ErrReferralNotFound) {
		t.Errorf("error = %v, want ErrReferralNotFound", err)
	}
}

// ─── Mood History ───────────────────────────────────────────────────────────

func TestMoods_InsertAndList(t *testing.T) {
	db := newTestDB(t)
	base := time.Date(2025, 11, 7, 9, 0, 0, 0, time.UTC)

	for i, id := range []string{"m1", "m2", "m3"} {
		err := db.InsertMood(ctx, domain.MoodRecord{
			ID: id, UserID: "u1", MoodDate: domain.NewDate(2025, 11, 7+i),
			MoodEmoji: "😊", MoodColor: "#FFD166", Intensity: 6,
			TimeBucket: "morning", UserLocale: "en",
			Artifact: domain.Artifact{
				ReflectionText: "Warm start.", Tags: []string{"calm", "warm", "light"},
				SafetyFlag: domain.SafetyOK,
			},
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		})
		if err != nil {
			t.Fatalf("InsertMood(%s) error: %v", id, err)
		}
	}

	moods, err := db.ListMoods(ctx, "u1", 2)
	if err != nil {
		t.Fatalf("ListMoods() error: %v", err)
	}
	if len(moods) != 2 {
		t.Fatalf("got %d moods, want 2", len(moods))
	}
	if moods[0].ID != "m3" {
		t.Errorf("first mood = %q, want m3", moods[0].ID)
	}
	if moods[0].MoodDate != domain.NewDate(2025, 11, 9) {
		t.Errorf("MoodDate = %v", moods[0].MoodDate)
	}
	if len(moods[0].Artifact.Tags) != 3 {
		t.Errorf("artifact tags = %v", moods[0].Artifact.Tags)
	}
}
