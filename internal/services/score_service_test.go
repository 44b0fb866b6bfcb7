package services

import (
	"testing"

	"github.com/Corphon/HeartSyncMCP/internal/models"
	"github.com/Corphon/HeartSyncMCP/internal/storage"
)

func testDifficulty(toleranceRed, minGreen int) models.Difficulty {
	return models.Difficulty{
		Level:                 models.DifficultyMedium,
		ToleranceRed:          toleranceRed,
		MinGreenForSecondDate: minGreen,
	}
}

func TestLoadWithoutRecord(t *testing.T) {
	s := NewScoreService(storage.NewMemoryStore())

	tally, status := s.Load("mira")

	if tally != (models.FlagTally{}) {
		t.Errorf("expected zero tally, got %+v", tally)
	}
	if status != models.StatusInProgress {
		t.Errorf("expected in-progress status, got %q", status)
	}
}

func TestLoadMalformedRecord(t *testing.T) {
	store := storage.NewMemoryStore()
	store.Set("flags:mira", []byte("{not json"))

	s := NewScoreService(store)
	tally, status := s.Load("mira")

	if tally != (models.FlagTally{}) || status != models.StatusInProgress {
		t.Errorf("malformed record must load as a fresh game, got %+v %q", tally, status)
	}
}

func TestApplyDeltaAccumulates(t *testing.T) {
	s := NewScoreService(storage.NewMemoryStore())
	difficulty := testDifficulty(10, 10)

	tally := models.FlagTally{}
	var status models.GameStatus

	deltas := []models.FlagDelta{
		{Green: 1},
		{Red: 2},
		{Green: 2, Red: 1},
	}

	prev := tally
	for _, delta := range deltas {
		tally, status = s.ApplyDelta("mira", tally, delta, difficulty)

		// 计数单调不减
		if tally.Green < prev.Green || tally.Red < prev.Red {
			t.Fatalf("tally decreased: %+v -> %+v", prev, tally)
		}
		prev = tally
	}

	if tally != (models.FlagTally{Green: 3, Red: 3}) {
		t.Errorf("unexpected final tally: %+v", tally)
	}
	if status != models.StatusInProgress {
		t.Errorf("expected in-progress status, got %q", status)
	}
}

func TestApplyDeltaPersistsAndReloads(t *testing.T) {
	store := storage.NewMemoryStore()
	s := NewScoreService(store)

	s.ApplyDelta("mira", models.FlagTally{}, models.FlagDelta{Green: 2, Red: 1}, testDifficulty(5, 5))

	tally, status := s.Load("mira")
	if tally != (models.FlagTally{Green: 2, Red: 1}) {
		t.Errorf("reloaded tally mismatch: %+v", tally)
	}
	if status != models.StatusInProgress {
		t.Errorf("reloaded status mismatch: %q", status)
	}
}

func TestLossBeatsWinOnSameDelta(t *testing.T) {
	s := NewScoreService(storage.NewMemoryStore())
	difficulty := testDifficulty(2, 3)

	// 同一增量同时满足胜负条件时，判负优先
	_, status := s.ApplyDelta("mira", models.FlagTally{Green: 2, Red: 1}, models.FlagDelta{Green: 1, Red: 1}, difficulty)

	if status != models.StatusGameOver {
		t.Errorf("expected GAME_OVER on simultaneous satisfaction, got %q", status)
	}
}

func TestWinUnderTolerance(t *testing.T) {
	s := NewScoreService(storage.NewMemoryStore())
	difficulty := testDifficulty(2, 3)

	_, status := s.ApplyDelta("mira", models.FlagTally{Green: 2, Red: 1}, models.FlagDelta{Green: 1}, difficulty)

	if status != models.StatusGameWon {
		t.Errorf("expected GAME_WON, got %q", status)
	}
}

func TestHardNoForcesLoss(t *testing.T) {
	s := NewScoreService(storage.NewMemoryStore())
	difficulty := testDifficulty(100, 1)

	// hardNo 无视任何计数，直接判负
	_, status := s.ApplyDelta("mira", models.FlagTally{Green: 50}, models.FlagDelta{Green: 1, HardNo: true}, difficulty)

	if status != models.StatusGameOver {
		t.Errorf("expected GAME_OVER on hardNo, got %q", status)
	}
}

func TestHardNoIsSticky(t *testing.T) {
	s := NewScoreService(storage.NewMemoryStore())
	difficulty := testDifficulty(100, 100)

	tally, _ := s.ApplyDelta("mira", models.FlagTally{}, models.FlagDelta{HardNo: true}, difficulty)
	if !tally.HardNo {
		t.Fatal("hardNo not recorded")
	}

	// 后续回合报告 hardNo:false 不能清除
	tally, status := s.ApplyDelta("mira", tally, models.FlagDelta{Green: 1}, difficulty)
	if !tally.HardNo {
		t.Error("hardNo must stay set once true")
	}
	if status != models.StatusGameOver {
		t.Errorf("expected GAME_OVER to persist, got %q", status)
	}
}

func TestEndToEndWinSequence(t *testing.T) {
	s := NewScoreService(storage.NewMemoryStore())
	difficulty := testDifficulty(3, 4)

	deltas := []models.FlagDelta{
		{Green: 1},
		{Green: 2, Red: 1},
		{Green: 1},
	}
	wantStatus := []models.GameStatus{
		models.StatusInProgress,
		models.StatusInProgress,
		models.StatusGameWon,
	}

	tally := models.FlagTally{}
	var status models.GameStatus
	for i, delta := range deltas {
		tally, status = s.ApplyDelta("mira", tally, delta, difficulty)
		if status != wantStatus[i] {
			t.Fatalf("after delta %d: got status %q, want %q", i+1, status, wantStatus[i])
		}
	}

	if tally != (models.FlagTally{Green: 4, Red: 1}) {
		t.Errorf("unexpected final tally: %+v", tally)
	}
}

func TestEndToEndLossSequence(t *testing.T) {
	s := NewScoreService(storage.NewMemoryStore())
	difficulty := testDifficulty(3, 4)

	tally, status := s.ApplyDelta("mira", models.FlagTally{}, models.FlagDelta{Red: 2}, difficulty)
	if status != models.StatusInProgress {
		t.Fatalf("after first delta: got %q, want in progress", status)
	}

	tally, status = s.ApplyDelta("mira", tally, models.FlagDelta{Red: 1}, difficulty)
	if status != models.StatusGameOver {
		t.Fatalf("after second delta: got %q, want GAME_OVER", status)
	}

	if tally != (models.FlagTally{Green: 0, Red: 3}) {
		t.Errorf("unexpected final tally: %+v", tally)
	}
}

func TestResetClearsRecord(t *testing.T) {
	store := storage.NewMemoryStore()
	s := NewScoreService(store)

	s.ApplyDelta("mira", models.FlagTally{}, models.FlagDelta{Red: 5, HardNo: true}, testDifficulty(2, 3))
	s.Reset("mira")

	tally, status := s.Load("mira")
	if tally != (models.FlagTally{}) || status != models.StatusInProgress {
		t.Errorf("reset must clear tally and status, got %+v %q", tally, status)
	}

	if _, err := store.Get("flags:mira"); err != storage.ErrKeyNotFound {
		t.Error("reset must delete the persisted record")
	}
}
