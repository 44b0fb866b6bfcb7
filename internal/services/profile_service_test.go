package services

import (
	"os"
	"path/filepath"
	"testing"

	apperrors "github.com/Corphon/HeartSyncMCP/internal/errors"
)

const profileYAML = `id: dante
name: Dante
gender: male
avatarKey: dante_gym
personality:
  archetype: retired climber
  shortBio: coaches kids on weekends
  tone: direct
flags:
  green: [self-deprecating humor]
  red: [humble-bragging]
  hardNo: [cruelty]
difficulty:
  level: hard
  toleranceRed: 2
  minGreenForSecondDate: 5
`

func writeProfileDir(t *testing.T, files map[string]string) string {
	t.Helper()

	dir := t.TempDir()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
	}
	return dir
}

func TestProfileServiceLoadsJSONAndYAML(t *testing.T) {
	dir := writeProfileDir(t, map[string]string{
		"mira.json":  testProfileJSON,
		"dante.yaml": profileYAML,
		"notes.txt":  "not a profile",
	})

	s, err := NewProfileService(dir)
	if err != nil {
		t.Fatalf("failed to create profile service: %v", err)
	}

	profiles := s.ListProfiles()
	if len(profiles) != 2 {
		t.Fatalf("expected 2 profiles, got %d", len(profiles))
	}

	// 按ID排序
	if profiles[0].ID != "dante" || profiles[1].ID != "mira" {
		t.Errorf("unexpected order: %s, %s", profiles[0].ID, profiles[1].ID)
	}

	dante, err := s.GetProfile("dante")
	if err != nil {
		t.Fatalf("failed to get dante: %v", err)
	}
	if dante.Difficulty.ToleranceRed != 2 || dante.Difficulty.MinGreenForSecondDate != 5 {
		t.Errorf("YAML difficulty not decoded: %+v", dante.Difficulty)
	}
	if len(dante.Flags.HardNo) != 1 || dante.Flags.HardNo[0] != "cruelty" {
		t.Errorf("YAML flag vocabulary not decoded: %+v", dante.Flags)
	}
}

func TestProfileServiceSkipsBrokenFiles(t *testing.T) {
	dir := writeProfileDir(t, map[string]string{
		"mira.json":    testProfileJSON,
		"broken.json":  "{not json",
		"invalid.yaml": "id: ghost\nname: Ghost\n", // 缺少难度参数
	})

	s, err := NewProfileService(dir)
	if err != nil {
		t.Fatalf("broken files must not fail startup: %v", err)
	}

	if len(s.ListProfiles()) != 1 {
		t.Errorf("expected only the valid profile, got %d", len(s.ListProfiles()))
	}

	if _, err := s.GetProfile("ghost"); !apperrors.IsNotFoundError(err) {
		t.Errorf("invalid profile must not be registered, got %v", err)
	}
}

func TestProfileServiceMissingDirectory(t *testing.T) {
	s, err := NewProfileService(filepath.Join(t.TempDir(), "does-not-exist"))
	if err != nil {
		t.Fatalf("missing directory must not fail startup: %v", err)
	}

	if len(s.ListProfiles()) != 0 {
		t.Error("expected no profiles from a missing directory")
	}
}

func TestProfileServiceUnknownID(t *testing.T) {
	dir := writeProfileDir(t, map[string]string{"mira.json": testProfileJSON})

	s, err := NewProfileService(dir)
	if err != nil {
		t.Fatalf("failed to create profile service: %v", err)
	}

	if _, err := s.GetProfile("nobody"); !apperrors.IsNotFoundError(err) {
		t.Errorf("expected not-found error, got %v", err)
	}
}
