// internal/models/profile.go
package models

import "fmt"

// DifficultyLevel labels a character's overall difficulty curve.
type DifficultyLevel string

const (
	DifficultyEasy   DifficultyLevel = "easy"
	DifficultyMedium DifficultyLevel = "medium"
	DifficultyHard   DifficultyLevel = "hard"
)

// Personality holds the free text injected verbatim into the outbound
// prompt to steer the remote model's persona.
type Personality struct {
	Archetype string `json:"archetype" yaml:"archetype"`
	ShortBio  string `json:"shortBio" yaml:"shortBio"`
	Tone      string `json:"tone" yaml:"tone"`
}

// FlagVocabulary describes the categories of behavior the persona is
// instructed to recognize. These are labels for the remote model's
// judgment, not counted by local code.
type FlagVocabulary struct {
	Green  []string `json:"green" yaml:"green"`
	Red    []string `json:"red" yaml:"red"`
	HardNo []string `json:"hardNo" yaml:"hardNo"`
}

// Difficulty carries the two numeric fields with runtime effect:
// ToleranceRed is the red-flag count at or above which the date is lost,
// MinGreenForSecondDate the green-flag count required to win while still
// under tolerance.
type Difficulty struct {
	Level                 DifficultyLevel `json:"level" yaml:"level"`
	ToleranceRed          int             `json:"toleranceRed" yaml:"toleranceRed"`
	MinGreenForSecondDate int             `json:"minGreenForSecondDate" yaml:"minGreenForSecondDate"`
}

// CharacterProfile 表示一个可约会角色的静态配置
// Loaded once from static content files; never mutated at runtime.
// ID doubles as the persistence-scoping key for score and dialogue state.
type CharacterProfile struct {
	ID          string         `json:"id" yaml:"id"`
	Name        string         `json:"name" yaml:"name"`
	Gender      string         `json:"gender" yaml:"gender"`
	AvatarKey   string         `json:"avatarKey" yaml:"avatarKey"`
	Personality Personality    `json:"personality" yaml:"personality"`
	Flags       FlagVocabulary `json:"flags" yaml:"flags"`
	Difficulty  Difficulty     `json:"difficulty" yaml:"difficulty"`
}

// Validate checks the fields the game logic depends on.
func (p *CharacterProfile) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("character profile missing id")
	}
	if p.Name == "" {
		return fmt.Errorf("character %s missing name", p.ID)
	}
	if p.Difficulty.ToleranceRed <= 0 {
		return fmt.Errorf("character %s: toleranceRed must be positive, got %d", p.ID, p.Difficulty.ToleranceRed)
	}
	if p.Difficulty.MinGreenForSecondDate <= 0 {
		return fmt.Errorf("character %s: minGreenForSecondDate must be positive, got %d", p.ID, p.Difficulty.MinGreenForSecondDate)
	}
	return nil
}
