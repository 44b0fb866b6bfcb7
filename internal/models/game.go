// internal/models/game.go
package models

import "time"

// GameStatus 表示一局约会的终局状态
// The empty string means the game is still in progress. A non-empty
// status is terminal: only a full reset returns it to in-progress.
type GameStatus string

const (
	// StatusInProgress is the zero value; the date is still running.
	StatusInProgress GameStatus = ""
	// StatusGameOver means the date ended in a loss.
	StatusGameOver GameStatus = "GAME_OVER"
	// StatusGameWon means the date ended in a second date.
	StatusGameWon GameStatus = "GAME_WON"
)

// Terminal reports whether the status ends the game.
func (s GameStatus) Terminal() bool {
	return s == StatusGameOver || s == StatusGameWon
}

// ParseGameStatus maps a wire value to a known status. Unknown values
// (including "null") collapse to in-progress.
func ParseGameStatus(raw string) GameStatus {
	switch GameStatus(raw) {
	case StatusGameOver:
		return StatusGameOver
	case StatusGameWon:
		return StatusGameWon
	default:
		return StatusInProgress
	}
}

// FlagTally 表示一局对话累计的旗标计数
// Green and Red are non-negative and monotonically non-decreasing within
// a game; HardNo is sticky once true.
type FlagTally struct {
	Green  int  `json:"green"`
	Red    int  `json:"red"`
	HardNo bool `json:"hardNo"`
}

// FlagDelta is the per-turn flag increment reported by the remote model.
type FlagDelta struct {
	Green  int  `json:"green"`
	Red    int  `json:"red"`
	HardNo bool `json:"hardNo"`
}

// IsZero reports whether the delta changes nothing.
func (d FlagDelta) IsZero() bool {
	return d.Green == 0 && d.Red == 0 && !d.HardNo
}

// GameRecord is the persisted score state for one character.
type GameRecord struct {
	Tally     FlagTally  `json:"tally"`
	Status    GameStatus `json:"status,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message 表示对话历史中的一条消息
// Assistant content holds the raw remote-completion text verbatim; the
// display text is derived on read by the parser, never stored separately.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
