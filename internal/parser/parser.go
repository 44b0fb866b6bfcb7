// internal/parser/parser.go

// Package parser decodes the structured payload the persona model is
// instructed to emit. Decoding never fails from the caller's point of
// view: anything that does not match the expected shape degrades to a
// plain display message with a zero flag delta.
package parser

import (
	"encoding/json"
	"strings"

	"github.com/Corphon/HeartSyncMCP/internal/models"
)

// ParsedReply is the best-effort decoding of one raw completion.
type ParsedReply struct {
	Message string            `json:"message"`
	Flags   models.FlagDelta  `json:"flagsDetected"`
	Status  models.GameStatus `json:"gameStatus,omitempty"`
}

// wirePayload mirrors the decode grammar. Pointer fields distinguish
// absent from zero so missing fields default cleanly.
type wirePayload struct {
	Message *string `json:"message"`
	Flags   *struct {
		Green  *int  `json:"green"`
		Red    *int  `json:"red"`
		HardNo *bool `json:"hardNo"`
	} `json:"flagsDetected"`
	GameStatus *string `json:"gameStatus"`
}

// stripCodeFence removes a surrounding markdown code fence if present.
// Models routinely wrap JSON replies in ```json ... ``` despite
// instructions not to.
func stripCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}

	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.Index(trimmed, "\n"); idx >= 0 {
		// 去掉语言标记行（如 "json"）
		first := strings.TrimSpace(trimmed[:idx])
		if len(first) <= 10 && !strings.ContainsAny(first, "{}") {
			trimmed = trimmed[idx+1:]
		}
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

func decode(raw string) (*wirePayload, bool) {
	candidate := stripCodeFence(raw)
	if !strings.HasPrefix(candidate, "{") {
		return nil, false
	}

	var payload wirePayload
	if err := json.Unmarshal([]byte(candidate), &payload); err != nil {
		return nil, false
	}

	return &payload, true
}

// ParseReply attempts the structured decode of a raw completion. On
// failure the raw text itself becomes the display message and no flags
// are attributed.
func ParseReply(raw string) ParsedReply {
	payload, ok := decode(raw)
	if !ok {
		return ParsedReply{
			Message: strings.TrimSpace(raw),
		}
	}

	result := ParsedReply{}

	if payload.Message != nil {
		result.Message = *payload.Message
	}

	if payload.Flags != nil {
		if payload.Flags.Green != nil {
			result.Flags.Green = *payload.Flags.Green
		}
		if payload.Flags.Red != nil {
			result.Flags.Red = *payload.Flags.Red
		}
		if payload.Flags.HardNo != nil {
			result.Flags.HardNo = *payload.Flags.HardNo
		}
	}

	if payload.GameStatus != nil {
		result.Status = models.ParseGameStatus(*payload.GameStatus)
	}

	return result
}

// ExtractDisplayText returns just the display message for a stored raw
// assistant content, for re-rendering history. Plain text is not a
// valid structured payload, so extracting from an already-extracted
// string returns it unchanged: the operation is idempotent.
func ExtractDisplayText(raw string) string {
	payload, ok := decode(raw)
	if !ok || payload.Message == nil {
		return strings.TrimSpace(raw)
	}
	return strings.TrimSpace(*payload.Message)
}
