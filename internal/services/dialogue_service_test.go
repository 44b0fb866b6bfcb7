package services

import (
	"testing"

	"github.com/Corphon/HeartSyncMCP/internal/models"
	"github.com/Corphon/HeartSyncMCP/internal/storage"
)

func TestDialogueLoadEmpty(t *testing.T) {
	s := NewDialogueService(storage.NewMemoryStore())

	history := s.Load("mira")
	if len(history) != 0 {
		t.Errorf("expected empty history, got %d messages", len(history))
	}
}

func TestDialogueAppendOrder(t *testing.T) {
	s := NewDialogueService(storage.NewMemoryStore())

	s.Append("mira", models.Message{Role: models.RoleUser, Content: "hi"})
	s.Append("mira", models.Message{Role: models.RoleAssistant, Content: "hello!"})
	s.Append("mira", models.Message{Role: models.RoleUser, Content: "how was your day?"})

	history := s.Load("mira")
	if len(history) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(history))
	}

	// 严格追加顺序，最新的在末尾
	if history[0].Content != "hi" || history[2].Content != "how was your day?" {
		t.Errorf("history out of order: %+v", history)
	}
}

func TestDialoguePersistsAcrossInstances(t *testing.T) {
	store := storage.NewMemoryStore()

	first := NewDialogueService(store)
	first.Append("mira", models.Message{Role: models.RoleUser, Content: "hi"})
	first.Append("mira", models.Message{Role: models.RoleAssistant, Content: "hey you"})

	// 新实例模拟进程重启
	second := NewDialogueService(store)
	history := second.Load("mira")

	if len(history) != 2 {
		t.Fatalf("expected 2 messages after restart, got %d", len(history))
	}
	if history[1].Content != "hey you" {
		t.Errorf("unexpected last message: %+v", history[1])
	}
}

func TestDialogueMalformedHistoryTreatedAsEmpty(t *testing.T) {
	store := storage.NewMemoryStore()
	store.Set("history:mira", []byte("definitely not json"))

	s := NewDialogueService(store)
	history := s.Load("mira")

	if len(history) != 0 {
		t.Errorf("malformed history must load as empty, got %d messages", len(history))
	}
}

func TestDialogueClear(t *testing.T) {
	store := storage.NewMemoryStore()
	s := NewDialogueService(store)

	s.Append("mira", models.Message{Role: models.RoleUser, Content: "hi"})
	s.Clear("mira")

	if len(s.Load("mira")) != 0 {
		t.Error("clear must empty the in-memory history")
	}

	if _, err := store.Get("history:mira"); err != storage.ErrKeyNotFound {
		t.Error("clear must delete the persisted record")
	}
}

func TestDialogueIsolatedPerCharacter(t *testing.T) {
	s := NewDialogueService(storage.NewMemoryStore())

	s.Append("mira", models.Message{Role: models.RoleUser, Content: "hi mira"})
	s.Append("dante", models.Message{Role: models.RoleUser, Content: "hi dante"})

	if len(s.Load("mira")) != 1 || len(s.Load("dante")) != 1 {
		t.Error("histories must be scoped per character")
	}

	s.Clear("mira")
	if len(s.Load("dante")) != 1 {
		t.Error("clearing one character must not touch another")
	}
}
