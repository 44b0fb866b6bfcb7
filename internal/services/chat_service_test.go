package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	apperrors "github.com/Corphon/HeartSyncMCP/internal/errors"
	"github.com/Corphon/HeartSyncMCP/internal/llm"
	"github.com/Corphon/HeartSyncMCP/internal/models"
	"github.com/Corphon/HeartSyncMCP/internal/storage"
)

// stubProvider 返回固定回复的测试提供者
type stubProvider struct {
	reply   string
	err     error
	calls   int
	lastReq llm.CompletionRequest
}

func (p *stubProvider) Initialize(config map[string]string) error { return nil }
func (p *stubProvider) GetName() string                           { return "Stub" }
func (p *stubProvider) GetSupportedModels() []string              { return []string{"stub-model"} }
func (p *stubProvider) SetCustomModels(models []string)           {}

func (p *stubProvider) CompleteText(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.calls++
	p.lastReq = req
	if p.err != nil {
		return nil, p.err
	}
	return &llm.CompletionResponse{
		Text:         p.reply,
		FinishReason: "stop",
		ModelName:    "stub-model",
		ProviderName: "Stub",
	}, nil
}

func (p *stubProvider) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamResponse, error) {
	return nil, errors.New("streaming not supported by stub")
}

const testProfileJSON = `{
  "id": "mira",
  "name": "Mira",
  "gender": "female",
  "avatarKey": "mira_cafe",
  "personality": {"archetype": "bookish barista", "shortBio": "reads a lot", "tone": "dry"},
  "flags": {"green": ["kindness"], "red": ["bragging"], "hardNo": ["cruelty"]},
  "difficulty": {"level": "medium", "toleranceRed": 2, "minGreenForSecondDate": 3}
}`

type chatFixture struct {
	chat     *ChatService
	provider *stubProvider
	store    *storage.MemoryStore
}

func newChatFixture(t *testing.T, provider *stubProvider) *chatFixture {
	t.Helper()

	// 把配置落在临时目录，避免测试污染工作目录
	t.Setenv("DATA_DIR", t.TempDir())
	t.Setenv("LOG_DIR", t.TempDir())

	dir := t.TempDir()

	charactersDir := filepath.Join(dir, "characters")
	if err := os.MkdirAll(charactersDir, 0755); err != nil {
		t.Fatalf("failed to create characters dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(charactersDir, "mira.json"), []byte(testProfileJSON), 0644); err != nil {
		t.Fatalf("failed to write profile: %v", err)
	}

	scriptPath := filepath.Join(dir, "persona_script.txt")
	if err := os.WriteFile(scriptPath, []byte("You are on a date. Reply as JSON."), 0644); err != nil {
		t.Fatalf("failed to write persona script: %v", err)
	}

	profiles, err := NewProfileService(charactersDir)
	if err != nil {
		t.Fatalf("failed to create profile service: %v", err)
	}

	store := storage.NewMemoryStore()
	chat := NewChatService(
		NewLLMServiceWithProvider("stub", provider),
		profiles,
		NewScoreService(store),
		NewDialogueService(store),
		scriptPath,
	)

	return &chatFixture{chat: chat, provider: provider, store: store}
}

func TestSendMessageSuccessfulTurn(t *testing.T) {
	provider := &stubProvider{
		reply: `{"message": "Good taste in books!", "flagsDetected": {"green": 1, "red": 0, "hardNo": false}, "gameStatus": null}`,
	}
	f := newChatFixture(t, provider)

	result, err := f.chat.SendMessage(context.Background(), "mira", "I loved The Left Hand of Darkness.")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Message != "Good taste in books!" {
		t.Errorf("unexpected display message: %q", result.Message)
	}
	if result.Tally != (models.FlagTally{Green: 1}) {
		t.Errorf("unexpected tally: %+v", result.Tally)
	}
	if result.Status != models.StatusInProgress {
		t.Errorf("unexpected status: %q", result.Status)
	}

	// 两条消息都已入历史，助手内容保存原始补全文本
	history := f.chat.DialogueService.Load("mira")
	if len(history) != 2 {
		t.Fatalf("expected 2 messages in history, got %d", len(history))
	}
	if history[0].Role != models.RoleUser {
		t.Errorf("first message must be the user turn, got %q", history[0].Role)
	}
	if history[1].Content != provider.reply {
		t.Errorf("assistant content must be the raw completion, got %q", history[1].Content)
	}
}

func TestSendMessageRequestAssembly(t *testing.T) {
	provider := &stubProvider{reply: `{"message": "hi", "flagsDetected": {"green": 0, "red": 0, "hardNo": false}, "gameStatus": null}`}
	f := newChatFixture(t, provider)

	if _, err := f.chat.SendMessage(context.Background(), "mira", "hello"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	msgs := f.provider.lastReq.Messages
	if len(msgs) != 3 {
		t.Fatalf("expected persona + scoring context + 1 visible message, got %d", len(msgs))
	}

	if msgs[0].Role != models.RoleSystem || msgs[1].Role != models.RoleSystem {
		t.Error("first two messages must be system instructions")
	}
	if msgs[2].Role != models.RoleUser || msgs[2].Content != "hello" {
		t.Errorf("visible history must end with the just-appended user message, got %+v", msgs[2])
	}

	// 隐藏评分上下文携带难度参数和回合计数
	for _, want := range []string{"red flag tolerance: 2", "second date: 3", "turn number: 0"} {
		if !strings.Contains(msgs[1].Content, want) {
			t.Errorf("scoring context missing %q:\n%s", want, msgs[1].Content)
		}
	}
}

func TestSendMessageEmptyText(t *testing.T) {
	f := newChatFixture(t, &stubProvider{reply: "{}"})

	_, err := f.chat.SendMessage(context.Background(), "mira", "   ")
	if !apperrors.IsValidationError(err) {
		t.Fatalf("expected validation error, got %v", err)
	}

	if f.provider.calls != 0 {
		t.Error("empty message must not reach the provider")
	}
	if len(f.chat.DialogueService.Load("mira")) != 0 {
		t.Error("empty message must not be appended")
	}
}

func TestSendMessageUnknownCharacter(t *testing.T) {
	f := newChatFixture(t, &stubProvider{reply: "{}"})

	_, err := f.chat.SendMessage(context.Background(), "nobody", "hi")
	if !apperrors.IsNotFoundError(err) {
		t.Fatalf("expected not-found error, got %v", err)
	}
}

func TestSendMessageProviderFailureKeepsUserMessage(t *testing.T) {
	provider := &stubProvider{err: errors.New("connection refused")}
	f := newChatFixture(t, provider)

	_, err := f.chat.SendMessage(context.Background(), "mira", "hello?")
	if !apperrors.IsNetworkError(err) {
		t.Fatalf("expected network error, got %v", err)
	}

	// 用户消息保留在历史中，重发即重试；没有助手消息，没有旗标增量
	history := f.chat.DialogueService.Load("mira")
	if len(history) != 1 || history[0].Role != models.RoleUser {
		t.Fatalf("user message must stay in history, got %+v", history)
	}

	tally, status := f.chat.ScoreService.Load("mira")
	if tally != (models.FlagTally{}) || status != models.StatusInProgress {
		t.Errorf("failed turn must not touch the score, got %+v %q", tally, status)
	}
}

func TestSendMessageAuthFailureClassified(t *testing.T) {
	provider := &stubProvider{err: &llm.StatusError{StatusCode: 401, Body: "invalid key"}}
	f := newChatFixture(t, provider)

	_, err := f.chat.SendMessage(context.Background(), "mira", "hello")
	if !apperrors.IsUnauthorizedError(err) {
		t.Fatalf("expected unauthorized error, got %v", err)
	}
}

func TestSendMessageBlockedAfterLoss(t *testing.T) {
	provider := &stubProvider{
		reply: `{"message": "That was cruel. We're done.", "flagsDetected": {"green": 0, "red": 0, "hardNo": true}, "gameStatus": "GAME_OVER"}`,
	}
	f := newChatFixture(t, provider)

	result, err := f.chat.SendMessage(context.Background(), "mira", "something awful")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != models.StatusGameOver {
		t.Fatalf("expected GAME_OVER, got %q", result.Status)
	}

	callsBefore := f.provider.calls
	historyBefore := len(f.chat.DialogueService.Load("mira"))

	// 终局后提交被拒绝，远程调用不再发生
	_, err = f.chat.SendMessage(context.Background(), "mira", "wait, I can explain")
	if !apperrors.IsConflictError(err) {
		t.Fatalf("expected conflict error after terminal status, got %v", err)
	}
	if f.provider.calls != callsBefore {
		t.Error("blocked submission must not call the provider")
	}
	if len(f.chat.DialogueService.Load("mira")) != historyBefore {
		t.Error("blocked submission must not append to history")
	}
}

func TestSendMessagePlainTextFallback(t *testing.T) {
	provider := &stubProvider{reply: "  Sorry, I spaced out. What were you saying?  "}
	f := newChatFixture(t, provider)

	result, err := f.chat.SendMessage(context.Background(), "mira", "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Message != "Sorry, I spaced out. What were you saying?" {
		t.Errorf("fallback message mismatch: %q", result.Message)
	}
	if !result.Flags.IsZero() {
		t.Errorf("fallback must carry a zero delta, got %+v", result.Flags)
	}
	if result.Status != models.StatusInProgress {
		t.Errorf("fallback must not decide the game, got %q", result.Status)
	}
}

func TestStatusHintDoesNotOverrideLocalDecision(t *testing.T) {
	// 模型声称游戏结束，但本地计数远未达到阈值
	provider := &stubProvider{
		reply: `{"message": "This date is over!", "flagsDetected": {"green": 0, "red": 1, "hardNo": false}, "gameStatus": "GAME_OVER"}`,
	}
	f := newChatFixture(t, provider)

	result, err := f.chat.SendMessage(context.Background(), "mira", "hm")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Status != models.StatusInProgress {
		t.Errorf("local score decision must win, got %q", result.Status)
	}
	if result.StatusHint != models.StatusGameOver {
		t.Errorf("model hint must still be surfaced, got %q", result.StatusHint)
	}
}

func TestResetClearsEverything(t *testing.T) {
	provider := &stubProvider{
		reply: `{"message": "ok", "flagsDetected": {"green": 1, "red": 1, "hardNo": false}, "gameStatus": null}`,
	}
	f := newChatFixture(t, provider)

	if _, err := f.chat.SendMessage(context.Background(), "mira", "hello"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := f.chat.Reset("mira"); err != nil {
		t.Fatalf("reset failed: %v", err)
	}

	state, err := f.chat.GetState("mira")
	if err != nil {
		t.Fatalf("failed to read state: %v", err)
	}

	if state.Tally != (models.FlagTally{}) || state.Status != models.StatusInProgress || len(state.History) != 0 {
		t.Errorf("reset must clear tally, status and history together, got %+v", state)
	}
}

func TestResetUnblocksSubmission(t *testing.T) {
	provider := &stubProvider{
		reply: `{"message": "done", "flagsDetected": {"green": 0, "red": 2, "hardNo": false}, "gameStatus": "GAME_OVER"}`,
	}
	f := newChatFixture(t, provider)

	result, err := f.chat.SendMessage(context.Background(), "mira", "ugh")
	if err != nil || result.Status != models.StatusGameOver {
		t.Fatalf("setup failed: %v %+v", err, result)
	}

	if err := f.chat.Reset("mira"); err != nil {
		t.Fatalf("reset failed: %v", err)
	}

	provider.reply = `{"message": "fresh start", "flagsDetected": {"green": 1, "red": 0, "hardNo": false}, "gameStatus": null}`
	result, err = f.chat.SendMessage(context.Background(), "mira", "hi again")
	if err != nil {
		t.Fatalf("submission after reset must succeed, got %v", err)
	}
	if result.Tally != (models.FlagTally{Green: 1}) {
		t.Errorf("tally must restart from zero, got %+v", result.Tally)
	}
}

func TestGetStateExtractsDisplayText(t *testing.T) {
	provider := &stubProvider{
		reply: `{"message": "Nice to meet you!", "flagsDetected": {"green": 1, "red": 0, "hardNo": false}, "gameStatus": null}`,
	}
	f := newChatFixture(t, provider)

	if _, err := f.chat.SendMessage(context.Background(), "mira", "hi"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	state, err := f.chat.GetState("mira")
	if err != nil {
		t.Fatalf("failed to read state: %v", err)
	}

	if len(state.History) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(state.History))
	}
	// 历史渲染时只暴露展示文本，不暴露结构化载荷
	if state.History[1].Content != "Nice to meet you!" {
		t.Errorf("assistant history must be display text, got %q", state.History[1].Content)
	}
}

func TestMissingPersonaScriptDisablesSubmission(t *testing.T) {
	f := newChatFixture(t, &stubProvider{reply: "{}"})

	// 用指向不存在文件的路径重建编排器
	broken := NewChatService(
		f.chat.LLMService,
		f.chat.ProfileService,
		f.chat.ScoreService,
		f.chat.DialogueService,
		filepath.Join(t.TempDir(), "missing.txt"),
	)

	if broken.PersonaReady() {
		t.Fatal("persona must not be ready with a missing script")
	}

	_, err := broken.SendMessage(context.Background(), "mira", "hello")
	if !apperrors.IsConfigError(err) {
		t.Fatalf("expected config error, got %v", err)
	}
}
