package app

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"shout-chat/internal/ai"
	"shout-chat/internal/model"
	"shout-chat/internal/observability"
)

var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrMessageEmpty        = errors.New("message content is empty")
	ErrMessageTooLong      = errors.New("message content too long")
	ErrMessageNotFound     = errors.New("message not found")
	ErrGenerationCancelled = errors.New("generation aborted")
)

// FallbackContent is persisted as the assistant reply when the generation
// backend is unavailable. Conversational continuity beats surfacing the
// outage to the user.
const FallbackContent = "ขออภัย ระบบ AI ไม่พร้อมใช้งานในขณะนี้"

// TranscriptStore is the ordered persistence contract the engine mutates
// through. All operations are atomic at single-record or single-session
// granularity.
type TranscriptStore interface {
	Create(message *model.Message) error
	GetByID(id string) (*model.Message, error)
	ListBySessionID(sessionID string) ([]model.Message, error)
	UpdateContent(id, content string) (*model.Message, error)
	DeleteByID(id string) error
	DeleteBySessionID(sessionID string) error
	DeleteAfter(sessionID string, createdAt time.Time, seq uint64) error
}

// TurnEventPublisher receives best-effort audit events. Publish failures are
// logged and swallowed; they never fail the turn.
type TurnEventPublisher interface {
	Publish(ctx context.Context, event model.TurnEvent) error
}

type HistoryCache interface {
	GetHistory(ctx context.Context, sessionID string) ([]model.Message, bool, error)
	SetHistory(ctx context.Context, sessionID string, messages []model.Message) error
	DeleteHistory(ctx context.Context, sessionID string) error
	MarkDirty(ctx context.Context, sessionID string) error
	IsDirty(ctx context.Context, sessionID string) (bool, error)
}

// ChatService is the single authority for mutating a session's transcript.
type ChatService struct {
	messageRepo  TranscriptStore
	generator    ai.Generator
	publisher    TurnEventPublisher
	historyCache HistoryCache
	metrics      *observability.Metrics
	maxContent   int
	sessionLocks *sessionLocker
}

type TurnResult struct {
	UserMessage      model.Message `json:"user_message"`
	AssistantMessage model.Message `json:"assistant_message"`
}

type EditResult struct {
	EditedMessage    model.Message `json:"edited_message"`
	AssistantMessage model.Message `json:"assistant_message"`
}

func NewChatService(
	messageRepo TranscriptStore,
	generator ai.Generator,
	publisher TurnEventPublisher,
	historyCache HistoryCache,
	metrics *observability.Metrics,
	maxContent int,
) *ChatService {
	if maxContent <= 0 {
		maxContent = 500
	}
	return &ChatService{
		messageRepo:  messageRepo,
		generator:    generator,
		publisher:    publisher,
		historyCache: historyCache,
		metrics:      metrics,
		maxContent:   maxContent,
		sessionLocks: newSessionLocker(),
	}
}

// SubmitTurn persists the user message, runs generation over the full
// transcript and persists the reply. Backend outages degrade to
// FallbackContent and still count as success; a cancelled generation leaves
// the user message in place, persists nothing else and returns
// ErrGenerationCancelled.
func (s *ChatService) SubmitTurn(ctx context.Context, sessionID, content string) (*TurnResult, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, ErrInvalidInput
	}
	content, err := s.validateContent(content)
	if err != nil {
		return nil, err
	}

	lock := s.sessionLocks.get(sessionID)
	lock.Lock()
	defer lock.Unlock()

	userMessage := &model.Message{
		SessionID: sessionID,
		Role:      model.RoleUser,
		Content:   content,
	}
	if err := s.messageRepo.Create(userMessage); err != nil {
		return nil, err
	}
	s.invalidateCache(ctx, sessionID)

	assistantMessage, err := s.generateReply(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrGenerationCancelled) {
			s.publishEvent(ctx, model.TurnEvent{
				SessionID:     sessionID,
				Kind:          model.TurnEventCancelled,
				UserMessageID: userMessage.ID,
			})
		}
		return nil, err
	}

	kind := model.TurnEventCompleted
	if assistantMessage.Content == FallbackContent {
		kind = model.TurnEventFallback
	}
	s.publishEvent(ctx, model.TurnEvent{
		SessionID:          sessionID,
		Kind:               kind,
		UserMessageID:      userMessage.ID,
		AssistantMessageID: assistantMessage.ID,
		ModelUsed:          assistantMessage.ModelUsed,
	})

	return &TurnResult{
		UserMessage:      *userMessage,
		AssistantMessage: *assistantMessage,
	}, nil
}

// GetHistory returns the full ordered transcript, oldest first.
func (s *ChatService) GetHistory(ctx context.Context, sessionID string) ([]model.Message, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, ErrInvalidInput
	}

	if s.historyCache != nil {
		dirty, err := s.historyCache.IsDirty(ctx, sessionID)
		if err == nil && !dirty {
			if cached, hit, cacheErr := s.historyCache.GetHistory(ctx, sessionID); cacheErr == nil && hit {
				s.metrics.ObserveCacheLookup(true)
				return cached, nil
			}
		}
		s.metrics.ObserveCacheLookup(false)
	}

	messages, err := s.messageRepo.ListBySessionID(sessionID)
	if err != nil {
		return nil, err
	}
	if s.historyCache != nil {
		if dirty, dirtyErr := s.historyCache.IsDirty(ctx, sessionID); dirtyErr == nil && !dirty {
			_ = s.historyCache.SetHistory(ctx, sessionID, messages)
		}
	}
	return messages, nil
}

// DeleteMessage removes one message. Unknown ids are a no-op.
func (s *ChatService) DeleteMessage(ctx context.Context, messageID string) error {
	messageID = strings.TrimSpace(messageID)
	if messageID == "" {
		return ErrInvalidInput
	}

	target, err := s.messageRepo.GetByID(messageID)
	if err != nil {
		return err
	}
	if target == nil {
		return nil
	}

	lock := s.sessionLocks.get(target.SessionID)
	lock.Lock()
	defer lock.Unlock()

	if err := s.messageRepo.DeleteByID(messageID); err != nil {
		return err
	}
	s.invalidateCache(ctx, target.SessionID)
	return nil
}

// ClearSession deletes every message in the session. Idempotent.
func (s *ChatService) ClearSession(ctx context.Context, sessionID string) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return ErrInvalidInput
	}

	lock := s.sessionLocks.get(sessionID)
	lock.Lock()
	defer lock.Unlock()

	if err := s.messageRepo.DeleteBySessionID(sessionID); err != nil {
		return err
	}
	s.invalidateCache(ctx, sessionID)
	s.publishEvent(ctx, model.TurnEvent{
		SessionID: sessionID,
		Kind:      model.TurnEventSessionCleared,
	})
	return nil
}

// EditAndRegenerate overwrites the target message's content in place, purges
// every message after it and regenerates from the truncated transcript. The
// edit is authoritative: the session's future is invalidated, not archived.
// Truncation is pivot-based regardless of the target's role.
func (s *ChatService) EditAndRegenerate(ctx context.Context, messageID, content string) (*EditResult, error) {
	messageID = strings.TrimSpace(messageID)
	if messageID == "" {
		return nil, ErrInvalidInput
	}
	content, err := s.validateContent(content)
	if err != nil {
		return nil, err
	}

	target, err := s.messageRepo.GetByID(messageID)
	if err != nil {
		return nil, err
	}
	if target == nil {
		return nil, ErrMessageNotFound
	}

	lock := s.sessionLocks.get(target.SessionID)
	lock.Lock()
	defer lock.Unlock()

	edited, err := s.messageRepo.UpdateContent(messageID, content)
	if err != nil {
		return nil, err
	}
	if edited == nil {
		// Deleted between fetch and lock acquisition.
		return nil, ErrMessageNotFound
	}

	if err := s.messageRepo.DeleteAfter(edited.SessionID, edited.CreatedAt, edited.Seq); err != nil {
		return nil, err
	}
	s.invalidateCache(ctx, edited.SessionID)

	assistantMessage, err := s.generateReply(ctx, edited.SessionID)
	if err != nil {
		if errors.Is(err, ErrGenerationCancelled) {
			s.publishEvent(ctx, model.TurnEvent{
				SessionID:     edited.SessionID,
				Kind:          model.TurnEventCancelled,
				UserMessageID: edited.ID,
			})
		}
		return nil, err
	}

	s.publishEvent(ctx, model.TurnEvent{
		SessionID:          edited.SessionID,
		Kind:               model.TurnEventMessageEdited,
		UserMessageID:      edited.ID,
		AssistantMessageID: assistantMessage.ID,
		ModelUsed:          assistantMessage.ModelUsed,
	})

	return &EditResult{
		EditedMessage:    *edited,
		AssistantMessage: *assistantMessage,
	}, nil
}

// generateReply runs the shared tail of the turn pipeline: load the ordered
// transcript, call the backend, persist the reply. The caller has already
// persisted whatever user-visible mutation triggered the call, so a
// cancellation here leaves the transcript consistent.
func (s *ChatService) generateReply(ctx context.Context, sessionID string) (*model.Message, error) {
	transcript, err := s.messageRepo.ListBySessionID(sessionID)
	if err != nil {
		return nil, err
	}

	prompt := make([]ai.ChatMessage, 0, len(transcript))
	for _, item := range transcript {
		role := item.Role
		if role == "" {
			role = model.RoleUser
		}
		prompt = append(prompt, ai.ChatMessage{Role: role, Content: item.Content})
	}

	started := time.Now()
	generated, err := s.generator.Generate(ctx, prompt)
	elapsed := time.Since(started)

	switch {
	case err == nil:
		s.metrics.ObserveTurn("completed", elapsed)
	case errors.Is(err, ai.ErrCancelled):
		s.metrics.ObserveTurn("cancelled", elapsed)
		return nil, ErrGenerationCancelled
	default:
		// Any non-cancellation failure degrades to the fallback reply.
		log.Printf("generation failed for session %s: %v", sessionID, err)
		s.metrics.ObserveTurn("fallback", elapsed)
		generated = FallbackContent
	}

	generated = strings.TrimSpace(generated)
	if generated == "" {
		generated = FallbackContent
	}

	assistantMessage := &model.Message{
		SessionID: sessionID,
		Role:      model.RoleAssistant,
		Content:   generated,
		ModelUsed: s.generator.Model(),
	}
	if err := s.messageRepo.Create(assistantMessage); err != nil {
		return nil, err
	}
	s.invalidateCache(ctx, sessionID)
	return assistantMessage, nil
}

func (s *ChatService) validateContent(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", ErrMessageEmpty
	}
	if utf8.RuneCountInString(content) > s.maxContent {
		return "", ErrMessageTooLong
	}
	return content, nil
}

func (s *ChatService) invalidateCache(ctx context.Context, sessionID string) {
	if s.historyCache == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	_ = s.historyCache.MarkDirty(ctx, sessionID)
	_ = s.historyCache.DeleteHistory(ctx, sessionID)
}

func (s *ChatService) publishEvent(ctx context.Context, event model.TurnEvent) {
	if s.publisher == nil {
		return
	}
	event.CreatedAt = time.Now()
	// Audit events must survive a caller-cancelled request context.
	if err := s.publisher.Publish(context.WithoutCancel(ctx), event); err != nil {
		log.Printf("publish turn event failed: %v", err)
	}
}
