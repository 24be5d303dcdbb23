package recipe

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mcp-pantry/internal/ai"
	"mcp-pantry/internal/models"
)

// ErrRequestInFlight is returned when a generation is already running.
var ErrRequestInFlight = errors.New("a recipe request is already in progress")

// Session holds one household's recipe chat. Only one generation may run at
// a time; progress for the running request is broadcast to subscribers.
type Session struct {
	generator ai.Generator
	logger    *zap.Logger
	tick      time.Duration

	inFlight atomic.Bool

	mu          sync.Mutex
	current     Progress
	cancel      context.CancelFunc
	messages    []models.ChatMessage
	subscribers map[int]chan Progress
	nextSubID   int
}

type SessionOption func(*Session)

// WithTick sets the interval of the simulated progress updates.
func WithTick(d time.Duration) SessionOption {
	return func(s *Session) { s.tick = d }
}

func NewSession(generator ai.Generator, logger *zap.Logger, opts ...SessionOption) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Session{
		generator:   generator,
		logger:      logger.Named("recipe"),
		tick:        400 * time.Millisecond,
		current:     Progress{Stage: StageIdle},
		subscribers: make(map[int]chan Progress),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Generate runs one request through preparing, analyzing, generating,
// formatting and completed. Generator failures are returned as an assistant
// message with IsError set, not as an error. A cancelled request resets the
// session to idle, adds no message and returns the context error.
func (s *Session) Generate(ctx context.Context, in PromptInput) (*models.ChatMessage, error) {
	if !s.inFlight.CompareAndSwap(false, true) {
		return nil, ErrRequestInFlight
	}
	defer s.inFlight.Store(false)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	requestID := uuid.NewString()
	s.mu.Lock()
	s.cancel = cancel
	s.current = Progress{RequestID: requestID, Stage: StageIdle}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.cancel = nil
		s.mu.Unlock()
	}()

	lang := in.Request.Language
	if strings.TrimSpace(in.Request.Message) != "" {
		s.appendMessage(models.RoleUser, in.Request.Message, false)
	}

	s.advance() // preparing
	prompt := BuildPrompt(in)

	s.advance() // analyzing
	if ctx.Err() != nil {
		return nil, s.abort(ctx.Err())
	}

	s.advance() // generating
	stop := make(chan struct{})
	simDone := make(chan struct{})
	go s.simulate(ctx, stop, simDone)

	start := time.Now()
	text, err := s.generator.GenerateRecipe(ctx, prompt, lang)
	close(stop)
	<-simDone

	if ctx.Err() != nil {
		return nil, s.abort(ctx.Err())
	}
	if err != nil {
		s.logger.Warn("recipe generation failed", zap.String("request_id", requestID), zap.Error(err))
		msg := s.appendMessage(models.RoleAssistant, ErrorMessage(err, lang), true)
		s.reset()
		return &msg, nil
	}

	s.advance() // formatting
	text = formatResponse(text)

	s.advance() // completed
	msg := s.appendMessage(models.RoleAssistant, text, false)
	s.logger.Info("recipe generated",
		zap.String("request_id", requestID),
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("chars", len(text)))
	return &msg, nil
}

// Cancel aborts the running request, if any.
func (s *Session) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel == nil {
		return false
	}
	s.cancel()
	return true
}

func (s *Session) InFlight() bool {
	return s.inFlight.Load()
}

func (s *Session) Progress() Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *Session) Messages() []models.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ChatMessage, len(s.messages))
	copy(out, s.messages)
	return out
}

func (s *Session) ClearMessages() {
	s.mu.Lock()
	s.messages = nil
	s.mu.Unlock()
}

// Subscribe returns a channel of progress updates and a function that
// unsubscribes and closes it. Slow subscribers miss updates.
func (s *Session) Subscribe() (<-chan Progress, func()) {
	ch := make(chan Progress, 16)
	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = ch
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subscribers, id)
			s.mu.Unlock()
			close(ch)
		})
	}
}

// simulate nudges progress toward generatingCeiling, each step covering a
// fifth of the remaining distance, until stop is closed.
func (s *Session) simulate(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			if s.current.Stage != StageGenerating {
				s.mu.Unlock()
				return
			}
			p := s.current.Value + (generatingCeiling-s.current.Value)*0.2
			s.setLocked(StageGenerating, p)
			s.mu.Unlock()
		}
	}
}

func (s *Session) advance() {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.current.Stage.next()
	s.setLocked(next, next.BaseProgress())
}

// setLocked never lowers progress within a request.
func (s *Session) setLocked(stage Stage, value float64) {
	if value < s.current.Value {
		value = s.current.Value
	}
	s.current.Stage = stage
	s.current.Value = value
	s.publishLocked()
}

func (s *Session) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = Progress{RequestID: s.current.RequestID, Stage: StageIdle}
	s.publishLocked()
}

func (s *Session) abort(err error) error {
	s.logger.Debug("recipe request cancelled", zap.Error(err))
	s.reset()
	return err
}

func (s *Session) publishLocked() {
	for _, ch := range s.subscribers {
		select {
		case ch <- s.current:
		default:
		}
	}
}

func (s *Session) appendMessage(role models.ChatRole, text string, isError bool) models.ChatMessage {
	msg := models.ChatMessage{
		ID:        uuid.NewString(),
		Role:      role,
		Text:      text,
		IsError:   isError,
		CreatedAt: time.Now().UTC(),
	}
	s.mu.Lock()
	s.messages = append(s.messages, msg)
	s.mu.Unlock()
	return msg
}

// formatResponse strips markdown code fences some models wrap output in.
func formatResponse(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		if nl := strings.Index(text, "\n"); nl >= 0 {
			text = text[nl+1:]
		}
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	}
	return strings.TrimSpace(text)
}
