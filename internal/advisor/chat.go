package advisor

import (
	"context"
	"iter"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/hiroki-koketsu/focusflow/internal/model"
)

type streamFunc func(ctx context.Context, history []model.ChatMessage) iter.Seq2[string, error]

// ChatSession is one study-assistant conversation. Turns run one at a time.
type ChatSession struct {
	mu         sync.Mutex
	history    []model.ChatMessage
	stream     streamFunc
	logger     *slog.Logger
	onFallback FallbackHook
}

func newChatSession(stream streamFunc, logger *slog.Logger, onFallback FallbackHook) *ChatSession {
	return &ChatSession{stream: stream, logger: logger, onFallback: onFallback}
}

// Greeting is the opening line shown before the first turn.
func (s *ChatSession) Greeting() string {
	return ChatGreeting
}

// History returns the completed turns so far.
func (s *ChatSession) History() []model.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.history)
}

// Send returns the model's reply to message as a lazy sequence of fragments;
// concatenated in order they form the full reply. Nothing is sent until the
// sequence is ranged over. The turn is recorded only if the reply streamed to
// completion; a cancelled context or an early break discards it. A turn that
// fails before any fragment yields ChatFailure instead; one that fails midway
// just ends.
func (s *ChatSession) Send(ctx context.Context, message string) iter.Seq[string] {
	message = strings.TrimSpace(message)

	return func(yield func(string) bool) {
		if message == "" {
			return
		}

		s.mu.Lock()
		defer s.mu.Unlock()

		turn := append(slices.Clone(s.history), model.ChatMessage{Role: model.RoleUser, Text: message})

		var reply strings.Builder
		for fragment, err := range s.stream(ctx, turn) {
			if err != nil {
				s.fail(ctx, err)
				// Part of the reply is already out; ChatFailure would be glued
				// onto it.
				if ctx.Err() == nil && reply.Len() == 0 {
					yield(ChatFailure)
				}
				return
			}
			reply.WriteString(fragment)
			if !yield(fragment) {
				return
			}
		}

		if ctx.Err() != nil {
			return
		}
		if reply.Len() == 0 {
			s.fail(ctx, errEmptyReply)
			yield(ChatFailure)
			return
		}

		s.history = append(turn, model.ChatMessage{Role: model.RoleModel, Text: reply.String()})
	}
}

func (s *ChatSession) fail(ctx context.Context, err error) {
	s.logger.WarnContext(ctx, "chat turn failed", slog.Any("error", err))
	if s.onFallback != nil {
		s.onFallback(ctx, CapabilityChat, err)
	}
}
