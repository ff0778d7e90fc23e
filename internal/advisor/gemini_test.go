package advisor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/hiroki-koketsu/focusflow/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

const testKey = "test-key"

// fakeAPI records requests and answers with the configured handler.
type fakeAPI struct {
	hits     atomic.Int32
	requests []generateRequest
	handler  func(w http.ResponseWriter, r *http.Request)
}

func newFakeAPI(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*fakeAPI, *Gemini) {
	t.Helper()
	api := &fakeAPI{handler: handler}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		api.hits.Add(1)
		assert.Equal(t, testKey, r.Header.Get("x-goog-api-key"))

		var req generateRequest
		if assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			api.requests = append(api.requests, req)
		}
		api.handler(w, r)
	}))
	t.Cleanup(srv.Close)

	g := NewGemini(Config{APIKey: testKey, BaseURL: srv.URL, Model: "test-model"}, discard,
		WithHTTPClient(srv.Client()))
	return api, g
}

func answer(text string) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []any{
				map[string]any{"content": map[string]any{"role": "model", "parts": []any{map[string]any{"text": text}}}},
			},
		})
	}
}

func failWith(status int) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"error":{"code":500,"message":"backend exploded","status":"INTERNAL"}}`))
	}
}

func TestTaskBreakdown(t *testing.T) {
	api, g := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models/test-model:generateContent", r.URL.Path)
		answer(`{"steps":["Skim chapter","Take notes"],"tips":"Use a timer"}`)(w, r)
	})

	b, ok := g.TaskBreakdown(context.Background(), "Study Bio", "")
	require.True(t, ok)
	assert.Equal(t, []string{"Skim chapter", "Take notes"}, b.Steps)
	assert.Equal(t, "Use a timer", b.Tips)

	require.Len(t, api.requests, 1)
	req := api.requests[0]
	require.NotNil(t, req.GenerationConfig)
	assert.Equal(t, "application/json", req.GenerationConfig.ResponseMIMEType)
	assert.Equal(t, []string{"steps", "tips"}, req.GenerationConfig.ResponseSchema.Required)
	assert.Contains(t, req.Contents[0].Parts[0].Text, "Study Bio")
}

func TestTaskBreakdown_CapsSteps(t *testing.T) {
	_, g := newFakeAPI(t, answer(`{"steps":["1","2","3","4","5","6","7"],"tips":"t"}`))

	b, ok := g.TaskBreakdown(context.Background(), "x", "")
	require.True(t, ok)
	assert.Equal(t, []string{"1", "2", "3", "4", "5"}, b.Steps)
}

func TestTaskBreakdown_CodeFence(t *testing.T) {
	_, g := newFakeAPI(t, answer("```json\n{\"steps\":[\"a\"],\"tips\":\"b\"}\n```"))

	b, ok := g.TaskBreakdown(context.Background(), "x", "")
	require.True(t, ok)
	assert.Equal(t, []string{"a"}, b.Steps)
}

func TestTaskBreakdown_RejectsMalformed(t *testing.T) {
	bodies := map[string]string{
		"not json":      "Sure! Here are some steps...",
		"missing tips":  `{"steps":["a"]}`,
		"missing steps": `{"tips":"t"}`,
		"steps string":  `{"steps":"a, b","tips":"t"}`,
		"steps numbers": `{"steps":[1,2],"tips":"t"}`,
		"empty steps":   `{"steps":["", "  "],"tips":"t"}`,
		"tips number":   `{"steps":["a"],"tips":3}`,
	}

	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			var fallbacks []string
			_, g := newFakeAPI(t, answer(body))
			g.onFallback = func(_ context.Context, capability string, err error) {
				assert.Error(t, err)
				fallbacks = append(fallbacks, capability)
			}

			b, ok := g.TaskBreakdown(context.Background(), "x", "")
			assert.False(t, ok)
			assert.Nil(t, b)
			assert.Equal(t, []string{CapabilityBreakdown}, fallbacks)
		})
	}
}

func TestTaskBreakdown_ServerError(t *testing.T) {
	_, g := newFakeAPI(t, failWith(http.StatusInternalServerError))

	b, ok := g.TaskBreakdown(context.Background(), "x", "")
	assert.False(t, ok)
	assert.Nil(t, b)
}

func TestDailyMotivation(t *testing.T) {
	api, g := newFakeAPI(t, answer(`  "Small steps every day build mountains."  `))

	quote := g.DailyMotivation(context.Background(), 4)
	assert.Equal(t, "Small steps every day build mountains.", quote)
	assert.Contains(t, api.requests[0].Contents[0].Parts[0].Text, "4 tasks")
}

func TestDailyMotivation_Fallback(t *testing.T) {
	var calls atomic.Int32
	_, g := newFakeAPI(t, failWith(http.StatusServiceUnavailable))
	g.onFallback = func(context.Context, string, error) { calls.Add(1) }

	assert.Equal(t, FallbackMotivation, g.DailyMotivation(context.Background(), 2))
	assert.Equal(t, int32(1), calls.Load())
}

func TestDailyMotivation_EmptyAnswer(t *testing.T) {
	_, g := newFakeAPI(t, answer(`""`))
	assert.Equal(t, FallbackMotivation, g.DailyMotivation(context.Background(), 2))
}

func TestSmartPriorityPlan_NoPendingSkipsNetwork(t *testing.T) {
	api, g := newFakeAPI(t, answer("should not be called"))

	assert.Equal(t, NoPendingPlan, g.SmartPriorityPlan(context.Background(), nil))
	assert.Equal(t, NoPendingPlan, g.SmartPriorityPlan(context.Background(), []model.Task{}))
	assert.Equal(t, int32(0), api.hits.Load())
}

func TestSmartPriorityPlan(t *testing.T) {
	api, g := newFakeAPI(t, answer("Start with the essay.\n"))

	plan := g.SmartPriorityPlan(context.Background(), []model.Task{
		{ID: "1", Title: "Essay", DueDate: "2024-06-01", Priority: model.PriorityHigh},
		{ID: "2", Title: "Flashcards", DueDate: "2024-06-03", Priority: model.PriorityLow},
	})
	assert.Equal(t, "Start with the essay.", plan)

	prompt := api.requests[0].Contents[0].Parts[0].Text
	assert.Contains(t, prompt, "- Essay (priority: high, due: 2024-06-01)")
	assert.Contains(t, prompt, "- Flashcards (priority: low, due: 2024-06-03)")
}

func TestSmartPriorityPlan_Fallback(t *testing.T) {
	_, g := newFakeAPI(t, failWith(http.StatusBadRequest))

	plan := g.SmartPriorityPlan(context.Background(), []model.Task{{ID: "1", Title: "x", Priority: model.PriorityLow}})
	assert.Equal(t, FallbackPlan, plan)
}

func TestNoAPIKey(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { hits.Add(1) }))
	t.Cleanup(srv.Close)

	g := NewGemini(Config{BaseURL: srv.URL}, discard)
	ctx := context.Background()

	_, ok := g.TaskBreakdown(ctx, "x", "")
	assert.False(t, ok)
	assert.Equal(t, FallbackMotivation, g.DailyMotivation(ctx, 1))
	assert.Equal(t, FallbackPlan, g.SmartPriorityPlan(ctx, []model.Task{{ID: "1", Priority: model.PriorityLow}}))
	assert.Equal(t, []string{ChatFailure}, collect(g.NewChat().Send(ctx, "hi")))
	assert.Equal(t, int32(0), hits.Load())
}

// sse writes each fragment as one streamed candidate.
func sse(fragments ...string) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, f := range fragments {
			chunk, _ := json.Marshal(map[string]any{
				"candidates": []any{
					map[string]any{"content": map[string]any{"role": "model", "parts": []any{map[string]any{"text": f}}}},
				},
			})
			_, _ = fmt.Fprintf(w, "data: %s\r\n\r\n", chunk)
			w.(http.Flusher).Flush()
		}
	}
}

func collect(seq func(func(string) bool)) []string {
	var out []string
	for s := range seq {
		out = append(out, s)
	}
	return out
}

func TestChat_Stream(t *testing.T) {
	api, g := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models/test-model:streamGenerateContent", r.URL.Path)
		assert.Equal(t, "sse", r.URL.Query().Get("alt"))
		sse("Photo", "synthesis turns ", "light into sugar.")(w, r)
	})
	chat := g.NewChat()
	assert.Equal(t, ChatGreeting, chat.Greeting())

	fragments := collect(chat.Send(context.Background(), "  What is photosynthesis?  "))
	assert.Equal(t, []string{"Photo", "synthesis turns ", "light into sugar."}, fragments)
	assert.Equal(t, "Photosynthesis turns light into sugar.", strings.Join(fragments, ""))

	assert.Equal(t, []model.ChatMessage{
		{Role: model.RoleUser, Text: "What is photosynthesis?"},
		{Role: model.RoleModel, Text: "Photosynthesis turns light into sugar."},
	}, chat.History())

	req := api.requests[0]
	require.NotNil(t, req.SystemInstruction)
	assert.Contains(t, req.SystemInstruction.Parts[0].Text, "FocusFlow AI")
}

func TestChat_CarriesHistory(t *testing.T) {
	api, g := newFakeAPI(t, sse("ok"))
	chat := g.NewChat()
	ctx := context.Background()

	collect(chat.Send(ctx, "first"))
	collect(chat.Send(ctx, "second"))

	require.Len(t, api.requests, 2)
	contents := api.requests[1].Contents
	require.Len(t, contents, 3)
	assert.Equal(t, "user", contents[0].Role)
	assert.Equal(t, "model", contents[1].Role)
	assert.Equal(t, "second", contents[2].Parts[0].Text)
	assert.Len(t, chat.History(), 4)
}

func TestChat_IsLazy(t *testing.T) {
	api, g := newFakeAPI(t, sse("ok"))

	seq := g.NewChat().Send(context.Background(), "hello")
	assert.Equal(t, int32(0), api.hits.Load(), "nothing sent before ranging")

	collect(seq)
	assert.Equal(t, int32(1), api.hits.Load())
}

func TestChat_Failure(t *testing.T) {
	var failed atomic.Int32
	_, g := newFakeAPI(t, failWith(http.StatusInternalServerError))
	g.onFallback = func(_ context.Context, capability string, _ error) {
		assert.Equal(t, CapabilityChat, capability)
		failed.Add(1)
	}
	chat := g.NewChat()

	assert.Equal(t, []string{ChatFailure}, collect(chat.Send(context.Background(), "hi")))
	assert.Empty(t, chat.History(), "failed turns are not recorded")
	assert.Equal(t, int32(1), failed.Load())
}

func TestChat_FailureMidStreamEndsTurn(t *testing.T) {
	var failed atomic.Int32
	_, g := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		sse("Photosynthesis ", "turns light")(w, r)
		_, _ = fmt.Fprint(w, "data: {not json\r\n\r\n")
	})
	g.onFallback = func(context.Context, string, error) { failed.Add(1) }
	chat := g.NewChat()

	fragments := collect(chat.Send(context.Background(), "hi"))
	assert.Equal(t, []string{"Photosynthesis ", "turns light"}, fragments)
	assert.NotContains(t, fragments, ChatFailure)
	assert.Empty(t, chat.History(), "interrupted turns are not recorded")
	assert.Equal(t, int32(1), failed.Load())
}

func TestChat_EarlyBreakDiscardsTurn(t *testing.T) {
	_, g := newFakeAPI(t, sse("one", "two", "three"))
	chat := g.NewChat()

	for range chat.Send(context.Background(), "hi") {
		break
	}
	assert.Empty(t, chat.History())
}

func TestChat_CancelledContextDiscardsTurn(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, g := newFakeAPI(t, sse("one", "two"))
	chat := g.NewChat()

	var got []string
	for f := range chat.Send(ctx, "hi") {
		got = append(got, f)
		cancel()
	}
	assert.NotEmpty(t, got)
	assert.Empty(t, chat.History())
}

func TestChat_EmptyMessage(t *testing.T) {
	api, g := newFakeAPI(t, sse("x"))
	assert.Empty(t, collect(g.NewChat().Send(context.Background(), "   ")))
	assert.Equal(t, int32(0), api.hits.Load())
}
