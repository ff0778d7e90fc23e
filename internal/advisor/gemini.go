package advisor

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hiroki-koketsu/focusflow/internal/model"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/hiroki-koketsu/focusflow/internal/advisor")

const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com"
	DefaultModel   = "gemini-3-flash-preview"
	DefaultTimeout = 30 * time.Second

	maxSSELine = 1 << 20
)

var (
	errNoAPIKey   = errors.New("generative language API key not set")
	errEmptyReply = errors.New("empty chat reply")
)

// Config configures the Gemini client.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	// Timeout bounds each non-streaming call. Chat streams are bounded only
	// by the caller's context.
	Timeout time.Duration
}

// Gemini talks to the Generative Language REST API.
type Gemini struct {
	apiKey     string
	baseURL    string
	model      string
	timeout    time.Duration
	client     *http.Client
	logger     *slog.Logger
	onFallback FallbackHook
}

var _ Advisor = (*Gemini)(nil)

// Option configures a Gemini client.
type Option func(*Gemini)

// WithHTTPClient replaces the instrumented default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(g *Gemini) { g.client = c }
}

// WithFallbackHook registers a hook run on every degraded call.
func WithFallbackHook(fn FallbackHook) Option {
	return func(g *Gemini) { g.onFallback = fn }
}

// NewGemini creates a client. Without an API key every capability falls back
// immediately.
func NewGemini(cfg Config, logger *slog.Logger, opts ...Option) *Gemini {
	g := &Gemini{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.Model,
		timeout: cfg.Timeout,
		client:  &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		logger:  logger,
	}
	if g.baseURL == "" {
		g.baseURL = DefaultBaseURL
	}
	if g.model == "" {
		g.model = DefaultModel
	}
	if g.timeout <= 0 {
		g.timeout = DefaultTimeout
	}
	for _, opt := range opts {
		opt(g)
	}

	if g.apiKey == "" {
		logger.Warn("no generative language API key configured; advisory features will use fallbacks")
	}
	return g
}

// TaskBreakdown asks for a step list and a tip, validating the JSON shape.
func (g *Gemini) TaskBreakdown(ctx context.Context, title, description string) (*model.Breakdown, bool) {
	ctx, span := tracer.Start(ctx, "Gemini.TaskBreakdown")
	defer span.End()

	text, err := g.generate(ctx, generateRequest{
		Contents: []content{userText(breakdownPrompt(title, description))},
		GenerationConfig: &generationConfig{
			ResponseMIMEType: "application/json",
			ResponseSchema:   breakdownSchema,
		},
	})
	if err == nil {
		var b *model.Breakdown
		if b, err = parseBreakdown(text); err == nil {
			span.SetAttributes(attribute.Int("breakdown.steps", len(b.Steps)))
			return b, true
		}
	}

	g.fallback(ctx, span, CapabilityBreakdown, err)
	return nil, false
}

// DailyMotivation returns one sentence, or FallbackMotivation.
func (g *Gemini) DailyMotivation(ctx context.Context, pendingCount int) string {
	ctx, span := tracer.Start(ctx, "Gemini.DailyMotivation",
		trace.WithAttributes(attribute.Int("task.pending", pendingCount)),
	)
	defer span.End()

	text, err := g.generate(ctx, generateRequest{
		Contents: []content{userText(motivationPrompt(pendingCount))},
	})
	if err == nil {
		if quote := trimQuotes(text); quote != "" {
			return quote
		}
		err = errors.New("empty motivation")
	}

	g.fallback(ctx, span, CapabilityMotivation, err)
	return FallbackMotivation
}

// SmartPriorityPlan returns NoPendingPlan without a request when nothing is
// pending, the model's plan otherwise, or FallbackPlan on failure.
func (g *Gemini) SmartPriorityPlan(ctx context.Context, pending []model.Task) string {
	if len(pending) == 0 {
		return NoPendingPlan
	}

	ctx, span := tracer.Start(ctx, "Gemini.SmartPriorityPlan",
		trace.WithAttributes(attribute.Int("task.pending", len(pending))),
	)
	defer span.End()

	text, err := g.generate(ctx, generateRequest{
		Contents: []content{userText(planPrompt(pending))},
	})
	if err == nil {
		if plan := strings.TrimSpace(text); plan != "" {
			return plan
		}
		err = errors.New("empty plan")
	}

	g.fallback(ctx, span, CapabilityPlan, err)
	return FallbackPlan
}

// NewChat opens a conversation with the study-tutor instruction.
func (g *Gemini) NewChat() *ChatSession {
	return newChatSession(g.streamChat, g.logger, g.onFallback)
}

func (g *Gemini) streamChat(ctx context.Context, history []model.ChatMessage) iter.Seq2[string, error] {
	return g.stream(ctx, generateRequest{
		Contents:          chatContents(history),
		SystemInstruction: &content{Parts: []part{{Text: studyTutorInstruction}}},
	})
}

func (g *Gemini) fallback(ctx context.Context, span trace.Span, capability string, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, "fallback")
	g.logger.WarnContext(ctx, "advisor call failed, using fallback",
		slog.String("capability", capability),
		slog.Any("error", err),
	)
	if g.onFallback != nil {
		g.onFallback(ctx, capability, err)
	}
}

func (g *Gemini) endpoint(method string) string {
	return fmt.Sprintf("%s/v1beta/models/%s:%s", g.baseURL, g.model, method)
}

func (g *Gemini) newRequest(ctx context.Context, url string, req generateRequest) (*http.Request, error) {
	if g.apiKey == "" {
		return nil, errNoAPIKey
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", g.apiKey)
	return httpReq, nil
}

// generate performs one generateContent call and returns the answer text.
func (g *Gemini) generate(ctx context.Context, req generateRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	httpReq, err := g.newRequest(ctx, g.endpoint("generateContent"), req)
	if err != nil {
		return "", err
	}

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", statusError(resp.StatusCode, respBody)
	}

	var out generateResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if out.PromptFeedback != nil && out.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("prompt blocked: %s", out.PromptFeedback.BlockReason)
	}

	text := out.text()
	if strings.TrimSpace(text) == "" {
		return "", errors.New("response has no text")
	}
	return text, nil
}

// stream performs a streamGenerateContent call and yields text fragments as
// server-sent events arrive.
func (g *Gemini) stream(ctx context.Context, req generateRequest) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		httpReq, err := g.newRequest(ctx, g.endpoint("streamGenerateContent")+"?alt=sse", req)
		if err != nil {
			yield("", err)
			return
		}

		resp, err := g.client.Do(httpReq)
		if err != nil {
			yield("", fmt.Errorf("HTTP request failed: %w", err))
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			yield("", statusError(resp.StatusCode, body))
			return
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), maxSSELine)
		for scanner.Scan() {
			data, ok := strings.CutPrefix(scanner.Text(), "data:")
			if !ok {
				continue
			}

			var chunk generateResponse
			if err := json.Unmarshal([]byte(strings.TrimSpace(data)), &chunk); err != nil {
				yield("", fmt.Errorf("failed to decode stream chunk: %w", err))
				return
			}
			if text := chunk.text(); text != "" {
				if !yield(text, nil) {
					return
				}
			}
		}
		if err := scanner.Err(); err != nil {
			yield("", fmt.Errorf("failed to read stream: %w", err))
		}
	}
}

func statusError(status int, body []byte) error {
	var apiErr apiError
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Message != "" {
		return fmt.Errorf("generative language API error (%d): %s", status, apiErr.Error.Message)
	}
	return fmt.Errorf("generative language API error (%d): %s", status, string(body))
}

// parseBreakdown accepts only {"steps": [string...], "tips": string} with at
// least one non-blank step and a non-blank tip.
func parseBreakdown(text string) (*model.Breakdown, error) {
	var payload struct {
		Steps *[]string `json:"steps"`
		Tips  *string   `json:"tips"`
	}
	if err := json.Unmarshal([]byte(stripCodeFence(text)), &payload); err != nil {
		return nil, fmt.Errorf("malformed breakdown: %w", err)
	}
	if payload.Steps == nil {
		return nil, errors.New("breakdown missing steps")
	}
	if payload.Tips == nil || strings.TrimSpace(*payload.Tips) == "" {
		return nil, errors.New("breakdown missing tips")
	}

	steps := make([]string, 0, MaxSteps)
	for _, s := range *payload.Steps {
		if s = strings.TrimSpace(s); s != "" {
			steps = append(steps, s)
		}
		if len(steps) == MaxSteps {
			break
		}
	}
	if len(steps) == 0 {
		return nil, errors.New("breakdown has no steps")
	}

	return &model.Breakdown{Steps: steps, Tips: strings.TrimSpace(*payload.Tips)}, nil
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func trimQuotes(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, `"`)
	s = strings.TrimSuffix(s, `"`)
	return strings.TrimSpace(s)
}
