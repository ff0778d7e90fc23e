// Package advisor wraps the generative-language service behind four
// capabilities. Every capability absorbs its own failures and hands back a
// fixed fallback, so callers never see an error from this package.
package advisor

import (
	"context"

	"github.com/hiroki-koketsu/focusflow/internal/model"
)

// Fixed texts returned when the service cannot be used.
const (
	FallbackMotivation = "Success is the sum of small efforts, repeated day in and day out."
	FallbackPlan       = "Focus on the highest-priority tasks with the nearest deadlines first."
	NoPendingPlan      = "You have no pending tasks. Take the chance to rest or plan tomorrow!"
	ChatGreeting       = "Hi! I'm your FocusFlow study assistant. How can I help you shine today?"
	ChatFailure        = "Sorry, I ran into a technical problem. Could you say that again?"
)

// MaxSteps caps the number of steps kept from a task breakdown.
const MaxSteps = 5

// Capability names, used in logs and metrics.
const (
	CapabilityBreakdown  = "task_breakdown"
	CapabilityMotivation = "daily_motivation"
	CapabilityPlan       = "smart_priority_plan"
	CapabilityChat       = "chat"
)

// Advisor is what the rest of the application needs from the service.
type Advisor interface {
	// TaskBreakdown splits a task into at most MaxSteps steps plus a tip.
	// ok is false when no usable answer came back.
	TaskBreakdown(ctx context.Context, title, description string) (b *model.Breakdown, ok bool)
	// DailyMotivation returns a short motivational sentence.
	DailyMotivation(ctx context.Context, pendingCount int) string
	// SmartPriorityPlan suggests what to tackle first among pending tasks.
	SmartPriorityPlan(ctx context.Context, pending []model.Task) string
	// NewChat opens a study-assistant conversation.
	NewChat() *ChatSession
}

// FallbackHook is told about every call that ended in a fallback.
type FallbackHook func(ctx context.Context, capability string, err error)
