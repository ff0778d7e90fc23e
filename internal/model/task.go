package model

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hay-kot/criterio"
)

// DateLayout is the calendar-date format used for due dates.
const DateLayout = "2006-01-02"

// Task represents a single study item in the system.
type Task struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	DueDate     string   `json:"dueDate"`
	Priority    Priority `json:"priority"`
	Completed   bool     `json:"completed"`
	CreatedAt   int64    `json:"createdAt"`
}

// Created returns the creation timestamp as a time.Time.
func (t Task) Created() time.Time {
	return time.UnixMilli(t.CreatedAt)
}

// Due parses the due date. ok is false when the stored value is not a valid date.
func (t Task) Due() (time.Time, bool) {
	d, err := time.Parse(DateLayout, t.DueDate)
	return d, err == nil
}

// TaskInput holds the caller-supplied fields of a task. Identity, completion
// state and creation time are never part of it.
type TaskInput struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	DueDate     string   `json:"dueDate"`
	Priority    Priority `json:"priority"`
}

// Normalize trims surrounding whitespace from the text fields.
func (in TaskInput) Normalize() TaskInput {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.DueDate = strings.TrimSpace(in.DueDate)
	return in
}

// Validate checks that the input can be stored. The returned error wraps
// ErrInvalidTask and a criterio.FieldErrors describing each failing field.
func (in TaskInput) Validate() error {
	err := criterio.ValidateStruct(
		criterio.Run("title", in.Title, requiredText),
		criterio.Run("dueDate", in.DueDate, calendarDate),
		criterio.Run("priority", in.Priority.String(), priorityName),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidTask, err)
	}
	return nil
}

func requiredText(s string) error {
	if strings.TrimSpace(s) == "" {
		return errors.New("is required")
	}
	return nil
}

func calendarDate(s string) error {
	if _, err := time.Parse(DateLayout, strings.TrimSpace(s)); err != nil {
		return fmt.Errorf("must be a date in YYYY-MM-DD form, got %q", s)
	}
	return nil
}

func priorityName(s string) error {
	if _, err := ParsePriority(s); err != nil {
		return err
	}
	return nil
}

// Today formats now as a calendar date in loc.
func Today(now time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return now.In(loc).Format(DateLayout)
}

// TaskError represents a domain error for tasks.
type TaskError struct {
	Message string
}

func (e TaskError) Error() string {
	return e.Message
}

var (
	ErrTaskNotFound = TaskError{Message: "task not found"}
	ErrInvalidTask  = TaskError{Message: "invalid task"}
)
