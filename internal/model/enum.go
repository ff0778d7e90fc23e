package model

import (
	"fmt"
	"strings"
)

// Priority is the urgency of a task. The zero value is not a valid priority.
type Priority uint8

const (
	PriorityLow Priority = iota + 1
	PriorityMedium
	PriorityHigh
)

var priorityNames = map[Priority]string{
	PriorityLow:    "low",
	PriorityMedium: "medium",
	PriorityHigh:   "high",
}

// ParsePriority returns the priority named by s, ignoring case.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return PriorityLow, nil
	case "medium":
		return PriorityMedium, nil
	case "high":
		return PriorityHigh, nil
	}
	return 0, fmt.Errorf("unknown priority %q", s)
}

// String returns the lowercase name, or "" for an invalid priority.
func (p Priority) String() string {
	return priorityNames[p]
}

// Valid reports whether p is one of the three defined priorities.
func (p Priority) Valid() bool {
	_, ok := priorityNames[p]
	return ok
}

// Rank orders priorities for display: high first.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	case PriorityLow:
		return 2
	}
	return 3
}

func (p Priority) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("invalid priority %d", uint8(p))
	}
	return []byte(p.String()), nil
}

func (p *Priority) UnmarshalText(b []byte) error {
	v, err := ParsePriority(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// FilterMode selects which tasks a list view shows.
type FilterMode uint8

const (
	FilterAll FilterMode = iota
	FilterPending
	FilterCompleted
)

// ParseFilterMode parses all, pending or completed. Empty input means all.
func ParseFilterMode(s string) (FilterMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all":
		return FilterAll, nil
	case "pending":
		return FilterPending, nil
	case "completed":
		return FilterCompleted, nil
	}
	return 0, fmt.Errorf("unknown filter %q", s)
}

func (m FilterMode) String() string {
	switch m {
	case FilterPending:
		return "pending"
	case FilterCompleted:
		return "completed"
	}
	return "all"
}

// SortKey selects the display order of a list view.
type SortKey uint8

const (
	SortByDate SortKey = iota
	SortByPriority
	SortByStatus
)

// ParseSortKey parses date, priority or status. Empty input means date.
func ParseSortKey(s string) (SortKey, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "date":
		return SortByDate, nil
	case "priority":
		return SortByPriority, nil
	case "status":
		return SortByStatus, nil
	}
	return 0, fmt.Errorf("unknown sort key %q", s)
}

func (k SortKey) String() string {
	switch k {
	case SortByPriority:
		return "priority"
	case SortByStatus:
		return "status"
	}
	return "date"
}
