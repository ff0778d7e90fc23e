// Package view computes read-only projections of a task list: filtered and
// sorted display lists and dashboard statistics. Nothing here mutates its
// input.
package view

import (
	"cmp"
	"math"
	"slices"

	"github.com/hiroki-koketsu/focusflow/internal/model"
)

// Filter returns the tasks matching mode in their original order.
func Filter(tasks []model.Task, mode model.FilterMode) []model.Task {
	if mode == model.FilterAll {
		return slices.Clone(tasks)
	}

	want := mode == model.FilterCompleted
	out := make([]model.Task, 0, len(tasks))
	for _, t := range tasks {
		if t.Completed == want {
			out = append(out, t)
		}
	}
	return out
}

// Sort returns a stably sorted copy of tasks.
func Sort(tasks []model.Task, key model.SortKey) []model.Task {
	out := slices.Clone(tasks)

	switch key {
	case model.SortByPriority:
		slices.SortStableFunc(out, func(a, b model.Task) int {
			return cmp.Compare(a.Priority.Rank(), b.Priority.Rank())
		})
	case model.SortByStatus:
		slices.SortStableFunc(out, func(a, b model.Task) int {
			return cmp.Compare(statusRank(a), statusRank(b))
		})
	default:
		slices.SortStableFunc(out, compareDue)
	}
	return out
}

// Display is the list a user sees: Sort(Filter(tasks, mode), key).
func Display(tasks []model.Task, mode model.FilterMode, key model.SortKey) []model.Task {
	return Sort(Filter(tasks, mode), key)
}

// Statistics summarizes the whole list relative to today (YYYY-MM-DD).
func Statistics(tasks []model.Task, today string) model.Statistics {
	var s model.Statistics
	for _, t := range tasks {
		s.Total++
		if t.Completed {
			s.Completed++
		}
		if t.DueDate == today {
			s.TotalToday++
			if t.Completed {
				s.CompletedToday++
			}
		}
	}

	s.Pending = s.Total - s.Completed
	if s.Total > 0 {
		s.Progress = int(math.Round(float64(s.Completed) / float64(s.Total) * 100))
	}
	return s
}

func statusRank(t model.Task) int {
	if t.Completed {
		return 1
	}
	return 0
}

// compareDue orders by calendar date. Unparsable dates go last.
func compareDue(a, b model.Task) int {
	da, okA := a.Due()
	db, okB := b.Due()
	switch {
	case okA && okB:
		return da.Compare(db)
	case okA:
		return -1
	case okB:
		return 1
	}
	return 0
}
