package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/hay-kot/criterio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskInput_Validate(t *testing.T) {
	tests := []struct {
		name    string
		input   TaskInput
		wantErr bool
		field   string
	}{
		{
			name:  "valid",
			input: TaskInput{Title: "Study Bio", DueDate: "2024-06-01", Priority: PriorityHigh},
		},
		{
			name:    "empty title",
			input:   TaskInput{Title: "", DueDate: "2024-06-01", Priority: PriorityHigh},
			wantErr: true,
			field:   "title",
		},
		{
			name:    "whitespace title",
			input:   TaskInput{Title: "   \t", DueDate: "2024-06-01", Priority: PriorityLow},
			wantErr: true,
			field:   "title",
		},
		{
			name:    "invalid date",
			input:   TaskInput{Title: "Essay", DueDate: "2024-13-40", Priority: PriorityLow},
			wantErr: true,
			field:   "dueDate",
		},
		{
			name:    "date with time",
			input:   TaskInput{Title: "Essay", DueDate: "2024-06-01T10:00:00Z", Priority: PriorityLow},
			wantErr: true,
			field:   "dueDate",
		},
		{
			name:    "missing priority",
			input:   TaskInput{Title: "Essay", DueDate: "2024-06-01"},
			wantErr: true,
			field:   "priority",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.input.Validate()
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}

			require.ErrorIs(t, err, ErrInvalidTask)

			var fieldErrs criterio.FieldErrors
			require.ErrorAs(t, err, &fieldErrs)
			require.Len(t, fieldErrs, 1)
			assert.Equal(t, tt.field, fieldErrs[0].Field)
		})
	}
}

func TestTaskInput_Normalize(t *testing.T) {
	in := TaskInput{Title: "  Read chapter 3 ", Description: " notes\n", DueDate: " 2024-06-01 "}.Normalize()

	assert.Equal(t, "Read chapter 3", in.Title)
	assert.Equal(t, "notes", in.Description)
	assert.Equal(t, "2024-06-01", in.DueDate)
}

func TestPriority_JSON(t *testing.T) {
	data, err := json.Marshal(Task{ID: "a", Title: "x", DueDate: "2024-06-01", Priority: PriorityMedium})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"priority":"medium"`)

	var task Task
	require.NoError(t, json.Unmarshal([]byte(`{"priority":"HIGH"}`), &task))
	assert.Equal(t, PriorityHigh, task.Priority)

	err = json.Unmarshal([]byte(`{"priority":"urgent"}`), &task)
	assert.Error(t, err)

	_, err = json.Marshal(Task{Priority: 0})
	assert.Error(t, err, "zero priority must not serialize")
}

func TestPriority_Rank(t *testing.T) {
	assert.Less(t, PriorityHigh.Rank(), PriorityMedium.Rank())
	assert.Less(t, PriorityMedium.Rank(), PriorityLow.Rank())
}

func TestParseFilterMode(t *testing.T) {
	for in, want := range map[string]FilterMode{
		"":          FilterAll,
		"all":       FilterAll,
		"Pending":   FilterPending,
		"completed": FilterCompleted,
	} {
		got, err := ParseFilterMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseFilterMode("done")
	assert.Error(t, err)
}

func TestParseSortKey(t *testing.T) {
	for in, want := range map[string]SortKey{
		"":         SortByDate,
		"date":     SortByDate,
		"priority": SortByPriority,
		"STATUS":   SortByStatus,
	} {
		got, err := ParseSortKey(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseSortKey("title")
	assert.Error(t, err)
}

func TestToday(t *testing.T) {
	loc := time.FixedZone("UTC-3", -3*60*60)
	now := time.Date(2024, 6, 2, 1, 30, 0, 0, time.UTC)

	assert.Equal(t, "2024-06-01", Today(now, loc))
	assert.Equal(t, "2024-06-02", Today(now, time.UTC))
}
