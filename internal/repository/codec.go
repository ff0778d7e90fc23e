package repository

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hiroki-koketsu/focusflow/internal/model"
)

// SchemaVersion tags the persisted envelope. A bare JSON array (the format
// written by the browser build) decodes as schema 0.
const SchemaVersion = 1

type envelope struct {
	Schema   int          `json:"schema"`
	Revision uint64       `json:"revision"`
	Tasks    []model.Task `json:"tasks"`
}

func encode(tasks []model.Task, revision uint64) (string, error) {
	if tasks == nil {
		tasks = []model.Task{}
	}
	data, err := json.Marshal(envelope{Schema: SchemaVersion, Revision: revision, Tasks: tasks})
	if err != nil {
		return "", fmt.Errorf("encode tasks: %w", err)
	}
	return string(data), nil
}

// decode parses a stored blob and checks the repository invariants.
func decode(blob string) ([]model.Task, uint64, error) {
	raw := bytes.TrimSpace([]byte(blob))

	var env envelope
	if len(raw) > 0 && raw[0] == '[' {
		tasks, err := decodeLegacy(raw)
		if err != nil {
			return nil, 0, err
		}
		env.Tasks = tasks
	} else {
		if err := json.Unmarshal(raw, &env); err != nil {
			return nil, 0, fmt.Errorf("decode task envelope: %w", err)
		}
		if env.Schema != SchemaVersion {
			return nil, 0, fmt.Errorf("unsupported schema version %d", env.Schema)
		}
	}

	seen := make(map[string]struct{}, len(env.Tasks))
	for i, t := range env.Tasks {
		if t.ID == "" {
			return nil, 0, fmt.Errorf("task %d: missing id", i)
		}
		if _, dup := seen[t.ID]; dup {
			return nil, 0, fmt.Errorf("task %d: duplicate id %q", i, t.ID)
		}
		seen[t.ID] = struct{}{}
		if !t.Priority.Valid() {
			return nil, 0, fmt.Errorf("task %q: missing priority", t.ID)
		}
	}

	if env.Tasks == nil {
		env.Tasks = []model.Task{}
	}
	return env.Tasks, env.Revision, nil
}

// legacyTask is a task as the browser build stored it. Its priority is the
// display label of the browser enum rather than a priority name.
type legacyTask struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	DueDate     string `json:"dueDate"`
	Priority    string `json:"priority"`
	Completed   bool   `json:"completed"`
	CreatedAt   int64  `json:"createdAt"`
}

func decodeLegacy(raw []byte) ([]model.Task, error) {
	var legacy []legacyTask
	if err := json.Unmarshal(raw, &legacy); err != nil {
		return nil, fmt.Errorf("decode legacy task list: %w", err)
	}

	tasks := make([]model.Task, 0, len(legacy))
	for i, lt := range legacy {
		p, err := legacyPriority(lt.Priority)
		if err != nil {
			return nil, fmt.Errorf("legacy task %d: %w", i, err)
		}
		tasks = append(tasks, model.Task{
			ID:          lt.ID,
			Title:       lt.Title,
			Description: lt.Description,
			DueDate:     lt.DueDate,
			Priority:    p,
			Completed:   lt.Completed,
			CreatedAt:   lt.CreatedAt,
		})
	}
	return tasks, nil
}

// legacyPriority accepts the browser enum labels (Baixa, Média, Alta), the
// enum keys (LOW, MEDIUM, HIGH) and the current names.
func legacyPriority(s string) (model.Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "baixa":
		return model.PriorityLow, nil
	case "média", "media":
		return model.PriorityMedium, nil
	case "alta":
		return model.PriorityHigh, nil
	}
	return model.ParsePriority(s)
}

// storedRevision reads only the revision of a blob; unreadable blobs report 0.
func storedRevision(blob string) uint64 {
	var env struct {
		Revision uint64 `json:"revision"`
	}
	if err := json.Unmarshal([]byte(blob), &env); err != nil {
		return 0
	}
	return env.Revision
}
