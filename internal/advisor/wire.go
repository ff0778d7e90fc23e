package advisor

import (
	"fmt"
	"strings"

	"github.com/hiroki-koketsu/focusflow/internal/model"
)

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type schema struct {
	Type        string             `json:"type"`
	Description string             `json:"description,omitempty"`
	Properties  map[string]*schema `json:"properties,omitempty"`
	Items       *schema            `json:"items,omitempty"`
	Required    []string           `json:"required,omitempty"`
}

type generationConfig struct {
	ResponseMIMEType string  `json:"responseMimeType,omitempty"`
	ResponseSchema   *schema `json:"responseSchema,omitempty"`
}

type generateRequest struct {
	Contents          []content         `json:"contents"`
	SystemInstruction *content          `json:"systemInstruction,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback,omitempty"`
}

// text joins the parts of the first candidate.
func (r generateResponse) text() string {
	if len(r.Candidates) == 0 {
		return ""
	}
	var b strings.Builder
	for _, p := range r.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	return b.String()
}

type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func userText(text string) content {
	return content{Role: "user", Parts: []part{{Text: text}}}
}

func chatContents(history []model.ChatMessage) []content {
	out := make([]content, 0, len(history))
	for _, m := range history {
		out = append(out, content{Role: string(m.Role), Parts: []part{{Text: m.Text}}})
	}
	return out
}

var breakdownSchema = &schema{
	Type: "OBJECT",
	Properties: map[string]*schema{
		"steps": {
			Type:        "ARRAY",
			Items:       &schema{Type: "STRING"},
			Description: "Ordered steps that complete the task",
		},
		"tips": {
			Type:        "STRING",
			Description: "One short study tip",
		},
	},
	Required: []string{"steps", "tips"},
}

const studyTutorInstruction = "You are FocusFlow AI, a friendly and highly efficient study tutor. " +
	"Help students understand hard subjects, give memorization tips, organize schedules and keep them motivated. " +
	"Be concise, format with markdown and always encourage focus."

func breakdownPrompt(title, description string) string {
	if strings.TrimSpace(description) == "" {
		description = "None"
	}
	return fmt.Sprintf(`As a study mentor, help the student break this task into actionable steps: %q.
Additional description: %q.
Give at most %d short, objective steps and one productivity tip.`, title, description, MaxSteps)
}

func motivationPrompt(pending int) string {
	return fmt.Sprintf("Write one short (at most 15 words), friendly and motivating sentence for a student "+
		"who has %d tasks to do today. Use inspiring language focused on perseverance.", pending)
}

func planPrompt(pending []model.Task) string {
	var b strings.Builder
	b.WriteString("Analyze the following student tasks and suggest a quick plan of attack (at most 50 words). ")
	b.WriteString("Say which task to focus on first and why, briefly and directly:\n")
	for _, t := range pending {
		fmt.Fprintf(&b, "- %s (priority: %s, due: %s)\n", t.Title, t.Priority, t.DueDate)
	}
	return b.String()
}
