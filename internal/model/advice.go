package model

// Statistics summarizes the full task list for the dashboard.
type Statistics struct {
	Total          int `json:"total"`
	Completed      int `json:"completed"`
	Pending        int `json:"pending"`
	Progress       int `json:"progress"`
	TotalToday     int `json:"totalToday"`
	CompletedToday int `json:"completedToday"`
}

// Breakdown is an advisor's split of a task into actionable steps.
type Breakdown struct {
	Steps []string `json:"steps"`
	Tips  string   `json:"tips"`
}

// ChatRole identifies the author of a chat message.
type ChatRole string

const (
	RoleUser  ChatRole = "user"
	RoleModel ChatRole = "model"
)

// ChatMessage is one turn of a study-assistant conversation.
type ChatMessage struct {
	Role ChatRole `json:"role"`
	Text string   `json:"text"`
}
