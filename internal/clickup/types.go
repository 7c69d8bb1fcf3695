package clickup

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"
)

// FlexString decodes JSON values ClickUp sends either as strings or as numbers.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = FlexString(n.String())
	return nil
}

func (f FlexString) String() string {
	return string(f)
}

// Task is the subset of a ClickUp task the sync core reads.
type Task struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	TextContent string        `json:"text_content"`
	Status      TaskStatus    `json:"status"`
	Priority    *TaskPriority `json:"priority"`
	DueDate     FlexString    `json:"due_date"`
	URL         string        `json:"url"`
	Assignees   []User        `json:"assignees"`
	List        ListRef       `json:"list"`
}

// Due returns the parsed due date, if any.
func (t *Task) Due() (time.Time, bool) {
	return ParseMillis(string(t.DueDate))
}

// TaskStatus is the status object embedded in a task.
type TaskStatus struct {
	Status string `json:"status"`
	Color  string `json:"color,omitempty"`
	Type   string `json:"type,omitempty"`
}

// TaskPriority is the priority object embedded in a task. ID is the numeric level 1..4.
type TaskPriority struct {
	ID       FlexString `json:"id"`
	Priority string     `json:"priority"`
}

// Level returns the numeric priority level, or zero if unset.
func (p *TaskPriority) Level() int {
	if p == nil {
		return 0
	}
	n, err := strconv.Atoi(string(p.ID))
	if err != nil {
		return 0
	}
	return n
}

// User is a ClickUp member reference.
type User struct {
	ID       FlexString `json:"id"`
	Username string     `json:"username"`
	Email    string     `json:"email"`
}

// ListRef is the list a task belongs to.
type ListRef struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// List is a ClickUp list with its provisioned statuses.
type List struct {
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	Statuses []TaskStatus `json:"statuses"`
}

// Workspace is a ClickUp team (workspace).
type Workspace struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Space is a ClickUp space.
type Space struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Comment is a comment on a task.
type Comment struct {
	ID          FlexString `json:"id"`
	CommentText string     `json:"comment_text"`
	User        User       `json:"user"`
	Date        FlexString `json:"date"`
}

// CustomFieldValue sets a custom field on task creation.
type CustomFieldValue struct {
	ID    string `json:"id"`
	Value any    `json:"value"`
}

// CreateTaskRequest is the body of POST /list/{id}/task.
type CreateTaskRequest struct {
	Name         string             `json:"name"`
	Description  string             `json:"description,omitempty"`
	Status       string             `json:"status,omitempty"`
	Priority     *int               `json:"priority,omitempty"`
	DueDate      *int64             `json:"due_date,omitempty"`
	DueDateTime  bool               `json:"due_date_time,omitempty"`
	CustomFields []CustomFieldValue `json:"custom_fields,omitempty"`
}

// UpdateTaskRequest is the body of PUT /task/{id}. Nil fields are left untouched.
type UpdateTaskRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Status      *string `json:"status,omitempty"`
	Priority    *int    `json:"priority,omitempty"`
	DueDate     *int64  `json:"due_date,omitempty"`
	DueDateTime *bool   `json:"due_date_time,omitempty"`
}

// Millis converts t to the millisecond epoch format ClickUp expects.
func Millis(t time.Time) int64 {
	return t.UnixMilli()
}

// ParseMillis parses a millisecond epoch string.
func ParseMillis(raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, false
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(ms).UTC(), true
}
