package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
)

// Statuses lists every allowed status value in display order.
var Statuses = []Status{StatusTodo, StatusInProgress, StatusDone}

func (s Status) Valid() bool {
	for _, v := range Statuses {
		if v == s {
			return true
		}
	}
	return false
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

var Priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh}

func (p Priority) Valid() bool {
	for _, v := range Priorities {
		if v == p {
			return true
		}
	}
	return false
}

// MaxDescriptionLength is counted in characters (runes), not bytes.
const MaxDescriptionLength = 2000

type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      Status     `json:"status"`
	Priority    Priority   `json:"priority"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// TaskFilter: nil поля не ограничивают выборку
type TaskFilter struct {
	Status   *Status
	Priority *Priority
	Search   *string
}

type CreateTaskInput struct {
	Title       string     `json:"title"`
	Description *string    `json:"description,omitempty"`
	Status      *Status    `json:"status,omitempty"`
	Priority    *Priority  `json:"priority,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
}

// UpdateTaskInput is a partial update: nil fields keep the stored value.
// DueDate carries its own three-way state.
type UpdateTaskInput struct {
	Title       *string       `json:"title,omitempty"`
	Description *string       `json:"description,omitempty"`
	Status      *Status       `json:"status,omitempty"`
	Priority    *Priority     `json:"priority,omitempty"`
	DueDate     DueDateUpdate `json:"dueDate,omitzero"`
}

type DueDateAction int

const (
	DueDateUnchanged DueDateAction = iota
	DueDateCleared
	DueDateSet
)

func (a DueDateAction) String() string {
	switch a {
	case DueDateUnchanged:
		return "unchanged"
	case DueDateCleared:
		return "cleared"
	case DueDateSet:
		return "set"
	default:
		return fmt.Sprintf("DueDateAction(%d)", int(a))
	}
}

// DueDateUpdate distinguishes "field not sent" (zero value), an explicit
// JSON null and a new timestamp.
type DueDateUpdate struct {
	Action DueDateAction
	Value  time.Time
}

func KeepDueDate() DueDateUpdate { return DueDateUpdate{Action: DueDateUnchanged} }

func ClearDueDate() DueDateUpdate { return DueDateUpdate{Action: DueDateCleared} }

func SetDueDate(t time.Time) DueDateUpdate {
	return DueDateUpdate{Action: DueDateSet, Value: t.UTC()}
}

// Apply returns the due date that results from applying u to current.
func (u DueDateUpdate) Apply(current *time.Time) *time.Time {
	switch u.Action {
	case DueDateCleared:
		return nil
	case DueDateSet:
		v := u.Value
		return &v
	default:
		return current
	}
}

// UnmarshalJSON is only invoked when the key is present, so an absent key
// leaves the zero value (DueDateUnchanged).
func (u *DueDateUpdate) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*u = ClearDueDate()
		return nil
	}
	var t time.Time
	if err := json.Unmarshal(data, &t); err != nil {
		return fmt.Errorf("dueDate: %w", err)
	}
	*u = SetDueDate(t)
	return nil
}

func (u DueDateUpdate) MarshalJSON() ([]byte, error) {
	switch u.Action {
	case DueDateSet:
		return json.Marshal(u.Value)
	default:
		return []byte("null"), nil
	}
}
