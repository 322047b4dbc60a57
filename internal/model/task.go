package model

import "fmt"

// MaxSlots is the number of task IDs available; IDs are drawn from [1, MaxSlots].
const MaxSlots = 10

// MaxDescriptionLen is the longest accepted description, in code points.
const MaxDescriptionLen = 100

// Task statuses.
const (
	StatusPending = "pending"
	StatusDone    = "done"
)

// ValidStatus reports whether s is a known task status.
func ValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusDone:
		return true
	}
	return false
}

// Task is one tracked to-do item.
type Task struct {
	// ID is the slot number in [1, MaxSlots], unique among active tasks.
	ID int `json:"id" yaml:"id" db:"id"`

	// Owner identifies the creator (phone digits or an email address).
	Owner string `json:"owner" yaml:"owner" db:"owner"`

	// Description is the free text of the task.
	Description string `json:"description" yaml:"description" db:"description"`

	// Status is one of the Status* constants.
	Status string `json:"status" yaml:"status" db:"status"`
}

// Summary returns the reduced {id, description} view of the task.
func (t Task) Summary() Summary {
	return Summary{ID: t.ID, Description: t.Description}
}

// String renders a short single-line form used in logs.
func (t Task) String() string {
	d := []rune(t.Description)
	if len(d) > 25 {
		d = append(d[:25], []rune("...")...)
	}
	return fmt.Sprintf("task{id=%d owner=%s status=%s description=%q}",
		t.ID, t.Owner, t.Status, string(d))
}

// Summary is the view returned by create and delete operations.
type Summary struct {
	ID          int    `json:"id"`
	Description string `json:"description"`
}
