// Package reply renders SMS reply bodies and delivers them to the phone's
// MMS gateway address.
package reply

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nhle/smstask/internal/model"
	"github.com/nhle/smstask/internal/store"
)

// SnippetLen is how many characters of a description fit in a created or
// deleted reply.
const SnippetLen = 30

const usage = " - 'del' followed by a task ID will remove it.\n" +
	" - 'new' then a description will create a task.\n" +
	" - 'all' will return all current tasks.\n" +
	" - 'help' will return all valid commands."

func snippet(s string) string {
	r := []rune(s)
	if len(r) > SnippetLen {
		r = r[:SnippetLen]
	}
	return string(r)
}

// Created renders the outcome of a new command. Store errors are mapped to
// fixed sentences; their text never reaches the phone.
func Created(task model.Summary, err error) string {
	switch {
	case err == nil:
		return fmt.Sprintf("[NEW TASK]\n - task: \"%s\"\n - ID: %d", snippet(task.Description), task.ID)
	case errors.Is(err, store.ErrCapacityExceeded):
		return fmt.Sprintf("[NEW TASK]\nAll %d slots are taken. Delete a task first.", model.MaxSlots)
	case errors.Is(err, store.ErrValidation):
		return fmt.Sprintf("[NEW TASK]\nA task needs a description of at most %d characters.", model.MaxDescriptionLen)
	default:
		return Failure()
	}
}

// All renders the task list, or a fixed line when it is empty.
func All(tasks []model.Task) string {
	var b strings.Builder
	b.WriteString("[ALL]")
	if len(tasks) == 0 {
		b.WriteString("\nYou currently have no tasks being tracked.")
		return b.String()
	}
	for _, t := range tasks {
		fmt.Fprintf(&b, "\n - id: %d\n - task: %s", t.ID, t.Description)
	}
	return b.String()
}

// Deleted renders the outcome of a del command. found is false when no task
// had the requested ID.
func Deleted(task model.Summary, found bool) string {
	if !found {
		return "[DEL TASK]\nNothing deleted: no task has that ID."
	}
	return fmt.Sprintf("[DEL TASK]\n - task: \"%s\"\n - ID: %d", snippet(task.Description), task.ID)
}

func Help() string {
	return "[HELP]\n" + usage
}

func Malformed() string {
	return "[UNRECOGNIZED COMMAND]\n" + usage
}

// Failure is sent when the task list could not be reached.
func Failure() string {
	return "[ERROR]\nThe task list is unavailable right now. Try again later."
}

// Reminder renders the periodic digest of open tasks.
func Reminder(tasks []model.Task) string {
	var b strings.Builder
	b.WriteString("Daily reminder of current tasks:")
	if len(tasks) == 0 {
		b.WriteString("\n    (none)")
	}
	for _, t := range tasks {
		fmt.Fprintf(&b, "\n    %d: %s", t.ID, t.Description)
	}
	return b.String()
}
