package dispatch

import (
	"errors"
	"strings"
	"unicode"
)

// Verbs understood by the dispatcher.
const (
	VerbNew  = "new"
	VerbAll  = "all"
	VerbDel  = "del"
	VerbHelp = "help"
)

// ErrEmptyMessage is returned by Parse for blank input.
var ErrEmptyMessage = errors.New("empty message")

// Command is one parsed inbound instruction.
type Command struct {
	Verb     string
	Argument string
	// HasArgument distinguishes "new" from "new " followed by nothing else.
	HasArgument bool
}

// Parse splits message at the first whitespace. The verb is lower-cased;
// the argument keeps its case and loses surrounding whitespace.
func Parse(message string) (Command, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return Command{}, ErrEmptyMessage
	}

	verb, rest := message, ""
	if i := strings.IndexFunc(message, unicode.IsSpace); i >= 0 {
		verb, rest = message[:i], strings.TrimSpace(message[i:])
	}

	return Command{
		Verb:        strings.ToLower(verb),
		Argument:    rest,
		HasArgument: rest != "",
	}, nil
}
