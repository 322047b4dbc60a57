package store

import (
	"fmt"
	"strconv"
	"unicode/utf8"

	"github.com/nhle/smstask/internal/model"
)

// Filter selects tasks by exact equality on every non-nil field (AND).
// The zero Filter matches every task.
type Filter struct {
	ID          *int
	Owner       *string
	Description *string
	Status      *string
}

// ByID returns a filter matching the task with the given slot ID.
func ByID(id int) Filter {
	return Filter{ID: &id}
}

// ByOwner returns a filter matching every task of owner.
func ByOwner(owner string) Filter {
	return Filter{Owner: &owner}
}

// Match reports whether t satisfies every condition of f.
func (f Filter) Match(t model.Task) bool {
	if f.ID != nil && t.ID != *f.ID {
		return false
	}
	if f.Owner != nil && t.Owner != *f.Owner {
		return false
	}
	if f.Description != nil && t.Description != *f.Description {
		return false
	}
	if f.Status != nil && t.Status != *f.Status {
		return false
	}
	return true
}

// FilterFromFields builds a Filter from field=value pairs, as received in
// query strings. Unknown fields are rejected.
func FilterFromFields(fields map[string]string) (Filter, error) {
	var f Filter
	for k, v := range fields {
		v := v
		switch k {
		case "id":
			id, err := strconv.Atoi(v)
			if err != nil {
				return Filter{}, fmt.Errorf("%w: id %q is not a number", ErrValidation, v)
			}
			f.ID = &id
		case "owner":
			f.Owner = &v
		case "description":
			f.Description = &v
		case "status":
			f.Status = &v
		default:
			return Filter{}, fmt.Errorf("%w: cannot filter on %q", ErrValidation, k)
		}
	}
	return f, nil
}

// Changes lists the mutable fields of a task. Nil fields are left untouched.
type Changes struct {
	Description *string
	Status      *string
}

// IsEmpty reports whether no field would change.
func (c Changes) IsEmpty() bool {
	return c.Description == nil && c.Status == nil
}

// ParseChanges converts an arbitrary field map (e.g. a decoded JSON body)
// into Changes. Only description and status are mutable; id, owner and any
// unknown key are rejected so the slot invariant cannot be bypassed.
func ParseChanges(fields map[string]any) (Changes, error) {
	var c Changes
	for k, raw := range fields {
		switch k {
		case "description", "status":
		case "id", "owner":
			return Changes{}, fmt.Errorf("%w: field %q is immutable", ErrValidation, k)
		default:
			return Changes{}, fmt.Errorf("%w: unknown field %q", ErrValidation, k)
		}

		s, ok := raw.(string)
		if !ok {
			return Changes{}, fmt.Errorf("%w: field %q must be a string", ErrValidation, k)
		}
		if k == "description" {
			c.Description = &s
		} else {
			c.Status = &s
		}
	}

	if c.IsEmpty() {
		return Changes{}, fmt.Errorf("%w: no changes given", ErrValidation)
	}
	if err := c.validate(); err != nil {
		return Changes{}, err
	}
	return c, nil
}

func (c Changes) validate() error {
	if c.Description != nil {
		if err := validateDescription(*c.Description); err != nil {
			return err
		}
	}
	if c.Status != nil && !model.ValidStatus(*c.Status) {
		return fmt.Errorf("%w: unknown status %q", ErrValidation, *c.Status)
	}
	return nil
}

func (c Changes) apply(t *model.Task) {
	if c.Description != nil {
		t.Description = *c.Description
	}
	if c.Status != nil {
		t.Status = *c.Status
	}
}

func validateDescription(d string) error {
	if d == "" {
		return fmt.Errorf("%w: description is required", ErrValidation)
	}
	if n := utf8.RuneCountInString(d); n > model.MaxDescriptionLen {
		return fmt.Errorf("%w: description is %d characters, limit is %d",
			ErrValidation, n, model.MaxDescriptionLen)
	}
	return nil
}
