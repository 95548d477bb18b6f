package db

import (
	"errors"
	"fmt"
	"strings"

	"github.com/japaniel/leetcrawl/pkg/schema"
)

// Policy is the conflict resolution applied when a record's key already
// exists.
type Policy int

const (
	// Replace overwrites the colliding row with the new field values.
	Replace Policy = iota + 1
	// InsertThenUpdate keeps the colliding row and updates the supplied
	// non-key fields in place.
	InsertThenUpdate
)

func (p Policy) String() string {
	switch p {
	case Replace:
		return "replace"
	case InsertThenUpdate:
		return "insert-then-update"
	}
	return fmt.Sprintf("policy(%d)", int(p))
}

// PolicyFor returns the policy bound to an entity. Items are created by the
// listing pass and widened by the detail pass; every other entity is always
// written whole from a detail pass.
func PolicyFor(e *schema.Entity) Policy {
	if e.Name == schema.PrimaryItemEntity {
		return InsertThenUpdate
	}
	return Replace
}

// ErrRequiredFieldUnset is wrapped by StorageError when a non-nullable field
// has no value at write time.
var ErrRequiredFieldUnset = errors.New("required field unset")

// StorageError reports a failed write or query.
type StorageError struct {
	Entity string
	Key    string
	Op     string
	Err    error
}

func (e *StorageError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Entity, e.Err)
	}
	return fmt.Sprintf("%s %s %s: %v", e.Op, e.Entity, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// keyString renders the key of r for error messages, e.g. "(two-sum, 3sum)".
func keyString(r schema.Record) string {
	vals := schema.KeyValues(r)
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = v.String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
