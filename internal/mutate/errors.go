package mutate

import (
	"errors"
	"fmt"
)

// ErrBlankTagName is returned when a tag name is empty or whitespace.
var ErrBlankTagName = errors.New("tag name is blank")

// DuplicateTagError is returned by CreateTag when the name is already registered.
type DuplicateTagError struct {
	Name string
}

func (e *DuplicateTagError) Error() string {
	return fmt.Sprintf("tag already exists: %q", e.Name)
}

// NotFoundError describes an unknown tag or object. Operations that prefer idempotence
// report these through Result.Skipped instead of failing.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// IsDuplicateTag reports whether err is (or wraps) a DuplicateTagError.
func IsDuplicateTag(err error) bool {
	var dup *DuplicateTagError
	return errors.As(err, &dup)
}
