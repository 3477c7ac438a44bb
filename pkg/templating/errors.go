package templating

import (
	"errors"
	"fmt"

	"github.com/CTAG07/Neutral/pkg/schema"
)

var (
	// ErrTemplateNotFound is returned when the template path does not exist.
	ErrTemplateNotFound = errors.New("template not found")

	// ErrUnreadable is returned when the template exists but cannot be read.
	ErrUnreadable = errors.New("template unreadable")

	// ErrMalformedSchema is returned when the schema is missing or cannot be
	// decoded. It is the same value as schema.ErrMalformed.
	ErrMalformedSchema = schema.ErrMalformed

	// ErrRemote is returned when a remote engine reports a failure without
	// a more specific cause.
	ErrRemote = errors.New("remote engine failure")
)

// EngineError reports a render that could not be carried out at all, as opposed
// to a template-level outcome, which is reported through Result.
type EngineError struct {
	Path string
	Err  error
}

func (e *EngineError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("render failed: %v", e.Err)
	}
	return fmt.Sprintf("render %s failed: %v", e.Path, e.Err)
}

func (e *EngineError) Unwrap() error {
	return e.Err
}
