package clipboard

import (
	"context"
	"fmt"
)

// Reader samples the system clipboard.
type Reader interface {
	// ReadImage returns the encoded image on the clipboard, or nil if there is none
	ReadImage(ctx context.Context) ([]byte, error)

	// ReadText returns the clipboard text, or "" if there is none
	ReadText(ctx context.Context) (string, error)
}

// ReadError reports a failed clipboard or hashing operation
type ReadError struct {
	Op  string // "image", "text" or "hash"
	Err error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("clipboard %s read failed: %v", e.Op, e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}
