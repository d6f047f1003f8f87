//go:build !darwin

package clipboard

import (
	"context"
	"fmt"

	xclipboard "golang.design/x/clipboard"
)

// SystemReader reads the clipboard through golang.design/x/clipboard
// (X11 on Linux, the Win32 clipboard on Windows). Images come back as PNG.
type SystemReader struct{}

// NewReader returns the platform clipboard reader
func NewReader() (Reader, error) {
	if err := xclipboard.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize clipboard: %w", err)
	}
	return SystemReader{}, nil
}

// ReadImage implements Reader
func (SystemReader) ReadImage(ctx context.Context) ([]byte, error) {
	return xclipboard.Read(xclipboard.FmtImage), nil
}

// ReadText implements Reader
func (SystemReader) ReadText(ctx context.Context) (string, error) {
	return string(xclipboard.Read(xclipboard.FmtText)), nil
}
