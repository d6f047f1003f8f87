package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ErrEngineUnavailable means the recognizer cannot run at all in this
// session, e.g. the binary or its language data is missing.
var ErrEngineUnavailable = errors.New("ocr: engine unavailable")

// Engine recognizes text in an image file
type Engine interface {
	// Init prepares the engine. A failure disables recognition for the session.
	Init(ctx context.Context) error
	Recognize(ctx context.Context, imagePath string) (string, error)
}

// TesseractEngine runs the tesseract command line tool
type TesseractEngine struct {
	Binary   string
	Language string
}

// NewTesseractEngine returns an engine for binary and language, defaulting
// to "tesseract" and "eng".
func NewTesseractEngine(binary, language string) *TesseractEngine {
	if binary == "" {
		binary = "tesseract"
	}
	if language == "" {
		language = "eng"
	}
	return &TesseractEngine{Binary: binary, Language: language}
}

// Init checks that the binary exists and has data for the language
func (t *TesseractEngine) Init(ctx context.Context) error {
	path, err := exec.LookPath(t.Binary)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEngineUnavailable, err)
	}
	t.Binary = path

	out, err := exec.CommandContext(ctx, t.Binary, "--list-langs").CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: failed to list languages: %w", ErrEngineUnavailable, err)
	}
	for _, lang := range strings.Split(t.Language, "+") {
		if !hasLanguage(string(out), lang) {
			return fmt.Errorf("%w: language data %q not installed", ErrEngineUnavailable, lang)
		}
	}
	return nil
}

// Recognize returns the text tesseract finds in imagePath
func (t *TesseractEngine) Recognize(ctx context.Context, imagePath string) (string, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, t.Binary, imagePath, "stdout", "-l", t.Language)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("failed to run tesseract: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// hasLanguage scans `tesseract --list-langs` output, whose first line is a header
func hasLanguage(listing, lang string) bool {
	for _, line := range strings.Split(listing, "\n") {
		if strings.TrimSpace(line) == lang {
			return true
		}
	}
	return false
}
