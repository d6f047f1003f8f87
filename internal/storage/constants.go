package storage

import "errors"

const (
	// MaxImageSize bounds the encoded image bytes accepted from the clipboard
	MaxImageSize = 100 * 1024 * 1024 // 100MB

	// ImageDirName is the subdirectory of the data dir holding image backing files
	ImageDirName = "images"
)

// ErrFileTooLarge is reported for clipboard images over MaxImageSize
var ErrFileTooLarge = errors.New("file size exceeds maximum allowed size")
