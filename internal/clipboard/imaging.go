package clipboard

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"os"
	"path/filepath"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
)

// ThumbnailMaxSide bounds the longest side of a preview
const ThumbnailMaxSide = 256

// Signature returns the SHA-256 hex digest of encoded image bytes
func Signature(data []byte) (string, error) {
	h := sha256.New()
	if _, err := h.Write(data); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// DecodeImage decodes PNG, JPEG, GIF, TIFF or BMP bytes
func DecodeImage(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, errors.New("empty image data")
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// Thumbnail renders img scaled so its longest side is at most maxSide and
// returns it as a PNG data URL. Smaller images are encoded as-is.
func Thumbnail(img image.Image, maxSide int) (string, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return "", errors.New("image has no pixels")
	}

	var src image.Image = img
	if w > maxSide || h > maxSide {
		tw, th := maxSide, maxSide
		if w >= h {
			th = max(1, h*maxSide/w)
		} else {
			tw = max(1, w*maxSide/h)
		}
		dst := image.NewRGBA(image.Rect(0, 0, tw, th))
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
		src = dst
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, src); err != nil {
		return "", fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// ImageFiles owns the directory of image backing files
type ImageFiles struct {
	dir string
}

// NewImageFiles creates dir if needed
func NewImageFiles(dir string) (*ImageFiles, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create image directory: %w", err)
	}
	return &ImageFiles{dir: dir}, nil
}

// Write encodes img as <id>.png and returns its absolute path
func (f *ImageFiles) Write(id string, img image.Image) (string, error) {
	path, err := filepath.Abs(filepath.Join(f.dir, id+".png"))
	if err != nil {
		return "", fmt.Errorf("failed to resolve image path: %w", err)
	}

	tmp, err := os.CreateTemp(f.dir, ".img-*")
	if err != nil {
		return "", fmt.Errorf("failed to create image file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := png.Encode(tmp, img); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to encode image: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close image file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("failed to write image file: %w", err)
	}
	return path, nil
}

// Remove deletes a backing file. It implements history.FileRemover.
func (f *ImageFiles) Remove(path string) error {
	return os.Remove(path)
}
