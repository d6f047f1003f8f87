package clipboard

import (
	"context"
	"runtime"
	"sync"

	"github.com/progrium/darwinkit/macos/appkit"
)

func init() {
	// Ensure we're on the main thread for AppKit operations
	runtime.LockOSThread()
}

// Pasteboard types checked in order of preference
var imageTypes = []appkit.PasteboardType{
	appkit.PasteboardType("public.png"),
	appkit.PasteboardType("public.tiff"),
}

const textType = appkit.PasteboardType("public.utf8-plain-text")

// DarwinReader reads NSPasteboard. Reads are skipped while the pasteboard
// change count is unchanged and the previous result is returned instead.
type DarwinReader struct {
	pasteboard  appkit.Pasteboard
	mutex       sync.Mutex
	changeCount int
	image       []byte
	text        string
	imageRead   bool
	textRead    bool
}

// NewReader returns the platform clipboard reader
func NewReader() (Reader, error) {
	return &DarwinReader{
		pasteboard:  appkit.Pasteboard_GeneralPasteboard(),
		changeCount: -1,
	}, nil
}

func (r *DarwinReader) refresh() {
	current := r.pasteboard.ChangeCount()
	if current != r.changeCount {
		r.changeCount = current
		r.imageRead = false
		r.textRead = false
		r.image = nil
		r.text = ""
	}
}

// ReadImage implements Reader
func (r *DarwinReader) ReadImage(ctx context.Context) ([]byte, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.refresh()
	if !r.imageRead {
		r.imageRead = true
		for _, t := range imageTypes {
			if data := r.pasteboard.DataForType(t); len(data) > 0 {
				r.image = data
				break
			}
		}
	}
	return r.image, nil
}

// ReadText implements Reader
func (r *DarwinReader) ReadText(ctx context.Context) (string, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.refresh()
	if !r.textRead {
		r.textRead = true
		r.text = r.pasteboard.StringForType(textType)
	}
	return r.text, nil
}
