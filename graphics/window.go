package graphics

import (
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
)

var (
	// ErrInvalidConfig is returned when window size or frame rate is not
	// positive.
	ErrInvalidConfig = errors.New("invalid graphics config")
	// ErrWindowOpen is returned when window is opened twice.
	ErrWindowOpen = errors.New("window is already open")
)

// Config is the window and frame rate setup.
type Config struct {
	Width  int
	Height int
	Title  string
	FPS    float64
}

// Validate checks that size and frame rate are positive.
func (c Config) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("%w: size %dx%d", ErrInvalidConfig, c.Width, c.Height)
	}
	if c.FPS <= 0 {
		return fmt.Errorf("%w: fps %v", ErrInvalidConfig, c.FPS)
	}
	return nil
}

// Window is a presentation surface. Surface is drawn by the frame and then
// shown with Present. All methods except ShouldQuit are called from the
// frame loop goroutine.
type Window interface {
	Open(Config) error
	Surface() *image.RGBA
	Present() error
	ShouldQuit() bool
	Close() error
}

// Headless is a window without a display. It keeps the last presented
// frame and can quit itself after a number of frames.
type Headless struct {
	// MaxFrames makes window quit after so many presented frames. Zero
	// means no limit.
	MaxFrames uint64

	mu        sync.Mutex
	surface   *image.RGBA
	last      *image.RGBA
	open      bool
	presented atomic.Uint64
}

// Open implements Window.
func (h *Headless) Open(cfg Config) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.open {
		return ErrWindowOpen
	}
	r := image.Rect(0, 0, cfg.Width, cfg.Height)
	h.surface, h.last = image.NewRGBA(r), image.NewRGBA(r)
	h.open = true
	h.presented.Store(0)
	return nil
}

// Surface implements Window.
func (h *Headless) Surface() *image.RGBA {
	return h.surface
}

// Present implements Window.
func (h *Headless) Present() error {
	h.mu.Lock()
	copy(h.last.Pix, h.surface.Pix)
	h.mu.Unlock()
	h.presented.Add(1)
	return nil
}

// ShouldQuit implements Window.
func (h *Headless) ShouldQuit() bool {
	return h.MaxFrames > 0 && h.presented.Load() >= h.MaxFrames
}

// Close implements Window.
func (h *Headless) Close() error {
	h.mu.Lock()
	h.open = false
	h.mu.Unlock()
	return nil
}

// Presented returns number of presented frames since open.
func (h *Headless) Presented() uint64 {
	return h.presented.Load()
}

// Snapshot returns a copy of the last presented frame.
func (h *Headless) Snapshot() *image.RGBA {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.last == nil {
		return nil
	}
	s := image.NewRGBA(h.last.Rect)
	copy(s.Pix, h.last.Pix)
	return s
}
