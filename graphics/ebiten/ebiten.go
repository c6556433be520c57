// Package ebiten provides a graphics.Window on top of ebiten game loop.
// Ebiten runs one game per process, so a Window can be opened only once.
package ebiten

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"sync"
	"sync/atomic"

	eb "github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/text"
	"golang.org/x/image/font/basicfont"

	"pipelined.dev/domain/graphics"
)

// ErrReopen is returned when window is opened after the game loop ended.
var ErrReopen = errors.New("ebiten window can't be reopened")

// Window presents frames in an ebiten window.
type Window struct {
	// ShowFPS draws measured frame rate in the corner.
	ShowFPS bool

	mu      sync.Mutex
	cfg     graphics.Config
	surface *image.RGBA
	pixels  []byte
	image   *eb.Image
	opened  bool

	ready     chan struct{}
	readyOnce sync.Once
	done      chan struct{}
	closing   atomic.Bool
	err       error
}

// New returns window that is not open yet.
func New() *Window {
	return &Window{
		ready: make(chan struct{}),
		done:  make(chan struct{}),
	}
}

// Open starts ebiten game loop and waits for the first drawn frame.
func (w *Window) Open(cfg graphics.Config) error {
	w.mu.Lock()
	if w.opened {
		w.mu.Unlock()
		return ErrReopen
	}
	w.opened = true
	w.cfg = cfg
	w.surface = image.NewRGBA(image.Rect(0, 0, cfg.Width, cfg.Height))
	w.pixels = make([]byte, len(w.surface.Pix))
	w.mu.Unlock()

	eb.SetWindowSize(cfg.Width, cfg.Height)
	eb.SetWindowTitle(cfg.Title)
	eb.SetWindowResizable(true)
	eb.SetWindowClosingHandled(true)
	eb.SetRunnableOnUnfocused(true)
	eb.SetTPS(int(cfg.FPS))

	go func() {
		defer close(w.done)
		if err := eb.RunGame(w); err != nil {
			w.err = fmt.Errorf("ebiten: %w", err)
		}
	}()

	select {
	case <-w.ready:
		return nil
	case <-w.done:
		return w.err
	}
}

// Surface implements graphics.Window.
func (w *Window) Surface() *image.RGBA {
	return w.surface
}

// Present implements graphics.Window.
func (w *Window) Present() error {
	w.mu.Lock()
	copy(w.pixels, w.surface.Pix)
	w.mu.Unlock()
	return nil
}

// ShouldQuit implements graphics.Window. It's true once the window was
// closed by the user.
func (w *Window) ShouldQuit() bool {
	select {
	case <-w.done:
		return true
	default:
		return false
	}
}

// Close ends the game loop and waits for it.
func (w *Window) Close() error {
	w.closing.Store(true)
	w.mu.Lock()
	opened := w.opened
	w.mu.Unlock()
	if !opened {
		return nil
	}
	<-w.done
	return w.err
}

// Update implements ebiten.Game.
func (w *Window) Update() error {
	if eb.IsWindowBeingClosed() || w.closing.Load() {
		return eb.Termination
	}
	return nil
}

// Draw implements ebiten.Game.
func (w *Window) Draw(screen *eb.Image) {
	if w.image == nil {
		w.image = eb.NewImage(w.cfg.Width, w.cfg.Height)
	}
	w.mu.Lock()
	w.image.WritePixels(w.pixels)
	w.mu.Unlock()
	screen.DrawImage(w.image, nil)
	if w.ShowFPS {
		text.Draw(screen, fmt.Sprintf("FPS: %0.2f", eb.ActualFPS()), basicfont.Face7x13, 4, 14, color.White)
	}
	w.readyOnce.Do(func() { close(w.ready) })
}

// Layout implements ebiten.Game.
func (w *Window) Layout(_, _ int) (int, int) {
	return w.cfg.Width, w.cfg.Height
}
