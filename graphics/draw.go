package graphics

import (
	"image"
	"image/color"
	"image/draw"
)

// Graphics is the draw context passed to the draw hook. It's reset before
// every frame.
type Graphics struct {
	Surface *image.RGBA
	View    Pose
	Color   color.Color
	Frame   uint64
}

// Bounds returns the surface size.
func (g *Graphics) Bounds() image.Rectangle {
	if g.Surface == nil {
		return image.Rectangle{}
	}
	return g.Surface.Rect
}

// Clear fills the surface with c.
func (g *Graphics) Clear(c color.Color) {
	if g.Surface == nil {
		return
	}
	draw.Draw(g.Surface, g.Surface.Rect, image.NewUniform(c), image.Point{}, draw.Src)
}

// Fill fills rectangle with the current color.
func (g *Graphics) Fill(r image.Rectangle) {
	if g.Surface == nil {
		return
	}
	draw.Draw(g.Surface, r.Intersect(g.Surface.Rect), image.NewUniform(g.Color), image.Point{}, draw.Over)
}

// reset binds the surface and restores default state.
func (g *Graphics) reset(surface *image.RGBA, view Pose, frame uint64) {
	g.Surface = surface
	g.View = view
	g.Color = color.White
	g.Frame = frame
}
