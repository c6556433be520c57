//go:build ebiten

package main

import (
	"pipelined.dev/domain/graphics"
	"pipelined.dev/domain/graphics/ebiten"
)

func init() {
	newWindow = func() graphics.Window {
		w := ebiten.New()
		w.ShowFPS = true
		return w
	}
}
