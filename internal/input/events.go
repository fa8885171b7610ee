// Package input turns raw pointer, touch, wheel and key events into viewport
// changes and tile selections.
package input

import "TileBoard/internal/config"

// Event is one raw input event fed to the Coordinator. Coordinates are in the
// same screen space as the viewport rectangle.
type Event interface {
	isEvent()
}

type PointerDown struct {
	Button config.Button
	X, Y   float64
}

type PointerMove struct {
	X, Y float64
}

type PointerUp struct {
	Button config.Button
	X, Y   float64
}

// PointerLeave is sent when the pointer exits the surface.
type PointerLeave struct{}

// Blur is sent when the surface loses input focus.
type Blur struct{}

// Wheel zooms toward (X, Y). Negative DeltaY zooms in.
type Wheel struct {
	X, Y   float64
	DeltaY float64
}

// Key is a typed character. EditableFocused is set when a text field
// elsewhere holds focus, in which case the key is not a shortcut.
type Key struct {
	Key             string
	EditableFocused bool
}

type TouchDown struct {
	ID   int
	X, Y float64
}

type TouchMove struct {
	ID   int
	X, Y float64
}

type TouchUp struct {
	ID   int
	X, Y float64
}

func (PointerDown) isEvent()  {}
func (PointerMove) isEvent()  {}
func (PointerUp) isEvent()    {}
func (PointerLeave) isEvent() {}
func (Blur) isEvent()         {}
func (Wheel) isEvent()        {}
func (Key) isEvent()          {}
func (TouchDown) isEvent()    {}
func (TouchMove) isEvent()    {}
func (TouchUp) isEvent()      {}
