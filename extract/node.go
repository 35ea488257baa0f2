// Package extract walks a decoded PSD layer tree under depth, breadth
// and time budgets and produces a bounded summary. The byte-to-tree
// decoding itself is an external collaborator behind the Decoder
// interface.
package extract

import (
	"context"
	"fmt"
)

type Rect struct {
	Left   float64
	Top    float64
	Right  float64
	Bottom float64
}

// RawNode is the sealed variant type for decoder output. The walk
// handles every variant exhaustively; anything it does not recognize
// degrades to an error placeholder.
type RawNode interface {
	rawNode()
}

// RawCommon carries the fields shared by all variants. Visible and
// Opacity are pointers so the walk can distinguish "absent" from zero
// and apply canonical defaults.
type RawCommon struct {
	Name      string
	Visible   *bool
	Opacity   *float64
	BlendMode string
	Bounds    Rect
}

type RawGroup struct {
	RawCommon
	Children []RawNode
}

type RawShape struct {
	RawCommon
}

type RawText struct {
	RawCommon
	Text string
}

// RawImage may carry decoded pixel data. Pixels never reach the
// extraction output.
type RawImage struct {
	RawCommon
	Pixels []byte
}

type RawUnknown struct {
	RawCommon
}

func (*RawGroup) rawNode()   {}
func (*RawShape) rawNode()   {}
func (*RawText) rawNode()    {}
func (*RawImage) rawNode()   {}
func (*RawUnknown) rawNode() {}

// RawDocument is the decoder's generic output tree.
type RawDocument struct {
	Width  uint32
	Height uint32
	Layers []RawNode
}

type DecodeOptions struct {
	// SkipPixelData asks the decoder to leave pixel channels
	// unparsed. Used by the fallback decode stage.
	SkipPixelData bool
}

// Decoder turns validated PSD bytes into a generic node tree.
type Decoder interface {
	Decode(ctx context.Context, data []byte, opts DecodeOptions) (*RawDocument, error)
}

// PixelDataError classifies a decode failure as originating in the
// pixel channels. It is the trigger for the skip-pixel-data fallback
// stage; any other failure is terminal.
type PixelDataError struct {
	Err error
}

func (e *PixelDataError) Error() string {
	return fmt.Sprintf("pixel data decode failed: %v", e.Err)
}

func (e *PixelDataError) Unwrap() error {
	return e.Err
}
