package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ggstvfer/psd-covert-sub000/logging"
	"github.com/ggstvfer/psd-covert-sub000/models"
)

type staticDecoder struct {
	doc   *RawDocument
	calls []DecodeOptions
	errs  []error // consumed per call; nil entry means success
}

func (d *staticDecoder) Decode(ctx context.Context, data []byte, opts DecodeOptions) (*RawDocument, error) {
	d.calls = append(d.calls, opts)
	if len(d.errs) > 0 {
		err := d.errs[0]
		d.errs = d.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return d.doc, nil
}

func farDeadline() time.Time {
	return time.Now().Add(time.Minute)
}

func group(name string, children ...RawNode) *RawGroup {
	return &RawGroup{RawCommon: RawCommon{Name: name}, Children: children}
}

func shape(name string) *RawShape {
	return &RawShape{RawCommon: RawCommon{Name: name}}
}

func TestZeroTimeBudgetReturnsTruncated(t *testing.T) {
	dec := &staticDecoder{doc: &RawDocument{Width: 10, Height: 10}}
	engine := NewEngine(dec, logging.NewNop())

	budget := FullProfile(time.Now().Add(-time.Second))
	result, err := engine.Extract(context.Background(), []byte("8BPS"), budget)

	require.NoError(t, err)
	require.True(t, result.Truncated)
	require.Empty(t, result.Layers)
	require.Empty(t, dec.calls) // deadline already gone, no decode work
}

func TestDepthLimitDropsSilently(t *testing.T) {
	dec := &staticDecoder{doc: &RawDocument{
		Layers: []RawNode{
			group("a", group("b", group("c", shape("deep")))),
		},
	}}
	engine := NewEngine(dec, logging.NewNop())

	budget := Budget{Deadline: farDeadline(), MaxDepth: 2, MaxNodesPerLevel: 10, MaxChildrenPerGroup: 10}
	result, err := engine.Extract(context.Background(), nil, budget)
	require.NoError(t, err)

	require.Len(t, result.Layers, 1)
	require.Len(t, result.Layers[0].Children, 1)
	require.Empty(t, result.Layers[0].Children[0].Children)
	require.False(t, result.Truncated)
}

func TestBreadthLimitKeepsLiteralPrefix(t *testing.T) {
	dec := &staticDecoder{doc: &RawDocument{
		Layers: []RawNode{shape("s0"), shape("s1"), shape("s2"), shape("s3"), shape("s4")},
	}}
	engine := NewEngine(dec, logging.NewNop())

	budget := Budget{Deadline: farDeadline(), MaxDepth: 4, MaxNodesPerLevel: 3, MaxChildrenPerGroup: 10}
	result, err := engine.Extract(context.Background(), nil, budget)
	require.NoError(t, err)

	require.True(t, result.Truncated)
	require.Len(t, result.Layers, 3)
	require.Equal(t, "s0", result.Layers[0].Name)
	require.Equal(t, "s1", result.Layers[1].Name)
	require.Equal(t, "s2", result.Layers[2].Name)
}

func TestGroupChildCapApplies(t *testing.T) {
	children := make([]RawNode, 10)
	for i := range children {
		children[i] = shape(fmt.Sprintf("child-%d", i))
	}
	dec := &staticDecoder{doc: &RawDocument{Layers: []RawNode{group("g", children...)}}}
	engine := NewEngine(dec, logging.NewNop())

	budget := Budget{Deadline: farDeadline(), MaxDepth: 4, MaxNodesPerLevel: 100, MaxChildrenPerGroup: 4}
	result, err := engine.Extract(context.Background(), nil, budget)
	require.NoError(t, err)

	require.Len(t, result.Layers[0].Children, 4)
	require.True(t, result.Truncated)
}

func TestNormalizationDefaults(t *testing.T) {
	hidden := false
	halfOpaque := 0.5
	tooOpaque := 3.0

	dec := &staticDecoder{doc: &RawDocument{
		Layers: []RawNode{
			&RawShape{RawCommon: RawCommon{}}, // nameless, no visibility, no opacity
			&RawShape{RawCommon: RawCommon{Name: "styled", Visible: &hidden, Opacity: &halfOpaque, BlendMode: "multiply"}},
			&RawShape{RawCommon: RawCommon{Name: "clamped", Opacity: &tooOpaque}},
		},
	}}
	engine := NewEngine(dec, logging.NewNop())

	result, err := engine.Extract(context.Background(), nil, FullProfile(farDeadline()))
	require.NoError(t, err)
	require.Len(t, result.Layers, 3)

	require.Equal(t, UnnamedLayer, result.Layers[0].Name)
	require.True(t, result.Layers[0].Visible)
	require.Equal(t, 1.0, result.Layers[0].Opacity)

	require.False(t, result.Layers[1].Visible)
	require.Equal(t, 0.5, result.Layers[1].Opacity)
	require.Equal(t, "multiply", result.Layers[1].BlendMode)

	require.Equal(t, 1.0, result.Layers[2].Opacity)
}

func TestTextAndGeometrySurvive(t *testing.T) {
	dec := &staticDecoder{doc: &RawDocument{
		Width:  1920,
		Height: 1080,
		Layers: []RawNode{
			&RawText{
				RawCommon: RawCommon{Name: "headline", Bounds: Rect{Left: 10, Top: 20, Right: 300, Bottom: 80}},
				Text:      "Launch day",
			},
		},
	}}
	engine := NewEngine(dec, logging.NewNop())

	result, err := engine.Extract(context.Background(), nil, FullProfile(farDeadline()))
	require.NoError(t, err)

	require.Equal(t, uint32(1920), result.Width)
	require.Equal(t, uint32(1080), result.Height)

	layer := result.Layers[0]
	require.Equal(t, models.LayerKindText, layer.Kind)
	require.Equal(t, "Launch day", layer.TextContent)
	require.Equal(t, models.BoundingBox{Left: 10, Top: 20, Right: 300, Bottom: 80}, layer.BoundingBox)
}

func TestDuplicateKeySkipsLaterSibling(t *testing.T) {
	dec := &staticDecoder{doc: &RawDocument{
		Layers: []RawNode{shape("twin"), shape("twin"), shape("other")},
	}}
	engine := NewEngine(dec, logging.NewNop())

	result, err := engine.Extract(context.Background(), nil, FullProfile(farDeadline()))
	require.NoError(t, err)

	// The (name, depth) key collides for same-named siblings; the
	// later one is dropped.
	require.Len(t, result.Layers, 2)
	require.Equal(t, "twin", result.Layers[0].Name)
	require.Equal(t, "other", result.Layers[1].Name)
}

func TestSameNameAtDifferentDepthsIsKept(t *testing.T) {
	dec := &staticDecoder{doc: &RawDocument{
		Layers: []RawNode{group("twin", shape("twin"))},
	}}
	engine := NewEngine(dec, logging.NewNop())

	result, err := engine.Extract(context.Background(), nil, FullProfile(farDeadline()))
	require.NoError(t, err)

	require.Len(t, result.Layers, 1)
	require.Len(t, result.Layers[0].Children, 1)
}

func TestUnknownVariantBecomesErrorPlaceholder(t *testing.T) {
	dec := &staticDecoder{doc: &RawDocument{
		Layers: []RawNode{
			&RawUnknown{RawCommon: RawCommon{Name: "mystery"}},
			shape("fine"),
		},
	}}
	engine := NewEngine(dec, logging.NewNop())

	result, err := engine.Extract(context.Background(), nil, FullProfile(farDeadline()))
	require.NoError(t, err)
	require.Len(t, result.Layers, 2)

	require.Equal(t, "mystery", result.Layers[0].Name)
	require.Equal(t, models.LayerKindError, result.Layers[0].Kind)
	require.False(t, result.Layers[0].Visible)

	require.Equal(t, models.LayerKindShape, result.Layers[1].Kind)
}

func TestPixelBuffersNeverReachTheResult(t *testing.T) {
	dec := &staticDecoder{doc: &RawDocument{
		Layers: []RawNode{
			&RawImage{
				RawCommon: RawCommon{Name: "photo"},
				Pixels:    []byte("RAWPIXELBUFFER-RAWPIXELBUFFER"),
			},
		},
	}}
	engine := NewEngine(dec, logging.NewNop())

	result, err := engine.Extract(context.Background(), nil, FullProfile(farDeadline()))
	require.NoError(t, err)
	require.Equal(t, models.LayerKindImage, result.Layers[0].Kind)

	encoded, err := json.Marshal(result)
	require.NoError(t, err)
	require.False(t, strings.Contains(string(encoded), "RAWPIXELBUFFER"))
}

func TestPixelDataFailureTriggersFallback(t *testing.T) {
	dec := &staticDecoder{
		doc:  &RawDocument{Width: 5, Height: 5, Layers: []RawNode{shape("s")}},
		errs: []error{&PixelDataError{Err: errors.New("channel overflow")}},
	}
	engine := NewEngine(dec, logging.NewNop())

	result, err := engine.Extract(context.Background(), nil, FullProfile(farDeadline()))
	require.NoError(t, err)

	require.Len(t, dec.calls, 2)
	require.False(t, dec.calls[0].SkipPixelData)
	require.True(t, dec.calls[1].SkipPixelData)
	require.Equal(t, StrategySkipPixelData, result.Metadata.Strategy)
}

func TestNonPixelFailureIsTerminal(t *testing.T) {
	dec := &staticDecoder{errs: []error{errors.New("header torn")}}
	engine := NewEngine(dec, logging.NewNop())

	_, err := engine.Extract(context.Background(), nil, FullProfile(farDeadline()))
	require.Error(t, err)
	require.Len(t, dec.calls, 1)
}

func TestHeaderDecoderReadsDimensions(t *testing.T) {
	data := make([]byte, 26)
	copy(data, "8BPS")
	data[14], data[15], data[16], data[17] = 0, 0, 0x04, 0x38 // height 1080
	data[18], data[19], data[20], data[21] = 0, 0, 0x07, 0x80 // width 1920

	doc, err := NewHeaderDecoderImpl().Decode(context.Background(), data, DecodeOptions{})
	require.NoError(t, err)
	require.Equal(t, uint32(1080), doc.Height)
	require.Equal(t, uint32(1920), doc.Width)

	short, err := NewHeaderDecoderImpl().Decode(context.Background(), []byte("8BPS"), DecodeOptions{})
	require.NoError(t, err)
	require.Zero(t, short.Width)
	require.Zero(t, short.Height)
}
