package extract

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ggstvfer/psd-covert-sub000/logging"
	"github.com/ggstvfer/psd-covert-sub000/models"
)

// UnnamedLayer is the canonical fallback for layers without a name.
const UnnamedLayer = "Unnamed Layer"

// Decode strategy names reported in result metadata.
const (
	StrategyFull          = "full"
	StrategySkipPixelData = "skip-pixel-data"
)

// Budget bounds one extraction walk. The deadline is absolute
// wall-clock time and is checked cooperatively at every recursion
// step.
type Budget struct {
	Deadline            time.Time
	MaxDepth            int
	MaxNodesPerLevel    int
	MaxChildrenPerGroup int
}

// FastProfile is the shallow preview budget used by partial.
func FastProfile(deadline time.Time) Budget {
	return Budget{
		Deadline:            deadline,
		MaxDepth:            4,
		MaxNodesPerLevel:    50,
		MaxChildrenPerGroup: 25,
	}
}

// FullProfile is the complete-upload budget. Same algorithm as
// FastProfile, different limits.
func FullProfile(deadline time.Time) Budget {
	return Budget{
		Deadline:            deadline,
		MaxDepth:            12,
		MaxNodesPerLevel:    500,
		MaxChildrenPerGroup: 200,
	}
}

type Engine struct {
	decoder Decoder
	logger  logging.Logger
}

func NewEngine(decoder Decoder, l logging.Logger) *Engine {
	return &Engine{
		decoder: decoder,
		logger:  l,
	}
}

// Extract decodes data and walks the resulting tree under budget.
// Exceeding the deadline is not an error: the walk stops descending and
// returns what it has collected with Truncated set. Only a decode
// failure (after the fallback stage) is reported as an error.
func (e *Engine) Extract(ctx context.Context, data []byte, budget Budget) (*models.ExtractionResult, error) {
	start := time.Now()

	result := &models.ExtractionResult{
		Metadata: models.ExtractionMetadata{
			SourceSize: uint64(len(data)),
		},
	}

	if !start.Before(budget.Deadline) {
		result.Truncated = true
		result.ElapsedMs = time.Since(start).Milliseconds()
		return result, nil
	}

	doc, strategy, err := e.decodeWithFallback(ctx, data)
	if err != nil {
		return nil, err
	}

	st := &walkState{
		budget:  budget,
		visited: make(map[string]struct{}),
	}

	result.Width = doc.Width
	result.Height = doc.Height
	result.Layers = st.walk(doc.Layers, 0, budget.MaxNodesPerLevel)
	result.Truncated = st.truncated
	result.ElapsedMs = time.Since(start).Milliseconds()
	result.Metadata.Strategy = strategy

	return result, nil
}

// decodeWithFallback is the named boundary of the two-stage decode
// strategy: a full decode first, then exactly one retry without pixel
// data when the failure is pixel-classified.
func (e *Engine) decodeWithFallback(ctx context.Context, data []byte) (*RawDocument, string, error) {
	doc, err := e.decoder.Decode(ctx, data, DecodeOptions{})
	if err == nil {
		return doc, StrategyFull, nil
	}

	var pixErr *PixelDataError
	if !errors.As(err, &pixErr) {
		return nil, "", fmt.Errorf("decode failed: %w", err)
	}

	e.logger.Warn("full decode failed on pixel data, retrying without pixel channels", "error", err)

	doc, err = e.decoder.Decode(ctx, data, DecodeOptions{SkipPixelData: true})
	if err != nil {
		return nil, "", fmt.Errorf("fallback decode failed: %w", err)
	}
	return doc, StrategySkipPixelData, nil
}

type walkState struct {
	budget    Budget
	visited   map[string]struct{}
	truncated bool
}

// walk processes one sibling list depth-first. levelCap is the
// effective breadth limit at this level: MaxNodesPerLevel at the root,
// further capped by MaxChildrenPerGroup inside a group.
func (st *walkState) walk(nodes []RawNode, depth int, levelCap int) []models.LayerNode {
	if len(nodes) == 0 {
		return nil
	}

	if time.Now().After(st.budget.Deadline) {
		st.truncated = true
		return nil
	}

	// Deeper levels are dropped silently, not reported.
	if depth >= st.budget.MaxDepth {
		return nil
	}

	if levelCap > st.budget.MaxNodesPerLevel {
		levelCap = st.budget.MaxNodesPerLevel
	}
	if len(nodes) > levelCap {
		// Literal prefix, never a sample.
		nodes = nodes[:levelCap]
		st.truncated = true
	}

	out := make([]models.LayerNode, 0, len(nodes))
	for _, raw := range nodes {
		if time.Now().After(st.budget.Deadline) {
			st.truncated = true
			break
		}

		layer := st.visit(raw, depth)
		if layer == nil {
			continue
		}
		out = append(out, *layer)
	}
	return out
}

// visit normalizes one raw node. A nil return means the node was
// skipped by the dedup guard. A node that cannot be normalized becomes
// a degraded placeholder instead of failing the walk.
func (st *walkState) visit(raw RawNode, depth int) *models.LayerNode {
	name := rawName(raw)

	// The (name, depth) key is approximate: same-named siblings at
	// one depth collide and the later ones are dropped.
	key := fmt.Sprintf("%d:%s", depth, name)
	if _, seen := st.visited[key]; seen {
		return nil
	}
	st.visited[key] = struct{}{}

	layer, err := st.normalize(raw, depth)
	if err != nil {
		return &models.LayerNode{
			Name:    name,
			Kind:    models.LayerKindError,
			Visible: false,
		}
	}
	return layer
}

func (st *walkState) normalize(raw RawNode, depth int) (*models.LayerNode, error) {
	var (
		common   RawCommon
		kind     models.LayerKind
		text     string
		children []models.LayerNode
	)

	switch n := raw.(type) {
	case *RawGroup:
		common = n.RawCommon
		kind = models.LayerKindGroup
		children = st.walk(n.Children, depth+1, st.budget.MaxChildrenPerGroup)
	case *RawShape:
		common = n.RawCommon
		kind = models.LayerKindShape
	case *RawText:
		common = n.RawCommon
		kind = models.LayerKindText
		text = n.Text
	case *RawImage:
		common = n.RawCommon
		kind = models.LayerKindImage
	case *RawUnknown:
		return nil, fmt.Errorf("unknown layer variant %q", n.Name)
	default:
		return nil, fmt.Errorf("unhandled raw node type %T", raw)
	}

	layer := &models.LayerNode{
		Name:      common.Name,
		Kind:      kind,
		Visible:   true,
		Opacity:   1,
		BlendMode: common.BlendMode,
		BoundingBox: models.BoundingBox{
			Left:   common.Bounds.Left,
			Top:    common.Bounds.Top,
			Right:  common.Bounds.Right,
			Bottom: common.Bounds.Bottom,
		},
		TextContent: text,
		Children:    children,
	}

	if layer.Name == "" {
		layer.Name = UnnamedLayer
	}
	if common.Visible != nil {
		layer.Visible = *common.Visible
	}
	if common.Opacity != nil {
		layer.Opacity = clamp01(*common.Opacity)
	}

	return layer, nil
}

func rawName(raw RawNode) string {
	var name string
	switch n := raw.(type) {
	case *RawGroup:
		name = n.Name
	case *RawShape:
		name = n.Name
	case *RawText:
		name = n.Name
	case *RawImage:
		name = n.Name
	case *RawUnknown:
		name = n.Name
	}
	if name == "" {
		name = UnnamedLayer
	}
	return name
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
