package models

// LayerKind classifies one node of the extracted layer tree.
type LayerKind string

const (
	LayerKindText  LayerKind = "text"
	LayerKindImage LayerKind = "image"
	LayerKindShape LayerKind = "shape"
	LayerKindGroup LayerKind = "group"
	LayerKindError LayerKind = "error"
)

type BoundingBox struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Right  float64 `json:"right"`
	Bottom float64 `json:"bottom"`
}

// LayerNode is one element of the extracted hierarchy. Only lightweight
// descriptive fields: raw pixel buffers never appear here, so results
// stay bounded regardless of input size.
type LayerNode struct {
	Name        string      `json:"name"`
	Kind        LayerKind   `json:"kind"`
	Visible     bool        `json:"visible"`
	Opacity     float64     `json:"opacity"`
	BlendMode   string      `json:"blend_mode,omitempty"`
	BoundingBox BoundingBox `json:"bounding_box"`
	TextContent string      `json:"text_content,omitempty"`
	Children    []LayerNode `json:"children,omitempty"`
}

type ExtractionMetadata struct {
	SourceSize uint64 `json:"source_size"`
	Strategy   string `json:"strategy"` // decode strategy that produced the tree
}

type ExtractionResult struct {
	Width     uint32             `json:"width"`
	Height    uint32             `json:"height"`
	Layers    []LayerNode        `json:"layers"`
	Truncated bool               `json:"truncated"`
	ElapsedMs int64              `json:"elapsed_ms"`
	Metadata  ExtractionMetadata `json:"metadata"`
}

// LayerCount walks the result tree and counts every node, for the
// completion event.
func (r *ExtractionResult) LayerCount() int {
	var count func(nodes []LayerNode) int
	count = func(nodes []LayerNode) int {
		n := len(nodes)
		for i := range nodes {
			n += count(nodes[i].Children)
		}
		return n
	}
	return count(r.Layers)
}
