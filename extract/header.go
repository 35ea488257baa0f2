package extract

import (
	"context"
	"encoding/binary"
)

// HeaderDecoderImpl reads only the fixed PSD file header (canvas
// dimensions) and reports no layers. It is the default wiring until a
// full byte-to-tree decoder is plugged in, and keeps the pipeline
// exercisable end to end.
type HeaderDecoderImpl struct{}

func NewHeaderDecoderImpl() *HeaderDecoderImpl {
	return &HeaderDecoderImpl{}
}

// Decode reads height and width from the PSD header (big endian at
// offsets 14 and 18). Short input yields zero dimensions rather than an
// error: signature validity was already enforced at ingestion.
func (d *HeaderDecoderImpl) Decode(ctx context.Context, data []byte, opts DecodeOptions) (*RawDocument, error) {
	doc := &RawDocument{}
	if len(data) >= 22 {
		doc.Height = binary.BigEndian.Uint32(data[14:18])
		doc.Width = binary.BigEndian.Uint32(data[18:22])
	}
	return doc, nil
}
