package models

// Response payloads for the six protocol operations. The HTTP handler
// serializes these verbatim.

type InitResponse struct {
	SessionId string `json:"session_id"`
}

type AppendResponse struct {
	AcceptedBytes  uint64   `json:"accepted_bytes"`
	CumulativeSize uint64   `json:"cumulative_size"`
	Progress       *float64 `json:"progress,omitempty"`
	ChunkIndex     uint32   `json:"chunk_index"`
}

type StatusResponse struct {
	FileName      string   `json:"file_name"`
	ReceivedBytes uint64   `json:"received_bytes"`
	ExpectedSize  *uint64  `json:"expected_size,omitempty"`
	Progress      *float64 `json:"progress,omitempty"`
	ChunkCount    uint32   `json:"chunk_count"`
	ElapsedMs     int64    `json:"elapsed_ms"`
	SpeedBps      *float64 `json:"speed_bps,omitempty"`
	EtaSeconds    *float64 `json:"eta_seconds,omitempty"`
}

type PartialResponse struct {
	Preview       *ExtractionResult `json:"preview"`
	ReceivedBytes uint64            `json:"received_bytes"`
}

type CompletionMetrics struct {
	ReconstructedBytes uint64 `json:"reconstructed_bytes"`
	ChunkCount         uint32 `json:"chunk_count"`
	UploadElapsedMs    int64  `json:"upload_elapsed_ms"`
	ExtractionMs       int64  `json:"extraction_ms"`
}

type CompleteResponse struct {
	Result  *ExtractionResult `json:"result"`
	Metrics CompletionMetrics `json:"metrics"`
}

type AbortResponse struct {
	Aborted bool `json:"aborted"`
}
