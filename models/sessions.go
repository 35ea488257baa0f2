package models

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

type Encoding string

const (
	EncodingNone Encoding = "none"
	EncodingGzip Encoding = "gzip"
)

type StorageTier string

const (
	TierEmbedded StorageTier = "embedded"
	TierExternal StorageTier = "external"
)

// UploadSession represents one resumable upload attempt. Mutated only
// through the state-machine operations, always under the per-session
// lock.
type UploadSession struct {
	SessionId           string        `dynamodbav:"session_id"`       // Opaque session key
	FileName            string        `dynamodbav:"file_name"`        // Client-supplied file name
	Encoding            Encoding      `dynamodbav:"encoding"`         // Per-chunk wire encoding
	ExpectedSize        uint64        `dynamodbav:"expected_size"`    // 0 when the client did not announce a size
	CreatedAt           time.Time     `dynamodbav:"created_at"`       // Session creation timestamp
	StartedAt           time.Time     `dynamodbav:"started_at"`       // First accepted append
	LastActivityAt      time.Time     `dynamodbav:"last_activity_at"` // Idle-expiry sweep input
	ChunkCount          uint32        `dynamodbav:"chunk_count"`
	CumulativeSize      uint64        `dynamodbav:"cumulative_size"` // Exact sum of accepted chunk byte lengths
	FirstChunkValidated bool          `dynamodbav:"first_chunk_validated"`
	StorageTier         StorageTier   `dynamodbav:"storage_tier"` // Transitions embedded -> external at most once
	Aborted             bool          `dynamodbav:"aborted"`
	Completed           bool          `dynamodbav:"completed"`
	Chunks              []ChunkRecord `dynamodbav:"chunks"`
	CachedResult        []byte        `dynamodbav:"cached_result"` // JSON ExtractionResult, set on complete
}

// ChunkRecord is written once on an accepted append and never mutated.
type ChunkRecord struct {
	Index      uint32      `dynamodbav:"index"`
	ByteLength uint64      `dynamodbav:"byte_length"`
	Tier       StorageTier `dynamodbav:"tier"`
	StorageKey string      `dynamodbav:"storage_key"`
}

var unsafeKeyChars = regexp.MustCompile(`[^a-z0-9._-]+`)

// ChunkKeyPrefix namespaces all chunk keys of a session across both
// tiers. File names are sanitized so they are safe as object-store key
// segments.
func (s *UploadSession) ChunkKeyPrefix() string {
	name := unsafeKeyChars.ReplaceAllString(strings.ToLower(s.FileName), "-")
	if name == "" {
		name = "file"
	}
	return fmt.Sprintf("uploads/%s/%s", s.SessionId, name)
}

// ChunkKey addresses one stored chunk: {sanitized-file-key}/{index}.
func (s *UploadSession) ChunkKey(index uint32) string {
	return fmt.Sprintf("%s/%d", s.ChunkKeyPrefix(), index)
}

// ChunkByIndex returns the record for index, or nil when the index was
// never stored.
func (s *UploadSession) ChunkByIndex(index uint32) *ChunkRecord {
	for i := range s.Chunks {
		if s.Chunks[i].Index == index {
			return &s.Chunks[i]
		}
	}
	return nil
}

// Progress is receivedBytes/expectedSize, or nil when the client never
// announced a size.
func (s *UploadSession) Progress() *float64 {
	if s.ExpectedSize == 0 {
		return nil
	}
	p := float64(s.CumulativeSize) / float64(s.ExpectedSize)
	if p > 1 {
		p = 1
	}
	return &p
}

// UploadCompletedEvent is published to the completions queue after a
// successful complete. Advisory for downstream code generation.
type UploadCompletedEvent struct {
	SessionId  string `json:"session_id"`
	FileName   string `json:"file_name"`
	SizeBytes  uint64 `json:"size_bytes"`
	LayerCount int    `json:"layer_count"`
	Truncated  bool   `json:"truncated"`
	ElapsedMs  int64  `json:"elapsed_ms"`
}
