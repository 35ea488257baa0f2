package store

import (
	"context"
	"errors"
	"time"

	"github.com/ggstvfer/psd-covert-sub000/health"
	"github.com/ggstvfer/psd-covert-sub000/models"
)

// ErrChunkNotFound is returned by chunk stores when a key was never
// written (or was already purged). The service layer maps it to
// MISSING_CHUNK.
var ErrChunkNotFound = errors.New("chunk not found")

// SessionStore is the externally-owned, keyed metadata store for upload
// sessions. Accessed only through the session key.
type SessionStore interface {
	Create(ctx context.Context, session models.UploadSession) error
	Get(ctx context.Context, sessionID string) (*models.UploadSession, error)
	Update(ctx context.Context, session models.UploadSession) error
	Delete(ctx context.Context, sessionID string) error
	// ListIdle returns sessions with no activity since idleBefore,
	// candidates for the lazy expiry sweep.
	ListIdle(ctx context.Context, idleBefore time.Time) ([]models.UploadSession, error)

	health.ReadinessCheck
}

// ChunkStore holds raw chunk bytes for one storage tier. Keys are
// namespaced per session, so DeletePrefix purges exactly one session's
// data.
type ChunkStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	DeletePrefix(ctx context.Context, prefix string) error

	health.ReadinessCheck
}
