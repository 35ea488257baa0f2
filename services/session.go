package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"golang.org/x/sync/errgroup"

	"github.com/ggstvfer/psd-covert-sub000/apperrors"
	"github.com/ggstvfer/psd-covert-sub000/caching"
	"github.com/ggstvfer/psd-covert-sub000/config"
	"github.com/ggstvfer/psd-covert-sub000/extract"
	"github.com/ggstvfer/psd-covert-sub000/format"
	"github.com/ggstvfer/psd-covert-sub000/logging"
	"github.com/ggstvfer/psd-covert-sub000/models"
	"github.com/ggstvfer/psd-covert-sub000/queues"
	"github.com/ggstvfer/psd-covert-sub000/store"
)

// partialTimeBudget bounds the shallow preview extraction.
const partialTimeBudget = 3 * time.Second

// resultCacheTTL bounds how long completed extraction results stay in
// the write-through cache.
const resultCacheTTL = time.Hour

// UploadService is the session state machine:
// Uninitialized -> Active -> {Completed, Aborted}.
type UploadService interface {
	Init(ctx context.Context, fileName string, encoding models.Encoding, expectedSize uint64) (*models.InitResponse, error)
	Append(ctx context.Context, sessionID string, encodedChunk string, index *uint32) (*models.AppendResponse, error)
	Status(ctx context.Context, sessionID string) (*models.StatusResponse, error)
	Partial(ctx context.Context, sessionID string) (*models.PartialResponse, error)
	Complete(ctx context.Context, sessionID string) (*models.CompleteResponse, error)
	Abort(ctx context.Context, sessionID string) (*models.AbortResponse, error)
}

type UploadServiceImpl struct {
	sessions store.SessionStore
	embedded store.ChunkStore
	external store.ChunkStore

	tiering    TieringPolicy
	engine     *extract.Engine
	cachingSvc caching.CachingService
	notifier   queues.CompletionNotifier
	cfg        config.ServiceConfig
	logger     logging.Logger

	// mu guards the per-session lock and estimator maps, not the
	// sessions themselves.
	mu         sync.Mutex
	locks      map[string]*sessionLock
	estimators map[string]*ProgressEstimator

	now func() time.Time
}

func NewUploadServiceImpl(
	sessions store.SessionStore,
	embedded store.ChunkStore,
	external store.ChunkStore,
	tiering TieringPolicy,
	engine *extract.Engine,
	cachingSvc caching.CachingService,
	notifier queues.CompletionNotifier,
	cfg config.ServiceConfig,
	l logging.Logger,
) *UploadServiceImpl {
	if cfg.MaxFileSize == 0 {
		cfg.MaxFileSize = config.DefaultMaxFileSize
	}
	if cfg.PartialPrefixCap == 0 {
		cfg.PartialPrefixCap = config.DefaultPartialPrefixCap
	}
	if cfg.IdleExpiry == 0 {
		cfg.IdleExpiry = config.DefaultIdleExpiry
	}
	if cfg.ExtractionBudget == 0 {
		cfg.ExtractionBudget = config.DefaultExtractionBudget
	}
	if cfg.ExtractionHeadroom == 0 {
		cfg.ExtractionHeadroom = config.DefaultExtractionHeadroom
	}
	if cfg.ChunkFetchConcurrency <= 0 {
		cfg.ChunkFetchConcurrency = config.DefaultChunkFetchConcurrency
	}

	return &UploadServiceImpl{
		sessions:   sessions,
		embedded:   embedded,
		external:   external,
		tiering:    tiering,
		engine:     engine,
		cachingSvc: cachingSvc,
		notifier:   notifier,
		cfg:        cfg,
		logger:     l,
		locks:      make(map[string]*sessionLock),
		estimators: make(map[string]*ProgressEstimator),
		now:        time.Now,
	}
}

// Init creates a fresh Active session. It also runs the lazy
// idle-expiry sweep: sessions with no activity inside the idle window
// are purged before the new one is created.
func (svc *UploadServiceImpl) Init(ctx context.Context, fileName string, encoding models.Encoding, expectedSize uint64) (*models.InitResponse, error) {
	switch encoding {
	case "", models.EncodingNone:
		encoding = models.EncodingNone
	case models.EncodingGzip:
	default:
		return nil, apperrors.Internal("unsupported chunk encoding " + string(encoding))
	}

	svc.sweepIdle(ctx)

	now := svc.now()
	session := models.UploadSession{
		SessionId:      uuid.NewString(),
		FileName:       fileName,
		Encoding:       encoding,
		ExpectedSize:   expectedSize,
		CreatedAt:      now,
		LastActivityAt: now,
		StorageTier:    models.TierEmbedded,
	}

	if err := svc.sessions.Create(ctx, session); err != nil {
		return nil, err
	}

	svc.logger.Info("session created", "session_id", session.SessionId, "file_name", fileName, "encoding", encoding, "expected_size", expectedSize)

	return &models.InitResponse{SessionId: session.SessionId}, nil
}

// Append decodes one wire chunk, validates it, stores it through the
// tiering policy and advances the session counters. The optional index
// is the client's retry handle: an index below the next assigned one is
// acknowledged as a retransmit without storing a second copy, an index
// beyond it announces a gap and is rejected.
func (svc *UploadServiceImpl) Append(ctx context.Context, sessionID string, encodedChunk string, index *uint32) (*models.AppendResponse, error) {
	unlock := svc.lockSession(sessionID)
	defer unlock()

	session, err := svc.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Aborted {
		return nil, apperrors.Aborted(sessionID)
	}
	if session.Completed {
		return nil, apperrors.Internal("session is already completed")
	}

	if index != nil {
		if *index < session.ChunkCount {
			rec := session.ChunkByIndex(*index)
			if rec == nil {
				return nil, apperrors.MissingChunk(int(*index))
			}
			return &models.AppendResponse{
				AcceptedBytes:  rec.ByteLength,
				CumulativeSize: session.CumulativeSize,
				Progress:       session.Progress(),
				ChunkIndex:     rec.Index,
			}, nil
		}
		if *index > session.ChunkCount {
			// Everything between the next assigned index and the
			// announced one was never sent.
			return nil, apperrors.MissingChunk(int(session.ChunkCount))
		}
	}

	data, err := svc.decodeChunk(session.Encoding, encodedChunk)
	if err != nil {
		return nil, err
	}

	// The signature check runs exactly once per session, on the
	// first accepted (decompressed) chunk. Failure is unrecoverable.
	if !session.FirstChunkValidated {
		if err := format.ValidateSignature(data); err != nil {
			svc.logger.Warn("first chunk failed signature validation, aborting session", "session_id", sessionID)
			if purgeErr := svc.tombstone(ctx, session); purgeErr != nil {
				svc.logger.Error("failed to purge invalid session", "session_id", sessionID, "error", purgeErr)
			}
			return nil, err
		}
	}

	prospective := session.CumulativeSize + uint64(len(data))
	if prospective > svc.cfg.MaxFileSize {
		svc.logger.Warn("session exceeded hard size ceiling, purging", "session_id", sessionID, "cumulative_size", prospective, "limit", svc.cfg.MaxFileSize)
		if purgeErr := svc.purgeSession(ctx, session); purgeErr != nil {
			svc.logger.Error("failed to purge oversized session", "session_id", sessionID, "error", purgeErr)
		}
		return nil, apperrors.FileTooLarge(prospective, svc.cfg.MaxFileSize)
	}

	tier := svc.tiering.SelectTier(session.StorageTier, prospective)
	chunkIndex := session.ChunkCount
	key := session.ChunkKey(chunkIndex)

	if err := svc.tierStore(tier).Put(ctx, key, data); err != nil {
		return nil, err
	}

	now := svc.now()
	if !session.FirstChunkValidated {
		session.FirstChunkValidated = true
		session.StartedAt = now
	}
	session.StorageTier = tier
	session.ChunkCount++
	session.CumulativeSize = prospective
	session.LastActivityAt = now
	session.Chunks = append(session.Chunks, models.ChunkRecord{
		Index:      chunkIndex,
		ByteLength: uint64(len(data)),
		Tier:       tier,
		StorageKey: key,
	})

	if err := svc.sessions.Update(ctx, *session); err != nil {
		return nil, err
	}

	svc.estimator(sessionID).Record(now, prospective)

	svc.logger.Debug("chunk accepted", "session_id", sessionID, "chunk_index", chunkIndex, "bytes", len(data), "tier", tier, "cumulative_size", prospective)

	return &models.AppendResponse{
		AcceptedBytes:  uint64(len(data)),
		CumulativeSize: prospective,
		Progress:       session.Progress(),
		ChunkIndex:     chunkIndex,
	}, nil
}

// Status is a read-only snapshot; it never mutates session state.
func (svc *UploadServiceImpl) Status(ctx context.Context, sessionID string) (*models.StatusResponse, error) {
	session, err := svc.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Aborted {
		return nil, apperrors.Aborted(sessionID)
	}

	resp := &models.StatusResponse{
		FileName:      session.FileName,
		ReceivedBytes: session.CumulativeSize,
		Progress:      session.Progress(),
		ChunkCount:    session.ChunkCount,
		ElapsedMs:     svc.now().Sub(session.CreatedAt).Milliseconds(),
	}
	if session.ExpectedSize > 0 {
		expected := session.ExpectedSize
		resp.ExpectedSize = &expected
	}

	if est := svc.lookupEstimator(sessionID); est != nil {
		resp.SpeedBps = est.Speed()
		resp.EtaSeconds = est.ETA(session.ExpectedSize)
	}

	return resp, nil
}

// Partial assembles a bounded prefix of the stored chunks in index
// order and runs the extraction engine in the fast profile. Valid only
// while the session is Active.
func (svc *UploadServiceImpl) Partial(ctx context.Context, sessionID string) (*models.PartialResponse, error) {
	unlock := svc.lockSession(sessionID)
	defer unlock()

	session, err := svc.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Aborted {
		return nil, apperrors.Aborted(sessionID)
	}
	if session.Completed {
		return nil, apperrors.Internal("session is already completed")
	}

	prefix, err := svc.assemblePrefix(ctx, session)
	if err != nil {
		return nil, err
	}

	budget := extract.FastProfile(svc.now().Add(partialTimeBudget))
	preview, err := svc.engine.Extract(ctx, prefix, budget)
	if err != nil {
		return nil, err
	}

	return &models.PartialResponse{
		Preview:       preview,
		ReceivedBytes: session.CumulativeSize,
	}, nil
}

// Complete reconstructs the full byte sequence in index order across
// both tiers, runs the extraction engine in the full profile and caches
// the result so repeated calls are idempotent.
func (svc *UploadServiceImpl) Complete(ctx context.Context, sessionID string) (*models.CompleteResponse, error) {
	unlock := svc.lockSession(sessionID)
	defer unlock()

	session, err := svc.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Aborted {
		return nil, apperrors.Aborted(sessionID)
	}
	if session.Completed {
		return svc.cachedCompletion(ctx, session)
	}

	data, err := svc.reconstruct(ctx, session)
	if err != nil {
		return nil, err
	}
	if uint64(len(data)) != session.CumulativeSize {
		return nil, apperrors.Internal("reconstructed size does not match accepted size")
	}

	now := svc.now()
	deadline := now.Add(svc.cfg.ExtractionBudget - svc.cfg.ExtractionHeadroom)
	result, err := svc.engine.Extract(ctx, data, extract.FullProfile(deadline))
	if err != nil {
		return nil, err
	}

	cached, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}

	session.Completed = true
	session.LastActivityAt = now
	session.CachedResult = cached
	if err := svc.sessions.Update(ctx, *session); err != nil {
		return nil, err
	}

	if err := svc.cachingSvc.Set(ctx, resultCacheKey(sessionID), cached, resultCacheTTL); err != nil {
		svc.logger.Warn("failed to cache extraction result", "session_id", sessionID, "error", err)
	}

	evt := models.UploadCompletedEvent{
		SessionId:  sessionID,
		FileName:   session.FileName,
		SizeBytes:  session.CumulativeSize,
		LayerCount: result.LayerCount(),
		Truncated:  result.Truncated,
		ElapsedMs:  result.ElapsedMs,
	}
	if err := svc.notifier.NotifyCompleted(ctx, evt); err != nil {
		svc.logger.Warn("completion notification failed", "session_id", sessionID, "error", err)
	}

	svc.forgetEstimator(sessionID)

	svc.logger.Info("session completed", "session_id", sessionID, "bytes", session.CumulativeSize, "chunks", session.ChunkCount, "layers", evt.LayerCount, "truncated", result.Truncated)

	return &models.CompleteResponse{
		Result: result,
		Metrics: models.CompletionMetrics{
			ReconstructedBytes: session.CumulativeSize,
			ChunkCount:         session.ChunkCount,
			UploadElapsedMs:    now.Sub(session.CreatedAt).Milliseconds(),
			ExtractionMs:       result.ElapsedMs,
		},
	}, nil
}

// Abort moves any non-terminal session to Aborted and eagerly purges
// its chunk data. Idempotent: aborting an aborted session succeeds.
func (svc *UploadServiceImpl) Abort(ctx context.Context, sessionID string) (*models.AbortResponse, error) {
	unlock := svc.lockSession(sessionID)
	defer unlock()

	session, err := svc.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Aborted {
		return &models.AbortResponse{Aborted: true}, nil
	}
	if session.Completed {
		return nil, apperrors.Internal("session is already completed")
	}

	if err := svc.tombstone(ctx, session); err != nil {
		return nil, err
	}

	svc.logger.Info("session aborted", "session_id", sessionID)

	return &models.AbortResponse{Aborted: true}, nil
}

// decodeChunk turns the binary-safe wire payload into raw bytes. Each
// gzip chunk is compressed as its own unit, never part of a shared
// stream.
func (svc *UploadServiceImpl) decodeChunk(encoding models.Encoding, encodedChunk string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(encodedChunk)
	if err != nil {
		return nil, apperrors.DecompressionFailure(err)
	}

	if encoding != models.EncodingGzip {
		return raw, nil
	}

	zr, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, apperrors.DecompressionFailure(err)
	}
	defer zr.Close()

	data, err := io.ReadAll(zr)
	if err != nil {
		return nil, apperrors.DecompressionFailure(err)
	}
	return data, nil
}

// reconstruct fetches every chunk by index from whichever tier holds it
// and concatenates them in order. A missing index is fatal; there is no
// partial reconstruction around a gap.
func (svc *UploadServiceImpl) reconstruct(ctx context.Context, session *models.UploadSession) ([]byte, error) {
	records := make([]*models.ChunkRecord, session.ChunkCount)
	for i := uint32(0); i < session.ChunkCount; i++ {
		rec := session.ChunkByIndex(i)
		if rec == nil {
			return nil, apperrors.MissingChunk(int(i))
		}
		records[i] = rec
	}

	slots := make([][]byte, session.ChunkCount)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(svc.cfg.ChunkFetchConcurrency)
	for i, rec := range records {
		g.Go(func() error {
			data, err := svc.tierStore(rec.Tier).Get(gctx, rec.StorageKey)
			if errors.Is(err, store.ErrChunkNotFound) {
				return apperrors.MissingChunk(i)
			}
			if err != nil {
				return err
			}
			slots[i] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.Grow(int(session.CumulativeSize))
	for _, chunk := range slots {
		buf.Write(chunk)
	}
	return buf.Bytes(), nil
}

// assemblePrefix reads stored chunks in index order until the partial
// preview cap is reached.
func (svc *UploadServiceImpl) assemblePrefix(ctx context.Context, session *models.UploadSession) ([]byte, error) {
	var buf bytes.Buffer

	for i := uint32(0); i < session.ChunkCount; i++ {
		if uint64(buf.Len()) >= svc.cfg.PartialPrefixCap {
			break
		}

		rec := session.ChunkByIndex(i)
		if rec == nil {
			return nil, apperrors.MissingChunk(int(i))
		}

		data, err := svc.tierStore(rec.Tier).Get(ctx, rec.StorageKey)
		if errors.Is(err, store.ErrChunkNotFound) {
			return nil, apperrors.MissingChunk(int(i))
		}
		if err != nil {
			return nil, err
		}

		remaining := svc.cfg.PartialPrefixCap - uint64(buf.Len())
		if uint64(len(data)) > remaining {
			data = data[:remaining]
		}
		buf.Write(data)
	}

	return buf.Bytes(), nil
}

// cachedCompletion serves repeated complete calls. The write-through
// cache is consulted first; the copy on the session record is the
// durable fallback.
func (svc *UploadServiceImpl) cachedCompletion(ctx context.Context, session *models.UploadSession) (*models.CompleteResponse, error) {
	cached := session.CachedResult
	if data, err := svc.cachingSvc.Get(ctx, resultCacheKey(session.SessionId)); err == nil {
		cached = data
	} else if !errors.Is(err, caching.ErrCacheMiss) {
		svc.logger.Warn("result cache read failed", "session_id", session.SessionId, "error", err)
	}

	var result models.ExtractionResult
	if err := json.Unmarshal(cached, &result); err != nil {
		return nil, apperrors.Internal("cached extraction result is unreadable")
	}

	return &models.CompleteResponse{
		Result: &result,
		Metrics: models.CompletionMetrics{
			ReconstructedBytes: session.CumulativeSize,
			ChunkCount:         session.ChunkCount,
			UploadElapsedMs:    session.LastActivityAt.Sub(session.CreatedAt).Milliseconds(),
			ExtractionMs:       result.ElapsedMs,
		},
	}, nil
}

// tombstone purges all chunk data but keeps an aborted session record,
// so later operations on the id report ABORTED instead of NO_SESSION.
// The record itself is removed by the idle sweep.
func (svc *UploadServiceImpl) tombstone(ctx context.Context, session *models.UploadSession) error {
	if err := svc.purgeChunkData(ctx, session); err != nil {
		return err
	}

	session.Aborted = true
	session.Chunks = nil
	session.CachedResult = nil
	session.LastActivityAt = svc.now()
	if err := svc.sessions.Update(ctx, *session); err != nil {
		return err
	}

	svc.forgetEstimator(session.SessionId)
	return nil
}

// purgeSession removes the session record entirely along with its chunk
// data. Later operations on the id report NO_SESSION.
func (svc *UploadServiceImpl) purgeSession(ctx context.Context, session *models.UploadSession) error {
	if err := svc.purgeChunkData(ctx, session); err != nil {
		return err
	}
	if err := svc.sessions.Delete(ctx, session.SessionId); err != nil {
		return err
	}
	svc.forgetEstimator(session.SessionId)
	return nil
}

// purgeChunkData deletes the session's chunk namespace from both tiers.
// Deleting a prefix that holds nothing is a no-op, so the tier split
// does not matter here.
func (svc *UploadServiceImpl) purgeChunkData(ctx context.Context, session *models.UploadSession) error {
	prefix := session.ChunkKeyPrefix()
	if err := svc.embedded.DeletePrefix(ctx, prefix); err != nil {
		return err
	}
	return svc.external.DeletePrefix(ctx, prefix)
}

func (svc *UploadServiceImpl) sweepIdle(ctx context.Context) {
	cutoff := svc.now().Add(-svc.cfg.IdleExpiry)

	idle, err := svc.sessions.ListIdle(ctx, cutoff)
	if err != nil {
		svc.logger.Warn("idle session sweep failed", "error", err)
		return
	}

	for i := range idle {
		session := idle[i]
		if err := svc.purgeSession(ctx, &session); err != nil {
			svc.logger.Warn("failed to purge idle session", "session_id", session.SessionId, "error", err)
			continue
		}
		svc.logger.Info("purged idle session", "session_id", session.SessionId, "last_activity_at", session.LastActivityAt)
	}
}

func (svc *UploadServiceImpl) tierStore(tier models.StorageTier) store.ChunkStore {
	if tier == models.TierExternal {
		return svc.external
	}
	return svc.embedded
}

// sessionLock is one entry of the per-session lock table. refs counts
// holders plus waiters so the entry can be dropped once nobody needs
// it; the table only ever holds sessions with an operation in flight.
type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// lockSession serializes operations for one session id. Callers are
// expected to await each operation before issuing the next for the same
// session, but the service does not rely on that discipline.
func (svc *UploadServiceImpl) lockSession(sessionID string) func() {
	svc.mu.Lock()
	lock, ok := svc.locks[sessionID]
	if !ok {
		lock = &sessionLock{}
		svc.locks[sessionID] = lock
	}
	lock.refs++
	svc.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()

		svc.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(svc.locks, sessionID)
		}
		svc.mu.Unlock()
	}
}

func (svc *UploadServiceImpl) estimator(sessionID string) *ProgressEstimator {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	est, ok := svc.estimators[sessionID]
	if !ok {
		est = NewProgressEstimator(DefaultEstimatorWindow)
		svc.estimators[sessionID] = est
	}
	return est
}

func (svc *UploadServiceImpl) lookupEstimator(sessionID string) *ProgressEstimator {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return svc.estimators[sessionID]
}

func (svc *UploadServiceImpl) forgetEstimator(sessionID string) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	delete(svc.estimators, sessionID)
}

func resultCacheKey(sessionID string) string {
	return "session:result:" + sessionID
}
