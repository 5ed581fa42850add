// Package sync decides, per account and data type, whether to serve
// cached metrics or pull fresh ones from the provider, and degrades to
// stale cache when the provider is unavailable.
package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/datatypes"

	"github.com/vitalsync/vitalsync/internal/db"
	"github.com/vitalsync/vitalsync/internal/db/models"
	"github.com/vitalsync/vitalsync/internal/providers/catalog"
)

// Response statuses and data-source tags surfaced to callers.
const (
	StatusSuccess            = "success"
	StatusSuccessWithWarning = "success_with_warning"

	SourceCache      = "cache"
	SourceFresh      = "fresh"
	SourceStaleCache = "stale_cache"
)

// Decision reasons.
const (
	ReasonForceRefresh = "force_refresh"
	ReasonColdStart    = "cold_start"
	ReasonLookupError  = "lookup_error"
	ReasonStale        = "stale"
	ReasonFresh        = "fresh"
)

// ErrNoData means the provider call failed and no cached fallback exists.
var ErrNoData = errors.New("no data available")

// SyncLog is the latest-attempt store. *db.SyncLogStore satisfies it.
type SyncLog interface {
	Get(ctx context.Context, accountID, dataType string) (*models.SyncLogEntry, error)
	Upsert(ctx context.Context, accountID, dataType, status string, recordsSynced int, errorMessage string) error
}

// Cache is the durable record store. *db.CacheStore satisfies it.
type Cache interface {
	InsertBatch(ctx context.Context, records []models.CachedRecord) error
	Latest(ctx context.Context, accountID, dataType string, limit int) ([]models.CachedRecord, error)
	Count(ctx context.Context, accountID, dataType string) (int64, error)
	Prune(ctx context.Context, accountID, dataType string, keep int) error
}

// Fetcher pulls all records for one data type from the provider.
// *upstream.Client satisfies it.
type Fetcher interface {
	FetchAll(ctx context.Context, path, accountID string, params url.Values) ([]json.RawMessage, error)
}

// Decision is the outcome of a cache-vs-refetch check.
type Decision struct {
	ShouldSync  bool       `json:"should_sync"`
	Reason      string     `json:"reason"`
	LastSyncAt  *time.Time `json:"last_sync_at,omitempty"`
	CachedCount int64      `json:"cached_count"`
}

// Metadata tags every successful response with its data source.
type Metadata struct {
	Source      string     `json:"source"`
	RecordCount int        `json:"record_count"`
	LastSyncAt  *time.Time `json:"last_sync_at,omitempty"`
}

// Result is the caller-facing contract for GetData.
type Result struct {
	Status   string            `json:"status"`
	Data     []json.RawMessage `json:"data"`
	Metadata Metadata          `json:"metadata"`
}

// Options tune one GetData call.
type Options struct {
	ForceRefresh bool
	Limit        int
}

// Engine composes the provider client with the durable stores.
type Engine struct {
	syncLog SyncLog
	cache   Cache
	fetcher Fetcher
	cat     *catalog.Catalog
	log     zerolog.Logger
	now     func() time.Time
}

func NewEngine(syncLog SyncLog, cache Cache, fetcher Fetcher, cat *catalog.Catalog, log zerolog.Logger) *Engine {
	return &Engine{
		syncLog: syncLog,
		cache:   cache,
		fetcher: fetcher,
		cat:     cat,
		log:     log.With().Str("component", "sync").Logger(),
		now:     time.Now,
	}
}

// ShouldSync decides cache-vs-refetch. Lookup failures fail open to
// freshness: one extra provider call beats silently serving data that
// might be stale because of an infrastructure fault.
func (e *Engine) ShouldSync(ctx context.Context, accountID, dataType string, forceRefresh bool) Decision {
	cached, err := e.cache.Count(ctx, accountID, dataType)
	if err != nil {
		e.log.Warn().Err(err).Str("data_type", dataType).Msg("cache count failed")
		cached = 0
	}

	if forceRefresh {
		return Decision{ShouldSync: true, Reason: ReasonForceRefresh, CachedCount: cached}
	}

	entry, err := e.syncLog.Get(ctx, accountID, dataType)
	if err != nil {
		if errors.Is(err, db.ErrSyncLogNotFound) {
			return Decision{ShouldSync: true, Reason: ReasonColdStart, CachedCount: cached}
		}
		e.log.Warn().Err(err).Str("data_type", dataType).Msg("sync log lookup failed, failing open")
		return Decision{ShouldSync: true, Reason: ReasonLookupError, CachedCount: cached}
	}

	lastSyncAt := entry.LastSyncAt
	age := e.now().Sub(lastSyncAt)
	if age > e.cat.Threshold(dataType) {
		return Decision{ShouldSync: true, Reason: ReasonStale, LastSyncAt: &lastSyncAt, CachedCount: cached}
	}
	return Decision{ShouldSync: false, Reason: ReasonFresh, LastSyncAt: &lastSyncAt, CachedCount: cached}
}

// GetCachedData returns cached records newest-first, bounded by limit.
func (e *Engine) GetCachedData(ctx context.Context, accountID, dataType string, limit int) ([]models.CachedRecord, error) {
	return e.cache.Latest(ctx, accountID, dataType, limit)
}

// RecordAttempt upserts the single latest-attempt row for the pair.
func (e *Engine) RecordAttempt(ctx context.Context, accountID, dataType, status string, recordsSynced int, errorMessage string) error {
	return e.syncLog.Upsert(ctx, accountID, dataType, status, recordsSynced, errorMessage)
}

// GetData is the orchestration contract: fresh cache is served as-is,
// stale data triggers a provider sync, and a failed sync degrades to
// whatever cache exists rather than blocking the caller.
func (e *Engine) GetData(ctx context.Context, accountID, dataType string, opts Options) (*Result, error) {
	dt, ok := e.cat.DataType(dataType)
	if !ok {
		return nil, fmt.Errorf("unknown data type %q", dataType)
	}

	decision := e.ShouldSync(ctx, accountID, dataType, opts.ForceRefresh)
	if !decision.ShouldSync {
		records, err := e.GetCachedData(ctx, accountID, dataType, opts.Limit)
		if err != nil {
			return nil, fmt.Errorf("read cache: %w", err)
		}
		return &Result{
			Status: StatusSuccess,
			Data:   recordPayloads(records),
			Metadata: Metadata{
				Source:      SourceCache,
				RecordCount: len(records),
				LastSyncAt:  decision.LastSyncAt,
			},
		}, nil
	}

	raw, err := e.fetcher.FetchAll(ctx, dt.Path, accountID, nil)
	if err != nil {
		return e.degrade(ctx, accountID, dataType, decision, opts, err)
	}

	fetchedAt := e.now()
	records := make([]models.CachedRecord, 0, len(raw))
	for _, payload := range raw {
		records = append(records, models.CachedRecord{
			AccountID: accountID,
			DataType:  dataType,
			Payload:   datatypes.JSON(payload),
			FetchedAt: fetchedAt,
		})
	}
	if err := e.cache.InsertBatch(ctx, records); err != nil {
		return nil, fmt.Errorf("persist records: %w", err)
	}
	if err := e.cache.Prune(ctx, accountID, dataType, e.cat.PruneKeep); err != nil {
		e.log.Warn().Err(err).Str("data_type", dataType).Msg("cache prune failed")
	}
	if err := e.RecordAttempt(ctx, accountID, dataType, models.SyncStatusSuccess, len(raw), ""); err != nil {
		e.log.Warn().Err(err).Str("data_type", dataType).Msg("record attempt failed")
	}

	e.log.Info().
		Str("account_id", accountID).
		Str("data_type", dataType).
		Str("reason", decision.Reason).
		Int("records", len(raw)).
		Msg("synced from provider")

	data := raw
	if opts.Limit > 0 && len(data) > opts.Limit {
		data = data[:opts.Limit]
	}
	return &Result{
		Status: StatusSuccess,
		Data:   data,
		Metadata: Metadata{
			Source:      SourceFresh,
			RecordCount: len(raw),
			LastSyncAt:  &fetchedAt,
		},
	}, nil
}

// degrade records the failed attempt and falls back to stale cache.
func (e *Engine) degrade(ctx context.Context, accountID, dataType string, decision Decision, opts Options, cause error) (*Result, error) {
	e.log.Warn().
		Err(cause).
		Str("account_id", accountID).
		Str("data_type", dataType).
		Msg("provider sync failed")

	if err := e.RecordAttempt(ctx, accountID, dataType, models.SyncStatusFailed, 0, cause.Error()); err != nil {
		e.log.Warn().Err(err).Str("data_type", dataType).Msg("record attempt failed")
	}

	records, err := e.GetCachedData(ctx, accountID, dataType, opts.Limit)
	if err != nil || len(records) == 0 {
		return nil, fmt.Errorf("%w: sync failed and cache is empty: %v", ErrNoData, cause)
	}

	return &Result{
		Status: StatusSuccessWithWarning,
		Data:   recordPayloads(records),
		Metadata: Metadata{
			Source:      SourceStaleCache,
			RecordCount: len(records),
			LastSyncAt:  decision.LastSyncAt,
		},
	}, nil
}

func recordPayloads(records []models.CachedRecord) []json.RawMessage {
	out := make([]json.RawMessage, 0, len(records))
	for _, r := range records {
		out = append(out, json.RawMessage(r.Payload))
	}
	return out
}
