package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/vitalsync/vitalsync/internal/db"
	"github.com/vitalsync/vitalsync/internal/db/models"
	"github.com/vitalsync/vitalsync/internal/providers/catalog"
)

type fakeFetcher struct {
	records []json.RawMessage
	err     error
	calls   atomic.Int64
}

func (f *fakeFetcher) FetchAll(ctx context.Context, path, accountID string, params url.Values) ([]json.RawMessage, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.records, nil
}

func rawRecords(n int) []json.RawMessage {
	out := make([]json.RawMessage, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, json.RawMessage(fmt.Sprintf(`{"n":%d}`, i)))
	}
	return out
}

func newTestEngine(t *testing.T, fetcher Fetcher) (*Engine, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:sync-%d?mode=memory&cache=shared", time.Now().UnixNano())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := gdb.AutoMigrate(&models.SyncLogEntry{}, &models.CachedRecord{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cat, err := catalog.Load("")
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	e := NewEngine(db.NewSyncLogStore(gdb), db.NewCacheStore(gdb), fetcher, cat, zerolog.Nop())
	return e, gdb
}

func seedSyncLog(t *testing.T, gdb *gorm.DB, accountID, dataType string, lastSyncAt time.Time) {
	t.Helper()
	err := gdb.Create(&models.SyncLogEntry{
		AccountID:  accountID,
		DataType:   dataType,
		LastSyncAt: lastSyncAt,
		Status:     models.SyncStatusSuccess,
	}).Error
	if err != nil {
		t.Fatalf("seed sync log: %v", err)
	}
}

func seedCache(t *testing.T, gdb *gorm.DB, accountID, dataType string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		err := gdb.Create(&models.CachedRecord{
			AccountID: accountID,
			DataType:  dataType,
			Payload:   datatypes.JSON(fmt.Sprintf(`{"cached":%d}`, i)),
			FetchedAt: time.Now().Add(-time.Duration(n-i) * time.Minute),
		}).Error
		if err != nil {
			t.Fatalf("seed cache: %v", err)
		}
	}
}

func TestShouldSyncColdStart(t *testing.T) {
	e, _ := newTestEngine(t, &fakeFetcher{})

	d := e.ShouldSync(context.Background(), "acct-1", "sleep", false)
	if !d.ShouldSync || d.Reason != ReasonColdStart {
		t.Fatalf("expected cold start sync, got %+v", d)
	}
}

func TestShouldSyncFreshWithinThreshold(t *testing.T) {
	e, gdb := newTestEngine(t, &fakeFetcher{})
	seedSyncLog(t, gdb, "acct-1", "sleep", time.Now().Add(-30*time.Minute))

	d := e.ShouldSync(context.Background(), "acct-1", "sleep", false)
	if d.ShouldSync {
		t.Fatalf("expected no sync within threshold, got %+v", d)
	}
	if d.Reason != ReasonFresh {
		t.Fatalf("unexpected reason: %s", d.Reason)
	}
	if d.LastSyncAt == nil {
		t.Fatal("expected last sync timestamp")
	}
}

func TestShouldSyncStaleBeyondThreshold(t *testing.T) {
	e, gdb := newTestEngine(t, &fakeFetcher{})
	// sleep has the 2h default threshold.
	seedSyncLog(t, gdb, "acct-1", "sleep", time.Now().Add(-3*time.Hour))

	d := e.ShouldSync(context.Background(), "acct-1", "sleep", false)
	if !d.ShouldSync || d.Reason != ReasonStale {
		t.Fatalf("expected stale sync, got %+v", d)
	}
}

func TestShouldSyncHighFrequencyThreshold(t *testing.T) {
	e, gdb := newTestEngine(t, &fakeFetcher{})
	// heart_rate is high-frequency: 1h threshold.
	seedSyncLog(t, gdb, "acct-1", "heart_rate", time.Now().Add(-90*time.Minute))

	d := e.ShouldSync(context.Background(), "acct-1", "heart_rate", false)
	if !d.ShouldSync {
		t.Fatalf("90min-old heart_rate should be stale, got %+v", d)
	}
}

func TestShouldSyncForceAlwaysWins(t *testing.T) {
	e, gdb := newTestEngine(t, &fakeFetcher{})
	seedSyncLog(t, gdb, "acct-1", "sleep", time.Now().Add(-time.Minute))

	d := e.ShouldSync(context.Background(), "acct-1", "sleep", true)
	if !d.ShouldSync || d.Reason != ReasonForceRefresh {
		t.Fatalf("force refresh must always sync, got %+v", d)
	}
}

func TestGetDataServesFreshCache(t *testing.T) {
	// Scenario A: synced 30 minutes ago, 5 cached records.
	fetcher := &fakeFetcher{records: rawRecords(99)}
	e, gdb := newTestEngine(t, fetcher)
	seedSyncLog(t, gdb, "acct-1", "sleep", time.Now().Add(-30*time.Minute))
	seedCache(t, gdb, "acct-1", "sleep", 5)

	res, err := e.GetData(context.Background(), "acct-1", "sleep", Options{Limit: 10})
	if err != nil {
		t.Fatalf("get data: %v", err)
	}
	if res.Status != StatusSuccess || res.Metadata.Source != SourceCache {
		t.Fatalf("expected cache hit, got %+v", res.Metadata)
	}
	if res.Metadata.RecordCount != 5 || len(res.Data) != 5 {
		t.Fatalf("expected 5 cached records, got %d/%d", res.Metadata.RecordCount, len(res.Data))
	}
	if fetcher.calls.Load() != 0 {
		t.Fatal("fresh cache must not trigger a provider call")
	}
}

func TestGetDataSyncsWhenStale(t *testing.T) {
	// Scenario B: stale log, provider returns 12 records.
	fetcher := &fakeFetcher{records: rawRecords(12)}
	e, gdb := newTestEngine(t, fetcher)
	seedSyncLog(t, gdb, "acct-1", "sleep", time.Now().Add(-3*time.Hour))

	res, err := e.GetData(context.Background(), "acct-1", "sleep", Options{})
	if err != nil {
		t.Fatalf("get data: %v", err)
	}
	if res.Status != StatusSuccess || res.Metadata.Source != SourceFresh {
		t.Fatalf("expected fresh sync, got %+v", res.Metadata)
	}
	if res.Metadata.RecordCount != 12 {
		t.Fatalf("expected 12 records synced, got %d", res.Metadata.RecordCount)
	}

	var entry models.SyncLogEntry
	if err := gdb.First(&entry, "account_id = ? AND data_type = ?", "acct-1", "sleep").Error; err != nil {
		t.Fatalf("load sync log: %v", err)
	}
	if entry.Status != models.SyncStatusSuccess || entry.RecordsSynced != 12 {
		t.Fatalf("attempt not recorded: %+v", entry)
	}

	var cached int64
	gdb.Model(&models.CachedRecord{}).Where("account_id = ?", "acct-1").Count(&cached)
	if cached != 12 {
		t.Fatalf("expected 12 persisted records, got %d", cached)
	}
}

func TestGetDataDegradesToStaleCache(t *testing.T) {
	// Scenario C: stale log, provider down, cache non-empty.
	fetcher := &fakeFetcher{err: errors.New("provider unavailable: status=502 after 4 attempts")}
	e, gdb := newTestEngine(t, fetcher)
	seedSyncLog(t, gdb, "acct-1", "sleep", time.Now().Add(-3*time.Hour))
	seedCache(t, gdb, "acct-1", "sleep", 3)

	res, err := e.GetData(context.Background(), "acct-1", "sleep", Options{Limit: 10})
	if err != nil {
		t.Fatalf("get data: %v", err)
	}
	if res.Status != StatusSuccessWithWarning || res.Metadata.Source != SourceStaleCache {
		t.Fatalf("expected stale cache fallback, got %+v", res)
	}
	if len(res.Data) != 3 {
		t.Fatalf("expected 3 stale records, got %d", len(res.Data))
	}

	var entry models.SyncLogEntry
	if err := gdb.First(&entry, "account_id = ? AND data_type = ?", "acct-1", "sleep").Error; err != nil {
		t.Fatalf("load sync log: %v", err)
	}
	if entry.Status != models.SyncStatusFailed {
		t.Fatalf("failed attempt not recorded: %+v", entry)
	}
	if entry.ErrorMessage == "" {
		t.Fatal("error message not recorded")
	}
}

func TestGetDataHardErrorWhenCacheEmpty(t *testing.T) {
	// Scenario D: stale log, provider down, nothing cached.
	fetcher := &fakeFetcher{err: errors.New("upstream network failure")}
	e, gdb := newTestEngine(t, fetcher)
	seedSyncLog(t, gdb, "acct-1", "sleep", time.Now().Add(-3*time.Hour))

	_, err := e.GetData(context.Background(), "acct-1", "sleep", Options{})
	if !errors.Is(err, ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
}

func TestGetDataUnknownDataType(t *testing.T) {
	e, _ := newTestEngine(t, &fakeFetcher{})

	if _, err := e.GetData(context.Background(), "acct-1", "blood_type", Options{}); err == nil {
		t.Fatal("expected error for unknown data type")
	}
}

func TestGetDataColdStartSyncs(t *testing.T) {
	fetcher := &fakeFetcher{records: rawRecords(4)}
	e, _ := newTestEngine(t, fetcher)

	res, err := e.GetData(context.Background(), "acct-1", "heart_rate", Options{})
	if err != nil {
		t.Fatalf("get data: %v", err)
	}
	if res.Metadata.Source != SourceFresh {
		t.Fatalf("cold start must sync, got %+v", res.Metadata)
	}
	if fetcher.calls.Load() != 1 {
		t.Fatalf("expected one provider call, got %d", fetcher.calls.Load())
	}
}

func TestGetDataLimitBoundsResponse(t *testing.T) {
	fetcher := &fakeFetcher{records: rawRecords(20)}
	e, _ := newTestEngine(t, fetcher)

	res, err := e.GetData(context.Background(), "acct-1", "sleep", Options{Limit: 5})
	if err != nil {
		t.Fatalf("get data: %v", err)
	}
	if len(res.Data) != 5 {
		t.Fatalf("expected 5 records in response, got %d", len(res.Data))
	}
	// RecordCount reflects the full synced batch, not the page.
	if res.Metadata.RecordCount != 20 {
		t.Fatalf("expected record count 20, got %d", res.Metadata.RecordCount)
	}
}

func TestRecordAttemptKeepsSingleRow(t *testing.T) {
	e, gdb := newTestEngine(t, &fakeFetcher{})
	ctx := context.Background()

	if err := e.RecordAttempt(ctx, "acct-1", "sleep", models.SyncStatusSuccess, 3, ""); err != nil {
		t.Fatalf("first attempt: %v", err)
	}
	if err := e.RecordAttempt(ctx, "acct-1", "sleep", models.SyncStatusFailed, 0, "boom"); err != nil {
		t.Fatalf("second attempt: %v", err)
	}

	var count int64
	gdb.Model(&models.SyncLogEntry{}).Where("account_id = ?", "acct-1").Count(&count)
	if count != 1 {
		t.Fatalf("expected one row per pair, got %d", count)
	}
	var entry models.SyncLogEntry
	gdb.First(&entry, "account_id = ?", "acct-1")
	if entry.Status != models.SyncStatusFailed || entry.ErrorMessage != "boom" {
		t.Fatalf("latest attempt not reflected: %+v", entry)
	}
}

func TestGetCachedDataNewestFirst(t *testing.T) {
	e, gdb := newTestEngine(t, &fakeFetcher{})
	seedCache(t, gdb, "acct-1", "sleep", 4)

	records, err := e.GetCachedData(context.Background(), "acct-1", "sleep", 2)
	if err != nil {
		t.Fatalf("get cached: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if !records[0].FetchedAt.After(records[1].FetchedAt) {
		t.Fatal("records not ordered newest-first")
	}
}
