package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kprasolov/betledger/internal/domain"
)

// ---------------------------------------------------------------------------
// Narrow store interfaces required by the archiver.
//
// The archiver only needs the query methods it actually calls, not the full
// domain store interfaces. The Postgres stores satisfy these implicitly.
// ---------------------------------------------------------------------------

// MarketArchiveStore provides read access to settled markets for archival.
type MarketArchiveStore interface {
	// ListResolvedBefore returns all resolved markets whose end time is
	// strictly before the given cutoff.
	ListResolvedBefore(ctx context.Context, before time.Time) ([]domain.Market, error)
}

// BetArchiveStore provides read access to bets for archival.
type BetArchiveStore interface {
	ListByMarket(ctx context.Context, marketID uint64) ([]domain.Bet, error)
}

// EventArchiveStore provides read access to the event journal for archival.
type EventArchiveStore interface {
	// ListBefore returns all events that occurred strictly before the given
	// cutoff time.
	ListBefore(ctx context.Context, before time.Time) ([]domain.Event, error)
}

// ---------------------------------------------------------------------------
// ArchiveImpl
// ---------------------------------------------------------------------------

// ArchiveImpl implements domain.Archiver by querying the mirror stores for
// settled history, serializing it to JSONL, and uploading the result to S3.
//
// Markets and bets are archived only once the market is resolved: active and
// locked markets can still change, so exporting them would snapshot state
// that the next resolution invalidates. Deletion of archived rows from the
// primary store is intentionally NOT performed here; that is a separate,
// explicit step to be executed after the archive has been verified.
type ArchiveImpl struct {
	writer  domain.BlobWriter
	markets MarketArchiveStore
	bets    BetArchiveStore
	events  EventArchiveStore
	audit   domain.AuditStore
}

var _ domain.Archiver = (*ArchiveImpl)(nil)

// NewArchiver creates a new ArchiveImpl.
func NewArchiver(
	writer domain.BlobWriter,
	markets MarketArchiveStore,
	bets BetArchiveStore,
	events EventArchiveStore,
	audit domain.AuditStore,
) *ArchiveImpl {
	return &ArchiveImpl{
		writer:  writer,
		markets: markets,
		bets:    bets,
		events:  events,
		audit:   audit,
	}
}

// ArchiveMarkets queries resolved markets that ended before the cutoff,
// serializes them to JSONL, and uploads the file to S3 at
// archive/markets/YYYY-MM.jsonl. The archival is recorded in the audit log
// and the count of archived records is returned.
func (a *ArchiveImpl) ArchiveMarkets(ctx context.Context, before time.Time) (int64, error) {
	markets, err := a.markets.ListResolvedBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive markets query: %w", err)
	}
	if len(markets) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(markets)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive markets marshal: %w", err)
	}

	path := archivePath("markets", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive markets upload: %w", err)
	}

	count := int64(len(markets))

	if err := a.logArchive(ctx, "archive.markets", path, count, before); err != nil {
		return count, err
	}
	return count, nil
}

// ArchiveBets archives every bet belonging to a resolved market that ended
// before the cutoff. Bets ride with their market: a bet on a still-active
// market has no final reward yet and stays in the primary store.
func (a *ArchiveImpl) ArchiveBets(ctx context.Context, before time.Time) (int64, error) {
	markets, err := a.markets.ListResolvedBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive bets query markets: %w", err)
	}

	var bets []domain.Bet
	for _, m := range markets {
		marketBets, err := a.bets.ListByMarket(ctx, m.ID)
		if err != nil {
			return 0, fmt.Errorf("s3blob: archive bets query market %d: %w", m.ID, err)
		}
		bets = append(bets, marketBets...)
	}
	if len(bets) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(bets)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive bets marshal: %w", err)
	}

	path := archivePath("bets", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive bets upload: %w", err)
	}

	count := int64(len(bets))

	if err := a.logArchive(ctx, "archive.bets", path, count, before); err != nil {
		return count, err
	}
	return count, nil
}

// ArchiveEvents queries all journaled events before the cutoff, serializes
// them to JSONL, and uploads the file to S3 at archive/events/YYYY-MM.jsonl.
func (a *ArchiveImpl) ArchiveEvents(ctx context.Context, before time.Time) (int64, error) {
	events, err := a.events.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive events query: %w", err)
	}
	if len(events) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(events)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive events marshal: %w", err)
	}

	path := archivePath("events", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive events upload: %w", err)
	}

	count := int64(len(events))

	if err := a.logArchive(ctx, "archive.events", path, count, before); err != nil {
		return count, err
	}
	return count, nil
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

// logArchive records one archive upload in the audit log.
func (a *ArchiveImpl) logArchive(ctx context.Context, event, path string, count int64, before time.Time) error {
	if err := a.audit.Log(ctx, event, map[string]any{
		"path":   path,
		"count":  count,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return fmt.Errorf("s3blob: %s audit log: %w", event, err)
	}
	return nil
}

// archivePath builds the S3 key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/markets/2026-08.jsonl
//	archive/bets/2026-08.jsonl
//	archive/events/2026-08.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON (JSONL).
// Each element is marshalled as a single compact JSON line followed by '\n'.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
