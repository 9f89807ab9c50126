package worker

import (
	"context"
	"fmt"
	"log/slog"

	"contributi/internal/amqp"
	"contributi/internal/sheets"
	"contributi/internal/storage"
)

// SyncWorker exports contributions from SQLite to the group's Google Sheet
// and removes rows for deleted contributions.
type SyncWorker struct {
	storage   *storage.SQLiteRepository
	writer    sheets.ContributionWriter
	deleter   sheets.ContributionDeleter
	batchSize int
}

func NewSyncWorker(storage *storage.SQLiteRepository, writer sheets.ContributionWriter, deleter sheets.ContributionDeleter, batchSize int) *SyncWorker {
	return &SyncWorker{
		storage:   storage,
		writer:    writer,
		deleter:   deleter,
		batchSize: batchSize,
	}
}

// HandleSyncMessage processes a single contribution sync message from AMQP
func (w *SyncWorker) HandleSyncMessage(ctx context.Context, msg *amqp.ContributionSyncMessage) error {
	slog.InfoContext(ctx, "Processing sync message", "id", msg.ID)

	// The message carries only the ID; the row is the source of truth.
	rec, err := w.storage.GetContribution(ctx, msg.ID)
	if err != nil {
		return fmt.Errorf("get contribution from storage: %w", err)
	}

	if err := w.exportContribution(ctx, rec); err != nil {
		return fmt.Errorf("export contribution: %w", err)
	}

	return nil
}

// HandleDeleteMessage processes a single contribution delete message from AMQP
func (w *SyncWorker) HandleDeleteMessage(ctx context.Context, msg *amqp.ContributionDeleteMessage) error {
	slog.InfoContext(ctx, "Processing delete message",
		"id", msg.ID,
		"member", msg.MemberName,
		"year", msg.Year,
		"month", msg.Month)

	if w.deleter == nil {
		slog.WarnContext(ctx, "No sheet deleter configured, skipping deletion", "id", msg.ID)
		return nil
	}

	if err := w.deleter.Delete(ctx, msg.ID); err != nil {
		return fmt.Errorf("delete contribution from sheet: %w", err)
	}

	slog.InfoContext(ctx, "Deleted contribution from sheet", "id", msg.ID)
	return nil
}

// ProcessPending exports one batch of rows still marked pending. An export
// failure leaves the row pending for the next pass.
func (w *SyncWorker) ProcessPending(ctx context.Context) error {
	pending, err := w.storage.GetPendingSyncContributions(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("get pending contributions: %w", err)
	}

	if len(pending) == 0 {
		return nil
	}

	slog.InfoContext(ctx, "Processing pending contributions", "count", len(pending))

	for _, p := range pending {
		rec, err := w.storage.GetContribution(ctx, p.ID)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to get contribution", "id", p.ID, "error", err)
			if err := w.storage.MarkSyncError(ctx, p.ID); err != nil {
				slog.ErrorContext(ctx, "Failed to mark sync error", "id", p.ID, "error", err)
			}
			continue
		}

		if err := w.exportContribution(ctx, rec); err != nil {
			slog.ErrorContext(ctx, "Failed to export contribution", "id", p.ID, "error", err)
			continue
		}
	}

	return nil
}

// StartupSyncCheck drains rows left pending by missed AMQP messages or
// worker downtime. Uses a larger batch than the periodic pass.
func (w *SyncWorker) StartupSyncCheck(ctx context.Context) error {
	pending, err := w.storage.GetPendingSyncContributions(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("get pending contributions for startup check: %w", err)
	}

	if len(pending) == 0 {
		slog.InfoContext(ctx, "No pending contributions found on startup")
		return nil
	}

	slog.InfoContext(ctx, "Found pending contributions on startup, processing...",
		"count", len(pending))

	successCount := 0
	errorCount := 0

	for _, p := range pending {
		rec, err := w.storage.GetContribution(ctx, p.ID)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to get contribution for startup sync",
				"id", p.ID, "error", err)
			if err := w.storage.MarkSyncError(ctx, p.ID); err != nil {
				slog.ErrorContext(ctx, "Failed to mark sync error", "id", p.ID, "error", err)
			}
			errorCount++
			continue
		}

		if err := w.exportContribution(ctx, rec); err != nil {
			slog.ErrorContext(ctx, "Failed to export contribution during startup",
				"id", p.ID, "error", err)
			errorCount++
			continue
		}

		successCount++
	}

	slog.InfoContext(ctx, "Startup sync completed",
		"total", len(pending),
		"synced", successCount,
		"errors", errorCount)

	return nil
}

func (w *SyncWorker) exportContribution(ctx context.Context, rec *storage.ContributionRecord) error {
	if w.writer == nil {
		slog.WarnContext(ctx, "No sheet writer configured, skipping export", "id", rec.ID)
		return nil
	}

	// An edited row may already be in the sheet; drop the stale row first so
	// the export never duplicates.
	if w.deleter != nil {
		if err := w.deleter.Delete(ctx, rec.ID); err != nil {
			slog.WarnContext(ctx, "Failed to remove stale sheet row before export",
				"id", rec.ID, "error", err)
		}
	}

	ref, err := w.writer.Append(ctx, sheets.Row{
		ID:            rec.ID,
		ContributedAt: rec.ContributedAt,
		MemberName:    rec.MemberName,
		AmountCents:   rec.AmountCents,
		Notes:         rec.Notes,
	})
	if err != nil {
		if markErr := w.storage.MarkSyncError(ctx, rec.ID); markErr != nil {
			slog.ErrorContext(ctx, "Failed to mark sync error", "id", rec.ID, "error", markErr)
		}
		return fmt.Errorf("append to sheet: %w", err)
	}

	if err := w.storage.MarkSynced(ctx, rec.ID); err != nil {
		return fmt.Errorf("mark synced: %w", err)
	}

	slog.InfoContext(ctx, "Contribution exported", "id", rec.ID, "row_ref", ref)
	return nil
}
