// Package worker handles background recalculation and spreadsheet export.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"taxledger/internal/amqp"
	"taxledger/internal/core"
)

// Calculator runs tax calculations.
type Calculator interface {
	Calculate(ctx context.Context, taxpayerID uuid.UUID) (core.TaxCalculation, error)
	RecalculateAll(ctx context.Context) (int, error)
}

// BatchExporter pushes pending calculations to the spreadsheet.
type BatchExporter interface {
	ProcessBatch(ctx context.Context) int
}

// SlabCache is a local copy of the bracket table that must be dropped when
// another process changes it.
type SlabCache interface {
	Invalidate()
}

// RecalculationWorker reacts to recalculation requests from AMQP.
type RecalculationWorker struct {
	calculator Calculator
	exporter   BatchExporter
	slabs      SlabCache
	// startupBatches bounds the export drain run at startup.
	startupBatches int
}

// NewRecalculationWorker builds the worker. exporter may be nil when export
// is disabled.
func NewRecalculationWorker(calculator Calculator, exporter BatchExporter) *RecalculationWorker {
	return &RecalculationWorker{
		calculator:     calculator,
		exporter:       exporter,
		startupBatches: 5,
	}
}

// WithSlabCache makes the worker drop c before recalculating after a slab
// table change.
func (w *RecalculationWorker) WithSlabCache(c SlabCache) *RecalculationWorker {
	w.slabs = c
	return w
}

// HandleRecalculation processes a single recalculation message. A message for
// a taxpayer that no longer exists is acknowledged and dropped.
func (w *RecalculationWorker) HandleRecalculation(ctx context.Context, msg *amqp.RecalculationMessage) error {
	slog.InfoContext(ctx, "Processing recalculation message",
		"taxpayer_id", msg.TaxpayerID,
		"reason", msg.Reason)

	if w.slabs != nil && (msg.Reason == amqp.ReasonSlabsChanged || msg.AllTaxpayers()) {
		w.slabs.Invalidate()
	}

	if msg.AllTaxpayers() {
		n, err := w.calculator.RecalculateAll(ctx)
		if err != nil {
			return fmt.Errorf("recalculate all taxpayers: %w", err)
		}
		slog.InfoContext(ctx, "Recalculated all taxpayers", "count", n, "reason", msg.Reason)
		return nil
	}

	id, err := msg.Taxpayer()
	if err != nil {
		slog.WarnContext(ctx, "Dropping recalculation message with bad taxpayer id",
			"taxpayer_id", msg.TaxpayerID, "error", err)
		return nil
	}

	calc, err := w.calculator.Calculate(ctx, id)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			slog.WarnContext(ctx, "Taxpayer no longer exists, skipping recalculation",
				"taxpayer_id", id)
			return nil
		}
		return fmt.Errorf("recalculate taxpayer %s: %w", id, err)
	}

	slog.InfoContext(ctx, "Recalculated taxpayer",
		"taxpayer_id", id,
		"calculation_id", calc.ID,
		"tax_amount", calc.TaxAmount.String())
	return nil
}

// StartupExportCheck drains pending exports left over from earlier runs.
func (w *RecalculationWorker) StartupExportCheck(ctx context.Context) int {
	if w.exporter == nil {
		return 0
	}
	total := 0
	for i := 0; i < w.startupBatches; i++ {
		n := w.exporter.ProcessBatch(ctx)
		total += n
		if n == 0 || ctx.Err() != nil {
			break
		}
	}
	if total == 0 {
		slog.InfoContext(ctx, "No pending exports found on startup")
	} else {
		slog.InfoContext(ctx, "Startup export completed", "exported", total)
	}
	return total
}
