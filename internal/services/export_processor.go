package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"taxledger/internal/core"
	"taxledger/internal/ports"
)

// ExportProcessorConfig holds configuration for the export processor
type ExportProcessorConfig struct {
	// PollInterval is how often to check for pending calculations (default: 30s)
	PollInterval time.Duration

	// BatchSize is the max number of calculations exported per cycle (default: 10)
	BatchSize int

	// MaxRetries is the number of failed attempts before a calculation is
	// marked as errored (default: 3)
	MaxRetries int
}

// DefaultExportProcessorConfig returns sensible defaults
func DefaultExportProcessorConfig() ExportProcessorConfig {
	return ExportProcessorConfig{
		PollInterval: 30 * time.Second,
		BatchSize:    10,
		MaxRetries:   3,
	}
}

// ExportProcessor pushes pending calculations to the spreadsheet.
type ExportProcessor struct {
	queue     ports.ExportQueue
	taxpayers ports.TaxpayerStore
	exporter  ports.CalculationExporter
	config    ExportProcessorConfig
	now       func() time.Time

	// attempts counts failures per calculation for this process lifetime.
	attempts map[uuid.UUID]int

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewExportProcessor(
	queue ports.ExportQueue,
	taxpayers ports.TaxpayerStore,
	exporter ports.CalculationExporter,
	config ExportProcessorConfig,
) *ExportProcessor {
	if config.BatchSize < 1 {
		config.BatchSize = DefaultExportProcessorConfig().BatchSize
	}
	if config.MaxRetries < 1 {
		config.MaxRetries = DefaultExportProcessorConfig().MaxRetries
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultExportProcessorConfig().PollInterval
	}
	return &ExportProcessor{
		queue:     queue,
		taxpayers: taxpayers,
		exporter:  exporter,
		config:    config,
		now:       time.Now,
		attempts:  map[uuid.UUID]int{},
	}
}

// Start begins the processing loop. Returns an error if already running.
func (p *ExportProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("export processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go p.runLoop(ctx)

	slog.InfoContext(ctx, "Export processor started",
		"poll_interval", p.config.PollInterval,
		"batch_size", p.config.BatchSize)

	return nil
}

// Stop gracefully stops the processor and waits for completion.
func (p *ExportProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	close(p.stopCh)

	select {
	case <-p.doneCh:
		slog.InfoContext(ctx, "Export processor stopped gracefully")
	case <-ctx.Done():
		slog.WarnContext(ctx, "Export processor stop timed out")
		return ctx.Err()
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	return nil
}

func (p *ExportProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *ExportProcessor) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	p.ProcessBatch(ctx)

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.ProcessBatch(ctx)
		}
	}
}

// ProcessBatch exports one batch of pending calculations and returns how
// many were exported.
func (p *ExportProcessor) ProcessBatch(ctx context.Context) int {
	items, err := p.queue.PendingExports(ctx, p.config.BatchSize)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to fetch pending exports", "error", err)
		return 0
	}
	if len(items) == 0 {
		return 0
	}

	slog.DebugContext(ctx, "Processing export batch", "count", len(items))

	exported := 0
	for _, calc := range items {
		if ctx.Err() != nil {
			return exported
		}
		if err := p.exportOne(ctx, calc); err != nil {
			p.handleFailure(ctx, calc, err)
			continue
		}
		exported++
	}
	return exported
}

func (p *ExportProcessor) exportOne(ctx context.Context, calc core.TaxCalculation) error {
	taxpayer, err := p.taxpayers.GetTaxpayer(ctx, calc.TaxpayerID)
	if err != nil {
		return fmt.Errorf("get taxpayer %s: %w", calc.TaxpayerID, err)
	}
	if err := p.exporter.AppendCalculation(ctx, taxpayer, calc); err != nil {
		return fmt.Errorf("append to sheets: %w", err)
	}
	if err := p.queue.MarkExported(ctx, calc.ID, p.now()); err != nil {
		// The row is already in the sheet; a retry would duplicate it.
		slog.WarnContext(ctx, "Failed to mark calculation as exported",
			"calculation_id", calc.ID, "error", err)
	}
	p.mu.Lock()
	delete(p.attempts, calc.ID)
	p.mu.Unlock()

	slog.InfoContext(ctx, "Exported calculation to Google Sheets",
		"calculation_id", calc.ID,
		"taxpayer_id", calc.TaxpayerID)
	return nil
}

// handleFailure leaves the calculation pending until MaxRetries is reached,
// then marks it errored. A missing taxpayer fails immediately.
func (p *ExportProcessor) handleFailure(ctx context.Context, calc core.TaxCalculation, exportErr error) {
	p.mu.Lock()
	p.attempts[calc.ID]++
	attempt := p.attempts[calc.ID]
	p.mu.Unlock()

	slog.WarnContext(ctx, "Export failed",
		"calculation_id", calc.ID,
		"attempt", attempt,
		"error", exportErr)

	if attempt < p.config.MaxRetries && !errors.Is(exportErr, core.ErrNotFound) {
		return
	}

	if err := p.queue.MarkExportError(ctx, calc.ID); err != nil {
		slog.ErrorContext(ctx, "Failed to mark calculation export error",
			"calculation_id", calc.ID, "error", err)
		return
	}
	p.mu.Lock()
	delete(p.attempts, calc.ID)
	p.mu.Unlock()

	slog.ErrorContext(ctx, "Calculation export failed permanently",
		"calculation_id", calc.ID,
		"attempts", attempt)
}
