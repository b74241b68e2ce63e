// Package ports declares the storage and outbound interfaces the services
// depend on. SQLite and in-memory stores implement the store ports; the
// Google Sheets client and the AMQP client implement the outbound ones.
package ports

import (
	"context"
	"time"

	"github.com/google/uuid"

	"taxledger/internal/core"
)

type (
	TaxpayerStore interface {
		ListTaxpayers(ctx context.Context) ([]core.Taxpayer, error)
		GetTaxpayer(ctx context.Context, id uuid.UUID) (core.Taxpayer, error)
		CreateTaxpayer(ctx context.Context, t core.Taxpayer) error
		UpdateTaxpayer(ctx context.Context, t core.Taxpayer) error
		// DeleteTaxpayer removes the taxpayer with its incomes and calculations.
		DeleteTaxpayer(ctx context.Context, id uuid.UUID) error
	}

	// IncomeStore holds income entries scoped to a taxpayer.
	IncomeStore interface {
		// ListIncomes returns entries newest date first.
		ListIncomes(ctx context.Context, taxpayerID uuid.UUID) ([]core.IncomeEntry, error)
		GetIncome(ctx context.Context, taxpayerID, id uuid.UUID) (core.IncomeEntry, error)
		CreateIncome(ctx context.Context, e core.IncomeEntry) error
		UpdateIncome(ctx context.Context, e core.IncomeEntry) error
		DeleteIncome(ctx context.Context, taxpayerID, id uuid.UUID) error
	}

	SlabStore interface {
		// ListSlabs returns the bracket table ordered by lower bound.
		ListSlabs(ctx context.Context) ([]core.TaxSlab, error)
		GetSlab(ctx context.Context, id int64) (core.TaxSlab, error)
		CreateSlab(ctx context.Context, b core.TaxBracket) (core.TaxSlab, error)
		UpdateSlab(ctx context.Context, s core.TaxSlab) error
		DeleteSlab(ctx context.Context, id int64) error
	}

	CalculationStore interface {
		CreateCalculation(ctx context.Context, c core.TaxCalculation) error
		// LatestCalculation returns core.ErrNotFound when none exist.
		LatestCalculation(ctx context.Context, taxpayerID uuid.UUID) (core.TaxCalculation, error)
		// ListCalculations returns newest first.
		ListCalculations(ctx context.Context, taxpayerID uuid.UUID) ([]core.TaxCalculation, error)
	}

	// ExportQueue tracks calculations not yet pushed to the spreadsheet.
	ExportQueue interface {
		// PendingExports returns up to limit pending calculations, oldest first.
		PendingExports(ctx context.Context, limit int) ([]core.TaxCalculation, error)
		MarkExported(ctx context.Context, id uuid.UUID, at time.Time) error
		MarkExportError(ctx context.Context, id uuid.UUID) error
	}

	UserStore interface {
		// CreateUser returns core.ErrConflict when the email is taken.
		CreateUser(ctx context.Context, u core.User) error
		// GetUserByEmail matches case-insensitively.
		GetUserByEmail(ctx context.Context, email string) (core.User, error)
	}

	// Store is the full persistence surface of a data backend.
	Store interface {
		TaxpayerStore
		IncomeStore
		SlabStore
		CalculationStore
		ExportQueue
		UserStore
		Ping(ctx context.Context) error
		Close() error
	}

	// CalculationExporter writes a calculation to an external sheet.
	CalculationExporter interface {
		AppendCalculation(ctx context.Context, t core.Taxpayer, c core.TaxCalculation) error
	}

	// RecalculationPublisher requests asynchronous recalculation. An empty
	// taxpayerID means every taxpayer.
	RecalculationPublisher interface {
		PublishRecalculation(ctx context.Context, taxpayerID, reason string) error
	}
)
