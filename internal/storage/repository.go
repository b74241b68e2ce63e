package storage

import (
	"cmp"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"taxledger/internal/core"
	"taxledger/internal/ports"
)

const (
	dateLayout = "2006-01-02"
	// Fixed-width so lexical order in SQLite matches time order.
	timeLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

var _ ports.Store = (*SQLiteRepository)(nil)

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
}

// DSN builds the modernc connection string with foreign keys enforced on
// every pooled connection.
func DSN(dbPath string) string {
	return "file:" + dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := DSN(dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
	}, nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// mapErr translates driver errors into domain sentinels.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return core.ErrNotFound
	}
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return err
	}
	msg := se.Error()
	switch {
	case se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE,
		se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY,
		strings.Contains(msg, "UNIQUE constraint failed"):
		return fmt.Errorf("%w: %v", core.ErrConflict, err)
	case se.Code() == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY,
		strings.Contains(msg, "FOREIGN KEY constraint failed"):
		return fmt.Errorf("%w: %v", core.ErrNotFound, err)
	}
	return err
}

func affected(n int64, err error) error {
	if err != nil {
		return mapErr(err)
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}

// Taxpayers

func (r *SQLiteRepository) ListTaxpayers(ctx context.Context) ([]core.Taxpayer, error) {
	rows, err := r.queries.ListTaxpayers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list taxpayers: %w", err)
	}
	out := make([]core.Taxpayer, 0, len(rows))
	for _, row := range rows {
		t, err := toTaxpayer(row)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (r *SQLiteRepository) GetTaxpayer(ctx context.Context, id uuid.UUID) (core.Taxpayer, error) {
	row, err := r.queries.GetTaxpayer(ctx, id.String())
	if err != nil {
		return core.Taxpayer{}, fmt.Errorf("get taxpayer %s: %w", id, mapErr(err))
	}
	return toTaxpayer(row)
}

func (r *SQLiteRepository) CreateTaxpayer(ctx context.Context, t core.Taxpayer) error {
	err := r.queries.CreateTaxpayer(ctx, CreateTaxpayerParams{
		ID:      t.ID.String(),
		Name:    t.Name,
		Cnic:    t.CNIC,
		Contact: t.Contact,
	})
	if err != nil {
		return fmt.Errorf("create taxpayer: %w", mapErr(err))
	}
	slog.InfoContext(ctx, "Taxpayer saved to SQLite", "taxpayer_id", t.ID)
	return nil
}

func (r *SQLiteRepository) UpdateTaxpayer(ctx context.Context, t core.Taxpayer) error {
	err := affected(r.queries.UpdateTaxpayer(ctx, UpdateTaxpayerParams{
		Name:    t.Name,
		Cnic:    t.CNIC,
		Contact: t.Contact,
		ID:      t.ID.String(),
	}))
	if err != nil {
		return fmt.Errorf("update taxpayer %s: %w", t.ID, err)
	}
	return nil
}

func (r *SQLiteRepository) DeleteTaxpayer(ctx context.Context, id uuid.UUID) error {
	if err := affected(r.queries.DeleteTaxpayer(ctx, id.String())); err != nil {
		return fmt.Errorf("delete taxpayer %s: %w", id, err)
	}
	slog.InfoContext(ctx, "Taxpayer deleted", "taxpayer_id", id)
	return nil
}

// Incomes

func (r *SQLiteRepository) ListIncomes(ctx context.Context, taxpayerID uuid.UUID) ([]core.IncomeEntry, error) {
	rows, err := r.queries.ListIncomeEntries(ctx, taxpayerID.String())
	if err != nil {
		return nil, fmt.Errorf("list incomes: %w", err)
	}
	out := make([]core.IncomeEntry, 0, len(rows))
	for _, row := range rows {
		e, err := toIncome(row)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (r *SQLiteRepository) GetIncome(ctx context.Context, taxpayerID, id uuid.UUID) (core.IncomeEntry, error) {
	row, err := r.queries.GetIncomeEntry(ctx, GetIncomeEntryParams{TaxpayerID: taxpayerID.String(), ID: id.String()})
	if err != nil {
		return core.IncomeEntry{}, fmt.Errorf("get income %s: %w", id, mapErr(err))
	}
	return toIncome(row)
}

func (r *SQLiteRepository) CreateIncome(ctx context.Context, e core.IncomeEntry) error {
	err := r.queries.CreateIncomeEntry(ctx, CreateIncomeEntryParams{
		ID:         e.ID.String(),
		TaxpayerID: e.TaxpayerID.String(),
		Date:       e.Date.UTC().Format(dateLayout),
		Type:       e.Type,
		Amount:     e.Amount.String(),
	})
	if err != nil {
		return fmt.Errorf("create income: %w", mapErr(err))
	}
	slog.InfoContext(ctx, "Income saved to SQLite",
		"income_id", e.ID,
		"taxpayer_id", e.TaxpayerID,
		"amount", e.Amount.String())
	return nil
}

func (r *SQLiteRepository) UpdateIncome(ctx context.Context, e core.IncomeEntry) error {
	err := affected(r.queries.UpdateIncomeEntry(ctx, UpdateIncomeEntryParams{
		Date:       e.Date.UTC().Format(dateLayout),
		Type:       e.Type,
		Amount:     e.Amount.String(),
		TaxpayerID: e.TaxpayerID.String(),
		ID:         e.ID.String(),
	}))
	if err != nil {
		return fmt.Errorf("update income %s: %w", e.ID, err)
	}
	return nil
}

func (r *SQLiteRepository) DeleteIncome(ctx context.Context, taxpayerID, id uuid.UUID) error {
	err := affected(r.queries.DeleteIncomeEntry(ctx, DeleteIncomeEntryParams{TaxpayerID: taxpayerID.String(), ID: id.String()}))
	if err != nil {
		return fmt.Errorf("delete income %s: %w", id, err)
	}
	return nil
}

// Slabs

// ListSlabs orders by lower bound in Go; amounts are TEXT so SQL ordering
// would be lexical.
func (r *SQLiteRepository) ListSlabs(ctx context.Context) ([]core.TaxSlab, error) {
	rows, err := r.queries.ListTaxSlabs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list slabs: %w", err)
	}
	out := make([]core.TaxSlab, 0, len(rows))
	for _, row := range rows {
		s, err := toSlab(row)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	slices.SortStableFunc(out, func(a, b core.TaxSlab) int {
		if c := a.Bracket.Lower.Cmp(b.Bracket.Lower); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (r *SQLiteRepository) GetSlab(ctx context.Context, id int64) (core.TaxSlab, error) {
	row, err := r.queries.GetTaxSlab(ctx, id)
	if err != nil {
		return core.TaxSlab{}, fmt.Errorf("get slab %d: %w", id, mapErr(err))
	}
	return toSlab(row)
}

func (r *SQLiteRepository) CreateSlab(ctx context.Context, b core.TaxBracket) (core.TaxSlab, error) {
	row, err := r.queries.CreateTaxSlab(ctx, CreateTaxSlabParams{
		FromAmount:  b.Lower.String(),
		ToAmount:    b.Upper.Sentinel().String(),
		RatePercent: b.RatePercent.String(),
	})
	if err != nil {
		return core.TaxSlab{}, fmt.Errorf("create slab: %w", mapErr(err))
	}
	return toSlab(row)
}

func (r *SQLiteRepository) UpdateSlab(ctx context.Context, s core.TaxSlab) error {
	err := affected(r.queries.UpdateTaxSlab(ctx, UpdateTaxSlabParams{
		FromAmount:  s.Bracket.Lower.String(),
		ToAmount:    s.Bracket.Upper.Sentinel().String(),
		RatePercent: s.Bracket.RatePercent.String(),
		ID:          s.ID,
	}))
	if err != nil {
		return fmt.Errorf("update slab %d: %w", s.ID, err)
	}
	return nil
}

func (r *SQLiteRepository) DeleteSlab(ctx context.Context, id int64) error {
	if err := affected(r.queries.DeleteTaxSlab(ctx, id)); err != nil {
		return fmt.Errorf("delete slab %d: %w", id, err)
	}
	return nil
}

// Calculations

func (r *SQLiteRepository) CreateCalculation(ctx context.Context, c core.TaxCalculation) error {
	err := r.queries.CreateTaxCalculation(ctx, CreateTaxCalculationParams{
		ID:           c.ID.String(),
		TaxpayerID:   c.TaxpayerID.String(),
		TotalIncome:  c.TotalIncome.String(),
		TaxAmount:    c.TaxAmount.String(),
		CalculatedAt: c.CalculatedAt.UTC().Format(timeLayout),
	})
	if err != nil {
		return fmt.Errorf("create calculation: %w", mapErr(err))
	}
	slog.InfoContext(ctx, "Calculation saved to SQLite",
		"calculation_id", c.ID,
		"taxpayer_id", c.TaxpayerID,
		"tax_amount", c.TaxAmount.String())
	return nil
}

func (r *SQLiteRepository) LatestCalculation(ctx context.Context, taxpayerID uuid.UUID) (core.TaxCalculation, error) {
	row, err := r.queries.GetLatestTaxCalculation(ctx, taxpayerID.String())
	if err != nil {
		return core.TaxCalculation{}, fmt.Errorf("get latest calculation: %w", mapErr(err))
	}
	return toCalculation(row)
}

func (r *SQLiteRepository) ListCalculations(ctx context.Context, taxpayerID uuid.UUID) ([]core.TaxCalculation, error) {
	rows, err := r.queries.ListTaxCalculations(ctx, taxpayerID.String())
	if err != nil {
		return nil, fmt.Errorf("list calculations: %w", err)
	}
	return toCalculations(rows)
}

// PendingExports returns calculations waiting for the spreadsheet export.
func (r *SQLiteRepository) PendingExports(ctx context.Context, limit int) ([]core.TaxCalculation, error) {
	rows, err := r.queries.GetPendingExports(ctx, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("get pending exports: %w", err)
	}
	return toCalculations(rows)
}

func (r *SQLiteRepository) MarkExported(ctx context.Context, id uuid.UUID, at time.Time) error {
	err := affected(r.queries.MarkCalculationExported(ctx, MarkCalculationExportedParams{
		ExportedAt: sql.NullString{String: at.UTC().Format(timeLayout), Valid: true},
		ID:         id.String(),
	}))
	if err != nil {
		return fmt.Errorf("mark calculation exported: %w", err)
	}
	slog.InfoContext(ctx, "Calculation marked as exported", "calculation_id", id)
	return nil
}

func (r *SQLiteRepository) MarkExportError(ctx context.Context, id uuid.UUID) error {
	if err := affected(r.queries.MarkCalculationExportError(ctx, id.String())); err != nil {
		return fmt.Errorf("mark calculation export error: %w", err)
	}
	slog.WarnContext(ctx, "Calculation marked with export error", "calculation_id", id)
	return nil
}

// Users

func (r *SQLiteRepository) CreateUser(ctx context.Context, u core.User) error {
	err := r.queries.CreateUser(ctx, CreateUserParams{
		ID:           u.ID.String(),
		Email:        core.NormalizeEmail(u.Email),
		PasswordHash: u.PasswordHash,
		Role:         string(u.Role),
	})
	if err != nil {
		return fmt.Errorf("create user: %w", mapErr(err))
	}
	return nil
}

func (r *SQLiteRepository) GetUserByEmail(ctx context.Context, email string) (core.User, error) {
	row, err := r.queries.GetUserByEmail(ctx, core.NormalizeEmail(email))
	if err != nil {
		return core.User{}, fmt.Errorf("get user by email: %w", mapErr(err))
	}
	id, err := uuid.Parse(row.ID)
	if err != nil {
		return core.User{}, fmt.Errorf("parse user id: %w", err)
	}
	return core.User{ID: id, Email: row.Email, PasswordHash: row.PasswordHash, Role: core.Role(row.Role)}, nil
}

// Row conversion

func toTaxpayer(row Taxpayer) (core.Taxpayer, error) {
	id, err := uuid.Parse(row.ID)
	if err != nil {
		return core.Taxpayer{}, fmt.Errorf("parse taxpayer id %q: %w", row.ID, err)
	}
	return core.Taxpayer{ID: id, Name: row.Name, CNIC: row.Cnic, Contact: row.Contact}, nil
}

func toIncome(row IncomeEntry) (core.IncomeEntry, error) {
	id, err := uuid.Parse(row.ID)
	if err != nil {
		return core.IncomeEntry{}, fmt.Errorf("parse income id %q: %w", row.ID, err)
	}
	tid, err := uuid.Parse(row.TaxpayerID)
	if err != nil {
		return core.IncomeEntry{}, fmt.Errorf("parse taxpayer id %q: %w", row.TaxpayerID, err)
	}
	date, err := time.Parse(dateLayout, row.Date)
	if err != nil {
		return core.IncomeEntry{}, fmt.Errorf("parse income date %q: %w", row.Date, err)
	}
	amount, err := decimal.NewFromString(row.Amount)
	if err != nil {
		return core.IncomeEntry{}, fmt.Errorf("parse income amount %q: %w", row.Amount, err)
	}
	return core.IncomeEntry{ID: id, TaxpayerID: tid, Date: core.Date{Time: date}, Type: row.Type, Amount: amount}, nil
}

func toSlab(row TaxSlab) (core.TaxSlab, error) {
	from, err := decimal.NewFromString(row.FromAmount)
	if err != nil {
		return core.TaxSlab{}, fmt.Errorf("parse slab %d from amount: %w", row.ID, err)
	}
	to, err := decimal.NewFromString(row.ToAmount)
	if err != nil {
		return core.TaxSlab{}, fmt.Errorf("parse slab %d to amount: %w", row.ID, err)
	}
	rate, err := decimal.NewFromString(row.RatePercent)
	if err != nil {
		return core.TaxSlab{}, fmt.Errorf("parse slab %d rate: %w", row.ID, err)
	}
	return core.TaxSlab{
		ID:      row.ID,
		Bracket: core.TaxBracket{Lower: from, Upper: core.UpperFromSentinel(to), RatePercent: rate},
	}, nil
}

func toCalculation(row TaxCalculation) (core.TaxCalculation, error) {
	id, err := uuid.Parse(row.ID)
	if err != nil {
		return core.TaxCalculation{}, fmt.Errorf("parse calculation id %q: %w", row.ID, err)
	}
	tid, err := uuid.Parse(row.TaxpayerID)
	if err != nil {
		return core.TaxCalculation{}, fmt.Errorf("parse taxpayer id %q: %w", row.TaxpayerID, err)
	}
	total, err := decimal.NewFromString(row.TotalIncome)
	if err != nil {
		return core.TaxCalculation{}, fmt.Errorf("parse total income: %w", err)
	}
	tax, err := decimal.NewFromString(row.TaxAmount)
	if err != nil {
		return core.TaxCalculation{}, fmt.Errorf("parse tax amount: %w", err)
	}
	at, err := time.Parse(timeLayout, row.CalculatedAt)
	if err != nil {
		return core.TaxCalculation{}, fmt.Errorf("parse calculated at %q: %w", row.CalculatedAt, err)
	}
	return core.TaxCalculation{ID: id, TaxpayerID: tid, TotalIncome: total, TaxAmount: tax, CalculatedAt: at.UTC()}, nil
}

func toCalculations(rows []TaxCalculation) ([]core.TaxCalculation, error) {
	out := make([]core.TaxCalculation, 0, len(rows))
	for _, row := range rows {
		c, err := toCalculation(row)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}
