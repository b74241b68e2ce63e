package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taxledger/internal/core"
)

type fixture struct {
	repo *SQLiteRepository
	ctx  context.Context
}

func setupFixture(t *testing.T) *fixture {
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "nested", "tax.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return &fixture{repo: repo, ctx: context.Background()}
}

func (f *fixture) taxpayer(t *testing.T, name string) core.Taxpayer {
	tp := core.Taxpayer{ID: uuid.New(), Name: name, CNIC: "35202-0000000-1", Contact: "0300"}
	require.NoError(t, f.repo.CreateTaxpayer(f.ctx, tp))
	return tp
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestTaxpayerCRUD(t *testing.T) {
	f := setupFixture(t)

	tp := f.taxpayer(t, "Bilal")
	got, err := f.repo.GetTaxpayer(f.ctx, tp.ID)
	require.NoError(t, err)
	assert.Equal(t, tp, got)

	tp.Name = "Bilal Ahmed"
	require.NoError(t, f.repo.UpdateTaxpayer(f.ctx, tp))
	got, err = f.repo.GetTaxpayer(f.ctx, tp.ID)
	require.NoError(t, err)
	assert.Equal(t, "Bilal Ahmed", got.Name)

	f.taxpayer(t, "Amna")
	list, err := f.repo.ListTaxpayers(f.ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Amna", list[0].Name)

	require.NoError(t, f.repo.DeleteTaxpayer(f.ctx, tp.ID))
	_, err = f.repo.GetTaxpayer(f.ctx, tp.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.ErrorIs(t, f.repo.DeleteTaxpayer(f.ctx, tp.ID), core.ErrNotFound)
	assert.ErrorIs(t, f.repo.UpdateTaxpayer(f.ctx, tp), core.ErrNotFound)
}

func TestIncomes(t *testing.T) {
	f := setupFixture(t)
	tp := f.taxpayer(t, "Sana")

	older := core.IncomeEntry{ID: uuid.New(), TaxpayerID: tp.ID, Date: core.NewDate(2025, 1, 15), Type: "Salary", Amount: dec("100000.50")}
	newer := core.IncomeEntry{ID: uuid.New(), TaxpayerID: tp.ID, Date: core.NewDate(2025, 6, 1), Type: "Rent", Amount: dec("19999.50")}
	require.NoError(t, f.repo.CreateIncome(f.ctx, older))
	require.NoError(t, f.repo.CreateIncome(f.ctx, newer))

	list, err := f.repo.ListIncomes(f.ctx, tp.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, newer.ID, list[0].ID, "newest date first")
	assert.True(t, core.TotalIncome(list).Equal(dec("120000")))

	got, err := f.repo.GetIncome(f.ctx, tp.ID, older.ID)
	require.NoError(t, err)
	assert.True(t, got.Amount.Equal(older.Amount))
	assert.True(t, got.Date.Equal(older.Date.Time))

	older.Amount = dec("5")
	require.NoError(t, f.repo.UpdateIncome(f.ctx, older))
	got, err = f.repo.GetIncome(f.ctx, tp.ID, older.ID)
	require.NoError(t, err)
	assert.True(t, got.Amount.Equal(dec("5")))

	_, err = f.repo.GetIncome(f.ctx, uuid.New(), older.ID)
	assert.ErrorIs(t, err, core.ErrNotFound, "income is scoped to its taxpayer")

	require.NoError(t, f.repo.DeleteIncome(f.ctx, tp.ID, older.ID))
	assert.ErrorIs(t, f.repo.DeleteIncome(f.ctx, tp.ID, older.ID), core.ErrNotFound)
}

func TestCreateIncomeForMissingTaxpayer(t *testing.T) {
	f := setupFixture(t)
	err := f.repo.CreateIncome(f.ctx, core.IncomeEntry{
		ID: uuid.New(), TaxpayerID: uuid.New(), Date: core.NewDate(2025, 1, 1), Type: "Salary", Amount: dec("1"),
	})
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestSlabsOrderedNumerically(t *testing.T) {
	f := setupFixture(t)

	// Inserted out of order and with values whose text order differs.
	for _, b := range []core.TaxBracket{
		{Lower: dec("100000"), Upper: core.Unbounded(), RatePercent: dec("20")},
		{Lower: dec("0"), Upper: core.Bounded(dec("50000")), RatePercent: dec("0")},
		{Lower: dec("50000"), Upper: core.Bounded(dec("100000")), RatePercent: dec("10")},
	} {
		_, err := f.repo.CreateSlab(f.ctx, b)
		require.NoError(t, err)
	}

	slabs, err := f.repo.ListSlabs(f.ctx)
	require.NoError(t, err)
	require.Len(t, slabs, 3)
	assert.True(t, slabs[0].Bracket.Lower.IsZero())
	assert.True(t, slabs[1].Bracket.Lower.Equal(dec("50000")))
	assert.False(t, slabs[2].Bracket.Upper.IsBounded())

	tax := core.ComputeTax(dec("120000"), core.Brackets(slabs))
	assert.True(t, tax.Equal(dec("9000")), "got %s", tax)
}

func TestSlabUpdateDelete(t *testing.T) {
	f := setupFixture(t)
	s, err := f.repo.CreateSlab(f.ctx, core.TaxBracket{Lower: dec("0"), Upper: core.Unbounded(), RatePercent: dec("10")})
	require.NoError(t, err)
	assert.NotZero(t, s.ID)

	s.Bracket.RatePercent = dec("12.5")
	s.Bracket.Upper = core.Bounded(dec("1000"))
	require.NoError(t, f.repo.UpdateSlab(f.ctx, s))

	got, err := f.repo.GetSlab(f.ctx, s.ID)
	require.NoError(t, err)
	assert.True(t, got.Bracket.RatePercent.Equal(dec("12.5")))
	upper, ok := got.Bracket.Upper.Amount()
	assert.True(t, ok)
	assert.True(t, upper.Equal(dec("1000")))

	require.NoError(t, f.repo.DeleteSlab(f.ctx, s.ID))
	_, err = f.repo.GetSlab(f.ctx, s.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestCalculationsAndExportQueue(t *testing.T) {
	f := setupFixture(t)
	tp := f.taxpayer(t, "Usman")

	_, err := f.repo.LatestCalculation(f.ctx, tp.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)

	base := time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC)
	first := core.TaxCalculation{ID: uuid.New(), TaxpayerID: tp.ID, TotalIncome: dec("120000"), TaxAmount: dec("9000"), CalculatedAt: base}
	second := core.TaxCalculation{ID: uuid.New(), TaxpayerID: tp.ID, TotalIncome: dec("150000"), TaxAmount: dec("12000.25"), CalculatedAt: base.Add(90 * time.Second)}
	require.NoError(t, f.repo.CreateCalculation(f.ctx, first))
	require.NoError(t, f.repo.CreateCalculation(f.ctx, second))

	latest, err := f.repo.LatestCalculation(f.ctx, tp.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)
	assert.True(t, latest.TaxAmount.Equal(dec("12000.25")))
	assert.True(t, latest.CalculatedAt.Equal(second.CalculatedAt))

	history, err := f.repo.ListCalculations(f.ctx, tp.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, second.ID, history[0].ID)

	pending, err := f.repo.PendingExports(f.ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, first.ID, pending[0].ID, "oldest first")

	require.NoError(t, f.repo.MarkExported(f.ctx, first.ID, base.Add(time.Hour)))
	require.NoError(t, f.repo.MarkExportError(f.ctx, second.ID))
	pending, err = f.repo.PendingExports(f.ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	assert.ErrorIs(t, f.repo.MarkExported(f.ctx, uuid.New(), base), core.ErrNotFound)
}

func TestDeleteTaxpayerCascades(t *testing.T) {
	f := setupFixture(t)
	tp := f.taxpayer(t, "Hina")
	require.NoError(t, f.repo.CreateIncome(f.ctx, core.IncomeEntry{
		ID: uuid.New(), TaxpayerID: tp.ID, Date: core.NewDate(2025, 1, 1), Type: "Salary", Amount: dec("10"),
	}))
	require.NoError(t, f.repo.CreateCalculation(f.ctx, core.TaxCalculation{
		ID: uuid.New(), TaxpayerID: tp.ID, TotalIncome: dec("10"), TaxAmount: dec("0"), CalculatedAt: time.Now(),
	}))

	require.NoError(t, f.repo.DeleteTaxpayer(f.ctx, tp.ID))

	incomes, err := f.repo.ListIncomes(f.ctx, tp.ID)
	require.NoError(t, err)
	assert.Empty(t, incomes)
	calcs, err := f.repo.ListCalculations(f.ctx, tp.ID)
	require.NoError(t, err)
	assert.Empty(t, calcs)
}

func TestUsers(t *testing.T) {
	f := setupFixture(t)
	u := core.User{ID: uuid.New(), Email: "Admin@Example.com", PasswordHash: "hash", Role: core.RoleAdmin}
	require.NoError(t, f.repo.CreateUser(f.ctx, u))

	got, err := f.repo.GetUserByEmail(f.ctx, "ADMIN@example.COM")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, "admin@example.com", got.Email)
	assert.Equal(t, core.RoleAdmin, got.Role)

	dup := core.User{ID: uuid.New(), Email: "admin@example.com", PasswordHash: "x", Role: core.RoleAccountant}
	assert.ErrorIs(t, f.repo.CreateUser(f.ctx, dup), core.ErrConflict)

	_, err = f.repo.GetUserByEmail(f.ctx, "nobody@example.com")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tax.db")
	repo, err := NewSQLiteRepository(path)
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	repo, err = NewSQLiteRepository(path)
	require.NoError(t, err)
	defer repo.Close()
	require.NoError(t, repo.Ping(context.Background()))
}
