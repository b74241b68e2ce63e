package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taxledger/internal/amqp"
	"taxledger/internal/core"
	"taxledger/internal/memory"
)

type published struct {
	taxpayerID string
	reason     string
}

type fakePublisher struct {
	mu   sync.Mutex
	sent []published
	err  error
}

func (f *fakePublisher) PublishRecalculation(_ context.Context, taxpayerID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, published{taxpayerID, reason})
	return f.err
}

func (f *fakePublisher) messages() []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]published(nil), f.sent...)
}

type countingSlabs struct {
	*memory.Store
	mu    sync.Mutex
	loads int
}

func (c *countingSlabs) ListSlabs(ctx context.Context) ([]core.TaxSlab, error) {
	c.mu.Lock()
	c.loads++
	c.mu.Unlock()
	return c.Store.ListSlabs(ctx)
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func twoBrackets() []core.TaxBracket {
	return []core.TaxBracket{
		{Lower: dec("0"), Upper: core.Bounded(dec("100000")), RatePercent: dec("0")},
		{Lower: dec("100000"), Upper: core.Unbounded(), RatePercent: dec("20")},
	}
}

type fixture struct {
	store        *memory.Store
	publisher    *fakePublisher
	slabs        *SlabService
	taxpayers    *TaxpayerService
	incomes      *IncomeService
	calculations *CalculationService
	clock        time.Time
}

func newFixture(t *testing.T, brackets ...core.TaxBracket) *fixture {
	t.Helper()
	f := &fixture{
		store:     memory.New(brackets...),
		publisher: &fakePublisher{},
		clock:     time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	f.slabs = NewSlabService(f.store, f.publisher)
	f.taxpayers = NewTaxpayerService(f.store, f.store)
	f.incomes = NewIncomeService(f.store, f.store, f.publisher)
	f.calculations = NewCalculationService(f.store, f.store, f.store, f.slabs).
		WithClock(func() time.Time {
			f.clock = f.clock.Add(time.Second)
			return f.clock
		})
	return f
}

func (f *fixture) taxpayer(t *testing.T, name string, amounts ...string) core.Taxpayer {
	t.Helper()
	ctx := context.Background()
	tp, err := f.taxpayers.Create(ctx, core.Taxpayer{Name: name, CNIC: "35202-1234567-1"})
	require.NoError(t, err)
	for i, a := range amounts {
		_, err := f.incomes.Create(ctx, core.IncomeEntry{
			TaxpayerID: tp.ID,
			Date:       core.NewDate(2024, 1, i+1),
			Type:       "Salary",
			Amount:     dec(a),
		})
		require.NoError(t, err)
	}
	return tp
}

func TestTaxpayerService_CreateTrimsAndValidates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tp, err := f.taxpayers.Create(ctx, core.Taxpayer{Name: "  Ayesha Khan ", CNIC: " 42101 ", Contact: " 0300 "})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, tp.ID)
	assert.Equal(t, "Ayesha Khan", tp.Name)
	assert.Equal(t, "42101", tp.CNIC)
	assert.Equal(t, "0300", tp.Contact)

	_, err = f.taxpayers.Create(ctx, core.Taxpayer{Name: "   ", CNIC: "1"})
	assert.ErrorIs(t, err, core.ErrEmptyName)

	_, err = f.taxpayers.Create(ctx, core.Taxpayer{Name: "x", CNIC: ""})
	assert.ErrorIs(t, err, core.ErrEmptyCNIC)
}

func TestTaxpayerService_GetIncludesIncomes(t *testing.T) {
	f := newFixture(t)
	tp := f.taxpayer(t, "Bilal", "100", "200")

	d, err := f.taxpayers.Get(context.Background(), tp.ID)
	require.NoError(t, err)
	assert.Equal(t, "Bilal", d.Name)
	require.Len(t, d.Incomes, 2)
	assert.True(t, d.Incomes[0].Date.After(d.Incomes[1].Date.Time), "newest first")

	_, err = f.taxpayers.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestTaxpayerService_UpdateDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tp := f.taxpayer(t, "Old")

	tp.Name = "New"
	require.NoError(t, f.taxpayers.Update(ctx, tp))
	got, err := f.taxpayers.Get(ctx, tp.ID)
	require.NoError(t, err)
	assert.Equal(t, "New", got.Name)

	require.NoError(t, f.taxpayers.Delete(ctx, tp.ID))
	assert.ErrorIs(t, f.taxpayers.Delete(ctx, tp.ID), core.ErrNotFound)
	assert.ErrorIs(t, f.taxpayers.Update(ctx, tp), core.ErrNotFound)
}

func TestIncomeService_CreatePublishes(t *testing.T) {
	f := newFixture(t)
	tp := f.taxpayer(t, "Sana")

	e, err := f.incomes.Create(context.Background(), core.IncomeEntry{
		TaxpayerID: tp.ID,
		Date:       core.NewDate(2024, 3, 1),
		Type:       " Rent ",
		Amount:     dec("1200.555"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Rent", e.Type)
	assert.True(t, e.Amount.Equal(dec("1200.56")))

	msgs := f.publisher.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, published{tp.ID.String(), amqp.ReasonIncomeCreated}, msgs[0])
}

func TestIncomeService_Validation(t *testing.T) {
	f := newFixture(t)
	tp := f.taxpayer(t, "Sana")
	ctx := context.Background()

	tests := []struct {
		name  string
		entry core.IncomeEntry
		want  error
	}{
		{"zero amount", core.IncomeEntry{TaxpayerID: tp.ID, Date: core.NewDate(2024, 1, 1), Type: "x", Amount: dec("0")}, core.ErrInvalidAmount},
		{"negative amount", core.IncomeEntry{TaxpayerID: tp.ID, Date: core.NewDate(2024, 1, 1), Type: "x", Amount: dec("-5")}, core.ErrInvalidAmount},
		{"rounds to zero", core.IncomeEntry{TaxpayerID: tp.ID, Date: core.NewDate(2024, 1, 1), Type: "x", Amount: dec("0.004")}, core.ErrInvalidAmount},
		{"missing date", core.IncomeEntry{TaxpayerID: tp.ID, Type: "x", Amount: dec("1")}, core.ErrInvalidDate},
		{"blank type", core.IncomeEntry{TaxpayerID: tp.ID, Date: core.NewDate(2024, 1, 1), Type: "  ", Amount: dec("1")}, core.ErrEmptyType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.incomes.Create(ctx, tt.entry)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Empty(t, f.publisher.messages())

	_, err := f.incomes.Create(ctx, core.IncomeEntry{TaxpayerID: uuid.New(), Date: core.NewDate(2024, 1, 1), Type: "x", Amount: dec("1")})
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestIncomeService_UpdateDeleteScopedToTaxpayer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.taxpayer(t, "A", "100")
	b := f.taxpayer(t, "B")

	list, err := f.incomes.List(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	entry := list[0]

	moved := entry
	moved.TaxpayerID = b.ID
	assert.ErrorIs(t, f.incomes.Update(ctx, moved), core.ErrNotFound)
	assert.ErrorIs(t, f.incomes.Delete(ctx, b.ID, entry.ID), core.ErrNotFound)

	entry.Amount = dec("250")
	require.NoError(t, f.incomes.Update(ctx, entry))
	require.NoError(t, f.incomes.Delete(ctx, a.ID, entry.ID))

	_, err = f.incomes.List(ctx, uuid.New())
	assert.ErrorIs(t, err, core.ErrNotFound)

	reasons := []string{}
	for _, m := range f.publisher.messages() {
		reasons = append(reasons, m.reason)
	}
	assert.Equal(t, []string{amqp.ReasonIncomeCreated, amqp.ReasonIncomeUpdated, amqp.ReasonIncomeDeleted}, reasons)
}

func TestIncomeService_PublishFailureDoesNotFailWrite(t *testing.T) {
	f := newFixture(t)
	f.publisher.err = errors.New("broker down")
	tp := f.taxpayer(t, "C")

	_, err := f.incomes.Create(context.Background(), core.IncomeEntry{
		TaxpayerID: tp.ID, Date: core.NewDate(2024, 1, 1), Type: "x", Amount: dec("10"),
	})
	assert.NoError(t, err)
}

func TestIncomeService_NilPublisher(t *testing.T) {
	store := memory.New()
	tps := NewTaxpayerService(store, store)
	incomes := NewIncomeService(store, store, nil)
	tp, err := tps.Create(context.Background(), core.Taxpayer{Name: "N", CNIC: "1"})
	require.NoError(t, err)

	_, err = incomes.Create(context.Background(), core.IncomeEntry{
		TaxpayerID: tp.ID, Date: core.NewDate(2024, 1, 1), Type: "x", Amount: dec("10"),
	})
	assert.NoError(t, err)
}

func TestSlabService_CachesUntilWrite(t *testing.T) {
	store := &countingSlabs{Store: memory.New(twoBrackets()...)}
	pub := &fakePublisher{}
	svc := NewSlabService(store, pub)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		slabs, err := svc.List(ctx)
		require.NoError(t, err)
		assert.Len(t, slabs, 2)
	}
	assert.Equal(t, 1, store.loads)

	_, err := svc.Create(ctx, core.TaxBracket{Lower: dec("500000"), Upper: core.Unbounded(), RatePercent: dec("30")})
	require.NoError(t, err)

	slabs, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, slabs, 3)
	assert.Equal(t, 2, store.loads)

	require.Len(t, pub.messages(), 1)
	assert.Equal(t, published{"", amqp.ReasonSlabsChanged}, pub.messages()[0])
}

func TestSlabService_ListReturnsCopy(t *testing.T) {
	svc := NewSlabService(memory.New(twoBrackets()...), nil)
	ctx := context.Background()

	first, err := svc.List(ctx)
	require.NoError(t, err)
	first[0].Bracket.RatePercent = dec("99")

	second, err := svc.List(ctx)
	require.NoError(t, err)
	assert.True(t, second[0].Bracket.RatePercent.IsZero())
}

func TestSlabService_Validation(t *testing.T) {
	svc := NewSlabService(memory.New(), nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, core.TaxBracket{Lower: dec("0"), Upper: core.Unbounded(), RatePercent: dec("101")})
	assert.ErrorIs(t, err, core.ErrInvalidRate)

	_, err = svc.Create(ctx, core.TaxBracket{Lower: dec("-1"), Upper: core.Unbounded(), RatePercent: dec("5")})
	assert.ErrorIs(t, err, core.ErrInvalidBound)

	assert.ErrorIs(t, svc.Update(ctx, core.TaxSlab{ID: 42, Bracket: twoBrackets()[0]}), core.ErrNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, 42), core.ErrNotFound)
}

func TestCalculationService_Calculate(t *testing.T) {
	tests := []struct {
		name    string
		amounts []string
		total   string
		tax     string
	}{
		{"above threshold", []string{"100000", "50000"}, "150000", "10000"},
		{"below threshold", []string{"80000"}, "80000", "0"},
		{"no incomes", nil, "0", "0"},
		{"rounded to cents", []string{"100000.03"}, "100000.03", "0.01"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, twoBrackets()...)
			tp := f.taxpayer(t, "T", tt.amounts...)

			calc, err := f.calculations.Calculate(context.Background(), tp.ID)
			require.NoError(t, err)
			assert.True(t, calc.TotalIncome.Equal(dec(tt.total)), "total %s", calc.TotalIncome)
			assert.True(t, calc.TaxAmount.Equal(dec(tt.tax)), "tax %s", calc.TaxAmount)
			assert.Equal(t, tp.ID, calc.TaxpayerID)
			assert.Equal(t, time.UTC, calc.CalculatedAt.Location())

			latest, err := f.store.LatestCalculation(context.Background(), tp.ID)
			require.NoError(t, err)
			assert.Equal(t, calc.ID, latest.ID)
		})
	}
}

func TestCalculationService_ThreeBrackets(t *testing.T) {
	f := newFixture(t,
		core.TaxBracket{Lower: dec("100000"), Upper: core.Unbounded(), RatePercent: dec("20")},
		core.TaxBracket{Lower: dec("0"), Upper: core.Bounded(dec("50000")), RatePercent: dec("0")},
		core.TaxBracket{Lower: dec("50000"), Upper: core.Bounded(dec("100000")), RatePercent: dec("10")},
	)
	tp := f.taxpayer(t, "T", "120000")

	calc, err := f.calculations.Calculate(context.Background(), tp.ID)
	require.NoError(t, err)
	assert.True(t, calc.TaxAmount.Equal(dec("9000")), "tax %s", calc.TaxAmount)
}

func TestCalculationService_UsesCurrentSlabs(t *testing.T) {
	f := newFixture(t, twoBrackets()...)
	ctx := context.Background()
	tp := f.taxpayer(t, "T", "150000")

	first, err := f.calculations.Calculate(ctx, tp.ID)
	require.NoError(t, err)
	assert.True(t, first.TaxAmount.Equal(dec("10000")))

	slabs, err := f.slabs.List(ctx)
	require.NoError(t, err)
	top := slabs[1]
	top.Bracket.RatePercent = dec("30")
	require.NoError(t, f.slabs.Update(ctx, top))

	second, err := f.calculations.Calculate(ctx, tp.ID)
	require.NoError(t, err)
	assert.True(t, second.TaxAmount.Equal(dec("15000")), "tax %s", second.TaxAmount)
}

func TestCalculationService_UnknownTaxpayer(t *testing.T) {
	f := newFixture(t, twoBrackets()...)
	_, err := f.calculations.Calculate(context.Background(), uuid.New())
	assert.ErrorIs(t, err, core.ErrNotFound)

	_, err = f.calculations.History(context.Background(), uuid.New())
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestCalculationService_LatestComputesWhenMissing(t *testing.T) {
	f := newFixture(t, twoBrackets()...)
	ctx := context.Background()
	tp := f.taxpayer(t, "T", "150000")

	calc, err := f.calculations.Latest(ctx, tp.ID)
	require.NoError(t, err)
	assert.True(t, calc.TaxAmount.Equal(dec("10000")))

	again, err := f.calculations.Latest(ctx, tp.ID)
	require.NoError(t, err)
	assert.Equal(t, calc.ID, again.ID, "stored result is reused")

	history, err := f.calculations.History(ctx, tp.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestCalculationService_HistoryNewestFirst(t *testing.T) {
	f := newFixture(t, twoBrackets()...)
	ctx := context.Background()
	tp := f.taxpayer(t, "T", "150000")

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		c, err := f.calculations.Calculate(ctx, tp.ID)
		require.NoError(t, err)
		ids = append(ids, c.ID)
	}

	history, err := f.calculations.History(ctx, tp.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, ids[2], history[0].ID)
	assert.Equal(t, ids[0], history[2].ID)
}

func TestCalculationService_RecalculateAll(t *testing.T) {
	f := newFixture(t, twoBrackets()...)
	ctx := context.Background()
	a := f.taxpayer(t, "A", "150000")
	b := f.taxpayer(t, "B", "50000")

	n, err := f.calculations.RecalculateAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	ca, err := f.store.LatestCalculation(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, ca.TaxAmount.Equal(dec("10000")))
	cb, err := f.store.LatestCalculation(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, cb.TaxAmount.IsZero())
}

func TestCalculationService_RecalculateAllCancelled(t *testing.T) {
	f := newFixture(t, twoBrackets()...)
	f.taxpayer(t, "A", "150000")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n, err := f.calculations.RecalculateAll(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, n)
}
