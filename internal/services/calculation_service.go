package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"taxledger/internal/core"
	"taxledger/internal/ports"
)

// BracketSource supplies the current bracket table.
type BracketSource interface {
	Brackets(ctx context.Context) ([]core.TaxBracket, error)
}

// CalculationService runs the bracket engine against stored incomes and
// records the result.
type CalculationService struct {
	taxpayers    ports.TaxpayerStore
	incomes      ports.IncomeStore
	calculations ports.CalculationStore
	brackets     BracketSource
	now          func() time.Time
}

func NewCalculationService(
	taxpayers ports.TaxpayerStore,
	incomes ports.IncomeStore,
	calculations ports.CalculationStore,
	brackets BracketSource,
) *CalculationService {
	return &CalculationService{
		taxpayers:    taxpayers,
		incomes:      incomes,
		calculations: calculations,
		brackets:     brackets,
		now:          time.Now,
	}
}

// WithClock replaces the time source.
func (s *CalculationService) WithClock(now func() time.Time) *CalculationService {
	s.now = now
	return s
}

// Calculate totals the taxpayer's incomes, applies the current brackets and
// stores the rounded result.
func (s *CalculationService) Calculate(ctx context.Context, taxpayerID uuid.UUID) (core.TaxCalculation, error) {
	var (
		entries  []core.IncomeEntry
		brackets []core.TaxBracket
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := s.taxpayers.GetTaxpayer(gctx, taxpayerID)
		return err
	})
	g.Go(func() error {
		var err error
		entries, err = s.incomes.ListIncomes(gctx, taxpayerID)
		return err
	})
	g.Go(func() error {
		var err error
		brackets, err = s.brackets.Brackets(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return core.TaxCalculation{}, fmt.Errorf("load calculation inputs: %w", err)
	}

	result := core.Compute(core.TotalIncome(entries), brackets)
	calc := core.TaxCalculation{
		ID:           uuid.New(),
		TaxpayerID:   taxpayerID,
		TotalIncome:  result.TotalIncome,
		TaxAmount:    core.RoundMoney(result.TaxAmount),
		CalculatedAt: s.now().UTC(),
	}
	if err := s.calculations.CreateCalculation(ctx, calc); err != nil {
		return core.TaxCalculation{}, fmt.Errorf("save calculation: %w", err)
	}

	slog.InfoContext(ctx, "Tax calculated",
		"taxpayer_id", taxpayerID,
		"calculation_id", calc.ID,
		"total_income", calc.TotalIncome.String(),
		"tax_amount", calc.TaxAmount.String(),
		"brackets", len(brackets))

	return calc, nil
}

// Latest returns the newest stored calculation, computing one when the
// taxpayer has none yet.
func (s *CalculationService) Latest(ctx context.Context, taxpayerID uuid.UUID) (core.TaxCalculation, error) {
	calc, err := s.calculations.LatestCalculation(ctx, taxpayerID)
	if err == nil {
		return calc, nil
	}
	if !errors.Is(err, core.ErrNotFound) {
		return core.TaxCalculation{}, err
	}
	return s.Calculate(ctx, taxpayerID)
}

// History lists all calculations for the taxpayer, newest first.
func (s *CalculationService) History(ctx context.Context, taxpayerID uuid.UUID) ([]core.TaxCalculation, error) {
	if _, err := s.taxpayers.GetTaxpayer(ctx, taxpayerID); err != nil {
		return nil, err
	}
	return s.calculations.ListCalculations(ctx, taxpayerID)
}

// RecalculateAll recalculates every taxpayer and returns how many succeeded.
// A taxpayer deleted mid-run is skipped.
func (s *CalculationService) RecalculateAll(ctx context.Context) (int, error) {
	taxpayers, err := s.taxpayers.ListTaxpayers(ctx)
	if err != nil {
		return 0, fmt.Errorf("list taxpayers: %w", err)
	}
	done := 0
	for _, t := range taxpayers {
		if err := ctx.Err(); err != nil {
			return done, err
		}
		if _, err := s.Calculate(ctx, t.ID); err != nil {
			if errors.Is(err, core.ErrNotFound) {
				continue
			}
			return done, fmt.Errorf("recalculate %s: %w", t.ID, err)
		}
		done++
	}
	return done, nil
}
