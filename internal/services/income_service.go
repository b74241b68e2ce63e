package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"taxledger/internal/amqp"
	"taxledger/internal/core"
	"taxledger/internal/ports"
)

// IncomeService manages a taxpayer's income entries and requests a
// recalculation after each change when a publisher is configured.
type IncomeService struct {
	taxpayers ports.TaxpayerStore
	incomes   ports.IncomeStore
	publisher ports.RecalculationPublisher
}

// NewIncomeService builds the service. publisher may be nil.
func NewIncomeService(taxpayers ports.TaxpayerStore, incomes ports.IncomeStore, publisher ports.RecalculationPublisher) *IncomeService {
	return &IncomeService{taxpayers: taxpayers, incomes: incomes, publisher: publisher}
}

// List returns the taxpayer's entries newest first. Unknown taxpayers yield
// core.ErrNotFound rather than an empty list.
func (s *IncomeService) List(ctx context.Context, taxpayerID uuid.UUID) ([]core.IncomeEntry, error) {
	if _, err := s.taxpayers.GetTaxpayer(ctx, taxpayerID); err != nil {
		return nil, err
	}
	return s.incomes.ListIncomes(ctx, taxpayerID)
}

func (s *IncomeService) Create(ctx context.Context, e core.IncomeEntry) (core.IncomeEntry, error) {
	e = normalizeIncome(e)
	e.ID = uuid.New()
	if err := e.Validate(); err != nil {
		return core.IncomeEntry{}, err
	}
	if err := s.incomes.CreateIncome(ctx, e); err != nil {
		return core.IncomeEntry{}, fmt.Errorf("save income: %w", err)
	}
	publish(ctx, s.publisher, e.TaxpayerID.String(), amqp.ReasonIncomeCreated)
	return e, nil
}

func (s *IncomeService) Update(ctx context.Context, e core.IncomeEntry) error {
	e = normalizeIncome(e)
	if err := e.Validate(); err != nil {
		return err
	}
	if err := s.incomes.UpdateIncome(ctx, e); err != nil {
		return err
	}
	publish(ctx, s.publisher, e.TaxpayerID.String(), amqp.ReasonIncomeUpdated)
	return nil
}

func (s *IncomeService) Delete(ctx context.Context, taxpayerID, id uuid.UUID) error {
	if err := s.incomes.DeleteIncome(ctx, taxpayerID, id); err != nil {
		return err
	}
	publish(ctx, s.publisher, taxpayerID.String(), amqp.ReasonIncomeDeleted)
	return nil
}

func normalizeIncome(e core.IncomeEntry) core.IncomeEntry {
	e.Type = strings.TrimSpace(e.Type)
	e.Date = e.Date.UTC()
	e.Amount = core.RoundMoney(e.Amount)
	return e
}
