package services

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"taxledger/internal/core"
	"taxledger/internal/ports"
)

// TaxpayerDetail is a taxpayer with its income entries.
type TaxpayerDetail struct {
	core.Taxpayer
	Incomes []core.IncomeEntry
}

type TaxpayerService struct {
	taxpayers ports.TaxpayerStore
	incomes   ports.IncomeStore
}

func NewTaxpayerService(taxpayers ports.TaxpayerStore, incomes ports.IncomeStore) *TaxpayerService {
	return &TaxpayerService{taxpayers: taxpayers, incomes: incomes}
}

func (s *TaxpayerService) List(ctx context.Context) ([]core.Taxpayer, error) {
	return s.taxpayers.ListTaxpayers(ctx)
}

// Get returns the taxpayer together with its incomes, newest first.
func (s *TaxpayerService) Get(ctx context.Context, id uuid.UUID) (TaxpayerDetail, error) {
	var d TaxpayerDetail
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		t, err := s.taxpayers.GetTaxpayer(gctx, id)
		d.Taxpayer = t
		return err
	})
	g.Go(func() error {
		incomes, err := s.incomes.ListIncomes(gctx, id)
		d.Incomes = incomes
		return err
	})
	if err := g.Wait(); err != nil {
		return TaxpayerDetail{}, err
	}
	return d, nil
}

func (s *TaxpayerService) Create(ctx context.Context, t core.Taxpayer) (core.Taxpayer, error) {
	t = trimTaxpayer(t)
	t.ID = uuid.New()
	if err := t.Validate(); err != nil {
		return core.Taxpayer{}, err
	}
	if err := s.taxpayers.CreateTaxpayer(ctx, t); err != nil {
		return core.Taxpayer{}, err
	}
	return t, nil
}

func (s *TaxpayerService) Update(ctx context.Context, t core.Taxpayer) error {
	t = trimTaxpayer(t)
	if err := t.Validate(); err != nil {
		return err
	}
	return s.taxpayers.UpdateTaxpayer(ctx, t)
}

func (s *TaxpayerService) Delete(ctx context.Context, id uuid.UUID) error {
	return s.taxpayers.DeleteTaxpayer(ctx, id)
}

func trimTaxpayer(t core.Taxpayer) core.Taxpayer {
	t.Name = strings.TrimSpace(t.Name)
	t.CNIC = strings.TrimSpace(t.CNIC)
	t.Contact = strings.TrimSpace(t.Contact)
	return t
}
