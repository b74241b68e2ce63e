package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"taxledger/internal/amqp"
	"taxledger/internal/cache"
	"taxledger/internal/core"
	"taxledger/internal/ports"
)

const (
	slabTableKey = "slabs"
	slabCacheTTL = 5 * time.Minute
)

// SlabService manages the bracket table. Reads go through an LRU cache with
// deduplicated loads; every write invalidates it.
type SlabService struct {
	store     ports.SlabStore
	loader    *cache.Loader[[]core.TaxSlab]
	lru       *cache.LRUCache[[]core.TaxSlab]
	publisher ports.RecalculationPublisher
}

// NewSlabService wires the cache. publisher may be nil.
func NewSlabService(store ports.SlabStore, publisher ports.RecalculationPublisher) *SlabService {
	lru := cache.NewLRUCache[[]core.TaxSlab](1, slabCacheTTL)
	return &SlabService{
		store: store,
		lru:   lru,
		loader: cache.NewLoader[[]core.TaxSlab](lru, func(ctx context.Context, _ string) ([]core.TaxSlab, error) {
			return store.ListSlabs(ctx)
		}),
		publisher: publisher,
	}
}

// Cache exposes the underlying cache for registration with a cleanup manager.
func (s *SlabService) Cache() cache.Cleaner { return s.lru }

// Invalidate drops the cached table. Processes that share the store but not
// this service call it when told the table changed elsewhere.
func (s *SlabService) Invalidate() { s.loader.Invalidate(slabTableKey) }

// List returns the bracket table ordered by lower bound.
func (s *SlabService) List(ctx context.Context) ([]core.TaxSlab, error) {
	slabs, err := s.loader.Get(ctx, slabTableKey)
	if err != nil {
		return nil, fmt.Errorf("list slabs: %w", err)
	}
	// Callers may sort or modify; the cached slice stays intact.
	out := make([]core.TaxSlab, len(slabs))
	copy(out, slabs)
	return out, nil
}

// Brackets returns the current table ready for ComputeTax.
func (s *SlabService) Brackets(ctx context.Context) ([]core.TaxBracket, error) {
	slabs, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	return core.Brackets(slabs), nil
}

func (s *SlabService) Get(ctx context.Context, id int64) (core.TaxSlab, error) {
	return s.store.GetSlab(ctx, id)
}

func (s *SlabService) Create(ctx context.Context, b core.TaxBracket) (core.TaxSlab, error) {
	if err := b.Validate(); err != nil {
		return core.TaxSlab{}, err
	}
	slab, err := s.store.CreateSlab(ctx, b)
	if err != nil {
		return core.TaxSlab{}, err
	}
	s.changed(ctx, "slab_id", slab.ID)
	return slab, nil
}

func (s *SlabService) Update(ctx context.Context, slab core.TaxSlab) error {
	if err := slab.Validate(); err != nil {
		return err
	}
	if err := s.store.UpdateSlab(ctx, slab); err != nil {
		return err
	}
	s.changed(ctx, "slab_id", slab.ID)
	return nil
}

func (s *SlabService) Delete(ctx context.Context, id int64) error {
	if err := s.store.DeleteSlab(ctx, id); err != nil {
		return err
	}
	s.changed(ctx, "slab_id", id)
	return nil
}

func (s *SlabService) changed(ctx context.Context, args ...any) {
	s.Invalidate()
	slog.InfoContext(ctx, "Tax slab table changed", args...)
	publish(ctx, s.publisher, "", amqp.ReasonSlabsChanged)
}

// publish sends a recalculation request. Failures are logged and never
// surface to the caller since the write already succeeded.
func publish(ctx context.Context, p ports.RecalculationPublisher, taxpayerID, reason string) {
	if p == nil {
		return
	}
	if err := p.PublishRecalculation(ctx, taxpayerID, reason); err != nil {
		slog.ErrorContext(ctx, "Failed to publish recalculation request",
			"taxpayer_id", taxpayerID,
			"reason", reason,
			"error", err)
	}
}
