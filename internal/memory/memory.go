// Package memory is an in-process data backend used for local runs and as
// the fake collaborator in service and handler tests.
package memory

import (
	"bufio"
	"cmp"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"taxledger/internal/core"
	"taxledger/internal/ports"
)

var _ ports.Store = (*Store)(nil)

type exportState struct {
	status     string
	exportedAt time.Time
}

type Store struct {
	mu        sync.Mutex
	taxpayers map[uuid.UUID]core.Taxpayer
	incomes   map[uuid.UUID]core.IncomeEntry
	slabs     map[int64]core.TaxSlab
	nextSlab  int64
	calcs     []core.TaxCalculation
	exports   map[uuid.UUID]exportState
	users     map[string]core.User
}

func New(brackets ...core.TaxBracket) *Store {
	s := &Store{
		taxpayers: map[uuid.UUID]core.Taxpayer{},
		incomes:   map[uuid.UUID]core.IncomeEntry{},
		slabs:     map[int64]core.TaxSlab{},
		exports:   map[uuid.UUID]exportState{},
		users:     map[string]core.User{},
	}
	for _, b := range brackets {
		s.nextSlab++
		s.slabs[s.nextSlab] = core.TaxSlab{ID: s.nextSlab, Bracket: b}
	}
	return s
}

// NewFromFiles seeds the bracket table from base/seed_slabs.txt. Each line is
// "from,to,rate" with to=0 meaning unbounded; blank lines and # comments are
// skipped. A missing file yields an empty table.
func NewFromFiles(base string) (*Store, error) {
	lines := readLines(filepath.Join(base, "seed_slabs.txt"))
	brackets := make([]core.TaxBracket, 0, len(lines))
	for i, line := range lines {
		b, err := parseSlabLine(line)
		if err != nil {
			return nil, fmt.Errorf("seed_slabs.txt entry %d: %w", i+1, err)
		}
		brackets = append(brackets, b)
	}
	return New(brackets...), nil
}

func parseSlabLine(line string) (core.TaxBracket, error) {
	parts := strings.Split(line, ",")
	if len(parts) != 3 {
		return core.TaxBracket{}, fmt.Errorf("expected from,to,rate: %q", line)
	}
	from, err := core.ParseAmount(parts[0])
	if err != nil {
		return core.TaxBracket{}, fmt.Errorf("from amount: %w", err)
	}
	to, err := core.ParseAmount(parts[1])
	if err != nil {
		return core.TaxBracket{}, fmt.Errorf("to amount: %w", err)
	}
	rate, err := core.ParseAmount(parts[2])
	if err != nil {
		return core.TaxBracket{}, fmt.Errorf("rate: %w", err)
	}
	return core.NewTaxBracket(from, core.UpperFromSentinel(to), rate)
}

func (s *Store) Ping(context.Context) error { return nil }
func (s *Store) Close() error               { return nil }

func (s *Store) ListTaxpayers(_ context.Context) ([]core.Taxpayer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Taxpayer, 0, len(s.taxpayers))
	for _, t := range s.taxpayers {
		out = append(out, t)
	}
	slices.SortFunc(out, func(a, b core.Taxpayer) int {
		if c := cmp.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return cmp.Compare(a.ID.String(), b.ID.String())
	})
	return out, nil
}

func (s *Store) GetTaxpayer(_ context.Context, id uuid.UUID) (core.Taxpayer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.taxpayers[id]
	if !ok {
		return core.Taxpayer{}, fmt.Errorf("get taxpayer %s: %w", id, core.ErrNotFound)
	}
	return t, nil
}

func (s *Store) CreateTaxpayer(_ context.Context, t core.Taxpayer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.taxpayers[t.ID]; ok {
		return fmt.Errorf("create taxpayer: %w", core.ErrConflict)
	}
	s.taxpayers[t.ID] = t
	return nil
}

func (s *Store) UpdateTaxpayer(_ context.Context, t core.Taxpayer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.taxpayers[t.ID]; !ok {
		return fmt.Errorf("update taxpayer %s: %w", t.ID, core.ErrNotFound)
	}
	s.taxpayers[t.ID] = t
	return nil
}

func (s *Store) DeleteTaxpayer(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.taxpayers[id]; !ok {
		return fmt.Errorf("delete taxpayer %s: %w", id, core.ErrNotFound)
	}
	delete(s.taxpayers, id)
	for k, e := range s.incomes {
		if e.TaxpayerID == id {
			delete(s.incomes, k)
		}
	}
	s.calcs = slices.DeleteFunc(s.calcs, func(c core.TaxCalculation) bool {
		if c.TaxpayerID == id {
			delete(s.exports, c.ID)
			return true
		}
		return false
	})
	return nil
}

func (s *Store) ListIncomes(_ context.Context, taxpayerID uuid.UUID) ([]core.IncomeEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.IncomeEntry
	for _, e := range s.incomes {
		if e.TaxpayerID == taxpayerID {
			out = append(out, e)
		}
	}
	slices.SortFunc(out, func(a, b core.IncomeEntry) int {
		if c := b.Date.Compare(a.Date.Time); c != 0 {
			return c
		}
		return cmp.Compare(a.ID.String(), b.ID.String())
	})
	return out, nil
}

func (s *Store) GetIncome(_ context.Context, taxpayerID, id uuid.UUID) (core.IncomeEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.incomes[id]
	if !ok || e.TaxpayerID != taxpayerID {
		return core.IncomeEntry{}, fmt.Errorf("get income %s: %w", id, core.ErrNotFound)
	}
	return e, nil
}

func (s *Store) CreateIncome(_ context.Context, e core.IncomeEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.taxpayers[e.TaxpayerID]; !ok {
		return fmt.Errorf("create income: taxpayer %s: %w", e.TaxpayerID, core.ErrNotFound)
	}
	if _, ok := s.incomes[e.ID]; ok {
		return fmt.Errorf("create income: %w", core.ErrConflict)
	}
	e.Date = e.Date.UTC()
	s.incomes[e.ID] = e
	return nil
}

func (s *Store) UpdateIncome(_ context.Context, e core.IncomeEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.incomes[e.ID]
	if !ok || cur.TaxpayerID != e.TaxpayerID {
		return fmt.Errorf("update income %s: %w", e.ID, core.ErrNotFound)
	}
	e.Date = e.Date.UTC()
	s.incomes[e.ID] = e
	return nil
}

func (s *Store) DeleteIncome(_ context.Context, taxpayerID, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.incomes[id]
	if !ok || cur.TaxpayerID != taxpayerID {
		return fmt.Errorf("delete income %s: %w", id, core.ErrNotFound)
	}
	delete(s.incomes, id)
	return nil
}

func (s *Store) ListSlabs(_ context.Context) ([]core.TaxSlab, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.TaxSlab, 0, len(s.slabs))
	for _, sl := range s.slabs {
		out = append(out, sl)
	}
	slices.SortFunc(out, func(a, b core.TaxSlab) int {
		if c := a.Bracket.Lower.Cmp(b.Bracket.Lower); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (s *Store) GetSlab(_ context.Context, id int64) (core.TaxSlab, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, ok := s.slabs[id]
	if !ok {
		return core.TaxSlab{}, fmt.Errorf("get slab %d: %w", id, core.ErrNotFound)
	}
	return sl, nil
}

func (s *Store) CreateSlab(_ context.Context, b core.TaxBracket) (core.TaxSlab, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSlab++
	sl := core.TaxSlab{ID: s.nextSlab, Bracket: b}
	s.slabs[sl.ID] = sl
	return sl, nil
}

func (s *Store) UpdateSlab(_ context.Context, sl core.TaxSlab) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.slabs[sl.ID]; !ok {
		return fmt.Errorf("update slab %d: %w", sl.ID, core.ErrNotFound)
	}
	s.slabs[sl.ID] = sl
	return nil
}

func (s *Store) DeleteSlab(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.slabs[id]; !ok {
		return fmt.Errorf("delete slab %d: %w", id, core.ErrNotFound)
	}
	delete(s.slabs, id)
	return nil
}

func (s *Store) CreateCalculation(_ context.Context, c core.TaxCalculation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.taxpayers[c.TaxpayerID]; !ok {
		return fmt.Errorf("create calculation: taxpayer %s: %w", c.TaxpayerID, core.ErrNotFound)
	}
	c.CalculatedAt = c.CalculatedAt.UTC()
	s.calcs = append(s.calcs, c)
	s.exports[c.ID] = exportState{status: "pending"}
	return nil
}

// byTaxpayer returns the taxpayer's calculations newest first. Callers hold mu.
func (s *Store) byTaxpayer(taxpayerID uuid.UUID) []core.TaxCalculation {
	var out []core.TaxCalculation
	for i := len(s.calcs) - 1; i >= 0; i-- {
		if s.calcs[i].TaxpayerID == taxpayerID {
			out = append(out, s.calcs[i])
		}
	}
	slices.SortStableFunc(out, func(a, b core.TaxCalculation) int {
		return b.CalculatedAt.Compare(a.CalculatedAt)
	})
	return out
}

func (s *Store) LatestCalculation(_ context.Context, taxpayerID uuid.UUID) (core.TaxCalculation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.byTaxpayer(taxpayerID)
	if len(list) == 0 {
		return core.TaxCalculation{}, fmt.Errorf("get latest calculation: %w", core.ErrNotFound)
	}
	return list[0], nil
}

func (s *Store) ListCalculations(_ context.Context, taxpayerID uuid.UUID) ([]core.TaxCalculation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byTaxpayer(taxpayerID), nil
}

func (s *Store) PendingExports(_ context.Context, limit int) ([]core.TaxCalculation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.TaxCalculation
	for _, c := range s.calcs {
		if s.exports[c.ID].status == "pending" {
			out = append(out, c)
		}
	}
	slices.SortStableFunc(out, func(a, b core.TaxCalculation) int {
		return a.CalculatedAt.Compare(b.CalculatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) MarkExported(_ context.Context, id uuid.UUID, at time.Time) error {
	return s.setExport(id, exportState{status: "exported", exportedAt: at.UTC()})
}

func (s *Store) MarkExportError(_ context.Context, id uuid.UUID) error {
	return s.setExport(id, exportState{status: "error"})
}

func (s *Store) setExport(id uuid.UUID, st exportState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.exports[id]; !ok {
		return fmt.Errorf("mark calculation %s: %w", id, core.ErrNotFound)
	}
	s.exports[id] = st
	return nil
}

func (s *Store) CreateUser(_ context.Context, u core.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := core.NormalizeEmail(u.Email)
	if _, ok := s.users[key]; ok {
		return fmt.Errorf("create user: %w", core.ErrConflict)
	}
	u.Email = key
	s.users[key] = u
	return nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[core.NormalizeEmail(email)]
	if !ok {
		return core.User{}, fmt.Errorf("get user by email: %w", core.ErrNotFound)
	}
	return u, nil
}

func readLines(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out
}
