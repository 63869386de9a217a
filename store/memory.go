// Package store provides the persistence implementations of the ledger:
// an in-memory store for tests and a sqlite store for the application.
package store

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	pf "github.com/sboulay/portefeuille"
)

// Memory is an in-memory LedgerStore. It is safe for concurrent use and
// returns copies, so callers can mutate results freely.
type Memory struct {
	mu         sync.RWMutex
	portfolios map[string]pf.Portfolio
	txs        map[string]pf.Transaction
	positions  map[string]pf.Position // keyed by portfolioID + "/" + code
	closed     map[string]pf.ClosedPosition
	settings   map[string]string
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		portfolios: make(map[string]pf.Portfolio),
		txs:        make(map[string]pf.Transaction),
		positions:  make(map[string]pf.Position),
		closed:     make(map[string]pf.ClosedPosition),
		settings:   make(map[string]string),
	}
}

var _ pf.LedgerStore = (*Memory)(nil)

func positionKey(portfolioID, code string) string {
	return portfolioID + "/" + pf.NormalizeCode(code)
}

func (m *Memory) Portfolios(ctx context.Context) ([]pf.Portfolio, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]pf.Portfolio, 0, len(m.portfolios))
	for _, p := range m.portfolios {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b pf.Portfolio) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

func (m *Memory) GetPortfolio(ctx context.Context, id string) (pf.Portfolio, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.portfolios[id]
	if !ok {
		return pf.Portfolio{}, fmt.Errorf("portfolio %q: %w", id, pf.ErrNotFound)
	}
	return p, nil
}

func (m *Memory) CreatePortfolio(ctx context.Context, p pf.Portfolio) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.portfolios[p.ID]; ok {
		return fmt.Errorf("portfolio %q already exists", p.ID)
	}
	m.portfolios[p.ID] = p
	return nil
}

func (m *Memory) UpdatePortfolio(ctx context.Context, p pf.Portfolio) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.portfolios[p.ID]; !ok {
		return fmt.Errorf("portfolio %q: %w", p.ID, pf.ErrNotFound)
	}
	m.portfolios[p.ID] = p
	return nil
}

func (m *Memory) DeletePortfolio(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.portfolios[id]; !ok {
		return fmt.Errorf("portfolio %q: %w", id, pf.ErrNotFound)
	}
	delete(m.portfolios, id)
	for k, tx := range m.txs {
		if tx.PortfolioID == id {
			delete(m.txs, k)
		}
	}
	for k, pos := range m.positions {
		if pos.PortfolioID == id {
			delete(m.positions, k)
		}
	}
	for k, c := range m.closed {
		if c.PortfolioID == id {
			delete(m.closed, k)
		}
	}
	return nil
}

func (m *Memory) Transactions(ctx context.Context, portfolioID string) ([]pf.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []pf.Transaction
	for _, tx := range m.txs {
		if portfolioID == "" || tx.PortfolioID == portfolioID {
			out = append(out, tx)
		}
	}
	return pf.SortTransactions(out), nil
}

func (m *Memory) AddTransaction(ctx context.Context, tx pf.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addTransactionLocked(tx)
}

func (m *Memory) addTransactionLocked(tx pf.Transaction) error {
	if tx.ID == "" {
		return fmt.Errorf("transaction has no id")
	}
	if _, ok := m.txs[tx.ID]; ok {
		return fmt.Errorf("transaction %q already exists", tx.ID)
	}
	m.txs[tx.ID] = tx
	return nil
}

func (m *Memory) AddTransactions(ctx context.Context, txs []pf.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, tx := range txs {
		if err := m.addTransactionLocked(tx); err != nil {
			return err
		}
	}
	return nil
}

func (m *Memory) DeleteTransaction(ctx context.Context, portfolioID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.txs[id]
	if !ok || tx.PortfolioID != portfolioID {
		return fmt.Errorf("transaction %q: %w", id, pf.ErrNotFound)
	}
	delete(m.txs, id)
	return nil
}

func (m *Memory) Positions(ctx context.Context, portfolioID string) ([]pf.Position, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []pf.Position
	for _, p := range m.positions {
		if portfolioID == "" || p.PortfolioID == portfolioID {
			out = append(out, p)
		}
	}
	slices.SortFunc(out, func(a, b pf.Position) int {
		if c := strings.Compare(a.PortfolioID, b.PortfolioID); c != 0 {
			return c
		}
		return strings.Compare(a.Code, b.Code)
	})
	return out, nil
}

func (m *Memory) UpsertPosition(ctx context.Context, p pf.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions[positionKey(p.PortfolioID, p.Code)] = p
	return nil
}

func (m *Memory) DeletePosition(ctx context.Context, portfolioID, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.positions, positionKey(portfolioID, code))
	return nil
}

func (m *Memory) ClosedPositions(ctx context.Context, portfolioID string) ([]pf.ClosedPosition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []pf.ClosedPosition
	for _, c := range m.closed {
		if portfolioID == "" || c.PortfolioID == portfolioID {
			out = append(out, c)
		}
	}
	slices.SortFunc(out, func(a, b pf.ClosedPosition) int {
		if a.SaleDate.Before(b.SaleDate) {
			return -1
		}
		if a.SaleDate.After(b.SaleDate) {
			return 1
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (m *Memory) AddClosedPosition(ctx context.Context, c pf.ClosedPosition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed[c.ID] = c
	return nil
}

func (m *Memory) ReplaceDerived(ctx context.Context, portfolioID string, positions []pf.Position, closed []pf.ClosedPosition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, pos := range m.positions {
		if pos.PortfolioID == portfolioID {
			delete(m.positions, k)
		}
	}
	for k, c := range m.closed {
		if c.PortfolioID == portfolioID {
			delete(m.closed, k)
		}
	}
	for _, pos := range positions {
		pos.PortfolioID = portfolioID
		m.positions[positionKey(portfolioID, pos.Code)] = pos
	}
	for _, c := range closed {
		c.PortfolioID = portfolioID
		m.closed[c.ID] = c
	}
	return nil
}

func (m *Memory) Setting(ctx context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.settings[key], nil
}

func (m *Memory) SetSetting(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings[key] = value
	return nil
}

func (m *Memory) Replace(ctx context.Context, b *pf.Backup) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.portfolios = make(map[string]pf.Portfolio, len(b.Portfolios))
	m.txs = make(map[string]pf.Transaction, len(b.Transactions))
	m.positions = make(map[string]pf.Position, len(b.Positions))
	m.closed = make(map[string]pf.ClosedPosition, len(b.ClosedPositions))
	m.settings = make(map[string]string, len(b.Settings))
	for _, p := range b.Portfolios {
		m.portfolios[p.ID] = p
	}
	for _, tx := range b.Transactions {
		m.txs[tx.ID] = tx
	}
	for _, pos := range b.Positions {
		m.positions[positionKey(pos.PortfolioID, pos.Code)] = pos
	}
	for _, c := range b.ClosedPositions {
		m.closed[c.ID] = c
	}
	for _, s := range b.Settings {
		m.settings[s.Key] = s.Value
	}
	return nil
}
