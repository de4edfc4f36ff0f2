// Package memory provides an in-memory store. It is the reference
// implementation of commit atomicity: balances are staged against a copy
// and swapped in only when every leg clears.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/xraph/payagent"
	"github.com/xraph/payagent/account"
	"github.com/xraph/payagent/allowance"
	"github.com/xraph/payagent/keys"
	"github.com/xraph/payagent/payment"
	"github.com/xraph/payagent/store"
	"github.com/xraph/payagent/subscription"
)

type Store struct {
	mu sync.RWMutex

	// Account storage
	accounts map[keys.Identity]*account.Account

	// Allowance storage
	allowances map[keys.Identity]*allowance.Allowance

	// Subscription storage
	subscriptions map[keys.Identity]*subscription.Subscription

	// Payment events keyed by idempotency token
	payments map[uuid.UUID]*payment.Event
	history  []*payment.Event
}

func New() *Store {
	return &Store{
		accounts:      make(map[keys.Identity]*account.Account),
		allowances:    make(map[keys.Identity]*allowance.Allowance),
		subscriptions: make(map[keys.Identity]*subscription.Subscription),
		payments:      make(map[uuid.UUID]*payment.Event),
	}
}

// Account Store implementation
func (s *Store) CreateAccount(_ context.Context, a *account.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[a.ID]; exists {
		return payagent.ErrAccountExists
	}
	cp := *a
	s.accounts[a.ID] = &cp
	return nil
}

func (s *Store) GetAccount(_ context.Context, addr keys.Identity) (*account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if a, ok := s.accounts[addr]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, payagent.ErrAccountNotFound
}

// Allowance Store implementation
func (s *Store) CreateAllowance(_ context.Context, a *allowance.Allowance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.allowances[a.Address]; exists {
		return payagent.ErrAllowanceExists
	}
	cp := *a
	s.allowances[a.Address] = &cp
	return nil
}

func (s *Store) GetAllowance(_ context.Context, addr keys.Identity) (*allowance.Allowance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if a, ok := s.allowances[addr]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, payagent.ErrAllowanceNotFound
}

func (s *Store) ListAllowances(_ context.Context, owner keys.Identity, opts allowance.ListOpts) ([]*allowance.Allowance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*allowance.Allowance, 0)
	for _, a := range s.allowances {
		if !a.Owner.Equal(owner) {
			continue
		}
		if opts.Status != "" && a.Status != opts.Status {
			continue
		}
		cp := *a
		result = append(result, &cp)
	}
	return window(result, opts.Offset, opts.Limit), nil
}

// Subscription Store implementation
func (s *Store) CreateSubscription(_ context.Context, sub *subscription.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.subscriptions[sub.Address]; exists {
		return payagent.ErrSubscriptionExists
	}
	cp := *sub
	s.subscriptions[sub.Address] = &cp
	return nil
}

func (s *Store) GetSubscription(_ context.Context, addr keys.Identity) (*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if sub, ok := s.subscriptions[addr]; ok {
		cp := *sub
		return &cp, nil
	}
	return nil, payagent.ErrSubscriptionNotFound
}

func (s *Store) ListSubscriptions(_ context.Context, owner keys.Identity, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*subscription.Subscription, 0)
	for _, sub := range s.subscriptions {
		if !sub.Owner.Equal(owner) {
			continue
		}
		if opts.ActiveOnly && !sub.Active {
			continue
		}
		if !opts.Merchant.IsNil() && !sub.Merchant.Equal(opts.Merchant) {
			continue
		}
		cp := *sub
		result = append(result, &cp)
	}
	return window(result, opts.Offset, opts.Limit), nil
}

// Payment Store implementation
func (s *Store) GetPayment(_ context.Context, token uuid.UUID) (*payment.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if e, ok := s.payments[token]; ok {
		cp := *e
		return &cp, nil
	}
	return nil, payagent.ErrNotFound
}

func (s *Store) ListPayments(_ context.Context, opts payment.ListOpts) ([]*payment.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*payment.Event, 0)
	for _, e := range s.history {
		if opts.Origin != "" && e.Origin != opts.Origin {
			continue
		}
		if !opts.Subscription.IsNil() && !e.Subscription.Equal(opts.Subscription) {
			continue
		}
		if !opts.Merchant.IsNil() && !e.Merchant.Equal(opts.Merchant) {
			continue
		}
		cp := *e
		result = append(result, &cp)
	}
	return window(result, opts.Offset, opts.Limit), nil
}

// Commit applies all transfers and record writes under one lock. Balances
// are staged first so a failing leg leaves every account untouched.
func (s *Store) Commit(_ context.Context, c *store.Commit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.Payment != nil {
		if _, exists := s.payments[c.Payment.Token]; exists {
			return payagent.ErrDuplicatePayment
		}
	}

	staged := make(map[keys.Identity]*account.Account)
	stage := func(addr keys.Identity) (*account.Account, error) {
		if a, ok := staged[addr]; ok {
			return a, nil
		}
		a, ok := s.accounts[addr]
		if !ok {
			return nil, payagent.ErrAccountNotFound
		}
		cp := *a
		staged[addr] = &cp
		return &cp, nil
	}

	for _, t := range c.Transfers {
		from, err := stage(t.From)
		if err != nil {
			return err
		}
		to, err := stage(t.To)
		if err != nil {
			return err
		}

		if t.Amount.Currency != from.Currency {
			return payagent.ErrCurrencyMismatch
		}
		if !from.CanDebit(t.Amount) {
			return payagent.ErrInsufficientFunds
		}
		credit := t.Credited()
		if credit.Currency != to.Currency {
			return payagent.ErrCurrencyMismatch
		}

		from.Balance = from.Balance.Subtract(t.Amount)
		to.Balance = to.Balance.Add(credit)
	}

	// Every leg cleared; swap in the staged state.
	for addr, a := range staged {
		a.Touch()
		s.accounts[addr] = a
	}
	if c.Allowance != nil {
		cp := *c.Allowance
		s.allowances[cp.Address] = &cp
	}
	if c.Subscription != nil {
		cp := *c.Subscription
		s.subscriptions[cp.Address] = &cp
	}
	if c.Payment != nil {
		cp := *c.Payment
		s.payments[cp.Token] = &cp
		s.history = append(s.history, &cp)
	}
	return nil
}

// Store management
func (s *Store) Migrate(_ context.Context) error {
	return nil // No migration needed for memory store
}

func (s *Store) Ping(_ context.Context) error {
	return nil // Always available
}

func (s *Store) Close() error {
	return nil // Nothing to close
}

// Helper functions
func window[T any](items []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if limit < 0 {
		limit = 0
	}
	start := offset
	if start > len(items) {
		start = len(items)
	}
	end := start + limit
	if limit == 0 || end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
