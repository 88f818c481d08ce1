package wallet

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/vorpalengineering/x402-skills/utils"
)

// BalanceFetcher reads the STX balance of an address in microSTX.
type BalanceFetcher interface {
	FetchBalance(ctx context.Context, address string) (*big.Int, error)
}

// Session is the connected wallet. It is mutated only by Connect and
// Disconnect; balance refreshes are best-effort.
type Session struct {
	mu        sync.RWMutex
	address   string
	network   string
	balance   *big.Int
	refreshed time.Time
}

func NewSession() *Session {
	return &Session{}
}

func (s *Session) Connect(address, network string) error {
	if !utils.ValidStacksAddress(address) {
		return fmt.Errorf("%w: %s", ErrInvalidAddress, address)
	}
	canonical, err := utils.NormalizeNetwork(network)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.address != address {
		s.balance = nil
		s.refreshed = time.Time{}
	}
	s.address = address
	s.network = canonical
	return nil
}

func (s *Session) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.address = ""
	s.network = ""
	s.balance = nil
	s.refreshed = time.Time{}
}

func (s *Session) Address() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.address
}

// DisplayAddress is the truncated address shown in the navbar.
func (s *Session) DisplayAddress() string {
	return utils.TruncateAddress(s.Address(), 4, 5)
}

func (s *Session) Network() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.network
}

func (s *Session) Connected() bool {
	return s.Address() != ""
}

// Balance returns the last known balance; ok is false while unknown.
func (s *Session) Balance() (balance *big.Int, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.balance == nil {
		return nil, false
	}
	return new(big.Int).Set(s.balance), true
}

// RefreshBalance fetches the balance of the connected address. On failure
// the balance becomes unknown and the error is returned for logging only.
func (s *Session) RefreshBalance(ctx context.Context, fetcher BalanceFetcher) error {
	address := s.Address()
	if address == "" {
		return ErrNotConnected
	}

	balance, err := fetcher.FetchBalance(ctx, address)

	s.mu.Lock()
	defer s.mu.Unlock()
	// The wallet may have been switched while the fetch was in flight
	if s.address != address {
		return nil
	}
	if err != nil {
		s.balance = nil
		return err
	}
	s.balance = balance
	s.refreshed = time.Now()
	return nil
}

func (s *Session) RefreshedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshed
}
