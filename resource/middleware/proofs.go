package middleware

import (
	"errors"
	"sync"
)

// ErrProofUsed is returned when a settlement proof was already spent or is
// being spent by a concurrent request.
var ErrProofUsed = errors.New("settlement proof already used")

// ProofRegistry makes every settlement proof buy at most one execution.
// Reserve claims a proof for a request; Commit marks it spent once the skill
// succeeded and Release frees it again after a failure.
type ProofRegistry interface {
	Reserve(txHash string) error
	Commit(txHash string)
	Release(txHash string)
}

type MemoryProofs struct {
	mu    sync.Mutex
	spent map[string]bool // false while reserved
}

func NewMemoryProofs() *MemoryProofs {
	return &MemoryProofs{spent: make(map[string]bool)}
}

func (p *MemoryProofs) Reserve(txHash string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, taken := p.spent[txHash]; taken {
		return ErrProofUsed
	}
	p.spent[txHash] = false
	return nil
}

func (p *MemoryProofs) Commit(txHash string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.spent[txHash] = true
}

func (p *MemoryProofs) Release(txHash string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.spent[txHash] {
		delete(p.spent, txHash)
	}
}

// Spent reports whether txHash has bought an execution.
func (p *MemoryProofs) Spent(txHash string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.spent[txHash]
}
