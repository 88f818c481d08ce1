package facilitator

import (
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/vorpalengineering/x402-skills/metrics"
	"github.com/vorpalengineering/x402-skills/types"
	"github.com/vorpalengineering/x402-skills/utils"
	"github.com/vorpalengineering/x402-skills/wallet"
)

// Chain is an in-memory stand-in for a Stacks node. Accepted transfers stay
// pending for the confirmation delay and are confirmed lazily when queried.
type Chain struct {
	network string
	delay   time.Duration
	now     func() time.Time

	mu       sync.Mutex
	txs      map[string]*chainTx
	nonces   map[string]struct{}
	balances map[string]*big.Int
	height   uint64
}

type chainTx struct {
	transfer   wallet.Transfer
	amount     *big.Int
	status     types.TransactionStatus
	acceptedAt time.Time
}

// NewChain creates a chain for network. With nil balances every sender is
// treated as funded.
func NewChain(network string, delay time.Duration, balances map[string]*big.Int) (*Chain, error) {
	canonical, err := utils.NormalizeNetwork(network)
	if err != nil {
		return nil, err
	}
	var funded map[string]*big.Int
	if balances != nil {
		funded = make(map[string]*big.Int, len(balances))
		for addr, v := range balances {
			funded[addr] = new(big.Int).Set(v)
		}
	}
	return &Chain{
		network:  canonical,
		delay:    delay,
		now:      time.Now,
		txs:      make(map[string]*chainTx),
		nonces:   make(map[string]struct{}),
		balances: funded,
	}, nil
}

func (c *Chain) Network() string {
	return c.network
}

// Submit validates a signed transfer and adds it to the mempool.
func (c *Chain) Submit(tx *types.SignedTransaction) (string, error) {
	st, txID, err := wallet.DecodeSignedTransfer(tx.Raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidTransaction, err)
	}
	if tx.TxID != "" && tx.TxID != txID {
		return "", fmt.Errorf("%w: txid does not match payload", ErrInvalidTransaction)
	}
	if err := st.Verify(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidTransaction, err)
	}

	transfer := st.Transfer
	if !utils.SameNetwork(transfer.Network, c.network) {
		return "", fmt.Errorf("%w: %s", ErrWrongNetwork, transfer.Network)
	}
	if !utils.ValidStacksAddress(transfer.To) {
		return "", fmt.Errorf("%w: invalid recipient %s", ErrInvalidTransaction, transfer.To)
	}
	amount, ok := new(big.Int).SetString(transfer.Amount, 10)
	if !ok || amount.Sign() <= 0 {
		return "", fmt.Errorf("%w: invalid amount %q", ErrInvalidTransaction, transfer.Amount)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.txs[txID]; exists {
		return "", ErrDuplicateTransaction
	}
	nonceKey := transfer.From + ":" + transfer.Nonce
	if _, used := c.nonces[nonceKey]; used {
		return "", ErrNonceReused
	}

	// Debit the sender now so pending transfers cannot overspend
	if c.balances != nil {
		balance, funded := c.balances[transfer.From]
		if !funded || balance.Cmp(amount) < 0 {
			return "", ErrInsufficientFunds
		}
		balance.Sub(balance, amount)
	}

	c.txs[txID] = &chainTx{
		transfer: transfer,
		amount:   amount,
		status: types.TransactionStatus{
			TxID:      txID,
			Status:    types.TxStatusPending,
			Payer:     transfer.From,
			Recipient: transfer.To,
			Amount:    amount.String(),
			Network:   c.network,
		},
		acceptedAt: c.now(),
	}
	c.nonces[nonceKey] = struct{}{}
	metrics.MempoolSize.Set(float64(c.pendingLocked()))

	return txID, nil
}

// Status returns the current status of txID.
func (c *Chain) Status(txID string) (types.TransactionStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tx, ok := c.txs[txID]
	if !ok {
		return types.TransactionStatus{}, fmt.Errorf("%w: %s", ErrTxNotFound, txID)
	}
	c.settle(tx)
	return tx.status, nil
}

// Abort fails a pending transfer and refunds the sender.
func (c *Chain) Abort(txID, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tx, ok := c.txs[txID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTxNotFound, txID)
	}
	c.settle(tx)
	if tx.status.Status != types.TxStatusPending {
		return fmt.Errorf("%w: %s is %s", ErrNotPending, txID, tx.status.Status)
	}

	if c.balances != nil {
		c.credit(tx.transfer.From, tx.amount)
	}
	tx.status.Status = types.TxStatusAbortByResponse
	tx.status.Reason = reason
	metrics.MempoolSize.Set(float64(c.pendingLocked()))
	return nil
}

// Balance returns the spendable balance of address. ok is false when the
// chain runs without balances.
func (c *Chain) Balance(address string) (*big.Int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.balances == nil {
		return nil, false
	}
	for _, tx := range c.txs {
		c.settle(tx)
	}
	if v, ok := c.balances[address]; ok {
		return new(big.Int).Set(v), true
	}
	return new(big.Int), true
}

// Pending returns the number of unconfirmed transfers.
func (c *Chain) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, tx := range c.txs {
		c.settle(tx)
	}
	return c.pendingLocked()
}

// settle confirms tx once its delay has elapsed. c.mu must be held.
func (c *Chain) settle(tx *chainTx) {
	if tx.status.Status != types.TxStatusPending {
		return
	}
	now := c.now()
	if now.Before(tx.acceptedAt.Add(c.delay)) {
		return
	}

	c.height++
	tx.status.Status = types.TxStatusSuccess
	tx.status.BlockHeight = c.height
	tx.status.BlockTime = now.UnixMilli()
	if c.balances != nil {
		c.credit(tx.transfer.To, tx.amount)
	}
	metrics.MempoolSize.Set(float64(c.pendingLocked()))
}

func (c *Chain) credit(address string, amount *big.Int) {
	if v, ok := c.balances[address]; ok {
		v.Add(v, amount)
		return
	}
	c.balances[address] = new(big.Int).Set(amount)
}

func (c *Chain) pendingLocked() int {
	n := 0
	for _, tx := range c.txs {
		if tx.status.Status == types.TxStatusPending {
			n++
		}
	}
	return n
}
