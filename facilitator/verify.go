package facilitator

import (
	"fmt"
	"math/big"

	"github.com/vorpalengineering/x402-skills/types"
	"github.com/vorpalengineering/x402-skills/utils"
)

// VerifyProof checks that a settlement proof names a confirmed transfer that
// satisfies the requirement.
func (c *Chain) VerifyProof(req *types.VerifyRequest) (bool, string) {
	proof := req.Proof
	requirement := req.Requirement

	// Step 1: Scheme and network
	if proof.Scheme != types.SchemeStacks {
		return false, fmt.Sprintf("unsupported scheme: %s", proof.Scheme)
	}
	if !utils.SameNetwork(proof.Network, c.network) || !utils.SameNetwork(requirement.Network, c.network) {
		return false, "network mismatch"
	}

	// Step 2: Transaction lookup
	c.mu.Lock()
	tx, ok := c.txs[proof.Payment.TransactionHash]
	if ok {
		c.settle(tx)
	}
	var status types.TransactionStatus
	var resource string
	if ok {
		status = tx.status
		resource = tx.transfer.Resource
	}
	c.mu.Unlock()
	if !ok {
		return false, "unknown transaction"
	}

	// Step 3: Confirmation
	if status.Status != types.TxStatusSuccess {
		return false, fmt.Sprintf("transaction not confirmed: %s", status.Status)
	}

	// Step 4: Payer
	if status.Payer != proof.Payment.Payer {
		return false, "payer mismatch"
	}

	// Step 5: Recipient
	if status.Recipient != requirement.PayTo {
		return false, "recipient mismatch"
	}

	// Step 6: Amount
	if valid, reason := verifyAmount(status.Amount, requirement.Amount); !valid {
		return false, reason
	}

	// Step 7: Resource binding
	if resource != "" && requirement.Resource != "" && resource != requirement.Resource {
		return false, "payment is for a different resource"
	}

	return true, ""
}

func verifyAmount(paid, required string) (bool, string) {
	p, ok := new(big.Int).SetString(paid, 10)
	if !ok {
		return false, "invalid settled amount"
	}
	r, ok := new(big.Int).SetString(required, 10)
	if !ok {
		return false, "invalid required amount"
	}
	if p.Cmp(r) < 0 {
		return false, fmt.Sprintf("insufficient amount: paid %s, required %s", paid, required)
	}
	return true, ""
}
