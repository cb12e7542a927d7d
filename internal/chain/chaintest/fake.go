// Package chaintest provides an in-memory verifier contract for tests.
package chaintest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/xtrntr/tradeproof/internal/chain"
	"github.com/xtrntr/tradeproof/internal/field"
)

var ErrUnknownFunction = errors.New("unknown function")

// Invocation is one recorded Invoke call
type Invocation struct {
	Function string
	Calldata []*felt.Felt
}

// Fake mimics the verifier contract: it rejects reused commitments, counts
// reports and emits ReportSubmitted
type Fake struct {
	mu sync.Mutex

	Signer      bool
	Invocations []Invocation
	// OmitEvent drops ReportSubmitted from receipts
	OmitEvent bool
	// CallErr and InvokeErr are returned by every Call/Invoke when set
	CallErr   error
	InvokeErr error
	// Revert makes every receipt a revert with this reason
	Revert string
	// HangCalls blocks every Call until its context is done
	HangCalls bool
	// Results replaces the output of a read function by name
	Results map[string][]*felt.Felt

	used       map[string]bool
	registered map[string]bool
	reports    uint64
	trades     map[string]uint64
	pending    map[string][]chain.Event
	reverted   map[string]string
	block      uint64
}

// New returns a fake that can sign
func New() *Fake {
	return &Fake{
		Signer:     true,
		used:       make(map[string]bool),
		registered: make(map[string]bool),
		trades:     make(map[string]uint64),
		pending:    make(map[string][]chain.Event),
		reverted:   make(map[string]string),
		block:      100,
	}
}

func (f *Fake) CanSign() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Signer
}

func (f *Fake) Call(ctx context.Context, _ *felt.Felt, function string, calldata []*felt.Felt) ([]*felt.Felt, error) {
	f.mu.Lock()
	hang := f.HangCalls
	f.mu.Unlock()
	if hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.CallErr != nil {
		return nil, f.CallErr
	}
	if out, ok := f.Results[function]; ok {
		return out, nil
	}
	switch function {
	case "is_commitment_used":
		return []*felt.Felt{field.FromBool(f.used[calldata[0].String()])}, nil
	case "is_trader_registered":
		return []*felt.Felt{field.FromBool(f.registered[calldata[0].String()])}, nil
	case "get_report_count":
		return []*felt.Felt{field.FromUint64(f.reports)}, nil
	case "get_trader_stats":
		trader := calldata[0].String()
		return []*felt.Felt{
			field.FromUint64(f.countFor(trader)),
			field.FromUint64(f.trades[trader]),
			field.FromUint64(0),
			field.FromUint64(0),
			field.FromUint64(0),
		}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownFunction, function)
}

func (f *Fake) countFor(trader string) uint64 {
	var n uint64
	for _, inv := range f.Invocations {
		if inv.Function == "submit_report" && inv.Calldata[0].String() == trader {
			n++
		}
	}
	return n
}

func (f *Fake) Invoke(_ context.Context, contract *felt.Felt, function string, calldata []*felt.Felt) (*felt.Felt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.InvokeErr != nil {
		return nil, f.InvokeErr
	}

	txHash := field.FromUint64(uint64(0xabc000 + len(f.Invocations)))
	f.Invocations = append(f.Invocations, Invocation{Function: function, Calldata: calldata})

	switch function {
	case "submit_report":
		commitment := calldata[6].String()
		if f.used[commitment] {
			f.reverted[txHash.String()] = "commitment already used"
			break
		}
		f.used[commitment] = true
		f.reports++
		f.trades[calldata[0].String()] += field.BigInt(calldata[3]).Uint64()
		if !f.OmitEvent {
			f.pending[txHash.String()] = []chain.Event{{
				FromAddress: contract,
				Keys:        []*felt.Felt{chain.Selector("ReportSubmitted"), field.FromUint64(f.reports)},
			}}
		}
	case "register_trader":
		f.registered[calldata[0].String()] = true
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFunction, function)
	}
	return txHash, nil
}

func (f *Fake) WaitForReceipt(ctx context.Context, txHash *felt.Felt) (*chain.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	f.block++
	receipt := &chain.Receipt{
		TransactionHash: txHash,
		BlockNumber:     f.block,
		Events:          f.pending[txHash.String()],
	}
	reason := f.Revert
	if r, ok := f.reverted[txHash.String()]; ok {
		reason = r
	}
	if reason != "" {
		receipt.Reverted = true
		receipt.RevertReason = reason
		receipt.Events = nil
	}
	delete(f.pending, txHash.String())
	delete(f.reverted, txHash.String())
	return receipt, nil
}

// MarkUsed records a commitment as already accepted
func (f *Fake) MarkUsed(commitment *felt.Felt) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.used[commitment.String()] = true
}

// Reports returns how many reports were accepted
func (f *Fake) Reports() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reports
}
