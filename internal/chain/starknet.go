package chain

import (
	"context"
	"fmt"
	"time"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/starknet.go/account"
	"github.com/NethermindEth/starknet.go/rpc"
	"github.com/xtrntr/tradeproof/internal/field"
	"go.uber.org/zap"
)

// StarknetOptions configures the node connection and the signing account
type StarknetOptions struct {
	RPCURL           string
	AccountAddress   string
	PrivateKey       string
	PublicKey        string
	VerifierContract string
	CairoVersion     int
	PollInterval     time.Duration
	FeeMultiplier    float64
	SubmitTimeout    time.Duration
}

// StarknetBackend implements Backend over a JSON-RPC node
type StarknetBackend struct {
	provider   *rpc.Provider
	account    *account.Account
	poll       time.Duration
	multiplier float64
}

// NewStarknetBackend connects to the node. The account is only built when
// the private key, public key and account address are all set; otherwise
// the backend is read-only.
func NewStarknetBackend(opts StarknetOptions) (*StarknetBackend, error) {
	provider, err := rpc.NewProvider(opts.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create rpc provider: %w", err)
	}

	b := &StarknetBackend{
		provider:   provider,
		poll:       opts.PollInterval,
		multiplier: opts.FeeMultiplier,
	}
	if b.poll == 0 {
		b.poll = 2 * time.Second
	}
	if opts.PrivateKey == "" || opts.PublicKey == "" || opts.AccountAddress == "" {
		return b, nil
	}

	address, err := field.ParseFelt(opts.AccountAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to parse account address: %w", err)
	}
	priv, err := field.ParseFelt(opts.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	ks := account.NewMemKeystore()
	ks.Put(opts.PublicKey, field.BigInt(priv))

	acct, err := account.NewAccount(provider, address, opts.PublicKey, ks, opts.CairoVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}
	b.account = acct
	return b, nil
}

func (b *StarknetBackend) CanSign() bool {
	return b.account != nil
}

func (b *StarknetBackend) Call(ctx context.Context, contract *felt.Felt, function string, calldata []*felt.Felt) ([]*felt.Felt, error) {
	return b.provider.Call(ctx, rpc.FunctionCall{
		ContractAddress:    contract,
		EntryPointSelector: Selector(function),
		Calldata:           calldata,
	}, rpc.WithBlockTag("latest"))
}

func (b *StarknetBackend) Invoke(ctx context.Context, contract *felt.Felt, function string, calldata []*felt.Felt) (*felt.Felt, error) {
	if b.account == nil {
		return nil, ErrNotInitialized
	}
	resp, err := b.account.BuildAndSendInvokeTxn(ctx, []rpc.InvokeFunctionCall{{
		ContractAddress: contract,
		FunctionName:    function,
		CallData:        calldata,
	}}, b.multiplier)
	if err != nil {
		return nil, err
	}
	return resp.TransactionHash, nil
}

func (b *StarknetBackend) WaitForReceipt(ctx context.Context, txHash *felt.Felt) (*Receipt, error) {
	if b.account == nil {
		return nil, ErrNotInitialized
	}
	r, err := b.account.WaitForTransactionReceipt(ctx, txHash, b.poll)
	if err != nil {
		return nil, err
	}

	events := make([]Event, 0, len(r.Events))
	for _, ev := range r.Events {
		events = append(events, Event{
			FromAddress: ev.FromAddress,
			Keys:        ev.Keys,
			Data:        ev.Data,
		})
	}
	return &Receipt{
		TransactionHash: txHash,
		BlockNumber:     uint64(r.BlockNumber),
		Reverted:        r.ExecutionStatus == rpc.TxnExecutionStatusREVERTED,
		RevertReason:    r.RevertReason,
		Events:          events,
	}, nil
}

// Initialize builds a client on a Starknet backend. Missing credentials give
// a read-only client; a missing contract address gives a client whose calls
// fail with ErrContractNotConfigured.
func Initialize(opts StarknetOptions, log *zap.Logger) (*Client, error) {
	backend, err := NewStarknetBackend(opts)
	if err != nil {
		return nil, err
	}

	var contract *felt.Felt
	if opts.VerifierContract != "" {
		contract, err = field.ParseFelt(opts.VerifierContract)
		if err != nil {
			return nil, fmt.Errorf("failed to parse verifier contract address: %w", err)
		}
	}

	client := NewClient(backend, contract, opts.SubmitTimeout, log)
	if !backend.CanSign() {
		client.log.Warn("starknet credentials not set, running read-only")
	}
	return client, nil
}
