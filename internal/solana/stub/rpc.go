package stub

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"solana-pool-sniper/internal/solana"
)

// ErrNotFound is returned when a stubbed record is not found.
var ErrNotFound = errors.New("not found")

// RPCClient implements solana.RPCClient for testing.
// Err, when set, is returned by every call.
type RPCClient struct {
	mu sync.Mutex

	Accounts        map[string]*solana.AccountInfo
	Balances        map[string]uint64
	Supplies        map[string]*solana.TokenAmount
	LargestAccounts map[string][]solana.TokenAccountBalance
	TokenBalances   map[string]*solana.TokenAmount // key: owner|mint
	ProgramAccounts map[string][]solana.ProgramAccount
	Statuses        map[string]*solana.SignatureStatus

	Simulation *solana.SimulationResult
	SendErr    error
	Err        error

	Sent  []string
	Calls map[string]int
}

var _ solana.RPCClient = (*RPCClient)(nil)

// NewRPCClient creates a new stub RPC client.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		Accounts:        make(map[string]*solana.AccountInfo),
		Balances:        make(map[string]uint64),
		Supplies:        make(map[string]*solana.TokenAmount),
		LargestAccounts: make(map[string][]solana.TokenAccountBalance),
		TokenBalances:   make(map[string]*solana.TokenAmount),
		ProgramAccounts: make(map[string][]solana.ProgramAccount),
		Statuses:        make(map[string]*solana.SignatureStatus),
		Calls:           make(map[string]int),
	}
}

func (c *RPCClient) record(method string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Calls[method]++
	return c.Err
}

// CallCount returns how many times method was called.
func (c *RPCClient) CallCount(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Calls[method]
}

// GetAccountInfo returns the stubbed account, or nil.
func (c *RPCClient) GetAccountInfo(_ context.Context, pubkey string) (*solana.AccountInfo, error) {
	if err := c.record("getAccountInfo"); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Accounts[pubkey], nil
}

// GetBalance returns the stubbed balance, zero if unset.
func (c *RPCClient) GetBalance(_ context.Context, pubkey string) (uint64, error) {
	if err := c.record("getBalance"); err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Balances[pubkey], nil
}

// GetTokenSupply returns the stubbed supply.
func (c *RPCClient) GetTokenSupply(_ context.Context, mint string) (*solana.TokenAmount, error) {
	if err := c.record("getTokenSupply"); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.Supplies[mint]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// GetTokenLargestAccounts returns the stubbed holders.
func (c *RPCClient) GetTokenLargestAccounts(_ context.Context, mint string) ([]solana.TokenAccountBalance, error) {
	if err := c.record("getTokenLargestAccounts"); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.LargestAccounts[mint], nil
}

// GetTokenBalance returns the stubbed token balance, zero if unset.
func (c *RPCClient) GetTokenBalance(_ context.Context, owner, mint string) (*solana.TokenAmount, error) {
	if err := c.record("getTokenBalance"); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if b, ok := c.TokenBalances[owner+"|"+mint]; ok {
		return b, nil
	}
	return &solana.TokenAmount{Amount: "0"}, nil
}

// SetTokenBalance stubs a token balance in UI units.
func (c *RPCClient) SetTokenBalance(owner, mint string, ui float64, decimals uint8) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.TokenBalances[owner+"|"+mint] = &solana.TokenAmount{
		Amount:   strconv.FormatFloat(ui, 'f', 0, 64),
		Decimals: decimals,
		UIAmount: ui,
	}
}

// GetProgramAccounts returns stubbed accounts keyed by program, ignoring filters.
func (c *RPCClient) GetProgramAccounts(_ context.Context, program string, _ []solana.AccountFilter) ([]solana.ProgramAccount, error) {
	if err := c.record("getProgramAccounts"); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ProgramAccounts[program], nil
}

// SimulateTransaction returns the stubbed simulation or a clean result.
func (c *RPCClient) SimulateTransaction(_ context.Context, _ string) (*solana.SimulationResult, error) {
	if err := c.record("simulateTransaction"); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Simulation != nil {
		return c.Simulation, nil
	}
	return &solana.SimulationResult{}, nil
}

// SendTransaction records the transaction and returns a signature derived from the send count.
func (c *RPCClient) SendTransaction(_ context.Context, txBase64 string) (string, error) {
	if err := c.record("sendTransaction"); err != nil {
		return "", err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SendErr != nil {
		return "", c.SendErr
	}
	c.Sent = append(c.Sent, txBase64)
	return "sig" + strconv.Itoa(len(c.Sent)), nil
}

// GetSignatureStatuses returns stubbed statuses in request order.
func (c *RPCClient) GetSignatureStatuses(_ context.Context, signatures []string) ([]*solana.SignatureStatus, error) {
	if err := c.record("getSignatureStatuses"); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*solana.SignatureStatus, len(signatures))
	for i, s := range signatures {
		out[i] = c.Statuses[s]
	}
	return out, nil
}
