package solana

import "context"

// RPCClient defines the Solana RPC HTTP methods used by the pipeline.
type RPCClient interface {
	// GetAccountInfo retrieves account info by public key. Returns nil if not found.
	GetAccountInfo(ctx context.Context, pubkey string) (*AccountInfo, error)

	// GetBalance returns the account balance in lamports.
	GetBalance(ctx context.Context, pubkey string) (uint64, error)

	// GetTokenSupply returns the mint's supply and decimals.
	GetTokenSupply(ctx context.Context, mint string) (*TokenAmount, error)

	// GetTokenLargestAccounts returns up to 20 largest holders of a mint.
	GetTokenLargestAccounts(ctx context.Context, mint string) ([]TokenAccountBalance, error)

	// GetTokenBalance returns the owner's total balance of a mint across token accounts.
	GetTokenBalance(ctx context.Context, owner, mint string) (*TokenAmount, error)

	// GetProgramAccounts returns accounts owned by program matching all filters.
	GetProgramAccounts(ctx context.Context, program string, filters []AccountFilter) ([]ProgramAccount, error)

	// SimulateTransaction simulates a base64-encoded signed transaction.
	SimulateTransaction(ctx context.Context, txBase64 string) (*SimulationResult, error)

	// SendTransaction submits a base64-encoded signed transaction and returns its signature.
	SendTransaction(ctx context.Context, txBase64 string) (string, error)

	// GetSignatureStatuses returns statuses in request order; nil entries are unknown signatures.
	GetSignatureStatuses(ctx context.Context, signatures []string) ([]*SignatureStatus, error)
}
