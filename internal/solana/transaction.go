package solana

import (
	"encoding/base64"
	"errors"
	"fmt"

	solanago "github.com/gagliardetto/solana-go"
)

var (
	// ErrMalformedTransaction is returned when a serialized transaction cannot be parsed.
	ErrMalformedTransaction = errors.New("malformed transaction")

	// ErrFeePayerMismatch is returned when a transaction's fee payer is not the signing wallet.
	ErrFeePayerMismatch = errors.New("fee payer is not the signer")
)

// SignSerializedTransaction signs a serialized (legacy or v0) transaction
// whose fee payer is signer. It returns the signed transaction as base64 and
// its signature in base58. Transactions that need any other signer are refused.
func SignSerializedTransaction(txBase64 string, signer *Keypair) (string, string, error) {
	tx, err := solanago.TransactionFromBase64(txBase64)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrMalformedTransaction, err)
	}
	if len(tx.Message.AccountKeys) == 0 || tx.Message.Header.NumRequiredSignatures == 0 {
		return "", "", fmt.Errorf("%w: no signer accounts", ErrMalformedTransaction)
	}

	key := solanago.PrivateKey(signer.private)
	payer := key.PublicKey()
	if !tx.Message.AccountKeys[0].Equals(payer) {
		return "", "", fmt.Errorf("%w: payer %s, signer %s", ErrFeePayerMismatch, tx.Message.AccountKeys[0], payer)
	}

	_, err = tx.Sign(func(k solanago.PublicKey) *solanago.PrivateKey {
		if k.Equals(payer) {
			return &key
		}
		return nil
	})
	if err != nil {
		return "", "", fmt.Errorf("sign transaction: %w", err)
	}

	raw, err := tx.MarshalBinary()
	if err != nil {
		return "", "", fmt.Errorf("encode transaction: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), tx.Signatures[0].String(), nil
}
