package wallet

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/safepay-org/safepay/internal/domain"
	"github.com/safepay-org/safepay/internal/usecase"
)

// KeySigner signs with a raw private key. It doubles as an injected provider for the CLI.
type KeySigner struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	chainID    uint64
}

// NewKeySigner parses a hex private key, with or without 0x
func NewKeySigner(privateKeyHex string, chainID uint64) (*KeySigner, error) {
	privateKeyHex = strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x")
	if privateKeyHex == "" {
		return nil, domain.ErrNoSigner
	}
	key, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return NewKeySignerFromKey(key, chainID), nil
}

// NewKeySignerFromKey wraps an already parsed key
func NewKeySignerFromKey(key *ecdsa.PrivateKey, chainID uint64) *KeySigner {
	return &KeySigner{
		privateKey: key,
		address:    crypto.PubkeyToAddress(key.PublicKey),
		chainID:    chainID,
	}
}

// Key returns the parsed private key
func (s *KeySigner) Key() *ecdsa.PrivateKey {
	return s.privateKey
}

// Address returns the signer's checksummed address
func (s *KeySigner) Address() string {
	return s.address.Hex()
}

// SignSafeTxHash signs the 32-byte safeTxHash as an EIP-712 digest
func (s *KeySigner) SignSafeTxHash(safeTxHash string) (string, error) {
	digest, err := hexutil.Decode(safeTxHash)
	if err != nil || len(digest) != 32 {
		return "", fmt.Errorf("invalid safe tx hash %q", safeTxHash)
	}

	signature, err := crypto.Sign(digest, s.privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign safe tx hash: %w", err)
	}

	// Adjust V value for Ethereum signature standard
	signature[64] += 27
	return hexutil.Encode(signature), nil
}

// RequestAccounts exposes the key's address as the only account
func (s *KeySigner) RequestAccounts(context.Context) ([]string, error) {
	return []string{strings.ToLower(s.address.Hex())}, nil
}

// ChainID returns the chain the signer is configured for
func (s *KeySigner) ChainID(context.Context) (uint64, error) {
	return s.chainID, nil
}

var (
	_ usecase.ProposalSigner   = (*KeySigner)(nil)
	_ usecase.InjectedProvider = (*KeySigner)(nil)
)
