package blockchain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/safepay-org/safepay/internal/domain"
	"github.com/safepay-org/safepay/internal/usecase"
)

// gasHeadroom pads estimates by 20 percent
const gasHeadroom = 120

// Broadcaster signs EIP-1559 transactions with a local key and sends them
type Broadcaster struct {
	clients *Clients
	key     *ecdsa.PrivateKey
	from    common.Address
	log     *slog.Logger
}

// NewBroadcaster creates a broadcaster for key
func NewBroadcaster(clients *Clients, key *ecdsa.PrivateKey, log *slog.Logger) *Broadcaster {
	return &Broadcaster{
		clients: clients,
		key:     key,
		from:    crypto.PubkeyToAddress(key.PublicKey),
		log:     log.With("component", "broadcaster"),
	}
}

// From returns the sending address
func (b *Broadcaster) From() string {
	return b.from.Hex()
}

// Broadcast signs req and returns the transaction hash once the node accepts it
func (b *Broadcaster) Broadcast(ctx context.Context, req usecase.BroadcastRequest) (string, error) {
	if !common.IsHexAddress(req.To) {
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidAddress, req.To)
	}
	client, err := b.clients.Backend(ctx, req.ChainID)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, b.clients.timeout)
	defer cancel()

	to := common.HexToAddress(req.To)
	value := req.Value
	if value == nil {
		value = new(big.Int)
	}

	nonce, err := client.PendingNonceAt(ctx, b.from)
	if err != nil {
		return "", domain.NewTransientError("rpc nonce", fmt.Errorf("failed to get nonce: %w", err))
	}
	tip, err := client.SuggestGasTipCap(ctx)
	if err != nil {
		return "", domain.NewTransientError("rpc gas tip", fmt.Errorf("failed to get gas tip: %w", err))
	}
	head, err := client.HeaderByNumber(ctx, nil)
	if err != nil {
		return "", domain.NewTransientError("rpc header", fmt.Errorf("failed to get latest header: %w", err))
	}
	baseFee := head.BaseFee
	if baseFee == nil {
		baseFee = new(big.Int)
	}
	feeCap := new(big.Int).Add(tip, new(big.Int).Mul(baseFee, big.NewInt(2)))

	gas, err := client.EstimateGas(ctx, ethereum.CallMsg{From: b.from, To: &to, Value: value, Data: req.Data})
	if err != nil {
		// a failing estimate means the call would revert, retrying does not help
		return "", fmt.Errorf("gas estimation failed: %w", err)
	}
	gas = gas * gasHeadroom / 100

	chainID := new(big.Int).SetUint64(req.ChainID)
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        &to,
		Value:     value,
		Data:      req.Data,
	})
	signed, err := types.SignTx(tx, types.NewLondonSigner(chainID), b.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := client.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("failed to send transaction: %w", err)
	}

	hash := strings.ToLower(signed.Hash().Hex())
	b.log.Info("transaction sent", "from", b.from.Hex(), "to", to.Hex(), "nonce", nonce, "gas", gas, "chain_id", req.ChainID, "tx_hash", hash)
	return hash, nil
}

var _ usecase.TransactionBroadcaster = (*Broadcaster)(nil)
