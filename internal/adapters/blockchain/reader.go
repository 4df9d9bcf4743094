package blockchain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/safepay-org/safepay/internal/adapters/abi"
	"github.com/safepay-org/safepay/internal/domain"
	"github.com/safepay-org/safepay/internal/domain/models"
	"github.com/safepay-org/safepay/internal/usecase"
)

// Reader implements ChainReader over JSON-RPC
type Reader struct {
	clients *Clients
}

// NewReader creates a chain reader
func NewReader(clients *Clients) *Reader {
	return &Reader{clients: clients}
}

// ReadSafe reads owners, threshold, nonce and version from the Safe contract
func (r *Reader) ReadSafe(ctx context.Context, chainID uint64, address string) (*models.SafeInfo, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidAddress, address)
	}
	client, err := r.clients.Backend(ctx, chainID)
	if err != nil {
		return nil, err
	}
	safe := common.HexToAddress(address)

	var owners []common.Address
	if err := r.call(ctx, client, safe, "getOwners", &owners); err != nil {
		return nil, err
	}
	var threshold, nonce *big.Int
	if err := r.call(ctx, client, safe, "getThreshold", &threshold); err != nil {
		return nil, err
	}
	if err := r.call(ctx, client, safe, "nonce", &nonce); err != nil {
		return nil, err
	}
	// VERSION is optional on very old deployments
	var version string
	_ = r.call(ctx, client, safe, "VERSION", &version)

	info := &models.SafeInfo{
		Address:   strings.ToLower(safe.Hex()),
		ChainID:   chainID,
		Threshold: int(threshold.Int64()),
		Nonce:     nonce.Uint64(),
		Version:   version,
	}
	for _, owner := range owners {
		info.Owners = append(info.Owners, strings.ToLower(owner.Hex()))
	}
	return info, nil
}

func (r *Reader) call(ctx context.Context, client Backend, to common.Address, method string, out any) error {
	data, err := abi.Safe.Pack(method)
	if err != nil {
		return fmt.Errorf("failed to pack %s: %w", method, err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.clients.timeout)
	defer cancel()

	result, err := client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return domain.NewTransientError("rpc "+method, err)
	}
	if len(result) == 0 {
		return fmt.Errorf("%s returned no data, %s is not a Safe", method, to.Hex())
	}
	if err := abi.Safe.UnpackIntoInterface(out, method, result); err != nil {
		return fmt.Errorf("failed to unpack %s: %w", method, err)
	}
	return nil
}

// GetReceipt reports whether a transaction was mined and succeeded
func (r *Reader) GetReceipt(ctx context.Context, chainID uint64, txHash string) (*models.ReceiptStatus, error) {
	client, err := r.clients.Backend(ctx, chainID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.clients.timeout)
	defer cancel()

	receipt, err := client.TransactionReceipt(ctx, common.HexToHash(txHash))
	if err != nil {
		if errors.Is(err, ethereum.NotFound) || strings.Contains(err.Error(), "not found") {
			return &models.ReceiptStatus{Found: false}, nil
		}
		return nil, domain.NewTransientError("rpc receipt", fmt.Errorf("failed to get transaction receipt: %w", err))
	}

	status := &models.ReceiptStatus{
		Found:   true,
		Success: receipt.Status == types.ReceiptStatusSuccessful,
	}
	if receipt.BlockNumber != nil {
		status.BlockNumber = receipt.BlockNumber.Uint64()
	}
	return status, nil
}

var _ usecase.ChainReader = (*Reader)(nil)
