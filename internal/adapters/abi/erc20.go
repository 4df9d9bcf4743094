package abi

import (
	"bytes"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/safepay-org/safepay/internal/domain"
	"github.com/safepay-org/safepay/internal/usecase"
)

// ERC20Codec encodes and decodes ERC-20 transfer calldata
type ERC20Codec struct{}

// NewERC20Codec creates a new codec
func NewERC20Codec() *ERC20Codec {
	return &ERC20Codec{}
}

// EncodeTransfer packs transfer(to, amount)
func (ERC20Codec) EncodeTransfer(to string, amount *big.Int) ([]byte, error) {
	if !common.IsHexAddress(to) {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidAddress, to)
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, domain.NewValidationError("amount", "amount must be greater than zero")
	}
	data, err := ERC20.Pack("transfer", common.HexToAddress(to), amount)
	if err != nil {
		return nil, fmt.Errorf("failed to pack transfer: %w", err)
	}
	return data, nil
}

// DecodeTransfer unpacks transfer calldata into a lowercase recipient and amount
func (ERC20Codec) DecodeTransfer(data []byte) (string, *big.Int, error) {
	method := ERC20.Methods["transfer"]
	if len(data) < 4 || !bytes.Equal(data[:4], method.ID) {
		return "", nil, fmt.Errorf("not a transfer call")
	}
	values, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return "", nil, fmt.Errorf("failed to unpack transfer: %w", err)
	}
	to, ok := values[0].(common.Address)
	if !ok {
		return "", nil, fmt.Errorf("unexpected recipient type %T", values[0])
	}
	amount, ok := values[1].(*big.Int)
	if !ok {
		return "", nil, fmt.Errorf("unexpected amount type %T", values[1])
	}
	return strings.ToLower(to.Hex()), amount, nil
}

var _ usecase.TransferEncoder = (*ERC20Codec)(nil)
