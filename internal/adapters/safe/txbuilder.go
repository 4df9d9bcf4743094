package safe

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/safepay-org/safepay/internal/adapters/abi"
	"github.com/safepay-org/safepay/internal/chains"
	"github.com/safepay-org/safepay/internal/domain/models"
	"github.com/safepay-org/safepay/internal/usecase"
)

// safeTxTypes is the EIP-712 schema of a Safe transaction (Safe >= 1.3.0)
var safeTxTypes = apitypes.Types{
	"EIP712Domain": []apitypes.Type{
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	},
	"SafeTx": []apitypes.Type{
		{Name: "to", Type: "address"},
		{Name: "value", Type: "uint256"},
		{Name: "data", Type: "bytes"},
		{Name: "operation", Type: "uint8"},
		{Name: "safeTxGas", Type: "uint256"},
		{Name: "baseGas", Type: "uint256"},
		{Name: "gasPrice", Type: "uint256"},
		{Name: "gasToken", Type: "address"},
		{Name: "refundReceiver", Type: "address"},
		{Name: "nonce", Type: "uint256"},
	},
}

// TxBuilder assembles Safe transactions. A single call is proposed directly;
// several calls are wrapped in a MultiSendCallOnly delegate call.
type TxBuilder struct{}

// NewTxBuilder creates a Safe transaction builder
func NewTxBuilder() *TxBuilder {
	return &TxBuilder{}
}

// BuildProposal returns an unsigned proposal with its safeTxHash
func (b *TxBuilder) BuildProposal(chain chains.Chain, safeAddress string, nonce uint64, calls []models.SafeTxData) (*models.SafeProposal, error) {
	if !common.IsHexAddress(safeAddress) {
		return nil, fmt.Errorf("invalid safe address %q", safeAddress)
	}
	if len(calls) == 0 {
		return nil, fmt.Errorf("safe transaction needs at least one call")
	}

	proposal := &models.SafeProposal{
		SafeAddress: strings.ToLower(safeAddress),
		ChainID:     chain.ChainID,
		Nonce:       nonce,
		Calls:       calls,
	}

	if len(calls) == 1 {
		call := calls[0]
		if !common.IsHexAddress(call.To) {
			return nil, fmt.Errorf("invalid call target %q", call.To)
		}
		proposal.To = strings.ToLower(call.To)
		proposal.Value = valueOrZero(call.Value)
		proposal.Data = dataOrEmpty(call.Data)
		proposal.Operation = call.Operation
	} else {
		if !common.IsHexAddress(chain.MultiSendCallOnly) {
			return nil, fmt.Errorf("chain %s has no MultiSendCallOnly deployment", chain.ID)
		}
		for i, call := range calls {
			if call.Operation != models.SafeOperationCall {
				return nil, fmt.Errorf("call %d: MultiSendCallOnly only accepts plain calls", i)
			}
		}
		data, err := abi.EncodeMultiSend(calls)
		if err != nil {
			return nil, fmt.Errorf("failed to encode multisend: %w", err)
		}
		proposal.To = strings.ToLower(chain.MultiSendCallOnly)
		proposal.Value = "0"
		proposal.Data = hexutil.Encode(data)
		proposal.Operation = models.SafeOperationDelegateCall
	}

	hash, err := SafeTxHash(proposal)
	if err != nil {
		return nil, err
	}
	proposal.SafeTxHash = hash
	return proposal, nil
}

// SafeTxHash computes the EIP-712 hash owners sign for a proposal
func SafeTxHash(p *models.SafeProposal) (string, error) {
	value, ok := new(big.Int).SetString(valueOrZero(p.Value), 10)
	if !ok {
		return "", fmt.Errorf("invalid value %q", p.Value)
	}
	zero := common.Address{}.Hex()

	typedData := apitypes.TypedData{
		Types:       safeTxTypes,
		PrimaryType: "SafeTx",
		Domain: apitypes.TypedDataDomain{
			ChainId:           (*math.HexOrDecimal256)(new(big.Int).SetUint64(p.ChainID)),
			VerifyingContract: common.HexToAddress(p.SafeAddress).Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"to":             common.HexToAddress(p.To).Hex(),
			"value":          (*math.HexOrDecimal256)(value),
			"data":           dataOrEmpty(p.Data),
			"operation":      (*math.HexOrDecimal256)(big.NewInt(int64(p.Operation))),
			"safeTxGas":      (*math.HexOrDecimal256)(big.NewInt(0)),
			"baseGas":        (*math.HexOrDecimal256)(big.NewInt(0)),
			"gasPrice":       (*math.HexOrDecimal256)(big.NewInt(0)),
			"gasToken":       zero,
			"refundReceiver": zero,
			"nonce":          (*math.HexOrDecimal256)(new(big.Int).SetUint64(p.Nonce)),
		},
	}

	hash, _, err := apitypes.TypedDataAndHash(typedData)
	if err != nil {
		return "", fmt.Errorf("failed to hash safe transaction: %w", err)
	}
	return hexutil.Encode(hash), nil
}

func dataOrEmpty(d string) string {
	if d == "" {
		return "0x"
	}
	return d
}

var _ usecase.SafeTxBuilder = (*TxBuilder)(nil)
