package abi

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/safepay-org/safepay/internal/domain/models"
)

// EncodeMultiSend packs calls into multiSend(bytes) calldata.
// Each call is encoded as operation(1) | to(20) | value(32) | dataLength(32) | data.
func EncodeMultiSend(calls []models.SafeTxData) ([]byte, error) {
	var packed bytes.Buffer
	for i, call := range calls {
		if !common.IsHexAddress(call.To) {
			return nil, fmt.Errorf("call %d: invalid target %q", i, call.To)
		}
		value, ok := parseValue(call.Value)
		if !ok {
			return nil, fmt.Errorf("call %d: invalid value %q", i, call.Value)
		}
		data, err := decodeData(call.Data)
		if err != nil {
			return nil, fmt.Errorf("call %d: %w", i, err)
		}

		packed.WriteByte(byte(call.Operation))
		packed.Write(common.HexToAddress(call.To).Bytes())
		packed.Write(common.LeftPadBytes(value.Bytes(), 32))
		packed.Write(common.LeftPadBytes(new(big.Int).SetInt64(int64(len(data))).Bytes(), 32))
		packed.Write(data)
	}
	return MultiSend.Pack("multiSend", packed.Bytes())
}

// DecodeMultiSend reverses EncodeMultiSend
func DecodeMultiSend(calldata []byte) ([]models.SafeTxData, error) {
	method := MultiSend.Methods["multiSend"]
	if len(calldata) < 4 || !bytes.Equal(calldata[:4], method.ID) {
		return nil, fmt.Errorf("not a multiSend call")
	}
	values, err := method.Inputs.Unpack(calldata[4:])
	if err != nil {
		return nil, fmt.Errorf("failed to unpack multiSend: %w", err)
	}
	packed, ok := values[0].([]byte)
	if !ok {
		return nil, fmt.Errorf("unexpected transactions type %T", values[0])
	}

	var calls []models.SafeTxData
	for offset := 0; offset < len(packed); {
		if len(packed)-offset < 85 {
			return nil, fmt.Errorf("truncated call at offset %d", offset)
		}
		op := models.SafeOperation(packed[offset])
		to := common.BytesToAddress(packed[offset+1 : offset+21])
		value := new(big.Int).SetBytes(packed[offset+21 : offset+53])
		lengthWord := packed[offset+53 : offset+85]
		length := binary.BigEndian.Uint64(lengthWord[24:])
		offset += 85
		if uint64(len(packed)-offset) < length {
			return nil, fmt.Errorf("truncated call data at offset %d", offset)
		}
		calls = append(calls, models.SafeTxData{
			To:        strings.ToLower(to.Hex()),
			Value:     value.String(),
			Data:      hexutil.Encode(packed[offset : offset+int(length)]),
			Operation: op,
		})
		offset += int(length)
	}
	return calls, nil
}

func parseValue(v string) (*big.Int, bool) {
	if v == "" {
		return new(big.Int), true
	}
	if strings.HasPrefix(v, "0x") {
		n, err := hexutil.DecodeBig(v)
		return n, err == nil
	}
	n, ok := new(big.Int).SetString(v, 10)
	if ok && n.Sign() < 0 {
		return nil, false
	}
	return n, ok
}

func decodeData(d string) ([]byte, error) {
	if d == "" || d == "0x" {
		return nil, nil
	}
	data, err := hexutil.Decode(d)
	if err != nil {
		return nil, fmt.Errorf("invalid call data: %w", err)
	}
	return data, nil
}
