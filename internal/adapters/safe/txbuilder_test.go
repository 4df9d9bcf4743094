package safe

import (
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safepay-org/safepay/internal/adapters/abi"
	"github.com/safepay-org/safepay/internal/chains"
	"github.com/safepay-org/safepay/internal/domain/models"
)

const (
	usdtCelo     = "0x48065fbbe25f71c9282ddf5e1cd6d6a887483d5e"
	transferData = "0xa9059cbb00000000000000000000000099999999999999999999999999999999999999990000000000000000000000000000000000000000000000000000000000bebc20"
)

func TestTxBuilder_SingleCall(t *testing.T) {
	celo := chains.BuiltinChains[0]
	call := models.SafeTxData{To: usdtCelo, Value: "0", Data: transferData, Operation: models.SafeOperationCall}

	proposal, err := NewTxBuilder().BuildProposal(celo, "0x1234567890AbcdEF1234567890aBcdef12345678", 5, []models.SafeTxData{call})
	require.NoError(t, err)

	assert.Equal(t, testSafe, proposal.SafeAddress)
	assert.Equal(t, usdtCelo, proposal.To)
	assert.Equal(t, models.SafeOperationCall, proposal.Operation)
	assert.Equal(t, transferData, proposal.Data)
	assert.Equal(t, uint64(5), proposal.Nonce)
	assert.Equal(t, "0x50f185751b17060c06950be795179bd4f166dabf91252024bc104bcfc791f6f6", proposal.SafeTxHash)

	t.Run("nonce changes the hash", func(t *testing.T) {
		next, err := NewTxBuilder().BuildProposal(celo, testSafe, 6, []models.SafeTxData{call})
		require.NoError(t, err)
		assert.Equal(t, "0x5f9c365a06732567549409479c0d26af6b2eb7ccfbd55d2b422584fac28f70c0", next.SafeTxHash)
	})
}

func TestTxBuilder_MultiSend(t *testing.T) {
	celo := chains.BuiltinChains[0]
	calls := []models.SafeTxData{
		{To: usdtCelo, Value: "0", Data: transferData},
		{To: usdtCelo, Value: "0", Data: "0xa9059cbb"},
	}

	proposal, err := NewTxBuilder().BuildProposal(celo, testSafe, 1, calls)
	require.NoError(t, err)
	assert.Equal(t, "0x40a2accbd92bca938b02010e17a5b8929b49130d", proposal.To)
	assert.Equal(t, models.SafeOperationDelegateCall, proposal.Operation)
	assert.Equal(t, "0", proposal.Value)
	assert.Len(t, proposal.SafeTxHash, 66)

	data, err := hexutil.Decode(proposal.Data)
	require.NoError(t, err)
	decoded, err := abi.DecodeMultiSend(data)
	require.NoError(t, err)
	require.Len(t, decoded, 2)
	assert.Equal(t, usdtCelo, decoded[0].To)
	assert.Equal(t, transferData, decoded[0].Data)
}

func TestTxBuilder_Rejects(t *testing.T) {
	celo := chains.BuiltinChains[0]
	call := models.SafeTxData{To: usdtCelo, Value: "0", Data: transferData}

	t.Run("invalid safe", func(t *testing.T) {
		_, err := NewTxBuilder().BuildProposal(celo, "0xnope", 0, []models.SafeTxData{call})
		assert.Error(t, err)
	})

	t.Run("no calls", func(t *testing.T) {
		_, err := NewTxBuilder().BuildProposal(celo, testSafe, 0, nil)
		assert.Error(t, err)
	})

	t.Run("delegate call inside a batch", func(t *testing.T) {
		bad := call
		bad.Operation = models.SafeOperationDelegateCall
		_, err := NewTxBuilder().BuildProposal(celo, testSafe, 0, []models.SafeTxData{call, bad})
		assert.ErrorContains(t, err, "only accepts plain calls")
	})

	t.Run("chain without multisend", func(t *testing.T) {
		bare := celo
		bare.MultiSendCallOnly = ""
		_, err := NewTxBuilder().BuildProposal(bare, testSafe, 0, []models.SafeTxData{call, call})
		assert.ErrorContains(t, err, "MultiSendCallOnly")
	})
}
