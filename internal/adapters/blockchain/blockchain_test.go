package blockchain

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safepay-org/safepay/internal/adapters/abi"
	"github.com/safepay-org/safepay/internal/chains"
	"github.com/safepay-org/safepay/internal/domain"
	"github.com/safepay-org/safepay/internal/usecase"
)

const testSafe = "0x1234567890abcdef1234567890abcdef12345678"

type fakeBackend struct {
	chainID  uint64
	outputs  map[string][]byte
	receipts map[common.Hash]*types.Receipt
	sent     []*types.Transaction
	dials    int
}

func (f *fakeBackend) ChainID(context.Context) (*big.Int, error) {
	return new(big.Int).SetUint64(f.chainID), nil
}

func (f *fakeBackend) CallContract(_ context.Context, call ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	for name, out := range f.outputs {
		if bytes.Equal(call.Data[:4], abi.Safe.Methods[name].ID) {
			return out, nil
		}
	}
	return nil, nil
}

func (f *fakeBackend) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	if r, ok := f.receipts[hash]; ok {
		return r, nil
	}
	return nil, ethereum.NotFound
}

func (f *fakeBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) { return 9, nil }
func (f *fakeBackend) SuggestGasTipCap(context.Context) (*big.Int, error)             { return big.NewInt(2), nil }
func (f *fakeBackend) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	return &types.Header{BaseFee: big.NewInt(10)}, nil
}
func (f *fakeBackend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) { return 50000, nil }
func (f *fakeBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	f.sent = append(f.sent, tx)
	return nil
}

func pack(t *testing.T, method string, values ...any) []byte {
	t.Helper()
	out, err := abi.Safe.Methods[method].Outputs.Pack(values...)
	require.NoError(t, err)
	return out
}

func newTestClients(backend *fakeBackend) *Clients {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewClients(nil, chains.NewDefaultRegistry(), log).WithDialer(func(context.Context, string) (Backend, error) {
		backend.dials++
		return backend, nil
	})
}

func TestReader_ReadSafe(t *testing.T) {
	owners := []common.Address{
		common.HexToAddress("0x1111111111111111111111111111111111111111"),
		common.HexToAddress("0x2222222222222222222222222222222222222222"),
	}
	backend := &fakeBackend{outputs: map[string][]byte{
		"getOwners":    pack(t, "getOwners", owners),
		"getThreshold": pack(t, "getThreshold", big.NewInt(2)),
		"nonce":        pack(t, "nonce", big.NewInt(11)),
		"VERSION":      pack(t, "VERSION", "1.3.0"),
	}}
	reader := NewReader(newTestClients(backend))

	info, err := reader.ReadSafe(context.Background(), 42220, testSafe)
	require.NoError(t, err)
	assert.Equal(t, testSafe, info.Address)
	assert.Equal(t, []string{"0x1111111111111111111111111111111111111111", "0x2222222222222222222222222222222222222222"}, info.Owners)
	assert.Equal(t, 2, info.Threshold)
	assert.Equal(t, uint64(11), info.Nonce)
	assert.Equal(t, "1.3.0", info.Version)

	_, err = reader.ReadSafe(context.Background(), 42220, testSafe)
	require.NoError(t, err)
	assert.Equal(t, 1, backend.dials)

	t.Run("address without code is not a safe", func(t *testing.T) {
		reader := NewReader(newTestClients(&fakeBackend{}))
		_, err := reader.ReadSafe(context.Background(), 42220, testSafe)
		assert.ErrorContains(t, err, "is not a Safe")
	})

	t.Run("unknown chain", func(t *testing.T) {
		_, err := reader.ReadSafe(context.Background(), 1, testSafe)
		assert.ErrorIs(t, err, domain.ErrChainNotFound)
	})

	t.Run("invalid address", func(t *testing.T) {
		_, err := reader.ReadSafe(context.Background(), 42220, "0xzz")
		assert.ErrorIs(t, err, domain.ErrInvalidAddress)
	})
}

func TestReader_GetReceipt(t *testing.T) {
	mined := common.HexToHash("0xaa")
	reverted := common.HexToHash("0xbb")
	backend := &fakeBackend{receipts: map[common.Hash]*types.Receipt{
		mined:    {Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(77)},
		reverted: {Status: types.ReceiptStatusFailed, BlockNumber: big.NewInt(78)},
	}}
	reader := NewReader(newTestClients(backend))
	ctx := context.Background()

	status, err := reader.GetReceipt(ctx, 42220, mined.Hex())
	require.NoError(t, err)
	assert.True(t, status.Found)
	assert.True(t, status.Success)
	assert.Equal(t, uint64(77), status.BlockNumber)

	status, err = reader.GetReceipt(ctx, 42220, reverted.Hex())
	require.NoError(t, err)
	assert.True(t, status.Found)
	assert.False(t, status.Success)

	status, err = reader.GetReceipt(ctx, 42220, common.HexToHash("0xcc").Hex())
	require.NoError(t, err)
	assert.False(t, status.Found)
}

func TestBroadcaster(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	backend := &fakeBackend{}
	b := NewBroadcaster(newTestClients(backend), key, slog.New(slog.NewTextHandler(io.Discard, nil)))

	hash, err := b.Broadcast(context.Background(), usecase.BroadcastRequest{
		ChainID: 42220,
		To:      "0x48065fbbe25f71c9282ddf5e1cd6d6a887483d5e",
		Data:    []byte{0xa9, 0x05, 0x9c, 0xbb},
	})
	require.NoError(t, err)
	require.Len(t, backend.sent, 1)

	tx := backend.sent[0]
	assert.Equal(t, hash, "0x"+common.Bytes2Hex(tx.Hash().Bytes()))
	assert.Equal(t, uint64(9), tx.Nonce())
	assert.Equal(t, uint64(60000), tx.Gas())
	assert.Equal(t, big.NewInt(22), tx.GasFeeCap())
	assert.Equal(t, big.NewInt(42220), tx.ChainId())

	sender, err := types.Sender(types.NewLondonSigner(tx.ChainId()), tx)
	require.NoError(t, err)
	assert.Equal(t, b.From(), sender.Hex())

	t.Run("invalid target", func(t *testing.T) {
		_, err := b.Broadcast(context.Background(), usecase.BroadcastRequest{ChainID: 42220, To: "nope"})
		assert.ErrorIs(t, err, domain.ErrInvalidAddress)
	})
}

func TestClients_RemoteChainID(t *testing.T) {
	clients := newTestClients(&fakeBackend{chainID: 44787})
	remote, err := clients.RemoteChainID(context.Background(), 42220)
	require.NoError(t, err)
	assert.Equal(t, uint64(44787), remote)

	failing := NewClients(nil, chains.NewDefaultRegistry(), slog.New(slog.NewTextHandler(io.Discard, nil))).
		WithDialer(func(context.Context, string) (Backend, error) { return nil, errors.New("refused") })
	_, err = failing.RemoteChainID(context.Background(), 42220)
	assert.True(t, domain.IsRetryable(err))
}
