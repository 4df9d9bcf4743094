package usecase_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/safepay-org/safepay/internal/domain"
	"github.com/safepay-org/safepay/internal/domain/models"
	"github.com/safepay-org/safepay/internal/usecase"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeEnv struct {
	embedded bool
	injected bool
}

func (e fakeEnv) IsEmbedded() bool          { return e.embedded }
func (e fakeEnv) HasInjectedProvider() bool { return e.injected }

// MockInjectedProvider is a mock implementation of InjectedProvider
type MockInjectedProvider struct {
	mock.Mock
}

func (m *MockInjectedProvider) RequestAccounts(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockInjectedProvider) ChainID(ctx context.Context) (uint64, error) {
	args := m.Called(ctx)
	return args.Get(0).(uint64), args.Error(1)
}

// scriptedBridge answers each handshake with the next scripted step
type scriptedBridge struct {
	calls int32
	steps []func(ctx context.Context) (*models.SafeAppInfo, error)
}

func (b *scriptedBridge) Handshake(ctx context.Context) (*models.SafeAppInfo, error) {
	n := int(atomic.AddInt32(&b.calls, 1)) - 1
	if n >= len(b.steps) {
		n = len(b.steps) - 1
	}
	return b.steps[n](ctx)
}

func hang(ctx context.Context) (*models.SafeAppInfo, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func answer(info *models.SafeAppInfo) func(context.Context) (*models.SafeAppInfo, error) {
	return func(context.Context) (*models.SafeAppInfo, error) { return info, nil }
}

type handshakeCounter struct {
	usecase.NopMetrics
	outcomes []string
}

func (h *handshakeCounter) IncHandshakeAttempt(outcome string) {
	h.outcomes = append(h.outcomes, outcome)
}

func fastConnector(metrics usecase.Metrics) *usecase.WalletConnector {
	c := usecase.NewWalletConnector(nil, metrics, discardLogger())
	c.WarmUp = 5 * time.Millisecond
	c.Timeout = 20 * time.Millisecond
	c.Delay = time.Millisecond
	return c
}

func TestWalletConnector_Detect(t *testing.T) {
	c := fastConnector(usecase.NopMetrics{})

	t.Run("embedded with provider", func(t *testing.T) {
		got := c.Detect(usecase.WalletContext{
			Env:      fakeEnv{embedded: true, injected: true},
			Provider: new(MockInjectedProvider),
		})
		assert.True(t, got.HasSafe)
		assert.True(t, got.HasMetaMask)
		assert.False(t, got.HasWalletConnect)
	})

	t.Run("no environment", func(t *testing.T) {
		assert.Equal(t, models.AvailableWallets{}, c.Detect(usecase.WalletContext{}))
	})
}

func TestWalletConnector_ConnectMetaMask(t *testing.T) {
	ctx := context.Background()
	c := fastConnector(usecase.NopMetrics{})

	t.Run("no injected provider", func(t *testing.T) {
		_, err := c.ConnectMetaMask(ctx, usecase.WalletContext{Env: fakeEnv{}})
		assert.ErrorIs(t, err, domain.ErrWalletNotFound)
		assert.Equal(t, "MetaMask not found. Please install MetaMask extension.", err.Error())
	})

	t.Run("no accounts", func(t *testing.T) {
		provider := new(MockInjectedProvider)
		provider.On("RequestAccounts", ctx).Return([]string{}, nil)

		_, err := c.ConnectMetaMask(ctx, usecase.WalletContext{Env: fakeEnv{injected: true}, Provider: provider})
		assert.ErrorIs(t, err, domain.ErrNoAccounts)
	})

	t.Run("connects and lowercases address", func(t *testing.T) {
		provider := new(MockInjectedProvider)
		provider.On("RequestAccounts", ctx).Return([]string{"0xABCDEF0000000000000000000000000000000001"}, nil)
		provider.On("ChainID", ctx).Return(uint64(42220), nil)

		wallet, err := c.ConnectMetaMask(ctx, usecase.WalletContext{Env: fakeEnv{injected: true}, Provider: provider})
		require.NoError(t, err)
		assert.Equal(t, "0xabcdef0000000000000000000000000000000001", wallet.Address)
		assert.Equal(t, uint64(42220), wallet.ChainID)
		assert.Equal(t, models.WalletEOA, wallet.Type)
		provider.AssertExpectations(t)
	})
}

func TestWalletConnector_ConnectSafe(t *testing.T) {
	ctx := context.Background()
	info := &models.SafeAppInfo{
		SafeAddress: "0xSAFE000000000000000000000000000000000001",
		ChainID:     42220,
		Owners:      []string{"0x01", "0x02", "0x03"},
		Threshold:   2,
	}

	t.Run("not embedded fails immediately", func(t *testing.T) {
		metrics := &handshakeCounter{}
		bridge := &scriptedBridge{steps: []func(context.Context) (*models.SafeAppInfo, error){hang}}

		_, err := fastConnector(metrics).ConnectSafe(ctx, usecase.WalletContext{Env: fakeEnv{}, Bridge: bridge})
		assert.ErrorIs(t, err, domain.ErrNotInSafeContext)
		assert.Equal(t, int32(1), atomic.LoadInt32(&bridge.calls))
		assert.Equal(t, []string{"timed_out"}, metrics.outcomes)
	})

	t.Run("embedded succeeds after first timeout", func(t *testing.T) {
		metrics := &handshakeCounter{}
		bridge := &scriptedBridge{steps: []func(context.Context) (*models.SafeAppInfo, error){hang, answer(info)}}

		wallet, err := fastConnector(metrics).ConnectSafe(ctx, usecase.WalletContext{Env: fakeEnv{embedded: true}, Bridge: bridge})
		require.NoError(t, err)
		assert.Equal(t, "0xsafe000000000000000000000000000000000001", wallet.Address)
		assert.Equal(t, models.WalletSafe, wallet.Type)
		assert.Equal(t, 2, wallet.Threshold)
		assert.Len(t, wallet.Owners, 3)
		assert.Equal(t, []string{"timed_out", "connected"}, metrics.outcomes)
	})

	t.Run("embedded exhausts retries", func(t *testing.T) {
		metrics := &handshakeCounter{}
		bridge := &scriptedBridge{steps: []func(context.Context) (*models.SafeAppInfo, error){hang}}

		_, err := fastConnector(metrics).ConnectSafe(ctx, usecase.WalletContext{Env: fakeEnv{embedded: true}, Bridge: bridge})
		assert.ErrorIs(t, err, domain.ErrSafeTimeout)
		assert.Equal(t, int32(3), atomic.LoadInt32(&bridge.calls))
		assert.Len(t, metrics.outcomes, 3)
		assert.True(t, domain.IsRetryable(err))
	})

	t.Run("embedded treats bridge errors as retryable", func(t *testing.T) {
		bridge := &scriptedBridge{steps: []func(context.Context) (*models.SafeAppInfo, error){
			func(context.Context) (*models.SafeAppInfo, error) { return nil, errors.New("channel not ready") },
			answer(info),
		}}

		wallet, err := fastConnector(usecase.NopMetrics{}).ConnectSafe(ctx, usecase.WalletContext{Env: fakeEnv{embedded: true}, Bridge: bridge})
		require.NoError(t, err)
		assert.Equal(t, uint64(42220), wallet.ChainID)
	})

	t.Run("cancelled during warm-up", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		c := fastConnector(usecase.NopMetrics{})
		c.WarmUp = time.Second
		bridge := &scriptedBridge{steps: []func(context.Context) (*models.SafeAppInfo, error){answer(info)}}

		_, err := c.ConnectSafe(cctx, usecase.WalletContext{Env: fakeEnv{embedded: true}, Bridge: bridge})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, int32(0), atomic.LoadInt32(&bridge.calls))
	})
}

func TestWalletConnector_PaymentOptions(t *testing.T) {
	c := fastConnector(usecase.NopMetrics{})

	readOnly := &models.ConnectedWallet{Address: "0xsafe", Type: models.WalletSafe, IsReadOnly: true}
	got := c.PaymentOptions(readOnly)
	assert.False(t, got.CanPay)
	assert.NotEmpty(t, got.Reason)

	signer := &models.ConnectedWallet{Address: "0xeoa", Type: models.WalletEOA}
	assert.True(t, c.PaymentOptions(signer).CanPay)
	assert.False(t, c.PaymentOptions(nil).CanPay)
}
