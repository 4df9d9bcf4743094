package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/safepay-org/safepay/internal/domain"
	"github.com/safepay-org/safepay/internal/domain/config"
	"github.com/safepay-org/safepay/internal/domain/models"
	"github.com/safepay-org/safepay/internal/retry"
)

// Safe handshake defaults
const (
	DefaultHandshakeWarmUp   = time.Second
	DefaultHandshakeTimeout  = 5 * time.Second
	DefaultHandshakeAttempts = 3
	DefaultHandshakeDelay    = time.Second
)

// WalletConnector detects wallets and establishes EOA or Safe connections
type WalletConnector struct {
	WarmUp   time.Duration
	Timeout  time.Duration
	Attempts int
	Delay    time.Duration

	metrics Metrics
	log     *slog.Logger
}

// NewWalletConnector creates a connector using the configured handshake bounds
func NewWalletConnector(cfg *config.RuntimeConfig, metrics Metrics, log *slog.Logger) *WalletConnector {
	c := &WalletConnector{
		WarmUp:   DefaultHandshakeWarmUp,
		Timeout:  DefaultHandshakeTimeout,
		Attempts: DefaultHandshakeAttempts,
		Delay:    DefaultHandshakeDelay,
		metrics:  metrics,
		log:      log.With("component", "wallet"),
	}
	if cfg != nil {
		if cfg.Handshake.WarmUp > 0 {
			c.WarmUp = cfg.Handshake.WarmUp
		}
		if cfg.Handshake.Timeout > 0 {
			c.Timeout = cfg.Handshake.Timeout
		}
		if cfg.Handshake.Attempts > 0 {
			c.Attempts = cfg.Handshake.Attempts
		}
		if cfg.Handshake.Delay > 0 {
			c.Delay = cfg.Handshake.Delay
		}
	}
	return c
}

// Detect probes the environment without side effects
func (c *WalletConnector) Detect(w WalletContext) models.AvailableWallets {
	available := models.AvailableWallets{}
	if w.Env == nil {
		return available
	}
	available.HasSafe = w.Env.IsEmbedded()
	available.HasMetaMask = w.Env.HasInjectedProvider() && w.Provider != nil
	return available
}

// ConnectMetaMask connects the injected EOA provider
func (c *WalletConnector) ConnectMetaMask(ctx context.Context, w WalletContext) (*models.ConnectedWallet, error) {
	if w.Env == nil || !w.Env.HasInjectedProvider() || w.Provider == nil {
		return nil, domain.ErrWalletNotFound
	}

	accounts, err := w.Provider.RequestAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to request accounts: %w", err)
	}
	if len(accounts) == 0 || accounts[0] == "" {
		return nil, domain.ErrNoAccounts
	}

	chainID, err := w.Provider.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read wallet chain: %w", err)
	}

	return &models.ConnectedWallet{
		Address: strings.ToLower(accounts[0]),
		ChainID: chainID,
		Type:    models.WalletEOA,
	}, nil
}

// ConnectSafe performs the Safe App handshake.
// Outside the Safe interface one attempt is made and failure is reported as certain.
// Inside it the first probe waits for WarmUp and failure is only reported once all attempts time out.
func (c *WalletConnector) ConnectSafe(ctx context.Context, w WalletContext) (*models.ConnectedWallet, error) {
	if w.Bridge == nil {
		return nil, domain.ErrNotInSafeContext
	}

	embedded := w.Env != nil && w.Env.IsEmbedded()
	if !embedded {
		info, err := c.handshakeOnce(ctx, w.Bridge)
		if err != nil {
			c.log.Debug("safe handshake outside safe context failed", "error", err)
			return nil, domain.ErrNotInSafeContext
		}
		return safeWallet(info), nil
	}

	if c.WarmUp > 0 {
		timer := time.NewTimer(c.WarmUp)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	out := retry.WithBackoff(ctx, func(ctx context.Context) (*models.SafeAppInfo, error) {
		return w.Bridge.Handshake(ctx)
	}, retry.Options{
		MaxAttempts:       c.Attempts,
		TimeoutPerAttempt: c.Timeout,
		Delay:             c.Delay,
		OnAttempt: func(attempt int, status retry.Status, err error) {
			c.metrics.IncHandshakeAttempt(string(status))
			if err != nil {
				c.log.Debug("safe handshake attempt failed", "attempt", attempt, "status", status, "error", err)
			}
		},
	})
	if !out.OK() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		c.log.Warn("safe handshake exhausted", "attempts", out.Attempts, "status", out.Status, "error", out.Err)
		return nil, domain.ErrSafeTimeout
	}
	if out.Value == nil {
		return nil, domain.ErrSafeTimeout
	}
	return safeWallet(out.Value), nil
}

// PaymentOptions reports whether the connected wallet may initiate payments
func (c *WalletConnector) PaymentOptions(wallet *models.ConnectedWallet) PaymentOptionsResult {
	if wallet == nil {
		return PaymentOptionsResult{Reason: "no wallet connected"}
	}
	if !wallet.CanPay() {
		return PaymentOptionsResult{Wallet: wallet, Reason: domain.ErrSafeReadOnly.Error()}
	}
	return PaymentOptionsResult{Wallet: wallet, CanPay: true}
}

// PaymentOptionsResult tells the caller whether to enable the pay action
type PaymentOptionsResult struct {
	Wallet *models.ConnectedWallet
	CanPay bool
	Reason string
}

func (c *WalletConnector) handshakeOnce(ctx context.Context, bridge SafeAppBridge) (*models.SafeAppInfo, error) {
	out := retry.WithBackoff(ctx, bridge.Handshake, retry.Options{
		MaxAttempts:       1,
		TimeoutPerAttempt: c.Timeout,
	})
	c.metrics.IncHandshakeAttempt(string(out.Status))
	if !out.OK() {
		return nil, out.Err
	}
	if out.Value == nil {
		return nil, domain.ErrNotInSafeContext
	}
	return out.Value, nil
}

func safeWallet(info *models.SafeAppInfo) *models.ConnectedWallet {
	return &models.ConnectedWallet{
		Address:    strings.ToLower(info.SafeAddress),
		ChainID:    info.ChainID,
		Type:       models.WalletSafe,
		Threshold:  info.Threshold,
		Owners:     info.Owners,
		IsReadOnly: info.IsReadOnly,
	}
}
