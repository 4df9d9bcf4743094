package wallet

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/samber/lo"

	"github.com/safepay-org/safepay/internal/domain"
	"github.com/safepay-org/safepay/internal/domain/models"
	"github.com/safepay-org/safepay/internal/usecase"
)

// SafeBridge completes the Safe App handshake by resolving the claimed Safe
// against the Transaction Service and, when available, the chain.
type SafeBridge struct {
	claims  Claims
	service usecase.SafeService
	reader  usecase.ChainReader
}

// NewSafeBridge creates a bridge for claims. reader may be nil.
func NewSafeBridge(claims Claims, service usecase.SafeService, reader usecase.ChainReader) *SafeBridge {
	return &SafeBridge{claims: claims, service: service, reader: reader}
}

// Handshake returns the live Safe state for the claimed address
func (b *SafeBridge) Handshake(ctx context.Context) (*models.SafeAppInfo, error) {
	if !common.IsHexAddress(b.claims.SafeAddress) {
		return nil, domain.ErrNotInSafeContext
	}
	if b.claims.ChainID == 0 {
		return nil, fmt.Errorf("%w: chain id header missing", domain.ErrNotInSafeContext)
	}

	info, err := b.service.GetSafeInfo(ctx, b.claims.ChainID, b.claims.SafeAddress)
	if err != nil && b.reader == nil {
		return nil, err
	}
	if b.reader != nil {
		onchain, rerr := b.reader.ReadSafe(ctx, b.claims.ChainID, b.claims.SafeAddress)
		switch {
		case rerr == nil:
			info = onchain
		case err != nil:
			return nil, err
		}
	}

	owners := lo.Map(info.Owners, func(o string, _ int) string { return strings.ToLower(o) })
	readOnly := b.claims.ReadOnly
	if b.claims.WalletAddress != "" && !lo.Contains(owners, b.claims.WalletAddress) {
		readOnly = true
	}

	return &models.SafeAppInfo{
		SafeAddress: strings.ToLower(b.claims.SafeAddress),
		ChainID:     b.claims.ChainID,
		Owners:      owners,
		Threshold:   info.Threshold,
		IsReadOnly:  readOnly,
	}, nil
}

var _ usecase.SafeAppBridge = (*SafeBridge)(nil)
