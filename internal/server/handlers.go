package server

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/safepay-org/safepay/internal/domain"
	"github.com/safepay-org/safepay/internal/domain/models"
	"github.com/safepay-org/safepay/internal/usecase"
)

// chainRef accepts a chain as a JSON number or string
type chainRef string

func (r *chainRef) UnmarshalJSON(b []byte) error {
	var n json.Number
	if err := json.Unmarshal(b, &n); err == nil {
		*r = chainRef(n.String())
		return nil
	}
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return fmt.Errorf("chainId must be a number or string")
	}
	*r = chainRef(str)
	return nil
}

type importSafeRequest struct {
	OrganizationID string   `json:"organizationId"`
	SafeAddress    string   `json:"safeAddress"`
	ChainID        chainRef `json:"chainId"`
	Name           string   `json:"name"`
}

type scopeRequest struct {
	OrganizationID string `json:"organizationId"`
}

type payWithHashRequest struct {
	OrganizationID string `json:"organizationId"`
	TxHash         string `json:"txHash"`
	FromAddress    string `json:"fromAddress"`
	ChainID        uint64 `json:"chainId"`
}

type paymentRequest struct {
	OrganizationID string                  `json:"organizationId"`
	Wallet         *models.ConnectedWallet `json:"wallet"`
	Documents      []models.DocumentRef    `json:"documents"`
}

// paymentResponse is the synchronous view of a submitted payment
type paymentResponse struct {
	Kind         models.SettlementKind `json:"kind"`
	State        models.PaymentState   `json:"state,omitempty"`
	SettlementID string                `json:"settlementId,omitempty"`
	TxHash       string                `json:"txHash,omitempty"`
	SafeTxHash   string                `json:"safeTxHash,omitempty"`
	ExplorerURL  string                `json:"explorerUrl,omitempty"`
	Amount       string                `json:"amount,omitempty"`
	Records      []recordResponse      `json:"records,omitempty"`
	Settlement   *models.Settlement    `json:"settlement,omitempty"`
}

type recordResponse struct {
	Kind         models.DocumentKind   `json:"kind"`
	ID           string                `json:"id"`
	Status       models.DocumentStatus `json:"status"`
	AlreadyPaid  bool                  `json:"alreadyPaid"`
	LedgerSynced bool                  `json:"ledgerSynced"`
}

// bindJSON decodes an optional JSON body. An empty body leaves v untouched.
func bindJSON(c *gin.Context, v any) error {
	if c.Request.ContentLength == 0 {
		return nil
	}
	if err := c.ShouldBindJSON(v); err != nil {
		return domain.NewValidationError("body", "Invalid request format")
	}
	return nil
}

func explicitOrg(c *gin.Context, body string) string {
	if body != "" {
		return body
	}
	return c.Query("organizationId")
}

func (s *Server) handleImportSafe(c *gin.Context) {
	var req importSafeRequest
	if err := bindJSON(c, &req); err != nil {
		fail(c, s.log, err)
		return
	}
	result, err := s.deps.ImportSafe.Run(c.Request.Context(), usecase.ImportSafeParams{
		Session:        sessionFrom(c),
		OrganizationID: req.OrganizationID,
		SafeAddress:    req.SafeAddress,
		ChainID:        string(req.ChainID),
		Name:           req.Name,
	})
	if err != nil {
		fail(c, s.log, err)
		return
	}
	if result.AlreadyConnected {
		okWithNotice(c, result.PaymentMethod, result.Message)
		return
	}
	ok(c, result.PaymentMethod)
}

func (s *Server) handleListSafes(c *gin.Context) {
	result, err := s.deps.ManageSafes.List(c.Request.Context(), usecase.ListSafeWalletsParams{
		Session:        sessionFrom(c),
		OrganizationID: c.Query("organizationId"),
	})
	if err != nil {
		fail(c, s.log, err)
		return
	}
	wallets := result.Wallets
	if wallets == nil {
		wallets = []models.SafeWalletSummary{}
	}
	ok(c, wallets)
}

func (s *Server) scopeParams(c *gin.Context) (usecase.SafeScopeParams, error) {
	var req scopeRequest
	if err := bindJSON(c, &req); err != nil {
		return usecase.SafeScopeParams{}, err
	}
	return usecase.SafeScopeParams{
		Session:         sessionFrom(c),
		OrganizationID:  explicitOrg(c, req.OrganizationID),
		PaymentMethodID: c.Param("id"),
	}, nil
}

func (s *Server) handleDisconnectSafe(c *gin.Context) {
	params, err := s.scopeParams(c)
	if err != nil {
		fail(c, s.log, err)
		return
	}
	pm, err := s.deps.ManageSafes.Disconnect(c.Request.Context(), params)
	if err != nil {
		fail(c, s.log, err)
		return
	}
	ok(c, pm)
}

func (s *Server) handleAuthorizeSafe(c *gin.Context) {
	params, err := s.scopeParams(c)
	if err != nil {
		fail(c, s.log, err)
		return
	}
	pm, err := s.deps.ManageSafes.Authorize(c.Request.Context(), params)
	if err != nil {
		fail(c, s.log, err)
		return
	}
	ok(c, pm)
}

func (s *Server) handleRefreshSafe(c *gin.Context) {
	params, err := s.scopeParams(c)
	if err != nil {
		fail(c, s.log, err)
		return
	}
	result, err := s.deps.ManageSafes.Refresh(c.Request.Context(), params)
	if err != nil {
		fail(c, s.log, err)
		return
	}
	ok(c, gin.H{"paymentMethod": result.PaymentMethod, "drift": result.Drift, "changed": result.Drift.Any()})
}

func (s *Server) handleDetectWallets(c *gin.Context) {
	ok(c, s.deps.Connector.Detect(s.walletContext(c)))
}

func (s *Server) handleConnectEOA(c *gin.Context) {
	connected, err := s.deps.Connector.ConnectMetaMask(c.Request.Context(), s.walletContext(c))
	if err != nil {
		fail(c, s.log, err)
		return
	}
	ok(c, gin.H{"wallet": connected, "paymentOptions": paymentOptions(s.deps.Connector.PaymentOptions(connected))})
}

// handleConnectSafe runs the Safe App handshake and imports the reported Safe
func (s *Server) handleConnectSafe(c *gin.Context) {
	var req scopeRequest
	if err := bindJSON(c, &req); err != nil {
		fail(c, s.log, err)
		return
	}
	ctx := c.Request.Context()
	connected, err := s.deps.Connector.ConnectSafe(ctx, s.walletContext(c))
	if err != nil {
		fail(c, s.log, err)
		return
	}

	imported, err := s.deps.ImportSafe.ConnectSafeWallet(ctx, usecase.ImportSafeParams{
		Session:        sessionFrom(c),
		OrganizationID: req.OrganizationID,
		SafeAddress:    connected.Address,
		ChainID:        strconv.FormatUint(connected.ChainID, 10),
	})
	if err != nil {
		fail(c, s.log, err)
		return
	}
	data := gin.H{
		"wallet":         connected,
		"paymentMethod":  imported.PaymentMethod,
		"paymentOptions": paymentOptions(s.deps.Connector.PaymentOptions(connected)),
	}
	if imported.AlreadyConnected {
		okWithNotice(c, data, imported.Message)
		return
	}
	ok(c, data)
}

func paymentOptions(p usecase.PaymentOptionsResult) gin.H {
	return gin.H{"canPay": p.CanPay, "reason": p.Reason}
}

func (s *Server) handlePayWithHash(kind models.DocumentKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req payWithHashRequest
		if err := bindJSON(c, &req); err != nil {
			fail(c, s.log, err)
			return
		}
		result, err := s.deps.Recorder.PayWithHash(c.Request.Context(), usecase.RecordPaymentParams{
			Session:        sessionFrom(c),
			OrganizationID: req.OrganizationID,
			Ref:            models.DocumentRef{Kind: kind, ID: c.Param("id")},
			TxHash:         req.TxHash,
			FromAddress:    req.FromAddress,
			ChainID:        req.ChainID,
		})
		if err != nil {
			fail(c, s.log, err)
			return
		}
		data := recordData(result)
		if result.AlreadyPaid {
			okWithNotice(c, data, "already paid")
			return
		}
		okWithNotice(c, data, result.Notice)
	}
}

func recordData(r *usecase.RecordPaymentResult) recordResponse {
	return recordResponse{
		Kind:         r.Ref.Kind,
		ID:           r.Ref.ID,
		Status:       r.Status,
		AlreadyPaid:  r.AlreadyPaid,
		LedgerSynced: r.LedgerSynced,
	}
}

type paymentMode int

const (
	paymentEOA paymentMode = iota
	paymentSafe
	paymentBatch
)

func (s *Server) handlePayment(mode paymentMode) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req paymentRequest
		if err := bindJSON(c, &req); err != nil {
			fail(c, s.log, err)
			return
		}
		ctx := c.Request.Context()
		params := usecase.PayParams{
			Session:        sessionFrom(c),
			OrganizationID: req.OrganizationID,
			Wallet:         normalizeWallet(req.Wallet),
			Refs:           req.Documents,
		}

		var result *usecase.PaymentResult
		var err error
		switch mode {
		case paymentEOA:
			result, err = s.deps.Payments.PayWithEOA(ctx, params)
		case paymentSafe:
			result, err = s.deps.Payments.ProposeWithSafe(ctx, params)
		case paymentBatch:
			result, err = s.deps.Payments.CreateBatchPayment(ctx, usecase.BatchPaymentParams(params))
		}
		if err != nil {
			fail(c, s.log, err)
			return
		}
		ok(c, paymentData(result))
	}
}

func normalizeWallet(w *models.ConnectedWallet) *models.ConnectedWallet {
	if w == nil {
		return nil
	}
	out := *w
	out.Address = strings.ToLower(strings.TrimSpace(out.Address))
	if out.Type == "" {
		out.Type = models.WalletEOA
	}
	return &out
}

func paymentData(r *usecase.PaymentResult) paymentResponse {
	resp := paymentResponse{
		Kind:        r.Kind,
		TxHash:      r.TxHash,
		SafeTxHash:  r.SafeTxHash,
		ExplorerURL: r.ExplorerURL,
		Settlement:  r.Settlement,
	}
	if r.Flow != nil {
		resp.State = r.Flow.State
	}
	if r.Settlement != nil {
		resp.SettlementID = r.Settlement.ID
	}
	if r.Intent != nil {
		resp.Amount = r.Intent.Amount.String()
	}
	for _, rec := range r.Records {
		if rec != nil {
			resp.Records = append(resp.Records, recordData(rec))
		}
	}
	return resp
}

func (s *Server) handleGetSettlement(c *gin.Context) {
	session := sessionFrom(c)
	scope, err := models.ResolveOwnerScope(session, c.Query("organizationId"))
	if err != nil {
		fail(c, s.log, err)
		return
	}
	st, err := s.deps.Settlements.GetSettlement(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, s.log, err)
		return
	}
	if !scope.Matches(st.Scope.OrganizationID(), st.Scope.UserID, st.Scope.Email) {
		fail(c, s.log, fmt.Errorf("settlement %s: %w", st.ID, domain.ErrNotFound))
		return
	}
	ok(c, st)
}
