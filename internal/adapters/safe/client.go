package safe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/safepay-org/safepay/internal/domain"
	"github.com/safepay-org/safepay/internal/domain/config"
	"github.com/safepay-org/safepay/internal/domain/models"
	"github.com/safepay-org/safepay/internal/usecase"
)

// DefaultHTTPTimeout bounds every Transaction Service request
const DefaultHTTPTimeout = 30 * time.Second

// flexUint accepts a JSON number or a decimal string
type flexUint uint64

func (f *flexUint) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid integer %s: %w", b, err)
	}
	*f = flexUint(n)
	return nil
}

// safeResponse is the Transaction Service view of a Safe
type safeResponse struct {
	Address   string   `json:"address"`
	Nonce     flexUint `json:"nonce"`
	Threshold int      `json:"threshold"`
	Owners    []string `json:"owners"`
	Modules   []string `json:"modules"`
	Version   string   `json:"version"`
}

// MultisigTransaction represents a Safe multisig transaction
type MultisigTransaction struct {
	Safe                  string         `json:"safe"`
	To                    string         `json:"to"`
	Value                 string         `json:"value"`
	Data                  *string        `json:"data"`
	Operation             int            `json:"operation"`
	Nonce                 flexUint       `json:"nonce"`
	ExecutionDate         *time.Time     `json:"executionDate"`
	SubmissionDate        time.Time      `json:"submissionDate"`
	BlockNumber           *int64         `json:"blockNumber"`
	TransactionHash       *string        `json:"transactionHash"`
	SafeTxHash            string         `json:"safeTxHash"`
	IsExecuted            bool           `json:"isExecuted"`
	IsSuccessful          *bool          `json:"isSuccessful"`
	ConfirmationsRequired int            `json:"confirmationsRequired"`
	Confirmations         []Confirmation `json:"confirmations"`
}

// Confirmation represents a transaction confirmation
type Confirmation struct {
	Owner          string    `json:"owner"`
	SubmissionDate time.Time `json:"submissionDate"`
	Signature      string    `json:"signature"`
	SignatureType  string    `json:"signatureType"`
}

// proposeRequest is the body of a multisig-transactions POST
type proposeRequest struct {
	To                      string `json:"to"`
	Value                   string `json:"value"`
	Data                    string `json:"data,omitempty"`
	Operation               int    `json:"operation"`
	SafeTxGas               string `json:"safeTxGas"`
	BaseGas                 string `json:"baseGas"`
	GasPrice                string `json:"gasPrice"`
	GasToken                string `json:"gasToken"`
	RefundReceiver          string `json:"refundReceiver"`
	Nonce                   uint64 `json:"nonce"`
	ContractTransactionHash string `json:"contractTransactionHash"`
	Sender                  string `json:"sender"`
	Signature               string `json:"signature"`
	Origin                  string `json:"origin,omitempty"`
}

// Client talks to the Safe Transaction Service of each chain in the registry
type Client struct {
	registry   usecase.ChainRegistry
	httpClient *http.Client
	apiKey     string
	log        *slog.Logger
}

// NewClient creates a new Safe Transaction Service client
func NewClient(cfg *config.RuntimeConfig, registry usecase.ChainRegistry, log *slog.Logger) *Client {
	timeout := DefaultHTTPTimeout
	var apiKey string
	if cfg != nil {
		if cfg.Safe.HTTPTimeout > 0 {
			timeout = cfg.Safe.HTTPTimeout
		}
		apiKey = cfg.Safe.APIKey
	}
	return &Client{
		registry:   registry,
		httpClient: &http.Client{Timeout: timeout},
		apiKey:     apiKey,
		log:        log.With("component", "safe_service"),
	}
}

func (c *Client) baseURL(chainID uint64) (string, error) {
	chain, ok := c.registry.ChainByNumericID(chainID)
	if !ok {
		return "", fmt.Errorf("%w: %d", domain.ErrChainNotFound, chainID)
	}
	if chain.SafeServiceURL == "" {
		return "", fmt.Errorf("no Safe Transaction Service configured for chain %d", chainID)
	}
	return strings.TrimRight(chain.SafeServiceURL, "/"), nil
}

// GetSafeInfo reads the Safe's owners, threshold and nonce
func (c *Client) GetSafeInfo(ctx context.Context, chainID uint64, address string) (*models.SafeInfo, error) {
	base, err := c.baseURL(chainID)
	if err != nil {
		return nil, err
	}
	url := fmt.Sprintf("%s/api/v1/safes/%s/", base, common.HexToAddress(address).Hex())

	var resp safeResponse
	if err := c.do(ctx, http.MethodGet, url, nil, &resp); err != nil {
		return nil, fmt.Errorf("safe %s: %w", address, err)
	}
	return &models.SafeInfo{
		Address:   strings.ToLower(resp.Address),
		ChainID:   chainID,
		Owners:    lowerAll(resp.Owners),
		Threshold: resp.Threshold,
		Nonce:     uint64(resp.Nonce),
		Version:   resp.Version,
		Modules:   resp.Modules,
	}, nil
}

// ProposeTransaction submits a signed proposal. Nonce conflicts map to ErrNonceConflict.
func (c *Client) ProposeTransaction(ctx context.Context, proposal *models.SafeProposal) error {
	base, err := c.baseURL(proposal.ChainID)
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/api/v1/safes/%s/multisig-transactions/", base, common.HexToAddress(proposal.SafeAddress).Hex())

	zero := common.Address{}.Hex()
	body := proposeRequest{
		To:                      common.HexToAddress(proposal.To).Hex(),
		Value:                   valueOrZero(proposal.Value),
		Data:                    proposal.Data,
		Operation:               int(proposal.Operation),
		SafeTxGas:               "0",
		BaseGas:                 "0",
		GasPrice:                "0",
		GasToken:                zero,
		RefundReceiver:          zero,
		Nonce:                   proposal.Nonce,
		ContractTransactionHash: proposal.SafeTxHash,
		Sender:                  common.HexToAddress(proposal.Sender).Hex(),
		Signature:               proposal.Signature,
		Origin:                  "safepay",
	}
	if err := c.do(ctx, http.MethodPost, url, body, nil); err != nil {
		return fmt.Errorf("propose %s: %w", proposal.SafeTxHash, err)
	}
	c.log.Debug("proposal accepted", "safe", proposal.SafeAddress, "safe_tx_hash", proposal.SafeTxHash, "nonce", proposal.Nonce)
	return nil
}

// GetExecutionInfo reports confirmations and execution state of a proposal
func (c *Client) GetExecutionInfo(ctx context.Context, chainID uint64, safeTxHash string) (*models.SafeExecutionInfo, error) {
	tx, err := c.GetTransaction(ctx, chainID, safeTxHash)
	if err != nil {
		return nil, err
	}

	info := &models.SafeExecutionInfo{
		SafeTxHash:            strings.ToLower(tx.SafeTxHash),
		Nonce:                 uint64(tx.Nonce),
		IsExecuted:            tx.IsExecuted,
		IsSuccessful:          tx.IsSuccessful,
		Confirmations:         len(tx.Confirmations),
		ConfirmationsRequired: tx.ConfirmationsRequired,
		ExecutedAt:            tx.ExecutionDate,
	}
	if tx.IsExecuted && tx.TransactionHash != nil {
		info.TxHash = strings.ToLower(*tx.TransactionHash)
	}
	for _, conf := range tx.Confirmations {
		submitted := conf.SubmissionDate
		info.ConfirmationDetails = append(info.ConfirmationDetails, models.Confirmation{
			Signer:      strings.ToLower(conf.Owner),
			Signature:   conf.Signature,
			ConfirmedAt: &submitted,
		})
	}
	return info, nil
}

// GetTransaction retrieves a transaction by its Safe transaction hash
func (c *Client) GetTransaction(ctx context.Context, chainID uint64, safeTxHash string) (*MultisigTransaction, error) {
	base, err := c.baseURL(chainID)
	if err != nil {
		return nil, err
	}
	url := fmt.Sprintf("%s/api/v1/multisig-transactions/%s/", base, common.HexToHash(safeTxHash).Hex())

	var tx MultisigTransaction
	if err := c.do(ctx, http.MethodGet, url, nil, &tx); err != nil {
		return nil, fmt.Errorf("safe transaction %s: %w", safeTxHash, err)
	}
	return &tx, nil
}

func (c *Client) do(ctx context.Context, method, url string, in, out any) error {
	var reqBody io.Reader
	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	c.log.Debug("safe service request", "method", method, "url", url)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.NewTransientError("safe service", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.NewTransientError("safe service", fmt.Errorf("failed to read response body: %w", err))
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return domain.ErrNotFound
	case resp.StatusCode == http.StatusConflict:
		return fmt.Errorf("%w: %s", domain.ErrNonceConflict, strings.TrimSpace(string(body)))
	case resp.StatusCode == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(string(body)), "nonce"):
		return fmt.Errorf("%w: %s", domain.ErrNonceConflict, strings.TrimSpace(string(body)))
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return domain.NewTransientError("safe service", fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	case resp.StatusCode >= 300:
		return fmt.Errorf("API error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func valueOrZero(v string) string {
	if v == "" {
		return "0"
	}
	return v
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}

var _ usecase.SafeService = (*Client)(nil)
