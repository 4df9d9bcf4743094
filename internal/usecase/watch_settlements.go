package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/safepay-org/safepay/internal/domain"
	"github.com/safepay-org/safepay/internal/domain/config"
	"github.com/safepay-org/safepay/internal/domain/models"
)

// Watcher defaults
const (
	DefaultWatchInterval  = 15 * time.Second
	DefaultWatchBatchSize = 50
)

// WatchSummary counts what one watcher pass changed
type WatchSummary struct {
	Checked   int
	Signed    int
	Executed  int
	Confirmed int
	Failed    int
	Errors    int
}

// SettlementWatcher polls open settlements and advances them from Safe execution state
// and transaction receipts. Execution is the only path that marks Safe-paid documents paid.
type SettlementWatcher struct {
	Interval  time.Duration
	BatchSize int

	settlements SettlementRepository
	service     SafeService
	reader      ChainReader
	recorder    *RecordPayment
	progress    ProgressSink
	log         *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSettlementWatcher creates a watcher. reader may be nil, in which case executed
// settlements are never promoted to confirmed.
func NewSettlementWatcher(
	cfg *config.RuntimeConfig,
	settlements SettlementRepository,
	service SafeService,
	reader ChainReader,
	recorder *RecordPayment,
	progress ProgressSink,
	log *slog.Logger,
) *SettlementWatcher {
	w := &SettlementWatcher{
		Interval:    DefaultWatchInterval,
		BatchSize:   DefaultWatchBatchSize,
		settlements: settlements,
		service:     service,
		reader:      reader,
		recorder:    recorder,
		progress:    progress,
		log:         log.With("component", "watcher"),
	}
	if cfg != nil {
		if cfg.Watcher.Interval > 0 {
			w.Interval = cfg.Watcher.Interval
		}
		if cfg.Watcher.BatchSize > 0 {
			w.BatchSize = cfg.Watcher.BatchSize
		}
	}
	return w
}

// Start runs Tick on every interval until ctx is cancelled or Stop is called
func (w *SettlementWatcher) Start(ctx context.Context) {
	w.mu.Lock()
	if w.cancel != nil {
		w.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	done := w.done
	w.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(w.Interval)
		defer ticker.Stop()

		w.log.Info("settlement watcher started", "interval", w.Interval)
		for {
			if _, err := w.Tick(ctx); err != nil && ctx.Err() == nil {
				w.log.Error("watcher pass failed", "error", err)
			}
			select {
			case <-ctx.Done():
				w.log.Info("settlement watcher stopped")
				return
			case <-ticker.C:
			}
		}
	}()
}

// Stop cancels the loop and waits for the current pass to finish
func (w *SettlementWatcher) Stop() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel, w.done = nil, nil
	w.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Tick performs one pass over every open settlement, BatchSize at a time
func (w *SettlementWatcher) Tick(ctx context.Context) (*WatchSummary, error) {
	filter := models.SettlementFilter{
		Statuses: []models.SettlementStatus{models.SettlementProposed, models.SettlementSigned, models.SettlementExecuted},
		Limit:    w.BatchSize,
	}
	summary := &WatchSummary{}
	for {
		page, err := w.settlements.ListSettlements(ctx, filter)
		if err != nil {
			return summary, fmt.Errorf("failed to list open settlements: %w", err)
		}
		for _, s := range page {
			if ctx.Err() != nil {
				return summary, ctx.Err()
			}
			w.advance(ctx, s, summary)
		}
		if len(page) == 0 || filter.Limit <= 0 || len(page) < filter.Limit {
			return summary, nil
		}
		filter.After = models.CursorOf(page[len(page)-1])
	}
}

func (w *SettlementWatcher) advance(ctx context.Context, s *models.Settlement, summary *WatchSummary) {
	summary.Checked++
	w.progress.OnProgress(ctx, ProgressEvent{Stage: StageWatching, Current: summary.Checked, Message: s.ID})

	var next models.SettlementStatus
	var err error
	switch {
	case s.Kind == models.SettlementSafe && s.Status != models.SettlementExecuted:
		next, err = w.checkProposal(ctx, s)
	case s.Status == models.SettlementExecuted:
		next, err = w.checkReceipt(ctx, s)
	}
	if err != nil {
		summary.Errors++
		w.log.Warn("failed to advance settlement", "settlement_id", s.ID, "status", s.Status, "error", err)
		return
	}
	switch next {
	case models.SettlementSigned:
		summary.Signed++
	case models.SettlementExecuted:
		summary.Executed++
	case models.SettlementConfirmed:
		summary.Confirmed++
	case models.SettlementFailed:
		summary.Failed++
	}
}

// checkProposal reads the Safe Transaction Service state of a proposal
func (w *SettlementWatcher) checkProposal(ctx context.Context, s *models.Settlement) (models.SettlementStatus, error) {
	info, err := w.service.GetExecutionInfo(ctx, s.ChainID, s.SafeTxHash)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			w.log.Debug("proposal not indexed yet", "safe_tx_hash", s.SafeTxHash)
			return "", nil
		}
		return "", err
	}

	expected := s.Status
	updated := *s
	updated.Confirmations = info.Confirmations
	if info.ConfirmationsRequired > 0 {
		updated.ConfirmationsRequired = info.ConfirmationsRequired
	}

	switch {
	case info.IsExecuted && info.IsSuccessful != nil && !*info.IsSuccessful:
		updated.Status = models.SettlementFailed
		updated.TxHash = strings.ToLower(info.TxHash)
		updated.FailureReason = "safe transaction reverted"
	case info.IsExecuted:
		if info.TxHash == "" {
			return "", nil
		}
		updated.Status = models.SettlementExecuted
		updated.TxHash = strings.ToLower(info.TxHash)
		updated.ExecutedAt = info.ExecutedAt
		if updated.ExecutedAt == nil {
			now := time.Now().UTC()
			updated.ExecutedAt = &now
		}
	case updated.ConfirmationsRequired > 0 && info.Confirmations >= updated.ConfirmationsRequired:
		updated.Status = models.SettlementSigned
	}

	if updated.Status == expected && updated.Confirmations == s.Confirmations {
		return "", nil
	}
	if !updated.Status.Valid() || (updated.Status != expected && !expected.CanTransitionTo(updated.Status)) {
		return "", fmt.Errorf("%w: settlement %s -> %s", domain.ErrInvalidTransition, expected, updated.Status)
	}
	updated.UpdatedAt = time.Now().UTC()
	if err := w.settlements.UpdateSettlement(ctx, &updated, expected); err != nil {
		if errors.Is(err, domain.ErrStatusChanged) {
			return "", nil
		}
		return "", fmt.Errorf("failed to update settlement: %w", err)
	}

	switch updated.Status {
	case models.SettlementExecuted:
		w.log.Info("safe transaction executed", "settlement_id", s.ID, "safe_tx_hash", s.SafeTxHash, "tx_hash", updated.TxHash)
		w.reconcile(ctx, &updated)
	case models.SettlementFailed:
		w.log.Warn("safe transaction failed", "settlement_id", s.ID, "safe_tx_hash", s.SafeTxHash, "tx_hash", updated.TxHash)
	case models.SettlementSigned:
		w.log.Info("safe threshold reached", "settlement_id", s.ID, "confirmations", updated.Confirmations)
	}
	if updated.Status == expected {
		return "", nil
	}
	return updated.Status, nil
}

// checkReceipt confirms an executed settlement from its on-chain receipt
func (w *SettlementWatcher) checkReceipt(ctx context.Context, s *models.Settlement) (models.SettlementStatus, error) {
	if w.reader == nil || s.TxHash == "" {
		return "", nil
	}
	receipt, err := w.reader.GetReceipt(ctx, s.ChainID, s.TxHash)
	if err != nil {
		return "", err
	}
	if !receipt.Found {
		return "", nil
	}

	updated := *s
	updated.BlockNumber = receipt.BlockNumber
	updated.UpdatedAt = time.Now().UTC()
	if receipt.Success {
		updated.Status = models.SettlementConfirmed
	} else {
		updated.Status = models.SettlementFailed
		updated.FailureReason = "transaction reverted"
	}
	if err := w.settlements.UpdateSettlement(ctx, &updated, models.SettlementExecuted); err != nil {
		if errors.Is(err, domain.ErrStatusChanged) {
			return "", nil
		}
		return "", fmt.Errorf("failed to update settlement: %w", err)
	}

	if updated.Status == models.SettlementFailed {
		// documents marked paid on broadcast keep their status; the mismatch needs an operator
		w.log.Error("paid transaction reverted on-chain", "event", "settlement_reverted", "settlement_id", s.ID,
			"tx_hash", s.TxHash, "invoice_ids", s.InvoiceIDs, "payable_ids", s.PayableIDs)
		return updated.Status, nil
	}
	if s.Kind == models.SettlementSafe {
		w.reconcile(ctx, &updated)
	}
	w.log.Info("settlement confirmed", "settlement_id", s.ID, "tx_hash", s.TxHash, "block", receipt.BlockNumber)
	return updated.Status, nil
}

// reconcile marks every document of an executed settlement paid with the real transaction hash
func (w *SettlementWatcher) reconcile(ctx context.Context, s *models.Settlement) {
	evidence := PaymentEvidence{
		TxHash:      s.TxHash,
		FromAddress: s.SafeAddress,
		ChainID:     s.ChainID,
		Method:      "safe",
	}
	for _, ref := range s.Refs() {
		result, err := w.recorder.Apply(ctx, s.Scope, ref, evidence)
		if err != nil {
			w.log.Error("failed to reconcile executed settlement", "settlement_id", s.ID, "kind", ref.Kind, "id", ref.ID, "error", err)
			continue
		}
		if !result.AlreadyPaid {
			w.log.Info("document settled by safe execution", "kind", ref.Kind, "id", ref.ID, "tx_hash", s.TxHash)
		}
	}
}
