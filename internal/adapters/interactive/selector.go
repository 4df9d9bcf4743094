package interactive

import (
	"context"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/manifoldco/promptui"
	"github.com/sahilm/fuzzy"

	"github.com/safepay-org/safepay/internal/domain/config"
	"github.com/safepay-org/safepay/internal/domain/models"
	"github.com/safepay-org/safepay/internal/usecase"
)

// SelectorAdapter handles interactive selection
type SelectorAdapter struct {
	config    *config.RuntimeConfig
	runSelect func(promptui.Select) (int, error)
	runMulti  func(multiSelectModel) (multiSelectModel, error)
}

// NewSelectorAdapter creates a new selector adapter
func NewSelectorAdapter(cfg *config.RuntimeConfig) *SelectorAdapter {
	return &SelectorAdapter{
		config: cfg,
		runSelect: func(p promptui.Select) (int, error) {
			index, _, err := p.Run()
			return index, err
		},
		runMulti: runMultiSelect,
	}
}

// SelectSafe picks one connected Safe
func (s *SelectorAdapter) SelectSafe(ctx context.Context, safes []models.SafeWalletSummary, prompt string) (*models.SafeWalletSummary, error) {
	if len(safes) == 0 {
		return nil, fmt.Errorf("no Safe wallets connected")
	}
	if len(safes) == 1 {
		return &safes[0], nil
	}
	if s.config.NonInteractive {
		return nil, fmt.Errorf("multiple Safe wallets connected, pass one explicitly in non-interactive mode")
	}

	options := formatSafeOptions(safes)
	templates := &promptui.SelectTemplates{
		Label:    "{{ . }}",
		Active:   "▸ {{ . | cyan }}",
		Inactive: "  {{ . | faint }}",
		Selected: "✓ {{ . | green }}",
		Help:     color.New(color.FgYellow).Sprint("Use arrow keys to navigate, Enter to select"),
	}

	index, err := s.runSelect(promptui.Select{
		Label:             prompt,
		Items:             options,
		Templates:         templates,
		Size:              10,
		StartInSearchMode: true,
		Searcher:          createFuzzySearchFunc(options),
	})
	if err != nil {
		return nil, fmt.Errorf("selection cancelled: %w", err)
	}
	return &safes[index], nil
}

// SelectDocuments picks one or more documents for a batch payment
func (s *SelectorAdapter) SelectDocuments(ctx context.Context, docs []usecase.DocumentChoice, prompt string) ([]usecase.DocumentChoice, error) {
	if len(docs) == 0 {
		return nil, fmt.Errorf("no documents to select")
	}
	if s.config.NonInteractive {
		return nil, fmt.Errorf("document selection not available in non-interactive mode")
	}

	m, err := s.runMulti(initialMultiSelectModel(docs, prompt))
	if err != nil {
		return nil, err
	}
	if m.cancelled {
		return nil, fmt.Errorf("selection cancelled")
	}
	chosen := m.chosen()
	if len(chosen) == 0 {
		return nil, fmt.Errorf("no documents selected")
	}
	return chosen, nil
}

// formatSafeOptions renders "Name 0xabc... (chain 42220, 2/3)"
func formatSafeOptions(safes []models.SafeWalletSummary) []string {
	options := make([]string, len(safes))
	for i, safe := range safes {
		name := color.New(color.FgWhite, color.Bold).Sprint(safe.Name)
		addr := color.New(color.FgBlue).Sprint(safe.SafeAddress)
		policy := fmt.Sprintf("chain %d, %d/%d", safe.ChainID, safe.Threshold, len(safe.Owners))
		if safe.IsDefault {
			policy += ", default"
		}
		options[i] = fmt.Sprintf("%s %s (%s)", name, addr, policy)
	}
	return options
}

// createFuzzySearchFunc creates a fuzzy search function for promptui
func createFuzzySearchFunc(items []string) func(input string, index int) bool {
	return func(input string, index int) bool {
		if input == "" {
			return true
		}
		input = strings.ToLower(input)
		item := strings.ToLower(items[index])
		if strings.Contains(item, input) {
			return true
		}
		return len(fuzzy.Find(input, []string{item})) > 0
	}
}

var _ usecase.InteractiveSelector = (*SelectorAdapter)(nil)
