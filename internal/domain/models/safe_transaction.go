package models

import "time"

// SafeOperation is the Safe call type
type SafeOperation uint8

const (
	SafeOperationCall         SafeOperation = 0
	SafeOperationDelegateCall SafeOperation = 1
)

// SafeInfo is the live Safe state reported by the transaction service or chain
type SafeInfo struct {
	Address   string   `json:"address"`
	ChainID   uint64   `json:"chainId"`
	Owners    []string `json:"owners"`
	Threshold int      `json:"threshold"`
	Nonce     uint64   `json:"nonce"`
	Version   string   `json:"version"`
	Modules   []string `json:"modules"`
}

// SafeTxData is one call inside a Safe transaction
type SafeTxData struct {
	To        string        `json:"to"`
	Value     string        `json:"value"`
	Data      string        `json:"data"`
	Operation SafeOperation `json:"operation"`
}

// SafeProposal is a built, signed Safe transaction ready to be proposed
type SafeProposal struct {
	SafeAddress string        `json:"safe"`
	ChainID     uint64        `json:"chainId"`
	To          string        `json:"to"`
	Value       string        `json:"value"`
	Data        string        `json:"data"`
	Operation   SafeOperation `json:"operation"`
	Nonce       uint64        `json:"nonce"`
	SafeTxHash  string        `json:"contractTransactionHash"`
	Sender      string        `json:"sender"`
	Signature   string        `json:"signature"`
	Calls       []SafeTxData  `json:"-"`
}

// Confirmation represents a confirmation on a Safe transaction
type Confirmation struct {
	Signer      string     `json:"signer"`
	Signature   string     `json:"signature"`
	ConfirmedAt *time.Time `json:"confirmedAt,omitempty"`
}

// SafeExecutionInfo is the execution state of a Safe proposal
type SafeExecutionInfo struct {
	SafeTxHash            string
	Nonce                 uint64
	IsExecuted            bool
	IsSuccessful          *bool
	TxHash                string
	Confirmations         int
	ConfirmationsRequired int
	ConfirmationDetails   []Confirmation
	ExecutedAt            *time.Time
}

// ReceiptStatus is the on-chain result of a broadcast transaction
type ReceiptStatus struct {
	Found       bool
	Success     bool
	BlockNumber uint64
}
