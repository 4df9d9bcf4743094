package models

// WalletType is the kind of connected wallet
type WalletType string

const (
	WalletEOA  WalletType = "eoa"
	WalletSafe WalletType = "safe"
)

// ConnectedWallet is the session-scoped signing capability yielded by a wallet connection
type ConnectedWallet struct {
	Address    string     `json:"address"`
	ChainID    uint64     `json:"chainId"`
	Type       WalletType `json:"type"`
	Threshold  int        `json:"threshold,omitempty"`
	Owners     []string   `json:"owners,omitempty"`
	IsReadOnly bool       `json:"isReadOnly"`
}

// IsSafe reports whether the wallet is a Safe multisig
func (w *ConnectedWallet) IsSafe() bool {
	return w.Type == WalletSafe
}

// CanPay reports whether the pay action should be offered at all
func (w *ConnectedWallet) CanPay() bool {
	return w != nil && w.Address != "" && !w.IsReadOnly
}

// AvailableWallets is the result of probing the execution environment
type AvailableWallets struct {
	HasSafe          bool `json:"hasSafe"`
	HasMetaMask      bool `json:"hasMetaMask"`
	HasWalletConnect bool `json:"hasWalletConnect"`
}

// SafeAppInfo is what the Safe host reports during the handshake
type SafeAppInfo struct {
	SafeAddress string   `json:"safeAddress"`
	ChainID     uint64   `json:"chainId"`
	Owners      []string `json:"owners"`
	Threshold   int      `json:"threshold"`
	IsReadOnly  bool     `json:"isReadOnly"`
}
