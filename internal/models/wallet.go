package models

// WalletContext is the read-only view of the connected wallet a deposit
// session consults. The wallet provider itself lives outside this module.
type WalletContext interface {
	IsConnected() bool
	Address() string
	ChainId() int64
}

// StaticWallet is a fixed WalletContext, used by the CLIs and the HTTP server
// where the front-end reports the wallet state.
type StaticWallet struct {
	Addr    string
	Chain   int64
	Connect bool
}

func (w StaticWallet) IsConnected() bool { return w.Connect && w.Addr != "" }
func (w StaticWallet) Address() string   { return w.Addr }
func (w StaticWallet) ChainId() int64    { return w.Chain }
