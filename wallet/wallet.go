package wallet

import (
	"encoding/hex"
	"errors"
	"fmt"

	"minichain/logs"
	"minichain/types"

	"github.com/btcsuite/btcd/btcec/v2"
	btcecdsa "github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/shopspring/decimal"
)

// ErrNoKey 钱包还没有私钥
var ErrNoKey = errors.New("wallet has no private key")

// Wallet 保存单个节点的私钥，公钥（hex 压缩格式）即交易里的 sender
type Wallet struct {
	privateKey *btcec.PrivateKey
}

// NewWallet 生成新的 secp256k1 密钥对
func NewWallet() (*Wallet, error) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return &Wallet{privateKey: priv}, nil
}

// FromPrivateKey 用 WIF 或 hex 私钥恢复钱包
func FromPrivateKey(keyStr string) (*Wallet, error) {
	priv, err := ParsePrivateKey(keyStr)
	if err != nil {
		return nil, err
	}
	return &Wallet{privateKey: priv}, nil
}

// PublicKey 压缩公钥的 hex 形式
func (w *Wallet) PublicKey() string {
	if w.privateKey == nil {
		return ""
	}
	return hex.EncodeToString(w.privateKey.PubKey().SerializeCompressed())
}

// Address bech32 地址
func (w *Wallet) Address() (string, error) {
	if w.privateKey == nil {
		return "", ErrNoKey
	}
	return DeriveBech32Address(w.privateKey.PubKey())
}

// SignTransaction 对 (sender, recipient, amount) 签名，返回 DER 签名的 hex
func (w *Wallet) SignTransaction(sender, recipient string, amount decimal.Decimal) (string, error) {
	if w.privateKey == nil {
		return "", ErrNoKey
	}
	hash := chainhash.HashB(types.SigningPayload(sender, recipient, amount))
	sig := btcecdsa.Sign(w.privateKey, hash)
	return hex.EncodeToString(sig.Serialize()), nil
}

// NewSignedTransaction 构造并签名一笔从本钱包发出的交易
func (w *Wallet) NewSignedTransaction(recipient string, amount decimal.Decimal) (*types.Transaction, error) {
	sender := w.PublicKey()
	sig, err := w.SignTransaction(sender, recipient, amount)
	if err != nil {
		return nil, err
	}
	return types.NewTransaction(sender, recipient, amount, sig), nil
}

// VerifyTransactionSignature 用 sender 的公钥验证交易签名。
// 奖励交易没有签名，返回 false；S 大于群阶一半的签名视为无效。
func VerifyTransactionSignature(tx *types.Transaction) bool {
	if tx == nil || tx.IsReward() || tx.Signature() == "" {
		return false
	}
	pub, err := ParsePublicKey(tx.Sender())
	if err != nil {
		logs.Debug("[Wallet] bad sender public key %.16s: %v", tx.Sender(), err)
		return false
	}
	rawSig, err := hex.DecodeString(tx.Signature())
	if err != nil {
		logs.Debug("[Wallet] signature is not hex: %v", err)
		return false
	}
	sig, err := ecdsa.ParseDERSignature(rawSig)
	if err != nil {
		logs.Debug("[Wallet] bad DER signature: %v", err)
		return false
	}
	// 只接受 low-S 签名，否则 (r, N-s) 是同一笔交易的另一种合法编码，绕过防重放
	if sigS := sig.S(); sigS.IsOverHalfOrder() {
		logs.Debug("[Wallet] non-canonical high-S signature")
		return false
	}
	return sig.Verify(chainhash.HashB(tx.SigningPayload()), pub)
}
