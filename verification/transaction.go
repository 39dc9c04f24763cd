package verification

import (
	"fmt"

	"minichain/logs"
	"minichain/types"
	"minichain/wallet"

	"github.com/shopspring/decimal"
)

// SignatureFunc 签名校验能力
type SignatureFunc func(tx *types.Transaction) bool

// BalanceFunc 余额查询，通常是链上已确认余额再减去已接纳的待处理交易
type BalanceFunc func(participant string) decimal.Decimal

// Verifier 交易校验器，签名校验可以替换（测试或换签名算法时）
type Verifier struct {
	verifySignature SignatureFunc
}

// NewVerifier sig 为 nil 时使用 wallet.VerifyTransactionSignature
func NewVerifier(sig SignatureFunc) *Verifier {
	if sig == nil {
		sig = wallet.VerifyTransactionSignature
	}
	return &Verifier{verifySignature: sig}
}

var defaultVerifier = NewVerifier(nil)

// CheckTransaction 校验签名；checkFunds 为 true 时还要求 getBalance(sender) >= amount。
// 金额必须为正，否则在验签之前就返回 ErrNonPositiveAmount。
// 已经在区块里的交易在接纳时查过余额，重新校验时传 false。
func (v *Verifier) CheckTransaction(tx *types.Transaction, getBalance BalanceFunc, checkFunds bool) error {
	if tx == nil {
		return &InvalidTransactionError{Err: fmt.Errorf("nil transaction")}
	}
	if !tx.Amount().IsPositive() {
		return &InvalidTransactionError{Sender: tx.Sender(), Err: ErrNonPositiveAmount}
	}
	if !v.verifySignature(tx) {
		return &InvalidTransactionError{Sender: tx.Sender(), Err: ErrBadSignature}
	}
	if !checkFunds {
		return nil
	}
	if getBalance == nil {
		return &InvalidTransactionError{Sender: tx.Sender(), Err: ErrNoBalanceOracle}
	}
	if balance := getBalance(tx.Sender()); balance.LessThan(tx.Amount()) {
		return &InvalidTransactionError{
			Sender: tx.Sender(),
			Err:    fmt.Errorf("%w: balance %s, amount %s", ErrInsufficientFunds, balance, tx.Amount()),
		}
	}
	return nil
}

// VerifyTransaction CheckTransaction 的布尔形式。
// 金额不为正、签名无效或余额不足（checkFunds 为 true 时）都返回 false。
func (v *Verifier) VerifyTransaction(tx *types.Transaction, getBalance BalanceFunc, checkFunds bool) bool {
	if err := v.CheckTransaction(tx, getBalance, checkFunds); err != nil {
		logs.Debug("[Verification] %v", err)
		return false
	}
	return true
}

// CheckOpenTransactions 逐笔只校验签名，余额在接纳时已经逐笔检查过
func (v *Verifier) CheckOpenTransactions(txs []*types.Transaction, getBalance BalanceFunc) error {
	for i, tx := range txs {
		if err := v.CheckTransaction(tx, getBalance, false); err != nil {
			return fmt.Errorf("open transaction %d: %w", i, err)
		}
	}
	return nil
}

// VerifyOpenTransactions 所有待处理交易都通过签名校验时返回 true
func (v *Verifier) VerifyOpenTransactions(txs []*types.Transaction, getBalance BalanceFunc) bool {
	if err := v.CheckOpenTransactions(txs, getBalance); err != nil {
		logs.Warn("[Verification] %v", err)
		return false
	}
	return true
}

// 包级别的校验方法，使用默认签名校验

func CheckTransaction(tx *types.Transaction, getBalance BalanceFunc, checkFunds bool) error {
	return defaultVerifier.CheckTransaction(tx, getBalance, checkFunds)
}

func VerifyTransaction(tx *types.Transaction, getBalance BalanceFunc, checkFunds bool) bool {
	return defaultVerifier.VerifyTransaction(tx, getBalance, checkFunds)
}

func CheckOpenTransactions(txs []*types.Transaction, getBalance BalanceFunc) error {
	return defaultVerifier.CheckOpenTransactions(txs, getBalance)
}

func VerifyOpenTransactions(txs []*types.Transaction, getBalance BalanceFunc) bool {
	return defaultVerifier.VerifyOpenTransactions(txs, getBalance)
}
