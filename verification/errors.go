// Package verification 区块链的校验逻辑：工作量证明、整链校验、交易校验。
// 所有函数都是无副作用的纯函数（日志除外），可以并发调用。
package verification

import (
	"errors"
	"fmt"
)

// 交易校验失败的原因，可用 errors.Is 判断
var (
	ErrBadSignature      = errors.New("bad signature")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrNonPositiveAmount = errors.New("non-positive amount")
	ErrNoBalanceOracle   = errors.New("no balance oracle")
)

// ChainLinkageError 区块的 previous_hash 与前一个区块的摘要不一致
type ChainLinkageError struct {
	Index    int // 在链中的位置
	Expected string
	Got      string
	Reason   string
}

func (e *ChainLinkageError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("block %d: broken link: %s", e.Index, e.Reason)
	}
	return fmt.Sprintf("block %d: previous hash mismatch: expected %s, got %s", e.Index, e.Expected, e.Got)
}

// InvalidProofError 工作量证明不满足前导零要求
type InvalidProofError struct {
	Index  int // 在链中的位置，单独校验时为 -1
	Proof  uint64
	Reason string
}

func (e *InvalidProofError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("block %d: invalid proof-of-work %d: %s", e.Index, e.Proof, e.Reason)
	}
	return fmt.Sprintf("block %d: invalid proof-of-work %d", e.Index, e.Proof)
}

// InvalidTransactionError 签名不对或余额不足
type InvalidTransactionError struct {
	Sender string
	Err    error
}

func (e *InvalidTransactionError) Error() string {
	return fmt.Sprintf("invalid transaction from %.16s: %v", e.Sender, e.Err)
}

func (e *InvalidTransactionError) Unwrap() error { return e.Err }
