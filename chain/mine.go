package chain

import (
	"context"
	"errors"
	"math"

	"minichain/types"
	"minichain/verification"
)

// ErrProofSpaceExhausted 所有 proof 都试过了仍然不满足难度（难度超过摘要长度时必然发生）
var ErrProofSpaceExhausted = errors.New("proof space exhausted")

// 每隔多少次尝试检查一次 ctx
const ctxCheckInterval = 1 << 12

// MineProof 从 0 开始逐个尝试，返回第一个满足难度的 proof。
// txs 是不含奖励交易的待打包交易。
func MineProof(ctx context.Context, txs []*types.Transaction, lastHash string, leadingZeros int) (uint64, error) {
	if leadingZeros > verification.MaxLeadingZeros {
		return 0, ErrProofSpaceExhausted
	}
	for proof := uint64(0); ; proof++ {
		if proof%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return 0, err
			}
		}
		if verification.ValidProof(txs, lastHash, proof, leadingZeros) {
			return proof, nil
		}
		if proof == math.MaxUint64 {
			return 0, ErrProofSpaceExhausted
		}
	}
}
