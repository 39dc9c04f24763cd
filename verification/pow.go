package verification

import (
	"strconv"
	"strings"

	"minichain/types"
	"minichain/utils"
)

// MaxLeadingZeros SHA-256 hex 摘要的长度
const MaxLeadingZeros = 64

// ProofInput 工作量证明的哈希输入：交易规范编码 + lastHash + proof（十进制）
func ProofInput(txs []*types.Transaction, lastHash string, proof uint64) []byte {
	guess := types.CanonicalTransactions(txs)
	guess = append(guess, lastHash...)
	guess = strconv.AppendUint(guess, proof, 10)
	return guess
}

// ValidProof 判断 proof 是否有效：摘要的前 leadingZeros 个字符全是 '0'。
//
// 校验已挖出的区块时，调用方负责先去掉最后的奖励交易（types.Block.WorkTransactions）。
// leadingZeros <= 0 恒为真，超过摘要长度恒为假。纯函数，可并发调用。
func ValidProof(txs []*types.Transaction, lastHash string, proof uint64, leadingZeros int) bool {
	if leadingZeros <= 0 {
		return true
	}
	if leadingZeros > MaxLeadingZeros {
		return false
	}
	guessHash := utils.HashStr256(ProofInput(txs, lastHash, proof))
	return strings.HasPrefix(guessHash, strings.Repeat("0", leadingZeros))
}
