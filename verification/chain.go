package verification

import (
	"minichain/logs"
	"minichain/types"
	"minichain/utils"
)

// CheckChain 校验整条链，返回第一个出错区块的错误。
//
// 创世区块（位置 0）不做任何检查。之后每个区块依次检查：
//  1. 区块序号连续，previous_hash 等于前一区块的摘要（*ChainLinkageError）
//  2. 最后一笔交易是奖励交易（没有交易的区块同样拒绝），且去掉它之后的交易满足工作量证明（*InvalidProofError）
//
// 遇到第一个错误立即返回，不会跳过继续检查。
func CheckChain(blocks []*types.Block, leadingZeros int) error {
	for i, block := range blocks {
		if i == 0 {
			continue
		}
		prev := blocks[i-1]
		if block == nil || prev == nil {
			return &types.MalformedBlockError{Reason: "nil block in chain"}
		}
		if block.Index() != prev.Index()+1 {
			return &ChainLinkageError{
				Index:  i,
				Reason: "index does not follow predecessor",
			}
		}
		if expected := utils.HashBlock(prev); block.PreviousHash() != expected {
			return &ChainLinkageError{Index: i, Expected: expected, Got: block.PreviousHash()}
		}
		reward := block.Reward()
		if reward == nil {
			return &InvalidProofError{Index: i, Proof: block.Proof(), Reason: "missing reward transaction"}
		}
		if !reward.IsReward() {
			return &InvalidProofError{Index: i, Proof: block.Proof(), Reason: "last transaction is not a reward"}
		}
		if !ValidProof(block.WorkTransactions(), block.PreviousHash(), block.Proof(), leadingZeros) {
			return &InvalidProofError{Index: i, Proof: block.Proof()}
		}
	}
	return nil
}

// VerifyChain 校验整条链，合法返回 true。失败原因写入日志。
// 除了哈希链接和工作量证明，非创世区块的最后一笔交易必须是奖励交易，没有交易的区块也会被拒绝。
func VerifyChain(blocks []*types.Block, leadingZeros int) bool {
	if err := CheckChain(blocks, leadingZeros); err != nil {
		logs.Warn("[Verification] chain rejected: %v", err)
		return false
	}
	return true
}
