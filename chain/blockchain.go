// Package chain 本地账本：持有区块链和交易池，在接纳交易、出块、导入区块时调用 verification。
package chain

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"minichain/config"
	"minichain/db"
	"minichain/logs"
	"minichain/stats"
	"minichain/txpool"
	"minichain/types"
	"minichain/utils"
	"minichain/verification"

	"github.com/shopspring/decimal"
)

var (
	ErrNoHostingNode      = errors.New("no hosting node, cannot mine")
	ErrInvalidTransaction = errors.New("transaction rejected")
	ErrBlockRejected      = errors.New("block rejected")
)

// Blockchain 账本。所有方法都持有同一把锁，余额查询和被校验的交易来自同一个快照。
type Blockchain struct {
	mu sync.RWMutex

	cfg         *config.Config
	store       *db.Manager
	pool        *txpool.TxPool
	verifier    *verification.Verifier
	chain       []*types.Block
	hostingNode string

	latency *stats.LatencyRecorder
}

// GenesisBlock 创世区块，所有节点必须一致（时间戳固定为 0）
func GenesisBlock(cfg *config.Config) *types.Block {
	return types.NewBlockAt(0, "", nil, cfg.Chain.GenesisProof, 0)
}

// NewBlockchain 从 store 加载链和待处理交易；库为空时写入创世区块。
// hostingNode 是出块奖励的接收方（公钥），为空时只能接收交易和区块，不能出块。
func NewBlockchain(cfg *config.Config, store *db.Manager, hostingNode string) (*Blockchain, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	pool, err := txpool.NewTxPool(cfg)
	if err != nil {
		return nil, err
	}
	bc := &Blockchain{
		cfg:         cfg,
		store:       store,
		pool:        pool,
		verifier:    verification.NewVerifier(nil),
		hostingNode: hostingNode,
		latency:     stats.NewLatencyRecorder(0),
	}

	blocks, err := store.LoadChain()
	if err != nil {
		return nil, fmt.Errorf("load chain: %w", err)
	}
	if len(blocks) == 0 {
		genesis := GenesisBlock(cfg)
		if err := store.SaveBlock(genesis); err != nil {
			return nil, err
		}
		blocks = []*types.Block{genesis}
		logs.Info("[Chain] created genesis block")
	} else {
		if err := bc.checkChainLocked(blocks); err != nil {
			return nil, fmt.Errorf("stored chain is invalid: %w", err)
		}
		if err := checkStoredTip(store, blocks); err != nil {
			return nil, err
		}
	}
	bc.chain = blocks

	open, err := store.LoadOpenTransactions()
	if err != nil {
		return nil, fmt.Errorf("load open transactions: %w", err)
	}
	if err := pool.Restore(open); err != nil {
		return nil, err
	}
	// 已上链的交易记入防重放缓存，顺带清掉池里已经上链的交易
	for _, block := range blocks {
		pool.MarkApplied(block.Transactions())
	}

	logs.Info("[Chain] loaded %d blocks, %d open transactions", len(blocks), pool.Len())
	return bc, nil
}

// checkStoredTip 最新序号记录必须指向 LoadChain 读出的链尾
func checkStoredTip(store *db.Manager, blocks []*types.Block) error {
	latest, ok, err := store.LatestIndex()
	if err != nil {
		return err
	}
	tip := blocks[len(blocks)-1]
	if !ok || latest != tip.Index() {
		return fmt.Errorf("latest block index %d does not match stored tip %d", latest, tip.Index())
	}
	stored, err := store.GetBlock(latest)
	if err != nil {
		return fmt.Errorf("read tip block: %w", err)
	}
	if !stored.Equal(tip) {
		return fmt.Errorf("tip block %d differs from scanned chain", latest)
	}
	return nil
}

// checkBlockRules 区块接入账本的额外规则（CheckChain 之外）：
// 奖励为正、不超过配置的出块奖励、接收方非空；非奖励交易签名正确。
// 余额不检查，交易在被打包前已经查过。
func (bc *Blockchain) checkBlockRules(block *types.Block) error {
	reward := block.Reward()
	if reward == nil || !reward.IsReward() {
		return errors.New("missing reward transaction")
	}
	if !reward.Amount().IsPositive() {
		return fmt.Errorf("reward %s is not positive", reward.Amount())
	}
	if reward.Amount().GreaterThan(bc.cfg.Chain.MiningReward) {
		return fmt.Errorf("reward %s exceeds %s", reward.Amount(), bc.cfg.Chain.MiningReward)
	}
	if reward.Recipient() == "" {
		return errors.New("reward has no recipient")
	}
	for i, tx := range block.WorkTransactions() {
		if err := bc.verifier.CheckTransaction(tx, nil, false); err != nil {
			return fmt.Errorf("transaction %d: %w", i, err)
		}
	}
	return nil
}

// checkChainLocked CheckChain 加上创世区块之后每个区块的 checkBlockRules
func (bc *Blockchain) checkChainLocked(blocks []*types.Block) error {
	if err := verification.CheckChain(blocks, bc.cfg.Chain.PowLeadingZeros); err != nil {
		return err
	}
	for i := 1; i < len(blocks); i++ {
		if err := bc.checkBlockRules(blocks[i]); err != nil {
			return fmt.Errorf("block %d: %w", i, err)
		}
	}
	return nil
}

// Chain 整条链的副本
func (bc *Blockchain) Chain() []*types.Block {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	out := make([]*types.Block, len(bc.chain))
	copy(out, bc.chain)
	return out
}

// Height 区块个数（含创世区块）
func (bc *Blockchain) Height() int {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return len(bc.chain)
}

// LastBlock 链尾区块
func (bc *Blockchain) LastBlock() *types.Block {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.chain[len(bc.chain)-1]
}

// LastHash 链尾区块的摘要，下一个区块的 previous_hash
func (bc *Blockchain) LastHash() string {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return utils.HashBlock(bc.chain[len(bc.chain)-1])
}

// OpenTransactions 待处理交易（按接纳顺序）
func (bc *Blockchain) OpenTransactions() []*types.Transaction {
	return bc.pool.List()
}

// GetBalance 链上收到的 - 链上发出的 - 待处理交易中发出的
func (bc *Blockchain) GetBalance(participant string) decimal.Decimal {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.balanceLocked(participant)
}

func (bc *Blockchain) balanceLocked(participant string) decimal.Decimal {
	balance := decimal.Zero
	for _, block := range bc.chain {
		for _, tx := range block.Transactions() {
			if tx.Recipient() == participant {
				balance = balance.Add(tx.Amount())
			}
			if tx.Sender() == participant {
				balance = balance.Sub(tx.Amount())
			}
		}
	}
	for _, tx := range bc.pool.List() {
		if tx.Sender() == participant {
			balance = balance.Sub(tx.Amount())
		}
	}
	return balance
}

// Latency 出块、导入区块、整链校验、接纳交易的耗时统计
func (bc *Blockchain) Latency() map[string]stats.LatencySummary {
	return bc.latency.Snapshot()
}

// Verify 整链校验
func (bc *Blockchain) Verify() bool {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	defer bc.latency.Since(stats.MetricVerifyChain, time.Now())
	return verification.VerifyChain(bc.chain, bc.cfg.Chain.PowLeadingZeros)
}

// AddTransaction 校验签名和余额后放入交易池并持久化
func (bc *Blockchain) AddTransaction(recipient, sender, signature string, amount decimal.Decimal) error {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	defer bc.latency.Since(stats.MetricAddTx, time.Now())

	tx := types.NewTransaction(sender, recipient, amount, signature)
	if err := bc.verifier.CheckTransaction(tx, bc.balanceLocked, true); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidTransaction, err)
	}
	if err := bc.pool.Add(tx); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidTransaction, err)
	}
	if err := bc.store.SaveOpenTransactions(bc.pool.List()); err != nil {
		return fmt.Errorf("persist open transactions: %w", err)
	}
	logs.Verbose("[Chain] accepted tx %s, %s -> %.16s", txpool.TxKey(tx), amount, recipient)
	return nil
}

// ProofOfWork 对当前待处理交易和链尾摘要求 proof，不修改账本
func (bc *Blockchain) ProofOfWork(ctx context.Context) (uint64, error) {
	bc.mu.RLock()
	txs := bc.blockCandidatesLocked()
	lastHash := utils.HashBlock(bc.chain[len(bc.chain)-1])
	leadingZeros := bc.cfg.Chain.PowLeadingZeros
	bc.mu.RUnlock()

	return MineProof(ctx, txs, lastHash, leadingZeros)
}

// blockCandidatesLocked 本轮打包的交易：池中前 MaxTxsPerBlock 笔
func (bc *Blockchain) blockCandidatesLocked() []*types.Transaction {
	txs := bc.pool.List()
	if limit := bc.cfg.Chain.MaxTxsPerBlock; limit > 0 && len(txs) > limit {
		txs = txs[:limit]
	}
	return txs
}

// MineBlock 打包待处理交易，求 proof，追加奖励交易后上链
func (bc *Blockchain) MineBlock(ctx context.Context) (*types.Block, error) {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	defer bc.latency.Since(stats.MetricMineBlock, time.Now())

	if bc.hostingNode == "" {
		return nil, ErrNoHostingNode
	}
	txs := bc.blockCandidatesLocked()
	if err := bc.verifier.CheckOpenTransactions(txs, bc.balanceLocked); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTransaction, err)
	}

	last := bc.chain[len(bc.chain)-1]
	lastHash := utils.HashBlock(last)
	proof, err := MineProof(ctx, txs, lastHash, bc.cfg.Chain.PowLeadingZeros)
	if err != nil {
		return nil, err
	}

	reward := types.NewRewardTransaction(bc.hostingNode, bc.cfg.Chain.MiningReward)
	blockTxs := make([]*types.Transaction, 0, len(txs)+1)
	blockTxs = append(blockTxs, txs...)
	blockTxs = append(blockTxs, reward)
	block := types.NewBlock(last.Index()+1, lastHash, blockTxs, proof)

	if err := bc.store.SaveBlock(block); err != nil {
		return nil, err
	}
	bc.chain = append(bc.chain, block)
	bc.pool.MarkApplied(txs)
	if err := bc.store.SaveOpenTransactions(bc.pool.List()); err != nil {
		return block, fmt.Errorf("persist open transactions: %w", err)
	}
	logs.Info("[Chain] mined block %d, proof=%d txs=%d", block.Index(), proof, len(txs))
	return block, nil
}

// AddBlock 导入其他节点广播的区块：必须接在链尾、proof 正确，并满足 checkBlockRules。
func (bc *Blockchain) AddBlock(block *types.Block) error {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	defer bc.latency.Since(stats.MetricAddBlock, time.Now())

	if block == nil {
		return fmt.Errorf("%w: nil block", ErrBlockRejected)
	}
	last := bc.chain[len(bc.chain)-1]
	if err := verification.CheckChain([]*types.Block{last, block}, bc.cfg.Chain.PowLeadingZeros); err != nil {
		return fmt.Errorf("%w: %w", ErrBlockRejected, err)
	}
	if err := bc.checkBlockRules(block); err != nil {
		return fmt.Errorf("%w: %w", ErrBlockRejected, err)
	}

	if err := bc.store.SaveBlock(block); err != nil {
		return err
	}
	bc.chain = append(bc.chain, block)
	if n := bc.pool.MarkApplied(block.WorkTransactions()); n > 0 {
		if err := bc.store.SaveOpenTransactions(bc.pool.List()); err != nil {
			return fmt.Errorf("persist open transactions: %w", err)
		}
	}
	logs.Info("[Chain] imported block %d", block.Index())
	return nil
}

// ResolveConflicts 候选链比本地长、创世区块一致、整链合法且每个区块满足 checkBlockRules 时替换本地链。
// 替换后待处理交易被清空。返回是否发生了替换。
func (bc *Blockchain) ResolveConflicts(candidate []*types.Block) (bool, error) {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	if len(candidate) <= len(bc.chain) {
		return false, nil
	}
	if candidate[0] == nil || !candidate[0].Equal(bc.chain[0]) {
		return false, fmt.Errorf("%w: genesis block differs", ErrBlockRejected)
	}
	if err := bc.checkChainLocked(candidate); err != nil {
		return false, fmt.Errorf("%w: %w", ErrBlockRejected, err)
	}

	if err := bc.store.SaveChain(candidate); err != nil {
		return false, err
	}
	bc.chain = append([]*types.Block(nil), candidate...)
	bc.pool.Clear()
	for _, block := range bc.chain {
		bc.pool.MarkApplied(block.Transactions())
	}
	if err := bc.store.SaveOpenTransactions(nil); err != nil {
		return true, fmt.Errorf("persist open transactions: %w", err)
	}
	logs.Info("[Chain] replaced local chain, height=%d", len(bc.chain))
	return true, nil
}
