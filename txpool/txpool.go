package txpool

import (
	"errors"
	"fmt"
	"sync"

	"minichain/config"
	"minichain/logs"
	"minichain/types"
	"minichain/utils"

	lru "github.com/hashicorp/golang-lru"
)

var (
	ErrNilTx       = errors.New("nil transaction")
	ErrDuplicateTx = errors.New("transaction already pending")
	ErrReplayedTx  = errors.New("transaction already included in a block")
	ErrPoolFull    = errors.New("txpool is full")
)

// TxPool 待处理交易池，按接纳顺序保存交易。
// 余额检查不在这里做，由调用方（chain）在 Add 之前完成。
type TxPool struct {
	mu      sync.RWMutex
	pending []*types.Transaction

	// 缓存
	pendingCache *lru.Cache // key -> *types.Transaction，pending 里的交易
	appliedCache *lru.Cache // key -> struct{}，最近已上链的交易，用于防重放

	maxPending int
}

// TxKey 交易的短哈希（规范编码的 murmur3）
func TxKey(tx *types.Transaction) string {
	return utils.ShortHash(tx.ToOrderedFields().Bytes())
}

// NewTxPool 创建交易池
func NewTxPool(cfg *config.Config) (*TxPool, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	// pending 缓存不能小于 pending 上限，否则会被淘汰导致查重失效
	pendingSize := cfg.TxPool.MaxPendingTxs
	pendingCache, err := lru.New(pendingSize)
	if err != nil {
		return nil, err
	}
	appliedCache, err := lru.New(cfg.TxPool.DedupCacheSize)
	if err != nil {
		return nil, err
	}
	return &TxPool{
		pendingCache: pendingCache,
		appliedCache: appliedCache,
		maxPending:   cfg.TxPool.MaxPendingTxs,
	}, nil
}

// Add 追加一笔交易
func (tp *TxPool) Add(tx *types.Transaction) error {
	if tx == nil {
		return ErrNilTx
	}
	key := TxKey(tx)

	tp.mu.Lock()
	defer tp.mu.Unlock()

	if v, ok := tp.pendingCache.Peek(key); ok && v.(*types.Transaction).Equal(tx) {
		return ErrDuplicateTx
	}
	if tp.appliedCache.Contains(key) {
		return ErrReplayedTx
	}
	if len(tp.pending) >= tp.maxPending {
		return fmt.Errorf("%w (%d/%d)", ErrPoolFull, len(tp.pending), tp.maxPending)
	}
	tp.pending = append(tp.pending, tx)
	tp.pendingCache.Add(key, tx)
	logs.Trace("[TxPool] added tx %s, pending=%d", key, len(tp.pending))
	return nil
}

// List 返回待处理交易的副本（保持顺序）
func (tp *TxPool) List() []*types.Transaction {
	tp.mu.RLock()
	defer tp.mu.RUnlock()
	out := make([]*types.Transaction, len(tp.pending))
	copy(out, tp.pending)
	return out
}

// Len 待处理交易数
func (tp *TxPool) Len() int {
	tp.mu.RLock()
	defer tp.mu.RUnlock()
	return len(tp.pending)
}

// MarkApplied 交易已经上链：从池中移除并记入防重放缓存。返回移除的笔数。
// 奖励交易跳过。
func (tp *TxPool) MarkApplied(txs []*types.Transaction) int {
	tp.mu.Lock()
	defer tp.mu.Unlock()

	applied := make(map[string]struct{}, len(txs))
	for _, tx := range txs {
		if tx == nil || tx.IsReward() {
			continue
		}
		key := TxKey(tx)
		applied[key] = struct{}{}
		tp.appliedCache.Add(key, struct{}{})
	}

	kept := tp.pending[:0:0]
	removed := 0
	for _, tx := range tp.pending {
		key := TxKey(tx)
		if _, ok := applied[key]; ok {
			tp.pendingCache.Remove(key)
			removed++
			continue
		}
		kept = append(kept, tx)
	}
	tp.pending = kept
	if removed > 0 {
		logs.Debug("[TxPool] removed %d applied txs, pending=%d", removed, len(tp.pending))
	}
	return removed
}

// Clear 清空待处理交易（防重放缓存保留）
func (tp *TxPool) Clear() {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	tp.pending = nil
	tp.pendingCache.Purge()
}

// Restore 用持久化的交易重建池（启动时调用）
func (tp *TxPool) Restore(txs []*types.Transaction) error {
	tp.Clear()
	for i, tx := range txs {
		if err := tp.Add(tx); err != nil {
			return fmt.Errorf("restore tx %d: %w", i, err)
		}
	}
	return nil
}
