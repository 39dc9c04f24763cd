package db

import (
	"errors"
	"fmt"
	"strconv"

	"minichain/logs"
	"minichain/types"
)

// SaveBlock 将区块存入DB（protobuf 编码的存储格式），同时更新最新序号和缓存
func (manager *Manager) SaveBlock(block *types.Block) error {
	logs.Debug("Saving new block_%d", block.Index())
	data, err := block.MarshalProto()
	if err != nil {
		return err
	}
	err = manager.SetBatch(map[string][]byte{
		KeyBlock(block.Index()): data,
		KeyLatestBlockIndex():   []byte(strconv.FormatUint(block.Index(), 10)),
	})
	if err != nil {
		return fmt.Errorf("save block %d: %w", block.Index(), err)
	}
	manager.blockCache.Add(block.Index(), block)
	return nil
}

// GetBlock 根据序号获取区块，先看缓存，再看 DB
func (manager *Manager) GetBlock(index uint64) (*types.Block, error) {
	if v, ok := manager.blockCache.Get(index); ok {
		return v.(*types.Block), nil
	}
	data, err := manager.Get(KeyBlock(index))
	if err != nil {
		return nil, err
	}
	block, err := types.UnmarshalBlockProto(data)
	if err != nil {
		logs.Warn("[GetBlock] block_%d is corrupted: %v", index, err)
		return nil, err
	}
	manager.blockCache.Add(index, block)
	return block, nil
}

// LatestIndex 最新区块序号；库里没有区块时 ok=false
func (manager *Manager) LatestIndex() (index uint64, ok bool, err error) {
	val, err := manager.Get(KeyLatestBlockIndex())
	if errors.Is(err, ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	index, err = strconv.ParseUint(string(val), 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("bad latest block index %q: %w", val, err)
	}
	return index, true, nil
}

// LoadChain 按序号顺序读出整条链；库为空时返回空切片
func (manager *Manager) LoadChain() ([]*types.Block, error) {
	var chain []*types.Block
	err := manager.ScanPrefix(KeyBlockPrefix(), func(key string, value []byte) error {
		block, err := types.UnmarshalBlockProto(value)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		if block.Index() != uint64(len(chain)) {
			return fmt.Errorf("%s: expected block %d, found %d", key, len(chain), block.Index())
		}
		chain = append(chain, block)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return chain, nil
}

// SaveChain 整条链写入（覆盖），多出的旧区块会被删除
func (manager *Manager) SaveChain(chain []*types.Block) error {
	oldLatest, hadOld, err := manager.LatestIndex()
	if err != nil {
		return err
	}

	var ops []writeOp
	for _, block := range chain {
		data, err := block.MarshalProto()
		if err != nil {
			return err
		}
		ops = append(ops, writeOp{key: KeyBlock(block.Index()), value: data})
	}
	if hadOld {
		for i := uint64(len(chain)); i <= oldLatest; i++ {
			ops = append(ops, writeOp{key: KeyBlock(i), del: true})
		}
	}
	if len(chain) > 0 {
		latest := strconv.FormatUint(chain[len(chain)-1].Index(), 10)
		ops = append(ops, writeOp{key: KeyLatestBlockIndex(), value: []byte(latest)})
	} else if hadOld {
		ops = append(ops, writeOp{key: KeyLatestBlockIndex(), del: true})
	}
	if err := manager.apply(ops); err != nil {
		return fmt.Errorf("save chain: %w", err)
	}

	manager.blockCache.Purge()
	logs.Debug("[DB] saved chain of %d blocks", len(chain))
	return nil
}
