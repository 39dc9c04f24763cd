package db

import (
	"encoding/json"
	"errors"
	"fmt"

	"minichain/types"
)

// SaveOpenTransactions 整体覆盖保存待处理交易（JSON 存储格式，保持顺序）
func (manager *Manager) SaveOpenTransactions(txs []*types.Transaction) error {
	records := make([]types.TransactionRecord, 0, len(txs))
	for _, tx := range txs {
		records = append(records, tx.ToRecord())
	}
	data, err := json.Marshal(records)
	if err != nil {
		return err
	}
	return manager.Set(KeyOpenTransactions(), data)
}

// LoadOpenTransactions 读取待处理交易，没有保存过时返回空切片
func (manager *Manager) LoadOpenTransactions() ([]*types.Transaction, error) {
	data, err := manager.Get(KeyOpenTransactions())
	if errors.Is(err, ErrNotFound) {
		return []*types.Transaction{}, nil
	}
	if err != nil {
		return nil, err
	}
	var records []types.TransactionRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse open transactions: %w", err)
	}
	txs := make([]*types.Transaction, 0, len(records))
	for i, rec := range records {
		tx, err := types.TransactionFromRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("open transaction %d: %w", i, err)
		}
		txs = append(txs, tx)
	}
	return txs, nil
}
