package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// Block 区块定义，创建后不可修改。
//
// 约定：已挖出的区块最后一笔交易是矿工的奖励交易，它不参与工作量证明
// （见 WorkTransactions）。
type Block struct {
	index        uint64
	previousHash string
	transactions []*Transaction
	proof        uint64
	timestamp    float64 // unix 秒
}

// BlockRecord 区块的存储/传输格式
type BlockRecord struct {
	Index        uint64              `json:"index"`
	PreviousHash string              `json:"previous_hash"`
	Transactions []TransactionRecord `json:"transactions"`
	Proof        uint64              `json:"proof"`
	Timestamp    float64             `json:"timestamp"`
}

// NewBlock 以当前时间创建区块
func NewBlock(index uint64, previousHash string, txs []*Transaction, proof uint64) *Block {
	now := float64(time.Now().UnixNano()) / float64(time.Second)
	return NewBlockAt(index, previousHash, txs, proof, now)
}

// NewBlockAt 使用给定时间戳创建区块（从存储恢复时必须用原时间戳）
func NewBlockAt(index uint64, previousHash string, txs []*Transaction, proof uint64, timestamp float64) *Block {
	cp := make([]*Transaction, len(txs))
	copy(cp, txs)
	return &Block{
		index:        index,
		previousHash: previousHash,
		transactions: cp,
		proof:        proof,
		timestamp:    timestamp,
	}
}

func (b *Block) Index() uint64        { return b.index }
func (b *Block) PreviousHash() string { return b.previousHash }
func (b *Block) Proof() uint64        { return b.proof }
func (b *Block) Timestamp() float64   { return b.timestamp }

// Transactions 返回交易列表的副本
func (b *Block) Transactions() []*Transaction {
	cp := make([]*Transaction, len(b.transactions))
	copy(cp, b.transactions)
	return cp
}

// TxCount 交易数（含奖励交易）
func (b *Block) TxCount() int { return len(b.transactions) }

// Reward 返回奖励交易（最后一笔），没有交易时返回 nil
func (b *Block) Reward() *Transaction {
	if len(b.transactions) == 0 {
		return nil
	}
	return b.transactions[len(b.transactions)-1]
}

// WorkTransactions 参与工作量证明的交易：去掉最后一笔奖励交易。
// 只有奖励交易或没有交易时返回空切片。
func (b *Block) WorkTransactions() []*Transaction {
	if len(b.transactions) == 0 {
		return []*Transaction{}
	}
	n := len(b.transactions) - 1
	cp := make([]*Transaction, n)
	copy(cp, b.transactions[:n])
	return cp
}

// CanonicalHashInput 计算区块哈希用的规范编码。
// 字段顺序固定：index, previous_hash, proof, timestamp, transactions。
func (b *Block) CanonicalHashInput() []byte {
	return OrderedFields{
		{Key: "index", Value: b.index},
		{Key: "previous_hash", Value: b.previousHash},
		{Key: "proof", Value: b.proof},
		{Key: "timestamp", Value: json.Number(formatTimestamp(b.timestamp))},
		{Key: "transactions", Value: orderedList(b.transactions)},
	}.Bytes()
}

func formatTimestamp(ts float64) string {
	return strconv.FormatFloat(ts, 'f', -1, 64)
}

// ToRecord 转成存储格式，交易也转成各自的存储格式
func (b *Block) ToRecord() BlockRecord {
	txs := make([]TransactionRecord, 0, len(b.transactions))
	for _, tx := range b.transactions {
		txs = append(txs, tx.ToRecord())
	}
	return BlockRecord{
		Index:        b.index,
		PreviousHash: b.previousHash,
		Transactions: txs,
		Proof:        b.proof,
		Timestamp:    b.timestamp,
	}
}

// BlockFromRecord 从存储格式重建区块
func BlockFromRecord(rec BlockRecord) (*Block, error) {
	if math.IsNaN(rec.Timestamp) || math.IsInf(rec.Timestamp, 0) {
		return nil, malformed("timestamp", "not a finite number")
	}
	txs := make([]*Transaction, 0, len(rec.Transactions))
	for i, r := range rec.Transactions {
		tx, err := TransactionFromRecord(r)
		if err != nil {
			return nil, fmt.Errorf("transaction %d: %w", i, err)
		}
		txs = append(txs, tx)
	}
	return NewBlockAt(rec.Index, rec.PreviousHash, txs, rec.Proof, rec.Timestamp), nil
}

// MarshalJSON 输出存储格式
func (b *Block) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.ToRecord())
}

var blockFields = []string{"index", "previous_hash", "transactions", "proof", "timestamp"}
var txFields = []string{"sender", "recipient", "amount", "signature"}

// DecodeBlockJSON 严格解析存储格式：字段缺失、多余或类型不对都返回 MalformedBlockError
func DecodeBlockJSON(data []byte) (*Block, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, malformed("", "not a JSON object: %v", err)
	}
	if err := requireFields(raw, blockFields, ""); err != nil {
		return nil, err
	}

	var rec BlockRecord
	if err := strictUnmarshal(raw["index"], &rec.Index); err != nil {
		return nil, malformed("index", "want non-negative integer: %v", err)
	}
	if err := strictUnmarshal(raw["previous_hash"], &rec.PreviousHash); err != nil {
		return nil, malformed("previous_hash", "want string: %v", err)
	}
	if err := strictUnmarshal(raw["proof"], &rec.Proof); err != nil {
		return nil, malformed("proof", "want non-negative integer: %v", err)
	}
	if err := strictUnmarshal(raw["timestamp"], &rec.Timestamp); err != nil {
		return nil, malformed("timestamp", "want number: %v", err)
	}

	var rawTxs []map[string]json.RawMessage
	if err := strictUnmarshal(raw["transactions"], &rawTxs); err != nil {
		return nil, malformed("transactions", "want list of objects: %v", err)
	}
	if rawTxs == nil {
		return nil, malformed("transactions", "null")
	}
	rec.Transactions = make([]TransactionRecord, 0, len(rawTxs))
	for i, rt := range rawTxs {
		prefix := fmt.Sprintf("transactions[%d].", i)
		if err := requireFields(rt, txFields, prefix); err != nil {
			return nil, err
		}
		var tr TransactionRecord
		if err := strictUnmarshal(rt["sender"], &tr.Sender); err != nil {
			return nil, malformed(prefix+"sender", "want string: %v", err)
		}
		if err := strictUnmarshal(rt["recipient"], &tr.Recipient); err != nil {
			return nil, malformed(prefix+"recipient", "want string: %v", err)
		}
		if err := strictUnmarshal(rt["signature"], &tr.Signature); err != nil {
			return nil, malformed(prefix+"signature", "want string: %v", err)
		}
		if bytes.Equal(bytes.TrimSpace(rt["amount"]), []byte("null")) {
			return nil, malformed(prefix+"amount", "null")
		}
		if err := tr.Amount.UnmarshalJSON(rt["amount"]); err != nil {
			return nil, malformed(prefix+"amount", "want decimal: %v", err)
		}
		rec.Transactions = append(rec.Transactions, tr)
	}
	return BlockFromRecord(rec)
}

func requireFields(raw map[string]json.RawMessage, fields []string, prefix string) error {
	for _, f := range fields {
		if _, ok := raw[f]; !ok {
			return malformed(prefix+f, "missing")
		}
	}
	if len(raw) != len(fields) {
		for k := range raw {
			if !contains(fields, k) {
				return malformed(prefix+k, "unexpected field")
			}
		}
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// strictUnmarshal 拒绝 null，其余交给 encoding/json 判断类型
func strictUnmarshal(data json.RawMessage, v interface{}) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return fmt.Errorf("null")
	}
	return json.Unmarshal(data, v)
}

// Equal 逐字段比较（含交易顺序）
func (b *Block) Equal(other *Block) bool {
	if b == nil || other == nil {
		return b == other
	}
	if b.index != other.index ||
		b.previousHash != other.previousHash ||
		b.proof != other.proof ||
		b.timestamp != other.timestamp ||
		len(b.transactions) != len(other.transactions) {
		return false
	}
	for i := range b.transactions {
		if !b.transactions[i].Equal(other.transactions[i]) {
			return false
		}
	}
	return true
}

func (b *Block) String() string {
	return string(b.CanonicalHashInput())
}
