package types

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// MiningSender 奖励交易的发送方标识，奖励交易没有签名
const MiningSender = "MINING"

// Transaction 一笔转账。创建后只读。
//
// sender 是发送方的压缩公钥（hex），奖励交易为 MiningSender。
type Transaction struct {
	sender    string
	recipient string
	amount    decimal.Decimal
	signature string
}

// TransactionRecord 交易的存储/传输格式
type TransactionRecord struct {
	Sender    string          `json:"sender"`
	Recipient string          `json:"recipient"`
	Amount    decimal.Decimal `json:"amount"`
	Signature string          `json:"signature"`
}

// NewTransaction 构造交易，不做任何校验（校验由 verification 负责）
func NewTransaction(sender, recipient string, amount decimal.Decimal, signature string) *Transaction {
	return &Transaction{
		sender:    sender,
		recipient: recipient,
		amount:    amount,
		signature: signature,
	}
}

// NewRewardTransaction 构造给矿工的奖励交易
func NewRewardTransaction(recipient string, amount decimal.Decimal) *Transaction {
	return NewTransaction(MiningSender, recipient, amount, "")
}

func (tx *Transaction) Sender() string          { return tx.sender }
func (tx *Transaction) Recipient() string       { return tx.recipient }
func (tx *Transaction) Amount() decimal.Decimal { return tx.amount }
func (tx *Transaction) Signature() string       { return tx.signature }

// IsReward 是否为出块奖励交易
func (tx *Transaction) IsReward() bool {
	return tx.sender == MiningSender
}

// ToOrderedFields 规范有序表示，字段顺序固定为 sender, recipient, amount, signature
func (tx *Transaction) ToOrderedFields() OrderedFields {
	return OrderedFields{
		{Key: "sender", Value: tx.sender},
		{Key: "recipient", Value: tx.recipient},
		{Key: "amount", Value: json.Number(tx.amount.String())},
		{Key: "signature", Value: tx.signature},
	}
}

// SigningPayload 签名覆盖的内容：不含 signature 的规范表示
func (tx *Transaction) SigningPayload() []byte {
	return SigningPayload(tx.sender, tx.recipient, tx.amount)
}

// SigningPayload 钱包签名前就需要这份数据，此时交易还没有创建
func SigningPayload(sender, recipient string, amount decimal.Decimal) []byte {
	return OrderedFields{
		{Key: "sender", Value: sender},
		{Key: "recipient", Value: recipient},
		{Key: "amount", Value: json.Number(amount.String())},
	}.Bytes()
}

// ToRecord 转成存储格式
func (tx *Transaction) ToRecord() TransactionRecord {
	return TransactionRecord{
		Sender:    tx.sender,
		Recipient: tx.recipient,
		Amount:    tx.amount,
		Signature: tx.signature,
	}
}

// TransactionFromRecord 从存储格式重建交易。
// 字段缺失由 DecodeBlockJSON / BlockFromStruct 检查，这里接受 ToRecord 能产生的任何值。
func TransactionFromRecord(rec TransactionRecord) (*Transaction, error) {
	return NewTransaction(rec.Sender, rec.Recipient, rec.Amount, rec.Signature), nil
}

// Equal 逐字段比较
func (tx *Transaction) Equal(other *Transaction) bool {
	if tx == nil || other == nil {
		return tx == other
	}
	return tx.sender == other.sender &&
		tx.recipient == other.recipient &&
		tx.amount.Equal(other.amount) &&
		tx.signature == other.signature
}

// CanonicalTransactions 交易列表的规范编码（JSON 数组，保持原顺序）
func CanonicalTransactions(txs []*Transaction) []byte {
	return CanonicalList(orderedList(txs))
}

func orderedList(txs []*Transaction) []OrderedFields {
	out := make([]OrderedFields, 0, len(txs))
	for _, tx := range txs {
		out = append(out, tx.ToOrderedFields())
	}
	return out
}
