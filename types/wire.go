package types

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// 超过 2^53 的整数放进 protobuf 的 double 会丢精度
const maxExactInteger = 1 << 53

// ToStruct 把存储格式转成 protobuf Struct（网络传输 / 落盘用）。
// 金额以字符串保存，避免浮点误差。
func (b *Block) ToStruct() (*structpb.Struct, error) {
	if b.index > maxExactInteger || b.proof > maxExactInteger {
		return nil, fmt.Errorf("block %d: index/proof too large for wire format", b.index)
	}
	txs := make([]interface{}, 0, len(b.transactions))
	for _, tx := range b.transactions {
		txs = append(txs, map[string]interface{}{
			"sender":    tx.sender,
			"recipient": tx.recipient,
			"amount":    tx.amount.String(),
			"signature": tx.signature,
		})
	}
	return structpb.NewStruct(map[string]interface{}{
		"index":         b.index,
		"previous_hash": b.previousHash,
		"transactions":  txs,
		"proof":         b.proof,
		"timestamp":     b.timestamp,
	})
}

// BlockFromStruct 从 protobuf Struct 重建区块
func BlockFromStruct(s *structpb.Struct) (*Block, error) {
	if s == nil {
		return nil, malformed("", "nil struct")
	}
	fields := s.GetFields()
	for _, f := range blockFields {
		if _, ok := fields[f]; !ok {
			return nil, malformed(f, "missing")
		}
	}

	var rec BlockRecord
	var err error
	if rec.Index, err = wireUint(fields["index"]); err != nil {
		return nil, malformed("index", "%v", err)
	}
	if rec.Proof, err = wireUint(fields["proof"]); err != nil {
		return nil, malformed("proof", "%v", err)
	}
	if rec.PreviousHash, err = wireString(fields["previous_hash"]); err != nil {
		return nil, malformed("previous_hash", "%v", err)
	}
	ts, ok := fields["timestamp"].GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return nil, malformed("timestamp", "want number")
	}
	rec.Timestamp = ts.NumberValue

	list, ok := fields["transactions"].GetKind().(*structpb.Value_ListValue)
	if !ok {
		return nil, malformed("transactions", "want list")
	}
	for i, v := range list.ListValue.GetValues() {
		prefix := fmt.Sprintf("transactions[%d].", i)
		obj, ok := v.GetKind().(*structpb.Value_StructValue)
		if !ok {
			return nil, malformed(prefix[:len(prefix)-1], "want object")
		}
		tf := obj.StructValue.GetFields()
		var tr TransactionRecord
		for _, f := range txFields {
			val, ok := tf[f]
			if !ok {
				return nil, malformed(prefix+f, "missing")
			}
			str, err := wireString(val)
			if err != nil {
				return nil, malformed(prefix+f, "%v", err)
			}
			switch f {
			case "sender":
				tr.Sender = str
			case "recipient":
				tr.Recipient = str
			case "signature":
				tr.Signature = str
			case "amount":
				if tr.Amount, err = decimal.NewFromString(str); err != nil {
					return nil, malformed(prefix+f, "want decimal: %v", err)
				}
			}
		}
		rec.Transactions = append(rec.Transactions, tr)
	}
	return BlockFromRecord(rec)
}

// MarshalProto 区块的二进制 protobuf 编码
func (b *Block) MarshalProto() ([]byte, error) {
	s, err := b.ToStruct()
	if err != nil {
		return nil, err
	}
	return proto.Marshal(s)
}

// UnmarshalBlockProto 解析 MarshalProto 的输出
func UnmarshalBlockProto(data []byte) (*Block, error) {
	s := &structpb.Struct{}
	if err := proto.Unmarshal(data, s); err != nil {
		return nil, malformed("", "bad protobuf: %v", err)
	}
	return BlockFromStruct(s)
}

func wireUint(v *structpb.Value) (uint64, error) {
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, fmt.Errorf("want number")
	}
	f := n.NumberValue
	if f < 0 || f != math.Trunc(f) || f > maxExactInteger {
		return 0, fmt.Errorf("want non-negative integer, got %v", f)
	}
	return uint64(f), nil
}

func wireString(v *structpb.Value) (string, error) {
	s, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return "", fmt.Errorf("want string")
	}
	return s.StringValue, nil
}
