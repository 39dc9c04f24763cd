package types

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// OrderedField 有序字段中的一个键值对
type OrderedField struct {
	Key   string
	Value interface{}
}

// OrderedFields 规范的有序字段表示：JSON 编码时严格按切片顺序输出键，
// 不依赖 map 的遍历顺序。哈希与签名只使用这种表示。
//
// 支持的值类型：string、json.Number、uint64、int、OrderedFields、[]OrderedFields。
type OrderedFields []OrderedField

// MarshalJSON 实现 json.Marshaler
func (f OrderedFields) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	f.appendTo(&buf)
	return buf.Bytes(), nil
}

// Bytes 返回规范编码
func (f OrderedFields) Bytes() []byte {
	var buf bytes.Buffer
	f.appendTo(&buf)
	return buf.Bytes()
}

func (f OrderedFields) appendTo(buf *bytes.Buffer) {
	buf.WriteByte('{')
	for i, kv := range f {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeString(buf, kv.Key)
		buf.WriteByte(':')
		writeValue(buf, kv.Value)
	}
	buf.WriteByte('}')
}

// CanonicalList 把一组有序字段编码成 JSON 数组，空列表编码为 "[]"
func CanonicalList(items []OrderedFields) []byte {
	var buf bytes.Buffer
	appendList(&buf, items)
	return buf.Bytes()
}

func appendList(buf *bytes.Buffer, items []OrderedFields) {
	buf.WriteByte('[')
	for i, it := range items {
		if i > 0 {
			buf.WriteByte(',')
		}
		it.appendTo(buf)
	}
	buf.WriteByte(']')
}

func writeString(buf *bytes.Buffer, s string) {
	// 字符串的 json.Marshal 不会失败
	b, _ := json.Marshal(s)
	buf.Write(b)
}

func writeValue(buf *bytes.Buffer, v interface{}) {
	switch x := v.(type) {
	case string:
		writeString(buf, x)
	case json.Number:
		buf.WriteString(x.String())
	case uint64:
		buf.WriteString(strconv.FormatUint(x, 10))
	case int:
		buf.WriteString(strconv.Itoa(x))
	case OrderedFields:
		x.appendTo(buf)
	case []OrderedFields:
		appendList(buf, x)
	default:
		b, err := json.Marshal(x)
		if err != nil {
			buf.WriteString("null")
			return
		}
		buf.Write(b)
	}
}
