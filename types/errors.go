package types

import "fmt"

// MalformedBlockError 从存储/传输格式重建区块时，字段缺失或类型不对
type MalformedBlockError struct {
	Field  string
	Reason string
}

func (e *MalformedBlockError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("malformed block: %s", e.Reason)
	}
	return fmt.Sprintf("malformed block: field %q: %s", e.Field, e.Reason)
}

func malformed(field, format string, v ...interface{}) *MalformedBlockError {
	return &MalformedBlockError{Field: field, Reason: fmt.Sprintf(format, v...)}
}
