// db/keys.go
package db

import "fmt"

// ===================== 版本控制 =====================
// 全局 Key 版本前缀（"v1" → "v1_<key>"）
const KeyVersion = "v1"

func withVer(s string) string {
	if KeyVersion == "" {
		return s
	}
	return KeyVersion + "_" + s
}

// —— 区块 ——
// 例：v1_block_00000000000000000042（定长，保证按字节序遍历即按高度排序）
func KeyBlock(index uint64) string {
	return withVer(fmt.Sprintf("block_%020d", index))
}

// 所有区块 key 的公共前缀
func KeyBlockPrefix() string {
	return withVer("block_")
}

// 最新区块序号
func KeyLatestBlockIndex() string {
	return withVer("latest_block_index")
}

// —— 交易池 ——
func KeyOpenTransactions() string {
	return withVer("open_txs")
}
