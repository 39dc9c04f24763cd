// 文件路径：utils/hash.go
package utils

import (
	"encoding/hex"

	"minichain/logs"
	"minichain/types"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/spaolacci/murmur3"
)

// HashStr256 SHA-256 摘要，返回 64 位小写 hex
func HashStr256(data []byte) string {
	return hex.EncodeToString(chainhash.HashB(data))
}

// HashBlock 对区块的规范编码求摘要
func HashBlock(block *types.Block) string {
	return HashStr256(block.CanonicalHashInput())
}

// MurmurHash 使用Murmur3哈希算法（非密码学，只用于去重等场景）
func MurmurHash(data []byte) []byte {
	h := murmur3.New64()
	_, err := h.Write(data)
	if err != nil {
		logs.Verbose("hash error: %v", err)
	}
	sum64 := h.Sum64()
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(sum64 >> (8 * i))
	}
	return b
}

// ShortHash MurmurHash 的 hex 形式
func ShortHash(data []byte) string {
	return hex.EncodeToString(MurmurHash(data))
}
