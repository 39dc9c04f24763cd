// config/config.go
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
)

// Config 主配置结构
type Config struct {
	Chain    ChainConfig    `json:"chain"`
	Database DatabaseConfig `json:"database"`
	TxPool   TxPoolConfig   `json:"txpool"`
	Wallet   WalletConfig   `json:"wallet"`
	LogLevel string         `json:"logLevel"` // trace|debug|verbose|info|warn|error
}

// ChainConfig 链参数
type ChainConfig struct {
	// 工作量证明难度：摘要前导 '0' 的个数（POW_LEADING_ZEROS）
	PowLeadingZeros int `json:"powLeadingZeros"` // 2

	// 出块奖励
	MiningReward decimal.Decimal `json:"miningReward"` // 10

	// 创世区块的 proof，所有节点必须一致
	GenesisProof uint64 `json:"genesisProof"` // 100

	// 单个区块最多打包的交易数（不含奖励交易），0 表示不限制
	MaxTxsPerBlock int `json:"maxTxsPerBlock"` // 0
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// BadgerDB配置
	Path             string `json:"path"`             // "./data"
	InMemory         bool   `json:"inMemory"`         // false
	ValueLogFileSize int64  `json:"valueLogFileSize"` // 64 << 20 (64MB)
	SyncWrites       bool   `json:"syncWrites"`       // true

	// 缓存配置
	BlockCacheSize int `json:"blockCacheSize"` // 128
}

// TxPoolConfig 交易池配置
type TxPoolConfig struct {
	MaxPendingTxs  int `json:"maxPendingTxs"`  // 10000
	DedupCacheSize int `json:"dedupCacheSize"` // 100000
}

// WalletConfig 钱包配置
type WalletConfig struct {
	KeyFile string `json:"keyFile"` // "./wallet.json"
	// scrypt 参数
	ScryptN int `json:"scryptN"` // 1 << 15
	ScryptR int `json:"scryptR"` // 8
	ScryptP int `json:"scryptP"` // 1
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Chain: ChainConfig{
			PowLeadingZeros: 2,
			MiningReward:    decimal.NewFromInt(10),
			GenesisProof:    100,
			MaxTxsPerBlock:  0,
		},
		Database: DatabaseConfig{
			Path:             "./data",
			InMemory:         false,
			ValueLogFileSize: 64 << 20,
			SyncWrites:       true,
			BlockCacheSize:   128,
		},
		TxPool: TxPoolConfig{
			MaxPendingTxs:  10000,
			DedupCacheSize: 100000,
		},
		Wallet: WalletConfig{
			KeyFile: "./wallet.json",
			ScryptN: 1 << 15,
			ScryptR: 8,
			ScryptP: 1,
		},
		LogLevel: "info",
	}
}

// LoadFromFile 从 JSON 文件加载配置，文件不存在时返回默认配置。
// 文件中缺省的字段保留默认值。
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 验证配置合法性
func (c *Config) Validate() error {
	if c.Chain.PowLeadingZeros < 0 || c.Chain.PowLeadingZeros > 64 {
		return fmt.Errorf("PowLeadingZeros must be in [0, 64], got %d", c.Chain.PowLeadingZeros)
	}
	if !c.Chain.MiningReward.IsPositive() {
		return fmt.Errorf("MiningReward must be positive")
	}
	if c.Chain.MaxTxsPerBlock < 0 {
		return fmt.Errorf("MaxTxsPerBlock must not be negative")
	}
	if !c.Database.InMemory && c.Database.Path == "" {
		return fmt.Errorf("database path is required unless inMemory is set")
	}
	if c.Database.BlockCacheSize <= 0 {
		return fmt.Errorf("BlockCacheSize must be positive")
	}
	if c.TxPool.MaxPendingTxs <= 0 {
		return fmt.Errorf("MaxPendingTxs must be positive")
	}
	if c.TxPool.DedupCacheSize <= 0 {
		return fmt.Errorf("DedupCacheSize must be positive")
	}
	return nil
}
