package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"minichain/chain"
	"minichain/config"
	"minichain/db"
	"minichain/logs"
	"minichain/wallet"
)

func main() {
	// 1. 解析命令行参数
	var (
		configFile = flag.String("config", "", "config file path")
		dataPath   = flag.String("data", "", "database directory (overrides config)")
		difficulty = flag.Int("difficulty", -1, "proof-of-work leading zeros (overrides config)")
		runMode    = flag.String("mode", "mine", "run mode: mine|verify|balance")
		blocks     = flag.Int("blocks", 1, "number of blocks to mine in mine mode")
		keyFile    = flag.String("wallet", "", "wallet key file (overrides config)")
		passphrase = flag.String("passphrase", "", "wallet passphrase")
	)
	flag.Parse()

	// 2. 加载配置
	cfg, err := loadConfig(*configFile, *dataPath, *difficulty, *keyFile)
	if err != nil {
		logs.Error("Failed to load config: %v", err)
		os.Exit(1)
	}
	logs.SetLevel(logs.ParseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. 根据运行模式启动
	switch *runMode {
	case "mine":
		err = runMiner(ctx, cfg, *passphrase, *blocks)
	case "verify":
		err = runVerify(cfg)
	case "balance":
		err = runBalance(cfg, *passphrase)
	default:
		err = fmt.Errorf("unknown run mode: %s", *runMode)
	}
	if err != nil {
		logs.Error("%v", err)
		os.Exit(1)
	}
}

// loadConfig 读取配置文件，再用命令行参数覆盖
func loadConfig(configFile, dataPath string, difficulty int, keyFile string) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if configFile != "" {
		logs.Info("Loading config from file: %s", configFile)
		loaded, err := config.LoadFromFile(configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if dataPath != "" {
		cfg.Database.Path = dataPath
	}
	if difficulty >= 0 {
		cfg.Chain.PowLeadingZeros = difficulty
	}
	if keyFile != "" {
		cfg.Wallet.KeyFile = keyFile
	}
	return cfg, cfg.Validate()
}

// loadOrCreateWallet 钱包文件不存在时生成新密钥并保存
func loadOrCreateWallet(cfg *config.Config, passphrase string) (*wallet.Wallet, error) {
	w, err := wallet.LoadWallet(cfg.Wallet.KeyFile, passphrase)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	w, err = wallet.NewWallet()
	if err != nil {
		return nil, err
	}
	if err := w.SaveKeys(cfg.Wallet.KeyFile, passphrase, cfg.Wallet); err != nil {
		return nil, err
	}
	logs.Info("Created new wallet at %s", cfg.Wallet.KeyFile)
	return w, nil
}

func openLedger(cfg *config.Config, hostingNode string) (*chain.Blockchain, *db.Manager, error) {
	store, err := db.NewManager(cfg)
	if err != nil {
		return nil, nil, err
	}
	bc, err := chain.NewBlockchain(cfg, store, hostingNode)
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	return bc, store, nil
}

// runMiner 连续出 n 个块，结束后校验整条链
func runMiner(ctx context.Context, cfg *config.Config, passphrase string, n int) error {
	w, err := loadOrCreateWallet(cfg, passphrase)
	if err != nil {
		return err
	}
	logs.SetNode(w.PublicKey())

	bc, store, err := openLedger(cfg, w.PublicKey())
	if err != nil {
		return err
	}
	defer store.Close()

	for i := 0; i < n; i++ {
		block, err := bc.MineBlock(ctx)
		if err != nil {
			return fmt.Errorf("mine block: %w", err)
		}
		logs.Info("Block %d mined, proof=%d txs=%d", block.Index(), block.Proof(), block.TxCount())
	}
	if !bc.Verify() {
		return errors.New("chain verification failed")
	}
	logs.Info("Chain height=%d, balance=%s", bc.Height(), bc.GetBalance(w.PublicKey()))
	for name, s := range bc.Latency() {
		logs.Verbose("[Stats] %s count=%d p50=%v p95=%v max=%v", name, s.Count, s.P50, s.P95, s.Max)
	}
	return nil
}

func runVerify(cfg *config.Config) error {
	bc, store, err := openLedger(cfg, "")
	if err != nil {
		return err
	}
	defer store.Close()

	if !bc.Verify() {
		return errors.New("chain verification failed")
	}
	tip := bc.LastBlock()
	logs.Info("Chain of %d blocks is valid, tip=%d (%s), %d open transactions",
		bc.Height(), tip.Index(), bc.LastHash(), len(bc.OpenTransactions()))
	return nil
}

func runBalance(cfg *config.Config, passphrase string) error {
	w, err := wallet.LoadWallet(cfg.Wallet.KeyFile, passphrase)
	if err != nil {
		return err
	}
	bc, store, err := openLedger(cfg, "")
	if err != nil {
		return err
	}
	defer store.Close()

	addr, err := w.Address()
	if err != nil {
		return err
	}
	fmt.Printf("%s\t%s\n", addr, bc.GetBalance(w.PublicKey()))
	return nil
}
