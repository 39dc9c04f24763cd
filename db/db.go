package db

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"minichain/config"
	"minichain/logs"

	"github.com/dgraph-io/badger/v2"
	lru "github.com/hashicorp/golang-lru"
)

// ErrNotFound key 不存在
var ErrNotFound = errors.New("not found")

// ErrClosed 数据库已关闭
var ErrClosed = errors.New("database is not initialized or closed")

// Manager 封装 BadgerDB 的管理器
type Manager struct {
	Db *badger.DB
	mu sync.RWMutex

	// 区块缓存：index -> *types.Block
	blockCache *lru.Cache
	cfg        *config.Config
}

// NewManager 按配置打开数据库
func NewManager(cfg *config.Config) (*Manager, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	dbCfg := cfg.Database

	var opts badger.Options
	if dbCfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		// badger v2 不自动创建父目录，需要手动创建
		if err := os.MkdirAll(dbCfg.Path, 0755); err != nil {
			return nil, fmt.Errorf("failed to create db dir: %w", err)
		}
		opts = badger.DefaultOptions(dbCfg.Path).WithSyncWrites(dbCfg.SyncWrites)
	}
	opts = opts.WithLogger(logs.BadgerLogger{})
	if dbCfg.ValueLogFileSize > 0 {
		opts = opts.WithValueLogFileSize(dbCfg.ValueLogFileSize)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	cacheSize := dbCfg.BlockCacheSize
	if cacheSize <= 0 {
		cacheSize = 128
	}
	blockCache, err := lru.New(cacheSize)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	logs.Debug("[DB] opened (inMemory=%v path=%s)", dbCfg.InMemory, dbCfg.Path)
	return &Manager{
		Db:         db,
		blockCache: blockCache,
		cfg:        cfg,
	}, nil
}

func (manager *Manager) handle() (*badger.DB, error) {
	manager.mu.RLock()
	defer manager.mu.RUnlock()
	if manager.Db == nil {
		return nil, ErrClosed
	}
	return manager.Db, nil
}

// Get 读取 key，不存在时返回 ErrNotFound
func (manager *Manager) Get(key string) ([]byte, error) {
	db, err := manager.handle()
	if err != nil {
		return nil, err
	}
	var value []byte
	err = db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Set 同步写入一个 key
func (manager *Manager) Set(key string, value []byte) error {
	return manager.SetBatch(map[string][]byte{key: value})
}

// SetBatch 在一个事务里写入多个 key
func (manager *Manager) SetBatch(kvs map[string][]byte) error {
	db, err := manager.handle()
	if err != nil {
		return err
	}
	return db.Update(func(txn *badger.Txn) error {
		for k, v := range kvs {
			if err := txn.Set([]byte(k), v); err != nil {
				return err
			}
		}
		return nil
	})
}

type writeOp struct {
	key   string
	value []byte
	del   bool
}

// apply 批量写入；单个事务放不下时（ErrTxnTooBig）先提交再开新事务
func (manager *Manager) apply(ops []writeOp) error {
	db, err := manager.handle()
	if err != nil {
		return err
	}
	txn := db.NewTransaction(true)
	defer func() { txn.Discard() }()

	for _, op := range ops {
		err := op.applyTo(txn)
		if errors.Is(err, badger.ErrTxnTooBig) {
			if err := txn.Commit(); err != nil {
				return err
			}
			txn = db.NewTransaction(true)
			err = op.applyTo(txn)
		}
		if err != nil {
			return err
		}
	}
	return txn.Commit()
}

func (op writeOp) applyTo(txn *badger.Txn) error {
	if op.del {
		return txn.Delete([]byte(op.key))
	}
	return txn.Set([]byte(op.key), op.value)
}

// ScanPrefix 按 key 顺序遍历前缀下的所有值
func (manager *Manager) ScanPrefix(prefix string, fn func(key string, value []byte) error) error {
	db, err := manager.handle()
	if err != nil {
		return err
	}
	return db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			item := it.Item()
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if err := fn(string(item.KeyCopy(nil)), val); err != nil {
				return err
			}
		}
		return nil
	})
}

// Close 关闭数据库，可重复调用
func (manager *Manager) Close() error {
	manager.mu.Lock()
	defer manager.mu.Unlock()
	if manager.Db == nil {
		return nil
	}
	err := manager.Db.Close()
	manager.Db = nil
	manager.blockCache.Purge()
	return err
}
