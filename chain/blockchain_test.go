package chain

import (
	"context"
	"errors"
	"testing"

	"minichain/config"
	"minichain/db"
	"minichain/stats"
	"minichain/txpool"
	"minichain/types"
	"minichain/utils"
	"minichain/verification"
	"minichain/wallet"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Database.InMemory = true
	return cfg
}

func newStore(t *testing.T, cfg *config.Config) *db.Manager {
	t.Helper()
	store, err := db.NewManager(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newWallet(t *testing.T) *wallet.Wallet {
	t.Helper()
	w, err := wallet.NewWallet()
	require.NoError(t, err)
	return w
}

func newLedger(t *testing.T, host string) *Blockchain {
	t.Helper()
	cfg := testConfig()
	bc, err := NewBlockchain(cfg, newStore(t, cfg), host)
	require.NoError(t, err)
	return bc
}

func send(t *testing.T, bc *Blockchain, from *wallet.Wallet, to string, amount int64) error {
	t.Helper()
	amt := decimal.NewFromInt(amount)
	sig, err := from.SignTransaction(from.PublicKey(), to, amt)
	require.NoError(t, err)
	return bc.AddTransaction(to, from.PublicKey(), sig, amt)
}

func TestNewBlockchainCreatesGenesis(t *testing.T) {
	bc := newLedger(t, "")
	chain := bc.Chain()
	require.Len(t, chain, 1)
	assert.True(t, chain[0].Equal(GenesisBlock(testConfig())))
	assert.Equal(t, utils.HashBlock(chain[0]), bc.LastHash())
	assert.True(t, bc.Verify())
	assert.Empty(t, bc.OpenTransactions())
}

func TestMineBlockRequiresHostingNode(t *testing.T) {
	cfg := testConfig()
	store := newStore(t, cfg)
	bc, err := NewBlockchain(cfg, store, "")
	require.NoError(t, err)
	_, err = bc.MineBlock(context.Background())
	assert.ErrorIs(t, err, ErrNoHostingNode)
	assert.Equal(t, 1, bc.Height())

	miner := newWallet(t)
	bc, err = NewBlockchain(cfg, store, miner.PublicKey())
	require.NoError(t, err)
	_, err = bc.MineBlock(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, bc.Height())
}

func TestTransactionLifecycle(t *testing.T) {
	alice := newWallet(t)
	bob := newWallet(t)
	bc := newLedger(t, alice.PublicKey())
	ctx := context.Background()

	// 没有余额，不能转账
	err := send(t, bc, alice, bob.PublicKey(), 1)
	assert.ErrorIs(t, err, ErrInvalidTransaction)
	assert.ErrorIs(t, err, verification.ErrInsufficientFunds)

	reward, err := bc.MineBlock(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, reward.TxCount())
	assert.True(t, reward.Reward().IsReward())
	assert.True(t, decimal.NewFromInt(10).Equal(bc.GetBalance(alice.PublicKey())))

	require.NoError(t, send(t, bc, alice, bob.PublicKey(), 3))
	assert.True(t, decimal.NewFromInt(7).Equal(bc.GetBalance(alice.PublicKey())))
	assert.True(t, bc.GetBalance(bob.PublicKey()).IsZero(), "open txs do not credit the recipient")

	err = send(t, bc, alice, bob.PublicKey(), 3)
	assert.ErrorIs(t, err, txpool.ErrDuplicateTx)

	err = send(t, bc, alice, bob.PublicKey(), 8)
	assert.ErrorIs(t, err, verification.ErrInsufficientFunds)

	err = bc.AddTransaction(bob.PublicKey(), alice.PublicKey(), "3045deadbeef", decimal.NewFromInt(1))
	assert.ErrorIs(t, err, verification.ErrBadSignature)

	require.Len(t, bc.OpenTransactions(), 1)

	block, err := bc.MineBlock(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, block.TxCount())
	assert.Equal(t, uint64(2), block.Index())
	assert.Empty(t, bc.OpenTransactions())
	assert.True(t, verification.ValidProof(block.WorkTransactions(), block.PreviousHash(), block.Proof(), 2))

	assert.True(t, decimal.NewFromInt(17).Equal(bc.GetBalance(alice.PublicKey())))
	assert.True(t, decimal.NewFromInt(3).Equal(bc.GetBalance(bob.PublicKey())))
	assert.True(t, bc.Verify())

	latency := bc.Latency()
	assert.Equal(t, uint64(2), latency[stats.MetricMineBlock].Count)
	assert.Equal(t, uint64(5), latency[stats.MetricAddTx].Count)

	// 同一笔交易再次提交被防重放拦截
	err = send(t, bc, alice, bob.PublicKey(), 3)
	assert.ErrorIs(t, err, txpool.ErrReplayedTx)
}

func TestReloadFromStore(t *testing.T) {
	alice := newWallet(t)
	bob := newWallet(t)
	cfg := testConfig()
	store := newStore(t, cfg)

	bc, err := NewBlockchain(cfg, store, alice.PublicKey())
	require.NoError(t, err)
	_, err = bc.MineBlock(context.Background())
	require.NoError(t, err)
	require.NoError(t, send(t, bc, alice, bob.PublicKey(), 4))

	reloaded, err := NewBlockchain(cfg, store, "")
	require.NoError(t, err)
	assert.Equal(t, bc.Height(), reloaded.Height())
	assert.Equal(t, bc.LastHash(), reloaded.LastHash())
	require.Len(t, reloaded.OpenTransactions(), 1)
	assert.True(t, bc.OpenTransactions()[0].Equal(reloaded.OpenTransactions()[0]))
	assert.True(t, decimal.NewFromInt(6).Equal(reloaded.GetBalance(alice.PublicKey())))
}

func TestReloadRejectsTamperedChain(t *testing.T) {
	cfg := testConfig()
	store := newStore(t, cfg)
	bc, err := NewBlockchain(cfg, store, newWallet(t).PublicKey())
	require.NoError(t, err)
	_, err = bc.MineBlock(context.Background())
	require.NoError(t, err)

	chain := bc.Chain()
	forged := types.NewBlockAt(1, "not-the-genesis-hash", chain[1].Transactions(), chain[1].Proof(), chain[1].Timestamp())
	require.NoError(t, store.SaveChain([]*types.Block{chain[0], forged}))

	_, err = NewBlockchain(cfg, store, "")
	var linkErr *verification.ChainLinkageError
	assert.True(t, errors.As(err, &linkErr))
}

func TestMaxTxsPerBlock(t *testing.T) {
	alice := newWallet(t)
	cfg := testConfig()
	cfg.Chain.MaxTxsPerBlock = 1
	bc, err := NewBlockchain(cfg, newStore(t, cfg), alice.PublicKey())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = bc.MineBlock(ctx)
	require.NoError(t, err)
	require.NoError(t, send(t, bc, alice, newWallet(t).PublicKey(), 1))
	require.NoError(t, send(t, bc, alice, newWallet(t).PublicKey(), 2))

	block, err := bc.MineBlock(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, block.TxCount())
	assert.Len(t, bc.OpenTransactions(), 1)

	proof, err := bc.ProofOfWork(ctx)
	require.NoError(t, err)
	assert.True(t, verification.ValidProof(bc.OpenTransactions(), bc.LastHash(), proof, cfg.Chain.PowLeadingZeros))
}

func TestAddBlockFromPeer(t *testing.T) {
	alice := newWallet(t)
	bob := newWallet(t)
	miner := newLedger(t, alice.PublicKey())
	peer := newLedger(t, "")
	ctx := context.Background()

	b1, err := miner.MineBlock(ctx)
	require.NoError(t, err)
	require.NoError(t, peer.AddBlock(b1))

	require.NoError(t, send(t, miner, alice, bob.PublicKey(), 5))
	// 对端也收到了这笔交易
	require.NoError(t, send(t, peer, alice, bob.PublicKey(), 5))
	b2, err := miner.MineBlock(ctx)
	require.NoError(t, err)
	require.NoError(t, peer.AddBlock(b2))

	assert.Equal(t, miner.LastHash(), peer.LastHash())
	assert.Empty(t, peer.OpenTransactions())
	assert.True(t, decimal.NewFromInt(5).Equal(peer.GetBalance(bob.PublicKey())))

	// 重复导入：序号接不上
	err = peer.AddBlock(b2)
	assert.ErrorIs(t, err, ErrBlockRejected)
	var linkErr *verification.ChainLinkageError
	assert.True(t, errors.As(err, &linkErr))

	assert.ErrorIs(t, peer.AddBlock(nil), ErrBlockRejected)
}

func TestAddBlockRejectsBadBlocks(t *testing.T) {
	alice := newWallet(t)
	bob := newWallet(t)
	bc := newLedger(t, alice.PublicKey())
	lastHash := bc.LastHash()
	reward := types.NewRewardTransaction(alice.PublicKey(), decimal.NewFromInt(10))

	// 错误的 proof
	proof, err := MineProof(context.Background(), nil, lastHash, 2)
	require.NoError(t, err)
	bad := types.NewBlock(1, lastHash, []*types.Transaction{reward}, proof+1)
	if !verification.ValidProof(nil, lastHash, proof+1, 2) {
		var proofErr *verification.InvalidProofError
		assert.True(t, errors.As(bc.AddBlock(bad), &proofErr))
	}

	// 奖励过高
	greedy := types.NewRewardTransaction(alice.PublicKey(), decimal.NewFromInt(11))
	err = bc.AddBlock(types.NewBlock(1, lastHash, []*types.Transaction{greedy}, proof))
	assert.ErrorIs(t, err, ErrBlockRejected)

	// 签名不对的交易
	forged := types.NewTransaction(bob.PublicKey(), alice.PublicKey(), decimal.NewFromInt(1), "3045")
	txs := []*types.Transaction{forged}
	forgedProof, err := MineProof(context.Background(), txs, lastHash, 2)
	require.NoError(t, err)
	err = bc.AddBlock(types.NewBlock(1, lastHash, append(txs, reward), forgedProof))
	assert.ErrorIs(t, err, verification.ErrBadSignature)

	// 缺少奖励交易
	err = bc.AddBlock(types.NewBlock(1, lastHash, nil, proof))
	assert.ErrorIs(t, err, ErrBlockRejected)

	// 负的奖励会扣减接收方余额
	negative := types.NewRewardTransaction(bob.PublicKey(), decimal.NewFromInt(-1000))
	err = bc.AddBlock(types.NewBlock(1, lastHash, []*types.Transaction{negative}, proof))
	assert.ErrorIs(t, err, ErrBlockRejected)

	zero := types.NewRewardTransaction(bob.PublicKey(), decimal.Zero)
	err = bc.AddBlock(types.NewBlock(1, lastHash, []*types.Transaction{zero}, proof))
	assert.ErrorIs(t, err, ErrBlockRejected)

	nobody := types.NewRewardTransaction("", decimal.NewFromInt(10))
	err = bc.AddBlock(types.NewBlock(1, lastHash, []*types.Transaction{nobody}, proof))
	assert.ErrorIs(t, err, ErrBlockRejected)
	assert.True(t, bc.GetBalance(bob.PublicKey()).IsZero())

	assert.Equal(t, 1, bc.Height())
	require.NoError(t, bc.AddBlock(types.NewBlock(1, lastHash, []*types.Transaction{reward}, proof)))
	assert.Equal(t, 2, bc.Height())
}

func TestResolveConflicts(t *testing.T) {
	alice := newWallet(t)
	bob := newWallet(t)
	long := newLedger(t, alice.PublicKey())
	short := newLedger(t, bob.PublicKey())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := long.MineBlock(ctx)
		require.NoError(t, err)
	}
	_, err := short.MineBlock(ctx)
	require.NoError(t, err)
	require.NoError(t, send(t, short, bob, alice.PublicKey(), 1))

	replaced, err := long.ResolveConflicts(short.Chain())
	require.NoError(t, err)
	assert.False(t, replaced)

	replaced, err = short.ResolveConflicts(long.Chain())
	require.NoError(t, err)
	assert.True(t, replaced)
	assert.Equal(t, long.LastHash(), short.LastHash())
	assert.Empty(t, short.OpenTransactions())
	assert.True(t, short.GetBalance(bob.PublicKey()).IsZero())
	assert.True(t, decimal.NewFromInt(30).Equal(short.GetBalance(alice.PublicKey())))

	// 末尾区块重复，序号接不上
	candidate := long.Chain()
	candidate = append(candidate, candidate[len(candidate)-1])
	_, err = short.ResolveConflicts(candidate)
	assert.ErrorIs(t, err, ErrBlockRejected)
}

func TestResolveConflictsAppliesBlockRules(t *testing.T) {
	bob := newWallet(t)
	thief := newWallet(t)
	bc := newLedger(t, bob.PublicKey())
	genesis := bc.Chain()[0]
	genesisHash := utils.HashBlock(genesis)
	ctx := context.Background()

	candidateWith := func(txs []*types.Transaction, reward *types.Transaction) []*types.Block {
		proof, err := MineProof(ctx, txs, genesisHash, 2)
		require.NoError(t, err)
		b1 := types.NewBlock(1, genesisHash, append(append([]*types.Transaction{}, txs...), reward), proof)
		p2, err := MineProof(ctx, nil, utils.HashBlock(b1), 2)
		require.NoError(t, err)
		b2 := types.NewBlock(2, utils.HashBlock(b1), []*types.Transaction{reward}, p2)
		return []*types.Block{genesis, b1, b2}
	}

	// 伪造签名花掉别人的钱
	forged := types.NewTransaction(bob.PublicKey(), thief.PublicKey(), decimal.NewFromInt(500), "3045")
	fair := types.NewRewardTransaction(thief.PublicKey(), decimal.NewFromInt(10))
	replaced, err := bc.ResolveConflicts(candidateWith([]*types.Transaction{forged}, fair))
	assert.False(t, replaced)
	assert.ErrorIs(t, err, ErrBlockRejected)
	assert.ErrorIs(t, err, verification.ErrBadSignature)

	// 超额奖励
	greedy := types.NewRewardTransaction(thief.PublicKey(), decimal.NewFromInt(1000000))
	replaced, err = bc.ResolveConflicts(candidateWith(nil, greedy))
	assert.False(t, replaced)
	assert.ErrorIs(t, err, ErrBlockRejected)

	negative := types.NewRewardTransaction(bob.PublicKey(), decimal.NewFromInt(-5))
	replaced, err = bc.ResolveConflicts(candidateWith(nil, negative))
	assert.False(t, replaced)
	assert.ErrorIs(t, err, ErrBlockRejected)

	assert.Equal(t, 1, bc.Height())
	assert.True(t, bc.GetBalance(thief.PublicKey()).IsZero())

	replaced, err = bc.ResolveConflicts(candidateWith(nil, fair))
	require.NoError(t, err)
	assert.True(t, replaced)
	assert.True(t, decimal.NewFromInt(20).Equal(bc.GetBalance(thief.PublicKey())))
}

func TestReloadAfterPaymentToEmptyRecipient(t *testing.T) {
	alice := newWallet(t)
	cfg := testConfig()
	store := newStore(t, cfg)
	bc, err := NewBlockchain(cfg, store, alice.PublicKey())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = bc.MineBlock(ctx)
	require.NoError(t, err)
	require.NoError(t, send(t, bc, alice, "", 1))
	_, err = bc.MineBlock(ctx)
	require.NoError(t, err)

	reloaded, err := NewBlockchain(cfg, store, "")
	require.NoError(t, err)
	assert.Equal(t, bc.LastHash(), reloaded.LastHash())
	assert.True(t, reloaded.Verify())
	assert.True(t, decimal.NewFromInt(19).Equal(reloaded.GetBalance(alice.PublicKey())))
}

func TestReloadRejectsStaleLatestIndex(t *testing.T) {
	cfg := testConfig()
	store := newStore(t, cfg)
	bc, err := NewBlockchain(cfg, store, newWallet(t).PublicKey())
	require.NoError(t, err)
	_, err = bc.MineBlock(context.Background())
	require.NoError(t, err)

	require.NoError(t, store.Set(db.KeyLatestBlockIndex(), []byte("0")))
	_, err = NewBlockchain(cfg, store, "")
	assert.Error(t, err)
}

func TestMineProof(t *testing.T) {
	proof, err := MineProof(context.Background(), nil, "abc", 1)
	require.NoError(t, err)
	assert.True(t, verification.ValidProof(nil, "abc", proof, 1))

	proof, err = MineProof(context.Background(), nil, "abc", 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), proof)

	_, err = MineProof(context.Background(), nil, "abc", verification.MaxLeadingZeros+1)
	assert.ErrorIs(t, err, ErrProofSpaceExhausted)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = MineProof(ctx, nil, "abc", 8)
	assert.ErrorIs(t, err, context.Canceled)
}
