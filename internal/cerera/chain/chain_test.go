package chain

import (
	"math/big"
	"testing"
	"time"

	"github.com/cerera/internal/cerera/block"
	"github.com/cerera/internal/cerera/common"
	"github.com/cerera/internal/cerera/config"
	"github.com/cerera/internal/cerera/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{
		POOL:      config.PoolConfig{MinGas: 1, MaxSize: 1000},
		CONSENSUS: config.DefaultConsensusConfig(),
	}
}

func newTestChain(t *testing.T) (*Chain, types.Address) {
	t.Helper()
	nodeAddr := types.HexToAddress("0x94F369F35D4323dF9980eDF0E1bEdb882C4705e984Bb01aceE5B80F4b6Ad1A81a976278d1245dC6863CfF8ec7F99b5B6")
	genesis := block.GenerateGenesis(nodeAddr)
	c := New(testConfig(), genesis, []types.Address{nodeAddr}, WithPersistPath(t.TempDir()+"/chain.dat"))
	return c, nodeAddr
}

func TestNewSeedsGenesis(t *testing.T) {
	c, _ := newTestChain(t)
	lcl := c.LastClosedLedger()
	require.NotNil(t, lcl)
	assert.Equal(t, uint64(0), lcl.Index)
}

func TestApplyBlockAdvancesLedger(t *testing.T) {
	c, _ := newTestChain(t)
	prev := c.LastBlock()

	cv := &ConsensusValue{
		LedgerSeq:          prev.Head.Index + 1,
		PreviousLedgerHash: prev.Hash,
		CloseTime:          uint64(time.Now().Unix()),
		TxSet:              nil,
	}
	raw, err := cv.Encode()
	require.NoError(t, err)

	require.NoError(t, c.ApplyBlock(raw, nil))

	lcl := c.LastClosedLedger()
	assert.Equal(t, prev.Head.Index+1, lcl.Index)
	assert.Equal(t, cv.CloseTime, lcl.CloseTime)
}

func TestApplyBlockRejectsWrongPrevHash(t *testing.T) {
	c, _ := newTestChain(t)
	cv := &ConsensusValue{
		LedgerSeq:          99,
		PreviousLedgerHash: common.BytesToHash([]byte("not the real previous hash")),
		CloseTime:          uint64(time.Now().Unix()),
	}
	raw, err := cv.Encode()
	require.NoError(t, err)
	err = c.ApplyBlock(raw, nil)
	assert.Error(t, err)
}

func TestComposeValueUsesLastClosedLedger(t *testing.T) {
	c, _ := newTestChain(t)
	prev := c.LastBlock()
	cv := c.ComposeValue(nil, time.Now(), nil)
	assert.Equal(t, prev.Head.Index+1, cv.LedgerSeq)
	assert.Equal(t, prev.Hash, cv.PreviousLedgerHash)
}

func TestGetFeeConfigReflectsPoolMinGas(t *testing.T) {
	c, _ := newTestChain(t)
	gasPrice, _ := c.GetFeeConfig()
	assert.Equal(t, big.NewInt(1), gasPrice)
}

func TestGetValidatorsReturnsConfiguredSet(t *testing.T) {
	c, addr := newTestChain(t)
	got := c.GetValidators(0)
	require.Len(t, got, 1)
	assert.Equal(t, addr, got[0])
}

func TestConsensusValueFromDBRoundTrips(t *testing.T) {
	c, _ := newTestChain(t)
	prev := c.LastBlock()
	cv := &ConsensusValue{
		LedgerSeq:          prev.Head.Index + 1,
		PreviousLedgerHash: prev.Hash,
		CloseTime:          uint64(time.Now().Unix()),
	}
	raw, err := cv.Encode()
	require.NoError(t, err)
	require.NoError(t, c.ApplyBlock(raw, nil))

	got, _, err := c.ConsensusValueFromDB(cv.LedgerSeq)
	require.NoError(t, err)
	assert.Equal(t, cv.LedgerSeq, got.LedgerSeq)
}

func TestConsensusValueFromDBMissingSeq(t *testing.T) {
	c, _ := newTestChain(t)
	_, _, err := c.ConsensusValueFromDB(12345)
	assert.Error(t, err)
}

func TestGetValidatorsTracksHistoricalSets(t *testing.T) {
	c, origAddr := newTestChain(t)
	prev := c.LastBlock()

	replPriv, err := types.GenerateAccount()
	require.NoError(t, err)
	replAddr := types.PubkeyToAddress(*replPriv.PublicKey())

	cv := &ConsensusValue{
		LedgerSeq:          prev.Head.Index + 1,
		PreviousLedgerHash: prev.Hash,
		CloseTime:          uint64(time.Now().Unix()),
		ValidatorSet:       []types.Address{replAddr},
	}
	raw, err := cv.Encode()
	require.NoError(t, err)
	require.NoError(t, c.ApplyBlock(raw, nil))

	// the set effective before the replacing block still answers for the
	// certificate that closed it
	before := c.GetValidators(prev.Head.Index)
	require.Len(t, before, 1)
	assert.Equal(t, origAddr, before[0])

	// from the replacing block onward the new set is effective
	after := c.GetValidators(cv.LedgerSeq)
	require.Len(t, after, 1)
	assert.Equal(t, replAddr, after[0])

	later := c.GetValidators(cv.LedgerSeq + 7)
	require.Len(t, later, 1)
	assert.Equal(t, replAddr, later[0])
}
