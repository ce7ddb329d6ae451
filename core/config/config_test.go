package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultChainConfigMatchesDefaults(t *testing.T) {
	cfg := DefaultChainConfig("chain-a")
	assert.Equal(t, PoW, cfg.ConsensusKind)
	assert.Equal(t, 4, cfg.NodeCount)
	assert.Equal(t, time.Second, cfg.BlockTime)
	require.NoError(t, Validate(&cfg))
}

func TestDefaultSimulationConfigMatchesDefaults(t *testing.T) {
	cfg := DefaultSimulationConfig()
	assert.Equal(t, 0.01, cfg.PacketDropRate)
	assert.EqualValues(t, 42, cfg.RngSeed)
	assert.Equal(t, 3, cfg.RelayerCount)
	require.NoError(t, Validate(&cfg))
}

func TestValidateRejectsMissingChainID(t *testing.T) {
	cfg := DefaultChainConfig("")
	require.Error(t, Validate(&cfg))
}

func TestValidateRejectsUnknownConsensusKind(t *testing.T) {
	cfg := DefaultChainConfig("chain-a")
	cfg.ConsensusKind = "Tendermint"
	require.Error(t, Validate(&cfg))
}

func TestValidateRejectsOutOfRangeDropRate(t *testing.T) {
	cfg := DefaultSimulationConfig()
	cfg.PacketDropRate = 1.5
	require.Error(t, Validate(&cfg))
}
