// Package config loads and validates the two structures that parameterize a
// run: per-chain consensus settings and simulation-wide traffic/transport
// settings. Values are read from the environment with sensible defaults and
// checked with struct tags before use.
package config

import (
	"fmt"
	"time"

	gvalidator "github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
)

var validate = gvalidator.New(gvalidator.WithRequiredStructEnabled())

// ConsensusKind selects which consensus engine a chain runs.
type ConsensusKind string

const (
	PoW  ConsensusKind = "PoW"
	PoS  ConsensusKind = "PoS"
	PBFT ConsensusKind = "PBFT"
)

// ChainConfig carries the per-chain parameters and consensus selection for
// one simulated chain.
type ChainConfig struct {
	ChainID            string        `envconfig:"CHAIN_ID" validate:"required"`
	ConsensusKind      ConsensusKind `envconfig:"CONSENSUS_KIND" default:"PoW" validate:"oneof=PoW PoS PBFT"`
	NodeCount          int           `envconfig:"NODE_COUNT" default:"4" validate:"min=1"`
	BlockTime          time.Duration `envconfig:"BLOCK_TIME" default:"1s" validate:"min=0"`
	PowDifficulty      int           `envconfig:"POW_DIFFICULTY" default:"4" validate:"min=1"`
	ValidatorSetSize   int           `envconfig:"VALIDATOR_SET_SIZE" default:"4" validate:"min=1"`
	PbftFaultTolerance int           `envconfig:"PBFT_FAULT_TOLERANCE" default:"1" validate:"min=0"`
}

// SimulationConfig carries the global knobs for transport, traffic
// generation, logging, and relayer behavior shared across all chains in a
// run.
type SimulationConfig struct {
	DefaultLinkLatency      time.Duration `envconfig:"DEFAULT_LINK_LATENCY" default:"50ms" validate:"min=0"`
	PacketDropRate          float64       `envconfig:"PACKET_DROP_RATE" default:"0.01" validate:"min=0,max=1"`
	RunFor                  time.Duration `envconfig:"RUN_FOR" default:"2m" validate:"min=0"`
	RngSeed                 uint64        `envconfig:"RNG_SEED" default:"42"`
	TrafficGenInterval      time.Duration `envconfig:"TRAFFIC_GEN_INTERVAL" default:"100ms" validate:"min=0"`
	IbcTrafficRatio         float64       `envconfig:"IBC_TRAFFIC_RATIO" default:"0.3" validate:"min=0,max=1"`
	EnableContinuousTraffic bool          `envconfig:"ENABLE_CONTINUOUS_TRAFFIC" default:"true"`

	EnableDetailedTransactionLogs bool `envconfig:"ENABLE_DETAILED_TRANSACTION_LOGS" default:"true"`
	EnableIBCEventLogs            bool `envconfig:"ENABLE_IBC_EVENT_LOGS" default:"true"`
	EnableNodeStateSnapshots      bool `envconfig:"ENABLE_NODE_STATE_SNAPSHOTS" default:"true"`
	EnableNetworkDropLogs         bool `envconfig:"ENABLE_NETWORK_DROP_LOGS" default:"true"`
	EnableRelayerStateLogs        bool `envconfig:"ENABLE_RELAYER_STATE_LOGS" default:"true"`

	RelayerCount             int  `envconfig:"RELAYER_COUNT" default:"3" validate:"min=1"`
	EnableRelayerCompetition bool `envconfig:"ENABLE_RELAYER_COMPETITION" default:"true"`
}

// LoadChainConfig reads a ChainConfig from the environment under prefix
// (e.g. "CHAIN_A" yields CHAIN_A_CHAIN_ID, CHAIN_A_NODE_COUNT, ...) and
// validates the result.
func LoadChainConfig(prefix string) (ChainConfig, error) {
	var cfg ChainConfig
	if err := envconfig.Process(prefix, &cfg); err != nil {
		return ChainConfig{}, fmt.Errorf("config: load chain config: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return ChainConfig{}, err
	}
	return cfg, nil
}

// LoadSimulationConfig reads a SimulationConfig from the environment under
// prefix and validates the result.
func LoadSimulationConfig(prefix string) (SimulationConfig, error) {
	var cfg SimulationConfig
	if err := envconfig.Process(prefix, &cfg); err != nil {
		return SimulationConfig{}, fmt.Errorf("config: load simulation config: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return SimulationConfig{}, err
	}
	return cfg, nil
}

// DefaultChainConfig returns a ChainConfig populated with the same defaults
// LoadChainConfig would apply with no environment variables set, for use in
// tests and as a fallback when no environment is configured.
func DefaultChainConfig(chainID string) ChainConfig {
	return ChainConfig{
		ChainID:            chainID,
		ConsensusKind:      PoW,
		NodeCount:          4,
		BlockTime:          time.Second,
		PowDifficulty:      4,
		ValidatorSetSize:   4,
		PbftFaultTolerance: 1,
	}
}

// DefaultSimulationConfig returns a SimulationConfig populated with the same
// defaults LoadSimulationConfig would apply with no environment variables
// set.
func DefaultSimulationConfig() SimulationConfig {
	return SimulationConfig{
		DefaultLinkLatency:            50 * time.Millisecond,
		PacketDropRate:                0.01,
		RunFor:                        2 * time.Minute,
		RngSeed:                       42,
		TrafficGenInterval:            100 * time.Millisecond,
		IbcTrafficRatio:               0.3,
		EnableContinuousTraffic:       true,
		EnableDetailedTransactionLogs: true,
		EnableIBCEventLogs:            true,
		EnableNodeStateSnapshots:      true,
		EnableNetworkDropLogs:         true,
		EnableRelayerStateLogs:        true,
		RelayerCount:                  3,
		EnableRelayerCompetition:      true,
	}
}

// ErrValidationFailed is returned as the root of a multi-error chain when
// Validate rejects a struct.
var ErrValidationFailed = fmt.Errorf("config: struct validation failed")

// Validate checks v against its validate tags, wrapping any field errors
// under ErrValidationFailed.
func Validate(v any) error {
	if err := validate.Struct(v); err != nil {
		var fieldErrs gvalidator.ValidationErrors
		if ok := asValidationErrors(err, &fieldErrs); ok {
			return fmt.Errorf("%w: %v", ErrValidationFailed, fieldErrs)
		}
		return err
	}
	return nil
}

func asValidationErrors(err error, target *gvalidator.ValidationErrors) bool {
	ve, ok := err.(gvalidator.ValidationErrors)
	if !ok {
		return false
	}
	*target = ve
	return true
}
