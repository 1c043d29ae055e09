package node

import (
	"testing"
	"time"

	"github.com/mosaicnetworks/parley/src/common"
	"github.com/mosaicnetworks/parley/src/ledger"
	"github.com/sirupsen/logrus"
)

// Config holds the parameters of a Node.
type Config struct {
	// HeartbeatTimeout is the base interval between fingerprint probes.
	HeartbeatTimeout time.Duration `mapstructure:"heartbeat"`

	// SyncTimeout bounds every pull, and every profile request.
	SyncTimeout time.Duration `mapstructure:"sync-timeout"`

	// MaxChainBytes bounds the size of a pulled chain.
	MaxChainBytes int64 `mapstructure:"max-chain-bytes"`

	// Params are the budget parameters. They must be the same on every agent.
	Params ledger.Params `mapstructure:"-"`

	// GenesisPayload is the payload of the genesis entry. It must be the same
	// on every agent.
	GenesisPayload string `mapstructure:"genesis"`

	// Profile is served to the peers.
	Profile Profile `mapstructure:"-"`

	// PeerBook, when set, records the peers whose profile was received.
	PeerBook PeerBook `mapstructure:"-"`

	Logger *logrus.Entry `mapstructure:"-"`
}

// PeerBook keeps track of the peers a node met, under the name they gave.
type PeerBook interface {
	Record(addr string, moniker string)
}

// NewConfig ...
func NewConfig(heartbeat time.Duration,
	syncTimeout time.Duration,
	maxChainBytes int64,
	params ledger.Params,
	genesisPayload string,
	profile Profile,
	logger *logrus.Entry) *Config {

	return &Config{
		HeartbeatTimeout: heartbeat,
		SyncTimeout:      syncTimeout,
		MaxChainBytes:    maxChainBytes,
		Params:           params,
		GenesisPayload:   genesisPayload,
		Profile:          profile,
		Logger:           logger,
	}
}

// DefaultConfig ...
func DefaultConfig() *Config {
	logger := logrus.New()
	logger.Level = logrus.DebugLevel

	return &Config{
		HeartbeatTimeout: 1000 * time.Millisecond,
		SyncTimeout:      5000 * time.Millisecond,
		MaxChainBytes:    DefaultMaxChainBytes,
		Params:           ledger.DefaultParams(),
		GenesisPayload:   "",
		Logger:           logrus.NewEntry(logger),
	}
}

// TestConfig returns a DefaultConfig with a fast heartbeat and logs going to
// t.
func TestConfig(t testing.TB) *Config {
	config := DefaultConfig()
	config.HeartbeatTimeout = 20 * time.Millisecond
	config.SyncTimeout = time.Second
	config.Logger = common.NewTestEntry(t, common.TestLogLevel)
	return config
}
