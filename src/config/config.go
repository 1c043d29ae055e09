package config

import (
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/mosaicnetworks/parley/src/common"
	"github.com/mosaicnetworks/parley/src/ledger"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// Default filenames.
const (
	// DefaultKeyfile is the default name of the file containing the libp2p
	// identity of the agent
	DefaultKeyfile = "priv_key"

	// DefaultBadgerFile is the default name of the folder containing the Badger
	// archive
	DefaultBadgerFile = "badger_db"

	// DefaultConfigFile is the default name of the optional configuration file
	// read from the datadir, without extension
	DefaultConfigFile = "parley"
)

// Transports.
const (
	TransportTCP    = "tcp"
	TransportLibp2p = "libp2p"
)

// Oracles.
const (
	OracleNone      = "none"
	OracleScripted  = "scripted"
	OracleAnthropic = "anthropic"
)

// Default configuration values.
const (
	DefaultLogLevel         = "debug"
	DefaultTransport        = TransportTCP
	DefaultBindAddr         = "127.0.0.1:1337"
	DefaultLibp2pListen     = "/ip4/0.0.0.0/tcp/4001"
	DefaultServiceAddr      = "127.0.0.1:8000"
	DefaultHeartbeatTimeout = 1000 * time.Millisecond
	DefaultTCPTimeout       = 1000 * time.Millisecond
	DefaultRetryInterval    = 2000 * time.Millisecond
	DefaultSyncTimeout      = 5000 * time.Millisecond
	DefaultMaxPool          = 2
	DefaultMaxChainBytes    = 32 << 20
	DefaultCapacity         = ledger.DefaultCapacity
	DefaultWindow           = ledger.DefaultWindow
	DefaultGenesis          = "parley"
	DefaultArchive          = false
	DefaultMDNS             = true
	DefaultOracle           = OracleScripted
	DefaultSpeakInterval    = 3000 * time.Millisecond
	DefaultOracleTimeout    = 30000 * time.Millisecond
	DefaultAnthropicModel   = "claude-3-5-haiku-latest"
	DefaultMaxTokens        = 512
)

// Config contains all the configuration properties of a parley agent.
type Config struct {
	// DataDir is the top-level directory containing parley configuration and
	// data
	DataDir string `mapstructure:"datadir"`

	// LogLevel determines the chattiness of the log output.
	LogLevel string `mapstructure:"log"`

	// Transport is either "tcp" or "libp2p".
	Transport string `mapstructure:"transport"`

	// BindAddr is the local address:port where this agent gossips with other
	// agents, with the TCP transport. With libp2p it is a multiaddr. In some
	// cases, there may be a routable address that cannot be bound. Use
	// AdvertiseAddr to advertise a different address to support this.
	BindAddr string `mapstructure:"listen"`

	// AdvertiseAddr is used to change the address that we advertise to other
	// agents. It only applies to the TCP transport.
	AdvertiseAddr string `mapstructure:"advertise"`

	// Bootstrap are the addresses of the peers to connect to on startup, on top
	// of the ones in peers.json. With libp2p, they are full multiaddrs ending
	// with /p2p/<peer id>.
	Bootstrap []string `mapstructure:"bootstrap"`

	// MDNS enables the discovery of peers on the local network. It only
	// applies to the libp2p transport.
	MDNS bool `mapstructure:"mdns"`

	// NoService disables the HTTP API service.
	NoService bool `mapstructure:"no-service"`

	// ServiceAddr is the address:port of the HTTP service.
	ServiceAddr string `mapstructure:"service-listen"`

	// HeartbeatTimeout is the base interval between fingerprint probes.
	HeartbeatTimeout time.Duration `mapstructure:"heartbeat"`

	// MaxPool controls how many connections are pooled per target by the TCP
	// transport.
	MaxPool int `mapstructure:"max-pool"`

	// TCPTimeout is the timeout of TCP requests.
	TCPTimeout time.Duration `mapstructure:"timeout"`

	// RetryInterval is the interval at which the TCP transport says hello to
	// bootstrap peers that have not answered yet.
	RetryInterval time.Duration `mapstructure:"retry"`

	// SyncTimeout bounds every chain pull.
	SyncTimeout time.Duration `mapstructure:"sync-timeout"`

	// MaxChainBytes bounds the size of a pulled chain.
	MaxChainBytes int64 `mapstructure:"max-chain-bytes"`

	// Capacity is the amount that may be consumed in one Window. It must be
	// the same on every agent.
	Capacity float64 `mapstructure:"capacity"`

	// Window is the recovery interval of the budget. It must be the same on
	// every agent.
	Window time.Duration `mapstructure:"window"`

	// Genesis is the payload of the genesis entry. It must be the same on
	// every agent.
	Genesis string `mapstructure:"genesis"`

	// Archive activates the badger archive of accepted entries.
	Archive bool `mapstructure:"archive"`

	// DatabaseDir is the directory containing the archive.
	DatabaseDir string `mapstructure:"db"`

	// ActorID is the id written in the entries of this agent. A random UUID is
	// used when it is empty.
	ActorID string `mapstructure:"actor"`

	// Moniker defines the friendly name of this agent
	Moniker string `mapstructure:"moniker"`

	// Personality, Story and Sample complete the profile of the agent.
	Personality string `mapstructure:"personality"`
	Story       string `mapstructure:"story"`
	Sample      string `mapstructure:"sample"`

	// Oracle is the decision maker of the agent: "none", "scripted" or
	// "anthropic".
	Oracle string `mapstructure:"oracle"`

	// Script are the lines of the scripted oracle.
	Script []string `mapstructure:"script"`

	// SpeakInterval is the interval at which the agent considers speaking
	// when nothing happens on the ledger.
	SpeakInterval time.Duration `mapstructure:"speak-interval"`

	// OracleTimeout bounds every decision of the oracle.
	OracleTimeout time.Duration `mapstructure:"oracle-timeout"`

	// AnthropicModel is the model used by the anthropic oracle.
	AnthropicModel string `mapstructure:"anthropic-model"`

	// AnthropicKey is the API key of the anthropic oracle. It defaults to the
	// ANTHROPIC_API_KEY environment variable.
	AnthropicKey string `mapstructure:"anthropic-key"`

	// MaxTokens bounds the answers of the anthropic oracle.
	MaxTokens int64 `mapstructure:"max-tokens"`

	// Key is the libp2p identity of the agent.
	Key crypto.PrivKey

	logger *logrus.Logger
}

// NewDefaultConfig returns a config object with default values. All the
// default configuration values are set, even if they cancel eachother out.
// For example, when Transport is "tcp", MDNS is ignored.
func NewDefaultConfig() *Config {
	config := &Config{
		DataDir:          DefaultDataDir(),
		LogLevel:         DefaultLogLevel,
		Transport:        DefaultTransport,
		BindAddr:         DefaultBindAddr,
		MDNS:             DefaultMDNS,
		ServiceAddr:      DefaultServiceAddr,
		HeartbeatTimeout: DefaultHeartbeatTimeout,
		MaxPool:          DefaultMaxPool,
		TCPTimeout:       DefaultTCPTimeout,
		RetryInterval:    DefaultRetryInterval,
		SyncTimeout:      DefaultSyncTimeout,
		MaxChainBytes:    DefaultMaxChainBytes,
		Capacity:         DefaultCapacity,
		Window:           DefaultWindow,
		Genesis:          DefaultGenesis,
		Archive:          DefaultArchive,
		DatabaseDir:      DefaultDatabaseDir(),
		Oracle:           DefaultOracle,
		SpeakInterval:    DefaultSpeakInterval,
		OracleTimeout:    DefaultOracleTimeout,
		AnthropicModel:   DefaultAnthropicModel,
		MaxTokens:        DefaultMaxTokens,
	}

	return config
}

// NewTestConfig returns a config object with default values and a special
// logger for debugging tests.
func NewTestConfig(t testing.TB, level logrus.Level) *Config {
	config := NewDefaultConfig()
	config.logger = common.NewTestLogger(t, level)
	return config
}

// SetDataDir sets the top-level parley directory, and updates the database
// directory if it is currently set to the default value. If the database
// directory is not currently the default, it means the user has explicitely set
// it to something else, so avoid changing it again here.
func (c *Config) SetDataDir(dataDir string) {
	c.DataDir = dataDir
	if c.DatabaseDir == DefaultDatabaseDir() {
		c.DatabaseDir = filepath.Join(dataDir, DefaultBadgerFile)
	}
}

// Keyfile returns the full path of the file containing the private key.
func (c *Config) Keyfile() string {
	return filepath.Join(c.DataDir, DefaultKeyfile)
}

// LedgerParams returns the budget parameters.
func (c *Config) LedgerParams() ledger.Params {
	return ledger.Params{
		Capacity: c.Capacity,
		Window:   c.Window,
	}
}

// SetLogger overrides the logger.
func (c *Config) SetLogger(logger *logrus.Logger) {
	c.logger = logger
}

// Logger returns a formatted logrus Entry, with prefix set to "parley".
func (c *Config) Logger() *logrus.Entry {
	if c.logger == nil {
		c.logger = logrus.New()
		c.logger.Level = LogLevel(c.LogLevel)
		c.logger.Formatter = new(prefixed.TextFormatter)
	}
	return c.logger.WithField("prefix", "parley")
}

// DefaultDatabaseDir returns the default path for the badger database files.
func DefaultDatabaseDir() string {
	return filepath.Join(DefaultDataDir(), DefaultBadgerFile)
}

// DefaultDataDir return the default directory name for top-level parley config
// based on the underlying OS, attempting to respect conventions.
func DefaultDataDir() string {
	// Try to place the data folder in the user's home dir
	home := HomeDir()
	if home != "" {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, ".Parley")
		} else if runtime.GOOS == "windows" {
			return filepath.Join(home, "AppData", "Roaming", "Parley")
		} else {
			return filepath.Join(home, ".parley")
		}
	}
	// As we cannot guess a stable location, return empty and handle later
	return ""
}

// HomeDir returns the user's home directory.
func HomeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}

// LogLevel parses a string into a Logrus log level.
func LogLevel(l string) logrus.Level {
	switch l {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.DebugLevel
	}
}
