package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/mosaicnetworks/parley/src/agent"
	"github.com/mosaicnetworks/parley/src/config"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

//NewRunCmd returns the command that starts a parley agent
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Run agent",
		PreRunE: loadConfig,
		RunE:    runAgent,
	}
	AddRunFlags(cmd)
	return cmd
}

/*******************************************************************************
* RUN
*******************************************************************************/

func runAgent(cmd *cobra.Command, args []string) error {
	engine := agent.NewAgent(&_config.Parley)

	if err := engine.Init(); err != nil {
		_config.Parley.Logger().Error("Cannot initialize agent: ", err)
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		_config.Parley.Logger().Info("Shutting down")
		engine.Shutdown()
	}()

	return engine.Run()
}

/*******************************************************************************
* CONFIG
*******************************************************************************/

//AddRunFlags adds flags to the Run command
func AddRunFlags(cmd *cobra.Command) {

	cmd.Flags().String("datadir", _config.Parley.DataDir, "Top-level directory for configuration and data")
	cmd.Flags().String("log", _config.Parley.LogLevel, "debug, info, warn, error, fatal, panic")
	cmd.Flags().String("log-file", _config.LogFile, "Also write the logs, as JSON, to this file")

	// Profile
	cmd.Flags().String("actor", _config.Parley.ActorID, "Actor ID of the entries of this agent (random UUID if empty)")
	cmd.Flags().String("moniker", _config.Parley.Moniker, "Name of the agent")
	cmd.Flags().String("personality", _config.Parley.Personality, "Personality of the agent")
	cmd.Flags().String("story", _config.Parley.Story, "Background story of the agent")
	cmd.Flags().String("sample", _config.Parley.Sample, "Sample of what the agent says")

	// Network
	cmd.Flags().String("transport", _config.Parley.Transport, "tcp or libp2p")
	cmd.Flags().StringP("listen", "l", _config.Parley.BindAddr, "Listen IP:Port, or multiaddr with libp2p")
	cmd.Flags().StringP("advertise", "a", _config.Parley.AdvertiseAddr, "Advertise IP:Port (tcp only)")
	cmd.Flags().StringSlice("bootstrap", _config.Parley.Bootstrap, "Addresses of the peers to connect to")
	cmd.Flags().Bool("mdns", _config.Parley.MDNS, "Discover peers on the local network (libp2p only)")
	cmd.Flags().DurationP("timeout", "t", _config.Parley.TCPTimeout, "TCP Timeout")
	cmd.Flags().Duration("retry", _config.Parley.RetryInterval, "Interval between hellos to unreachable peers (tcp only)")
	cmd.Flags().Int("max-pool", _config.Parley.MaxPool, "Connection pool size max")

	// Service
	cmd.Flags().Bool("no-service", _config.Parley.NoService, "Disable HTTP service")
	cmd.Flags().StringP("service-listen", "s", _config.Parley.ServiceAddr, "Listen IP:Port for HTTP service")

	// Archive
	cmd.Flags().Bool("archive", _config.Parley.Archive, "Archive the ledger in badgerDB")
	cmd.Flags().String("db", _config.Parley.DatabaseDir, "Archive directory")

	// Ledger
	cmd.Flags().Float64("capacity", _config.Parley.Capacity, "Amount that may be consumed within a window")
	cmd.Flags().Duration("window", _config.Parley.Window, "Recovery interval of the budget")
	cmd.Flags().String("genesis", _config.Parley.Genesis, "Payload of the genesis entry")

	// Node configuration
	cmd.Flags().Duration("heartbeat", _config.Parley.HeartbeatTimeout, "Time between fingerprint probes")
	cmd.Flags().Duration("sync-timeout", _config.Parley.SyncTimeout, "Timeout of chain pulls")
	cmd.Flags().Int64("max-chain-bytes", _config.Parley.MaxChainBytes, "Max size of a pulled chain")

	// Oracle
	cmd.Flags().String("oracle", _config.Parley.Oracle, "none, scripted or anthropic")
	cmd.Flags().StringSlice("script", _config.Parley.Script, "Lines of the scripted oracle")
	cmd.Flags().Duration("speak-interval", _config.Parley.SpeakInterval, "Longest silence before the agent considers speaking")
	cmd.Flags().Duration("oracle-timeout", _config.Parley.OracleTimeout, "Timeout of every decision")
	cmd.Flags().String("anthropic-model", _config.Parley.AnthropicModel, "Model of the anthropic oracle")
	cmd.Flags().String("anthropic-key", _config.Parley.AnthropicKey, "API key of the anthropic oracle (defaults to ANTHROPIC_API_KEY)")
	cmd.Flags().Int64("max-tokens", _config.Parley.MaxTokens, "Max tokens of the anthropic answers")
}

func loadConfig(cmd *cobra.Command, args []string) error {

	err := bindFlagsLoadViper(cmd)
	if err != nil {
		return err
	}

	// If --datadir was explicitely set, but not --db, this will update the
	// default database dir to be inside the new datadir
	_config.Parley.SetDataDir(_config.Parley.DataDir)

	_config.Parley.SetLogger(newLogger())

	logFields := logrus.Fields{
		"parley.DataDir":          _config.Parley.DataDir,
		"parley.Transport":        _config.Parley.Transport,
		"parley.BindAddr":         _config.Parley.BindAddr,
		"parley.AdvertiseAddr":    _config.Parley.AdvertiseAddr,
		"parley.Bootstrap":        _config.Parley.Bootstrap,
		"parley.ServiceAddr":      _config.Parley.ServiceAddr,
		"parley.NoService":        _config.Parley.NoService,
		"parley.LogLevel":         _config.Parley.LogLevel,
		"parley.Moniker":          _config.Parley.Moniker,
		"parley.Capacity":         _config.Parley.Capacity,
		"parley.Window":           _config.Parley.Window,
		"parley.HeartbeatTimeout": _config.Parley.HeartbeatTimeout,
		"parley.SyncTimeout":      _config.Parley.SyncTimeout,
		"parley.Oracle":           _config.Parley.Oracle,
		"parley.SpeakInterval":    _config.Parley.SpeakInterval,
		"LogFile":                 _config.LogFile,
	}

	if _config.Parley.Transport == config.TransportLibp2p {
		logFields["parley.MDNS"] = _config.Parley.MDNS
	}

	if _config.Parley.Archive {
		logFields["parley.DatabaseDir"] = _config.Parley.DatabaseDir
	}

	_config.Parley.Logger().WithFields(logFields).Debug("RUN")

	return nil
}

// Bind all flags and read the config into viper
func bindFlagsLoadViper(cmd *cobra.Command) error {
	// Register flags with viper. Include flags from this command and all other
	// persistent flags from the parent
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// first unmarshal to read from CLI flags
	if err := viper.Unmarshal(_config); err != nil {
		return err
	}

	// look for config file in [datadir]/parley.toml (.json, .yaml also work)
	viper.SetConfigName(config.DefaultConfigFile) // name of config file (without extension)
	viper.AddConfigPath(_config.Parley.DataDir)   // search root directory

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		_config.Parley.Logger().Debugf("Using config file: %s", viper.ConfigFileUsed())
	} else if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		_config.Parley.Logger().Debugf("No config file found in: %s", _config.Parley.DataDir)
	} else {
		return err
	}

	// second unmarshal to read from config file
	return viper.Unmarshal(_config)
}

// newLogger creates the logger of the agent. When --log-file is set, every
// entry is also written to the file.
func newLogger() *logrus.Logger {
	logger := logrus.New()
	logger.Level = config.LogLevel(_config.Parley.LogLevel)
	logger.Formatter = new(prefixed.TextFormatter)

	if _config.LogFile != "" {
		pathMap := lfshook.PathMap{}
		for _, level := range logrus.AllLevels {
			pathMap[level] = _config.LogFile
		}

		logger.Hooks.Add(lfshook.NewHook(
			pathMap,
			&logrus.JSONFormatter{},
		))
	}

	return logger
}
