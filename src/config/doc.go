// Package config defines the configuration for a parley agent.
//
// Regardless of how parley is started, directly from Go code or as a
// standalone process from the command line, it uses the Config object defined
// in this package to store and forward configuration options. On top of these
// configuration options, parley relies on a data directory, defined by
// Config.DataDir, where it expects to find a few additional files:
//
//  priv_key // the libp2p identity of the agent (cf. parley keygen).
//  peers.json // (optional) a JSON file containing the addresses of TCP peers.
//  parley.toml // (optional) configuration values, overridden by command line flags.
//
// All agents of a network must use the same capacity, window and genesis
// values, otherwise they will reject each other's chains.
package config
