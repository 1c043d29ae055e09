package commands

import (
	"github.com/mosaicnetworks/parley/src/config"
)

//CLIConfig contains configuration for the Run command
type CLIConfig struct {
	Parley  config.Config `mapstructure:",squash"`
	LogFile string        `mapstructure:"log-file"`
}

//NewDefaultCLIConfig creates a CLIConfig with default values
func NewDefaultCLIConfig() *CLIConfig {
	return &CLIConfig{
		Parley:  *config.NewDefaultConfig(),
		LogFile: "",
	}
}
