package commands

import (
	"github.com/spf13/cobra"
)

var (
	_config = NewDefaultCLIConfig()
)

//RootCmd is the root command for parley
var RootCmd = &cobra.Command{
	Use:              "parley",
	Short:            "parley agents taking turns on a shared ledger",
	TraverseChildren: true,
}
