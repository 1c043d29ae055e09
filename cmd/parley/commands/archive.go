package commands

import (
	"fmt"
	"os"

	"github.com/mosaicnetworks/parley/src/archive"
	"github.com/mosaicnetworks/parley/src/ledger"
	"github.com/spf13/cobra"
)

var (
	archiveDir     string
	archiveOrphans bool
)

// NewArchiveCmd produces a command that prints the content of an archive
func NewArchiveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Dump the archive of an agent",
		Long: `Dump the archive of an agent.

Prints the archived chain as a JSON array. With --orphans, prints the entries
that were dropped when the chain was replaced by a longer one. The agent must
not be running.`,
		RunE: dumpArchive,
	}

	cmd.Flags().StringVar(&archiveDir, "db", _config.Parley.DatabaseDir, "Archive directory")
	cmd.Flags().BoolVar(&archiveOrphans, "orphans", false, "Print the orphaned entries instead of the chain")

	return cmd
}

func dumpArchive(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(archiveDir); err != nil {
		return fmt.Errorf("No archive in %s: %s", archiveDir, err)
	}

	arch, err := archive.NewBadgerArchive(archiveDir, nil)
	if err != nil {
		return err
	}
	defer arch.Close()

	txs, err := arch.Chain()
	if archiveOrphans {
		txs, err = arch.Orphans()
	}
	if err != nil {
		return err
	}

	out, err := ledger.MarshalChain(txs)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), string(out))

	return nil
}
