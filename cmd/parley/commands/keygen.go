package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mosaicnetworks/parley/src/config"
	"github.com/mosaicnetworks/parley/src/crypto/keys"
	"github.com/spf13/cobra"
)

var (
	privKeyFile string
)

// NewKeygenCmd produces a KeygenCmd which creates the libp2p identity of an
// agent
func NewKeygenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Create a new libp2p identity",
		RunE:  keygen,
	}

	AddKeygenFlags(cmd)

	return cmd
}

//AddKeygenFlags adds flags to the keygen command
func AddKeygenFlags(cmd *cobra.Command) {
	defaultPrivateKeyFile := filepath.Join(_config.Parley.DataDir, config.DefaultKeyfile)
	cmd.Flags().StringVar(&privKeyFile, "priv", defaultPrivateKeyFile, "File where the private key will be written")
}

func keygen(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(privKeyFile); err == nil {
		return fmt.Errorf("A key already lives under: %s", filepath.Dir(privKeyFile))
	}

	key, err := keys.GenerateIdentity()
	if err != nil {
		return fmt.Errorf("Error generating identity: %s", err)
	}

	if err := keys.NewSimpleKeyfile(privKeyFile).WriteKey(key); err != nil {
		return fmt.Errorf("Writing private key: %s", err)
	}

	fmt.Printf("Your private key has been saved to: %s\n", privKeyFile)

	id, err := keys.PeerID(key)
	if err != nil {
		return err
	}

	fmt.Printf("Your peer ID is: %s\n", id)

	return nil
}
