package keys

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io/ioutil"
	"os"
	"path"
	"strings"
	"sync"

	lcrypto "github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"
)

// GenerateIdentity creates a fresh ed25519 key-pair.
func GenerateIdentity() (lcrypto.PrivKey, error) {
	priv, _, err := lcrypto.GenerateEd25519Key(rand.Reader)
	return priv, err
}

// PeerID returns the libp2p peer ID derived from the key.
func PeerID(key lcrypto.PrivKey) (string, error) {
	id, err := peer.IDFromPrivateKey(key)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// SimpleKeyfile reads and writes an identity key as an unencrypted hex dump of
// its protobuf encoding.
type SimpleKeyfile struct {
	l       sync.Mutex
	keyfile string
}

// NewSimpleKeyfile instantiates a new SimpleKeyfile with an underlying file
func NewSimpleKeyfile(keyfile string) *SimpleKeyfile {
	return &SimpleKeyfile{
		keyfile: keyfile,
	}
}

// CheckFileInfo verifies that the file exists and has user permissions only.
func (k *SimpleKeyfile) CheckFileInfo() error {
	info, err := os.Stat(k.keyfile)
	if err != nil {
		return err
	}

	// get file permissions
	perm := info.Mode().Perm()

	// build 000111111 mask
	var nonUserMask os.FileMode = (1 << 6) - 1

	if perm&nonUserMask != 0 {
		return fmt.Errorf("priv_key file permissions should exclude 'groups' and 'others'. Got %o", perm)
	}

	return nil
}

// ReadKey reads the key written by WriteKey.
func (k *SimpleKeyfile) ReadKey() (lcrypto.PrivKey, error) {
	k.l.Lock()
	defer k.l.Unlock()

	if err := k.CheckFileInfo(); err != nil {
		return nil, err
	}

	buf, err := ioutil.ReadFile(k.keyfile)
	if err != nil {
		return nil, err
	}

	raw, err := hex.DecodeString(strings.TrimSpace(string(buf)))
	if err != nil {
		return nil, err
	}

	return lcrypto.UnmarshalPrivateKey(raw)
}

// WriteKey writes a hex dump of the key to the underlying file, creating the
// parent directory if needed.
func (k *SimpleKeyfile) WriteKey(key lcrypto.PrivKey) error {
	k.l.Lock()
	defer k.l.Unlock()

	raw, err := lcrypto.MarshalPrivateKey(key)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(path.Dir(k.keyfile), 0700); err != nil {
		return err
	}

	return ioutil.WriteFile(k.keyfile, []byte(hex.EncodeToString(raw)), 0600)
}

// ReadOrCreate returns the key stored in the file, generating and writing a new
// one when the file does not exist yet.
func (k *SimpleKeyfile) ReadOrCreate() (lcrypto.PrivKey, bool, error) {
	if _, err := os.Stat(k.keyfile); os.IsNotExist(err) {
		key, err := GenerateIdentity()
		if err != nil {
			return nil, false, err
		}
		if err := k.WriteKey(key); err != nil {
			return nil, false, err
		}
		return key, true, nil
	}

	key, err := k.ReadKey()
	return key, false, err
}
