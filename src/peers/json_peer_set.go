package peers

import (
	"bytes"
	"encoding/json"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const jsonPeerSetPath = "peers.json"

// JSONPeerSet is used to provide peer persistence on disk in the form of a JSON
// file.
type JSONPeerSet struct {
	l    sync.Mutex
	path string
}

// NewJSONPeerSet creates a new JSONPeerSet with reference to a base directory
// where the JSON file resides.
func NewJSONPeerSet(base string) *JSONPeerSet {
	store := &JSONPeerSet{
		path: filepath.Join(base, jsonPeerSetPath),
	}
	return store
}

// Path returns the location of the JSON file.
func (j *JSONPeerSet) Path() string {
	return j.path
}

// PeerSet parses the underlying JSON file and returns the corresponding
// PeerSet.
func (j *JSONPeerSet) PeerSet() (*PeerSet, error) {
	j.l.Lock()
	defer j.l.Unlock()

	// Read the file
	buf, err := ioutil.ReadFile(j.path)
	if err != nil {
		return nil, err
	}

	// Check for no peers
	if len(bytes.TrimSpace(buf)) == 0 {
		return NewPeerSet(nil), nil
	}

	// Decode the peers
	var peers []*Peer
	dec := json.NewDecoder(bytes.NewReader(buf))
	if err := dec.Decode(&peers); err != nil {
		return nil, err
	}

	cleansePeerSet(peers)

	return NewPeerSet(peers), nil
}

// OptionalPeerSet is like PeerSet but returns an empty PeerSet when the file
// does not exist.
func (j *JSONPeerSet) OptionalPeerSet() (*PeerSet, error) {
	ps, err := j.PeerSet()
	if os.IsNotExist(err) {
		return NewPeerSet(nil), nil
	}
	return ps, err
}

// cleansePeerSet trims the addresses written by hand.
func cleansePeerSet(peers []*Peer) {
	for _, peer := range peers {
		if peer == nil {
			continue
		}
		peer.NetAddr = strings.TrimSpace(peer.NetAddr)
	}
}

// Write persists a PeerSet to a JSON file.
func (j *JSONPeerSet) Write(peers []*Peer) error {
	j.l.Lock()
	defer j.l.Unlock()

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	if err := enc.Encode(peers); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(j.path), 0700); err != nil {
		return err
	}

	// Write out as JSON
	return ioutil.WriteFile(j.path, buf.Bytes(), 0644)
}
