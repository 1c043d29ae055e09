package node

import (
	"bytes"
	"sort"
	"sync"

	"github.com/ugorji/go/codec"
)

// Profile describes the agent behind a node. It is exchanged with every peer
// on identification and given to the oracle as context.
type Profile struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Personality string `json:"personality"`
	Story       string `json:"story"`
	Sample      string `json:"sample"`
}

// Marshal ...
func (p *Profile) Marshal() ([]byte, error) {
	b := new(bytes.Buffer)
	jh := new(codec.JsonHandle)
	enc := codec.NewEncoder(b, jh)

	if err := enc.Encode(p); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// Unmarshal ...
func (p *Profile) Unmarshal(data []byte) error {
	jh := new(codec.JsonHandle)
	dec := codec.NewDecoderBytes(data, jh)

	return dec.Decode(p)
}

// Companions is the registry of the profiles of other agents, keyed by the
// peer address they were received from.
type Companions struct {
	sync.RWMutex
	profiles map[string]Profile
}

// NewCompanions ...
func NewCompanions() *Companions {
	return &Companions{
		profiles: make(map[string]Profile),
	}
}

// Set adds or replaces the profile of peer.
func (c *Companions) Set(peer string, p Profile) {
	c.Lock()
	defer c.Unlock()
	c.profiles[peer] = p
}

// Remove forgets peer. It reports whether it was known.
func (c *Companions) Remove(peer string) bool {
	c.Lock()
	defer c.Unlock()
	_, ok := c.profiles[peer]
	delete(c.profiles, peer)
	return ok
}

// Has ...
func (c *Companions) Has(peer string) bool {
	c.RLock()
	defer c.RUnlock()
	_, ok := c.profiles[peer]
	return ok
}

// Get ...
func (c *Companions) Get(peer string) (Profile, bool) {
	c.RLock()
	defer c.RUnlock()
	p, ok := c.profiles[peer]
	return p, ok
}

// Len ...
func (c *Companions) Len() int {
	c.RLock()
	defer c.RUnlock()
	return len(c.profiles)
}

// All returns the profiles sorted by ID.
func (c *Companions) All() []Profile {
	c.RLock()
	defer c.RUnlock()

	res := make([]Profile, 0, len(c.profiles))
	for _, p := range c.profiles {
		res = append(res, p)
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i].ID < res[j].ID
	})
	return res
}
