package node

import (
	"github.com/algorand/go-deadlock"
	"github.com/mosaicnetworks/parley/src/consensus"
	"github.com/mosaicnetworks/parley/src/ledger"
	"github.com/sirupsen/logrus"
)

// Archiver records what the ledger accepts. Calls are made while the Core is
// locked, in ledger order.
type Archiver interface {
	// Append records an entry appended at the tip.
	Append(tx ledger.Transaction) error
	// Reset records that the whole chain was replaced by txs.
	Reset(txs []ledger.Transaction) error
	Close() error
}

// Core is the single writer of the Ledger. Every read and write of the Ledger
// goes through it.
type Core struct {
	lock   deadlock.Mutex
	ledger *ledger.Ledger

	archive Archiver
	metrics *Metrics

	// changeCh is signalled, without blocking, after every change of the
	// ledger.
	changeCh chan struct{}

	logger *logrus.Entry
}

// NewCore creates a Core around a fresh Ledger. archive may be nil.
func NewCore(params ledger.Params,
	genesisPayload string,
	archive Archiver,
	metrics *Metrics,
	logger *logrus.Entry) *Core {

	if metrics == nil {
		metrics = NewMetrics()
	}

	core := &Core{
		ledger:   ledger.New(params, genesisPayload),
		archive:  archive,
		metrics:  metrics,
		changeCh: make(chan struct{}, 1),
		logger:   logger,
	}

	if archive != nil {
		if err := archive.Reset(core.ledger.All()); err != nil {
			logger.WithError(err).Error("Archiving genesis")
		}
	}

	core.updateGauges()

	return core
}

// Changes returns a channel that receives a value after the ledger changed.
// Several changes may be coalesced into one notification.
func (c *Core) Changes() <-chan struct{} {
	return c.changeCh
}

// called with the lock held
func (c *Core) changed() {
	c.updateGauges()
	select {
	case c.changeCh <- struct{}{}:
	default:
	}
}

func (c *Core) updateGauges() {
	c.metrics.LedgerLength.Set(float64(c.ledger.Len()))
	c.metrics.Available.Set(c.ledger.Available())
}

func (c *Core) archiveAppend(tx ledger.Transaction) {
	if c.archive == nil {
		return
	}
	if err := c.archive.Append(tx); err != nil {
		c.logger.WithError(err).Error("Archiving entry")
	}
}

func (c *Core) archiveReset() {
	if c.archive == nil {
		return
	}
	if err := c.archive.Reset(c.ledger.All()); err != nil {
		c.logger.WithError(err).Error("Archiving chain")
	}
}

// Consume creates a CONSUME entry for actorID and appends it, if the budget
// allows. It returns the entry and the capacity left afterwards. When the
// entry is refused, the returned capacity is the one that was available.
func (c *Core) Consume(actorID string, amount float64, payload string) (ledger.Transaction, float64, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	if err := c.ledger.CheckConsume(amount); err != nil {
		c.reject(err)
		return ledger.Transaction{}, c.ledger.Available(), err
	}

	tx := c.ledger.NewConsume(actorID, amount, payload)

	if err := c.ledger.Append(tx); err != nil {
		c.reject(err)
		return ledger.Transaction{}, c.ledger.Available(), err
	}

	c.metrics.Appended.WithLabelValues(SourceLocal).Inc()
	c.archiveAppend(tx)
	c.changed()

	return tx, c.ledger.Available(), nil
}

func (c *Core) reject(err error) {
	reason := "unknown"
	if lerr, ok := err.(ledger.LedgerErr); ok {
		reason = lerr.Type().String()
	}
	c.metrics.Rejected.WithLabelValues(reason).Inc()
}

// Classify returns the relation of tx to the ledger.
func (c *Core) Classify(tx ledger.Transaction) consensus.Relation {
	c.lock.Lock()
	defer c.lock.Unlock()
	return consensus.Classify(c.ledger, tx)
}

// Merge appends a gossiped entry if it extends the tip. It returns the
// relation of the entry to the ledger as it was before the call, and whether
// it was appended. An entry that extends the tip but breaks the budget is not
// appended.
func (c *Core) Merge(tx ledger.Transaction) (consensus.Relation, bool) {
	c.lock.Lock()
	defer c.lock.Unlock()

	rel := consensus.Classify(c.ledger, tx)
	if rel != consensus.Extends {
		return rel, false
	}

	if !consensus.MergeTransaction(c.ledger, tx) {
		c.metrics.Rejected.WithLabelValues("Merge").Inc()
		return rel, false
	}

	c.metrics.Appended.WithLabelValues(SourceGossip).Inc()
	c.archiveAppend(tx)
	c.changed()

	return rel, true
}

// Resolve applies the longest-chain rule to a received chain. It reports
// whether the ledger was replaced.
func (c *Core) Resolve(txs []ledger.Transaction) bool {
	c.lock.Lock()
	defer c.lock.Unlock()

	if !consensus.ResolveConflict(c.ledger, txs) {
		return false
	}

	c.metrics.Replaced.Inc()
	c.archiveReset()
	c.changed()

	return true
}

// Transactions returns a copy of the chain.
func (c *Core) Transactions() []ledger.Transaction {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.ledger.All()
}

// Get returns the entry at index i.
func (c *Core) Get(i int) (ledger.Transaction, bool) {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.ledger.Get(i)
}

// Available returns the capacity left now.
func (c *Core) Available() float64 {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.ledger.Available()
}

// Fingerprint returns the Merkle root of the chain.
func (c *Core) Fingerprint() string {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.ledger.Fingerprint()
}

// History ...
func (c *Core) History() []ledger.Utterance {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.ledger.History()
}

// Len ...
func (c *Core) Len() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.ledger.Len()
}

// Tip ...
func (c *Core) Tip() ledger.Transaction {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.ledger.Tip()
}

// Params ...
func (c *Core) Params() ledger.Params {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.ledger.Params()
}

// Validate checks the whole chain.
func (c *Core) Validate() error {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.ledger.Validate()
}
