package archive

import (
	"fmt"
	"os"
	"strconv"

	"github.com/dgraph-io/badger"
	cm "github.com/mosaicnetworks/parley/src/common"
	"github.com/mosaicnetworks/parley/src/ledger"
	"github.com/sirupsen/logrus"
)

const (
	chainPrefix  = "chain"
	orphanPrefix = "orphan"
	resetsKey    = "meta_resets"

	// maximum number of writes in a single badger transaction
	batchSize = 1000
)

// BadgerArchive implements node.Archiver on top of Badger.
type BadgerArchive struct {
	db   *badger.DB
	path string

	// hashes of the archived chain, by index
	chain  []string
	resets int
	closed bool

	logger *logrus.Entry
}

// NewBadgerArchive opens, or creates, the archive in path.
func NewBadgerArchive(path string, logger *logrus.Entry) (*BadgerArchive, error) {
	if err := os.MkdirAll(path, 0700); err != nil {
		return nil, err
	}

	opts := badger.DefaultOptions(path)
	opts.SyncWrites = false
	if logger != nil {
		opts.Logger = logger.WithField("prefix", "badger")
	} else {
		logger = logrus.NewEntry(logrus.New())
	}

	handle, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	archive := &BadgerArchive{
		db:     handle,
		path:   path,
		logger: logger,
	}

	chain, err := archive.Chain()
	if err != nil {
		handle.Close()
		return nil, err
	}
	for _, tx := range chain {
		archive.chain = append(archive.chain, tx.Hash)
	}

	resets, err := archive.dbGetResets()
	if err != nil {
		handle.Close()
		return nil, err
	}
	archive.resets = resets

	return archive, nil
}

//==============================================================================
//Keys

func chainKey(index int) []byte {
	return []byte(fmt.Sprintf("%s_%09d", chainPrefix, index))
}

func orphanKey(hash string) []byte {
	return []byte(fmt.Sprintf("%s_%s", orphanPrefix, hash))
}

func prefix(p string) []byte {
	return []byte(p + "_")
}

//==============================================================================
//Implement the Archiver interface

// Append records tx at the end of the archived chain.
func (a *BadgerArchive) Append(tx ledger.Transaction) error {
	if a.closed {
		return cm.NewStoreErr("Archive", cm.Closed, a.path)
	}

	val, err := tx.Marshal()
	if err != nil {
		return err
	}

	err = a.db.Update(func(txn *badger.Txn) error {
		return txn.Set(chainKey(len(a.chain)), val)
	})
	if err != nil {
		return err
	}

	a.chain = append(a.chain, tx.Hash)

	return nil
}

// Reset replaces the archived chain with txs. Archived entries that are not
// part of txs are kept as orphans.
func (a *BadgerArchive) Reset(txs []ledger.Transaction) error {
	if a.closed {
		return cm.NewStoreErr("Archive", cm.Closed, a.path)
	}

	keep := make(map[string]bool, len(txs))
	for _, tx := range txs {
		keep[tx.Hash] = true
	}

	ops := []op{}

	old, err := a.Chain()
	if err != nil {
		return err
	}
	for _, tx := range old {
		if keep[tx.Hash] {
			continue
		}
		val, err := tx.Marshal()
		if err != nil {
			return err
		}
		ops = append(ops, op{key: orphanKey(tx.Hash), val: val})
	}

	for i := len(txs); i < len(old); i++ {
		ops = append(ops, op{key: chainKey(i), del: true})
	}

	hashes := make([]string, 0, len(txs))
	for i, tx := range txs {
		hashes = append(hashes, tx.Hash)
		if i < len(a.chain) && a.chain[i] == tx.Hash {
			continue
		}
		val, err := tx.Marshal()
		if err != nil {
			return err
		}
		ops = append(ops, op{key: chainKey(i), val: val})
	}

	ops = append(ops, op{
		key: []byte(resetsKey),
		val: []byte(strconv.Itoa(a.resets + 1)),
	})

	if err := a.apply(ops); err != nil {
		return err
	}

	a.chain = hashes
	a.resets++

	a.logger.WithFields(logrus.Fields{
		"length":  len(txs),
		"orphans": len(old) - countKept(old, keep),
	}).Debug("Archive reset")

	return nil
}

// Close closes the underlying database.
func (a *BadgerArchive) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true
	return a.db.Close()
}

//==============================================================================
//Readers

// Path returns the directory of the database.
func (a *BadgerArchive) Path() string {
	return a.path
}

// Len returns the length of the archived chain.
func (a *BadgerArchive) Len() int {
	return len(a.chain)
}

// Resets returns the number of times the archived chain was replaced,
// including the initial reset to the genesis entry of every run.
func (a *BadgerArchive) Resets() int {
	return a.resets
}

// Get returns the archived entry at index.
func (a *BadgerArchive) Get(index int) (ledger.Transaction, error) {
	var tx ledger.Transaction

	if a.closed {
		return tx, cm.NewStoreErr("Archive", cm.Closed, a.path)
	}
	if len(a.chain) == 0 {
		return tx, cm.NewStoreErr("Archive", cm.Empty, "")
	}

	key := chainKey(index)
	err := a.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return tx.Unmarshal(val)
		})
	})

	return tx, mapError(err, "Transaction", string(key))
}

// Chain returns the archived chain, in order.
func (a *BadgerArchive) Chain() ([]ledger.Transaction, error) {
	return a.dbList(chainPrefix)
}

// Orphans returns the entries that were dropped by chain replacements, sorted
// by hash.
func (a *BadgerArchive) Orphans() ([]ledger.Transaction, error) {
	return a.dbList(orphanPrefix)
}

//++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++
//DB Methods

type op struct {
	key []byte
	val []byte
	del bool
}

// apply writes ops in chunks so that large chains do not exceed the size of a
// badger transaction.
func (a *BadgerArchive) apply(ops []op) error {
	for start := 0; start < len(ops); start += batchSize {
		end := start + batchSize
		if end > len(ops) {
			end = len(ops)
		}
		err := a.db.Update(func(txn *badger.Txn) error {
			for _, o := range ops[start:end] {
				var err error
				if o.del {
					err = txn.Delete(o.key)
				} else {
					err = txn.Set(o.key, o.val)
				}
				if err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (a *BadgerArchive) dbList(p string) ([]ledger.Transaction, error) {
	res := []ledger.Transaction{}
	pre := prefix(p)

	err := a.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(pre); it.ValidForPrefix(pre); it.Next() {
			var tx ledger.Transaction
			err := it.Item().Value(func(val []byte) error {
				return tx.Unmarshal(val)
			})
			if err != nil {
				return err
			}
			res = append(res, tx)
		}
		return nil
	})

	return res, err
}

func (a *BadgerArchive) dbGetResets() (int, error) {
	resets := 0
	err := a.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(resetsKey))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var err error
			resets, err = strconv.Atoi(string(val))
			return err
		})
	})
	if err != nil && isDBKeyNotFound(err) {
		return 0, nil
	}
	return resets, err
}

//++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++

func countKept(txs []ledger.Transaction, keep map[string]bool) int {
	n := 0
	for _, tx := range txs {
		if keep[tx.Hash] {
			n++
		}
	}
	return n
}

func isDBKeyNotFound(err error) bool {
	return err == badger.ErrKeyNotFound
}

func mapError(err error, name, key string) error {
	if err != nil {
		if isDBKeyNotFound(err) {
			return cm.NewStoreErr(name, cm.KeyNotFound, key)
		}
	}
	return err
}
