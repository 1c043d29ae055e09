package node

import (
	"github.com/mosaicnetworks/parley/src/ledger"
	"github.com/mosaicnetworks/parley/src/net"
	"github.com/sirupsen/logrus"
)

// Receipt is the outcome of a consumption request.
type Receipt struct {
	Accepted       bool               `json:"accepted"`
	AvailableAfter float64            `json:"availableAfter"`
	Transaction    ledger.Transaction `json:"transaction"`
	Reason         string             `json:"reason,omitempty"`
}

// Admission decides whether an actor may consume capacity, records the
// consumption, and tells the peers about it.
type Admission struct {
	core   *Core
	pub    net.Publisher
	logger *logrus.Entry
}

// NewAdmission ...
func NewAdmission(core *Core, pub net.Publisher, logger *logrus.Entry) *Admission {
	return &Admission{
		core:   core,
		pub:    pub,
		logger: logger,
	}
}

// Consume appends a CONSUME entry for actorID if amount fits in the current
// window, and broadcasts it. A refusal is not an error: the Receipt says
// whether the entry was accepted and how much capacity is left.
func (a *Admission) Consume(actorID string, amount float64, payload string) Receipt {
	tx, available, err := a.core.Consume(actorID, amount, payload)
	if err != nil {
		a.logger.WithFields(logrus.Fields{
			"actor":     actorID,
			"amount":    amount,
			"available": ledger.Round2(available),
			"error":     err,
		}).Debug("Consumption refused")

		return Receipt{
			Accepted:       false,
			AvailableAfter: available,
			Reason:         err.Error(),
		}
	}

	if err := Broadcast(a.pub, tx); err != nil {
		a.logger.WithError(err).Warn("Broadcasting transaction")
	}

	a.logger.WithFields(logrus.Fields{
		"actor":     actorID,
		"amount":    amount,
		"available": ledger.Round2(available),
		"hash":      tx.Hash,
	}).Debug("Consumption accepted")

	return Receipt{
		Accepted:       true,
		AvailableAfter: available,
		Transaction:    tx,
	}
}

// Available returns the capacity left now.
func (a *Admission) Available() float64 {
	return a.core.Available()
}
