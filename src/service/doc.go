// Package service implements the HTTP API of a parley agent.
//
// Besides the read-only views of the ledger (/ledger, /ledger/{index},
// /history, /available, /fingerprint), the companions and the peers, it
// accepts utterances from outside the conversation on POST /consume, and
// exposes the node metrics for Prometheus on /metrics.
package service
