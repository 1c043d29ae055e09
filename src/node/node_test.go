package node

import (
	"fmt"
	"testing"
	"time"

	"github.com/mosaicnetworks/parley/src/net"
	"github.com/mosaicnetworks/parley/src/node/state"
	"github.com/stretchr/testify/require"
)

func initNodes(t *testing.T, n int) ([]*Node, []*net.InmemTransport) {
	nodes := make([]*Node, n)
	transports := make([]*net.InmemTransport, n)

	for i := 0; i < n; i++ {
		_, trans := net.NewInmemTransport(fmt.Sprintf("node%d", i))
		transports[i] = trans

		conf := TestConfig(t)
		conf.GenesisPayload = "test"
		conf.Profile = Profile{
			ID:   trans.LocalAddr(),
			Name: fmt.Sprintf("agent %d", i),
		}

		node := NewNode(conf, trans, nil)
		require.NoError(t, node.Init())
		nodes[i] = node
	}

	t.Cleanup(func() { shutdownNodes(nodes) })

	return nodes, transports
}

func connectAll(transports []*net.InmemTransport) {
	for _, a := range transports {
		for _, b := range transports {
			if a != b {
				a.Connect(b.LocalAddr(), b)
			}
		}
	}
}

func runNodes(nodes []*Node) {
	for _, n := range nodes {
		n.RunAsync()
	}
}

func shutdownNodes(nodes []*Node) {
	for _, n := range nodes {
		n.Shutdown()
	}
}

func checkConverged(t *testing.T, nodes []*Node, length int) {
	t.Helper()
	require.Eventually(t, func() bool {
		fp := nodes[0].Fingerprint()
		for _, n := range nodes {
			if len(n.Transactions()) != length || n.Fingerprint() != fp {
				return false
			}
		}
		return true
	}, 5*time.Second, 20*time.Millisecond)
}

func TestGossip(t *testing.T) {
	nodes, transports := initNodes(t, 3)
	connectAll(transports)
	runNodes(nodes)

	for i, n := range nodes {
		r := n.Consume(n.ID(), 10, fmt.Sprintf("message %d", i))
		require.True(t, r.Accepted)
		// let the entry spread before the next one is made on another node
		checkConverged(t, nodes, i+2)
	}

	for _, n := range nodes {
		require.NoError(t, n.core.Validate())
		require.Equal(t, state.Gossiping, n.GetState())
		require.InDelta(t, 70, n.Available(), 1e-9)
	}
}

// Concurrent consumptions fork the chain. The longest branch wins, and the
// heartbeat probes bring everyone back together.
func TestConcurrentForks(t *testing.T) {
	nodes, transports := initNodes(t, 3)
	connectAll(transports)
	runNodes(nodes)

	nodes[0].Consume("a", 5, "a1")
	nodes[1].Consume("b", 5, "b1")
	nodes[1].Consume("b", 5, "b2")

	require.Eventually(t, func() bool {
		fp := nodes[0].Fingerprint()
		for _, n := range nodes {
			if n.Fingerprint() != fp {
				return false
			}
		}
		return len(nodes[0].Transactions()) >= 3
	}, 5*time.Second, 20*time.Millisecond)

	for _, n := range nodes {
		require.NoError(t, n.core.Validate())
	}
}

// A node that starts late catches up with the chain of the others, and
// everyone learns about everyone's profile.
func TestCatchUpAndProfiles(t *testing.T) {
	nodes, transports := initNodes(t, 3)

	connectAll(transports[:2])
	runNodes(nodes[:2])

	for i := 0; i < 4; i++ {
		require.True(t, nodes[0].Consume("a", 5, "before").Accepted)
	}
	checkConverged(t, nodes[:2], 5)

	connectAll(transports)
	nodes[2].RunAsync()

	checkConverged(t, nodes, 5)

	require.Eventually(t, func() bool {
		return len(nodes[2].Companions()) == 2 && len(nodes[0].Companions()) == 2
	}, 5*time.Second, 20*time.Millisecond)

	names := []string{}
	for _, p := range nodes[2].Companions() {
		names = append(names, p.Name)
	}
	require.ElementsMatch(t, []string{"agent 0", "agent 1"}, names)
}

func TestDisconnectRemovesCompanion(t *testing.T) {
	nodes, transports := initNodes(t, 2)
	connectAll(transports)
	runNodes(nodes)

	require.Eventually(t, func() bool {
		return len(nodes[0].Companions()) == 1
	}, 5*time.Second, 20*time.Millisecond)

	transports[0].Disconnect(transports[1].LocalAddr())

	require.Eventually(t, func() bool {
		return len(nodes[0].Companions()) == 0
	}, 5*time.Second, 20*time.Millisecond)
}

func TestShutdown(t *testing.T) {
	nodes, transports := initNodes(t, 2)
	connectAll(transports)
	runNodes(nodes)

	nodes[0].Shutdown()
	require.Equal(t, state.Shutdown, nodes[0].GetState())

	// publishing on a closed transport fails, the entry is still recorded
	r := nodes[0].Consume("a", 1, "after shutdown")
	require.True(t, r.Accepted)

	// idempotent
	nodes[0].Shutdown()

	stats := nodes[1].GetStats()
	require.Equal(t, "node1", stats["id"])
	require.Equal(t, "agent 1", stats["moniker"])
}
