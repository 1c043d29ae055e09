package agent

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mosaicnetworks/parley/src/archive"
	"github.com/mosaicnetworks/parley/src/config"
	"github.com/mosaicnetworks/parley/src/crypto/keys"
	"github.com/mosaicnetworks/parley/src/net"
	"github.com/mosaicnetworks/parley/src/node"
	"github.com/mosaicnetworks/parley/src/oracle"
	"github.com/mosaicnetworks/parley/src/peers"
	"github.com/mosaicnetworks/parley/src/service"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Agent is the object that wires all the components of a parley agent.
type Agent struct {
	Config    *config.Config
	Node      *node.Node
	Transport net.Transport
	Archive   *archive.BadgerArchive
	Peers     *peers.PeerSet
	Oracle    oracle.Oracle
	Speaker   *Speaker
	Service   *service.Service

	peerBook *peerBook

	actor  string
	logger *logrus.Entry

	runLock sync.Mutex
	cancel  context.CancelFunc
}

// NewAgent is a factory method that returns an Agent. Init must be called
// before Run.
func NewAgent(c *config.Config) *Agent {
	return &Agent{
		Config: c,
		logger: c.Logger(),
	}
}

// Actor returns the actor ID of the entries written by this agent.
func (a *Agent) Actor() string {
	return a.actor
}

func (a *Agent) initKey() error {
	if a.Config.Transport != config.TransportLibp2p || a.Config.Key != nil {
		return nil
	}

	keyfile := keys.NewSimpleKeyfile(a.Config.Keyfile())

	key, created, err := keyfile.ReadOrCreate()
	if err != nil {
		return fmt.Errorf("reading identity from %s: %w", a.Config.Keyfile(), err)
	}

	if created {
		a.logger.WithField("path", a.Config.Keyfile()).Info("Created a new identity")
	}

	a.Config.Key = key

	return nil
}

// initPeers merges the peers.json file of the datadir, when there is one,
// with the bootstrap addresses of the configuration.
func (a *Agent) initPeers() error {
	peerSet := peers.NewPeerSetFromAddresses(a.Config.Bootstrap)

	if a.Config.DataDir != "" {
		stored, err := peers.NewJSONPeerSet(a.Config.DataDir).OptionalPeerSet()
		if err != nil {
			return fmt.Errorf("reading peers.json: %w", err)
		}
		peerSet = peerSet.Merge(stored)
	}

	// peers.json may be shared by all the agents of a network
	if a.Config.Transport == config.TransportTCP {
		self := a.Config.AdvertiseAddr
		if self == "" {
			self = a.Config.BindAddr
		}
		peerSet = peerSet.WithRemovedPeer(peers.NewPeer(self, ""))
	}

	a.Peers = peerSet

	// libp2p peers are found again through the bootstrap list and mdns
	if a.Config.Transport == config.TransportTCP && a.Config.DataDir != "" {
		a.peerBook = newPeerBook(
			peerSet,
			peers.NewJSONPeerSet(a.Config.DataDir),
			a.logger.WithField("prefix", "peers"),
		)
	}

	a.logger.WithField("peers", peerSet.Addresses()).Debug("Bootstrap peers")

	return nil
}

func (a *Agent) initTransport() error {
	logger := a.logger.WithField("prefix", "transport")

	switch a.Config.Transport {
	case config.TransportTCP:
		trans, err := net.NewTCPTransport(
			a.Config.BindAddr,
			a.Config.AdvertiseAddr,
			a.Config.MaxPool,
			a.Config.TCPTimeout,
			a.Config.RetryInterval,
			a.Peers.Addresses(),
			logger,
		)
		if err != nil {
			return err
		}
		a.Transport = trans
	case config.TransportLibp2p:
		listen := a.Config.BindAddr
		if listen == "" || listen == config.DefaultBindAddr {
			listen = config.DefaultLibp2pListen
		}
		trans, err := net.NewLibp2pTransport(net.Libp2pConfig{
			ListenAddrs: []string{listen},
			Bootstrap:   a.Peers.Addresses(),
			MDNS:        a.Config.MDNS,
			Identity:    a.Config.Key,
		}, logger)
		if err != nil {
			return err
		}
		a.Transport = trans
	default:
		return fmt.Errorf("unknown transport %q", a.Config.Transport)
	}

	return nil
}

func (a *Agent) initArchive() error {
	if !a.Config.Archive {
		a.logger.Debug("Archive disabled")
		return nil
	}

	a.logger.WithField("path", a.Config.DatabaseDir).Debug("Opening archive")

	arch, err := archive.NewBadgerArchive(a.Config.DatabaseDir, a.logger.WithField("prefix", "archive"))
	if err != nil {
		return err
	}

	a.Archive = arch

	return nil
}

func (a *Agent) initOracle() error {
	switch a.Config.Oracle {
	case config.OracleNone, "":
		a.Oracle = nil
	case config.OracleScripted:
		a.Oracle = oracle.NewScripted(a.Config.Script)
	case config.OracleAnthropic:
		key := a.Config.AnthropicKey
		if key == "" {
			key = os.Getenv("ANTHROPIC_API_KEY")
		}
		if key == "" {
			return fmt.Errorf("the anthropic oracle needs an API key")
		}
		a.Oracle = oracle.NewAnthropic(oracle.AnthropicConfig{
			APIKey:    key,
			Model:     a.Config.AnthropicModel,
			MaxTokens: a.Config.MaxTokens,
		}, a.logger.WithField("prefix", "oracle"))
	default:
		return fmt.Errorf("unknown oracle %q", a.Config.Oracle)
	}

	return nil
}

func (a *Agent) initNode() error {
	a.actor = a.Config.ActorID
	if a.actor == "" {
		a.actor = uuid.New().String()
	}

	profile := node.Profile{
		ID:          a.actor,
		Name:        a.Config.Moniker,
		Personality: a.Config.Personality,
		Story:       a.Config.Story,
		Sample:      a.Config.Sample,
	}

	conf := node.NewConfig(
		a.Config.HeartbeatTimeout,
		a.Config.SyncTimeout,
		a.Config.MaxChainBytes,
		a.Config.LedgerParams(),
		a.Config.Genesis,
		profile,
		a.logger,
	)

	if a.peerBook != nil {
		conf.PeerBook = a.peerBook
	}

	// A nil *BadgerArchive must not become a non-nil Archiver.
	var arch node.Archiver
	if a.Archive != nil {
		arch = a.Archive
	}

	a.Node = node.NewNode(conf, a.Transport, arch)

	if err := a.Node.Init(); err != nil {
		return fmt.Errorf("failed to initialize node: %w", err)
	}

	return nil
}

func (a *Agent) initSpeaker() error {
	if a.Oracle == nil {
		return nil
	}

	a.Speaker = NewSpeaker(
		a.Node,
		a.Oracle,
		a.actor,
		a.Config.SpeakInterval,
		a.Config.OracleTimeout,
		a.logger.WithField("prefix", "speaker"),
	)

	return nil
}

func (a *Agent) initService() error {
	if !a.Config.NoService {
		a.Service = service.NewService(a.Config.ServiceAddr, a.Node, a.logger.WithField("prefix", "service"))
	}
	return nil
}

// Init initializes all the components of the agent. On failure, the
// components created so far are closed.
func (a *Agent) Init() error {
	steps := []func() error{
		a.initKey,
		a.initPeers,
		a.initTransport,
		a.initArchive,
		a.initOracle,
		a.initNode,
		a.initSpeaker,
		a.initService,
	}

	for _, step := range steps {
		if err := step(); err != nil {
			a.abortInit()
			return err
		}
	}

	a.logger.WithFields(logrus.Fields{
		"actor":     a.actor,
		"addr":      a.Transport.AdvertiseAddr(),
		"transport": a.Config.Transport,
		"oracle":    a.Config.Oracle,
	}).Info("Agent ready")

	return nil
}

func (a *Agent) abortInit() {
	if a.Node != nil {
		a.Node.Shutdown()
		return
	}
	if a.Transport != nil {
		a.Transport.Close()
	}
	if a.Archive != nil {
		a.Archive.Close()
	}
}

// Run starts the service, the speaker and the node, and blocks until Shutdown
// is called or one of them fails.
func (a *Agent) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	a.runLock.Lock()
	a.cancel = cancel
	a.runLock.Unlock()

	g, ctx := errgroup.WithContext(ctx)

	if a.Service != nil {
		g.Go(a.Service.Serve)
	}

	if a.Speaker != nil {
		g.Go(func() error {
			a.Speaker.Run(ctx)
			return nil
		})
	}

	g.Go(func() error {
		a.Node.Run()
		// the node only stops on Shutdown
		cancel()
		return nil
	})

	// stop everything when one component fails
	g.Go(func() error {
		<-ctx.Done()
		a.stop()
		return nil
	})

	return g.Wait()
}

// Shutdown stops the agent. Run returns once every component has stopped.
func (a *Agent) Shutdown() {
	a.runLock.Lock()
	cancel := a.cancel
	a.runLock.Unlock()

	if cancel != nil {
		cancel()
		return
	}
	a.stop()
}

func (a *Agent) stop() {
	if a.Service != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.Service.Shutdown(ctx); err != nil {
			a.logger.WithError(err).Warn("Service shutdown")
		}
	}
	a.Node.Shutdown()
}
