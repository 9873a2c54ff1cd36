// Package node implements ServiceNode, the orchestrator owning all
// mutable replication state (spec §4.G). It is grounded on the
// teacher's former cmd/server/main.go wiring of store/membership/replicator
// into one object (now cmd/storageserver) and on
// original_source/httpserver/service_node.cpp's on_swarm_update/timer
// orchestration, generalized from the teacher's KV-quorum model to
// swarm-replicated message storage.
package node

import (
	"context"
	"log"
	"sync"
	"time"

	"distributed-kvstore/internal/cryptoutil"
	"distributed-kvstore/internal/listen"
	"distributed-kvstore/internal/message"
	"distributed-kvstore/internal/peertest"
	"distributed-kvstore/internal/powcheck"
	"distributed-kvstore/internal/powschedule"
	"distributed-kvstore/internal/registry"
	"distributed-kvstore/internal/replicate"
	"distributed-kvstore/internal/stats"
	"distributed-kvstore/internal/swarmtable"
)

// StorageServerHardfork is the minimum hardfork revision at which this
// node is allowed to serve client writes (spec §4.G Ready predicate).
const StorageServerHardfork = 18

// MessageStore is the persistence collaborator (spec §6), satisfied by
// internal/msgstore.Store.
type MessageStore interface {
	Store(msg message.Message) (bool, error)
	BulkStore(msgs []message.Message) (bool, error)
	Retrieve(pubkey, lastHash string, limit int) ([]message.Message, error)
	RetrieveByHash(hash string) (message.Message, bool, error)
	Count() (uint64, error)
	RetrieveByIndex(i uint64) (message.Message, error)
	RetrieveAll() ([]message.Message, error)
}

// Config bundles the timer intervals and feature flags an operator can
// tune, mirroring cmd/storageserver/main.go's flat flag-based config.
type Config struct {
	ForceStart           bool
	SwarmUpdateInterval  time.Duration // 1s normally, 200ms in integration mode
	LokidPingInterval    time.Duration
	StatsCleanupInterval time.Duration
	PowRefreshInterval   time.Duration
}

// DefaultConfig returns the production timer intervals (spec §4.G).
func DefaultConfig() Config {
	return Config{
		SwarmUpdateInterval:  1 * time.Second,
		LokidPingInterval:    5 * time.Minute,
		StatsCleanupInterval: 60 * time.Minute,
		PowRefreshInterval:   powschedule.RefreshInterval,
	}
}

// ServiceNode owns every piece of mutable replication state: the
// current BlockUpdate view, the swarm table, the listener registry,
// peer stats, and all timers (spec §4.G "Ownership").
type ServiceNode struct {
	mu sync.Mutex

	cfg  Config
	keys cryptoutil.NodeKeys

	store      MessageStore
	registryC  registry.Client
	replicator *replicate.Replicator
	listeners  *listen.Registry
	stats      *stats.Stats
	powStore   *powschedule.Store
	verifyPoW  powcheck.Verify

	currentHeight uint64
	currentHash   [32]byte
	haveBlock     bool
	priorSwarms   swarmtable.SwarmTable
	currentSwarms swarmtable.SwarmTable
	ourSwarmID    swarmtable.SwarmID
	hashCache     *blockHashCache

	syncing  bool
	hardfork uint16
}

// New wires a ServiceNode from its collaborators.
func New(cfg Config, keys cryptoutil.NodeKeys, store MessageStore, registryC registry.Client, replicator *replicate.Replicator, listeners *listen.Registry, st *stats.Stats, powStore *powschedule.Store, verifyPoW powcheck.Verify) *ServiceNode {
	if verifyPoW == nil {
		verifyPoW = powcheck.Default
	}
	return &ServiceNode{
		cfg:        cfg,
		keys:       keys,
		store:      store,
		registryC:  registryC,
		replicator: replicator,
		listeners:  listeners,
		stats:      st,
		powStore:   powStore,
		verifyPoW:  verifyPoW,
		hashCache:  newBlockHashCache(),
		ourSwarmID: swarmtable.InvalidSwarmID,
	}
}

// Ready reports whether this node may serve client writes (spec §4.G).
func (n *ServiceNode) Ready() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.readyLocked()
}

func (n *ServiceNode) readyLocked() bool {
	if n.cfg.ForceStart {
		return true
	}
	inSwarm := n.ourSwarmID != swarmtable.InvalidSwarmID
	return n.hardfork >= StorageServerHardfork && inSwarm && !n.syncing
}

// selfRecord builds the NodeRecord identifying this node, derived from
// its keys — used for swarm-membership comparisons.
func (n *ServiceNode) selfRecord() swarmtable.NodeRecord {
	return swarmtable.NodeRecord{
		PubkeyLegacy:  n.keys.LegacyPublic,
		PubkeyX25519:  n.keys.X25519Public,
		PubkeyEd25519: n.keys.Ed25519Public,
		Base32zAddr:   n.keys.Address,
	}
}

// currentSwarmMembers returns our own swarm's full member list
// (including self), used for tester/testee election.
func (n *ServiceNode) currentSwarmMembers() []swarmtable.NodeRecord {
	for _, s := range n.currentSwarms {
		if s.ID == n.ourSwarmID {
			return s.Members
		}
	}
	return nil
}

// Run starts the SwarmUpdate, LokidPing, and StatsCleanup timers and
// blocks until ctx is cancelled. It does not start the
// PowDifficultyRefresh timer: that is a powschedule.Refresher, launched
// separately by cmd/storageserver against the same powStore.
func (n *ServiceNode) Run(ctx context.Context) {
	var wg sync.WaitGroup

	wg.Add(3)
	go func() { defer wg.Done(); n.runSwarmUpdateTimer(ctx) }()
	go func() { defer wg.Done(); n.runLokidPingTimer(ctx) }()
	go func() { defer wg.Done(); n.runStatsCleanupTimer(ctx) }()

	wg.Wait()
}

func (n *ServiceNode) runSwarmUpdateTimer(ctx context.Context) {
	ticker := time.NewTicker(n.cfg.SwarmUpdateInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.tickSwarmUpdate(ctx)
		}
	}
}

func (n *ServiceNode) tickSwarmUpdate(ctx context.Context) {
	snap, err := n.registryC.Snapshot(ctx)
	if err != nil {
		log.Printf("node: registry snapshot failed, retrying next tick: %v", err)
		return
	}
	n.applySnapshot(snap)
}

func (n *ServiceNode) runLokidPingTimer(ctx context.Context) {
	ticker := time.NewTicker(n.cfg.LokidPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := n.registryC.Ping(ctx); err != nil {
				log.Printf("node: lokid ping failed: %v", err)
			}
		}
	}
}

func (n *ServiceNode) runStatsCleanupTimer(ctx context.Context) {
	ticker := time.NewTicker(n.cfg.StatsCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.stats.Cleanup()
		}
	}
}

// HashAt resolves a cached block height to its hash, for
// peertest.HashLookup.
func (n *ServiceNode) HashAt(height uint64) ([32]byte, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.hashCache.get(height)
}

// CurrentHeight returns the most recently observed block height.
func (n *ServiceNode) CurrentHeight() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.currentHeight
}

// ElectForHeight runs the deterministic tester/testee election against
// our current swarm membership (spec §4.F).
func (n *ServiceNode) ElectForHeight(height uint64) (peertest.Pair, peertest.Signal) {
	n.mu.Lock()
	members := n.currentSwarmMembers()
	self := n.selfRecord()
	current := n.currentHeight
	n.mu.Unlock()

	if len(members) == 0 {
		members = []swarmtable.NodeRecord{self}
	}
	return peertest.DeriveTesterTestee(height, current, n.HashAt, members)
}

// SelfRecord exposes this node's own NodeRecord, used by the Boundary
// layer's /health endpoint to report our address.
func (n *ServiceNode) SelfRecord() swarmtable.NodeRecord {
	return n.selfRecord()
}

// SwarmTableSnapshot returns the current registry-derived swarm table,
// used by the Boundary layer to resolve a relay request's claimed
// address to the NodeRecord it must have signed with.
func (n *ServiceNode) SwarmTableSnapshot() swarmtable.SwarmTable {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.currentSwarms
}

// Keys exposes this node's own keypairs.
func (n *ServiceNode) Keys() cryptoutil.NodeKeys {
	return n.keys
}

// Stats exposes the shared Stats table for the Boundary layer's stats
// JSON endpoint.
func (n *ServiceNode) Stats() *stats.Stats {
	return n.stats
}

// Store exposes the MessageStore collaborator for the Boundary layer's
// client retrieve handler.
func (n *ServiceNode) Store() MessageStore {
	return n.store
}

// Listeners exposes the ListenerRegistry for the Boundary layer's
// long-poll retrieve handler.
func (n *ServiceNode) Listeners() *listen.Registry {
	return n.listeners
}
