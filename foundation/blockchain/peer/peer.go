// Package peer maintains the peer related information such as the set
// of know peers and their status.
package peer

import (
	"sync"
	"time"
)

// Peer represents information about a Node in the network.
type Peer struct {
	Host string
}

// New contructs a new info value.
func New(host string) Peer {
	return Peer{
		Host: host,
	}
}

// Match validates if the specified host matches this node.
func (p Peer) Match(host string) bool {
	return p.Host == host
}

// =============================================================================

// PeerStatus represents information about the status
// of any given peer.
type PeerStatus struct {
	LatestBlockHash   string `json:"latest_block_hash"`
	LatestBlockNumber uint64 `json:"latest_block_number"`
	KnownPeers        []Peer `json:"known_peers"`
}

// =============================================================================

// SyncState represents where a peer connection sits in the handshake/sync
// lifecycle described by the network protocol.
type SyncState string

// The set of states a peer connection passes through, in order, absent an
// error. A connection never moves backward.
const (
	StateConnecting  SyncState = "connecting"
	StateHandshaking SyncState = "handshaking"
	StateSyncing     SyncState = "syncing"
	StateLive        SyncState = "live"
	StateClosed      SyncState = "closed"
)

// Info tracks everything the network dispatcher needs to know about one
// live connection: its protocol identity, where it claims to be in the
// chain, and its place in the sync state machine.
type Info struct {
	mu sync.RWMutex

	NodeID  string
	Host    string
	Version uint32

	height     uint64
	blockHash  string
	state      SyncState
	reputation int
	lastSeen   time.Time
}

// NewInfo constructs tracking state for a freshly accepted or dialed
// connection. It starts in StateConnecting.
func NewInfo(nodeID, host string, version uint32) *Info {
	return &Info{
		NodeID:     nodeID,
		Host:       host,
		Version:    version,
		state:      StateConnecting,
		reputation: 0,
		lastSeen:   time.Now(),
	}
}

// Transition moves the connection to a new state. The sync state machine is
// expected to only ever move forward through Connecting, Handshaking,
// Syncing, Live, and Closed, but this does not enforce that ordering since
// an error at any point can jump straight to Closed.
func (i *Info) Transition(state SyncState) {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.state = state
}

// State reports the connection's current position in the sync lifecycle.
func (i *Info) State() SyncState {
	i.mu.RLock()
	defer i.mu.RUnlock()

	return i.state
}

// UpdateHeight records the peer's most recently announced height and block
// hash, as learned from a handshake, inv_block, or headers response.
func (i *Info) UpdateHeight(height uint64, blockHash string) {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.height = height
	i.blockHash = blockHash
	i.lastSeen = time.Now()
}

// Height reports the peer's last known chain height.
func (i *Info) Height() uint64 {
	i.mu.RLock()
	defer i.mu.RUnlock()

	return i.height
}

// BlockHash reports the peer's last known tip hash.
func (i *Info) BlockHash() string {
	i.mu.RLock()
	defer i.mu.RUnlock()

	return i.blockHash
}

// Touch records that a valid message was just received from this peer,
// resetting the idle-read timer.
func (i *Info) Touch() {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.lastSeen = time.Now()
}

// IdleFor reports how long it has been since the last message from this
// peer was received.
func (i *Info) IdleFor() time.Duration {
	i.mu.RLock()
	defer i.mu.RUnlock()

	return time.Since(i.lastSeen)
}

// Penalize decrements the peer's reputation for a validation error. It
// reports the new reputation so the caller can decide whether to disconnect.
func (i *Info) Penalize(amount int) int {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.reputation -= amount
	return i.reputation
}

// Reputation reports the peer's current reputation score.
func (i *Info) Reputation() int {
	i.mu.RLock()
	defer i.mu.RUnlock()

	return i.reputation
}

// =============================================================================

// PeerSet represents the data representation to maintain a set of known peers.
type PeerSet struct {
	mu  sync.RWMutex
	set map[Peer]struct{}
}

// NewPeerSet constructs a new info set to manage node peer information.
func NewPeerSet() *PeerSet {
	return &PeerSet{
		set: make(map[Peer]struct{}),
	}
}

// Add adds a new node to the set.
func (ps *PeerSet) Add(peer Peer) bool {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	_, exists := ps.set[peer]
	if !exists {
		ps.set[peer] = struct{}{}
		return true
	}

	return false
}

// Remove removes a node from the set.
func (ps *PeerSet) Remove(peer Peer) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	delete(ps.set, peer)
}

// Copy returns a list of the known peers.
func (ps *PeerSet) Copy(host string) []Peer {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	var peers []Peer
	for peer := range ps.set {
		if !peer.Match(host) {
			peers = append(peers, peer)
		}
	}

	return peers
}
