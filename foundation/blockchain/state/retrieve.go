package state

import "github.com/fractalchain/node/foundation/blockchain/peer"

// RetrieveKnownPeers retrieves a copy of the known peer list, excluding
// this node's own host.
func (s *State) RetrieveKnownPeers() []peer.Peer {
	return s.knownPeers.Copy(s.host)
}

// AddKnownPeer adds a newly discovered peer to this node's peer set. It
// reports true if the peer wasn't already known.
func (s *State) AddKnownPeer(p peer.Peer) bool {
	return s.knownPeers.Add(p)
}

// RemoveKnownPeer drops a peer this node can no longer reach.
func (s *State) RemoveKnownPeer(p peer.Peer) {
	s.knownPeers.Remove(p)
}
