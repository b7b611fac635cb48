package state

import (
	"github.com/contentledger/blockchain/foundation/blockchain/peer"
)

// AddKnownPeer provides the ability to add a new peer. It reports whether
// the peer was not known before.
func (s *State) AddKnownPeer(peer peer.Peer) bool {
	if peer.Match(s.host) {
		return false
	}
	return s.knownPeers.Add(peer)
}

// RemoveKnownPeer removes the peer from the known peer list.
func (s *State) RemoveKnownPeer(peer peer.Peer) {
	s.knownPeers.Remove(peer)
}
