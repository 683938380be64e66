package app

import (
	"hash/fnv"

	"github.com/samber/lo"

	"github.com/dkeye/Pulse/internal/domain"
)

// Shard maps every room onto one owning instance with highest random
// weight hashing, so all gateways agree on the owner without talking
// to each other. Sends for a room are sequenced only on its owner.
type Shard struct {
	self  string
	peers []string
}

// NewShard builds the ring from the configured peer ids. Self is always
// a peer, so a solo instance owns everything.
func NewShard(self string, peers []string) *Shard {
	if !lo.Contains(peers, self) {
		peers = append(append([]string{}, peers...), self)
	}
	return &Shard{self: self, peers: peers}
}

func (s *Shard) Self() string { return s.self }

func (s *Shard) Owner(room domain.RoomID) string {
	best := s.self
	var bestScore uint64
	for _, peer := range s.peers {
		h := fnv.New64a()
		h.Write([]byte(peer))
		h.Write([]byte{0})
		h.Write([]byte(room))
		score := h.Sum64()
		if score > bestScore || (score == bestScore && peer < best) {
			best, bestScore = peer, score
		}
	}
	return best
}

func (s *Shard) Owns(room domain.RoomID) bool { return s.Owner(room) == s.self }
