package evmscan

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Subscriptions is the per-chain subscription set: address -> set of topic
// hashes, whose union forms the scan filter. An empty set means "do not
// scan" (cowardly refusal), matching the reference implementation's comment
// "Addresses and topics are empty. Cowardly refusing to process all
// ethereum transactions."
type Subscriptions struct {
	mu     sync.RWMutex
	topics map[common.Address]map[common.Hash]struct{}
}

// NewSubscriptions creates an empty subscription set.
func NewSubscriptions() *Subscriptions {
	return &Subscriptions{topics: make(map[common.Address]map[common.Hash]struct{})}
}

// AddTopic subscribes to (address, topic).
func (s *Subscriptions) AddTopic(address common.Address, topic common.Hash) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.topics[address]
	if !ok {
		set = make(map[common.Hash]struct{})
		s.topics[address] = set
	}
	set[topic] = struct{}{}
}

// RemoveTopic unsubscribes (address, topic). Removing the last topic for an
// address drops the address entirely.
func (s *Subscriptions) RemoveTopic(address common.Address, topic common.Hash) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.topics[address]
	if !ok {
		return
	}
	delete(set, topic)
	if len(set) == 0 {
		delete(s.topics, address)
	}
}

// RemoveAddress unsubscribes every topic for address.
func (s *Subscriptions) RemoveAddress(address common.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.topics, address)
}

// IsEmpty reports whether the subscription set has no addresses at all.
func (s *Subscriptions) IsEmpty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.topics) == 0
}

// Snapshot returns the current addresses and the union of all subscribed
// topics, suitable for building an ethereum.FilterQuery.
func (s *Subscriptions) Snapshot() (addresses []common.Address, topics []common.Hash) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seenTopics := make(map[common.Hash]struct{})
	for addr, set := range s.topics {
		addresses = append(addresses, addr)
		for t := range set {
			seenTopics[t] = struct{}{}
		}
	}
	for t := range seenTopics {
		topics = append(topics, t)
	}
	return addresses, topics
}

// Matches reports whether address/topic (the log's topic0) is subscribed.
func (s *Subscriptions) Matches(address common.Address, topic common.Hash) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set, ok := s.topics[address]
	if !ok {
		return false
	}
	_, ok = set[topic]
	return ok
}
