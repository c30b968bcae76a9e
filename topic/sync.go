package topic

import (
	"context"

	"github.com/nextgraph-org/ng-repo-go/common/crypto/hash"
	"github.com/nextgraph-org/ng-repo-go/repo"
	"github.com/nextgraph-org/ng-repo-go/store"
)

// SyncReq is a subscriber's request to catch up to a branch's current
// state (spec §4.5 TopicSyncReq): KnownHeads is the subscriber's local
// frontier, TargetHeads is the frontier it wants to reach.
type SyncReq struct {
	Topic       Id       `cbor:"1,keyasint"`
	KnownHeads  []hash.H `cbor:"2,keyasint"`
	TargetHeads []hash.H `cbor:"3,keyasint"`
}

// SubRes is the broker's reply to a TopicSub (spec §4.5 TopicSubRes).
type SubRes struct {
	Topic      Id       `cbor:"1,keyasint"`
	KnownHeads []hash.H `cbor:"2,keyasint"`
	Publisher  PeerId   `cbor:"3,keyasint"`
}

// SyncUnit is one emitted unit of a causal sync stream: exactly one of
// Block or Event is set (spec §4.5 "TopicSyncRes::Block | TopicSyncRes::Event").
type SyncUnit struct {
	Block *store.Block
	Event *Event
}

// CausalSource resolves a commit by id, used to walk the acks graph when
// planning a causal sync. A verifier.Branch satisfies this directly since
// it already indexes every commit it has accepted.
type CausalSource interface {
	Commit(id hash.H) (*repo.Commit, bool)
}

// PlanCausalSync returns the commit ids reachable backward from
// targetHeads through Acks, stopping at anything reachable from
// knownHeads, ordered so that every commit's acks-closure is returned
// before the commit itself (spec §4.5 "Causal sync").
func PlanCausalSync(source CausalSource, knownHeads, targetHeads []hash.H) ([]hash.H, error) {
	known := make(map[hash.H]bool)
	var markKnown func(id hash.H)
	markKnown = func(id hash.H) {
		if known[id] {
			return
		}
		known[id] = true
		c, ok := source.Commit(id)
		if !ok {
			return
		}
		for _, a := range c.Header.Acks {
			markKnown(a)
		}
	}
	for _, id := range knownHeads {
		markKnown(id)
	}

	var order []hash.H
	visited := make(map[hash.H]bool)
	var visit func(id hash.H) error
	visit = func(id hash.H) error {
		if known[id] || visited[id] {
			return nil
		}
		visited[id] = true
		c, ok := source.Commit(id)
		if !ok {
			return &store.MissingBlocks{IDs: []hash.H{id}}
		}
		for _, a := range c.Header.Acks {
			if err := visit(a); err != nil {
				return err
			}
		}
		order = append(order, id)
		return nil
	}
	for _, id := range targetHeads {
		if err := visit(id); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// RunCausalSync plans the sync from knownHeads to targetHeads and emits one
// SyncUnit per commit's root block onto out, in causal order. It returns
// when the plan is exhausted or ctx is cancelled; a send to a receiver that
// stops draining out blocks until ctx is cancelled (closing out is the
// caller's responsibility; per spec, a
// receiver cancels by closing its end and the sender must stop within one
// emitted unit — here that means ctx should be cancelled alongside closing
// the receive side).
func RunCausalSync(ctx context.Context, source CausalSource, s *store.Store, knownHeads, targetHeads []hash.H, out chan<- SyncUnit) error {
	order, err := PlanCausalSync(source, knownHeads, targetHeads)
	if err != nil {
		return err
	}

	for _, id := range order {
		c, ok := source.Commit(id)
		if !ok {
			return &store.MissingBlocks{IDs: []hash.H{id}}
		}
		blk, err := s.Get(c.Content.Body.ID)
		if err != nil {
			return err
		}

		select {
		case out <- SyncUnit{Block: blk}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
