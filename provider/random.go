package provider

import (
	"context"
	"math/rand"
	"sync"

	"showdown-pilot/legal"
	"showdown-pilot/protocol"
)

// Random picks uniformly among the legal actions.
type Random struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewRandom(seed int64) *Random {
	return &Random{rng: rand.New(rand.NewSource(seed))}
}

func (r *Random) Name() string { return "random" }

func (r *Random) Decide(_ context.Context, in Input) (legal.Action, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if in.Kind == protocol.KindTeamPreview {
		perm := r.rng.Perm(len(in.Options.Roster))
		order := make([]int, len(perm))
		for i, p := range perm {
			order[i] = p + 1
		}
		return legal.TeamAction(order), nil
	}
	all := in.Slot.All()
	return all[r.rng.Intn(len(all))], nil
}
