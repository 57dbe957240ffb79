package legal

import (
	"showdown-pilot/game"
	"showdown-pilot/protocol"
)

// Selection is the exclusion set shared by the sequential sub-decisions of
// one request: roster members already sent in and transforms already
// claimed by an earlier slot.
type Selection struct {
	switched map[int]bool
	claimed  map[protocol.Transform]bool
}

func NewSelection() *Selection {
	return &Selection{
		switched: make(map[int]bool),
		claimed:  make(map[protocol.Transform]bool),
	}
}

// Claim records a decided action.
func (s *Selection) Claim(a Action) {
	if s == nil {
		return
	}
	switch a.Kind {
	case KindSwitch:
		s.switched[a.RosterIndex] = true
	case KindMove:
		if a.Transform != protocol.NoTransform {
			s.claimed[a.Transform] = true
		}
	}
}

func (s *Selection) Switched(rosterIndex int) bool {
	return s != nil && s.switched[rosterIndex]
}

func (s *Selection) Claimed(t protocol.Transform) bool {
	return s != nil && s.claimed[t]
}

// Enumerate computes the legal set of every slot independently. Multi-slot
// resolution that must respect earlier picks goes through ForceSwitchSlot
// and ActiveSlot with a shared Selection.
func Enumerate(req *protocol.Request, state *game.BattleState) Options {
	opts := Options{Kind: req.Kind()}
	if req == nil {
		return opts
	}
	opts.RQID = req.RQID
	switch opts.Kind {
	case protocol.KindTeamPreview:
		opts.Roster = roster(req)
		opts.LeadCount = req.MaxChosenTeamSize
		if opts.LeadCount <= 0 {
			opts.LeadCount = len(opts.Roster)
		}
	case protocol.KindForceSwitch:
		for slot := range req.ForceSwitch {
			opts.Slots = append(opts.Slots, ForceSwitchSlot(req, slot, nil))
		}
	case protocol.KindActive:
		for slot := range req.Active {
			opts.Slots = append(opts.Slots, ActiveSlot(req, state, slot, nil))
		}
	}
	return opts
}

func roster(req *protocol.Request) []RosterMember {
	out := make([]RosterMember, 0, len(req.Side.Pokemon))
	for i, p := range req.Side.Pokemon {
		out = append(out, RosterMember{
			Index:    i + 1,
			Name:     p.Name(),
			Species:  p.Species(),
			Details:  p.Details,
			Item:     p.Item,
			Ability:  p.Ability,
			TeraType: p.TeraType,
			Moves:    p.Moves,
		})
	}
	return out
}

// ForceSwitchSlot lists the replacements for one slot of a forced-switch
// request. Members already active or already picked by an earlier slot are
// excluded. A reviving slot picks among fainted members instead.
func ForceSwitchSlot(req *protocol.Request, slot int, sel *Selection) SlotActions {
	sa := SlotActions{Slot: slot}
	if slot >= len(req.ForceSwitch) || !req.ForceSwitch[slot] {
		sa.Skip = true
		return sa
	}
	sa.MustSwitch = true
	reviving := false
	if occupant, ok := req.Member(slot); ok {
		reviving = occupant.Reviving
	}
	sa.Switches = switchCandidates(req, slot, sel, reviving)
	if len(sa.Switches) == 0 {
		sa.Skip = true
	}
	return sa
}

func switchCandidates(req *protocol.Request, slot int, sel *Selection, reviving bool) []Action {
	var out []Action
	for i, p := range req.Side.Pokemon {
		idx := i + 1
		if i < req.Slots() || p.Active {
			continue
		}
		if p.Fainted() != reviving || sel.Switched(idx) {
			continue
		}
		out = append(out, Action{Kind: KindSwitch, Slot: slot, RosterIndex: idx, Species: p.Species()})
	}
	return out
}

// ActiveSlot lists the moves, switches and transforms of one slot of an
// active-turn request.
func ActiveSlot(req *protocol.Request, state *game.BattleState, slot int, sel *Selection) SlotActions {
	sa := SlotActions{Slot: slot}
	if slot >= len(req.Active) {
		sa.Skip = true
		return sa
	}
	occupant, ok := req.Member(slot)
	if !ok || occupant.Fainted() || occupant.Commanding {
		sa.Skip = true
		return sa
	}
	opts := req.Active[slot]
	side := ownSide(req, state)
	available := func(t protocol.Transform) bool {
		return !sel.Claimed(t) && (side == nil || !side.Used(t))
	}

	t := targeter{req: req, state: state, slot: slot, slots: len(req.Active)}
	if opts.MaxMoves != nil && len(opts.MaxMoves.Moves) > 0 && !opts.CanDynamax {
		for i, m := range opts.MaxMoves.Moves {
			if m.Disabled.OK {
				continue
			}
			sa.Moves = t.appendMove(sa.Moves, i+1, "", m.Move, m.Target, protocol.NoTransform)
		}
	} else {
		for i, m := range opts.Moves {
			if m.Disabled.OK {
				continue
			}
			sa.Moves = t.appendMove(sa.Moves, i+1, m.ID, m.Move, m.Target, protocol.NoTransform)
		}
	}
	if len(sa.Moves) == 0 && len(t.allyOnly) > 0 {
		sa.Moves = t.allyOnly
	}

	if len(opts.CanZMove) > 0 && available(protocol.ZMoveBurst) {
		for i, z := range opts.CanZMove {
			if z == nil || z.Move == "" {
				continue
			}
			sa.Moves = t.appendMove(sa.Moves, i+1, "", z.Move, z.Target, protocol.ZMoveBurst)
		}
	}

	if opts.CanTerastallize.OK && available(protocol.Terastallize) {
		sa.Transforms = append(sa.Transforms, protocol.Terastallize)
	}
	if opts.CanDynamax && available(protocol.Dynamax) {
		sa.Transforms = append(sa.Transforms, protocol.Dynamax)
	}
	if opts.CanMegaEvo && available(protocol.Mega) {
		sa.Transforms = append(sa.Transforms, protocol.Mega)
	}
	if opts.CanUltraBurst && available(protocol.Ultra) {
		sa.Transforms = append(sa.Transforms, protocol.Ultra)
	}

	sa.Trapped = opts.Trapped
	if !sa.Trapped {
		sa.Switches = switchCandidates(req, slot, sel, false)
	}
	sa.Moves = dedupe(sa.Moves)
	return sa
}

func ownSide(req *protocol.Request, state *game.BattleState) *game.SideState {
	if state == nil {
		return nil
	}
	i := req.SideIndex()
	if i < 0 {
		i = state.Self
	}
	if i < 0 || i > 1 {
		return nil
	}
	return state.Sides[i]
}

func dedupe(actions []Action) []Action {
	seen := make(map[string]bool, len(actions))
	out := actions[:0]
	for _, a := range actions {
		c := a.Command()
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, a)
	}
	return out
}

// targeter expands a move into one action per legal target offset. Foes are
// +1..+n left to right, the own side -1..-n.
type targeter struct {
	req   *protocol.Request
	state *game.BattleState
	slot  int
	slots int
	// allyOnly keeps moves dropped because their only target is a fainted
	// ally, for when nothing else remains.
	allyOnly []Action
}

func (t *targeter) appendMove(out []Action, index int, id, name, scheme string, tr protocol.Transform) []Action {
	base := Action{
		Kind:         KindMove,
		Slot:         t.slot,
		MoveIndex:    index,
		MoveID:       id,
		MoveName:     name,
		TargetScheme: scheme,
		Transform:    tr,
	}
	if t.slots < 2 {
		return append(out, base)
	}
	self := -(t.slot + 1)
	switch scheme {
	case "adjacentAlly":
		ally, alive := t.ally()
		if !alive {
			base.Target = self
			if tr == protocol.NoTransform {
				t.allyOnly = append(t.allyOnly, base)
			}
			return out
		}
		base.Target = -(ally + 1)
		return append(out, base)
	case "adjacentAllyOrSelf":
		if ally, alive := t.ally(); alive {
			base.Target = -(ally + 1)
		} else {
			base.Target = self
		}
		return append(out, base)
	case "normal", "any", "adjacentFoe":
		for _, foe := range t.foes() {
			a := base
			a.Target = foe + 1
			out = append(out, a)
		}
		return out
	}
	return append(out, base)
}

func (t *targeter) ally() (int, bool) {
	ally := 1 - t.slot
	if t.slot > 1 {
		ally = t.slot - 1
	}
	p, ok := t.req.Member(ally)
	return ally, ok && ally < t.slots && !p.Fainted()
}

// foes returns the opposing slot indices with a living occupant, or the
// first slot when none is known.
func (t *targeter) foes() []int {
	var out []int
	if t.state != nil {
		if own := sideIndex(t.req, t.state); own == 0 || own == 1 {
			for j, s := range t.state.Sides[1-own].Slots {
				if j >= t.slots {
					break
				}
				if !s.Empty() && !s.Fainted() {
					out = append(out, j)
				}
			}
		}
	}
	if len(out) == 0 {
		out = []int{0}
	}
	return out
}

func sideIndex(req *protocol.Request, state *game.BattleState) int {
	if i := req.SideIndex(); i >= 0 {
		return i
	}
	return state.Self
}
