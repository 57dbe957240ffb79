// Package legal turns a decision request and the tracked battle state into
// the set of commands the engine will accept.
package legal

import (
	"slices"
	"strconv"
	"strings"

	"showdown-pilot/protocol"
)

type Kind int

const (
	KindMove Kind = iota
	KindSwitch
	KindPass
	KindTeam
	KindDefault
)

func (k Kind) String() string {
	switch k {
	case KindMove:
		return "move"
	case KindSwitch:
		return "switch"
	case KindTeam:
		return "team"
	case KindDefault:
		return "default"
	}
	return "pass"
}

// Action is one legal choice for a slot. Move and roster indices are 1-based,
// as the engine expects them.
type Action struct {
	Kind         Kind
	Slot         int
	MoveIndex    int
	MoveID       string
	MoveName     string
	TargetScheme string
	Target       int
	Transform    protocol.Transform
	RosterIndex  int
	Species      string
	Order        []int
}

func PassAction(slot int) Action {
	return Action{Kind: KindPass, Slot: slot}
}

// Command renders the action as the engine's choice syntax.
func (a Action) Command() string {
	switch a.Kind {
	case KindMove:
		return protocol.MoveCommand(a.MoveIndex, a.Target, a.Transform)
	case KindSwitch:
		return protocol.SwitchCommand(a.RosterIndex)
	case KindTeam:
		return protocol.TeamCommand(a.Order)
	case KindDefault:
		return protocol.Default
	}
	return protocol.Pass
}

func (a Action) String() string {
	return a.Command()
}

// Describe is a one-line label for prompts and menus.
func (a Action) Describe() string {
	switch a.Kind {
	case KindMove:
		var sb strings.Builder
		sb.WriteString(a.Command())
		sb.WriteString(" (" + a.MoveName)
		if a.Target != 0 {
			sb.WriteString(" -> " + TargetLabel(a.Target))
		}
		sb.WriteString(")")
		return sb.String()
	case KindSwitch:
		return a.Command() + " (" + a.Species + ")"
	}
	return a.Command()
}

// TargetLabel names a signed target offset.
func TargetLabel(target int) string {
	switch {
	case target > 0:
		return "foe " + strconv.Itoa(target)
	case target < 0:
		return "own " + strconv.Itoa(-target)
	}
	return "auto"
}

// SlotActions is the legal set for one active position.
type SlotActions struct {
	Slot       int
	Skip       bool
	MustSwitch bool
	Trapped    bool
	Moves      []Action
	Switches   []Action
	// Transforms lists the once-per-battle keywords that may be appended to a
	// plain move this turn.
	Transforms []protocol.Transform
}

// All lists every concrete action, plain moves first. Transform variants are
// not expanded.
func (s SlotActions) All() []Action {
	if s.Skip {
		return []Action{PassAction(s.Slot)}
	}
	out := make([]Action, 0, len(s.Moves)+len(s.Switches))
	out = append(out, s.Moves...)
	out = append(out, s.Switches...)
	if len(out) == 0 {
		out = append(out, PassAction(s.Slot))
	}
	return out
}

// Choices counts the options a provider would actually pick between.
func (s SlotActions) Choices() int {
	if s.Skip {
		return 0
	}
	return len(s.Moves) + len(s.Switches)
}

func (s SlotActions) CanTransform(t protocol.Transform) bool {
	return slices.Contains(s.Transforms, t)
}

// Allows reports whether a is in the legal set, including a plain move
// carrying one of the advertised transforms.
func (s SlotActions) Allows(a Action) bool {
	switch a.Kind {
	case KindPass:
		return s.Skip || s.Choices() == 0
	case KindDefault:
		return true
	case KindSwitch:
		if s.Skip {
			return false
		}
		for _, sw := range s.Switches {
			if sw.RosterIndex == a.RosterIndex {
				return true
			}
		}
		return false
	case KindMove:
		if s.Skip {
			return false
		}
		for _, m := range s.Moves {
			if m.MoveIndex != a.MoveIndex || m.Target != a.Target {
				continue
			}
			if m.Transform == a.Transform {
				return true
			}
			if m.Transform == protocol.NoTransform && a.Transform != protocol.ZMoveBurst && s.CanTransform(a.Transform) {
				return true
			}
		}
	}
	return false
}

// Resolve maps a parsed free-text command onto the enumerated action it
// names. A move without a target resolves when only one target is legal for
// that move.
func (s SlotActions) Resolve(cmd protocol.Command) (Action, bool) {
	switch cmd.Kind {
	case protocol.CommandPass:
		a := PassAction(s.Slot)
		return a, s.Allows(a)
	case protocol.CommandDefault:
		return Action{Kind: KindDefault, Slot: s.Slot}, true
	case protocol.CommandSwitch:
		for _, sw := range s.Switches {
			if sw.RosterIndex == cmd.Index {
				return sw, !s.Skip
			}
		}
	case protocol.CommandMove:
		if s.Skip {
			return Action{}, false
		}
		var matches []Action
		for _, m := range s.Moves {
			if m.MoveIndex != cmd.Index {
				continue
			}
			if cmd.Target != 0 && m.Target != cmd.Target {
				continue
			}
			if m.Transform == cmd.Transform {
				matches = append(matches, m)
			} else if m.Transform == protocol.NoTransform && cmd.Transform != protocol.ZMoveBurst && s.CanTransform(cmd.Transform) {
				m.Transform = cmd.Transform
				matches = append(matches, m)
			}
		}
		if len(matches) == 1 || (len(matches) > 1 && cmd.Target != 0) {
			return matches[0], true
		}
	}
	return Action{}, false
}

// Fallback is the pinned always-legal choice used when a provider fails:
// the first switch for a forced slot, otherwise the first move, otherwise
// pass.
func (s SlotActions) Fallback() Action {
	if s.Skip {
		return PassAction(s.Slot)
	}
	if s.MustSwitch {
		if len(s.Switches) > 0 {
			return s.Switches[0]
		}
		return PassAction(s.Slot)
	}
	for _, m := range s.Moves {
		if m.Transform == protocol.NoTransform {
			return m
		}
	}
	if len(s.Moves) > 0 {
		return s.Moves[0]
	}
	if len(s.Switches) > 0 {
		return s.Switches[0]
	}
	return PassAction(s.Slot)
}

// RosterMember is the team-preview view of one roster entry.
type RosterMember struct {
	Index    int
	Name     string
	Species  string
	Details  string
	Item     string
	Ability  string
	TeraType string
	Moves    []string
}

// Options is the enumerator output for one request.
type Options struct {
	Kind      protocol.Kind
	RQID      int
	Slots     []SlotActions
	Roster    []RosterMember
	LeadCount int
}

// DefaultTeamOrder is the identity permutation 1..n.
func DefaultTeamOrder(n int) []int {
	order := make([]int, n)
	for i := range order {
		order[i] = i + 1
	}
	return order
}

// AllowsTeam checks a team-preview order: distinct roster indices, at least
// the lead count of them.
func (o Options) AllowsTeam(order []int) bool {
	if len(order) == 0 || len(order) > len(o.Roster) {
		return false
	}
	if o.LeadCount > 0 && len(order) < min(o.LeadCount, len(o.Roster)) {
		return false
	}
	seen := make(map[int]bool, len(order))
	for _, i := range order {
		if i < 1 || i > len(o.Roster) || seen[i] {
			return false
		}
		seen[i] = true
	}
	return true
}

// TeamAction builds the team-preview action for an order.
func TeamAction(order []int) Action {
	return Action{Kind: KindTeam, Order: slices.Clone(order)}
}
