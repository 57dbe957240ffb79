// Package provider holds the decision strategies. Each one picks a single
// action from the legal set of one slot; the orchestrator owns everything
// else.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"showdown-pilot/game"
	"showdown-pilot/legal"
	"showdown-pilot/protocol"
)

var (
	// ErrTransient marks failures worth retrying with the same provider.
	ErrTransient = errors.New("provider: transient failure")
	// ErrNoChoice means the provider answered but named no legal action.
	ErrNoChoice = errors.New("provider: no legal choice")
	// ErrUnavailable means the provider cannot serve requests at all.
	ErrUnavailable = errors.New("provider: unavailable")
)

// Input is everything a provider sees for one slot decision. State is a
// snapshot the provider may read freely.
type Input struct {
	Kind           protocol.Kind
	Slot           legal.SlotActions
	Options        legal.Options
	State          *game.BattleState
	History        string
	OpposingChoice string
	Turn           int
}

type DecisionProvider interface {
	Decide(ctx context.Context, in Input) (legal.Action, error)
}

// Func adapts a function to DecisionProvider.
type Func func(ctx context.Context, in Input) (legal.Action, error)

func (f Func) Decide(ctx context.Context, in Input) (legal.Action, error) {
	return f(ctx, in)
}

// Publisher receives the public choice of an interactive side.
type Publisher interface {
	Publish(choice string)
}

// IsTransient reports whether err is worth a retry: explicit ErrTransient,
// network timeouts and per-call deadlines.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTransient) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// ParseChoice resolves free text (a model reply, a script result, a typed
// line) against the legal set of in.
func ParseChoice(in Input, text string) (legal.Action, error) {
	cmd, ok := protocol.ParseCommand(text)
	if !ok {
		return legal.Action{}, fmt.Errorf("%w: %q", ErrNoChoice, clip(text))
	}
	if in.Kind == protocol.KindTeamPreview {
		switch {
		case cmd.Kind == protocol.CommandDefault:
			return legal.Action{Kind: legal.KindDefault}, nil
		case cmd.Kind == protocol.CommandTeam && in.Options.AllowsTeam(cmd.Order):
			return legal.TeamAction(cmd.Order), nil
		}
		return legal.Action{}, fmt.Errorf("%w: %q is not a valid team order", ErrNoChoice, clip(text))
	}
	a, ok := in.Slot.Resolve(cmd)
	if !ok {
		return legal.Action{}, fmt.Errorf("%w: %q is not legal for slot %d", ErrNoChoice, clip(text), in.Slot.Slot+1)
	}
	a.Slot = in.Slot.Slot
	return a, nil
}

func clip(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 80 {
		return s[:80] + "..."
	}
	return s
}

// Name identifies a provider in logs and the audit trail.
func Name(p DecisionProvider) string {
	if n, ok := p.(interface{ Name() string }); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", p)
}

// ownSide is the requesting side of a snapshot, or -1.
func ownSide(st *game.BattleState) int {
	if st == nil {
		return -1
	}
	if i := st.Request.SideIndex(); i >= 0 {
		return i
	}
	return st.Self
}

// memberHP is the HP percentage of a 1-based roster member from the
// authoritative request, 100 when unknown.
func memberHP(st *game.BattleState, rosterIndex int) (float64, string) {
	if st == nil {
		return 100, ""
	}
	m, ok := st.Request.Member(rosterIndex - 1)
	if !ok {
		return 100, ""
	}
	slot := &game.SlotState{Species: m.Species(), Condition: m.Condition}
	_, _, status := game.ParseCondition(m.Condition)
	return slot.HPPercent(), status
}
