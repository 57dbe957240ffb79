package provider

import (
	"context"

	"showdown-pilot/damage"
	"showdown-pilot/data"
	"showdown-pilot/game"
	"showdown-pilot/legal"
	"showdown-pilot/protocol"
)

const (
	unknownPower     = 50
	priorityWeight   = 10
	boostBonus       = 40
	healBonus        = 30
	statusBonus      = 35
	zMoveBonus       = 50
	koBonus          = 50
	lowHPSwitch      = 30.0
	transformHP      = 50.0
	switchHPWeight   = 50.0
	healthySwitchBon = 20.0
)

// transformPreference is the order in which a healthy slot spends its
// once-per-battle transforms.
var transformPreference = []protocol.Transform{
	protocol.Terastallize,
	protocol.Dynamax,
	protocol.Mega,
	protocol.Ultra,
}

// Smart scores every legal move and switch with fixed heuristics. It never
// fails.
type Smart struct {
	dex *data.Dex
	est damage.Estimator
}

func NewSmart(dex *data.Dex, est damage.Estimator) *Smart {
	return &Smart{dex: dex, est: est}
}

func (s *Smart) Name() string { return "smart" }

func (s *Smart) Decide(_ context.Context, in Input) (legal.Action, error) {
	if in.Kind == protocol.KindTeamPreview {
		return legal.TeamAction(legal.DefaultTeamOrder(len(in.Options.Roster))), nil
	}
	sa := in.Slot
	if sa.Skip || sa.Choices() == 0 {
		return legal.PassAction(sa.Slot), nil
	}

	hp, _ := memberHP(in.State, sa.Slot+1)

	if sa.MustSwitch || len(sa.Moves) == 0 || (hp < lowHPSwitch && len(sa.Switches) > 0) {
		if best, ok := s.bestSwitch(in); ok {
			return best, nil
		}
	}

	best, bestScore := legal.Action{}, -1.0
	for _, m := range sa.Moves {
		if score := s.scoreMove(in, m); score > bestScore {
			best, bestScore = m, score
		}
	}
	if bestScore < 0 {
		return sa.Fallback(), nil
	}
	if best.Transform == protocol.NoTransform && hp > transformHP {
		for _, t := range transformPreference {
			if sa.CanTransform(t) {
				best.Transform = t
				break
			}
		}
	}
	return best, nil
}

func (s *Smart) bestSwitch(in Input) (legal.Action, bool) {
	best, bestScore := legal.Action{}, -1.0
	for _, sw := range in.Slot.Switches {
		hp, status := memberHP(in.State, sw.RosterIndex)
		score := hp / 100 * switchHPWeight
		if status == "" {
			score += healthySwitchBon
		}
		if score > bestScore {
			best, bestScore = sw, score
		}
	}
	return best, bestScore >= 0
}

func (s *Smart) scoreMove(in Input, a legal.Action) float64 {
	name := a.MoveName
	if a.MoveID != "" {
		name = a.MoveID
	}
	move, known := s.dex.Move(name)
	if !known && a.MoveID != "" {
		move, known = s.dex.Move(a.MoveName)
	}

	score := 0.0
	switch {
	case !known:
		score = unknownPower
	case move.IsStatus():
		if move.RaisesStats() {
			score += boostBonus
		}
		if move.Heal {
			score += healBonus
		}
		if move.Status != "" {
			score += statusBonus
		}
	case move.Power > 0:
		score = float64(move.Power)
	default:
		score = unknownPower
	}
	score += float64(move.Priority * priorityWeight)

	defender := s.defender(in, a.Target)
	if known && !move.IsStatus() && defender != nil {
		score *= damage.Effectiveness(move.Type, s.defenderTypes(in, defender))
	}
	if known && move.Accuracy.Chance() < 1 {
		score *= move.Accuracy.Chance()
	}
	if a.Transform == protocol.ZMoveBurst {
		score += zMoveBonus
	}
	if s.est != nil && defender != nil && known && !move.IsStatus() {
		r := s.est.Estimate(s.attacker(in), combatant(defender), []string{move.Name}, s.field(in))
		if len(r) == 1 && r[0].KO {
			score += koBonus
		}
	}
	return score
}

// defender resolves the opposing slot a move aims at: the explicit target
// when positive, else the first living opponent.
func (s *Smart) defender(in Input, target int) *game.SlotState {
	own := ownSide(in.State)
	if own < 0 {
		return nil
	}
	opp := in.State.Sides[1-own]
	if target > 0 {
		if slot := opp.Slot(target - 1); !slot.Empty() {
			return slot
		}
	}
	for _, slot := range opp.Slots {
		if !slot.Empty() && !slot.Fainted() {
			return slot
		}
	}
	return nil
}

func (s *Smart) defenderTypes(in Input, d *game.SlotState) []string {
	own := ownSide(in.State)
	if tera := in.State.Sides[1-own].Tera; tera != nil && tera.Species == d.Species {
		return []string{tera.Type}
	}
	return s.dex.Types(d.DisplayName)
}

func (s *Smart) attacker(in Input) damage.Combatant {
	c := damage.Combatant{HPPercent: 100}
	m, ok := in.State.Request.Member(in.Slot.Slot)
	if !ok {
		return c
	}
	c.Species, c.Level = game.ParseDetails(m.Details)
	c.Stats = m.Stats
	c.HPPercent, c.Status = memberHP(in.State, in.Slot.Slot+1)
	if m.Terastallized != "" {
		c.TeraType = m.Terastallized
	}
	if own := ownSide(in.State); own >= 0 {
		if slot := in.State.Sides[own].Slot(in.Slot.Slot); slot != nil {
			c.Boosts = slot.Boosts
		}
	}
	return c
}

func combatant(slot *game.SlotState) damage.Combatant {
	return damage.Combatant{
		Species:   slot.DisplayName,
		Level:     slot.Level,
		HPPercent: slot.HPPercent(),
		Status:    slot.Status,
		Boosts:    slot.Boosts,
	}
}

func (s *Smart) field(in Input) damage.Field {
	f := damage.Field{
		Weather: in.State.Field.Weather,
		Doubles: in.State.SlotsPerSide > 1,
	}
	for t := range in.State.Field.Terrain {
		f.Terrain = t
	}
	if own := ownSide(in.State); own >= 0 {
		f.Screens = in.State.Field.SideEffects[1-own]
	}
	return f
}
