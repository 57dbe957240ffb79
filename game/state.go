package game

import (
	"strconv"
	"strings"

	"showdown-pilot/protocol"
)

// FaintedCondition is the terminal condition text of a fainted slot.
const FaintedCondition = "0 fnt"

// SlotState is the occupant of one battle position. It is replaced wholesale
// on switch-in.
type SlotState struct {
	Species     string
	DisplayName string
	Nickname    string
	Condition   string
	Status      string
	Level       int
	Boosts      map[string]int
}

func (s *SlotState) Empty() bool {
	return s == nil || s.Species == ""
}

func (s *SlotState) Fainted() bool {
	return s != nil && strings.HasSuffix(s.Condition, "fnt")
}

// HPPercent reads the condition text. Unknown conditions count as full.
func (s *SlotState) HPPercent() float64 {
	if s == nil {
		return 0
	}
	hp, maxHP, _ := ParseCondition(s.Condition)
	if s.Fainted() {
		return 0
	}
	if maxHP <= 0 {
		return 100
	}
	return float64(hp) * 100 / float64(maxHP)
}

// Boost returns the stage of a stat, 0 when absent.
func (s *SlotState) Boost(stat string) int {
	if s == nil {
		return 0
	}
	return s.Boosts[stat]
}

func (s *SlotState) clone() *SlotState {
	if s == nil {
		return nil
	}
	c := *s
	c.Boosts = make(map[string]int, len(s.Boosts))
	for k, v := range s.Boosts {
		c.Boosts[k] = v
	}
	return &c
}

// Terastallization records the side's one terastallization of the battle.
type Terastallization struct {
	Slot    int
	Species string
	Type    string
}

type SideState struct {
	ID        string
	Name      string
	Slots     []*SlotState
	Tera      *Terastallization
	Spent     map[protocol.Transform]bool
	Knowledge *Knowledge
}

// Used reports whether a once-per-battle transform was already observed for
// this side.
func (s *SideState) Used(t protocol.Transform) bool {
	if t == protocol.Terastallize && s.Tera != nil {
		return true
	}
	return s.Spent[t]
}

// Slot returns the slot at i, or nil when out of range.
func (s *SideState) Slot(i int) *SlotState {
	if i < 0 || i >= len(s.Slots) {
		return nil
	}
	return s.Slots[i]
}

type FieldState struct {
	Weather       string
	Terrain       map[string]bool
	PseudoWeather map[string]bool
	SideEffects   [2]map[string]bool
}

// BattleState is the aggregate reconstructed from the protocol stream. The
// event interpreter is its only writer.
type BattleState struct {
	Turn         int
	Ended        bool
	Winner       string
	Tie          bool
	GameType     string
	SlotsPerSide int
	Self         int
	Field        FieldState
	Sides        [2]*SideState
	Request      *protocol.Request
}

// NewBattleState builds an empty state for a format with the given number of
// active slots per side (1 singles, 2 doubles).
func NewBattleState(slotsPerSide int) *BattleState {
	if slotsPerSide < 1 {
		slotsPerSide = 1
	}
	st := &BattleState{
		SlotsPerSide: slotsPerSide,
		Self:         -1,
		Field: FieldState{
			Terrain:       make(map[string]bool),
			PseudoWeather: make(map[string]bool),
			SideEffects:   [2]map[string]bool{make(map[string]bool), make(map[string]bool)},
		},
	}
	st.GameType = "singles"
	if slotsPerSide == 2 {
		st.GameType = "doubles"
	}
	for i := range st.Sides {
		st.Sides[i] = &SideState{
			ID:        protocol.SideID(i),
			Spent:     make(map[protocol.Transform]bool),
			Knowledge: NewKnowledge(DefaultRosterSize(slotsPerSide)),
		}
		st.Sides[i].Slots = newSlots(slotsPerSide)
	}
	return st
}

func newSlots(n int) []*SlotState {
	slots := make([]*SlotState, n)
	for i := range slots {
		slots[i] = &SlotState{Boosts: make(map[string]int)}
	}
	return slots
}

// SetSlotsPerSide resizes both sides, keeping existing occupants.
func (b *BattleState) SetSlotsPerSide(n int) {
	if n < 1 || n == b.SlotsPerSide {
		return
	}
	b.SlotsPerSide = n
	for _, side := range b.Sides {
		slots := newSlots(n)
		copy(slots, side.Slots)
		side.Slots = slots
		if !side.Knowledge.Corrected() {
			side.Knowledge.TotalRosterSize = DefaultRosterSize(n)
		}
	}
}

// DefaultLevel is the level assumed when details omit it.
func (b *BattleState) DefaultLevel() int {
	if b.SlotsPerSide > 1 {
		return 50
	}
	return 100
}

// Opponent is the side index facing Self, or -1 while Self is unknown.
func (b *BattleState) Opponent() int {
	if b.Self < 0 {
		return -1
	}
	return 1 - b.Self
}

// Clone returns a deep copy safe to hand to concurrent readers.
func (b *BattleState) Clone() *BattleState {
	c := *b
	c.Field = FieldState{
		Weather:       b.Field.Weather,
		Terrain:       cloneSet(b.Field.Terrain),
		PseudoWeather: cloneSet(b.Field.PseudoWeather),
		SideEffects:   [2]map[string]bool{cloneSet(b.Field.SideEffects[0]), cloneSet(b.Field.SideEffects[1])},
	}
	for i, side := range b.Sides {
		s := *side
		s.Slots = make([]*SlotState, len(side.Slots))
		for j, slot := range side.Slots {
			s.Slots[j] = slot.clone()
		}
		if side.Tera != nil {
			t := *side.Tera
			s.Tera = &t
		}
		s.Spent = make(map[protocol.Transform]bool, len(side.Spent))
		for k, v := range side.Spent {
			s.Spent[k] = v
		}
		s.Knowledge = side.Knowledge.Clone()
		c.Sides[i] = &s
	}
	return &c
}

func cloneSet(m map[string]bool) map[string]bool {
	out := make(map[string]bool, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// ParseCondition splits "current/max status" into its parts. "0 fnt" yields
// (0, 0, "fnt").
func ParseCondition(cond string) (hp, maxHP int, status string) {
	fields := strings.Fields(cond)
	if len(fields) == 0 {
		return 0, 0, ""
	}
	if len(fields) > 1 {
		status = fields[1]
	}
	cur, total, ok := strings.Cut(fields[0], "/")
	hp, _ = strconv.Atoi(cur)
	if ok {
		maxHP, _ = strconv.Atoi(total)
	}
	return hp, maxHP, status
}

// WithStatus rewrites the status token of a condition string.
func WithStatus(cond, status string) string {
	fields := strings.Fields(cond)
	if len(fields) == 0 {
		return cond
	}
	if status == "" {
		return fields[0]
	}
	return fields[0] + " " + status
}
