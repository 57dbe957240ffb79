package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"showdown-pilot/protocol"
)

func TestNormalizeSpecies(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Pikachu", "Pikachu"},
		{"Indeedee-F", "Indeedee"},
		{"Sparky (Pikachu)", "Pikachu"},
		{"Nick (Indeedee-F)", "Indeedee"},
		{"Mr. Mime", "Mr. Mime"},
		{"Tapu Koko", "Tapu Koko"},
		{"Ogerpon-Wellspring-Tera", "Ogerpon-Wellspring-Tera"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeSpecies(tt.in))
		})
	}
}

func TestParseDetails(t *testing.T) {
	species, level := ParseDetails("Indeedee-F, L50, F")
	assert.Equal(t, "Indeedee-F", species)
	assert.Equal(t, 50, level)

	species, level = ParseDetails("Garchomp, M")
	assert.Equal(t, "Garchomp", species)
	assert.Equal(t, 0, level)
}

func TestParseCondition(t *testing.T) {
	hp, maxHP, status := ParseCondition("87/100 par")
	assert.Equal(t, 87, hp)
	assert.Equal(t, 100, maxHP)
	assert.Equal(t, "par", status)

	hp, maxHP, status = ParseCondition(FaintedCondition)
	assert.Equal(t, 0, hp)
	assert.Equal(t, 0, maxHP)
	assert.Equal(t, "fnt", status)

	assert.Equal(t, "50/100 brn", WithStatus("50/100", "brn"))
	assert.Equal(t, "50/100", WithStatus("50/100 brn", ""))
}

func TestSlotHPPercent(t *testing.T) {
	s := &SlotState{Species: "Pikachu", Condition: "25/100"}
	assert.InDelta(t, 25.0, s.HPPercent(), 0.001)
	s.Condition = FaintedCondition
	assert.True(t, s.Fainted())
	assert.Equal(t, 0.0, s.HPPercent())
	s.Condition = ""
	assert.Equal(t, 100.0, s.HPPercent())
}

func TestNewBattleStateDefaults(t *testing.T) {
	singles := NewBattleState(1)
	assert.Equal(t, "singles", singles.GameType)
	assert.Len(t, singles.Sides[0].Slots, 1)
	assert.Equal(t, 6, singles.Sides[1].Knowledge.TotalRosterSize)
	assert.Equal(t, 100, singles.DefaultLevel())
	assert.Equal(t, -1, singles.Opponent())

	doubles := NewBattleState(2)
	assert.Len(t, doubles.Sides[1].Slots, 2)
	assert.Equal(t, 4, doubles.Sides[0].Knowledge.TotalRosterSize)
	assert.Equal(t, 50, doubles.DefaultLevel())
}

func TestSetSlotsPerSideKeepsCorrectedRoster(t *testing.T) {
	st := NewBattleState(1)
	st.Sides[1].Knowledge.SetRosterSize(6)
	st.SetSlotsPerSide(2)
	assert.Len(t, st.Sides[0].Slots, 2)
	assert.Equal(t, 4, st.Sides[0].Knowledge.TotalRosterSize)
	assert.Equal(t, 6, st.Sides[1].Knowledge.TotalRosterSize)
}

func TestCloneIsDeep(t *testing.T) {
	st := NewBattleState(2)
	st.Sides[0].Slots[0] = &SlotState{Species: "Pikachu", Boosts: map[string]int{"atk": 1}}
	st.Sides[0].Tera = &Terastallization{Slot: 0, Species: "Pikachu", Type: "Electric"}
	st.Sides[1].Knowledge.Observe("Garchomp", 50, "100/100", true)
	st.Field.Terrain["Electric Terrain"] = true

	c := st.Clone()
	require.Equal(t, st, c)

	c.Sides[0].Slots[0].Boosts["atk"] = 6
	c.Sides[0].Tera.Type = "Water"
	c.Sides[1].Knowledge.MarkFainted("Garchomp")
	c.Field.Terrain["Misty Terrain"] = true

	assert.Equal(t, 1, st.Sides[0].Slots[0].Boosts["atk"])
	assert.Equal(t, "Electric", st.Sides[0].Tera.Type)
	s, _ := st.Sides[1].Knowledge.Lookup("Garchomp")
	assert.False(t, s.Fainted)
	assert.False(t, st.Field.Terrain["Misty Terrain"])
}

func TestKnowledge(t *testing.T) {
	k := NewKnowledge(6)
	k.Observe("Indeedee-F", 50, "100/100", true)
	k.Observe("Indeedee-M", 0, "80/100", true)
	assert.Len(t, k.Seen, 1, "forms share one entry")

	k.MarkFainted("Indeedee")
	k.Observe("Indeedee-F", 50, "100/100", true)
	s, ok := k.Lookup("Indeedee")
	require.True(t, ok)
	assert.True(t, s.Fainted, "fainted is sticky")
	assert.Equal(t, 5, k.Remaining())

	k.RecordMove("Indeedee", "Follow Me")
	k.RecordMove("Indeedee", "Follow Me")
	assert.Equal(t, []string{"Follow Me"}, s.Moves)
}

func TestKnowledgeTeamPreviewCorrectsRoster(t *testing.T) {
	k := NewKnowledge(6)
	for _, sp := range []string{"Garchomp", "Rillaboom", "Incineroar", "Amoonguss"} {
		k.AddFromTeamPreview(sp, 50)
	}
	assert.Equal(t, 4, k.TotalRosterSize)
	assert.True(t, k.Corrected())
	assert.Equal(t, []string{"Garchomp", "Rillaboom", "Incineroar", "Amoonguss"}, k.Order)
}

func TestSideUsed(t *testing.T) {
	side := NewBattleState(1).Sides[0]
	assert.False(t, side.Used(protocol.Terastallize))
	side.Tera = &Terastallization{Species: "Pikachu"}
	assert.True(t, side.Used(protocol.Terastallize))
	side.Spent[protocol.Mega] = true
	assert.True(t, side.Used(protocol.Mega))
	assert.False(t, side.Used(protocol.ZMoveBurst))
}
