package legal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"showdown-pilot/game"
	"showdown-pilot/protocol"
)

func mustRequest(t *testing.T, payload string) *protocol.Request {
	t.Helper()
	req, err := protocol.ParseRequest(payload)
	require.NoError(t, err)
	return req
}

func commands(actions []Action) []string {
	out := make([]string, 0, len(actions))
	for _, a := range actions {
		out = append(out, a.Command())
	}
	return out
}

func rosterIndices(actions []Action) []int {
	out := make([]int, 0, len(actions))
	for _, a := range actions {
		out = append(out, a.RosterIndex)
	}
	return out
}

const singlesActive = `{"active":[{"moves":[
	{"move":"Thunderbolt","id":"thunderbolt","pp":24,"maxpp":24,"target":"normal","disabled":false},
	{"move":"Protect","id":"protect","pp":16,"maxpp":16,"target":"self","disabled":true}],
	"canTerastallize":"Electric"}],
"side":{"name":"me","id":"p1","pokemon":[
	{"ident":"p1: Pikachu","details":"Pikachu, L88","condition":"200/200","active":true},
	{"ident":"p1: Garchomp","details":"Garchomp, L80","condition":"300/300","active":false},
	{"ident":"p1: Snorlax","details":"Snorlax","condition":"0 fnt","active":false}]},
"rqid":4}`

func TestActiveSinglesSlot(t *testing.T) {
	req := mustRequest(t, singlesActive)
	opts := Enumerate(req, game.NewBattleState(1))
	require.Equal(t, protocol.KindActive, opts.Kind)
	require.Len(t, opts.Slots, 1)
	sa := opts.Slots[0]

	assert.Equal(t, []string{"move 1"}, commands(sa.Moves), "disabled moves are dropped")
	assert.Equal(t, []string{"switch 2"}, commands(sa.Switches), "fainted members are not candidates")
	assert.Equal(t, []protocol.Transform{protocol.Terastallize}, sa.Transforms)
	assert.Equal(t, 4, opts.RQID)

	assert.True(t, sa.Allows(Action{Kind: KindMove, MoveIndex: 1, Transform: protocol.Terastallize}))
	assert.False(t, sa.Allows(Action{Kind: KindMove, MoveIndex: 2}))
	assert.False(t, sa.Allows(Action{Kind: KindSwitch, RosterIndex: 3}))
	assert.False(t, sa.Allows(PassAction(0)))
	assert.Equal(t, "move 1", sa.Fallback().Command())
}

func TestTerastallizeNotAdvertisedOnceUsed(t *testing.T) {
	req := mustRequest(t, singlesActive)
	st := game.NewBattleState(1)
	st.Sides[0].Tera = &game.Terastallization{Species: "Garchomp", Type: "Steel"}

	sa := ActiveSlot(req, st, 0, nil)
	assert.Empty(t, sa.Transforms)
	assert.False(t, sa.Allows(Action{Kind: KindMove, MoveIndex: 1, Transform: protocol.Terastallize}))

	// The opponent's terastallization does not spend ours.
	st = game.NewBattleState(1)
	st.Sides[1].Tera = &game.Terastallization{Species: "Garchomp", Type: "Steel"}
	assert.True(t, ActiveSlot(req, st, 0, nil).CanTransform(protocol.Terastallize))
}

func TestTrappedSlotHasNoSwitches(t *testing.T) {
	req := mustRequest(t, singlesActive)
	req.Active[0].Trapped = true
	sa := ActiveSlot(req, nil, 0, nil)
	assert.True(t, sa.Trapped)
	assert.Empty(t, sa.Switches)
	assert.NotEmpty(t, sa.Moves)
}

func TestZMovesRespectSideBudget(t *testing.T) {
	req := mustRequest(t, `{"active":[{"moves":[
		{"move":"Protect","id":"protect","target":"self"},
		{"move":"Tackle","id":"tackle","target":"normal"}],
		"canZMove":[null,{"move":"Breakneck Blitz","target":"normal"}]}],
	"side":{"id":"p2","pokemon":[{"ident":"p2: Eevee","details":"Eevee","condition":"100/100","active":true}]}}`)
	st := game.NewBattleState(1)

	sa := ActiveSlot(req, st, 0, nil)
	assert.Equal(t, []string{"move 1", "move 2", "move 2 zmove"}, commands(sa.Moves))
	assert.Equal(t, "Breakneck Blitz", sa.Moves[2].MoveName)

	st.Sides[1].Spent[protocol.ZMoveBurst] = true
	assert.Equal(t, []string{"move 1", "move 2"}, commands(ActiveSlot(req, st, 0, nil).Moves))
}

func TestMaxMovesReplaceMovesWhileDynamaxed(t *testing.T) {
	req := mustRequest(t, `{"active":[{"moves":[{"move":"Tackle","id":"tackle","target":"normal"}],
		"maxMoves":{"maxMoves":[{"move":"Max Strike","target":"adjacentFoe"},{"move":"Max Guard","target":"self"}]}}],
	"side":{"id":"p1","pokemon":[{"ident":"p1: Eevee","details":"Eevee","condition":"100/100","active":true}]}}`)
	sa := ActiveSlot(req, nil, 0, nil)
	require.Len(t, sa.Moves, 2)
	assert.Equal(t, "Max Strike", sa.Moves[0].MoveName)
	assert.Equal(t, "Max Guard", sa.Moves[1].MoveName)

	req.Active[0].CanDynamax = true
	sa = ActiveSlot(req, nil, 0, nil)
	assert.Equal(t, []string{"move 1"}, commands(sa.Moves))
	assert.True(t, sa.CanTransform(protocol.Dynamax))
}

const doublesActive = `{"active":[
	{"moves":[
		{"move":"Helping Hand","id":"helpinghand","target":"adjacentAlly"},
		{"move":"Fake Out","id":"fakeout","target":"normal"},
		{"move":"Acupressure","id":"acupressure","target":"adjacentAllyOrSelf"},
		{"move":"Earthquake","id":"earthquake","target":"allAdjacent"}],
	 "canTerastallize":"Fire"},
	{"moves":[{"move":"Helping Hand","id":"helpinghand","target":"adjacentAlly"}],
	 "canTerastallize":"Water"}],
"side":{"id":"p1","pokemon":[
	{"ident":"p1: Incineroar","details":"Incineroar, L50","condition":"150/200","active":true},
	{"ident":"p1: Amoonguss","details":"Amoonguss, L50","condition":"200/200","active":true},
	{"ident":"p1: Rillaboom","details":"Rillaboom, L50","condition":"180/180","active":false},
	{"ident":"p1: Urshifu","details":"Urshifu-Rapid-Strike, L50","condition":"0 fnt","active":false}]}}`

func doublesState() *game.BattleState {
	st := game.NewBattleState(2)
	st.Self = 0
	st.Sides[1].Slots[0] = &game.SlotState{Species: "Garchomp", Condition: "100/100"}
	st.Sides[1].Slots[1] = &game.SlotState{Species: "Tyranitar", Condition: "100/100"}
	return st
}

func TestDoublesTargets(t *testing.T) {
	req := mustRequest(t, doublesActive)
	st := doublesState()

	sa := ActiveSlot(req, st, 0, nil)
	assert.Equal(t, []string{"move 1 -2", "move 2 1", "move 2 2", "move 3 -2", "move 4"}, commands(sa.Moves))

	st.Sides[1].Slots[1].Condition = game.FaintedCondition
	sa = ActiveSlot(req, st, 0, nil)
	assert.Contains(t, commands(sa.Moves), "move 2 1")
	assert.NotContains(t, commands(sa.Moves), "move 2 2")

	// No living foe known: target the first slot.
	st.Sides[1].Slots[0].Condition = game.FaintedCondition
	sa = ActiveSlot(req, st, 0, nil)
	assert.Contains(t, commands(sa.Moves), "move 2 1")

	res, ok := ActiveSlot(req, doublesState(), 0, nil).Resolve(protocol.Command{Kind: protocol.CommandMove, Index: 2})
	assert.False(t, ok, "ambiguous target")
	res, ok = ActiveSlot(req, doublesState(), 0, nil).Resolve(protocol.Command{Kind: protocol.CommandMove, Index: 2, Target: 2, Transform: protocol.Terastallize})
	require.True(t, ok)
	assert.Equal(t, "move 2 2 terastallize", res.Command())
}

func TestAdjacentAllyFaintedFallsBackToSelf(t *testing.T) {
	req := mustRequest(t, doublesActive)
	req.Side.Pokemon[1].Condition = "0 fnt"
	st := doublesState()

	sa := ActiveSlot(req, st, 0, nil)
	assert.NotContains(t, commands(sa.Moves), "move 1 -2", "ally-only move is filtered while others remain")
	assert.Contains(t, commands(sa.Moves), "move 3 -1", "ally-or-self targets self")

	// Slot 1 has only the ally move; keep it, aimed at self.
	req.Side.Pokemon[1].Condition = "200/200"
	req.Side.Pokemon[0].Condition = "0 fnt"
	sa = ActiveSlot(req, st, 1, nil)
	assert.Equal(t, []string{"move 1 -2"}, commands(sa.Moves))
}

func TestSkippedSlots(t *testing.T) {
	req := mustRequest(t, doublesActive)
	req.Side.Pokemon[1].Commanding = true
	sa := ActiveSlot(req, doublesState(), 1, nil)
	assert.True(t, sa.Skip)
	assert.Equal(t, []string{"pass"}, commands(sa.All()))

	req.Side.Pokemon[0].Condition = "0 fnt"
	assert.True(t, ActiveSlot(req, doublesState(), 0, nil).Skip)
}

func TestTransformClaimedBySibling(t *testing.T) {
	req := mustRequest(t, doublesActive)
	st := doublesState()
	sel := NewSelection()

	first := ActiveSlot(req, st, 0, sel)
	require.True(t, first.CanTransform(protocol.Terastallize))
	sel.Claim(Action{Kind: KindMove, MoveIndex: 2, Target: 1, Transform: protocol.Terastallize})

	second := ActiveSlot(req, st, 1, sel)
	assert.False(t, second.CanTransform(protocol.Terastallize))
}

func TestActiveSwitchExclusivity(t *testing.T) {
	req := mustRequest(t, doublesActive)
	sel := NewSelection()
	first := ActiveSlot(req, doublesState(), 0, sel)
	assert.Equal(t, []int{3}, rosterIndices(first.Switches))
	sel.Claim(first.Switches[0])
	assert.Empty(t, ActiveSlot(req, doublesState(), 1, sel).Switches)
}

const doubleFaint = `{"forceSwitch":[true,true],"side":{"id":"p1","pokemon":[
	{"ident":"p1: A","details":"Incineroar","condition":"0 fnt","active":true},
	{"ident":"p1: B","details":"Amoonguss","condition":"0 fnt","active":true},
	{"ident":"p1: C","details":"Rillaboom","condition":"100/100","active":false},
	{"ident":"p1: D","details":"Urshifu","condition":"100/100","active":false},
	{"ident":"p1: E","details":"Flutter Mane","condition":"100/100","active":false},
	{"ident":"p1: F","details":"Landorus","condition":"0 fnt","active":false}]}}`

func TestForceSwitchSequentialExclusivity(t *testing.T) {
	req := mustRequest(t, doubleFaint)
	require.Equal(t, protocol.KindForceSwitch, req.Kind())
	sel := NewSelection()

	first := ForceSwitchSlot(req, 0, sel)
	assert.True(t, first.MustSwitch)
	assert.Equal(t, []int{3, 4, 5}, rosterIndices(first.Switches))

	sel.Claim(first.Switches[0])
	second := ForceSwitchSlot(req, 1, sel)
	assert.Equal(t, []int{4, 5}, rosterIndices(second.Switches))
}

func TestForceSwitchFewerReservesThanSlots(t *testing.T) {
	req := mustRequest(t, doubleFaint)
	req.Side.Pokemon[3].Condition = "0 fnt"
	req.Side.Pokemon[4].Condition = "0 fnt"
	sel := NewSelection()

	first := ForceSwitchSlot(req, 0, sel)
	require.Len(t, first.Switches, 1)
	sel.Claim(first.Switches[0])

	second := ForceSwitchSlot(req, 1, sel)
	assert.True(t, second.Skip)
	assert.Equal(t, "pass", second.Fallback().Command())
}

func TestForceSwitchSingleReserve(t *testing.T) {
	req := mustRequest(t, `{"forceSwitch":[true],"side":{"id":"p2","pokemon":[
		{"ident":"p2: A","details":"Pikachu","condition":"0 fnt","active":true},
		{"ident":"p2: B","details":"Snorlax","condition":"0 fnt","active":false},
		{"ident":"p2: C","details":"Gengar","condition":"50/100 par","active":false}]}}`)
	opts := Enumerate(req, nil)
	require.Len(t, opts.Slots, 1)
	assert.Equal(t, []string{"switch 3"}, commands(opts.Slots[0].Switches))
	assert.Equal(t, 1, opts.Slots[0].Choices())
	assert.Equal(t, "switch 3", opts.Slots[0].Fallback().Command())
}

func TestForceSwitchRevivingPicksFainted(t *testing.T) {
	req := mustRequest(t, `{"forceSwitch":[true],"side":{"id":"p1","pokemon":[
		{"ident":"p1: Pawmot","details":"Pawmot","condition":"100/100","active":true,"reviving":true},
		{"ident":"p1: B","details":"Snorlax","condition":"0 fnt","active":false},
		{"ident":"p1: C","details":"Gengar","condition":"50/100","active":false}]}}`)
	sa := ForceSwitchSlot(req, 0, nil)
	assert.Equal(t, []int{2}, rosterIndices(sa.Switches))
}

func TestForceSwitchUnflaggedSlotPasses(t *testing.T) {
	req := mustRequest(t, doubleFaint)
	req.ForceSwitch = []bool{false, true}
	opts := Enumerate(req, nil)
	assert.True(t, opts.Slots[0].Skip)
	assert.False(t, opts.Slots[1].Skip)
}

func TestTeamPreview(t *testing.T) {
	req := mustRequest(t, `{"teamPreview":true,"maxChosenTeamSize":4,"side":{"id":"p1","pokemon":[
		{"ident":"p1: A","details":"Incineroar, L50","condition":"100/100"},
		{"ident":"p1: B","details":"Amoonguss, L50","condition":"100/100"},
		{"ident":"p1: C","details":"Rillaboom, L50","condition":"100/100"},
		{"ident":"p1: D","details":"Urshifu, L50","condition":"100/100"},
		{"ident":"p1: E","details":"Flutter Mane, L50","condition":"100/100"},
		{"ident":"p1: F","details":"Landorus, L50","condition":"100/100"}]}}`)
	opts := Enumerate(req, nil)
	require.Equal(t, protocol.KindTeamPreview, opts.Kind)
	assert.Len(t, opts.Roster, 6)
	assert.Equal(t, 4, opts.LeadCount)
	assert.Equal(t, "Flutter Mane", opts.Roster[4].Species)

	assert.True(t, opts.AllowsTeam(DefaultTeamOrder(6)))
	assert.True(t, opts.AllowsTeam([]int{3, 1, 2, 4}))
	assert.False(t, opts.AllowsTeam([]int{1, 2, 3}), "fewer than the lead count")
	assert.False(t, opts.AllowsTeam([]int{1, 1, 2, 3}))
	assert.False(t, opts.AllowsTeam([]int{1, 2, 3, 7}))
	assert.Equal(t, "team 3124", TeamAction([]int{3, 1, 2, 4}).Command())
}

func TestWaitEnumeratesNothing(t *testing.T) {
	req := mustRequest(t, `{"wait":true,"side":{"id":"p1","pokemon":[]}}`)
	opts := Enumerate(req, nil)
	assert.Equal(t, protocol.KindWait, opts.Kind)
	assert.Empty(t, opts.Slots)
}
