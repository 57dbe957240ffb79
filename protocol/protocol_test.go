package protocol

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLine(t *testing.T) {
	l, ok := ParseLine("|switch|p1a: Pikachu|Pikachu, L50, M|100/100\r")
	require.True(t, ok)
	assert.Equal(t, "switch", l.Tag)
	assert.Equal(t, "p1a: Pikachu", l.Arg(0))
	assert.Equal(t, "100/100", l.Arg(2))
	assert.Equal(t, "", l.Arg(7))

	_, ok = ParseLine("")
	assert.False(t, ok)
	_, ok = ParseLine(">battle-gen9randombattle-1")
	assert.False(t, ok)
	_, ok = ParseLine("|")
	assert.False(t, ok)
}

func TestLineRestKeepsPipes(t *testing.T) {
	l, ok := ParseLine(`|request|{"a":"x|y"}`)
	require.True(t, ok)
	assert.Equal(t, `{"a":"x|y"}`, l.Rest(0))
}

func TestParseActor(t *testing.T) {
	tests := []struct {
		name  string
		token string
		want  Actor
		err   bool
	}{
		{name: "singles", token: "p1a: Pikachu", want: Actor{Side: 0, Slot: 0, Positioned: true, Name: "Pikachu"}},
		{name: "doubles b", token: "p2b: Indeedee", want: Actor{Side: 1, Slot: 1, Positioned: true, Name: "Indeedee"}},
		{name: "unpositioned", token: "p2: Garchomp", want: Actor{Side: 1, Name: "Garchomp"}},
		{name: "side only", token: "p1", want: Actor{Side: 0}},
		{name: "bad side", token: "p9a: Mew", err: true},
		{name: "garbage", token: "hello", err: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseActor(tt.token)
			if tt.err {
				assert.True(t, errors.Is(err, ErrBadActor))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseRequestKinds(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    Kind
	}{
		{name: "wait", payload: `{"wait":true,"side":{"id":"p1"}}`, want: KindWait},
		{name: "team preview", payload: `{"teamPreview":true,"maxChosenTeamSize":4,"side":{"id":"p2"}}`, want: KindTeamPreview},
		{name: "force switch", payload: `{"forceSwitch":[false,true],"side":{"id":"p1"}}`, want: KindForceSwitch},
		{name: "force switch wins over active", payload: `{"forceSwitch":[true],"active":[{"moves":[]}]}`, want: KindForceSwitch},
		{name: "active", payload: `{"active":[{"moves":[{"move":"Tackle","id":"tackle","target":"normal"}]}]}`, want: KindActive},
		{name: "empty object", payload: `{}`, want: KindWait},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := ParseRequest(tt.payload)
			require.NoError(t, err)
			assert.Equal(t, tt.want, req.Kind())
		})
	}
}

func TestParseRequestMalformed(t *testing.T) {
	_, err := ParseRequest("")
	assert.ErrorIs(t, err, ErrMalformedRequest)
	_, err = ParseRequest("{not json")
	assert.ErrorIs(t, err, ErrMalformedRequest)
}

func TestParseRequestMixedFlags(t *testing.T) {
	payload := `{"active":[{"moves":[
		{"move":"Protect","id":"protect","target":"self","disabled":"Choice Lock"},
		{"move":"Tackle","id":"tackle","target":"normal","disabled":false}],
		"canTerastallize":"Fire","canZMove":[null,{"move":"Breakneck Blitz","target":"normal"}]}],
		"side":{"id":"p2","pokemon":[{"ident":"p2: Arcanine","details":"Arcanine, L84, M","condition":"0 fnt","active":true,"reviving":false}]},
		"rqid":7}`
	req, err := ParseRequest(payload)
	require.NoError(t, err)
	slot := req.Active[0]
	assert.True(t, slot.Moves[0].Disabled.OK)
	assert.Equal(t, "Choice Lock", slot.Moves[0].Disabled.Value)
	assert.False(t, slot.Moves[1].Disabled.OK)
	assert.True(t, slot.CanTerastallize.OK)
	assert.Equal(t, "Fire", slot.CanTerastallize.Value)
	assert.Nil(t, slot.CanZMove[0])
	assert.Equal(t, "Breakneck Blitz", slot.CanZMove[1].Move)
	assert.Equal(t, 1, req.SideIndex())
	assert.Equal(t, 7, req.RQID)

	m, ok := req.Member(0)
	require.True(t, ok)
	assert.True(t, m.Fainted())
	assert.Equal(t, "Arcanine", m.Species())
	assert.Equal(t, "Arcanine", m.Name())
}

func TestCommands(t *testing.T) {
	assert.Equal(t, "move 1", MoveCommand(1, 0, NoTransform))
	assert.Equal(t, "move 2 -1", MoveCommand(2, -1, NoTransform))
	assert.Equal(t, "move 3 2 terastallize", MoveCommand(3, 2, Terastallize))
	assert.Equal(t, "switch 4", SwitchCommand(4))
	assert.Equal(t, "team 3124", TeamCommand([]int{3, 1, 2, 4}))
	assert.Equal(t, "move 1 1, switch 3", JoinChoices([]string{"move 1 1", "switch 3"}))
	assert.Equal(t, "/choose move 1|12", ChooseMessage("move 1", 12))
	assert.Equal(t, "/choose default", ChooseMessage(Default, 0))
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name string
		text string
		want Command
		ok   bool
	}{
		{name: "plain move", text: "move 2", want: Command{Kind: CommandMove, Index: 2}, ok: true},
		{name: "target and tera", text: "I pick MOVE 1 -2 terastallize!", want: Command{Kind: CommandMove, Index: 1, Target: -2, Transform: Terastallize}, ok: true},
		{name: "tera shorthand", text: "move 3 tera", want: Command{Kind: CommandMove, Index: 3, Transform: Terastallize}, ok: true},
		{name: "switch", text: "switch 5", want: Command{Kind: CommandSwitch, Index: 5}, ok: true},
		{name: "switch before move", text: "switch 2 then move 1", want: Command{Kind: CommandSwitch, Index: 2}, ok: true},
		{name: "team", text: "team 3142", want: Command{Kind: CommandTeam, Order: []int{3, 1, 4, 2}}, ok: true},
		{name: "pass", text: "pass", want: Command{Kind: CommandPass}, ok: true},
		{name: "noise", text: "I don't know", ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseCommand(tt.text)
			assert.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestParseChoiceError(t *testing.T) {
	assert.Equal(t, ErrorInvalidChoice, ParseChoiceError("[Invalid choice] Can't move: Pikachu's Thunder is disabled").Kind)
	assert.Equal(t, ErrorUnavailableChoice, ParseChoiceError("[Unavailable choice] Can't switch: trapped").Kind)
	assert.Equal(t, ErrorOther, ParseChoiceError("something else").Kind)
}

func TestStripEffectPrefix(t *testing.T) {
	assert.Equal(t, "Stealth Rock", StripEffectPrefix("move: Stealth Rock"))
	assert.Equal(t, "Reflect", StripEffectPrefix("Reflect"))
}
