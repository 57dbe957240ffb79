package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var ErrMalformedRequest = errors.New("protocol: malformed request")

// Kind tags which variant of the decision request union is present.
type Kind int

const (
	KindWait Kind = iota
	KindTeamPreview
	KindForceSwitch
	KindActive
)

func (k Kind) String() string {
	switch k {
	case KindTeamPreview:
		return "team-preview"
	case KindForceSwitch:
		return "force-switch"
	case KindActive:
		return "active"
	default:
		return "wait"
	}
}

// Availability decodes engine fields that are either a bool or a string,
// like "disabled" (true or the disabling source) and "canTerastallize"
// (the tera type).
type Availability struct {
	OK    bool
	Value string
}

func (a *Availability) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*a = Availability{}
	case bytes.Equal(b, []byte("true")):
		*a = Availability{OK: true}
	case bytes.Equal(b, []byte("false")):
		*a = Availability{}
	default:
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*a = Availability{OK: s != "", Value: s}
	}
	return nil
}

func (a Availability) MarshalJSON() ([]byte, error) {
	if a.Value != "" {
		return json.Marshal(a.Value)
	}
	return json.Marshal(a.OK)
}

type MoveSlot struct {
	Move     string       `json:"move"`
	ID       string       `json:"id"`
	PP       int          `json:"pp"`
	MaxPP    int          `json:"maxpp"`
	Target   string       `json:"target"`
	Disabled Availability `json:"disabled"`
}

type ZMove struct {
	Move   string `json:"move"`
	Target string `json:"target"`
}

type MaxMove struct {
	Move     string       `json:"move"`
	Target   string       `json:"target"`
	Disabled Availability `json:"disabled"`
}

type MaxMoves struct {
	Moves      []MaxMove `json:"maxMoves"`
	Gigantamax string    `json:"gigantamax"`
}

// ActiveSlot is the per-slot option block of an active-turn request.
type ActiveSlot struct {
	Moves           []MoveSlot   `json:"moves"`
	Trapped         bool         `json:"trapped"`
	MaybeTrapped    bool         `json:"maybeTrapped"`
	CanTerastallize Availability `json:"canTerastallize"`
	CanMegaEvo      bool         `json:"canMegaEvo"`
	CanUltraBurst   bool         `json:"canUltraBurst"`
	CanDynamax      bool         `json:"canDynamax"`
	CanZMove        []*ZMove     `json:"canZMove"`
	MaxMoves        *MaxMoves    `json:"maxMoves"`
}

// RosterEntry is one member of the requesting side, in roster order. The
// first len(active) entries occupy the active slots.
type RosterEntry struct {
	Ident         string         `json:"ident"`
	Details       string         `json:"details"`
	Condition     string         `json:"condition"`
	Active        bool           `json:"active"`
	Stats         map[string]int `json:"stats"`
	Moves         []string       `json:"moves"`
	BaseAbility   string         `json:"baseAbility"`
	Ability       string         `json:"ability"`
	Item          string         `json:"item"`
	TeraType      string         `json:"teraType"`
	Terastallized string         `json:"terastallized"`
	Commanding    bool           `json:"commanding"`
	Reviving      bool           `json:"reviving"`
}

func (r RosterEntry) Fainted() bool {
	return strings.HasSuffix(r.Condition, " fnt") || r.Condition == "fnt"
}

// Name is the nickname part of the ident.
func (r RosterEntry) Name() string {
	_, name, ok := strings.Cut(r.Ident, ": ")
	if !ok {
		return r.Ident
	}
	return name
}

// Species is the form-sensitive species name from the details string.
func (r RosterEntry) Species() string {
	species, _, _ := strings.Cut(r.Details, ",")
	return strings.TrimSpace(species)
}

type SideInfo struct {
	Name    string        `json:"name"`
	ID      string        `json:"id"`
	Pokemon []RosterEntry `json:"pokemon"`
}

// Request is a decoded |request| payload. It is immutable once received.
type Request struct {
	Active            []ActiveSlot `json:"active"`
	Side              SideInfo     `json:"side"`
	ForceSwitch       []bool       `json:"forceSwitch"`
	TeamPreview       bool         `json:"teamPreview"`
	MaxChosenTeamSize int          `json:"maxChosenTeamSize"`
	Wait              bool         `json:"wait"`
	NoCancel          bool         `json:"noCancel"`
	RQID              int          `json:"rqid"`
}

// ParseRequest decodes the JSON payload of a |request| line.
func ParseRequest(payload string) (*Request, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return nil, fmt.Errorf("%w: empty payload", ErrMalformedRequest)
	}
	var req Request
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}
	return &req, nil
}

// Kind resolves the union in the order the engine intends: wait, forced
// switch, team preview, then active turn.
func (r *Request) Kind() Kind {
	switch {
	case r == nil || r.Wait:
		return KindWait
	case r.mustSwitch():
		return KindForceSwitch
	case r.TeamPreview:
		return KindTeamPreview
	case len(r.Active) > 0:
		return KindActive
	}
	return KindWait
}

func (r *Request) mustSwitch() bool {
	for _, f := range r.ForceSwitch {
		if f {
			return true
		}
	}
	return false
}

// Slots is the number of active positions the request addresses.
func (r *Request) Slots() int {
	if r == nil {
		return 0
	}
	if n := len(r.ForceSwitch); n > 0 {
		return n
	}
	return len(r.Active)
}

// SideIndex is the requesting side (0 or 1), or -1 when the id is missing.
func (r *Request) SideIndex() int {
	if r == nil {
		return -1
	}
	side, err := ParseSide(r.Side.ID)
	if err != nil {
		return -1
	}
	return side
}

// Member returns the 0-based roster entry, if any.
func (r *Request) Member(i int) (RosterEntry, bool) {
	if r == nil || i < 0 || i >= len(r.Side.Pokemon) {
		return RosterEntry{}, false
	}
	return r.Side.Pokemon[i], true
}
