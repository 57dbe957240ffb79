package protocol

import (
	"errors"
	"fmt"
	"strings"
)

var ErrBadActor = errors.New("protocol: bad actor token")

// Line is one pipe-delimited protocol line: |tag|arg|arg...
type Line struct {
	Tag  string
	Args []string
	Raw  string
}

// ParseLine splits a raw line. Lines that do not start with a pipe (chat,
// room headers, blank lines) report false.
func ParseLine(raw string) (Line, bool) {
	raw = strings.TrimRight(raw, "\r\n")
	if !strings.HasPrefix(raw, "|") {
		return Line{Raw: raw}, false
	}
	parts := strings.Split(raw, "|")
	if len(parts) < 2 || parts[1] == "" {
		return Line{Raw: raw}, false
	}
	return Line{Tag: parts[1], Args: parts[2:], Raw: raw}, true
}

// Arg returns the i-th argument or "" when absent.
func (l Line) Arg(i int) string {
	if i < 0 || i >= len(l.Args) {
		return ""
	}
	return l.Args[i]
}

// Rest joins the arguments from i onwards, restoring pipes that belonged to
// the payload (request JSON, chat text).
func (l Line) Rest(i int) string {
	if i >= len(l.Args) {
		return ""
	}
	return strings.Join(l.Args[i:], "|")
}

// HasFlag reports whether a bracketed keyword argument such as [upkeep] or
// [from] is present.
func (l Line) HasFlag(flag string) bool {
	for _, a := range l.Args {
		if a == flag || strings.HasPrefix(a, flag+" ") {
			return true
		}
	}
	return false
}

// Actor identifies a combatant token like "p2a: Pikachu".
type Actor struct {
	Side       int
	Slot       int
	Positioned bool
	Name       string
}

// ParseActor decodes an actor token. The first two characters give the side,
// an optional letter suffix gives the slot (a=0, b=1); without it the slot is
// implicit and Positioned is false.
func ParseActor(token string) (Actor, error) {
	head, name, _ := strings.Cut(strings.TrimSpace(token), ": ")
	side, err := ParseSide(head)
	if err != nil {
		return Actor{}, fmt.Errorf("%w: %q", ErrBadActor, token)
	}
	a := Actor{Side: side, Name: name}
	if len(head) >= 3 {
		c := head[2]
		if c < 'a' || c > 'c' {
			return Actor{}, fmt.Errorf("%w: %q", ErrBadActor, token)
		}
		a.Slot = int(c - 'a')
		a.Positioned = true
	}
	return a, nil
}

// ParseSide maps "p1"/"p2" (and any longer token starting with them) to 0/1.
func ParseSide(token string) (int, error) {
	if len(token) < 2 || token[0] != 'p' {
		return 0, fmt.Errorf("%w: %q", ErrBadActor, token)
	}
	switch token[1] {
	case '1':
		return 0, nil
	case '2':
		return 1, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrBadActor, token)
}

// SideID is the inverse of ParseSide.
func SideID(side int) string {
	return fmt.Sprintf("p%d", side+1)
}

// StripEffectPrefix removes the "move: ", "ability: " or "item: " source
// prefix from an effect id.
func StripEffectPrefix(effect string) string {
	for _, p := range []string{"move: ", "ability: ", "item: "} {
		if strings.HasPrefix(effect, p) {
			return strings.TrimPrefix(effect, p)
		}
	}
	return effect
}
