// Package history keeps a short rolling record of what happened in the
// battle, for providers that want recent context.
package history

import (
	"fmt"
	"strings"

	"showdown-pilot/protocol"
)

// DefaultWindow is the number of turn entries kept besides the leads.
const DefaultWindow = 3

type Entry struct {
	Turn int
	Text string
}

// Ledger holds up to window turn entries plus one permanent turn-0 entry
// with the opening leads. It is owned by the orchestrator loop and is not
// safe for concurrent use.
type Ledger struct {
	window  int
	entries []Entry
	leads   [2][]string
	opened  bool
}

func NewLedger(window int) *Ledger {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Ledger{window: window}
}

// Append adds text to the entry of turn, merging with an existing one.
// Entries for turn 0 or earlier are ignored; leads go through RecordLead.
func (l *Ledger) Append(turn int, text string) {
	text = strings.TrimSpace(text)
	if turn <= 0 || text == "" {
		return
	}
	for i := range l.entries {
		if l.entries[i].Turn == turn {
			l.entries[i].Text += " | " + text
			return
		}
	}
	l.entries = append(l.entries, Entry{Turn: turn, Text: text})
	l.evict()
}

func (l *Ledger) evict() {
	for l.turnEntries() > l.window {
		for i, e := range l.entries {
			if e.Turn > 0 {
				l.entries = append(l.entries[:i], l.entries[i+1:]...)
				break
			}
		}
	}
}

func (l *Ledger) turnEntries() int {
	n := 0
	for _, e := range l.entries {
		if e.Turn > 0 {
			n++
		}
	}
	return n
}

// RecordLead notes one side's lead. Once both sides have slotsPerSide leads
// the opening entry is written and later calls are ignored.
func (l *Ledger) RecordLead(side int, name string, slotsPerSide int) {
	if l.opened || side < 0 || side > 1 {
		return
	}
	if slotsPerSide < 1 {
		slotsPerSide = 1
	}
	if len(l.leads[side]) < slotsPerSide {
		l.leads[side] = append(l.leads[side], name)
	}
	if len(l.leads[0]) < slotsPerSide || len(l.leads[1]) < slotsPerSide {
		return
	}
	l.opened = true
	text := fmt.Sprintf("%s: %s | %s: %s",
		protocol.SideID(0), strings.Join(l.leads[0], ", "),
		protocol.SideID(1), strings.Join(l.leads[1], ", "))
	l.entries = append([]Entry{{Turn: 0, Text: text}}, l.entries...)
}

func (l *Ledger) Entries() []Entry {
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Text renders the ledger one entry per line, leads first.
func (l *Ledger) Text() string {
	var sb strings.Builder
	for _, e := range l.entries {
		if e.Turn == 0 {
			sb.WriteString("Leads: " + e.Text + "\n")
			continue
		}
		fmt.Fprintf(&sb, "Turn %d: %s\n", e.Turn, e.Text)
	}
	return sb.String()
}
