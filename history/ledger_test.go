package history

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendMergesSameTurn(t *testing.T) {
	l := NewLedger(3)
	l.Append(1, "Pikachu used Thunderbolt")
	l.Append(1, "Garchomp took damage (40/100)")
	l.Append(0, "ignored")
	l.Append(2, "  ")

	entries := l.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "Pikachu used Thunderbolt | Garchomp took damage (40/100)", entries[0].Text)
}

func TestWindowEvictsOldestTurn(t *testing.T) {
	l := NewLedger(0)
	l.RecordLead(0, "Pikachu", 1)
	l.RecordLead(1, "Garchomp", 1)

	var lengths []int
	for turn := 1; turn <= 10; turn++ {
		l.Append(turn, fmt.Sprintf("event on turn %d", turn))
		lengths = append(lengths, len(l.Text()))
	}

	entries := l.Entries()
	require.Len(t, entries, DefaultWindow+1)
	assert.Equal(t, 0, entries[0].Turn, "leads are never evicted")
	assert.Equal(t, []int{8, 9, 10}, []int{entries[1].Turn, entries[2].Turn, entries[3].Turn})
	assert.LessOrEqual(t, lengths[9], lengths[3]+2, "text stops growing once the window is full")
}

func TestLeadsNeedBothSides(t *testing.T) {
	l := NewLedger(3)
	l.Append(1, "first turn")
	l.RecordLead(0, "Incineroar", 2)
	l.RecordLead(0, "Amoonguss", 2)
	l.RecordLead(1, "Rillaboom", 2)
	assert.Len(t, l.Entries(), 1)

	l.RecordLead(1, "Flutter Mane", 2)
	l.RecordLead(1, "Landorus", 2)
	l.RecordLead(5, "bogus", 2)

	text := l.Text()
	lines := strings.Split(strings.TrimSpace(text), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "Leads: p1: Incineroar, Amoonguss | p2: Rillaboom, Flutter Mane", lines[0])
	assert.Equal(t, "Turn 1: first turn", lines[1])
}
