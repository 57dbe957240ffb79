package parser

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"showdown-pilot/game"
	"showdown-pilot/protocol"
)

func capitalizeFirst(s string) string {
	if len(s) == 0 {
		return s
	}
	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	for i := 1; i < len(runes); i++ {
		runes[i] = unicode.ToLower(runes[i])
	}
	return string(runes)
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k, v := range m {
		if v {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// FormatBoosts renders a sparse boost map like "+1 Atk, -2 Spe" in a stable
// order.
func FormatBoosts(boosts map[string]int) string {
	stats := make([]string, 0, len(boosts))
	for stat, v := range boosts {
		if v != 0 {
			stats = append(stats, stat)
		}
	}
	sort.Strings(stats)
	parts := make([]string, 0, len(stats))
	for _, stat := range stats {
		parts = append(parts, fmt.Sprintf("%+d %s", boosts[stat], capitalizeFirst(stat)))
	}
	return strings.Join(parts, ", ")
}

// Summarize renders the state as plain text for prompts and the watch feed.
// The output is deterministic for a given state.
func Summarize(state *game.BattleState) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Turn: %d (%s)\n", state.Turn, state.GameType)
	if state.Field.Weather != "" {
		fmt.Fprintf(&sb, "Weather: %s\n", state.Field.Weather)
	}
	if t := sortedKeys(state.Field.Terrain); len(t) > 0 {
		sb.WriteString("Terrain: " + strings.Join(t, ", ") + "\n")
	}
	if p := sortedKeys(state.Field.PseudoWeather); len(p) > 0 {
		sb.WriteString("Field: " + strings.Join(p, ", ") + "\n")
	}

	for i, side := range state.Sides {
		label := sideLabel(side)
		switch {
		case state.Self == i:
			label += " (you)"
		case state.Self >= 0:
			label += " (opponent)"
		}
		fmt.Fprintf(&sb, "\n[%s] %s\n", protocol.SideID(i), label)
		if e := sortedKeys(state.Field.SideEffects[i]); len(e) > 0 {
			sb.WriteString("  Side: " + strings.Join(e, ", ") + "\n")
		}
		if side.Tera != nil {
			fmt.Fprintf(&sb, "  Terastallized: %s (%s)\n", side.Tera.Species, side.Tera.Type)
		}
		for j, slot := range side.Slots {
			if slot.Empty() {
				fmt.Fprintf(&sb, "  Slot %d: empty\n", j+1)
				continue
			}
			fmt.Fprintf(&sb, "  Slot %d: %s L%d [%s]", j+1, slot.DisplayName, slot.Level, slot.Condition)
			if slot.Status != "" && !slot.Fainted() {
				fmt.Fprintf(&sb, " %s", slot.Status)
			}
			if b := FormatBoosts(slot.Boosts); b != "" {
				fmt.Fprintf(&sb, " (%s)", b)
			}
			sb.WriteString("\n")
		}
		k := side.Knowledge
		if i != state.Self && len(k.Order) > 0 {
			fmt.Fprintf(&sb, "  Seen %d of %d, %d remaining:", len(k.Order), k.TotalRosterSize, k.Remaining())
			for _, s := range k.Sightings() {
				sb.WriteString(" " + s.Species)
				if s.Fainted {
					sb.WriteString("(fnt)")
				}
				if len(s.Moves) > 0 {
					sb.WriteString("{" + strings.Join(s.Moves, "/") + "}")
				}
			}
			sb.WriteString("\n")
		}
	}
	return sb.String()
}
