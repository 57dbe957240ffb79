package game

import (
	"regexp"
	"strconv"
	"strings"
)

// Sighting is what has been observed about one combatant of a side.
type Sighting struct {
	Species   string
	Level     int
	Condition string
	Active    bool
	Fainted   bool
	Ability   string
	Item      string
	Moves     []string
}

// Knowledge is built only from observed events. Entries are never removed
// and Fainted is sticky.
type Knowledge struct {
	Seen            map[string]*Sighting
	Order           []string
	TotalRosterSize int
	previewed       int
	corrected       bool
}

func NewKnowledge(rosterSize int) *Knowledge {
	return &Knowledge{
		Seen:            make(map[string]*Sighting),
		TotalRosterSize: rosterSize,
	}
}

// DefaultRosterSize is 6 for singles and 4 for two-slot formats.
func DefaultRosterSize(slotsPerSide int) int {
	if slotsPerSide > 1 {
		return 4
	}
	return 6
}

func (k *Knowledge) entry(species string) *Sighting {
	key := NormalizeSpecies(species)
	s, ok := k.Seen[key]
	if !ok {
		s = &Sighting{Species: key}
		k.Seen[key] = s
		k.Order = append(k.Order, key)
	}
	return s
}

// Observe records a sighting of species with its latest condition.
func (k *Knowledge) Observe(species string, level int, condition string, active bool) *Sighting {
	s := k.entry(species)
	if level > 0 {
		s.Level = level
	}
	if condition != "" {
		s.Condition = condition
	}
	s.Active = active
	if strings.HasSuffix(condition, "fnt") {
		s.Fainted = true
	}
	return s
}

func (k *Knowledge) SetActive(species string, active bool) {
	if s, ok := k.Lookup(species); ok {
		s.Active = active
	}
}

func (k *Knowledge) UpdateCondition(species, condition string) {
	if s, ok := k.Lookup(species); ok {
		s.Condition = condition
		if strings.HasSuffix(condition, "fnt") {
			s.Fainted = true
		}
	}
}

func (k *Knowledge) MarkFainted(species string) {
	s := k.entry(species)
	s.Fainted = true
	s.Active = false
	s.Condition = FaintedCondition
}

func (k *Knowledge) RecordMove(species, move string) {
	s := k.entry(species)
	for _, m := range s.Moves {
		if m == move {
			return
		}
	}
	s.Moves = append(s.Moves, move)
}

func (k *Knowledge) RecordAbility(species, ability string) {
	k.entry(species).Ability = ability
}

func (k *Knowledge) RecordItem(species, item string) {
	k.entry(species).Item = item
}

// AddFromTeamPreview records a member revealed at team preview and corrects
// the roster size to the number revealed so far.
func (k *Knowledge) AddFromTeamPreview(species string, level int) {
	s := k.entry(species)
	if level > 0 && s.Level == 0 {
		s.Level = level
	}
	k.previewed++
	k.TotalRosterSize = k.previewed
	k.corrected = true
}

// SetRosterSize applies an explicit roster size announced by the engine.
func (k *Knowledge) SetRosterSize(n int) {
	if n <= 0 {
		return
	}
	k.TotalRosterSize = n
	k.corrected = true
}

func (k *Knowledge) Corrected() bool {
	return k.corrected
}

func (k *Knowledge) Lookup(species string) (*Sighting, bool) {
	s, ok := k.Seen[NormalizeSpecies(species)]
	return s, ok
}

func (k *Knowledge) FaintedCount() int {
	n := 0
	for _, s := range k.Seen {
		if s.Fainted {
			n++
		}
	}
	return n
}

// Remaining is the roster size minus the members seen fainting.
func (k *Knowledge) Remaining() int {
	r := k.TotalRosterSize - k.FaintedCount()
	if r < 0 {
		return 0
	}
	return r
}

// Sightings lists entries in first-seen order.
func (k *Knowledge) Sightings() []Sighting {
	out := make([]Sighting, 0, len(k.Order))
	for _, key := range k.Order {
		out = append(out, *k.Seen[key])
	}
	return out
}

func (k *Knowledge) Clone() *Knowledge {
	c := &Knowledge{
		Seen:            make(map[string]*Sighting, len(k.Seen)),
		Order:           append([]string(nil), k.Order...),
		TotalRosterSize: k.TotalRosterSize,
		previewed:       k.previewed,
		corrected:       k.corrected,
	}
	for key, s := range k.Seen {
		cp := *s
		cp.Moves = append([]string(nil), s.Moves...)
		c.Seen[key] = &cp
	}
	return c
}

var (
	simpleFormRe = regexp.MustCompile(`^[A-Za-z]+(-[A-Za-z]+)?$`)
	levelRe      = regexp.MustCompile(`(?:^|,\s*)L(\d+)(?:,|$)`)
)

// NormalizeSpecies maps a name to its form-insensitive identity: the base
// name inside parentheses when present ("Nick (Species)"), otherwise the part
// before a single hyphenated form suffix ("Indeedee-F" -> "Indeedee").
// Names with other punctuation are kept as they are.
func NormalizeSpecies(name string) string {
	name = strings.TrimSpace(name)
	if open := strings.LastIndex(name, "("); open >= 0 {
		if end := strings.Index(name[open:], ")"); end > 0 {
			inner := strings.TrimSpace(name[open+1 : open+end])
			if inner != "" {
				return NormalizeSpecies(inner)
			}
		}
	}
	if simpleFormRe.MatchString(name) {
		base, _, _ := strings.Cut(name, "-")
		return base
	}
	return name
}

// ParseDetails reads the form-sensitive species and level from a details
// string like "Pikachu, L50, M". Level is 0 when absent.
func ParseDetails(details string) (species string, level int) {
	species, _, _ = strings.Cut(details, ",")
	species = strings.TrimSpace(species)
	if m := levelRe.FindStringSubmatch(details); m != nil {
		level, _ = strconv.Atoi(m[1])
	}
	return species, level
}
