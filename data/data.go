package data

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"
)

// DefaultPower is assumed for a move missing from the dex.
const DefaultPower = 80

type PokemonData struct {
	Name      string
	Types     []string
	BaseStats map[string]int
	Abilities []string
	WeightKg  float64
}

// Accuracy is either a percentage or "always hits".
type Accuracy struct {
	Always  bool
	Percent int
}

func (a *Accuracy) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch string(b) {
	case "true":
		*a = Accuracy{Always: true, Percent: 100}
		return nil
	case "false", "null":
		*a = Accuracy{}
		return nil
	}
	var n float64
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("precision invalida %s: %w", b, err)
	}
	*a = Accuracy{Percent: int(n)}
	return nil
}

// Chance is the hit chance in [0,1].
func (a Accuracy) Chance() float64 {
	if a.Always || a.Percent <= 0 {
		return 1
	}
	return float64(a.Percent) / 100
}

type MoveData struct {
	ID         string
	Name       string
	Type       string
	Power      int
	Accuracy   Accuracy
	Category   string
	Priority   int
	Target     string
	Boosts     map[string]int
	SelfBoosts map[string]int
	Heal       bool
	Status     string
	Volatile   string
}

func (m MoveData) IsStatus() bool {
	return m.Category == "Status"
}

// RaisesStats reports a positive boost to the user.
func (m MoveData) RaisesStats() bool {
	for _, v := range m.SelfBoosts {
		if v > 0 {
			return true
		}
	}
	if m.Target == "self" || m.Target == "allySide" || m.Target == "adjacentAllyOrSelf" {
		for _, v := range m.Boosts {
			if v > 0 {
				return true
			}
		}
	}
	return false
}

type RawPokemonData struct {
	Name      string            `json:"name"`
	Types     []string          `json:"types"`
	BaseStats map[string]int    `json:"baseStats"`
	Abilities map[string]string `json:"abilities"`
	WeightKg  float64           `json:"weightkg"`
}

type RawMoveData struct {
	Name           string         `json:"name"`
	Type           string         `json:"type"`
	Power          int            `json:"basePower"`
	Accuracy       Accuracy       `json:"accuracy"`
	Category       string         `json:"category"`
	Priority       int            `json:"priority"`
	Target         string         `json:"target"`
	Boosts         map[string]int `json:"boosts"`
	Heal           []int          `json:"heal"`
	Status         string         `json:"status"`
	VolatileStatus string         `json:"volatileStatus"`
	Flags          map[string]int `json:"flags"`
	Self           *struct {
		Boosts map[string]int `json:"boosts"`
	} `json:"self"`
}

// Dex is a species and move lookup loaded from the simulator's pokedex.json
// and moves.json exports.
type Dex struct {
	pokemon map[string]PokemonData
	moves   map[string]MoveData
}

func NewDex() *Dex {
	return &Dex{
		pokemon: make(map[string]PokemonData),
		moves:   make(map[string]MoveData),
	}
}

// Load reads both files. An empty path skips that file.
func Load(pokedexPath, movesPath string) (*Dex, error) {
	d := NewDex()
	if pokedexPath != "" {
		if err := loadFile(pokedexPath, d.LoadPokedex); err != nil {
			return nil, err
		}
	}
	if movesPath != "" {
		if err := loadFile(movesPath, d.LoadMoves); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func loadFile(path string, load func(io.Reader) error) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()
	if err := load(file); err != nil {
		return fmt.Errorf("error al leer %s: %w", path, err)
	}
	return nil
}

func (d *Dex) LoadPokedex(r io.Reader) error {
	var rawData map[string]RawPokemonData
	if err := json.NewDecoder(r).Decode(&rawData); err != nil {
		return err
	}
	for _, p := range rawData {
		abilities := make([]string, 0, len(p.Abilities))
		for _, slot := range []string{"0", "1", "H", "S"} {
			if a, ok := p.Abilities[slot]; ok {
				abilities = append(abilities, a)
			}
		}
		d.pokemon[ToID(p.Name)] = PokemonData{
			Name:      p.Name,
			Types:     p.Types,
			BaseStats: p.BaseStats,
			Abilities: abilities,
			WeightKg:  p.WeightKg,
		}
	}
	return nil
}

func (d *Dex) LoadMoves(r io.Reader) error {
	var rawData map[string]RawMoveData
	if err := json.NewDecoder(r).Decode(&rawData); err != nil {
		return err
	}
	for _, m := range rawData {
		move := MoveData{
			ID:       ToID(m.Name),
			Name:     m.Name,
			Type:     m.Type,
			Power:    m.Power,
			Accuracy: m.Accuracy,
			Category: m.Category,
			Priority: m.Priority,
			Target:   m.Target,
			Boosts:   m.Boosts,
			Heal:     len(m.Heal) > 0 || m.Flags["heal"] > 0,
			Status:   m.Status,
			Volatile: m.VolatileStatus,
		}
		if m.Self != nil {
			move.SelfBoosts = m.Self.Boosts
		}
		d.moves[move.ID] = move
	}
	return nil
}

// Species looks up a form first and then its base species.
func (d *Dex) Species(name string) (PokemonData, bool) {
	if d == nil {
		return PokemonData{}, false
	}
	if p, ok := d.pokemon[ToID(name)]; ok {
		return p, true
	}
	if base, _, ok := strings.Cut(name, "-"); ok {
		p, ok := d.pokemon[ToID(base)]
		return p, ok
	}
	return PokemonData{}, false
}

func (d *Dex) Types(name string) []string {
	p, _ := d.Species(name)
	return p.Types
}

func (d *Dex) Move(name string) (MoveData, bool) {
	if d == nil {
		return MoveData{}, false
	}
	m, ok := d.moves[ToID(name)]
	return m, ok
}

// MoveTypeAndPower falls back to DefaultPower for unknown moves.
func (d *Dex) MoveTypeAndPower(name string) (string, int, error) {
	if m, ok := d.Move(name); ok {
		return m.Type, m.Power, nil
	}
	return "", DefaultPower, fmt.Errorf("movimiento no encontrado: %s", name)
}

func (d *Dex) Len() (species, moves int) {
	if d == nil {
		return 0, 0
	}
	return len(d.pokemon), len(d.moves)
}

// ToID folds a display name to the simulator's id form: lowercase letters
// and digits only.
func ToID(name string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
