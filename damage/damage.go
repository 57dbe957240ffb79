// Package damage estimates per-move damage ranges from what the battle
// state exposes. It is a simplified calculator for ranking choices, not a
// replacement for the simulator's formula.
package damage

import (
	"math"
	"strings"

	"showdown-pilot/data"
)

// Combatant is one side of an estimate. Stats override the level-derived
// values when known (the own side's request carries them).
type Combatant struct {
	Species   string
	Level     int
	Types     []string
	TeraType  string
	HPPercent float64
	Status    string
	Boosts    map[string]int
	Stats     map[string]int
}

type Field struct {
	Weather string
	Terrain string
	// Screens are the defender's side conditions.
	Screens map[string]bool
	Doubles bool
}

// Range is the estimated damage of one move as a percentage of the
// defender's maximum HP.
type Range struct {
	Move          string
	MinPercent    float64
	MaxPercent    float64
	Effectiveness float64
	KO            bool
}

type Estimator interface {
	Estimate(attacker, defender Combatant, moves []string, field Field) []Range
}

// Calculator is the Estimator backed by a dex. It holds no mutable state.
type Calculator struct {
	dex *data.Dex
}

func NewCalculator(dex *data.Dex) *Calculator {
	return &Calculator{dex: dex}
}

func (c *Calculator) Estimate(attacker, defender Combatant, moves []string, field Field) []Range {
	out := make([]Range, 0, len(moves))
	for _, name := range moves {
		out = append(out, c.estimate(attacker, defender, name, field))
	}
	return out
}

func (c *Calculator) estimate(attacker, defender Combatant, name string, field Field) Range {
	r := Range{Move: name, Effectiveness: 1}
	move, known := c.dex.Move(name)
	if !known {
		move = data.MoveData{Name: name, Power: data.DefaultPower, Category: "Physical"}
	}
	if move.IsStatus() || move.Power <= 0 {
		return r
	}

	atkTypes := c.types(attacker)
	defTypes := c.types(defender)
	if defender.TeraType != "" {
		defTypes = []string{defender.TeraType}
	}
	r.Effectiveness = Effectiveness(move.Type, defTypes)

	atkStat, defStat := "atk", "def"
	if move.Category == "Special" {
		atkStat, defStat = "spa", "spd"
	}
	level := orDefault(attacker.Level, 100)
	a := c.stat(attacker, atkStat) * boostMultiplier(attacker.Boosts[atkStat])
	d := c.stat(defender, defStat) * boostMultiplier(defender.Boosts[defStat])
	if d <= 0 {
		d = 1
	}

	base := math.Floor(math.Floor(math.Floor(2*float64(level)/5+2)*float64(move.Power)*a/d)/50) + 2

	mod := r.Effectiveness * stab(move.Type, atkTypes, attacker.TeraType)
	mod *= weather(field.Weather, move.Type)
	mod *= terrain(field.Terrain, move.Type)
	if field.Doubles && spread(move.Target) {
		mod *= 0.75
	}
	if move.Category == "Physical" && attacker.Status == "brn" {
		mod *= 0.5
	}
	mod *= screen(field, move.Category)

	maxHP := c.stat(defender, "hp")
	if maxHP <= 0 {
		maxHP = 1
	}
	r.MaxPercent = math.Floor(base*mod) * 100 / maxHP
	r.MinPercent = math.Floor(base*mod*0.85) * 100 / maxHP
	hp := defender.HPPercent
	if hp <= 0 {
		hp = 100
	}
	r.KO = r.Effectiveness > 0 && r.MinPercent >= hp
	return r
}

func (c *Calculator) types(cb Combatant) []string {
	if len(cb.Types) > 0 {
		return cb.Types
	}
	return c.dex.Types(cb.Species)
}

// stat derives a stat at the combatant's level with perfect IVs and no EVs
// when the actual value is unknown.
func (c *Calculator) stat(cb Combatant, name string) float64 {
	if v, ok := cb.Stats[name]; ok && v > 0 {
		return float64(v)
	}
	base := 80
	if p, ok := c.dex.Species(cb.Species); ok {
		if v, ok := p.BaseStats[name]; ok {
			base = v
		}
	}
	level := orDefault(cb.Level, 100)
	v := math.Floor(float64((2*base+31)*level) / 100)
	if name == "hp" {
		return v + float64(level) + 10
	}
	return v + 5
}

func boostMultiplier(stage int) float64 {
	stage = max(-6, min(6, stage))
	if stage >= 0 {
		return float64(2+stage) / 2
	}
	return 2 / float64(2-stage)
}

func stab(moveType string, types []string, tera string) float64 {
	original := false
	for _, t := range types {
		if t == moveType {
			original = true
		}
	}
	switch {
	case tera != "" && tera == moveType && original:
		return 2
	case tera == moveType || original:
		return 1.5
	}
	return 1
}

func weather(w, moveType string) float64 {
	switch w {
	case "RainDance", "PrimordialSea":
		switch moveType {
		case "Water":
			return 1.5
		case "Fire":
			if w == "PrimordialSea" {
				return 0
			}
			return 0.5
		}
	case "SunnyDay", "DesolateLand":
		switch moveType {
		case "Fire":
			return 1.5
		case "Water":
			if w == "DesolateLand" {
				return 0
			}
			return 0.5
		}
	}
	return 1
}

func terrain(t, moveType string) float64 {
	switch strings.TrimSuffix(t, " Terrain") {
	case "Electric":
		if moveType == "Electric" {
			return 1.3
		}
	case "Grassy":
		if moveType == "Grass" {
			return 1.3
		}
	case "Psychic":
		if moveType == "Psychic" {
			return 1.3
		}
	case "Misty":
		if moveType == "Dragon" {
			return 0.5
		}
	}
	return 1
}

func spread(target string) bool {
	return target == "allAdjacent" || target == "allAdjacentFoes"
}

func screen(f Field, category string) float64 {
	hit := f.Screens["Aurora Veil"] ||
		(category == "Physical" && f.Screens["Reflect"]) ||
		(category == "Special" && f.Screens["Light Screen"])
	if !hit {
		return 1
	}
	if f.Doubles {
		return 2732.0 / 4096
	}
	return 0.5
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
