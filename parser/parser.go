package parser

import (
	"strconv"
	"strings"

	"showdown-pilot/game"
	"showdown-pilot/i18n"
	"showdown-pilot/protocol"
)

// Event is what one applied line produced: the log projection plus the
// signals the orchestrator reacts to.
type Event struct {
	Tag  string
	Text string

	// History is a short phrase for the history ledger (moves, switches,
	// faints).
	History string
	// Lead is set for switch-ins observed before the first turn.
	Lead *Lead

	Turn        int
	Request     *protocol.Request
	RequestErr  error
	ChoiceError *protocol.ChoiceError
	Ended       bool
}

type Lead struct {
	Side int
	Name string
}

// Interpreter reduces protocol lines into a BattleState. Apply must be fed
// every line in arrival order.
type Interpreter struct {
	state *game.BattleState
	tr    i18n.Translator
}

func NewInterpreter(state *game.BattleState, tr i18n.Translator) *Interpreter {
	if tr == nil {
		tr = i18n.Plain{}
	}
	return &Interpreter{state: state, tr: tr}
}

func (in *Interpreter) State() *game.BattleState {
	return in.state
}

// Replay applies every line of a saved log to state.
func Replay(state *game.BattleState, logText string, tr i18n.Translator) []Event {
	in := NewInterpreter(state, tr)
	var events []Event
	for _, line := range strings.Split(logText, "\n") {
		events = append(events, in.Apply(line))
	}
	return events
}

// Apply mutates the state for one line. Unknown tags are ignored.
func (in *Interpreter) Apply(raw string) Event {
	line, ok := protocol.ParseLine(raw)
	if !ok {
		return Event{}
	}
	ev := Event{Tag: line.Tag}
	st := in.state

	switch line.Tag {
	case "player":
		if side, err := protocol.ParseSide(line.Arg(0)); err == nil && line.Arg(1) != "" {
			st.Sides[side].Name = line.Arg(1)
		}
	case "gametype":
		st.GameType = line.Arg(0)
		switch line.Arg(0) {
		case "doubles":
			st.SetSlotsPerSide(2)
		case "singles":
			st.SetSlotsPerSide(1)
		}
	case "teamsize":
		if side, err := protocol.ParseSide(line.Arg(0)); err == nil {
			n, _ := strconv.Atoi(line.Arg(1))
			st.Sides[side].Knowledge.SetRosterSize(n)
		}
	case "poke":
		if side, err := protocol.ParseSide(line.Arg(0)); err == nil {
			species, level := game.ParseDetails(line.Arg(1))
			if level == 0 {
				level = st.DefaultLevel()
			}
			st.Sides[side].Knowledge.AddFromTeamPreview(species, level)
		}
	case "start":
		ev.Text = in.tr.Sprintf("Battle started")
	case "turn":
		if t, err := strconv.Atoi(line.Arg(0)); err == nil {
			st.Turn = t
			ev.Turn = t
			ev.Text = in.tr.Sprintf("=== Turn %d ===", t)
		}
	case "switch", "drag", "replace":
		in.switchIn(line, &ev)
	case "detailschange", "-formechange":
		in.formeChange(line, &ev)
	case "swap":
		in.swap(line, &ev)
	case "move":
		in.move(line, &ev)
	case "-damage", "-heal", "-sethp":
		in.condition(line, &ev)
	case "-status":
		if slot, a := in.slot(line.Arg(0)); slot != nil {
			slot.Status = line.Arg(1)
			if in.trusted(a.Side) {
				slot.Condition = game.WithStatus(slot.Condition, slot.Status)
			}
			ev.Text = in.tr.Sprintf("%s is now %s", a.Name, in.tr.Name("status", line.Arg(1)))
		}
	case "-curestatus":
		if slot, a := in.slot(line.Arg(0)); slot != nil {
			slot.Status = ""
			slot.Condition = game.WithStatus(slot.Condition, "")
			ev.Text = in.tr.Sprintf("%s was cured of %s", a.Name, in.tr.Name("status", line.Arg(1)))
		}
	case "-cureteam":
		if a, err := protocol.ParseActor(line.Arg(0)); err == nil {
			for _, slot := range st.Sides[a.Side].Slots {
				slot.Status = ""
				slot.Condition = game.WithStatus(slot.Condition, "")
			}
			ev.Text = in.tr.Sprintf("%s's team was cured", sideLabel(st.Sides[a.Side]))
		}
	case "faint":
		in.faint(line, &ev)
	case "-boost", "-unboost", "-setboost", "-clearboost", "-clearallboost",
		"-clearpositiveboost", "-clearnegativeboost", "-invertboost", "-swapboost", "-copyboost":
		in.boost(line, &ev)
	case "-terastallize":
		in.terastallize(line, &ev)
	case "-mega", "-primal", "-burst", "-zpower":
		in.transform(line, &ev)
	case "-start":
		if slot, a := in.slot(line.Arg(0)); slot != nil {
			effect := protocol.StripEffectPrefix(line.Arg(1))
			if effect == "Dynamax" {
				st.Sides[a.Side].Spent[protocol.Dynamax] = true
			}
			ev.Text = in.tr.Sprintf("%s: %s started", a.Name, effect)
		}
	case "-end":
		if _, a := in.slot(line.Arg(0)); a.Name != "" {
			ev.Text = in.tr.Sprintf("%s: %s ended", a.Name, protocol.StripEffectPrefix(line.Arg(1)))
		}
	case "-weather":
		in.weather(line, &ev)
	case "-fieldstart":
		in.fieldStart(line, &ev)
	case "-fieldend":
		effect := protocol.StripEffectPrefix(line.Arg(0))
		if st.Field.Terrain[effect] {
			delete(st.Field.Terrain, effect)
			ev.Text = in.tr.Sprintf("%s ended", in.tr.Name("terrain", effect))
		} else {
			delete(st.Field.PseudoWeather, effect)
			ev.Text = in.tr.Sprintf("%s ended", in.tr.Name("field", effect))
		}
	case "-sidestart", "-sideend":
		a, err := protocol.ParseActor(line.Arg(0))
		if err != nil {
			break
		}
		effect := protocol.StripEffectPrefix(line.Arg(1))
		if line.Tag == "-sidestart" {
			st.Field.SideEffects[a.Side][effect] = true
			ev.Text = in.tr.Sprintf("%s started on %s's side", in.tr.Name("side", effect), sideLabel(st.Sides[a.Side]))
		} else {
			delete(st.Field.SideEffects[a.Side], effect)
			ev.Text = in.tr.Sprintf("%s ended on %s's side", in.tr.Name("side", effect), sideLabel(st.Sides[a.Side]))
		}
	case "-swapsideconditions":
		st.Field.SideEffects[0], st.Field.SideEffects[1] = st.Field.SideEffects[1], st.Field.SideEffects[0]
		ev.Text = in.tr.Sprintf("Side conditions were swapped")
	case "-ability":
		if slot, a := in.slot(line.Arg(0)); slot != nil {
			st.Sides[a.Side].Knowledge.RecordAbility(slot.Species, line.Arg(1))
			ev.Text = in.tr.Sprintf("%s's ability: %s", a.Name, line.Arg(1))
		}
	case "-item":
		if slot, a := in.slot(line.Arg(0)); slot != nil {
			st.Sides[a.Side].Knowledge.RecordItem(slot.Species, line.Arg(1))
			ev.Text = in.tr.Sprintf("%s's item: %s", a.Name, line.Arg(1))
		}
	case "-enditem":
		if slot, a := in.slot(line.Arg(0)); slot != nil {
			st.Sides[a.Side].Knowledge.RecordItem(slot.Species, "")
			ev.Text = in.tr.Sprintf("%s lost its %s", a.Name, line.Arg(1))
		}
	case "-transform":
		if _, a := in.slot(line.Arg(0)); a.Name != "" {
			ev.Text = in.tr.Sprintf("%s transformed", a.Name)
		}
	case "cant":
		if _, a := in.slot(line.Arg(0)); a.Name != "" {
			ev.Text = in.tr.Sprintf("%s can't move (%s)", a.Name, line.Arg(1))
		}
	case "-fail", "-miss", "-immune", "-crit", "-supereffective", "-resisted", "-activate", "-hint", "-message":
		ev.Text = in.notice(line)
	case "request":
		in.request(line, &ev)
	case "error":
		ce := protocol.ParseChoiceError(line.Rest(0))
		ev.ChoiceError = &ce
		ev.Text = in.tr.Sprintf("Engine error: %s", ce.Message)
	case "win":
		st.Ended = true
		st.Winner = line.Arg(0)
		ev.Ended = true
		ev.Text = in.tr.Sprintf("%s won the battle", line.Arg(0))
	case "tie":
		st.Ended = true
		st.Tie = true
		ev.Ended = true
		ev.Text = in.tr.Sprintf("The battle ended in a tie")
	}
	return ev
}

// slot resolves an actor token to its slot. Unpositioned tokens are matched
// by nickname among the side's active slots.
func (in *Interpreter) slot(token string) (*game.SlotState, protocol.Actor) {
	a, err := protocol.ParseActor(token)
	if err != nil {
		return nil, protocol.Actor{}
	}
	side := in.state.Sides[a.Side]
	if a.Positioned {
		return side.Slot(a.Slot), a
	}
	for i, s := range side.Slots {
		if !s.Empty() && s.Nickname == a.Name {
			a.Slot = i
			return s, a
		}
	}
	return nil, a
}

func sideLabel(side *game.SideState) string {
	if side.Name != "" {
		return side.Name
	}
	return side.ID
}

// trusted reports whether hp updates for side should be applied. The own
// side's state arrives authoritatively with the next request.
func (in *Interpreter) trusted(side int) bool {
	return in.state.Self < 0 || side != in.state.Self
}

func (in *Interpreter) switchIn(line protocol.Line, ev *Event) {
	st := in.state
	a, err := protocol.ParseActor(line.Arg(0))
	if err != nil {
		return
	}
	side := st.Sides[a.Side]
	if a.Slot >= len(side.Slots) {
		st.SetSlotsPerSide(a.Slot + 1)
	}
	prev := side.Slots[a.Slot]
	if !prev.Empty() {
		side.Knowledge.SetActive(prev.Species, false)
	}

	display, level := game.ParseDetails(line.Arg(1))
	if level == 0 {
		level = st.DefaultLevel()
	}
	cond := line.Arg(2)
	_, _, status := game.ParseCondition(cond)
	if status == "fnt" {
		status = ""
	}
	slot := &game.SlotState{
		Species:     game.NormalizeSpecies(display),
		DisplayName: display,
		Nickname:    a.Name,
		Condition:   cond,
		Status:      status,
		Level:       level,
		Boosts:      make(map[string]int),
	}
	side.Slots[a.Slot] = slot
	side.Knowledge.Observe(display, level, cond, true)

	switch line.Tag {
	case "drag":
		ev.Text = in.tr.Sprintf("%s was dragged out: %s (%s)", sideLabel(side), display, cond)
		ev.History = in.tr.Sprintf("%s dragged in %s", protocol.SideID(a.Side), display)
	default:
		ev.Text = in.tr.Sprintf("%s sent out %s (%s)", sideLabel(side), display, cond)
		ev.History = in.tr.Sprintf("%s switched in %s", protocol.SideID(a.Side), display)
	}
	if st.Turn == 0 && line.Tag == "switch" {
		ev.Lead = &Lead{Side: a.Side, Name: display}
		ev.History = ""
	}
}

func (in *Interpreter) formeChange(line protocol.Line, ev *Event) {
	slot, a := in.slot(line.Arg(0))
	if slot == nil {
		return
	}
	display, _ := game.ParseDetails(line.Arg(1))
	slot.DisplayName = display
	if line.Tag == "detailschange" {
		slot.Species = game.NormalizeSpecies(display)
	}
	ev.Text = in.tr.Sprintf("%s changed form to %s", a.Name, display)
}

func (in *Interpreter) swap(line protocol.Line, ev *Event) {
	slot, a := in.slot(line.Arg(0))
	if slot == nil {
		return
	}
	to, err := strconv.Atoi(line.Arg(1))
	side := in.state.Sides[a.Side]
	if err != nil || to < 0 || to >= len(side.Slots) || to == a.Slot {
		return
	}
	side.Slots[a.Slot], side.Slots[to] = side.Slots[to], side.Slots[a.Slot]
	ev.Text = in.tr.Sprintf("%s moved to position %d", a.Name, to+1)
}

func (in *Interpreter) move(line protocol.Line, ev *Event) {
	slot, a := in.slot(line.Arg(0))
	if a.Name == "" {
		return
	}
	moveName := line.Arg(1)
	if slot != nil {
		in.state.Sides[a.Side].Knowledge.RecordMove(slot.Species, moveName)
	}
	target := ""
	if t, err := protocol.ParseActor(line.Arg(2)); err == nil && t.Name != "" {
		target = t.Name
	}
	if target != "" && target != a.Name {
		ev.Text = in.tr.Sprintf("%s used %s on %s", a.Name, moveName, target)
		ev.History = in.tr.Sprintf("%s: %s used %s on %s", protocol.SideID(a.Side), a.Name, moveName, target)
		return
	}
	ev.Text = in.tr.Sprintf("%s used %s", a.Name, moveName)
	ev.History = in.tr.Sprintf("%s: %s used %s", protocol.SideID(a.Side), a.Name, moveName)
}

func (in *Interpreter) condition(line protocol.Line, ev *Event) {
	slot, a := in.slot(line.Arg(0))
	if slot == nil {
		return
	}
	cond := line.Arg(1)
	if in.trusted(a.Side) {
		slot.Condition = cond
		if _, _, status := game.ParseCondition(cond); status != "" && status != "fnt" {
			slot.Status = status
		}
		in.state.Sides[a.Side].Knowledge.UpdateCondition(slot.Species, cond)
	}
	switch line.Tag {
	case "-damage":
		ev.Text = in.tr.Sprintf("%s took damage (%s)", a.Name, cond)
	case "-heal":
		ev.Text = in.tr.Sprintf("%s restored HP (%s)", a.Name, cond)
	default:
		ev.Text = in.tr.Sprintf("%s's HP is now %s", a.Name, cond)
	}
}

func (in *Interpreter) faint(line protocol.Line, ev *Event) {
	slot, a := in.slot(line.Arg(0))
	if slot == nil {
		return
	}
	slot.Condition = game.FaintedCondition
	slot.Status = ""
	in.state.Sides[a.Side].Knowledge.MarkFainted(slot.Species)
	ev.Text = in.tr.Sprintf("%s fainted", a.Name)
	ev.History = in.tr.Sprintf("%s: %s fainted", protocol.SideID(a.Side), a.Name)
}

func (in *Interpreter) boost(line protocol.Line, ev *Event) {
	st := in.state
	if line.Tag == "-clearallboost" {
		for _, side := range st.Sides {
			for _, slot := range side.Slots {
				slot.Boosts = make(map[string]int)
			}
		}
		ev.Text = in.tr.Sprintf("All stat changes were eliminated")
		return
	}
	slot, a := in.slot(line.Arg(0))
	if slot == nil {
		return
	}
	if slot.Boosts == nil {
		slot.Boosts = make(map[string]int)
	}
	stat := line.Arg(1)
	amount, _ := strconv.Atoi(line.Arg(2))

	switch line.Tag {
	case "-boost":
		setBoost(slot, stat, slot.Boosts[stat]+amount)
		ev.Text = in.tr.Sprintf("%s's %s rose by %d", a.Name, stat, amount)
	case "-unboost":
		setBoost(slot, stat, slot.Boosts[stat]-amount)
		ev.Text = in.tr.Sprintf("%s's %s fell by %d", a.Name, stat, amount)
	case "-setboost":
		setBoost(slot, stat, amount)
		ev.Text = in.tr.Sprintf("%s's %s was set to %d", a.Name, stat, amount)
	case "-clearboost":
		slot.Boosts = make(map[string]int)
		ev.Text = in.tr.Sprintf("%s's stat changes were removed", a.Name)
	case "-clearpositiveboost":
		for k, v := range slot.Boosts {
			if v > 0 {
				delete(slot.Boosts, k)
			}
		}
		ev.Text = in.tr.Sprintf("%s's stat boosts were removed", a.Name)
	case "-clearnegativeboost":
		for k, v := range slot.Boosts {
			if v < 0 {
				delete(slot.Boosts, k)
			}
		}
		ev.Text = in.tr.Sprintf("%s's lowered stats were restored", a.Name)
	case "-invertboost":
		for k, v := range slot.Boosts {
			slot.Boosts[k] = -v
		}
		ev.Text = in.tr.Sprintf("%s's stat changes were inverted", a.Name)
	case "-swapboost", "-copyboost":
		other, _ := in.slot(line.Arg(1))
		if other == nil {
			return
		}
		stats := boostStats(line.Arg(2), slot.Boosts, other.Boosts)
		for _, s := range stats {
			mine, theirs := slot.Boosts[s], other.Boosts[s]
			setBoost(slot, s, theirs)
			if line.Tag == "-swapboost" {
				setBoost(other, s, mine)
			}
		}
		if line.Tag == "-swapboost" {
			ev.Text = in.tr.Sprintf("%s swapped stat changes", a.Name)
		} else {
			ev.Text = in.tr.Sprintf("%s copied stat changes", a.Name)
		}
	}
}

// setBoost keeps the map sparse: a zero stage is an absent key.
func setBoost(slot *game.SlotState, stat string, v int) {
	if v == 0 {
		delete(slot.Boosts, stat)
		return
	}
	slot.Boosts[stat] = v
}

func boostStats(arg string, a, b map[string]int) []string {
	if arg != "" && !strings.HasPrefix(arg, "[") {
		var out []string
		for _, s := range strings.Split(arg, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	seen := map[string]bool{}
	var out []string
	for _, m := range []map[string]int{a, b} {
		for k := range m {
			if !seen[k] {
				seen[k] = true
				out = append(out, k)
			}
		}
	}
	return out
}

func (in *Interpreter) terastallize(line protocol.Line, ev *Event) {
	slot, a := in.slot(line.Arg(0))
	if a.Name == "" {
		return
	}
	side := in.state.Sides[a.Side]
	teraType := line.Arg(1)
	if side.Tera == nil {
		species := ""
		if slot != nil {
			species = slot.Species
		}
		side.Tera = &game.Terastallization{Slot: a.Slot, Species: species, Type: teraType}
		side.Spent[protocol.Terastallize] = true
	}
	ev.Text = in.tr.Sprintf("%s terastallized into the %s type", a.Name, teraType)
}

func (in *Interpreter) transform(line protocol.Line, ev *Event) {
	_, a := in.slot(line.Arg(0))
	if a.Name == "" {
		return
	}
	side := in.state.Sides[a.Side]
	switch line.Tag {
	case "-mega":
		side.Spent[protocol.Mega] = true
		ev.Text = in.tr.Sprintf("%s mega evolved", a.Name)
	case "-burst":
		side.Spent[protocol.Ultra] = true
		ev.Text = in.tr.Sprintf("%s used ultra burst", a.Name)
	case "-zpower":
		side.Spent[protocol.ZMoveBurst] = true
		ev.Text = in.tr.Sprintf("%s unleashed its Z-power", a.Name)
	case "-primal":
		ev.Text = in.tr.Sprintf("%s underwent primal reversion", a.Name)
	}
}

func (in *Interpreter) weather(line protocol.Line, ev *Event) {
	st := in.state
	weather := line.Arg(0)
	if line.HasFlag("[upkeep]") {
		return
	}
	if weather == "none" || weather == "" {
		if st.Field.Weather != "" {
			ev.Text = in.tr.Sprintf("%s ended", in.tr.Name("weather", st.Field.Weather))
		}
		st.Field.Weather = ""
		return
	}
	st.Field.Weather = weather
	ev.Text = in.tr.Sprintf("Weather: %s", in.tr.Name("weather", weather))
}

func (in *Interpreter) fieldStart(line protocol.Line, ev *Event) {
	st := in.state
	effect := protocol.StripEffectPrefix(line.Arg(0))
	if !IsTerrain(effect) {
		st.Field.PseudoWeather[effect] = true
		ev.Text = in.tr.Sprintf("%s started", in.tr.Name("field", effect))
		return
	}
	var previous string
	for t := range st.Field.Terrain {
		if t != effect && (previous == "" || t < previous) {
			previous = t
		}
	}
	st.Field.Terrain = map[string]bool{effect: true}
	if previous != "" {
		ev.Text = in.tr.Sprintf("Terrain changed from %s to %s", in.tr.Name("terrain", previous), in.tr.Name("terrain", effect))
		return
	}
	ev.Text = in.tr.Sprintf("%s started", in.tr.Name("terrain", effect))
}

// IsTerrain reports whether a field effect is one of the mutually exclusive
// terrains.
func IsTerrain(effect string) bool {
	return strings.HasSuffix(effect, " Terrain")
}

func (in *Interpreter) notice(line protocol.Line) string {
	_, a := in.slot(line.Arg(0))
	name := a.Name
	switch line.Tag {
	case "-miss":
		return in.tr.Sprintf("%s's attack missed", name)
	case "-crit":
		return in.tr.Sprintf("A critical hit on %s", name)
	case "-supereffective":
		return in.tr.Sprintf("It's super effective on %s", name)
	case "-resisted":
		return in.tr.Sprintf("It's not very effective on %s", name)
	case "-immune":
		return in.tr.Sprintf("It doesn't affect %s", name)
	case "-fail":
		return in.tr.Sprintf("%s's move failed", name)
	case "-activate":
		return in.tr.Sprintf("%s: %s activated", name, protocol.StripEffectPrefix(line.Arg(1)))
	case "-hint", "-message":
		return line.Rest(0)
	}
	return ""
}

func (in *Interpreter) request(line protocol.Line, ev *Event) {
	payload := line.Rest(0)
	if strings.TrimSpace(payload) == "" {
		return
	}
	req, err := protocol.ParseRequest(payload)
	if err != nil {
		ev.RequestErr = err
		return
	}
	st := in.state
	st.Request = req
	if side := req.SideIndex(); side >= 0 {
		st.Self = side
		if req.Side.Name != "" {
			st.Sides[side].Name = req.Side.Name
		}
		in.syncOwnSlots(side, req)
	}
	ev.Request = req
}

// syncOwnSlots copies the request's view of the active members onto the own
// side. A slot only takes the entry whose nickname it already shows.
func (in *Interpreter) syncOwnSlots(side int, req *protocol.Request) {
	own := in.state.Sides[side]
	for i := 0; i < req.Slots() && i < len(own.Slots); i++ {
		m, ok := req.Member(i)
		slot := own.Slots[i]
		if !ok || slot.Empty() || m.Name() != slot.Nickname {
			continue
		}
		if m.Condition != "" {
			slot.Condition = m.Condition
			_, _, status := game.ParseCondition(m.Condition)
			if status == "fnt" {
				status = ""
			}
			slot.Status = status
		}
		if display, _ := game.ParseDetails(m.Details); display != "" {
			slot.DisplayName = display
			slot.Species = game.NormalizeSpecies(display)
		}
		own.Knowledge.Observe(slot.DisplayName, 0, slot.Condition, true)
	}
}
