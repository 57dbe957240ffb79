package protocol

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Transform is an exclusive keyword appended to a move command.
type Transform string

const (
	NoTransform  Transform = ""
	Terastallize Transform = "terastallize"
	Mega         Transform = "mega"
	Ultra        Transform = "ultra"
	ZMoveBurst   Transform = "zmove"
	Dynamax      Transform = "dynamax"
)

const (
	Pass    = "pass"
	Default = "default"

	// ChoiceSeparator joins per-slot commands in multi-slot formats.
	ChoiceSeparator = ", "
)

func MoveCommand(index, target int, t Transform) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "move %d", index)
	if target != 0 {
		fmt.Fprintf(&sb, " %d", target)
	}
	if t != NoTransform {
		sb.WriteString(" ")
		sb.WriteString(string(t))
	}
	return sb.String()
}

func SwitchCommand(rosterIndex int) string {
	return fmt.Sprintf("switch %d", rosterIndex)
}

func TeamCommand(order []int) string {
	var sb strings.Builder
	sb.WriteString("team ")
	for _, i := range order {
		sb.WriteString(strconv.Itoa(i))
	}
	return sb.String()
}

func JoinChoices(choices []string) string {
	return strings.Join(choices, ChoiceSeparator)
}

// ChooseMessage is the room message that submits a command for a request.
func ChooseMessage(command string, rqid int) string {
	if rqid > 0 {
		return fmt.Sprintf("/choose %s|%d", command, rqid)
	}
	return "/choose " + command
}

// CommandKind classifies a parsed free-text command.
type CommandKind int

const (
	CommandUnknown CommandKind = iota
	CommandMove
	CommandSwitch
	CommandTeam
	CommandPass
	CommandDefault
)

// Command is a free-text choice (typed by a person, returned by a model or a
// script) decoded into its parts.
type Command struct {
	Kind      CommandKind
	Index     int
	Target    int
	Transform Transform
	Order     []int
}

var (
	moveRe   = regexp.MustCompile(`move\s+(\d+)(?:\s+(-?\d+))?(?:\s+(terastallize|tera|mega|ultra|zmove|dynamax|max))?`)
	switchRe = regexp.MustCompile(`switch\s+(\d+)`)
	teamRe   = regexp.MustCompile(`team\s*(\d{1,6})`)
)

// ParseCommand extracts the first recognizable command from text. Matching
// is case-insensitive and tolerant of surrounding prose.
func ParseCommand(text string) (Command, bool) {
	s := strings.ToLower(strings.TrimSpace(text))
	if m := teamRe.FindStringSubmatch(s); m != nil {
		order := make([]int, 0, len(m[1]))
		for _, r := range m[1] {
			order = append(order, int(r-'0'))
		}
		return Command{Kind: CommandTeam, Order: order}, true
	}
	mi := moveRe.FindStringSubmatchIndex(s)
	si := switchRe.FindStringSubmatchIndex(s)
	if mi != nil && (si == nil || mi[0] < si[0]) {
		m := moveRe.FindStringSubmatch(s)
		c := Command{Kind: CommandMove}
		c.Index, _ = strconv.Atoi(m[1])
		if m[2] != "" {
			c.Target, _ = strconv.Atoi(m[2])
		}
		switch m[3] {
		case "tera", "terastallize":
			c.Transform = Terastallize
		case "max", "dynamax":
			c.Transform = Dynamax
		default:
			c.Transform = Transform(m[3])
		}
		return c, true
	}
	if si != nil {
		m := switchRe.FindStringSubmatch(s)
		idx, _ := strconv.Atoi(m[1])
		return Command{Kind: CommandSwitch, Index: idx}, true
	}
	switch {
	case strings.HasPrefix(s, Pass):
		return Command{Kind: CommandPass}, true
	case strings.HasPrefix(s, Default):
		return Command{Kind: CommandDefault}, true
	}
	return Command{}, false
}

// ChoiceErrorKind classifies |error| lines.
type ChoiceErrorKind int

const (
	ErrorOther ChoiceErrorKind = iota
	ErrorInvalidChoice
	ErrorUnavailableChoice
)

type ChoiceError struct {
	Kind    ChoiceErrorKind
	Message string
}

func (e ChoiceError) Error() string {
	return e.Message
}

func ParseChoiceError(msg string) ChoiceError {
	switch {
	case strings.HasPrefix(msg, "[Invalid choice]"):
		return ChoiceError{Kind: ErrorInvalidChoice, Message: msg}
	case strings.HasPrefix(msg, "[Unavailable choice]"):
		return ChoiceError{Kind: ErrorUnavailableChoice, Message: msg}
	}
	return ChoiceError{Kind: ErrorOther, Message: msg}
}
