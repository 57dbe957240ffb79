package provider

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"showdown-pilot/legal"
	"showdown-pilot/protocol"
)

var (
	styleHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("228"))

	styleOption = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	styleHint = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	styleError = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))
)

// Human reads choices typed on a terminal. Lines are read by one goroutine
// for the provider's lifetime so a cancelled decision never loses input.
type Human struct {
	out   io.Writer
	hints Publisher
	// prompt serializes concurrent slot decisions on one terminal.
	prompt sync.Mutex

	mu    sync.Mutex
	lines chan string
	err   error
}

func NewHuman(in io.Reader, out io.Writer, hints Publisher) *Human {
	h := &Human{out: out, hints: hints, lines: make(chan string)}
	go h.read(in)
	return h
}

func (h *Human) read(in io.Reader) {
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		h.lines <- sc.Text()
	}
	h.mu.Lock()
	h.err = sc.Err()
	if h.err == nil {
		h.err = io.EOF
	}
	h.mu.Unlock()
	close(h.lines)
}

func (h *Human) Name() string { return "human" }

func (h *Human) Decide(ctx context.Context, in Input) (legal.Action, error) {
	if in.Kind != protocol.KindTeamPreview && (in.Slot.Skip || in.Slot.Choices() == 0) {
		return legal.PassAction(in.Slot.Slot), nil
	}
	h.prompt.Lock()
	defer h.prompt.Unlock()
	h.menu(in)
	for {
		fmt.Fprint(h.out, styleHint.Render("> "))
		var line string
		select {
		case <-ctx.Done():
			return legal.Action{}, ctx.Err()
		case l, ok := <-h.lines:
			if !ok {
				h.mu.Lock()
				defer h.mu.Unlock()
				return legal.Action{}, fmt.Errorf("%w: input closed: %v", ErrUnavailable, h.err)
			}
			line = l
		}
		a, err := ParseChoice(in, NormalizeShorthand(line))
		if err != nil {
			fmt.Fprintln(h.out, styleError.Render("Not a legal choice, try again."))
			continue
		}
		if h.hints != nil {
			h.hints.Publish(a.Command())
		}
		return a, nil
	}
}

func (h *Human) menu(in Input) {
	if in.Kind == protocol.KindTeamPreview {
		fmt.Fprintln(h.out, styleHeader.Render("Team preview"))
		for _, m := range in.Options.Roster {
			fmt.Fprintln(h.out, styleOption.Render(fmt.Sprintf("  %d. %s", m.Index, m.Species)))
		}
		fmt.Fprintln(h.out, styleHint.Render(fmt.Sprintf("type \"team 123456\" (at least %d)", in.Options.LeadCount)))
		return
	}
	title := fmt.Sprintf("Turn %d, position %d", in.Turn, in.Slot.Slot+1)
	if in.Slot.MustSwitch {
		title += " (switch required)"
	}
	fmt.Fprintln(h.out, styleHeader.Render(title))
	for _, a := range in.Slot.All() {
		fmt.Fprintln(h.out, styleOption.Render("  "+a.Describe()))
	}
	if len(in.Slot.Transforms) > 0 {
		ts := make([]string, 0, len(in.Slot.Transforms))
		for _, t := range in.Slot.Transforms {
			ts = append(ts, string(t))
		}
		fmt.Fprintln(h.out, styleHint.Render("  add: "+strings.Join(ts, ", ")))
	}
	fmt.Fprintln(h.out, styleHint.Render("  shorthand: m1, m1 t, m2 2, s3"))
}

var (
	moveShortRe   = regexp.MustCompile(`^m(\d+)(?:\s+(-?\d+))?(?:\s+(t|d|mega|ultra|z))?$`)
	switchShortRe = regexp.MustCompile(`^s(\d+)$`)
)

var shortTransforms = map[string]protocol.Transform{
	"t":     protocol.Terastallize,
	"d":     protocol.Dynamax,
	"mega":  protocol.Mega,
	"ultra": protocol.Ultra,
	"z":     protocol.ZMoveBurst,
}

// NormalizeShorthand expands terminal shorthand: m1, m1 t, m2 2, s3.
// Anything else is returned trimmed.
func NormalizeShorthand(line string) string {
	s := strings.ToLower(strings.TrimSpace(line))
	if m := moveShortRe.FindStringSubmatch(s); m != nil {
		parts := []string{"move", m[1]}
		if m[2] != "" {
			parts = append(parts, m[2])
		}
		if m[3] != "" {
			parts = append(parts, string(shortTransforms[m[3]]))
		}
		return strings.Join(parts, " ")
	}
	if m := switchShortRe.FindStringSubmatch(s); m != nil {
		return "switch " + m[1]
	}
	return s
}
