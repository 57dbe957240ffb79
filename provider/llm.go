package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"showdown-pilot/game"
	"showdown-pilot/legal"
	"showdown-pilot/parser"
	"showdown-pilot/protocol"
)

const defaultChatURL = "https://openrouter.ai/api/v1/chat/completions"

// LLMConfig configures the chat-completions endpoint.
type LLMConfig struct {
	URL         string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	Referer     string
	Title       string
	HTTPClient  *http.Client
}

// LLM asks a chat-completions model for one command per slot.
type LLM struct {
	cfg LLMConfig
}

func NewLLM(cfg LLMConfig) *LLM {
	if strings.TrimSpace(cfg.URL) == "" {
		cfg.URL = defaultChatURL
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 500
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &LLM{cfg: cfg}
}

func (l *LLM) Name() string { return "llm:" + l.cfg.Model }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

const systemPrompt = "You are playing a Pokemon Showdown battle. Answer with exactly one of the listed commands and nothing else."

func (l *LLM) Decide(ctx context.Context, in Input) (legal.Action, error) {
	if in.Kind != protocol.KindTeamPreview && (in.Slot.Skip || in.Slot.Choices() == 0) {
		return legal.PassAction(in.Slot.Slot), nil
	}
	reply, err := l.complete(ctx, BuildPrompt(in))
	if err != nil {
		return legal.Action{}, err
	}
	return ParseReply(in, reply)
}

func (l *LLM) complete(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(l.cfg.APIKey) == "" {
		return "", fmt.Errorf("%w: api key is required", ErrUnavailable)
	}
	body, err := json.Marshal(chatRequest{
		Model: l.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: l.cfg.Temperature,
		MaxTokens:   l.cfg.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+l.cfg.APIKey)
	if l.cfg.Referer != "" {
		req.Header.Set("HTTP-Referer", l.cfg.Referer)
	}
	if l.cfg.Title != "" {
		req.Header.Set("X-Title", l.cfg.Title)
	}

	res, err := l.cfg.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat request failed: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		err := fmt.Errorf("chat request status %d: %s", res.StatusCode, strings.TrimSpace(string(msg)))
		if res.StatusCode == http.StatusTooManyRequests || res.StatusCode >= 500 {
			return "", fmt.Errorf("%w: %v", ErrTransient, err)
		}
		return "", err
	}

	var payload chatResponse
	if err := json.NewDecoder(io.LimitReader(res.Body, 1<<20)).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	if len(payload.Choices) == 0 {
		return "", fmt.Errorf("%w: empty completion", ErrNoChoice)
	}
	return payload.Choices[0].Message.Content, nil
}

// BuildPrompt renders the battle summary, recent history and the legal
// commands of the slot.
func BuildPrompt(in Input) string {
	var sb strings.Builder
	if in.State != nil {
		sb.WriteString(parser.Summarize(in.State))
		sb.WriteString("\n")
	}
	if h := strings.TrimSpace(in.History); h != "" {
		sb.WriteString("Recent turns:\n" + h + "\n\n")
	}
	if in.OpposingChoice != "" {
		sb.WriteString("Your opponent announced: " + in.OpposingChoice + "\n\n")
	}

	if in.Kind == protocol.KindTeamPreview {
		sb.WriteString("Team preview. Your roster:\n")
		for _, m := range in.Options.Roster {
			fmt.Fprintf(&sb, "  %d. %s", m.Index, m.Species)
			if m.Item != "" {
				sb.WriteString(" @ " + m.Item)
			}
			if len(m.Moves) > 0 {
				sb.WriteString(" [" + strings.Join(m.Moves, ", ") + "]")
			}
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "Choose the order of at least %d members, leads first. Reply like \"team %s\".\n",
			in.Options.LeadCount, digits(legal.DefaultTeamOrder(len(in.Options.Roster))))
		return sb.String()
	}

	if in.State != nil && in.State.Request != nil {
		writeRoster(&sb, in.State.Request.Side.Pokemon)
	}
	fmt.Fprintf(&sb, "Choose for position%d. Legal commands:\n", in.Slot.Slot+1)
	for _, a := range in.Slot.All() {
		sb.WriteString("  " + a.Describe() + "\n")
	}
	if len(in.Slot.Transforms) > 0 {
		ts := make([]string, 0, len(in.Slot.Transforms))
		for _, t := range in.Slot.Transforms {
			ts = append(ts, string(t))
		}
		sb.WriteString("You may append one of [" + strings.Join(ts, ", ") + "] to a move command.\n")
	}
	return sb.String()
}

// writeRoster lists the own team as the request reports it.
func writeRoster(sb *strings.Builder, roster []protocol.RosterEntry) {
	if len(roster) == 0 {
		return
	}
	sb.WriteString("Your team:\n")
	for i, m := range roster {
		fmt.Fprintf(sb, "  %d. %s", i+1, m.Species())
		if m.Active {
			sb.WriteString(" (active)")
		}
		hp, maxHP, status := game.ParseCondition(m.Condition)
		switch {
		case status == "fnt" || m.Fainted():
			sb.WriteString(" fainted")
		case maxHP > 0:
			fmt.Fprintf(sb, " %d%% HP", hp*100/maxHP)
		}
		if status != "" && status != "fnt" {
			sb.WriteString(" " + status)
		}
		if m.Ability != "" {
			sb.WriteString(", ability " + m.Ability)
		}
		if m.Item != "" {
			sb.WriteString(" @ " + m.Item)
		}
		if m.TeraType != "" {
			sb.WriteString(", tera " + m.TeraType)
		}
		if len(m.Moves) > 0 {
			sb.WriteString(" [" + strings.Join(m.Moves, ", ") + "]")
		}
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
}

func digits(order []int) string {
	var sb strings.Builder
	for _, d := range order {
		fmt.Fprintf(&sb, "%d", d)
	}
	return sb.String()
}

var positionRe = regexp.MustCompile(`(?i)^\s*(?:position|pokemon|slot)\s*(\d)\s*:\s*(.*)$`)

// ParseReply extracts the command for the slot of in from a model reply.
// Replies that address several positions ("position1: move 1 2") are
// narrowed to the line for this slot.
func ParseReply(in Input, reply string) (legal.Action, error) {
	want := fmt.Sprintf("%d", in.Slot.Slot+1)
	for _, line := range strings.Split(reply, "\n") {
		if m := positionRe.FindStringSubmatch(line); m != nil && m[1] == want {
			return ParseChoice(in, m[2])
		}
	}
	return ParseChoice(in, reply)
}
