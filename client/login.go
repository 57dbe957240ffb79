package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"showdown-pilot/data"
	"showdown-pilot/protocol"
)

// Login answers the server's challstr. With a password the login server
// issues an assertion for the registered name; without one it asks for an
// unregistered assertion. An empty loginURL skips the login server, which
// only local servers accept.
func (sc *ShowdownClient) Login(ctx context.Context, loginURL, name, password string) error {
	challstr, err := sc.awaitChallstr(ctx)
	if err != nil {
		return err
	}

	assertion := ""
	if loginURL != "" {
		assertion, err = fetchAssertion(ctx, loginURL, name, password, challstr)
		if err != nil {
			return err
		}
	}
	if err := sc.Send("", fmt.Sprintf("/trn %s,0,%s", name, assertion)); err != nil {
		return err
	}
	return sc.awaitNamed(ctx, name)
}

func (sc *ShowdownClient) awaitChallstr(ctx context.Context) (string, error) {
	for {
		f, err := sc.Next(ctx)
		if err != nil {
			return "", fmt.Errorf("esperando challstr: %w", err)
		}
		for _, raw := range f.Lines {
			if line, ok := protocol.ParseLine(raw); ok && line.Tag == "challstr" {
				return line.Rest(0), nil
			}
		}
	}
}

func (sc *ShowdownClient) awaitNamed(ctx context.Context, name string) error {
	want := data.ToID(name)
	for {
		f, err := sc.Next(ctx)
		if err != nil {
			return fmt.Errorf("esperando updateuser: %w", err)
		}
		for _, raw := range f.Lines {
			line, ok := protocol.ParseLine(raw)
			if !ok {
				continue
			}
			switch line.Tag {
			case "updateuser":
				user, _, _ := strings.Cut(strings.TrimSpace(line.Arg(0)), "@")
				if line.Arg(1) == "1" && data.ToID(user) == want {
					sc.logger.Info("sesión iniciada", "user", user)
					return nil
				}
			case "nametaken":
				return fmt.Errorf("nombre rechazado %q: %s", line.Arg(0), line.Rest(1))
			}
		}
	}
}

type loginReply struct {
	ActionSuccess bool   `json:"actionsuccess"`
	Assertion     string `json:"assertion"`
}

func fetchAssertion(ctx context.Context, loginURL, name, password, challstr string) (string, error) {
	var (
		req *http.Request
		err error
	)
	if password != "" {
		form := url.Values{"act": {"login"}, "name": {name}, "pass": {password}, "challstr": {challstr}}
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, loginURL, strings.NewReader(form.Encode()))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	} else {
		q := url.Values{"act": {"getassertion"}, "userid": {data.ToID(name)}, "challstr": {challstr}}
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, loginURL+"?"+q.Encode(), nil)
	}
	if err != nil {
		return "", fmt.Errorf("error al crear la petición de login: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("error al contactar el servidor de login: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return "", fmt.Errorf("error al leer la respuesta de login: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("servidor de login respondió %d", resp.StatusCode)
	}

	text := strings.TrimSpace(string(body))
	if password != "" {
		// The action endpoint prefixes JSON with "]".
		var reply loginReply
		if err := json.Unmarshal([]byte(strings.TrimPrefix(text, "]")), &reply); err != nil {
			return "", fmt.Errorf("respuesta de login inválida: %w", err)
		}
		text = reply.Assertion
	}
	if text == "" || strings.HasPrefix(text, ";;") {
		return "", fmt.Errorf("login rechazado para %s: %s", name, strings.TrimPrefix(text, ";;"))
	}
	return text, nil
}
