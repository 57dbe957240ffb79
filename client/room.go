package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"showdown-pilot/protocol"
)

// IsBattleRoom reports whether room is a battle room id.
func IsBattleRoom(room string) bool {
	return strings.HasPrefix(room, "battle-")
}

type challenges struct {
	From map[string]string `json:"challengesFrom"`
}

// AwaitBattle reads until a battle room is initialised and returns its
// first frame. With accept set, incoming challenges in format (any format
// when empty) are accepted on the way.
func (sc *ShowdownClient) AwaitBattle(ctx context.Context, accept bool, format string) (Frame, error) {
	for {
		f, err := sc.Next(ctx)
		if err != nil {
			return Frame{}, fmt.Errorf("esperando batalla: %w", err)
		}
		if IsBattleRoom(f.Room) {
			for _, raw := range f.Lines {
				if raw == "|init|battle" {
					sc.logger.Info("batalla iniciada", "room", f.Room)
					return f, nil
				}
			}
			continue
		}
		for _, raw := range f.Lines {
			line, ok := protocol.ParseLine(raw)
			if !ok {
				continue
			}
			switch line.Tag {
			case "updatechallenges":
				if accept {
					if err := sc.acceptChallenges(line.Rest(0), format); err != nil {
						return Frame{}, err
					}
				}
			case "popup":
				sc.logger.Warn("mensaje del servidor", "msg", line.Rest(0))
			}
		}
	}
}

func (sc *ShowdownClient) acceptChallenges(payload, format string) error {
	var c challenges
	if err := json.Unmarshal([]byte(payload), &c); err != nil {
		sc.logger.Warn("updatechallenges inválido", "err", err)
		return nil
	}
	for user, f := range c.From {
		if format != "" && f != format {
			sc.logger.Info("desafío ignorado", "user", user, "format", f)
			continue
		}
		if err := sc.Accept(user); err != nil {
			return err
		}
	}
	return nil
}

// RoomLines feeds one battle room to the orchestrator. Frames of other rooms
// are skipped. The stream ends with io.EOF when the room is closed.
type RoomLines struct {
	client  *ShowdownClient
	room    string
	pending [][]string
}

// NewRoomLines starts with the frame AwaitBattle returned so that no line
// of the room is lost.
func NewRoomLines(sc *ShowdownClient, first Frame) *RoomLines {
	r := &RoomLines{client: sc, room: first.Room}
	if len(first.Lines) > 0 {
		r.pending = append(r.pending, first.Lines)
	}
	return r
}

func (r *RoomLines) Room() string {
	return r.room
}

func (r *RoomLines) Next(ctx context.Context) ([]string, error) {
	if len(r.pending) > 0 {
		b := r.pending[0]
		r.pending = r.pending[1:]
		return b, nil
	}
	for {
		f, err := r.client.Next(ctx)
		if err != nil {
			return nil, err
		}
		if f.Room != r.room {
			continue
		}
		for _, line := range f.Lines {
			if line == "|deinit" || strings.HasPrefix(line, "|noinit|") {
				return nil, io.EOF
			}
		}
		if len(f.Lines) > 0 {
			return f.Lines, nil
		}
	}
}

// RoomSubmitter sends choices to one battle room.
type RoomSubmitter struct {
	Client *ShowdownClient
	Room   string
}

func (s RoomSubmitter) Submit(_ context.Context, command string, rqid int) error {
	return s.Client.Choose(s.Room, command, rqid)
}
