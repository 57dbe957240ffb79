// Package client speaks the Showdown websocket protocol: frames in, room
// messages out.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"showdown-pilot/protocol"
)

const DefaultServerURL = "wss://sim.psim.us/showdown/websocket"

var ErrClosed = errors.New("conexión cerrada")

// Frame is one websocket message: an optional >room header and its lines.
type Frame struct {
	Room  string
	Lines []string
}

// ParseFrame splits a raw message. Messages without a >room header belong
// to the global room "".
func ParseFrame(msg string) Frame {
	msg = strings.TrimRight(msg, "\n")
	var f Frame
	if strings.HasPrefix(msg, ">") {
		header, rest, _ := strings.Cut(msg, "\n")
		f.Room = strings.TrimSpace(header[1:])
		msg = rest
	}
	if msg != "" {
		f.Lines = strings.Split(msg, "\n")
	}
	return f
}

type incoming struct {
	data string
	err  error
}

type ShowdownClient struct {
	conn   *websocket.Conn
	logger *slog.Logger

	writeMu sync.Mutex
	frames  chan incoming
	done    chan struct{}
	once    sync.Once
}

// Dial connects and starts the reader.
func Dial(ctx context.Context, serverURL string, logger *slog.Logger) (*ShowdownClient, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if serverURL == "" {
		serverURL = DefaultServerURL
	}
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("error al parsear la url del server: %w", err)
	}

	logger.Info("conectando", "url", u.String())
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("error al conectar con el websocket: %w", err)
	}
	sc := &ShowdownClient{
		conn:   conn,
		logger: logger,
		frames: make(chan incoming, 64),
		done:   make(chan struct{}),
	}
	go sc.read()
	logger.Info("conectado al servidor de showdown")
	return sc, nil
}

func (sc *ShowdownClient) read() {
	defer close(sc.frames)
	for {
		_, message, err := sc.conn.ReadMessage()
		if err != nil {
			select {
			case <-sc.done:
				return
			default:
			}
			sc.logger.Warn("error de lectura", "err", err)
			select {
			case sc.frames <- incoming{err: err}:
			case <-sc.done:
			}
			return
		}
		select {
		case sc.frames <- incoming{data: string(message)}:
		case <-sc.done:
			return
		}
	}
}

// Next blocks for the next frame. After the connection drops it returns an
// error wrapping ErrClosed.
func (sc *ShowdownClient) Next(ctx context.Context) (Frame, error) {
	select {
	case in, ok := <-sc.frames:
		if !ok {
			return Frame{}, ErrClosed
		}
		if in.err != nil {
			return Frame{}, fmt.Errorf("%w: %v", ErrClosed, in.err)
		}
		sc.logger.Debug("recibido", "msg", in.data)
		return ParseFrame(in.data), nil
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	}
}

// Send writes "room|msg". Use room "" for global commands.
func (sc *ShowdownClient) Send(room, msg string) error {
	sc.writeMu.Lock()
	defer sc.writeMu.Unlock()
	out := room + "|" + msg
	sc.logger.Debug("enviando", "msg", out)
	if err := sc.conn.WriteMessage(websocket.TextMessage, []byte(out)); err != nil {
		return fmt.Errorf("error al enviar mensaje: %w", err)
	}
	return nil
}

func (sc *ShowdownClient) JoinRoom(room string) error {
	return sc.Send("", "/join "+room)
}

func (sc *ShowdownClient) Leave(room string) error {
	return sc.Send(room, "/leave")
}

func (sc *ShowdownClient) Choose(room, command string, rqid int) error {
	return sc.Send(room, protocol.ChooseMessage(command, rqid))
}

// Challenge challenges user to a battle with no team (random formats).
func (sc *ShowdownClient) Challenge(user, format string) error {
	if err := sc.Send("", "/utm null"); err != nil {
		return err
	}
	return sc.Send("", fmt.Sprintf("/challenge %s, %s", user, format))
}

func (sc *ShowdownClient) Accept(user string) error {
	if err := sc.Send("", "/utm null"); err != nil {
		return err
	}
	return sc.Send("", "/accept "+user)
}

func (sc *ShowdownClient) Search(format string) error {
	if err := sc.Send("", "/utm null"); err != nil {
		return err
	}
	return sc.Send("", "/search "+format)
}

// KeepAlive pings the server until ctx ends or a ping fails.
func (sc *ShowdownClient) KeepAlive(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-sc.done:
			return ErrClosed
		case <-ticker.C:
			sc.writeMu.Lock()
			err := sc.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			sc.writeMu.Unlock()
			if err != nil {
				return fmt.Errorf("error en ping: %w", err)
			}
		}
	}
}

func (sc *ShowdownClient) Close() error {
	var err error
	sc.once.Do(func() {
		close(sc.done)
		sc.writeMu.Lock()
		_ = sc.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		sc.writeMu.Unlock()
		err = sc.conn.Close()
	})
	return err
}
