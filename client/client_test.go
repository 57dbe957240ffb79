package client

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeServer struct {
	*httptest.Server
	conns chan *websocket.Conn
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	up := websocket.Upgrader{}
	fs := &fakeServer{conns: make(chan *websocket.Conn, 1)}
	fs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		fs.conns <- conn
	}))
	t.Cleanup(fs.Close)
	return fs
}

func connect(t *testing.T) (*ShowdownClient, *websocket.Conn) {
	t.Helper()
	fs := newFakeServer(t)
	sc, err := Dial(context.Background(), "ws"+strings.TrimPrefix(fs.URL, "http"), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	var conn *websocket.Conn
	select {
	case conn = <-fs.conns:
	case <-time.After(2 * time.Second):
		t.Fatal("server never saw the connection")
	}
	t.Cleanup(func() {
		_ = sc.Close()
		_ = conn.Close()
	})
	return sc, conn
}

func serverSend(t *testing.T, conn *websocket.Conn, msg string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(msg)))
}

func serverRecv(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	return string(msg)
}

func testCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestParseFrame(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Frame
	}{
		{"global", "|challstr|4|abc", Frame{Lines: []string{"|challstr|4|abc"}}},
		{"room", ">battle-gen9ou-1\n|\n|turn|2\n", Frame{Room: "battle-gen9ou-1", Lines: []string{"|", "|turn|2"}}},
		{"header only", ">lobby", Frame{Room: "lobby"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseFrame(tt.in))
		})
	}
}

func TestLoginWithoutLoginServer(t *testing.T) {
	sc, conn := connect(t)
	ctx := testCtx(t)
	errc := make(chan error, 1)
	go func() { errc <- sc.Login(ctx, "", "Pilot Bot", "") }()

	serverSend(t, conn, "|challstr|4|abcdef")
	assert.Equal(t, "|/trn Pilot Bot,0,", serverRecv(t, conn))
	serverSend(t, conn, "|updateuser| Guest 1|0|1|{}")
	serverSend(t, conn, "|updateuser| Pilot Bot@!|1|1|{}")
	require.NoError(t, <-errc)
}

func TestLoginWithPassword(t *testing.T) {
	login := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "login", r.PostForm.Get("act"))
		assert.Equal(t, "pilotbot", r.PostForm.Get("name"))
		assert.Equal(t, "hunter2", r.PostForm.Get("pass"))
		assert.Equal(t, "4|abcdef", r.PostForm.Get("challstr"))
		_, _ = io.WriteString(w, `]{"actionsuccess":true,"assertion":"signed-assertion"}`)
	}))
	defer login.Close()

	sc, conn := connect(t)
	ctx := testCtx(t)
	errc := make(chan error, 1)
	go func() { errc <- sc.Login(ctx, login.URL, "pilotbot", "hunter2") }()

	serverSend(t, conn, "|challstr|4|abcdef")
	assert.Equal(t, "|/trn pilotbot,0,signed-assertion", serverRecv(t, conn))
	serverSend(t, conn, "|updateuser| pilotbot|1|1|{}")
	require.NoError(t, <-errc)
}

func TestLoginRejectedAssertion(t *testing.T) {
	login := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "getassertion", r.URL.Query().Get("act"))
		_, _ = io.WriteString(w, ";;Your username is registered")
	}))
	defer login.Close()

	sc, conn := connect(t)
	ctx := testCtx(t)
	errc := make(chan error, 1)
	go func() { errc <- sc.Login(ctx, login.URL, "pilotbot", "") }()
	serverSend(t, conn, "|challstr|4|abcdef")
	err := <-errc
	require.Error(t, err)
	assert.Contains(t, err.Error(), "username is registered")
}

func TestAwaitBattleAcceptsChallenge(t *testing.T) {
	sc, conn := connect(t)
	type res struct {
		f   Frame
		err error
	}
	ctx := testCtx(t)
	done := make(chan res, 1)
	go func() {
		f, err := sc.AwaitBattle(ctx, true, "gen9randombattle")
		done <- res{f, err}
	}()

	serverSend(t, conn, `|updatechallenges|{"challengesFrom":{"rival":"gen9randombattle","other":"gen9ou"},"challengeTo":null}`)
	assert.Equal(t, "|/utm null", serverRecv(t, conn))
	assert.Equal(t, "|/accept rival", serverRecv(t, conn))
	serverSend(t, conn, ">battle-gen9randombattle-7\n|init|battle\n|title|Pilot vs. rival")

	r := <-done
	require.NoError(t, r.err)
	assert.Equal(t, "battle-gen9randombattle-7", r.f.Room)
	assert.Equal(t, []string{"|init|battle", "|title|Pilot vs. rival"}, r.f.Lines)
}

func TestRoomLines(t *testing.T) {
	sc, conn := connect(t)
	ctx := testCtx(t)
	src := NewRoomLines(sc, Frame{Room: "battle-x", Lines: []string{"|init|battle"}})
	assert.Equal(t, "battle-x", src.Room())

	serverSend(t, conn, ">lobby\n|c|someone|hi")
	serverSend(t, conn, ">battle-x\n|turn|1")
	serverSend(t, conn, ">battle-x\n|deinit")

	b, err := src.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"|init|battle"}, b)
	b, err = src.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"|turn|1"}, b)
	_, err = src.Next(ctx)
	assert.ErrorIs(t, err, io.EOF)
}

func TestCommands(t *testing.T) {
	sc, conn := connect(t)

	require.NoError(t, RoomSubmitter{Client: sc, Room: "battle-x"}.Submit(context.Background(), "move 1 2, switch 3", 7))
	assert.Equal(t, "battle-x|/choose move 1 2, switch 3|7", serverRecv(t, conn))

	require.NoError(t, sc.Challenge("rival", "gen9randombattle"))
	assert.Equal(t, "|/utm null", serverRecv(t, conn))
	assert.Equal(t, "|/challenge rival, gen9randombattle", serverRecv(t, conn))

	require.NoError(t, sc.Search("gen9randombattle"))
	assert.Equal(t, "|/utm null", serverRecv(t, conn))
	assert.Equal(t, "|/search gen9randombattle", serverRecv(t, conn))

	require.NoError(t, sc.Leave("battle-x"))
	assert.Equal(t, "battle-x|/leave", serverRecv(t, conn))

	require.NoError(t, sc.JoinRoom("battle-y"))
	assert.Equal(t, "|/join battle-y", serverRecv(t, conn))
}

func TestNextAfterServerClose(t *testing.T) {
	sc, conn := connect(t)
	require.NoError(t, conn.Close())
	_, err := sc.Next(testCtx(t))
	assert.True(t, errors.Is(err, ErrClosed), "got %v", err)
}

func TestNextHonorsContext(t *testing.T) {
	sc, _ := connect(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := sc.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
