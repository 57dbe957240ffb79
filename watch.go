package main

import (
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"showdown-pilot/game"
	"showdown-pilot/orchestrator"
	"showdown-pilot/parser"
)

var indexTemplate = template.Must(template.New("index").Parse(`<!doctype html>
<html>
<head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body>
<h1>{{.Title}}</h1>
<div id="summary"></div>
<div id="log"></div>
<script>
const src = new EventSource("/events");
src.onmessage = (e) => {
  if (e.data.startsWith("<pre")) {
    document.getElementById("summary").innerHTML = e.data;
  } else {
    document.getElementById("log").insertAdjacentHTML("beforeend", e.data);
  }
};
</script>
</body>
</html>
`))

// watchHub fans the battle log out to Server-Sent Events subscribers. Slow
// subscribers miss messages rather than stall the battle.
type watchHub struct {
	logger *slog.Logger

	mu   sync.Mutex
	subs map[chan string]struct{}
}

func newWatchHub(logger *slog.Logger) *watchHub {
	return &watchHub{logger: logger, subs: make(map[chan string]struct{})}
}

func (h *watchHub) subscribe() chan string {
	ch := make(chan string, 64)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *watchHub) unsubscribe(ch chan string) {
	h.mu.Lock()
	delete(h.subs, ch)
	h.mu.Unlock()
}

func (h *watchHub) subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *watchHub) broadcast(msg string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- msg:
		default:
		}
	}
}

// Publish shows the choice of the interactive side.
func (h *watchHub) Publish(choice string) {
	h.broadcast(fmt.Sprintf("<p class='choice'>%s</p>", template.HTMLEscapeString(choice)))
}

// onEvent runs on the orchestrator loop, so reading state is safe.
func (h *watchHub) onEvent(ev parser.Event, state *game.BattleState) {
	h.broadcast(fmt.Sprintf("<p class='logline'>%s</p>", template.HTMLEscapeString(ev.Text)))
	if ev.Turn > 0 || ev.Ended {
		h.broadcast(fmt.Sprintf("<pre class='summary'>%s</pre>", template.HTMLEscapeString(parser.Summarize(state))))
	}
}

func (h *watchHub) handler(hints *orchestrator.SideChannel) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if err := indexTemplate.Execute(w, struct{ Title string }{"showdown-pilot"}); err != nil {
			http.Error(w, "Error al renderizar la plantilla", http.StatusInternalServerError)
		}
	})
	mux.HandleFunc("/events", h.handleEvents)
	mux.HandleFunc("/hint", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		body, err := io.ReadAll(io.LimitReader(r.Body, 1024))
		choice := strings.TrimSpace(string(body))
		if err != nil || choice == "" {
			http.Error(w, "empty choice", http.StatusBadRequest)
			return
		}
		hints.Publish(choice)
		h.logger.Debug("hint received", "choice", choice)
		w.WriteHeader(http.StatusAccepted)
	})
	return mux
}

func (h *watchHub) handleEvents(w http.ResponseWriter, r *http.Request) {
	h.logger.Info("watch client connected", "remote", r.RemoteAddr)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Headers", "Cache-Control")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming no soportado", http.StatusInternalServerError)
		return
	}

	ch := h.subscribe()
	defer h.unsubscribe(ch)

	fmt.Fprintf(w, ": connected\n\n")
	flusher.Flush()

	ping := time.NewTicker(20 * time.Second)
	defer ping.Stop()
	for {
		select {
		case <-r.Context().Done():
			h.logger.Info("watch client disconnected", "remote", r.RemoteAddr)
			return
		case <-ping.C:
			fmt.Fprintf(w, ": ping\n\n")
		case msg := <-ch:
			writeEvent(w, msg)
		}
		flusher.Flush()
	}
}

// writeEvent frames msg as one SSE event; every line needs its own data
// prefix.
func writeEvent(w io.Writer, msg string) {
	for _, line := range strings.Split(msg, "\n") {
		fmt.Fprintf(w, "data: %s\n", line)
	}
	fmt.Fprint(w, "\n")
}

func newWatchServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
}
