package orchestrator

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"showdown-pilot/game"
	"showdown-pilot/legal"
	"showdown-pilot/parser"
	"showdown-pilot/provider"
)

func TestDecisionSpan(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	var submitted []string
	o, err := New(Deps{
		Interpreter: parser.NewInterpreter(game.NewBattleState(1), nil),
		Provider: provider.Func(func(_ context.Context, in provider.Input) (legal.Action, error) {
			return in.Slot.Moves[0], nil
		}),
		Submitter: SubmitFunc(func(_ context.Context, cmd string, _ int) error {
			submitted = append(submitted, cmd)
			return nil
		}),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Tracer: tp.Tracer("test"),
	}, Config{})
	require.NoError(t, err)

	log := activeSingles + "\n|turn|4\n"
	require.NoError(t, o.Run(context.Background(), NewReaderSource(strings.NewReader(log))))
	assert.Equal(t, []string{"move 1"}, submitted)

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "decide", spans[0].Name())
	attrs := map[attribute.Key]attribute.Value{}
	for _, kv := range spans[0].Attributes() {
		attrs[kv.Key] = kv.Value
	}
	assert.Equal(t, "active", attrs["request.kind"].AsString())
	assert.Equal(t, int64(4), attrs["turn"].AsInt64())
	assert.Equal(t, int64(3), attrs["rqid"].AsInt64())
	assert.False(t, attrs["fallback"].AsBool())
}
