// Package orchestrator sequences requests, decisions and submissions for
// one side of one battle.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"showdown-pilot/history"
	"showdown-pilot/legal"
	"showdown-pilot/parser"
	"showdown-pilot/protocol"
	"showdown-pilot/provider"
)

// Submitter sends a choice to the engine.
type Submitter interface {
	Submit(ctx context.Context, command string, rqid int) error
}

// SubmitFunc adapts a function to Submitter.
type SubmitFunc func(ctx context.Context, command string, rqid int) error

func (f SubmitFunc) Submit(ctx context.Context, command string, rqid int) error {
	return f(ctx, command, rqid)
}

// Record describes one submission.
type Record struct {
	Turn     int
	RQID     int
	Kind     string
	Command  string
	Provider string
	Fallback bool
	Retry    int
	Latency  time.Duration
}

type Outcome struct {
	Winner string
	Tie    bool
	Turns  int
}

// Recorder persists submissions and the result of the battle.
type Recorder interface {
	RecordDecision(ctx context.Context, r Record) error
	RecordOutcome(ctx context.Context, o Outcome) error
}

type Config struct {
	// DecisionTimeout bounds one provider call. Zero means no bound.
	DecisionTimeout time.Duration
	// MaxProviderRetries bounds retries of transient provider failures.
	MaxProviderRetries int
	// MaxInvalidChoices is how many rejected submissions are re-decided
	// before falling back to "default".
	MaxInvalidChoices int
	HintTimeout       time.Duration
	RetryInterval     time.Duration
	ProviderName      string
}

func DefaultConfig() Config {
	return Config{
		DecisionTimeout:    30 * time.Second,
		MaxProviderRetries: 2,
		MaxInvalidChoices:  3,
		HintTimeout:        2 * time.Second,
		RetryInterval:      200 * time.Millisecond,
	}
}

type Deps struct {
	Interpreter *parser.Interpreter
	Ledger      *history.Ledger
	Provider    provider.DecisionProvider
	Submitter   Submitter
	Recorder    Recorder
	Hints       *SideChannel
	Logger      *slog.Logger
	Tracer      trace.Tracer
	// OnEvent observes every applied line that produced output.
	OnEvent func(parser.Event)
}

// Orchestrator owns the cooperative loop. All state mutation happens on the
// Run goroutine; decisions run on snapshots and report back by channel.
type Orchestrator struct {
	deps   Deps
	cfg    Config
	logger *slog.Logger
	tracer trace.Tracer

	phase atomic.Int32

	request  *protocol.Request
	gen      uint64
	ready    bool
	reissue  bool
	invalid  int
	awaiting bool
	started  time.Time

	cancelDecision context.CancelFunc
	inflight       int
	results        chan result
	wg             sync.WaitGroup
}

func New(deps Deps, cfg Config) (*Orchestrator, error) {
	if deps.Interpreter == nil {
		return nil, errors.New("orchestrator: interpreter is required")
	}
	if deps.Provider == nil {
		return nil, errors.New("orchestrator: provider is required")
	}
	if deps.Submitter == nil {
		return nil, errors.New("orchestrator: submitter is required")
	}
	if deps.Ledger == nil {
		deps.Ledger = history.NewLedger(history.DefaultWindow)
	}
	def := DefaultConfig()
	if cfg.MaxInvalidChoices <= 0 {
		cfg.MaxInvalidChoices = def.MaxInvalidChoices
	}
	if cfg.MaxProviderRetries < 0 {
		cfg.MaxProviderRetries = 0
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = def.RetryInterval
	}
	if cfg.ProviderName == "" {
		cfg.ProviderName = provider.Name(deps.Provider)
	}
	o := &Orchestrator{
		deps:    deps,
		cfg:     cfg,
		logger:  deps.Logger,
		tracer:  deps.Tracer,
		results: make(chan result),
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.tracer == nil {
		o.tracer = otel.Tracer("showdown-pilot/orchestrator")
	}
	return o, nil
}

func (o *Orchestrator) Phase() Phase {
	return Phase(o.phase.Load())
}

func (o *Orchestrator) setPhase(to Phase) {
	from := o.Phase()
	if from == to && from != RequestPending && from != Submitting {
		return
	}
	if !CanTransition(from, to) {
		o.logger.Warn("unexpected phase transition", "from", from, "to", to)
	}
	o.phase.Store(int32(to))
	o.logger.Debug("phase", "from", from, "to", to)
}

type batch struct {
	lines []string
	err   error
}

// Run drives the battle until it ends, the source is exhausted, or ctx is
// cancelled. Only cancellation, a source failure and a failed submission
// are returned as errors.
func (o *Orchestrator) Run(ctx context.Context, src LineSource) error {
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		o.wg.Wait()
	}()

	batches := make(chan batch)
	go func() {
		for {
			lines, err := src.Next(ctx)
			select {
			case batches <- batch{lines: lines, err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	eof := false
	for {
		if eof && o.inflight == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case b := <-batches:
			for _, line := range b.lines {
				if err := o.apply(ctx, line); err != nil {
					return err
				}
				if o.Phase() == Ended {
					return o.finish(ctx)
				}
			}
			if b.err != nil {
				if !errors.Is(b.err, io.EOF) {
					return fmt.Errorf("reading battle stream: %w", b.err)
				}
				eof = true
				batches = nil
			}
			if o.ready {
				o.ready = false
				o.startDecision(ctx)
			}
		case r := <-o.results:
			o.inflight--
			if err := o.handleResult(ctx, r); err != nil {
				return err
			}
		}
	}
}

func (o *Orchestrator) apply(ctx context.Context, raw string) error {
	ev := o.deps.Interpreter.Apply(raw)
	st := o.deps.Interpreter.State()

	if ev.History != "" {
		o.deps.Ledger.Append(st.Turn, ev.History)
	}
	if ev.Lead != nil {
		o.deps.Ledger.RecordLead(ev.Lead.Side, ev.Lead.Name, st.SlotsPerSide)
	}
	if ev.Text != "" {
		o.logger.Info(ev.Text, "turn", st.Turn, "tag", ev.Tag)
		if o.deps.OnEvent != nil {
			o.deps.OnEvent(ev)
		}
	}

	switch {
	case ev.Ended:
		o.supersede()
		o.setPhase(Ended)
	case ev.RequestErr != nil:
		return o.malformedRequest(ctx, ev.RequestErr)
	case ev.Request != nil:
		o.newRequest(ev.Request)
	case ev.Turn > 0:
		o.reissue = false
		if o.Phase() == RequestPending && o.request.Kind() == protocol.KindActive {
			o.ready = true
		}
	case ev.ChoiceError != nil:
		return o.choiceError(ctx, *ev.ChoiceError)
	}
	return nil
}

// supersede drops the outstanding decision, if any.
func (o *Orchestrator) supersede() {
	o.gen++
	if o.cancelDecision != nil {
		o.cancelDecision()
		o.cancelDecision = nil
	}
}

func (o *Orchestrator) newRequest(req *protocol.Request) {
	o.supersede()
	o.setPhase(RequestPending)
	o.request = req
	o.invalid = 0
	o.awaiting = false

	switch req.Kind() {
	case protocol.KindWait:
		o.setPhase(Idle)
		o.ready = false
	case protocol.KindTeamPreview, protocol.KindForceSwitch:
		o.ready = true
	case protocol.KindActive:
		o.ready = o.reissue
	}
	o.reissue = false
}

func (o *Orchestrator) choiceError(ctx context.Context, ce protocol.ChoiceError) error {
	switch ce.Kind {
	case protocol.ErrorUnavailableChoice:
		// The engine re-issues a request when one is still needed.
		o.logger.Info("choice unavailable, waiting for a new request", "err", ce.Message)
		o.reissue = true
		return nil
	case protocol.ErrorInvalidChoice:
	default:
		o.logger.Warn("engine error", "err", ce.Message)
		return nil
	}
	if !o.awaiting || o.request == nil {
		o.logger.Warn("invalid choice with nothing submitted", "err", ce.Message)
		return nil
	}
	o.awaiting = false
	o.invalid++
	if o.invalid > o.cfg.MaxInvalidChoices {
		o.logger.Warn("invalid choice budget spent, submitting default", "attempts", o.invalid, "err", ce.Message)
		return o.submit(ctx, protocol.Default, o.request.RQID, true)
	}
	o.logger.Warn("invalid choice, deciding again", "attempt", o.invalid, "err", ce.Message)
	o.setPhase(Enumerating)
	o.startDecision(ctx)
	return nil
}

func (o *Orchestrator) malformedRequest(ctx context.Context, err error) error {
	o.logger.Error("malformed request, submitting default", "err", err)
	o.supersede()
	o.setPhase(RequestPending)
	o.request = nil
	return o.submit(ctx, protocol.Default, 0, true)
}

func (o *Orchestrator) handleResult(ctx context.Context, r result) error {
	if r.gen != o.gen || o.Phase() != AwaitingDecision {
		o.logger.Debug("discarding stale decision", "gen", r.gen, "current", o.gen)
		return nil
	}
	o.cancelDecision = nil
	return o.submit(ctx, r.command, r.rqid, r.fallback)
}

func (o *Orchestrator) submit(ctx context.Context, command string, rqid int, fallback bool) error {
	o.setPhase(Submitting)
	st := o.deps.Interpreter.State()
	if err := o.deps.Submitter.Submit(ctx, command, rqid); err != nil {
		return fmt.Errorf("submitting %q: %w", command, err)
	}
	o.awaiting = true
	o.logger.Info("choice submitted", "turn", st.Turn, "choice", command, "rqid", rqid, "fallback", fallback)

	if o.deps.Recorder != nil {
		kind := "unknown"
		if o.request != nil {
			kind = o.request.Kind().String()
		}
		rec := Record{
			Turn:     st.Turn,
			RQID:     rqid,
			Kind:     kind,
			Command:  command,
			Provider: o.cfg.ProviderName,
			Fallback: fallback,
			Retry:    o.invalid,
			Latency:  time.Since(o.started),
		}
		if err := o.deps.Recorder.RecordDecision(ctx, rec); err != nil {
			o.logger.Warn("recording decision", "err", err)
		}
	}
	return nil
}

func (o *Orchestrator) finish(ctx context.Context) error {
	st := o.deps.Interpreter.State()
	o.logger.Info("battle ended", "winner", st.Winner, "tie", st.Tie, "turns", st.Turn)
	if o.deps.Recorder != nil {
		out := Outcome{Winner: st.Winner, Tie: st.Tie, Turns: st.Turn}
		if err := o.deps.Recorder.RecordOutcome(ctx, out); err != nil {
			o.logger.Warn("recording outcome", "err", err)
		}
	}
	return nil
}

// Awaiting reports whether a submission is waiting for the engine's answer.
// It is only meaningful on the Run goroutine or after Run returns.
func (o *Orchestrator) Awaiting() bool {
	return o.awaiting
}

// commandFor joins per-slot choices the way the engine expects.
func commandFor(kind protocol.Kind, choices []legal.Action) string {
	if kind == protocol.KindTeamPreview && len(choices) == 1 {
		return choices[0].Command()
	}
	cmds := make([]string, 0, len(choices))
	for _, a := range choices {
		cmds = append(cmds, a.Command())
	}
	return protocol.JoinChoices(cmds)
}
