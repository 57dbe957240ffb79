package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"showdown-pilot/game"
	"showdown-pilot/legal"
	"showdown-pilot/protocol"
	"showdown-pilot/provider"
)

type result struct {
	gen      uint64
	rqid     int
	command  string
	fallback bool
}

// decision is the immutable input of one resolution pass.
type decision struct {
	gen      uint64
	req      *protocol.Request
	state    *game.BattleState
	history  string
	turn     int
	opposing string
}

// startDecision snapshots the state and resolves the current request off
// the loop goroutine.
func (o *Orchestrator) startDecision(ctx context.Context) {
	if o.request == nil || o.request.Kind() == protocol.KindWait {
		return
	}
	o.setPhase(Enumerating)
	st := o.deps.Interpreter.State()
	d := decision{
		gen:     o.gen,
		req:     o.request,
		state:   st.Clone(),
		history: o.deps.Ledger.Text(),
		turn:    st.Turn,
	}
	dctx, cancel := context.WithCancel(ctx)
	o.cancelDecision = cancel
	o.started = time.Now()
	o.inflight++
	o.setPhase(AwaitingDecision)

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer cancel()
		r := o.resolve(dctx, d)
		select {
		case o.results <- r:
		case <-ctx.Done():
		}
	}()
}

func (o *Orchestrator) resolve(ctx context.Context, d decision) result {
	kind := d.req.Kind()
	ctx, span := o.tracer.Start(ctx, "decide", trace.WithAttributes(
		attribute.String("request.kind", kind.String()),
		attribute.Int("turn", d.turn),
		attribute.Int("rqid", d.req.RQID),
	))
	defer span.End()

	if o.deps.Hints != nil && kind != protocol.KindTeamPreview {
		if choice, ok := o.deps.Hints.Await(ctx, o.cfg.HintTimeout); ok {
			d.opposing = choice
		}
	}

	var (
		choices  []legal.Action
		fallback bool
	)
	switch kind {
	case protocol.KindTeamPreview:
		choices, fallback = o.resolveTeam(ctx, d)
	case protocol.KindForceSwitch:
		choices, fallback = o.resolveForced(ctx, d)
	case protocol.KindActive:
		choices, fallback = o.resolveActive(ctx, d)
	}
	span.SetAttributes(attribute.Bool("fallback", fallback))
	return result{
		gen:      d.gen,
		rqid:     d.req.RQID,
		command:  commandFor(kind, choices),
		fallback: fallback,
	}
}

func (o *Orchestrator) resolveTeam(ctx context.Context, d decision) ([]legal.Action, bool) {
	opts := legal.Enumerate(d.req, d.state)
	in := provider.Input{Kind: opts.Kind, Options: opts, State: d.state, History: d.history, Turn: d.turn}
	fb := legal.TeamAction(legal.DefaultTeamOrder(len(opts.Roster)))
	a, fellBack := o.ask(ctx, in, func(a legal.Action) bool {
		return a.Kind == legal.KindDefault || (a.Kind == legal.KindTeam && opts.AllowsTeam(a.Order))
	}, fb)
	return []legal.Action{a}, fellBack
}

// resolveForced fills the forced slots one after another so that no
// replacement is picked twice.
func (o *Orchestrator) resolveForced(ctx context.Context, d decision) ([]legal.Action, bool) {
	sel := legal.NewSelection()
	mandatory := 0
	for _, f := range d.req.ForceSwitch {
		if f {
			mandatory++
		}
	}
	choices := make([]legal.Action, len(d.req.ForceSwitch))
	anyFallback := false
	for slot := range d.req.ForceSwitch {
		sa := legal.ForceSwitchSlot(d.req, slot, sel)
		if sa.MustSwitch {
			mandatory--
		}
		var a legal.Action
		switch {
		case sa.Skip:
			a = legal.PassAction(slot)
		case len(sa.Switches) == 1 || len(sa.Switches) <= mandatory+1:
			// No real choice: one candidate, or exactly enough for the
			// slots still to fill.
			a = sa.Switches[0]
		default:
			var fb bool
			a, fb = o.askSlot(ctx, d, sa)
			anyFallback = anyFallback || fb
		}
		sel.Claim(a)
		choices[slot] = a
	}
	return choices, anyFallback
}

// resolveActive runs slots that may switch in sequence, sharing the
// exclusion set, while move-only slots are decided in parallel.
func (o *Orchestrator) resolveActive(ctx context.Context, d decision) ([]legal.Action, bool) {
	n := len(d.req.Active)
	choices := make([]legal.Action, n)
	fallbacks := make([]bool, n)

	var chain, parallel []int
	for slot := 0; slot < n; slot++ {
		sa := legal.ActiveSlot(d.req, d.state, slot, nil)
		if len(sa.Switches) > 0 {
			chain = append(chain, slot)
		} else {
			parallel = append(parallel, slot)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sel := legal.NewSelection()
		for _, slot := range chain {
			sa := legal.ActiveSlot(d.req, d.state, slot, sel)
			choices[slot], fallbacks[slot] = o.decideSlot(gctx, d, sa)
			sel.Claim(choices[slot])
		}
		return nil
	})
	for _, slot := range parallel {
		g.Go(func() error {
			sa := legal.ActiveSlot(d.req, d.state, slot, nil)
			choices[slot], fallbacks[slot] = o.decideSlot(gctx, d, sa)
			return nil
		})
	}
	_ = g.Wait()

	stripDuplicateTransforms(choices)
	anyFallback := false
	for _, fb := range fallbacks {
		anyFallback = anyFallback || fb
	}
	return choices, anyFallback
}

func (o *Orchestrator) decideSlot(ctx context.Context, d decision, sa legal.SlotActions) (legal.Action, bool) {
	switch {
	case sa.Skip || sa.Choices() == 0:
		return legal.PassAction(sa.Slot), false
	case sa.Choices() == 1 && len(sa.Transforms) == 0:
		return sa.All()[0], false
	}
	return o.askSlot(ctx, d, sa)
}

func (o *Orchestrator) askSlot(ctx context.Context, d decision, sa legal.SlotActions) (legal.Action, bool) {
	in := provider.Input{
		Kind:           d.req.Kind(),
		Slot:           sa,
		Options:        legal.Options{Kind: d.req.Kind(), RQID: d.req.RQID},
		State:          d.state,
		History:        d.history,
		OpposingChoice: d.opposing,
		Turn:           d.turn,
	}
	a, fb := o.ask(ctx, in, sa.Allows, sa.Fallback())
	if a.Kind == legal.KindDefault {
		// A slot cannot say "default" on its own.
		return sa.Fallback(), true
	}
	a.Slot = sa.Slot
	return a, fb
}

var errIllegal = errors.New("provider returned an illegal action")

// ask calls the provider with a per-call timeout, retrying transient
// failures with backoff. Anything else falls back to fb.
func (o *Orchestrator) ask(ctx context.Context, in provider.Input, allowed func(legal.Action) bool, fb legal.Action) (legal.Action, bool) {
	attempt := 0
	op := func() (legal.Action, error) {
		attempt++
		cctx := ctx
		if o.cfg.DecisionTimeout > 0 {
			var cancel context.CancelFunc
			cctx, cancel = context.WithTimeout(ctx, o.cfg.DecisionTimeout)
			defer cancel()
		}
		a, err := o.deps.Provider.Decide(cctx, in)
		switch {
		case err == nil && !allowed(a):
			return legal.Action{}, backoff.Permanent(fmt.Errorf("%w: %s", errIllegal, a.Command()))
		case err == nil:
			return a, nil
		case ctx.Err() != nil:
			return legal.Action{}, backoff.Permanent(ctx.Err())
		case provider.IsTransient(err):
			return legal.Action{}, err
		}
		return legal.Action{}, backoff.Permanent(err)
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = o.cfg.RetryInterval
	eb.MaxInterval = 5 * o.cfg.RetryInterval
	eb.Reset()
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(o.cfg.MaxProviderRetries)), ctx)

	a, err := backoff.RetryWithData(op, policy)
	if err != nil {
		if ctx.Err() == nil {
			o.logger.Warn("provider failed, using fallback",
				"provider", o.cfg.ProviderName, "slot", in.Slot.Slot, "attempts", attempt,
				"fallback", fb.Command(), "err", err)
		}
		trace.SpanFromContext(ctx).AddEvent("fallback", trace.WithAttributes(
			attribute.Int("slot", in.Slot.Slot),
			attribute.String("err", err.Error()),
		))
		return fb, true
	}
	return a, false
}

// stripDuplicateTransforms keeps each once-per-battle transform on the
// first slot that claimed it.
func stripDuplicateTransforms(choices []legal.Action) {
	claimed := make(map[protocol.Transform]bool)
	for i, a := range choices {
		if a.Kind != legal.KindMove || a.Transform == protocol.NoTransform {
			continue
		}
		if claimed[a.Transform] {
			choices[i].Transform = protocol.NoTransform
			continue
		}
		claimed[a.Transform] = true
	}
}
