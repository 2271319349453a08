package publisher

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bhunjadi/pagination/counts"
	"github.com/bhunjadi/pagination/db"
	"github.com/bhunjadi/pagination/ddp"
	"github.com/bhunjadi/pagination/query"
	"github.com/bhunjadi/pagination/telemetry"
	"github.com/rs/zerolog/log"
)

// handle is the ddp handler: params are (query, options), both optional
// objects.
func (p *publication) handle(sub ddp.Subscription, params ddp.Params) error {
	callerQuery, err := params.Object(0)
	if err != nil {
		return err
	}
	opts, err := params.Object(1)
	if err != nil {
		return err
	}
	return p.activate(sub, query.Selector(callerQuery), Options(opts))
}

// activate serves one subscription. Every error is returned before Ready,
// so a subscription either becomes ready with a working view or fails.
func (p *publication) activate(sub ddp.Subscription, callerQuery query.Selector, opts Options) (err error) {
	start := time.Now()
	defer func() {
		if err != nil {
			telemetry.ActivationErrorsTotal.With(p.name, errorCode(err)).Inc()
		}
	}()

	sel, opts, err := p.compose(sub, callerQuery, opts)
	if err != nil {
		return err
	}
	mode := opts.Mode()

	findOpts, err := opts.FindOptions()
	if err != nil {
		return fmt.Errorf("invalid options: %w", err)
	}

	countCursor, err := p.source.Find(sel, query.FindOptions{})
	if err != nil {
		return err
	}
	err = counts.Publish(sub, CountKey(sub.ID()), countCursor, counts.Options{
		NoReady:     true,
		NonReactive: mode == ModeSnapshot,
	})
	if err != nil {
		return err
	}

	if opts.Debug() {
		log.Info().
			Str("publication", p.name).
			Str("mode", mode.String()).
			Interface("query", sel).
			Interface("options", opts).
			Msg("Pagination publish")
	}

	cursor, err := p.source.Find(sel, findOpts)
	if err != nil {
		return err
	}

	switch mode {
	case ModeReactive:
		err = p.observe(sub, cursor)
	default:
		err = p.snapshot(sub, cursor)
	}
	if err != nil {
		return err
	}

	sub.Ready()

	telemetry.ActivationsTotal.With(p.name, mode.String()).Inc()
	telemetry.ActivationDurationSeconds.With(mode.String()).Observe(time.Since(start).Seconds())
	return nil
}

// snapshot replays the current matches, each as an add followed by the
// marker change
func (p *publication) snapshot(sub ddp.Subscription, cursor Cursor) error {
	results, err := cursor.FetchResults()
	if err != nil {
		return err
	}

	marker := MarkerField(sub.ID())
	for _, r := range results {
		sub.Added(p.clientCollection, r.ID, r.Doc)
		sub.Changed(p.clientCollection, r.ID, map[string]any{marker: 1})
	}
	return nil
}

// observe relays cursor changes until the subscription stops
func (p *publication) observe(sub ddp.Subscription, cursor Cursor) error {
	marker := MarkerField(sub.ID())

	handle, err := cursor.ObserveChanges(db.ObserveCallbacks{
		Added: func(id string, fields query.Document) {
			sub.Added(p.clientCollection, id, fields)
			sub.Changed(p.clientCollection, id, map[string]any{marker: 1})
		},
		Changed: func(id string, fields query.Document) {
			sub.Changed(p.clientCollection, id, fields)
		},
		Removed: func(id string) {
			sub.Removed(p.clientCollection, id)
		},
	})
	if err != nil {
		return err
	}

	var once sync.Once
	sub.OnStop(func() {
		once.Do(handle.Stop)
	})
	return nil
}

func errorCode(err error) string {
	var de *ddp.Error
	if errors.As(err, &de) {
		return fmt.Sprint(de.Code)
	}
	return "internal"
}
