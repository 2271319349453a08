package ddp

import (
	"github.com/rs/zerolog/log"
)

// Subscription is the server side of one client subscription. All methods
// are safe for concurrent use and become no-ops once the subscription stops.
type Subscription interface {
	// ID is the client supplied subscription id
	ID() string
	// UserID is the authenticated user, or "" for anonymous sessions
	UserID() string

	Added(collection, id string, fields map[string]any)
	// Changed sets fields on a document; a nil value clears the field
	Changed(collection, id string, fields map[string]any)
	Removed(collection, id string)

	// Ready tells the client the initial result set is complete. Only the
	// first call has an effect.
	Ready()
	// OnStop registers fn to run once when the subscription stops. If it
	// has already stopped fn runs immediately.
	OnStop(fn func())
	// Stop ends the subscription from the server side
	Stop()
	// Error ends the subscription, reporting err to the client
	Error(err error)
}

type subscription struct {
	id      string
	name    string
	session *Session

	// guarded by session.mu
	ready   bool
	stopped bool
	onStop  []func()
}

func (s *subscription) ID() string {
	return s.id
}

func (s *subscription) UserID() string {
	return s.session.userID
}

func (s *subscription) Added(collection, id string, fields map[string]any) {
	s.session.mu.Lock()
	defer s.session.mu.Unlock()
	if s.stopped {
		return
	}
	s.session.send(s.session.box.added(s.id, docKey{collection, id}, fields))
}

func (s *subscription) Changed(collection, id string, fields map[string]any) {
	s.session.mu.Lock()
	defer s.session.mu.Unlock()
	if s.stopped {
		return
	}
	msg, ok := s.session.box.changed(s.id, docKey{collection, id}, fields)
	if !ok {
		log.Warn().
			Str("sub", s.id).
			Str("collection", collection).
			Str("id", id).
			Msg("Changed a document the subscription never added")
		return
	}
	s.session.send(msg)
}

func (s *subscription) Removed(collection, id string) {
	s.session.mu.Lock()
	defer s.session.mu.Unlock()
	if s.stopped {
		return
	}
	s.session.send(s.session.box.removed(s.id, docKey{collection, id}))
}

func (s *subscription) Ready() {
	s.session.mu.Lock()
	defer s.session.mu.Unlock()
	if s.stopped || s.ready {
		return
	}
	s.ready = true
	s.session.send(&Message{Msg: "ready", Subs: []string{s.id}})
}

func (s *subscription) OnStop(fn func()) {
	s.session.mu.Lock()
	if s.stopped {
		s.session.mu.Unlock()
		runStopHook(s.id, fn)
		return
	}
	s.onStop = append(s.onStop, fn)
	s.session.mu.Unlock()
}

func (s *subscription) Stop() {
	s.session.stopSubscription(s, nil, true)
}

func (s *subscription) Error(err error) {
	s.session.stopSubscription(s, clientError(err), true)
}

func runStopHook(subID string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("sub", subID).Interface("panic", r).Msg("Stop hook panicked")
		}
	}()
	fn()
}
