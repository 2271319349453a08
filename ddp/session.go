package ddp

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bhunjadi/pagination/id"
	"github.com/bhunjadi/pagination/telemetry"
	"github.com/rs/zerolog/log"
)

// Session is one connected client
type Session struct {
	id     string
	userID string
	server *Server
	conn   Conn

	out       chan []byte
	done      chan struct{}
	closeOnce sync.Once

	// mu guards everything below and orders outbound messages
	mu        sync.Mutex
	connected bool
	closed    bool
	box       *mergeBox
	subs      map[string]*subscription
}

// SessionInfo describes a live session
type SessionInfo struct {
	ID            string   `json:"id"`
	UserID        string   `json:"user_id,omitempty"`
	Subscriptions []string `json:"subscriptions"`
	Documents     int      `json:"documents"`
}

func newSession(server *Server, conn Conn, userID string) *Session {
	return &Session{
		id:     id.Next(),
		userID: userID,
		server: server,
		conn:   conn,
		out:    make(chan []byte, server.opts.SendBufferSize),
		done:   make(chan struct{}),
		box:    newMergeBox(),
		subs:   make(map[string]*subscription),
	}
}

// ID returns the session id sent to the client on connect
func (s *Session) ID() string {
	return s.id
}

func (s *Session) info() SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	info := SessionInfo{ID: s.id, UserID: s.userID, Subscriptions: make([]string, 0, len(s.subs)), Documents: s.box.size()}
	for subID := range s.subs {
		info.Subscriptions = append(info.Subscriptions, subID)
	}
	sort.Strings(info.Subscriptions)
	return info
}

// run reads client messages until the connection fails, then tears the
// session down.
func (s *Session) run() {
	go s.writeLoop()
	defer s.Close()

	for {
		data, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
			default:
				log.Debug().Err(err).Str("session", s.id).Msg("Session read ended")
			}
			return
		}

		msg, err := decodeMessage(data)
		if err != nil {
			s.sendLocked(&Message{Msg: "error", Reason: "Parse error", OffendingMessage: string(data)})
			continue
		}
		s.handle(msg)
	}
}

func (s *Session) writeLoop() {
	var tick <-chan time.Time
	p, canPing := s.conn.(pinger)
	if canPing && s.server.opts.PingInterval > 0 {
		ticker := time.NewTicker(s.server.opts.PingInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-s.done:
			return
		case data := <-s.out:
			if err := s.conn.WriteMessage(data); err != nil {
				log.Debug().Err(err).Str("session", s.id).Msg("Session write failed")
				go s.Close()
				return
			}
		case <-tick:
			if err := p.Ping(); err != nil {
				go s.Close()
				return
			}
		}
	}
}

func (s *Session) handle(msg *Message) {
	s.mu.Lock()
	connected := s.connected
	s.mu.Unlock()

	if !connected {
		if msg.Msg != "connect" {
			s.sendLocked(&Message{Msg: "error", Reason: "Must connect first", OffendingMessage: msg})
			return
		}
		s.connect(msg)
		return
	}

	switch msg.Msg {
	case "ping":
		s.sendLocked(&Message{Msg: "pong", ID: msg.ID})
	case "pong":
	case "sub":
		s.subscribe(msg)
	case "unsub":
		s.unsubscribe(msg.ID)
	case "method":
		// Methods are not served; answer so the client does not hang
		s.mu.Lock()
		s.send(&Message{Msg: "result", ID: msg.ID, Error: NewError(404, fmt.Sprintf("Method '%s' not found", msg.Method))})
		s.send(&Message{Msg: "updated", Methods: []string{msg.ID}})
		s.mu.Unlock()
	default:
		s.sendLocked(&Message{Msg: "error", Reason: "Bad request", OffendingMessage: msg})
	}
}

func (s *Session) connect(msg *Message) {
	if !supported(msg.Version) {
		s.sendLocked(&Message{Msg: "failed", Version: SupportedVersions[0]})
		// Give the writer a moment to flush the failure before hanging up
		time.AfterFunc(100*time.Millisecond, s.Close)
		return
	}

	s.mu.Lock()
	s.connected = true
	s.send(&Message{Msg: "connected", Session: s.id})
	s.mu.Unlock()
	log.Debug().Str("session", s.id).Str("user", s.userID).Msg("Session connected")
}

func (s *Session) subscribe(msg *Message) {
	handler, ok := s.server.handler(msg.Name)

	subID := msg.ID
	if subID == "" {
		subID = id.Next()
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if _, exists := s.subs[subID]; exists {
		s.mu.Unlock()
		return
	}
	if !ok {
		s.send(&Message{Msg: "nosub", ID: subID, Error: NewError(404, fmt.Sprintf("Subscription '%s' not found", msg.Name))})
		s.mu.Unlock()
		return
	}
	sub := &subscription{id: subID, name: msg.Name, session: s}
	s.subs[subID] = sub
	s.mu.Unlock()

	telemetry.ActiveSubscriptions.With(msg.Name).Inc()
	go s.runHandler(sub, handler, Params(msg.Params))
}

func (s *Session) runHandler(sub *subscription, handler Handler, params Params) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("session", s.id).
				Str("publication", sub.name).
				Interface("panic", r).
				Msg("Publication handler panicked")
			sub.Error(ErrInternal)
		}
	}()

	if err := handler(sub, params); err != nil {
		var clientErr *Error
		if !errors.As(err, &clientErr) {
			log.Error().
				Err(err).
				Str("session", s.id).
				Str("publication", sub.name).
				Msg("Publication handler failed")
		}
		sub.Error(err)
	}
}

func (s *Session) unsubscribe(subID string) {
	s.mu.Lock()
	sub, ok := s.subs[subID]
	if !ok {
		s.send(&Message{Msg: "nosub", ID: subID})
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	s.stopSubscription(sub, nil, true)
}

// stopSubscription withdraws the subscription's documents, tells the client
// (when notify is set) and then runs the stop hooks outside the lock.
func (s *Session) stopSubscription(sub *subscription, subErr *Error, notify bool) {
	s.mu.Lock()
	if sub.stopped {
		s.mu.Unlock()
		return
	}
	sub.stopped = true
	delete(s.subs, sub.id)

	for _, msg := range s.box.dropSub(sub.id) {
		s.send(msg)
	}
	if notify {
		s.send(&Message{Msg: "nosub", ID: sub.id, Error: subErr})
	}

	hooks := sub.onStop
	sub.onStop = nil
	s.mu.Unlock()

	telemetry.ActiveSubscriptions.With(sub.name).Dec()
	for _, fn := range hooks {
		runStopHook(sub.id, fn)
	}
}

// Close disconnects the client and stops every subscription. It is
// idempotent.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		subs := make([]*subscription, 0, len(s.subs))
		for _, sub := range s.subs {
			subs = append(subs, sub)
		}
		s.mu.Unlock()

		close(s.done)
		s.conn.Close()

		for _, sub := range subs {
			s.stopSubscription(sub, nil, false)
		}
		s.server.removeSession(s)
		log.Debug().Str("session", s.id).Msg("Session closed")
	})
}

func (s *Session) sendLocked(msg *Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.send(msg)
}

// send queues a message for the writer. Callers hold s.mu so messages leave
// in the order they were produced. A client that cannot keep up with its
// send buffer is disconnected.
func (s *Session) send(msg *Message) {
	if msg == nil || s.closed {
		return
	}

	data, err := encodeMessage(msg)
	if err != nil {
		log.Error().Err(err).Str("session", s.id).Str("msg", msg.Msg).Msg("Failed to encode message")
		return
	}

	select {
	case s.out <- data:
		switch msg.Msg {
		case "added", "changed", "removed":
			telemetry.EventsTotal.With(msg.Msg).Inc()
		}
	default:
		log.Warn().Str("session", s.id).Int("buffer", cap(s.out)).Msg("Send buffer full, disconnecting slow client")
		s.closed = true
		go s.Close()
	}
}
