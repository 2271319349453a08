// Package ddp serves publications to Meteor DDP clients over websockets.
// It keeps a per-session merge box so documents published by several
// subscriptions reach the client once.
package ddp

import (
	"fmt"
	"net/http"
	"sort"
	"sync/atomic"
	"time"

	"github.com/bhunjadi/pagination/cfg"
	"github.com/bhunjadi/pagination/telemetry"
	"github.com/gorilla/websocket"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog/log"
)

// Handler activates a publication for one subscription. Returning an error
// stops the subscription; *Error values are reported to the client verbatim.
type Handler func(sub Subscription, params Params) error

// Authenticator resolves the user behind an incoming connection. An error
// rejects the connection with 401.
type Authenticator func(r *http.Request) (string, error)

// Options tunes sessions
type Options struct {
	SendBufferSize int
	ReadLimitBytes int64
	PingInterval   time.Duration
	WriteTimeout   time.Duration
}

// OptionsFromConfig builds session options from the server configuration
func OptionsFromConfig(conf cfg.ServerConfiguration) Options {
	return Options{
		SendBufferSize: conf.SendBufferSize,
		ReadLimitBytes: conf.ReadLimitBytes,
		PingInterval:   time.Duration(conf.PingIntervalSeconds) * time.Second,
		WriteTimeout:   10 * time.Second,
	}
}

// Server is an http.Handler speaking DDP
type Server struct {
	opts     Options
	handlers *xsync.MapOf[string, Handler]
	sessions *xsync.MapOf[string, *Session]
	upgrader websocket.Upgrader
	closed   atomic.Bool

	// Authenticate is consulted before upgrading; nil accepts everyone anonymously
	Authenticate Authenticator
}

// NewServer creates a server without publications
func NewServer(opts Options) *Server {
	if opts.SendBufferSize <= 0 {
		opts.SendBufferSize = 1024
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	return &Server{
		opts:     opts,
		handlers: xsync.NewMapOf[string, Handler](),
		sessions: xsync.NewMapOf[string, *Session](),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// HeaderAuthenticator trusts a header set by an upstream proxy. A missing
// header means an anonymous user.
func HeaderAuthenticator(header string) Authenticator {
	return func(r *http.Request) (string, error) {
		return r.Header.Get(header), nil
	}
}

// Publish registers a publication. Names are unique.
func (s *Server) Publish(name string, handler Handler) error {
	if name == "" {
		return fmt.Errorf("publication name is required")
	}
	if handler == nil {
		return fmt.Errorf("publication %s: handler is required", name)
	}
	if _, loaded := s.handlers.LoadOrStore(name, handler); loaded {
		return fmt.Errorf("publication %s is already defined", name)
	}
	log.Debug().Str("publication", name).Msg("Publication registered")
	return nil
}

// Publications lists registered publication names
func (s *Server) Publications() []string {
	var names []string
	s.handlers.Range(func(name string, _ Handler) bool {
		names = append(names, name)
		return true
	})
	sort.Strings(names)
	return names
}

func (s *Server) handler(name string) (Handler, bool) {
	return s.handlers.Load(name)
}

// ServeHTTP upgrades the request to a websocket and runs a session on it
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.closed.Load() {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}

	userID := ""
	if s.Authenticate != nil {
		var err error
		userID, err = s.Authenticate(r)
		if err != nil {
			log.Debug().Err(err).Str("remote", r.RemoteAddr).Msg("Rejected connection")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied to the client
		log.Debug().Err(err).Str("remote", r.RemoteAddr).Msg("Websocket upgrade failed")
		return
	}

	s.Serve(newWSConn(ws, s.opts), userID)
}

// Serve runs a session over conn until it disconnects
func (s *Server) Serve(conn Conn, userID string) {
	session := newSession(s, conn, userID)
	s.sessions.Store(session.id, session)
	telemetry.Sessions.Inc()

	if s.closed.Load() {
		session.Close()
		return
	}
	session.run()
}

func (s *Server) removeSession(session *Session) {
	if _, ok := s.sessions.LoadAndDelete(session.id); ok {
		telemetry.Sessions.Dec()
	}
}

// SessionCount returns the number of live sessions
func (s *Server) SessionCount() int {
	return s.sessions.Size()
}

// Sessions describes every live session
func (s *Server) Sessions() []SessionInfo {
	var infos []SessionInfo
	s.sessions.Range(func(_ string, session *Session) bool {
		infos = append(infos, session.info())
		return true
	})
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

// Close disconnects every session and refuses new ones
func (s *Server) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	s.sessions.Range(func(_ string, session *Session) bool {
		session.Close()
		return true
	})
	log.Info().Msg("DDP server closed")
}
