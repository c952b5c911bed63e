package internal

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"chatrelay/internal/storage"
)

// Server glues the HTTP surface to the hub: it authenticates websocket
// upgrades, serves the account endpoints and exposes the read-only room and
// metrics views.
type Server struct {
	log            *slog.Logger
	hub            *Hub
	router         *Router
	store          *storage.Store
	presence       *PresenceTracker
	metrics        *Metrics
	authLimiter    *KeyedLimiter
	upgrader       websocket.Upgrader
	tokenTTL       time.Duration
	allowAnonymous bool
}

// ServerOptions carries the tunables NewServer does not default.
type ServerOptions struct {
	TokenTTL time.Duration
	// AllowAnonymous admits websocket connections without a session token;
	// such connections pick a username at join time.
	AllowAnonymous bool
}

const (
	defaultTokenTTL = 24 * time.Hour
	authBurst       = 10
	authBurstWindow = time.Minute
)

func NewServer(log *slog.Logger, hub *Hub, router *Router, store *storage.Store, metrics *Metrics, opts ServerOptions) *Server {
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = defaultTokenTTL
	}
	return &Server{
		log:         log,
		hub:         hub,
		router:      router,
		store:       store,
		presence:    NewPresenceTracker(),
		metrics:     metrics,
		authLimiter: NewKeyedLimiter(authBurst, authBurstWindow),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		tokenTTL:       opts.TokenTTL,
		allowAnonymous: opts.AllowAnonymous,
	}
}

var errUnauthorized = errors.New("unauthorized")

type authContext struct {
	UserID   int64
	Username string
	Token    string
}

// ServeWS gates the upgrade behind a session token (unless anonymous mode is
// on) and admits the connection to the hub with no room. Rooms are joined by
// a join_room event, not at upgrade time.
func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	username := ""
	authCtx, err := s.authenticateRequest(r)
	switch {
	case err == nil:
		username = authCtx.Username
	case errors.Is(err, errUnauthorized):
		if !s.allowAnonymous {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
	default:
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "err", err)
		return
	}

	conn := NewConn(ws, s.router, s.log, func() {
		s.metrics.DecConn()
		if username != "" {
			s.presence.Decrement(username)
		}
	})
	id := s.hub.Register(conn, username)
	conn.Bind(id)
	s.metrics.IncConn()
	if username != "" {
		s.presence.Increment(username)
	}
	conn.Start()
	s.log.Info("connection admitted", "conn", id, "user", username)
}

// authenticateRequest resolves the bearer token (header or query param) to a
// live session and its user.
func (s *Server) authenticateRequest(r *http.Request) (*authContext, error) {
	token := bearerToken(r)
	if token == "" {
		return nil, errUnauthorized
	}
	session, err := s.store.GetSession(r.Context(), token)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, errUnauthorized
	}
	if time.Now().After(session.ExpiresAt) {
		_ = s.store.DeleteSession(r.Context(), token)
		return nil, errUnauthorized
	}
	user, err := s.store.GetUserByID(r.Context(), session.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, errUnauthorized
	}
	return &authContext{UserID: user.ID, Username: user.Username, Token: token}, nil
}

func bearerToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

func (s *Server) clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		if first, _, ok := strings.Cut(forwarded, ","); ok {
			return strings.TrimSpace(first)
		}
		return strings.TrimSpace(forwarded)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
