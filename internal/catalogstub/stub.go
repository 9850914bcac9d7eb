// Package catalogstub is an in-process stand-in for the catalog's connector
// session endpoints. It applies the stream/accrue/replace reconciliation rules
// so connector runs can be exercised end to end without a catalog deployment.
package catalogstub

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"slices"
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const authHeader = "x-bbk-auth-token"

// Call records one request the stub served.
type Call struct {
	Method  string
	Path    string
	Session string
	Verb    string
	Items   int
	Status  int
}

type operation struct {
	verb    string
	records map[string]json.RawMessage
	ids     []string
}

type session struct {
	id          string
	connectorID string
	mode        string
	pending     []operation
	upserted    map[string]struct{}
}

// Server is the fake catalog.
type Server struct {
	token  string
	logger *slog.Logger
	engine *gin.Engine

	mu          sync.Mutex
	sessions    map[string]*session
	records     map[string]map[string]json.RawMessage
	calls       []Call
	actionCalls int
	failAction  map[int]int
	actionHook  func(n int)
}

// Option customizes the stub.
type Option func(*Server)

// WithToken requires every request to carry the given auth token.
func WithToken(token string) Option {
	return func(s *Server) { s.token = token }
}

// WithLogger sets the stub logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a stub with no sessions and no records.
func New(opts ...Option) *Server {
	s := &Server{
		logger:     slog.Default(),
		sessions:   make(map[string]*session),
		records:    make(map[string]map[string]json.RawMessage),
		failAction: make(map[int]int),
	}
	for _, opt := range opts {
		opt(s)
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.authorize)
	r.GET("/connector/:cid/session/open/:mode", s.open)
	r.POST("/connector/:cid/session/:sid/:verb", s.action)
	r.GET("/connector/:cid/session/:sid/close/:commit", s.close)
	r.NoRoute(func(c *gin.Context) { c.String(http.StatusNotFound, "404: Not Found") })
	s.engine = r
	return s
}

// Handler returns the HTTP handler serving the catalog routes.
func (s *Server) Handler() http.Handler { return s.engine }

// FailAction makes the n-th action call (1-based, counted across sessions)
// answer with the given HTTP status.
func (s *Server) FailAction(n, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failAction[n] = status
}

// OnAction registers a hook run at the start of every action call, before the
// stub takes its lock. Tests use it to hold a call in flight.
func (s *Server) OnAction(hook func(n int)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actionHook = hook
}

// Calls returns a copy of the recorded calls.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.calls)
}

// ActionSizes returns the item count of each recorded action call.
func (s *Server) ActionSizes() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var sizes []int
	for _, c := range s.calls {
		if c.Verb != "" {
			sizes = append(sizes, c.Items)
		}
	}
	return sizes
}

// Records returns the committed records for a connector keyed by id.
func (s *Server) Records(connectorID string) map[string]json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.records[connectorID])
}

// OpenSessions returns the number of sessions not yet closed.
func (s *Server) OpenSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Seed installs committed records for a connector, as if synced earlier.
func (s *Server) Seed(connectorID string, records map[string]json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[connectorID] = maps.Clone(records)
}

// =============================================================================
// HANDLERS
// =============================================================================

func (s *Server) authorize(c *gin.Context) {
	if s.token != "" && c.GetHeader(authHeader) != s.token {
		s.record(Call{Method: c.Request.Method, Path: c.Request.URL.Path, Status: http.StatusUnauthorized})
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid auth token"})
		return
	}
	c.Next()
}

func (s *Server) open(c *gin.Context) {
	mode := c.Param("mode")
	call := Call{Method: http.MethodGet, Path: c.Request.URL.Path}
	switch mode {
	case "stream", "accrue", "replace":
	default:
		s.reply(c, call, http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown mode %q", mode)})
		return
	}

	sess := &session{
		id:          uuid.NewString(),
		connectorID: c.Param("cid"),
		mode:        mode,
		upserted:    make(map[string]struct{}),
	}

	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	call.Session = sess.id
	s.logger.Debug("stub session opened", "connector", sess.connectorID, "session", sess.id, "mode", mode)
	s.reply(c, call, http.StatusOK, sess.id)
}

func (s *Server) action(c *gin.Context) {
	verb := c.Param("verb")
	call := Call{Method: http.MethodPost, Path: c.Request.URL.Path, Session: c.Param("sid"), Verb: verb}

	s.mu.Lock()
	s.actionCalls++
	n := s.actionCalls
	hook := s.actionHook
	s.mu.Unlock()
	if hook != nil {
		hook(n)
	}

	op := operation{verb: verb}
	switch verb {
	case "upsert":
		var items []map[string]json.RawMessage
		if err := c.ShouldBindJSON(&items); err != nil {
			s.reply(c, call, http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		op.records = make(map[string]json.RawMessage, len(items))
		for _, item := range items {
			var id string
			if err := json.Unmarshal(item["id"], &id); err != nil || id == "" {
				s.reply(c, call, http.StatusBadRequest, gin.H{"error": "record id is required"})
				return
			}
			raw, _ := json.Marshal(item)
			op.records[id] = raw
			op.ids = append(op.ids, id)
		}
	case "delete":
		if err := c.ShouldBindJSON(&op.ids); err != nil {
			s.reply(c, call, http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	default:
		s.reply(c, call, http.StatusNotFound, gin.H{"error": fmt.Sprintf("unknown action %q", verb)})
		return
	}
	call.Items = len(op.ids)

	s.mu.Lock()
	sess, ok := s.sessions[call.Session]
	status, fail := s.failAction[n]
	s.mu.Unlock()

	if !ok || sess.connectorID != c.Param("cid") {
		s.reply(c, call, http.StatusNotFound, gin.H{"error": "unknown session"})
		return
	}
	if fail {
		s.reply(c, call, status, gin.H{"error": "injected failure"})
		return
	}

	s.mu.Lock()
	if verb == "upsert" {
		for _, id := range op.ids {
			sess.upserted[id] = struct{}{}
		}
	}
	if sess.mode == "stream" {
		s.apply(sess.connectorID, op)
	} else {
		sess.pending = append(sess.pending, op)
	}
	s.mu.Unlock()

	report := make(map[string]string, len(op.ids))
	for _, id := range op.ids {
		report[id] = verb
	}
	s.reply(c, call, http.StatusOK, report)
}

func (s *Server) close(c *gin.Context) {
	call := Call{Method: http.MethodGet, Path: c.Request.URL.Path, Session: c.Param("sid")}
	commit, err := strconv.ParseBool(c.Param("commit"))
	if err != nil {
		s.reply(c, call, http.StatusBadRequest, gin.H{"error": "commit must be true or false"})
		return
	}

	s.mu.Lock()
	sess, ok := s.sessions[call.Session]
	if ok && sess.connectorID == c.Param("cid") {
		delete(s.sessions, call.Session)
		if commit {
			for _, op := range sess.pending {
				s.apply(sess.connectorID, op)
			}
			if sess.mode == "replace" {
				for id := range s.records[sess.connectorID] {
					if _, keep := sess.upserted[id]; !keep {
						delete(s.records[sess.connectorID], id)
					}
				}
			}
		}
	}
	s.mu.Unlock()

	if !ok {
		s.reply(c, call, http.StatusNotFound, gin.H{"error": "unknown session"})
		return
	}
	s.logger.Debug("stub session closed", "session", sess.id, "commit", commit)
	s.reply(c, call, http.StatusOK, gin.H{})
}

// apply must be called with s.mu held.
func (s *Server) apply(connectorID string, op operation) {
	recs, ok := s.records[connectorID]
	if !ok {
		recs = make(map[string]json.RawMessage)
		s.records[connectorID] = recs
	}
	for _, id := range op.ids {
		if op.verb == "upsert" {
			recs[id] = op.records[id]
		} else {
			delete(recs, id)
		}
	}
}

func (s *Server) reply(c *gin.Context, call Call, status int, body any) {
	call.Status = status
	s.record(call)
	c.JSON(status, body)
}

func (s *Server) record(call Call) {
	s.mu.Lock()
	s.calls = append(s.calls, call)
	s.mu.Unlock()
}
