// Package catalog implements the connector side of the catalog upload session
// protocol: open a session for a mode, issue batched actions, then close with
// or without commit.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	bbkhttp "github.com/bit-broker/examples/internal/connector/http"
	"github.com/bit-broker/examples/pkg/entity"
)

// AuthHeader carries the connector's catalog credential on every request.
const AuthHeader = "x-bbk-auth-token"

// SessionConfig identifies the catalog and the connector.
type SessionConfig struct {
	// CatalogURL is the catalog base, e.g. https://bbk.example.com/v1/.
	CatalogURL string
	// ConnectorID is the externally assigned connector identity.
	ConnectorID string
	// AuthToken is sent in the x-bbk-auth-token header.
	AuthToken string
	// PageSize is the action batch size (default: 100).
	PageSize int
	// RateLimit caps catalog requests per second; zero is unlimited.
	RateLimit float64
	// Timeout per HTTP call (default: 30s).
	Timeout time.Duration
	// Transport allows injecting a custom HTTP transport (for tests).
	Transport http.RoundTripper
}

// Option customizes a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithPageSize overrides the action batch size.
func WithPageSize(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// Session is one upload transaction against the catalog. Calls are strictly
// sequential: a call made while another is in flight fails with ErrSessionBusy.
type Session struct {
	client      *bbkhttp.Client
	connectorID string
	pageSize    int
	logger      *slog.Logger

	mu        sync.Mutex
	state     State
	busy      bool
	sessionID string
	mode      Mode
}

// NewSession creates a closed session for the connector.
func NewSession(cfg SessionConfig, opts ...Option) (*Session, error) {
	if strings.TrimSpace(cfg.CatalogURL) == "" {
		return nil, errors.New("catalog url is required")
	}
	if _, err := url.Parse(cfg.CatalogURL); err != nil {
		return nil, fmt.Errorf("invalid catalog url: %w", err)
	}
	if strings.TrimSpace(cfg.ConnectorID) == "" {
		return nil, errors.New("connector id is required")
	}

	base := strings.TrimSuffix(cfg.CatalogURL, "/") +
		"/connector/" + url.PathEscape(cfg.ConnectorID) + "/session"

	client := bbkhttp.NewClient(&bbkhttp.ClientConfig{
		BaseURL:    base,
		Auth:       bbkhttp.APIKey{Key: cfg.AuthToken, Header: AuthHeader},
		Timeout:    cfg.Timeout,
		MaxRetries: 0,
		RateLimit:  cfg.RateLimit,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Transport:  cfg.Transport,
	})

	s := &Session{
		client:      client,
		connectorID: cfg.ConnectorID,
		pageSize:    DefaultPageSize,
		logger:      slog.Default(),
	}
	if cfg.PageSize > 0 {
		s.pageSize = cfg.PageSize
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("connector", cfg.ConnectorID)
	return s, nil
}

// State returns the current session state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ID returns the catalog-issued session id, empty unless open.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// Mode returns the mode the session was opened with.
func (s *Session) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// begin claims the session for one call when it is in the wanted state.
func (s *Session) begin(want State) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return "", ErrSessionBusy
	}
	if s.state != want {
		if s.state == StateOpen {
			return "", ErrSessionOpen
		}
		return "", ErrSessionClosed
	}
	s.busy = true
	return s.sessionID, nil
}

func (s *Session) end() {
	s.mu.Lock()
	s.busy = false
	s.mu.Unlock()
}

// =============================================================================
// PROTOCOL
// =============================================================================

// Open starts a session of the given mode. On failure the session stays closed.
func (s *Session) Open(ctx context.Context, mode Mode) error {
	mode, err := ParseMode(string(mode))
	if err != nil {
		return err
	}
	if _, err := s.begin(StateClosed); err != nil {
		return err
	}
	defer s.end()

	s.logger.Info("opening catalog session", "mode", mode)
	resp, err := s.client.Get(ctx, "open/"+string(mode), nil)
	if err != nil {
		return fmt.Errorf("open %s session: %w", mode, err)
	}

	var sid string
	if err := resp.JSON(&sid); err != nil {
		return fmt.Errorf("open %s session: decode session id: %w", mode, err)
	}
	if sid == "" {
		return fmt.Errorf("open %s session: catalog returned an empty session id", mode)
	}

	s.mu.Lock()
	s.state = StateOpen
	s.sessionID = sid
	s.mode = mode
	s.mu.Unlock()

	s.logger.Info("catalog session open", "mode", mode, "session", sid)
	return nil
}

// ActionResult summarizes a completed (or aborted) action.
type ActionResult struct {
	// Batches is the number of batches the catalog accepted.
	Batches int
	// Items is the number of items submitted in accepted batches.
	Items int
	// Processed sums the per-batch item counts reported by the catalog.
	Processed int
}

// Action submits records in consecutive batches of PageSize, one HTTP call
// per batch, each awaited before the next. Upserts carry full records, deletes
// only ids. The first failing batch aborts the rest; the session stays open.
func (s *Session) Action(ctx context.Context, verb Verb, records []entity.Record) (ActionResult, error) {
	var result ActionResult
	verb, err := ParseVerb(string(verb))
	if err != nil {
		return result, err
	}
	sid, err := s.begin(StateOpen)
	if err != nil {
		return result, err
	}
	defer s.end()

	path := url.PathEscape(sid) + "/" + string(verb)
	for _, batch := range Partition(len(records), s.pageSize) {
		if err := ctx.Err(); err != nil {
			return result, &BatchError{Verb: verb, Batch: batch, Err: err}
		}

		items := records[batch.Start:batch.End]
		var body any = items
		if verb == VerbDelete {
			body = entity.IDs(items)
		}

		resp, err := s.client.Post(ctx, path, body)
		if err != nil {
			return result, &BatchError{Verb: verb, Batch: batch, Err: err}
		}

		processed := processedCount(resp)
		result.Batches++
		result.Items += batch.Size()
		result.Processed += processed
		s.logger.Info("catalog action", "verb", verb, "batch", batch.Index,
			"items", batch.Size(), "processed", processed)
	}
	return result, nil
}

// Upsert submits full records.
func (s *Session) Upsert(ctx context.Context, records []entity.Record) (ActionResult, error) {
	return s.Action(ctx, VerbUpsert, records)
}

// Delete submits record ids for removal.
func (s *Session) Delete(ctx context.Context, ids []string) (ActionResult, error) {
	records := make([]entity.Record, len(ids))
	for i, id := range ids {
		records[i] = entity.Record{ID: id}
	}
	return s.Action(ctx, VerbDelete, records)
}

// Close ends the session, committing the accumulated actions when commit is
// true. The session is closed afterwards whatever the outcome.
func (s *Session) Close(ctx context.Context, commit bool) error {
	sid, err := s.begin(StateOpen)
	if err != nil {
		return err
	}
	defer func() {
		s.mu.Lock()
		s.state = StateClosed
		s.sessionID = ""
		s.busy = false
		s.mu.Unlock()
	}()

	s.logger.Info("closing catalog session", "session", sid, "commit", commit)
	if _, err := s.client.Get(ctx, url.PathEscape(sid)+"/close/"+strconv.FormatBool(commit), nil); err != nil {
		return fmt.Errorf("close session %s: %w", sid, err)
	}
	return nil
}

// processedCount reads the catalog's per-batch report: an object keyed by item
// (or a list of items).
func processedCount(resp *bbkhttp.Response) int {
	if len(resp.Body) == 0 {
		return 0
	}
	var report any
	if err := resp.JSON(&report); err != nil {
		return 0
	}
	switch v := report.(type) {
	case map[string]any:
		return len(v)
	case []any:
		return len(v)
	default:
		return 0
	}
}
