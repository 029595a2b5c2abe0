package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-errors"

	auth "github.com/goliatone/go-auth-tokens"
)

// DefaultTimeout bounds every request made by a Session
const DefaultTimeout = 10 * time.Second

// Session tracks the current identity and its bearer token. Register,
// Login, Logout and Restore never overlap: a call made while another one is
// running fails with ErrOperationInFlight.
type Session struct {
	baseURL string
	http    *http.Client
	store   TokenStore
	logger  auth.Logger

	opMu sync.Mutex

	// persistMu keeps each state change and its store write together
	persistMu sync.Mutex

	mu    sync.RWMutex
	state State
}

type Option func(*Session)

// WithHTTPClient replaces the HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(s *Session) {
		if c != nil {
			s.http = c
		}
	}
}

// WithTimeout sets the HTTP client timeout
func WithTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.http.Timeout = d
		}
	}
}

func WithLogger(logger auth.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates an Anonymous session talking to the API at baseURL, for
// example "http://localhost:8080/api"
func New(baseURL string, store TokenStore, opts ...Option) *Session {
	if store == nil {
		store = NewMemoryStore()
	}

	s := &Session{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: DefaultTimeout},
		store:   store,
		logger:  nopLogger{},
		state:   Anonymous{},
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Current returns a snapshot of the session state
func (s *Session) Current() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// IsAuthenticated reports whether the session holds an identity
func (s *Session) IsAuthenticated() bool {
	return s.Current().IsAuthenticated()
}

// User returns the current identity
func (s *Session) User() (auth.UserResource, bool) {
	if st, ok := s.Current().(Authenticated); ok {
		return st.User, true
	}
	return auth.UserResource{}, false
}

// Token returns the current bearer token
func (s *Session) Token() (string, bool) {
	if st, ok := s.Current().(Authenticated); ok {
		return st.Token, true
	}
	return "", false
}

// Register creates an account and authenticates the session with the
// returned token
func (s *Session) Register(ctx context.Context, input auth.RegisterInput) (auth.UserResource, error) {
	if !s.opMu.TryLock() {
		return auth.UserResource{}, ErrOperationInFlight
	}
	defer s.opMu.Unlock()

	if s.IsAuthenticated() {
		return auth.UserResource{}, ErrAlreadyAuthenticated
	}

	var out auth.AuthResponse
	if err := s.call(ctx, http.MethodPost, "/register", "", input, &out); err != nil {
		return auth.UserResource{}, err
	}

	s.authenticate(ctx, out.User, out.Token)
	return out.User, nil
}

// Login authenticates the session. Logging in while authenticated is
// rejected with ErrAlreadyAuthenticated.
func (s *Session) Login(ctx context.Context, email, password string) (auth.UserResource, error) {
	if !s.opMu.TryLock() {
		return auth.UserResource{}, ErrOperationInFlight
	}
	defer s.opMu.Unlock()

	if s.IsAuthenticated() {
		return auth.UserResource{}, ErrAlreadyAuthenticated
	}

	var out auth.AuthResponse
	payload := auth.LoginInput{Email: email, Password: password}
	if err := s.call(ctx, http.MethodPost, "/login", "", payload, &out); err != nil {
		return auth.UserResource{}, err
	}

	s.authenticate(ctx, out.User, out.Token)
	return out.User, nil
}

// Logout revokes the session token. The session becomes Anonymous once the
// server confirms the revocation, or when the server reports the token is
// no longer valid. Transport and server errors keep the session as is.
func (s *Session) Logout(ctx context.Context) error {
	if !s.opMu.TryLock() {
		return ErrOperationInFlight
	}
	defer s.opMu.Unlock()

	token, ok := s.Token()
	if !ok {
		return ErrNotAuthenticated
	}

	err := s.call(ctx, http.MethodPost, "/logout", token, nil, nil)
	if err == nil {
		s.reset(ctx)
		return nil
	}

	if apiErr, ok := AsAPIError(err); ok && apiErr.Unauthenticated() {
		s.reset(ctx)
	}

	return err
}

// Restore re-derives the identity from the persisted token. A token the
// server rejects is removed from the store.
func (s *Session) Restore(ctx context.Context) (State, error) {
	if !s.opMu.TryLock() {
		return s.Current(), ErrOperationInFlight
	}
	defer s.opMu.Unlock()

	if s.IsAuthenticated() {
		return s.Current(), nil
	}

	token, found, err := s.store.Get(ctx, TokenStorageKey)
	if err != nil {
		return s.Current(), err
	}
	if !found || token == "" {
		return s.Current(), nil
	}

	var user auth.UserResource
	err = s.call(ctx, http.MethodGet, "/user", token, nil, &user)
	if err != nil {
		if apiErr, ok := AsAPIError(err); ok && apiErr.Unauthenticated() {
			s.reset(ctx)
			return s.Current(), nil
		}
		return s.Current(), err
	}

	s.authenticate(ctx, user, token)
	return s.Current(), nil
}

// Do sends an authenticated request to path and decodes the JSON response
// into out. A token rejected by the server ends the session.
func (s *Session) Do(ctx context.Context, method, path string, in, out any) error {
	token, ok := s.Token()
	if !ok {
		return ErrNotAuthenticated
	}

	err := s.call(ctx, method, path, token, in, out)
	if apiErr, ok := AsAPIError(err); ok && apiErr.Unauthenticated() {
		s.resetIfCurrent(ctx, token)
	}
	return err
}

func (s *Session) authenticate(ctx context.Context, user auth.UserResource, token string) {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.Lock()
	s.state = Authenticated{User: user, Token: token}
	s.mu.Unlock()

	if err := s.store.Set(ctx, TokenStorageKey, token); err != nil {
		s.logger.Warn("session token could not be persisted", "error", err)
	}
}

func (s *Session) reset(ctx context.Context) {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.Lock()
	s.state = Anonymous{}
	s.mu.Unlock()

	s.clearStore(ctx)
}

// resetIfCurrent ends the session only while token is still the active
// one. A rejection that arrives after a newer login is ignored.
func (s *Session) resetIfCurrent(ctx context.Context, token string) {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.Lock()
	current, ok := s.state.(Authenticated)
	if !ok || current.Token != token {
		s.mu.Unlock()
		return
	}
	s.state = Anonymous{}
	s.mu.Unlock()

	s.clearStore(ctx)
}

func (s *Session) clearStore(ctx context.Context) {
	if err := s.store.Delete(ctx, TokenStorageKey); err != nil {
		s.logger.Warn("session token could not be cleared", "error", err)
	}
}

func (s *Session) call(ctx context.Context, method, path, token string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, errors.CategoryBadInput, "failed to encode request body")
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return errors.Wrap(err, errors.CategoryBadInput, "failed to build request")
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", auth.DefaultAuthScheme+" "+token)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return errors.WrapRetryable(err, errors.CategoryExternal, "request to "+path+" failed")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.WrapRetryable(err, errors.CategoryExternal, "failed to read response from "+path)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errBody auth.ErrorResponse
		if len(data) > 0 {
			_ = json.Unmarshal(data, &errBody)
		}
		if errBody.Message == "" {
			errBody.Message = http.StatusText(resp.StatusCode)
		}
		s.logger.Debug("api request failed", "path", path, "status", resp.StatusCode, "text_code", errBody.TextCode)
		return newAPIError(resp.StatusCode, errBody)
	}

	if out == nil || len(data) == 0 {
		return nil
	}

	if err := json.Unmarshal(data, out); err != nil {
		return errors.Wrap(err, errors.CategoryExternal, "failed to decode response from "+path)
	}
	return nil
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
