package auth

import (
	"context"
	"reflect"
	"time"
)

type Auther struct {
	repo         RepositoryManager
	provider     IdentityProvider
	tokens       TokenManager
	hasher       *BcryptHasher
	passwordMin  int
	useHashid    bool
	logger       Logger
	activitySink ActivitySink
}

var _ Authenticator = (*Auther)(nil)

// NewAuthenticator returns a new Authenticator
func NewAuthenticator(repo RepositoryManager, tokens TokenManager, opts Config) *Auther {
	hasher := NewBcryptHasher(opts.GetBcryptCost())

	passwordMin := opts.GetPasswordMinLength()
	if passwordMin <= 0 {
		passwordMin = DefaultPasswordMinLength
	}

	return &Auther{
		repo:         repo,
		provider:     NewUserProvider(repo.Users()).WithHasher(hasher),
		tokens:       tokens,
		hasher:       hasher,
		passwordMin:  passwordMin,
		useHashid:    opts.GetUseHashid(),
		logger:       defLogger{},
		activitySink: noopActivitySink{},
	}
}

func (s *Auther) WithLogger(logger Logger) *Auther {
	if logger == nil {
		return s
	}
	s.logger = logger
	if up, ok := s.provider.(*UserProvider); ok {
		up.WithLogger(logger)
	}
	return s
}

// WithIdentityProvider replaces the provider used to verify credentials
func (s *Auther) WithIdentityProvider(provider IdentityProvider) *Auther {
	if provider != nil {
		s.provider = provider
	}
	return s
}

// WithActivitySink configures an ActivitySink for emitting auth events.
func (s *Auther) WithActivitySink(sink ActivitySink) *Auther {
	s.activitySink = normalizeActivitySink(sink)
	return s
}

// TokenManager returns the token manager used by this Authenticator
func (s *Auther) TokenManager() TokenManager {
	return s.tokens
}

// Register validates the input, creates the account and issues its first
// token atomically. Either both exist afterwards or neither does.
func (s *Auther) Register(ctx context.Context, input RegisterInput) (*AuthResult, error) {
	input = input.Normalize()

	if err := input.Validate(s.passwordMin); err != nil {
		s.emitAuthEvent(ctx, ActivityEventRegisterFailure, ActorRef{Type: "unknown"}, "", map[string]any{
			"email": input.Email,
			"error": err.Error(),
		})
		return nil, err
	}

	handler := NewRegisterUserHandler(s.repo, s.tokens, s.hasher)
	user, token, err := handler.Execute(ctx, RegisterUserMessage{
		Name:      input.Name,
		Email:     input.Email,
		Password:  input.Password,
		UseHashid: s.useHashid,
	})
	if err != nil {
		s.logger.Error("Register failed", "email", input.Email, "error", err)
		s.emitAuthEvent(ctx, ActivityEventRegisterFailure, ActorRef{Type: "unknown"}, "", map[string]any{
			"email": input.Email,
			"error": err.Error(),
		})
		return nil, err
	}

	identity := NewIdentityFromUser(user)
	s.emitAuthEvent(ctx, ActivityEventRegisterSuccess, s.actorFromIdentity(identity), identity.ID(), map[string]any{
		"email": input.Email,
	})

	return &AuthResult{Identity: identity, Token: token}, nil
}

// Login verifies credentials and always issues a brand new token. Previous
// tokens of the account stay valid.
func (s *Auther) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = NormalizeEmail(email)

	if err := (LoginInput{Email: email, Password: password}).Validate(); err != nil {
		s.emitAuthEvent(ctx, ActivityEventLoginFailure, ActorRef{Type: "unknown"}, "", map[string]any{
			"identifier": email,
			"error":      err.Error(),
		})
		return nil, err
	}

	identity, err := s.provider.VerifyIdentity(ctx, email, password)
	if err != nil {
		s.logger.Error("Login verify identity error", "error", err)
		s.emitAuthEvent(ctx, ActivityEventLoginFailure, ActorRef{Type: "unknown"}, "", map[string]any{
			"identifier": email,
			"error":      err.Error(),
		})
		return nil, err
	}

	if identity == nil || reflect.ValueOf(identity).IsZero() {
		s.logger.Error("Login identity is nil or zero value")
		s.emitAuthEvent(ctx, ActivityEventLoginFailure, ActorRef{Type: "unknown"}, "", map[string]any{
			"identifier": email,
			"error":      ErrInvalidCredentials.Error(),
		})
		return nil, ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(ctx, identity)
	if err != nil {
		s.emitAuthEvent(ctx, ActivityEventLoginFailure, s.actorFromIdentity(identity), identity.ID(), map[string]any{
			"identifier": email,
			"error":      err.Error(),
		})
		return nil, err
	}

	s.emitAuthEvent(ctx, ActivityEventLoginSuccess, s.actorFromIdentity(identity), identity.ID(), map[string]any{
		"identifier": email,
	})

	return &AuthResult{Identity: identity, Token: token}, nil
}

// Logout revokes exactly the presented token
func (s *Auther) Logout(ctx context.Context, token string) error {
	identity, err := s.tokens.Resolve(ctx, token)
	if err != nil {
		s.emitAuthEvent(ctx, ActivityEventLogoutFailure, ActorRef{Type: "unknown"}, "", map[string]any{
			"error": err.Error(),
		})
		return err
	}

	if err := s.tokens.Revoke(ctx, token); err != nil {
		s.logger.Warn("Logout revoke failed", "user_id", identity.ID(), "error", err)
		s.emitAuthEvent(ctx, ActivityEventLogoutFailure, s.actorFromIdentity(identity), identity.ID(), map[string]any{
			"error": err.Error(),
		})
		return err
	}

	s.emitAuthEvent(ctx, ActivityEventLogoutSuccess, s.actorFromIdentity(identity), identity.ID(), nil)
	return nil
}

// Resolve returns the identity for a valid token
func (s *Auther) Resolve(ctx context.Context, token string) (Identity, error) {
	return s.tokens.Resolve(ctx, token)
}

func (s *Auther) emitAuthEvent(ctx context.Context, eventType ActivityEventType, actor ActorRef, userID string, metadata map[string]any) {
	sink := normalizeActivitySink(s.activitySink)
	event := ActivityEvent{
		EventType: eventType,
		Actor:     actor,
		UserID:    userID,
		Metadata:  metadata,
	}

	if event.Metadata == nil {
		event.Metadata = map[string]any{}
	}

	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	if err := sink.Record(ctx, event); err != nil {
		s.logger.Warn("activity sink record error", "error", err)
	}
}

func (s *Auther) actorFromIdentity(identity Identity) ActorRef {
	if identity == nil {
		return ActorRef{Type: "unknown"}
	}

	return ActorRef{
		ID:   identity.ID(),
		Type: "user",
	}
}
