// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/holomush/authcore/internal/audit"
	"github.com/holomush/authcore/internal/credential"
	"github.com/holomush/authcore/internal/logging"
	"github.com/holomush/authcore/internal/throttle"
	"github.com/holomush/authcore/pkg/errutil"
)

// Throttler decides whether a request may proceed. *throttle.Gate implements it.
type Throttler interface {
	Check(s throttle.Strategy, key string) throttle.Result
}

// Strategies are the throttle policies applied by each flow.
type Strategies struct {
	Login          throttle.Strategy
	Register       throttle.Strategy
	Refresh        throttle.Strategy
	PasswordChange throttle.Strategy
	PasswordReset  throttle.Strategy
}

// DefaultStrategies returns the predefined throttle strategies.
func DefaultStrategies() Strategies {
	return Strategies{
		Login:          throttle.Login,
		Register:       throttle.Register,
		Refresh:        throttle.Refresh,
		PasswordChange: throttle.PasswordChange,
		PasswordReset:  throttle.PasswordReset,
	}
}

// Deps are the collaborators of an Orchestrator. Attempts and Recorder are
// optional.
type Deps struct {
	Principals PrincipalRepository
	Refresh    RefreshRepository
	Resets     ResetTokenRepository
	Attempts   LoginAttemptRepository
	Tx         Transactor
	Codec      *credential.Codec
	Throttle   Throttler
	Hasher     PasswordHasher
	Mailer     Mailer
	Recorder   audit.Recorder
}

// Config tunes an Orchestrator. Zero values take the package defaults.
type Config struct {
	Strategies Strategies
	Lockout    LockoutPolicy
	ResetTTL   time.Duration
}

// RegisterInput is the data needed to create an account.
type RegisterInput struct {
	Email       string
	Password    string
	DisplayName string
	Role        Role
}

// Session is the result of a flow that authenticates a principal.
type Session struct {
	Principal PrincipalView `json:"user"`
	Tokens    TokenPair     `json:"tokens"`
}

// Identity is the verified content of an access token.
type Identity struct {
	PrincipalID ulid.ULID
	Email       string
	Role        Role
	TokenID     string
	ExpiresAt   time.Time
}

// HasRole reports whether the identity carries one of roles.
func (i *Identity) HasRole(roles ...Role) bool {
	return slices.Contains(roles, i.Role)
}

// Authorize fails with FORBIDDEN unless id carries one of roles. A nil
// identity has not been authenticated and fails with TOKEN_INVALID.
func Authorize(id *Identity, roles ...Role) error {
	if id == nil {
		return errTokenInvalid("not authenticated")
	}
	if !id.HasRole(roles...) {
		return oops.Code(CodeForbidden).
			With("role", string(id.Role)).
			With("principal_id", id.PrincipalID.String()).
			Errorf("insufficient permissions")
	}
	return nil
}

// SessionInfo describes one live refresh token family of a principal.
type SessionInfo struct {
	ID        string    `json:"id"`
	FamilyID  string    `json:"familyId"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
	IPAddress string    `json:"ipAddress,omitempty"`
	UserAgent string    `json:"userAgent,omitempty"`
}

// Orchestrator composes throttling, lockout, tokens and the refresh ledger
// into the session flows.
type Orchestrator struct {
	principals PrincipalRepository
	attempts   LoginAttemptRepository
	tx         Transactor
	codec      *credential.Codec
	throttler  Throttler
	hasher     PasswordHasher
	mailer     Mailer
	recorder   audit.Recorder

	lockout    *LockoutTracker
	ledger     *RefreshLedger
	vault      *ResetVault
	strategies Strategies

	logger *slog.Logger
	now    func() time.Time
	tracer trace.Tracer

	// dummyHash is verified against when the email is unknown so both
	// paths cost one hash computation.
	dummyHash string
}

// NewOrchestrator creates an Orchestrator. All Deps except Attempts and
// Recorder are required.
func NewOrchestrator(deps Deps, cfg Config, opts ...Option) (*Orchestrator, error) {
	switch {
	case deps.Principals == nil:
		return nil, oops.Code("ORCHESTRATOR_INVALID_DEPS").Errorf("principal repository is required")
	case deps.Refresh == nil:
		return nil, oops.Code("ORCHESTRATOR_INVALID_DEPS").Errorf("refresh repository is required")
	case deps.Resets == nil:
		return nil, oops.Code("ORCHESTRATOR_INVALID_DEPS").Errorf("reset token repository is required")
	case deps.Tx == nil:
		return nil, oops.Code("ORCHESTRATOR_INVALID_DEPS").Errorf("transactor is required")
	case deps.Codec == nil:
		return nil, oops.Code("ORCHESTRATOR_INVALID_DEPS").Errorf("credential codec is required")
	case deps.Throttle == nil:
		return nil, oops.Code("ORCHESTRATOR_INVALID_DEPS").Errorf("throttler is required")
	case deps.Hasher == nil:
		return nil, oops.Code("ORCHESTRATOR_INVALID_DEPS").Errorf("password hasher is required")
	case deps.Mailer == nil:
		return nil, oops.Code("ORCHESTRATOR_INVALID_DEPS").Errorf("mailer is required")
	}
	if deps.Recorder == nil {
		deps.Recorder = audit.Nop{}
	}
	if cfg.Strategies == (Strategies{}) {
		cfg.Strategies = DefaultStrategies()
	}

	st := newSettings(opts)

	ledger, err := NewRefreshLedger(deps.Refresh, deps.Principals, deps.Tx, deps.Codec, deps.Recorder, opts...)
	if err != nil {
		return nil, err
	}
	vault, err := NewResetVault(deps.Resets, deps.Principals, deps.Refresh, deps.Tx, cfg.ResetTTL, opts...)
	if err != nil {
		return nil, err
	}
	dummy, err := deps.Hasher.Hash(ulid.Make().String())
	if err != nil {
		return nil, oops.Code("ORCHESTRATOR_INIT_FAILED").With("operation", "dummy hash").Wrap(err)
	}

	return &Orchestrator{
		principals: deps.Principals,
		attempts:   deps.Attempts,
		tx:         deps.Tx,
		codec:      deps.Codec,
		throttler:  deps.Throttle,
		hasher:     deps.Hasher,
		mailer:     deps.Mailer,
		recorder:   deps.Recorder,
		lockout:    NewLockoutTracker(deps.Principals, deps.Recorder, cfg.Lockout, opts...),
		ledger:     ledger,
		vault:      vault,
		strategies: cfg.Strategies,
		logger:     st.logger,
		now:        st.now,
		tracer:     st.tracer,
		dummyHash:  dummy,
	}, nil
}

// Lockout exposes the lockout tracker.
func (o *Orchestrator) Lockout() *LockoutTracker { return o.lockout }

// Ledger exposes the refresh ledger.
func (o *Orchestrator) Ledger() *RefreshLedger { return o.ledger }

// begin starts a span for flow and returns the derived context and a
// function that must be deferred with the flow's error.
func (o *Orchestrator) begin(ctx context.Context, flow string, meta RequestMeta) (context.Context, func(*error)) {
	start := time.Now()
	if meta.RequestID != "" {
		ctx = logging.WithRequestID(ctx, meta.RequestID)
	}
	ctx, span := o.tracer.Start(ctx, "auth."+flow, trace.WithAttributes(
		attribute.String("auth.flow", flow),
		attribute.String("client.address", meta.IPAddress),
	))
	return ctx, func(errp *error) {
		err := *errp
		observeFlow(flow, start, err)
		if err != nil {
			span.SetAttributes(attribute.String("auth.error_code", Code(err)))
			if !IsExpected(err) {
				span.RecordError(err)
				span.SetStatus(codes.Error, "internal error")
				errutil.LogErrorContext(ctx, o.logger, "auth flow failed", err, "flow", flow)
			}
		}
		span.End()
	}
}

func (o *Orchestrator) throttle(s throttle.Strategy, key string) error {
	if key == "" {
		key = "unknown"
	}
	res := o.throttler.Check(s, key)
	if !res.Allowed {
		return errRateLimited(s.Name, res.RetryAfter)
	}
	return nil
}

func (o *Orchestrator) flagSuspicious(ctx context.Context, meta RequestMeta, fields map[string]string) {
	for name, value := range fields {
		if LooksSuspicious(value) {
			emit(ctx, o.recorder, o.logger, meta.event(audit.EventSuspiciousInput, nil, map[string]any{
				"field": name,
				"type":  "injection_pattern",
			}))
		}
	}
}

func (o *Orchestrator) logAttempt(ctx context.Context, email string, meta RequestMeta, reason string) {
	if o.attempts == nil {
		return
	}
	err := o.attempts.Record(ctx, LoginAttempt{
		Email:       email,
		IPAddress:   meta.IPAddress,
		Success:     reason == AttemptSuccess,
		Reason:      reason,
		AttemptedAt: o.now(),
	})
	if err != nil {
		errutil.LogErrorContext(ctx, o.logger, "record login attempt", err, "reason", reason)
	}
}

// issueSession creates a new refresh family and access token for p.
func (o *Orchestrator) issueSession(ctx context.Context, p *Principal, meta RequestMeta) (*Session, error) {
	refresh, err := o.ledger.IssueNew(ctx, p, meta)
	if err != nil {
		return nil, err
	}
	return o.sessionWith(p, refresh)
}

func (o *Orchestrator) sessionWith(p *Principal, refresh *IssuedRefresh) (*Session, error) {
	access, exp, err := o.codec.IssueAccess(p.Subject())
	if err != nil {
		return nil, oops.Code("SESSION_ISSUE_FAILED").With("principal_id", p.ID.String()).Wrap(err)
	}
	return &Session{
		Principal: p.View(),
		Tokens: TokenPair{
			AccessToken:      access,
			RefreshToken:     refresh.Token,
			ExpiresIn:        o.codec.ExpiresIn(),
			AccessExpiresAt:  exp,
			RefreshExpiresAt: refresh.Record.ExpiresAt,
		},
	}, nil
}

// Register creates a principal and signs it in.
func (o *Orchestrator) Register(ctx context.Context, in RegisterInput, meta RequestMeta) (_ *Session, err error) {
	ctx, end := o.begin(ctx, "register", meta)
	defer end(&err)

	if err := o.throttle(o.strategies.Register, meta.IPAddress); err != nil {
		return nil, err
	}
	o.flagSuspicious(ctx, meta, map[string]string{"email": in.Email, "display_name": in.DisplayName})

	if in.Role == "" {
		in.Role = RoleClient
	}
	var violations []string
	if v := EmailViolation(in.Email); v != "" {
		violations = append(violations, v)
	}
	name := strings.TrimSpace(in.DisplayName)
	if name == "" {
		violations = append(violations, "display name is required")
	} else if len([]rune(name)) > MaxDisplayNameLength {
		violations = append(violations, "display name must be at most 100 characters")
	}
	if !in.Role.Valid() {
		violations = append(violations, "role must be one of client, worker")
	}
	violations = append(violations, PasswordViolations(in.Password)...)
	if len(violations) > 0 {
		return nil, errValidation(violations...)
	}

	hash, err := o.hasher.Hash(in.Password)
	if err != nil {
		return nil, oops.Code("REGISTER_FAILED").With("operation", "hash password").Wrap(err)
	}
	p, err := NewPrincipal(in.Email, name, hash, in.Role, o.now())
	if err != nil {
		return nil, oops.Code("REGISTER_FAILED").Wrap(err)
	}

	var refresh *IssuedRefresh
	err = o.tx.InTransaction(ctx, func(ctx context.Context) error {
		if err := o.principals.Create(ctx, p); err != nil {
			if errors.Is(err, ErrDuplicateEmail) {
				return oops.Code(CodeConflict).Errorf("email already registered")
			}
			return oops.Code("REGISTER_FAILED").With("operation", "create principal").Wrap(err)
		}
		var err error
		refresh, err = o.ledger.IssueNew(ctx, p, meta)
		return err
	})
	if err != nil {
		return nil, err
	}

	session, err := o.sessionWith(p, refresh)
	if err != nil {
		return nil, err
	}
	emit(ctx, o.recorder, o.logger, meta.event(audit.EventRegister, p, map[string]any{"role": string(p.Role)}))
	return session, nil
}

// Login verifies email and password and signs the principal in.
//
// Unknown email and wrong password produce the same error. A locked
// account is refused before the password is checked.
func (o *Orchestrator) Login(ctx context.Context, email, password string, meta RequestMeta) (_ *Session, err error) {
	ctx, end := o.begin(ctx, "login", meta)
	defer end(&err)

	if err := o.throttle(o.strategies.Login, meta.IPAddress); err != nil {
		return nil, err
	}
	o.flagSuspicious(ctx, meta, map[string]string{"email": email})
	email = NormalizeEmail(email)

	p, err := o.principals.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return nil, oops.Code("LOGIN_FAILED").With("operation", "get principal by email").Wrap(err)
		}
		//nolint:errcheck // result is discarded; the call only equalizes timing
		_, _ = o.hasher.Verify(password, o.dummyHash)
		o.logAttempt(ctx, email, meta, AttemptUnknownEmail)
		failed := meta.event(audit.EventLoginFailed, nil, map[string]any{"reason": AttemptUnknownEmail})
		failed.Email = audit.MaskEmail(email)
		emit(ctx, o.recorder, o.logger, failed)
		return nil, errInvalidCredentials()
	}

	status, err := o.lockout.Check(ctx, p)
	if err != nil {
		return nil, err
	}
	if status == Locked {
		o.logAttempt(ctx, email, meta, AttemptAccountLocked)
		emit(ctx, o.recorder, o.logger, meta.event(audit.EventLoginFailed, p, map[string]any{"reason": AttemptAccountLocked}))
		return nil, oops.Code(CodeAccountLocked).
			With("locked_until", p.LockedUntil.UTC()).
			Errorf("account is temporarily locked")
	}

	ok, err := o.hasher.Verify(password, p.PasswordHash)
	if err != nil {
		return nil, oops.Code("LOGIN_FAILED").With("operation", "verify password").Wrap(err)
	}
	if !ok {
		state, err := o.lockout.RecordFailure(ctx, p, meta)
		if err != nil {
			return nil, err
		}
		o.logAttempt(ctx, email, meta, AttemptInvalidPassword)
		emit(ctx, o.recorder, o.logger, meta.event(audit.EventLoginFailed, p, map[string]any{
			"reason":   AttemptInvalidPassword,
			"attempts": state.FailedLoginAttempts,
		}))
		return nil, errInvalidCredentials()
	}

	if !p.IsActive {
		o.logAttempt(ctx, email, meta, AttemptAccountDeactivated)
		emit(ctx, o.recorder, o.logger, meta.event(audit.EventLoginFailed, p, map[string]any{"reason": AttemptAccountDeactivated}))
		return nil, oops.Code(CodeAccountDeactivated).Errorf("account is deactivated")
	}

	if err := o.lockout.RecordSuccess(ctx, p); err != nil {
		return nil, err
	}
	o.upgradeHash(ctx, p, password)

	session, err := o.issueSession(ctx, p, meta)
	if err != nil {
		return nil, err
	}
	o.logAttempt(ctx, email, meta, AttemptSuccess)
	emit(ctx, o.recorder, o.logger, meta.event(audit.EventLoginSuccess, p, nil))
	return session, nil
}

// upgradeHash rehashes a legacy password hash. Failure is logged; the
// login still succeeds.
func (o *Orchestrator) upgradeHash(ctx context.Context, p *Principal, password string) {
	if !o.hasher.NeedsUpgrade(p.PasswordHash) {
		return
	}
	hash, err := o.hasher.Hash(password)
	if err == nil {
		err = o.principals.UpdatePasswordHash(ctx, p.ID, hash)
	}
	if err != nil {
		errutil.LogErrorContext(ctx, o.logger, "upgrade password hash", err, "principal_id", p.ID.String())
		return
	}
	p.PasswordHash = hash
}

// Refresh rotates a refresh token.
func (o *Orchestrator) Refresh(ctx context.Context, rawToken string, meta RequestMeta) (_ *Session, err error) {
	ctx, end := o.begin(ctx, "refresh", meta)
	defer end(&err)

	if err := o.throttle(o.strategies.Refresh, meta.IPAddress); err != nil {
		return nil, err
	}
	p, pair, err := o.ledger.Rotate(ctx, rawToken, meta)
	if err != nil {
		return nil, err
	}
	emit(ctx, o.recorder, o.logger, meta.event(audit.EventTokenRefresh, p, nil))
	return &Session{Principal: p.View(), Tokens: *pair}, nil
}

// ChangePassword replaces the password of an authenticated principal and
// signs out every device.
func (o *Orchestrator) ChangePassword(ctx context.Context, principalID ulid.ULID, current, next string, meta RequestMeta) (err error) {
	ctx, end := o.begin(ctx, "change_password", meta)
	defer end(&err)

	if err := o.throttle(o.strategies.PasswordChange, "principal:"+principalID.String()); err != nil {
		return err
	}
	if err := ValidatePassword(next); err != nil {
		return err
	}

	p, err := o.principals.GetByID(ctx, principalID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return errInvalidCredentials()
		}
		return oops.Code("CHANGE_PASSWORD_FAILED").With("operation", "get principal").Wrap(err)
	}
	if !p.IsActive {
		return oops.Code(CodeAccountDeactivated).Errorf("account is deactivated")
	}

	ok, err := o.hasher.Verify(current, p.PasswordHash)
	if err != nil {
		return oops.Code("CHANGE_PASSWORD_FAILED").With("operation", "verify password").Wrap(err)
	}
	if !ok {
		return errInvalidCredentials()
	}
	if current == next {
		return errValidation("new password must differ from the current password")
	}

	hash, err := o.hasher.Hash(next)
	if err != nil {
		return oops.Code("CHANGE_PASSWORD_FAILED").With("operation", "hash password").Wrap(err)
	}

	var revoked int64
	err = o.tx.InTransaction(ctx, func(ctx context.Context) error {
		if err := o.principals.UpdatePasswordHash(ctx, p.ID, hash); err != nil {
			return oops.Code("CHANGE_PASSWORD_FAILED").With("operation", "update password").Wrap(err)
		}
		var err error
		revoked, err = o.ledger.RevokeAll(ctx, p.ID, RevokePasswordChanged)
		return err
	})
	if err != nil {
		return err
	}

	emit(ctx, o.recorder, o.logger, meta.event(audit.EventPasswordChanged, p, map[string]any{"revoked_sessions": revoked}))
	return nil
}

// ForgotPassword starts a password reset. It reports success whether or not
// the email belongs to an account; only throttling and malformed input are
// reported as errors.
func (o *Orchestrator) ForgotPassword(ctx context.Context, email string, meta RequestMeta) (err error) {
	ctx, end := o.begin(ctx, "forgot_password", meta)
	defer end(&err)

	if err := o.throttle(o.strategies.PasswordReset, meta.IPAddress); err != nil {
		return err
	}
	if v := EmailViolation(email); v != "" {
		return errValidation(v)
	}
	email = NormalizeEmail(email)

	p, lookupErr := o.principals.GetByEmail(ctx, email)
	if lookupErr != nil {
		if !errors.Is(lookupErr, ErrNotFound) {
			errutil.LogErrorContext(ctx, o.logger, "forgot password lookup", lookupErr)
		}
		return nil
	}
	if !p.IsActive {
		return nil
	}

	send := ResetSender(func(ctx context.Context, rawToken, displayName string) error {
		return o.mailer.SendPasswordReset(ctx, p.Email, rawToken, displayName)
	})
	if r, ok := o.mailer.(MailReserver); ok {
		reserved, reserveErr := r.ReservePasswordReset(ctx, p.Email)
		if reserveErr != nil {
			errutil.LogErrorContext(ctx, o.logger, "reserve password reset mail", reserveErr, "principal_id", p.ID.String())
			emit(ctx, o.recorder, o.logger, meta.event(audit.EventPasswordResetRequested, p,
				map[string]any{"mail_throttled": true}))
			return nil
		}
		send = reserved
	}

	token, issueErr := o.vault.Issue(ctx, p)
	if issueErr != nil {
		errutil.LogErrorContext(ctx, o.logger, "issue reset token", issueErr, "principal_id", p.ID.String())
		return nil
	}
	if sendErr := send(ctx, token, p.DisplayName); sendErr != nil {
		errutil.LogErrorContext(ctx, o.logger, "send password reset", sendErr, "principal_id", p.ID.String())
	}

	emit(ctx, o.recorder, o.logger, meta.event(audit.EventPasswordResetRequested, p, nil))
	return nil
}

// ResetPassword redeems a reset token, sets the new password and signs out
// every device.
func (o *Orchestrator) ResetPassword(ctx context.Context, rawToken, newPassword string, meta RequestMeta) (err error) {
	ctx, end := o.begin(ctx, "reset_password", meta)
	defer end(&err)

	if err := o.throttle(o.strategies.PasswordReset, meta.IPAddress); err != nil {
		return err
	}
	if err := ValidatePassword(newPassword); err != nil {
		return err
	}
	hash, err := o.hasher.Hash(newPassword)
	if err != nil {
		return oops.Code("RESET_PASSWORD_FAILED").With("operation", "hash password").Wrap(err)
	}

	principalID, err := o.vault.ConsumeAndReset(ctx, rawToken, hash)
	if err != nil {
		return err
	}

	e := meta.event(audit.EventPasswordResetCompleted, nil, nil)
	e.PrincipalID = principalID.String()
	emit(ctx, o.recorder, o.logger, e)
	return nil
}

// Logout revokes one refresh token of the principal. Unknown tokens are
// ignored.
func (o *Orchestrator) Logout(ctx context.Context, principalID ulid.ULID, rawRefresh string, meta RequestMeta) (err error) {
	ctx, end := o.begin(ctx, "logout", meta)
	defer end(&err)

	revoked, err := o.ledger.Revoke(ctx, principalID, rawRefresh, RevokeLogout)
	if err != nil {
		return err
	}
	e := meta.event(audit.EventLogout, nil, map[string]any{"revoked": revoked})
	e.PrincipalID = principalID.String()
	emit(ctx, o.recorder, o.logger, e)
	return nil
}

// LogoutAll revokes every refresh token of the principal and returns how
// many were live.
func (o *Orchestrator) LogoutAll(ctx context.Context, principalID ulid.ULID, meta RequestMeta) (_ int64, err error) {
	ctx, end := o.begin(ctx, "logout_all", meta)
	defer end(&err)

	n, err := o.ledger.RevokeAll(ctx, principalID, RevokeLogoutAll)
	if err != nil {
		return 0, err
	}
	e := meta.event(audit.EventLogoutAll, nil, map[string]any{"revoked_sessions": n})
	e.PrincipalID = principalID.String()
	emit(ctx, o.recorder, o.logger, e)
	return n, nil
}

// Authenticate verifies an access token. It performs no I/O.
func (o *Orchestrator) Authenticate(accessToken string) (*Identity, error) {
	claims, err := o.codec.VerifyAccess(accessToken)
	if err != nil {
		return nil, err
	}
	id, err := ulid.Parse(claims.Subject)
	if err != nil {
		return nil, errTokenInvalid("malformed subject")
	}
	return &Identity{
		PrincipalID: id,
		Email:       claims.Email,
		Role:        Role(claims.Role),
		TokenID:     claims.ID,
		ExpiresAt:   claims.ExpiresAt.Time,
	}, nil
}

// Principal returns the caller-safe view of an authenticated principal. An
// account that no longer exists or was deactivated after the token was
// issued fails with TOKEN_INVALID.
func (o *Orchestrator) Principal(ctx context.Context, id ulid.ULID) (PrincipalView, error) {
	p, err := o.principals.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return PrincipalView{}, errTokenInvalid("principal not found")
		}
		return PrincipalView{}, oops.Code("PRINCIPAL_LOOKUP_FAILED").With("principal_id", id.String()).Wrap(err)
	}
	if !p.IsActive {
		return PrincipalView{}, errTokenInvalid("principal inactive")
	}
	return p.View(), nil
}

// Sessions lists the live refresh tokens of a principal.
func (o *Orchestrator) Sessions(ctx context.Context, principalID ulid.ULID) ([]SessionInfo, error) {
	recs, err := o.ledger.ListActive(ctx, principalID)
	if err != nil {
		return nil, err
	}
	out := make([]SessionInfo, 0, len(recs))
	for _, r := range recs {
		out = append(out, SessionInfo{
			ID:        r.ID.String(),
			FamilyID:  r.FamilyID,
			IssuedAt:  r.IssuedAt,
			ExpiresAt: r.ExpiresAt,
			IPAddress: r.IPAddress,
			UserAgent: r.UserAgent,
		})
	}
	return out, nil
}
