// Package bootstrap assembles the credential services from configuration and
// provides the operator tasks run by the command line tools.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/simple-credential/pkg/api"
	"github.com/tendant/simple-credential/pkg/auth"
	"github.com/tendant/simple-credential/pkg/config"
	"github.com/tendant/simple-credential/pkg/credential"
	"github.com/tendant/simple-credential/pkg/encoder"
	"github.com/tendant/simple-credential/pkg/identity"
	"github.com/tendant/simple-credential/pkg/loginattempt"
	"github.com/tendant/simple-credential/pkg/notification"
	"github.com/tendant/simple-credential/pkg/passwordhistory"
	"github.com/tendant/simple-credential/pkg/passwordpolicy"
	"github.com/tendant/simple-credential/pkg/random"
	"github.com/tendant/simple-credential/pkg/ratelimit"
	"github.com/tendant/simple-credential/pkg/rememberme"
	"github.com/tendant/simple-credential/pkg/session"
)

// Repositories are the storage backends the services run on.
type Repositories struct {
	Identities    identity.Repository
	Credentials   credential.Repository
	History       passwordhistory.Repository
	RememberMe    rememberme.Repository
	LoginAttempts loginattempt.Sink

	// NativeHasher backs the db_native encoder. Only consulted when
	// CREDENTIAL_DATABASE_HASH is enabled.
	NativeHasher encoder.NativeHasher
}

func PostgresRepositories(pool *pgxpool.Pool) Repositories {
	return Repositories{
		Identities:    identity.NewPostgresRepository(pool),
		Credentials:   credential.NewPostgresRepository(pool),
		History:       passwordhistory.NewPostgresRepository(pool),
		RememberMe:    rememberme.NewPostgresRepository(pool),
		LoginAttempts: loginattempt.NewPostgresSink(pool),
		NativeHasher:  encoder.NewPostgresNativeHasher(pool),
	}
}

func InMemoryRepositories() Repositories {
	return Repositories{
		Identities:    identity.NewInMemoryRepository(),
		Credentials:   credential.NewInMemoryRepository(),
		History:       passwordhistory.NewInMemoryRepository(),
		RememberMe:    rememberme.NewInMemoryRepository(),
		LoginAttempts: loginattempt.NewInMemorySink(),
	}
}

// Services is the fully wired credential subsystem.
type Services struct {
	Config        config.SecurityConfig
	Registry      *encoder.Registry
	Identities    *identity.Service
	Store         *credential.Store
	History       *passwordhistory.Log
	RememberMe    *rememberme.Manager
	Recorder      *loginattempt.Recorder
	Notifications *notification.NotificationManager
	Auth          *auth.Service
	Sessions      *session.Issuer
	TokenAuth     *jwtauth.JWTAuth
	Throttle      *ratelimit.Middleware
}

type options struct {
	notifiers map[notification.NotificationSystem]notification.Notifier
}

type Option func(*options)

// WithNotifier registers notifier for system in place of the configured
// SMTP delivery.
func WithNotifier(system notification.NotificationSystem, notifier notification.Notifier) Option {
	return func(o *options) {
		o.notifiers[system] = notifier
	}
}

// NewServices validates cfg and wires every service on top of repos.
func NewServices(cfg config.SecurityConfig, repos Repositories, opts ...Option) (*Services, error) {
	o := options{notifiers: map[notification.NotificationSystem]notification.Notifier{}}
	for _, opt := range opts {
		opt(&o)
	}

	salts := random.New()
	encoderOpts := cfg.Credential.EncoderOptions()
	if cfg.Credential.DatabaseHash {
		if repos.NativeHasher == nil {
			return nil, fmt.Errorf("database hashing is enabled but no native hasher is available")
		}
		encoderOpts = append(encoderOpts, encoder.WithNativeHasher(repos.NativeHasher))
	}
	registry, err := encoder.NewDefaultRegistry(cfg.Credential.DefaultAlgorithm, salts, encoderOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create encoder registry: %w", err)
	}
	if err := cfg.Validate(registry.Tags()); err != nil {
		return nil, err
	}

	lockoutPolicy, err := cfg.Lockout.Policy()
	if err != nil {
		return nil, err
	}
	tempTokenTTL, err := cfg.Credential.TempTokenDuration()
	if err != nil {
		return nil, err
	}
	field, err := cfg.Credential.IdentifierField()
	if err != nil {
		return nil, err
	}

	historyLog := passwordhistory.NewLog(repos.History, registry)
	store := credential.NewStore(repos.Credentials, registry, salts,
		credential.WithLockoutPolicy(lockoutPolicy),
		credential.WithTempTokenTTL(tempTokenTTL),
		credential.WithPasswordExpiryDays(cfg.Credential.PasswordExpiryDays),
		credential.WithHistory(historyLog),
	)
	rememberMe := rememberme.NewManager(repos.RememberMe, store, salts,
		rememberme.WithTokenExpiryDays(cfg.RememberMe.TokenExpiryDays),
		rememberme.WithDeviceExpiryDays(cfg.RememberMe.DeviceExpiryDays),
	)
	identities := identity.NewService(repos.Identities,
		identity.WithIdentifierField(field),
		identity.WithDependents(store, historyLog, rememberMe),
	)
	recorder := loginattempt.NewRecorder(repos.LoginAttempts,
		loginattempt.WithEnabled(cfg.Credential.LoginRecordingEnabled))

	notifications, err := newNotificationManager(cfg, o.notifiers)
	if err != nil {
		return nil, fmt.Errorf("failed to create notification manager: %w", err)
	}

	policy, err := cfg.PasswordComplexity.ToPasswordPolicy()
	if err != nil {
		return nil, err
	}
	authConfig, err := cfg.AuthConfig()
	if err != nil {
		return nil, err
	}
	authService := auth.NewService(authConfig, identities, store,
		auth.WithHistory(historyLog),
		auth.WithRecorder(recorder),
		auth.WithRememberMe(rememberMe),
		auth.WithPasswordPolicy(passwordpolicy.NewChecker(policy)),
		auth.WithNotifier(notifications),
	)

	sessionExpiry, err := cfg.Session.ExpiryDuration()
	if err != nil {
		return nil, err
	}
	rateLimit, err := cfg.RateLimit.ToRateLimitConfig()
	if err != nil {
		return nil, err
	}

	if authConfig.DefaultAdmin.Enabled() {
		slog.Warn("Default admin is enabled; do not use in production", "identifier", authConfig.DefaultAdmin.Identifier)
	}

	return &Services{
		Config:        cfg,
		Registry:      registry,
		Identities:    identities,
		Store:         store,
		History:       historyLog,
		RememberMe:    rememberMe,
		Recorder:      recorder,
		Notifications: notifications,
		Auth:          authService,
		Sessions: session.NewIssuer(cfg.Session.Secret,
			session.WithIssuer(cfg.Session.Issuer),
			session.WithExpiry(sessionExpiry),
		),
		TokenAuth: jwtauth.New("HS256", []byte(cfg.Session.Secret), nil),
		Throttle:  ratelimit.NewMiddleware(rateLimit),
	}, nil
}

func newNotificationManager(cfg config.SecurityConfig, notifiers map[notification.NotificationSystem]notification.Notifier) (*notification.NotificationManager, error) {
	var opts []notification.NotificationManagerOption
	if _, overridden := notifiers[notification.EmailSystem]; !overridden && cfg.Email.Enabled {
		opts = append(opts, notification.WithSMTP(cfg.Email.ToSMTPConfig()))
	}
	for system, notifier := range notifiers {
		opts = append(opts, notification.WithNotifier(system, notifier))
	}
	opts = append(opts, notification.WithDefaultTemplates())
	return notification.NewNotificationManager(opts...)
}

// Start runs the background maintenance of the services until ctx is done.
func (s *Services) Start(ctx context.Context) {
	s.Throttle.Start(ctx)
}

// Routes mounts the credential API on router.
func (s *Services) Routes(router chi.Router) {
	api.SetupRoutes(router, s.routerConfig())
}

// Handler returns the credential API as a standalone handler.
func (s *Services) Handler() http.Handler {
	return api.Handler(s.routerConfig())
}

func (s *Services) routerConfig() api.RouterConfig {
	return api.RouterConfig{
		Handle:    api.NewHandle(s.Auth, s.Sessions, api.WithSecureCookie(s.Config.Session.CookieSecure)),
		TokenAuth: s.TokenAuth,
		Throttle:  s.Throttle.Handler,
	}
}
