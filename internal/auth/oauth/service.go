package oauth

import (
	"context"
	"net/http"
	"strings"
	"time"

	authconfig "github.com/smallbiznis/taskhub/internal/auth/config"
	obstracing "github.com/smallbiznis/taskhub/internal/observability/tracing"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const providerTimeout = 10 * time.Second

// Service drives the authorization-code flow against an external identity
// provider. It never touches the user store; the caller decides whether the
// returned identity may sign in or sign up.
type Service interface {
	RedirectURL(ctx context.Context, providerName string, req RedirectRequest) (*RedirectResult, error)
	Login(ctx context.Context, providerName string, req LoginRequest) (*LoginResult, error)
}

type RedirectRequest struct {
	RedirectURI string
}

type RedirectResult struct {
	URL          string
	State        string
	CodeVerifier string
}

type LoginRequest struct {
	Code         string
	RedirectURI  string
	CodeVerifier string
}

type LoginResult struct {
	ProviderName string
	AllowSignUp  bool
	Identity     Identity
}

type Params struct {
	fx.In

	Registry authconfig.AuthProviderRegistry
	Log      *zap.Logger
	Client   *http.Client `optional:"true"`
}

type service struct {
	registry authconfig.AuthProviderRegistry
	log      *zap.Logger
	client   *providerClient
}

func NewService(p Params) Service {
	httpClient := p.Client
	if httpClient == nil {
		httpClient = &http.Client{Timeout: providerTimeout}
	}
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &service{
		registry: p.Registry,
		log:      log.Named("auth.oauth"),
		client:   &providerClient{http: obstracing.WrapHTTPClient(httpClient)},
	}
}

func (s *service) RedirectURL(ctx context.Context, providerName string, req RedirectRequest) (*RedirectResult, error) {
	provider, err := s.provider(providerName)
	if err != nil {
		return nil, err
	}
	if provider.ClientID == "" || provider.AuthURL == "" {
		return nil, ErrInvalidProvider
	}
	callback := strings.TrimSpace(req.RedirectURI)
	if callback == "" {
		return nil, ErrInvalidRequest
	}

	pair, err := newFlowSecrets()
	if err != nil {
		return nil, err
	}
	target, err := authorizeURL(provider, callback, pair)
	if err != nil {
		return nil, err
	}

	s.log.Debug("redirecting to provider", zap.String("provider", provider.Type))
	return &RedirectResult{
		URL:          target,
		State:        pair.state,
		CodeVerifier: pair.verifier,
	}, nil
}

func (s *service) Login(ctx context.Context, providerName string, req LoginRequest) (*LoginResult, error) {
	provider, err := s.provider(providerName)
	if err != nil {
		return nil, err
	}
	code := strings.TrimSpace(req.Code)
	if code == "" {
		return nil, ErrInvalidRequest
	}
	if provider.TokenURL == "" || provider.APIURL == "" {
		return nil, ErrInvalidProvider
	}

	accessToken, err := s.client.exchange(ctx, provider, code, req.RedirectURI, req.CodeVerifier)
	if err != nil {
		s.log.Warn("code exchange failed", zap.String("provider", provider.Type), zap.Error(err))
		return nil, ErrUnauthorized
	}

	claims, err := s.client.userInfo(ctx, provider, accessToken)
	if err != nil {
		s.log.Warn("user info request failed", zap.String("provider", provider.Type), zap.Error(err))
		return nil, ErrUnauthorized
	}

	identity, err := identityFromClaims(claims, provider.TrustEmail)
	if err != nil {
		return nil, err
	}

	return &LoginResult{
		ProviderName: provider.Type,
		AllowSignUp:  provider.AllowSignUp,
		Identity:     identity,
	}, nil
}

// provider returns the active config for name, trimmed of stray whitespace.
func (s *service) provider(name string) (authconfig.AuthProviderConfig, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	cfg, ok := s.registry.Active[key]
	if key == "" || !ok || !cfg.Enabled {
		return authconfig.AuthProviderConfig{}, ErrProviderNotFound
	}
	cfg.ClientID = strings.TrimSpace(cfg.ClientID)
	cfg.ClientSecret = strings.TrimSpace(cfg.ClientSecret)
	cfg.AuthURL = strings.TrimSpace(cfg.AuthURL)
	cfg.TokenURL = strings.TrimSpace(cfg.TokenURL)
	cfg.APIURL = strings.TrimSpace(cfg.APIURL)
	return cfg, nil
}
