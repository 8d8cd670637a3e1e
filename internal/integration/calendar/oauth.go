// Package calendar connects a tenant's Google Calendar: the OAuth
// authorization-code flow, token refresh, and event pass-through.
package calendar

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/d9705996/artisan/internal/integration"
	"github.com/d9705996/artisan/internal/model"
	"github.com/d9705996/artisan/internal/store"
	"golang.org/x/oauth2"
	gcal "google.golang.org/api/calendar/v3"
)

const provider = "google"

// StateTTL bounds the time between AuthURL and the callback.
const StateTTL = 15 * time.Minute

var (
	// ErrInvalidState is returned when the callback state is forged,
	// malformed or expired.
	ErrInvalidState = errors.New("invalid oauth state")
	// ErrNotConnected is returned when the tenant has no usable grant.
	ErrNotConnected = errors.New("calendar not connected")
)

// Connections is the slice of the OAuth store the flow needs.
type Connections interface {
	Activate(ctx context.Context, c *model.OAuthConnection) error
	Active(ctx context.Context, tenantID, provider, service string) (*model.OAuthConnection, error)
	UpdateToken(ctx context.Context, id, accessToken, refreshToken string, expiresAt *time.Time) error
}

// Config holds the OAuth client registration.
type Config struct {
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	RedirectURL  string
	APIBase      string
	// StateSecret signs the state parameter.
	StateSecret string
}

// Service runs the OAuth flow and calls the Calendar API on behalf of a
// tenant.
type Service struct {
	oauth   *oauth2.Config
	secret  []byte
	conns   Connections
	http    *http.Client
	apiBase string
	now     func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source used for state expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New returns a Service. base may be nil.
func New(cfg Config, conns Connections, base *http.Client, opts ...Option) (*Service, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, integration.NotConfigured(provider, "GOOGLE_CLIENT_ID", "GOOGLE_CLIENT_SECRET")
	}
	if cfg.StateSecret == "" {
		return nil, errors.New("calendar: state secret is required")
	}
	if base == nil {
		base = integration.HTTPClient()
	}
	s := &Service{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
			RedirectURL: cfg.RedirectURL,
			Scopes:      []string{gcal.CalendarScope},
		},
		secret:  []byte(cfg.StateSecret),
		conns:   conns,
		http:    base,
		apiBase: cfg.APIBase,
		now:     time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// State is the payload carried through the provider redirect.
type State struct {
	TenantID string `json:"tenant_id"`
	Service  string `json:"service"`
	IssuedAt int64  `json:"iat"`
	Sig      string `json:"sig"`
}

func (s *Service) sign(st State) string {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%s\n%s\n%d", st.TenantID, st.Service, st.IssuedAt)
	return hex.EncodeToString(mac.Sum(nil))
}

// EncodeState returns the signed state for tenantID and service.
func (s *Service) EncodeState(tenantID, service string) string {
	st := State{TenantID: tenantID, Service: service, IssuedAt: s.now().Unix()}
	st.Sig = s.sign(st)
	raw, _ := json.Marshal(st)
	return base64.RawURLEncoding.EncodeToString(raw)
}

// DecodeState verifies raw and returns its payload.
func (s *Service) DecodeState(raw string) (State, error) {
	var st State
	b, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		return st, ErrInvalidState
	}
	if err := json.Unmarshal(b, &st); err != nil {
		return st, ErrInvalidState
	}
	if st.TenantID == "" || !hmac.Equal([]byte(st.Sig), []byte(s.sign(st))) {
		return st, ErrInvalidState
	}
	if s.now().Sub(time.Unix(st.IssuedAt, 0)) > StateTTL {
		return st, fmt.Errorf("%w: expired", ErrInvalidState)
	}
	return st, nil
}

// AuthURL returns the consent URL. Offline access with a forced consent
// prompt makes the provider return a refresh token every time.
func (s *Service) AuthURL(tenantID, service string) (string, error) {
	if service != model.ServiceCalendar {
		return "", fmt.Errorf("unsupported service %q", service)
	}
	return s.oauth.AuthCodeURL(s.EncodeState(tenantID, service),
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	), nil
}

// HandleCallback exchanges code and stores the grant as the tenant's
// active connection.
func (s *Service) HandleCallback(ctx context.Context, code, rawState string) (*model.OAuthConnection, error) {
	st, err := s.DecodeState(rawState)
	if err != nil {
		return nil, err
	}
	if code == "" {
		return nil, errors.New("authorization code missing")
	}
	tok, err := s.oauth.Exchange(s.clientCtx(ctx), code)
	if err != nil {
		return nil, upstream(err)
	}
	conn := &model.OAuthConnection{
		TenantID:     st.TenantID,
		Provider:     model.ProviderGoogle,
		Service:      st.Service,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    expiry(tok),
		Metadata:     map[string]any{"calendar_id": "primary"},
	}
	if err := s.conns.Activate(ctx, conn); err != nil {
		return nil, err
	}
	return conn, nil
}

// TokenFor returns a valid token for the tenant's active calendar grant,
// refreshing and persisting it when it has expired.
func (s *Service) TokenFor(ctx context.Context, tenantID string) (*oauth2.Token, *model.OAuthConnection, error) {
	conn, err := s.conns.Active(ctx, tenantID, model.ProviderGoogle, model.ServiceCalendar)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, ErrNotConnected
	}
	if err != nil {
		return nil, nil, err
	}
	tok := &oauth2.Token{AccessToken: conn.AccessToken, RefreshToken: conn.RefreshToken, TokenType: "Bearer"}
	if conn.ExpiresAt != nil {
		tok.Expiry = *conn.ExpiresAt
	}
	if tok.Valid() {
		return tok, conn, nil
	}
	if tok.RefreshToken == "" {
		return nil, nil, fmt.Errorf("%w: token expired and no refresh token", ErrNotConnected)
	}
	fresh, err := s.oauth.TokenSource(s.clientCtx(ctx), tok).Token()
	if err != nil {
		return nil, nil, upstream(err)
	}
	if err := s.conns.UpdateToken(ctx, conn.ID, fresh.AccessToken, fresh.RefreshToken, expiry(fresh)); err != nil {
		return nil, nil, err
	}
	conn.AccessToken = fresh.AccessToken
	if fresh.RefreshToken != "" {
		conn.RefreshToken = fresh.RefreshToken
	}
	conn.ExpiresAt = expiry(fresh)
	return fresh, conn, nil
}

func (s *Service) clientCtx(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, s.http)
}

func expiry(tok *oauth2.Token) *time.Time {
	if tok.Expiry.IsZero() {
		return nil
	}
	t := tok.Expiry.UTC()
	return &t
}

func upstream(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		msg := re.ErrorDescription
		if msg == "" {
			msg = re.ErrorCode
		}
		if msg == "" {
			msg = strings.TrimSpace(string(re.Body))
		}
		status := 0
		if re.Response != nil {
			status = re.Response.StatusCode
		}
		return &integration.UpstreamError{Provider: provider, Status: status, Message: msg}
	}
	return fmt.Errorf("%s: %w", provider, err)
}
