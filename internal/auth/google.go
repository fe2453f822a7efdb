// Package auth signs users in with Google and hands the UI a session token whose subject
// becomes the owner key for submissions.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	sharedauth "resume-critique/internal/shared/auth"
	"resume-critique/internal/shared/server/middleware"
	"resume-critique/internal/shared/server/respond"
	"resume-critique/internal/shared/telemetry"
	"resume-critique/internal/shared/util"
)

const (
	defaultUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"
	ownerPrefix        = "google:"
	stateTTL           = 5 * time.Minute
	maxPendingStates   = 1024
)

// TokenSigner issues session tokens.
type TokenSigner interface {
	Sign(claims sharedauth.Claims) (string, error)
}

// GoogleConfig is the OAuth client registration plus where the UI expects to land.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	UIRedirect   string
}

func (c GoogleConfig) complete() bool {
	return c.ClientID != "" && c.ClientSecret != "" && c.RedirectURL != "" && c.UIRedirect != ""
}

// GoogleService runs the authorization-code flow and exchanges a Google profile for a
// session token whose subject is "google:<id>".
type GoogleService struct {
	cfg         GoogleConfig
	oauth       *oauth2.Config
	signer      TokenSigner
	states      *pendingStates
	userInfoURL string
}

// NewGoogleService builds a GoogleService. An incomplete config is allowed; the routes then
// answer auth_not_configured.
func NewGoogleService(cfg GoogleConfig, signer TokenSigner) *GoogleService {
	return &GoogleService{
		cfg: cfg,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     google.Endpoint,
		},
		signer:      signer,
		states:      newPendingStates(stateTTL, maxPendingStates, time.Now),
		userInfoURL: defaultUserInfoURL,
	}
}

// RegisterRoutes attaches the sign-in routes.
func (s *GoogleService) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/auth/google/start", s.start)
	rg.GET("/auth/google/callback", s.callback)
}

func (s *GoogleService) ready(c *gin.Context) bool {
	if s.cfg.complete() && s.signer != nil {
		return true
	}
	respond.Error(c, http.StatusInternalServerError, "auth_not_configured", "Google sign-in is not configured", nil)
	return false
}

func (s *GoogleService) start(c *gin.Context) {
	if !s.ready(c) {
		return
	}
	state := uuid.NewString()
	s.states.add(state)
	c.Redirect(http.StatusFound, s.oauth.AuthCodeURL(state))
}

func (s *GoogleService) callback(c *gin.Context) {
	if !s.ready(c) {
		return
	}
	state := c.Query("state")
	if state == "" || !s.states.take(state) {
		respond.Error(c, http.StatusBadRequest, "invalid_request", "invalid or expired state", nil)
		return
	}
	// The user declined or Google rejected the request; let the UI show it.
	if denied := c.Query("error"); denied != "" {
		telemetry.Info("auth.google.denied", map[string]any{"reason": util.Truncate(denied, 64)})
		s.redirectToUI(c, url.Values{"error": {denied}})
		return
	}
	code := c.Query("code")
	if code == "" {
		respond.Error(c, http.StatusBadRequest, "invalid_request", "missing code", nil)
		return
	}

	claims, err := s.signIn(c.Request.Context(), code)
	if err != nil {
		telemetry.Warn("auth.google.sign_in_failed", map[string]any{
			"request_id": middleware.RequestIDFromContext(c),
			"error":      util.SanitizeError(err),
		})
		respond.Error(c, http.StatusBadGateway, "auth_failed", "Google sign-in failed", nil)
		return
	}
	token, err := s.signer.Sign(claims)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to issue token", nil)
		return
	}

	telemetry.Info("auth.google.signed_in", map[string]any{"owner_hash": util.ShortHash(claims.Sub)})
	s.redirectToUI(c, url.Values{"token": {token}})
}

// signIn trades the code for a token and the token for the profile behind it.
func (s *GoogleService) signIn(ctx context.Context, code string) (sharedauth.Claims, error) {
	tok, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		return sharedauth.Claims{}, fmt.Errorf("exchange code: %w", err)
	}
	profile, err := s.fetchProfile(ctx, tok)
	if err != nil {
		return sharedauth.Claims{}, err
	}
	return sharedauth.Claims{
		Sub:     ownerPrefix + profile.subject(),
		Email:   profile.Email,
		Name:    profile.Name,
		Picture: profile.Picture,
	}, nil
}

type googleProfile struct {
	Sub     string `json:"sub"`
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// subject prefers the OpenID "sub"; the v2 userinfo endpoint only sends "id".
func (p googleProfile) subject() string {
	if p.Sub != "" {
		return p.Sub
	}
	return p.ID
}

func (s *GoogleService) fetchProfile(ctx context.Context, tok *oauth2.Token) (googleProfile, error) {
	resp, err := s.oauth.Client(ctx, tok).Get(s.userInfoURL)
	if err != nil {
		return googleProfile{}, fmt.Errorf("userinfo: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return googleProfile{}, fmt.Errorf("userinfo status %d", resp.StatusCode)
	}

	var p googleProfile
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return googleProfile{}, fmt.Errorf("decode userinfo: %w", err)
	}
	if strings.TrimSpace(p.subject()) == "" {
		return googleProfile{}, errors.New("userinfo has no subject")
	}
	return p, nil
}

// redirectToUI sends the browser back to the UI with params in the URL fragment, which
// browsers never send to servers, so tokens stay out of access logs.
func (s *GoogleService) redirectToUI(c *gin.Context, params url.Values) {
	u, err := url.Parse(s.cfg.UIRedirect)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "invalid UI redirect", nil)
		return
	}
	u.Fragment = ""
	c.Redirect(http.StatusFound, u.String()+"#"+params.Encode())
}

// pendingStates holds OAuth states between start and callback. Each state is single-use and
// expires after ttl; the set is capped so unauthenticated /start calls cannot grow it unbounded.
type pendingStates struct {
	mu    sync.Mutex
	ttl   time.Duration
	limit int
	now   func() time.Time
	items map[string]time.Time
}

func newPendingStates(ttl time.Duration, limit int, now func() time.Time) *pendingStates {
	return &pendingStates{ttl: ttl, limit: limit, now: now, items: make(map[string]time.Time)}
}

func (p *pendingStates) add(state string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now()
	if len(p.items) >= p.limit {
		p.pruneLocked(now)
	}
	if len(p.items) >= p.limit {
		// Still full of live states: drop the one closest to expiry.
		var oldest string
		var oldestExp time.Time
		for k, exp := range p.items {
			if oldest == "" || exp.Before(oldestExp) {
				oldest, oldestExp = k, exp
			}
		}
		delete(p.items, oldest)
	}
	p.items[state] = now.Add(p.ttl)
}

func (p *pendingStates) take(state string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	exp, ok := p.items[state]
	delete(p.items, state)
	return ok && p.now().Before(exp)
}

func (p *pendingStates) pruneLocked(now time.Time) {
	for k, exp := range p.items {
		if !now.Before(exp) {
			delete(p.items, k)
		}
	}
}
