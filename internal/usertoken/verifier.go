// Package usertoken verifies bearer tokens issued by the external identity
// provider and extracts the caller's user ID.
package usertoken

import (
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

const (
	defaultLeeway       = 30 * time.Second
	defaultJWKSCacheTTL = 5 * time.Minute
)

// Unknown kids refetch the key set at most this often.
const defaultMinRefreshInterval = 30 * time.Second

var (
	errUnknownKey = errors.New("unknown token key")
	// ErrNoSubject is returned for a valid token without a "sub" claim.
	ErrNoSubject = errors.New("token subject missing")
)

// Config configures verification. Exactly one of JWKSURL (RS256) or
// Secret (HS256) must be set.
type Config struct {
	JWKSURL    string
	Secret     string
	Issuer     string
	Audience   string
	Leeway     time.Duration
	HTTPClient *http.Client

	// MinRefreshInterval bounds how often unknown kids may refetch the
	// key set. Defaults to 30s.
	MinRefreshInterval time.Duration
}

// Verifier validates user access tokens and extracts the subject.
type Verifier struct {
	issuer   string
	audience string
	leeway   time.Duration
	secret   []byte

	jwksURL     string
	httpClient  *http.Client
	minRefresh  time.Duration
	now         func() time.Time
	mu          sync.RWMutex
	rsaKeys     map[string]*rsa.PublicKey
	keysExpire  time.Time
	lastRefresh time.Time
}

// NewVerifier creates a token verifier. In JWKS mode the key set is fetched
// eagerly so misconfiguration fails at startup.
func NewVerifier(cfg Config) (*Verifier, error) {
	jwksURL := strings.TrimSpace(cfg.JWKSURL)
	secret := strings.TrimSpace(cfg.Secret)
	switch {
	case jwksURL == "" && secret == "":
		return nil, errors.New("token verifier requires jwksURL or secret")
	case jwksURL != "" && secret != "":
		return nil, errors.New("token verifier accepts only one of jwksURL or secret")
	}
	leeway := cfg.Leeway
	if leeway <= 0 {
		leeway = defaultLeeway
	}
	v := &Verifier{
		issuer:   strings.TrimSpace(cfg.Issuer),
		audience: strings.TrimSpace(cfg.Audience),
		leeway:   leeway,
		now:      time.Now,
	}
	if secret != "" {
		v.secret = []byte(secret)
		return v, nil
	}
	v.jwksURL = jwksURL
	v.minRefresh = cfg.MinRefreshInterval
	if v.minRefresh <= 0 {
		v.minRefresh = defaultMinRefreshInterval
	}
	v.httpClient = cfg.HTTPClient
	if v.httpClient == nil {
		v.httpClient = &http.Client{Timeout: 5 * time.Second}
	}
	if err := v.refreshJWKS(); err != nil {
		return nil, err
	}
	return v, nil
}

// VerifySubject validates the token and returns the subject user ID.
func (v *Verifier) VerifySubject(token string) (string, error) {
	var (
		claims jwt.RegisteredClaims
		err    error
	)
	if v.secret != nil {
		claims, err = v.parse(token, jwt.SigningMethodHS256.Alg(), func(*jwt.Token) (any, error) {
			return v.secret, nil
		})
	} else {
		claims, err = v.verifyJWKS(token)
	}
	if err != nil {
		return "", err
	}
	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return "", ErrNoSubject
	}
	return subject, nil
}

func (v *Verifier) verifyJWKS(token string) (jwt.RegisteredClaims, error) {
	claims, err := v.parse(token, jwt.SigningMethodRS256.Alg(), v.lookupKey)
	if err == nil {
		return claims, nil
	}
	if !errors.Is(err, errUnknownKey) && !v.keysExpired() {
		return claims, err
	}
	if !v.claimRefresh() {
		return claims, err
	}
	if refreshErr := v.refreshJWKS(); refreshErr != nil {
		return claims, refreshErr
	}
	return v.parse(token, jwt.SigningMethodRS256.Alg(), v.lookupKey)
}

func (v *Verifier) parse(token, alg string, keyFunc jwt.Keyfunc) (jwt.RegisteredClaims, error) {
	claims := jwt.RegisteredClaims{}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{alg}),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}
	parsed, err := jwt.ParseWithClaims(token, &claims, keyFunc, opts...)
	if err != nil {
		return claims, err
	}
	if !parsed.Valid {
		return claims, errors.New("invalid token")
	}
	return claims, nil
}

func (v *Verifier) lookupKey(t *jwt.Token) (any, error) {
	kid, _ := t.Header["kid"].(string)
	kid = strings.TrimSpace(kid)
	if kid == "" {
		return nil, errUnknownKey
	}
	v.mu.RLock()
	key, ok := v.rsaKeys[kid]
	v.mu.RUnlock()
	if !ok {
		return nil, errUnknownKey
	}
	return key, nil
}

func (v *Verifier) keysExpired() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.now().UTC().After(v.keysExpire)
}

// claimRefresh reserves the next refetch slot, or reports false when the
// last one was too recent.
func (v *Verifier) claimRefresh() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	now := v.now().UTC()
	if !v.lastRefresh.IsZero() && now.Sub(v.lastRefresh) < v.minRefresh {
		return false
	}
	v.lastRefresh = now
	return true
}

func (v *Verifier) refreshJWKS() error {
	resp, err := v.httpClient.Get(v.jwksURL)
	if err != nil {
		return fmt.Errorf("fetch jwks: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch jwks: status %d", resp.StatusCode)
	}

	var payload struct {
		Keys []struct {
			Kty string `json:"kty"`
			Kid string `json:"kid"`
			N   string `json:"n"`
			E   string `json:"e"`
		} `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return fmt.Errorf("decode jwks: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(payload.Keys))
	for _, k := range payload.Keys {
		kid := strings.TrimSpace(k.Kid)
		if !strings.EqualFold(strings.TrimSpace(k.Kty), "RSA") || kid == "" {
			continue
		}
		pub, err := parseRSAPublicKey(k.N, k.E)
		if err != nil {
			continue
		}
		keys[kid] = pub
	}
	if len(keys) == 0 {
		return errors.New("jwks contains no usable rsa keys")
	}

	ttl := parseCacheMaxAge(resp.Header.Get("Cache-Control"))
	if ttl <= 0 {
		ttl = defaultJWKSCacheTTL
	}
	v.mu.Lock()
	v.rsaKeys = keys
	now := v.now().UTC()
	v.keysExpire = now.Add(ttl)
	if v.lastRefresh.IsZero() {
		v.lastRefresh = now
	}
	v.mu.Unlock()
	return nil
}

func parseRSAPublicKey(nRaw, eRaw string) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(nRaw))
	if err != nil {
		return nil, err
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(eRaw))
	if err != nil {
		return nil, err
	}
	n := new(big.Int).SetBytes(nBytes)
	e := new(big.Int).SetBytes(eBytes)
	if n.Sign() <= 0 || !e.IsInt64() || e.Int64() <= 0 {
		return nil, errors.New("invalid rsa key")
	}
	return &rsa.PublicKey{N: n, E: int(e.Int64())}, nil
}

func parseCacheMaxAge(cacheControl string) time.Duration {
	for _, part := range strings.Split(cacheControl, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		raw, ok := strings.CutPrefix(part, "max-age=")
		if !ok {
			continue
		}
		secs, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil || secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	return 0
}
