package usertoken

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

func claimsFor(subject string) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    "issuer-a",
		Audience:  jwt.ClaimStrings{"aud-a"},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	}
}

func TestNewVerifierRequiresExactlyOneMode(t *testing.T) {
	if _, err := NewVerifier(Config{}); err == nil {
		t.Fatalf("expected missing config to fail")
	}
	if _, err := NewVerifier(Config{JWKSURL: "http://x", Secret: "s"}); err == nil {
		t.Fatalf("expected both modes to fail")
	}
}

func TestSecretVerifySubject(t *testing.T) {
	v, err := NewVerifier(Config{Secret: "shh", Issuer: "issuer-a", Audience: "aud-a"})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claimsFor("user-a")).SignedString([]byte("shh"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if sub, err := v.VerifySubject(signed); err != nil || sub != "user-a" {
		t.Fatalf("verify: sub=%q err=%v", sub, err)
	}

	forged, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claimsFor("user-a")).SignedString([]byte("other"))
	if _, err := v.VerifySubject(forged); err == nil {
		t.Fatalf("expected wrong secret to fail")
	}

	noSub, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claimsFor("")).SignedString([]byte("shh"))
	if _, err := v.VerifySubject(noSub); err != ErrNoSubject {
		t.Fatalf("err = %v, want ErrNoSubject", err)
	}
}

func TestJWKSVerifySubjectAndRefreshOnUnknownKid(t *testing.T) {
	key1, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key1: %v", err)
	}
	key2, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key2: %v", err)
	}

	active := map[string]rsa.PublicKey{"kid-1": key1.PublicKey}
	jwksServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=60")
		keys := make([]map[string]string, 0, len(active))
		for kid, k := range active {
			keys = append(keys, toJWK(kid, k))
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"keys": keys})
	}))
	defer jwksServer.Close()

	v, err := NewVerifier(Config{JWKSURL: jwksServer.URL, Issuer: "issuer-a", Audience: "aud-a"})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	token1 := jwt.NewWithClaims(jwt.SigningMethodRS256, claimsFor("user-a"))
	token1.Header["kid"] = "kid-1"
	signed1, _ := token1.SignedString(key1)
	if sub, err := v.VerifySubject(signed1); err != nil || sub != "user-a" {
		t.Fatalf("verify token1 failed: sub=%s err=%v", sub, err)
	}

	// rotation happens after the refresh interval has passed
	later := time.Now().Add(time.Minute)
	v.now = func() time.Time { return later }
	active = map[string]rsa.PublicKey{"kid-2": key2.PublicKey}
	token2 := jwt.NewWithClaims(jwt.SigningMethodRS256, claimsFor("user-b"))
	token2.Header["kid"] = "kid-2"
	signed2, _ := token2.SignedString(key2)
	if sub, err := v.VerifySubject(signed2); err != nil || sub != "user-b" {
		t.Fatalf("verify token2 failed: sub=%s err=%v", sub, err)
	}
}

func TestJWKSUnknownKidRefreshIsThrottled(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	var fetches atomic.Int32
	jwksServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fetches.Add(1)
		w.Header().Set("Cache-Control", "max-age=3600")
		_ = json.NewEncoder(w).Encode(map[string]any{"keys": []map[string]string{toJWK("kid-1", key.PublicKey)}})
	}))
	defer jwksServer.Close()

	now := time.Now()
	v, err := NewVerifier(Config{JWKSURL: jwksServer.URL, MinRefreshInterval: 30 * time.Second})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	v.now = func() time.Time { return now }

	unknown := jwt.NewWithClaims(jwt.SigningMethodRS256, claimsFor("user-x"))
	unknown.Header["kid"] = "kid-unknown"
	signed, _ := unknown.SignedString(key)

	for i := 0; i < 20; i++ {
		if _, err := v.VerifySubject(signed); err == nil {
			t.Fatalf("expected unknown kid to fail")
		}
	}
	if got := fetches.Load(); got != 1 {
		t.Fatalf("jwks fetches = %d, want 1 (startup only)", got)
	}

	now = now.Add(31 * time.Second)
	_, _ = v.VerifySubject(signed)
	_, _ = v.VerifySubject(signed)
	if got := fetches.Load(); got != 2 {
		t.Fatalf("jwks fetches = %d, want 2 after the interval", got)
	}
}

func TestJWKSRejectsWrongAudience(t *testing.T) {
	key, _ := rsa.GenerateKey(rand.Reader, 2048)
	jwksServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"keys": []map[string]string{toJWK("kid-1", key.PublicKey)}})
	}))
	defer jwksServer.Close()

	v, err := NewVerifier(Config{JWKSURL: jwksServer.URL, Issuer: "issuer-a", Audience: "aud-b"})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claimsFor("user-1"))
	token.Header["kid"] = "kid-1"
	signed, _ := token.SignedString(key)
	if _, err := v.VerifySubject(signed); err == nil {
		t.Fatalf("expected audience mismatch to fail")
	}
}

func TestParseCacheMaxAge(t *testing.T) {
	if got := parseCacheMaxAge("public, max-age=120"); got != 2*time.Minute {
		t.Fatalf("max-age = %s", got)
	}
	if got := parseCacheMaxAge("no-store"); got != 0 {
		t.Fatalf("no max-age = %s", got)
	}
}

func toJWK(kid string, key rsa.PublicKey) map[string]string {
	return map[string]string{
		"kty": "RSA",
		"kid": kid,
		"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
		"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
	}
}
