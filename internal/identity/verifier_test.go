package identity

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testProject = "pdfgate-test"

func newKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

func publicJWK(t *testing.T, key *rsa.PrivateKey, kid string) jwkset.JWK {
	t.Helper()
	jwk, err := jwkset.NewJWKFromKey(&key.PublicKey, jwkset.JWKOptions{
		Metadata: jwkset.JWKMetadataOptions{KID: kid, ALG: jwkset.AlgRS256, USE: jwkset.UseSig},
	})
	require.NoError(t, err)
	return jwk
}

// staticKeys builds an in-memory key set.
func staticKeys(t *testing.T, keys map[string]*rsa.PrivateKey) keyfunc.Keyfunc {
	t.Helper()
	store := jwkset.NewMemoryStorage()
	for kid, key := range keys {
		require.NoError(t, store.KeyWrite(context.Background(), publicJWK(t, key, kid)))
	}
	kf, err := keyfunc.New(keyfunc.Options{Storage: store})
	require.NoError(t, err)
	return kf
}

func sign(t *testing.T, key *rsa.PrivateKey, kid string, claims firebaseClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = kid
	s, err := tok.SignedString(key)
	require.NoError(t, err)
	return s
}

func validClaims() firebaseClaims {
	now := time.Now()
	return firebaseClaims{
		Email: "dev@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "uid-123",
			Issuer:    issuerPrefix + testProject,
			Audience:  jwt.ClaimStrings{testProject},
			IssuedAt:  jwt.NewNumericDate(now.Add(-time.Minute)),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
}

func TestVerify_Valid(t *testing.T) {
	key := newKey(t)
	v := NewFirebaseVerifier(testProject, staticKeys(t, map[string]*rsa.PrivateKey{"k1": key}))

	id, err := v.Verify(context.Background(), sign(t, key, "k1", validClaims()))
	require.NoError(t, err)
	assert.Equal(t, Identity{UID: "uid-123", Email: "dev@example.com"}, id)
}

func TestVerify_Rejections(t *testing.T) {
	key := newKey(t)
	other := newKey(t)

	tests := []struct {
		name  string
		token func() string
	}{
		{"empty", func() string { return "" }},
		{"garbage", func() string { return "not.a.jwt" }},
		{"wrong audience", func() string {
			c := validClaims()
			c.Audience = jwt.ClaimStrings{"other-project"}
			return sign(t, key, "k1", c)
		}},
		{"wrong issuer", func() string {
			c := validClaims()
			c.Issuer = "https://evil.example.com"
			return sign(t, key, "k1", c)
		}},
		{"expired", func() string {
			c := validClaims()
			c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
			return sign(t, key, "k1", c)
		}},
		{"missing expiry", func() string {
			c := validClaims()
			c.ExpiresAt = nil
			return sign(t, key, "k1", c)
		}},
		{"missing subject", func() string {
			c := validClaims()
			c.Subject = ""
			return sign(t, key, "k1", c)
		}},
		{"missing kid", func() string {
			tok := jwt.NewWithClaims(jwt.SigningMethodRS256, validClaims())
			s, err := tok.SignedString(key)
			require.NoError(t, err)
			return s
		}},
		{"unknown kid", func() string { return sign(t, key, "k2", validClaims()) }},
		{"wrong key", func() string { return sign(t, other, "k1", validClaims()) }},
		{"hmac algorithm", func() string {
			tok := jwt.NewWithClaims(jwt.SigningMethodHS256, validClaims())
			tok.Header["kid"] = "k1"
			s, err := tok.SignedString([]byte("secret"))
			require.NoError(t, err)
			return s
		}},
	}

	v := NewFirebaseVerifier(testProject, staticKeys(t, map[string]*rsa.PrivateKey{"k1": key}))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(context.Background(), tt.token())
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

// jwksServer publishes a JWK Set that tests can swap out.
type jwksServer struct {
	mu      sync.Mutex
	body    []byte
	fetches atomic.Int32
}

func newJWKSServer(t *testing.T, keys map[string]*rsa.PrivateKey) *jwksServer {
	s := &jwksServer{}
	s.set(t, keys)
	return s
}

func (s *jwksServer) set(t *testing.T, keys map[string]*rsa.PrivateKey) {
	t.Helper()
	store := jwkset.NewMemoryStorage()
	for kid, key := range keys {
		require.NoError(t, store.KeyWrite(context.Background(), publicJWK(t, key, kid)))
	}
	raw, err := store.JSONPublic(context.Background())
	require.NoError(t, err)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.body = raw
}

func (s *jwksServer) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	s.fetches.Add(1)
	s.mu.Lock()
	body := s.body
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}

func TestRemoteKeys_EndToEnd(t *testing.T) {
	key := newKey(t)
	srv := newJWKSServer(t, map[string]*rsa.PrivateKey{"k1": key})
	ts := httptest.NewServer(srv)
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	keys, err := NewRemoteKeys(ctx, ts.URL, 5*time.Second)
	require.NoError(t, err)

	v := NewFirebaseVerifier(testProject, keys)
	for i := 0; i < 3; i++ {
		id, err := v.Verify(context.Background(), sign(t, key, "k1", validClaims()))
		require.NoError(t, err)
		assert.Equal(t, "uid-123", id.UID)
	}
	assert.Equal(t, int32(1), srv.fetches.Load(), "known kid is served from cache")
}

func TestRemoteKeys_RefetchesOnRotation(t *testing.T) {
	original := newKey(t)
	rotated := newKey(t)
	srv := newJWKSServer(t, map[string]*rsa.PrivateKey{"k1": original})
	ts := httptest.NewServer(srv)
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	keys, err := NewRemoteKeys(ctx, ts.URL, 5*time.Second)
	require.NoError(t, err)
	v := NewFirebaseVerifier(testProject, keys)

	srv.set(t, map[string]*rsa.PrivateKey{"k2": rotated})

	id, err := v.Verify(context.Background(), sign(t, rotated, "k2", validClaims()))
	require.NoError(t, err)
	assert.Equal(t, "uid-123", id.UID)
	assert.Equal(t, int32(2), srv.fetches.Load())
}

func TestRemoteKeys_UnreachableRejectsTokens(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	keys, err := NewRemoteKeys(ctx, ts.URL, time.Second)
	require.NoError(t, err, "startup tolerates an unavailable key endpoint")

	key := newKey(t)
	_, err = NewFirebaseVerifier(testProject, keys).Verify(context.Background(), sign(t, key, "k1", validClaims()))
	assert.ErrorIs(t, err, ErrInvalidToken)
}
