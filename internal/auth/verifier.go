// Package auth resolves bearer tokens into tenant-scoped principals.
package auth

import (
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Roles recognised by the dispatch service.
const (
	RoleAdmin      = "admin"
	RoleDispatcher = "dispatcher"
	RoleDriver     = "driver"
)

// Principal is the authenticated caller. For drivers Subject is the driver id.
type Principal struct {
	Tenant  string
	Role    string
	Subject string
	Name    string
}

// IsDriver reports whether the caller acts as a driver.
func (p Principal) IsDriver() bool { return p.Role == RoleDriver }

// IsStaff reports whether the caller is an office user.
func (p Principal) IsStaff() bool { return p.Role == RoleAdmin || p.Role == RoleDispatcher }

// Config selects the verification mode: dev (no verify), hmac (HS256), jwks (RS256).
type Config struct {
	Mode        string `yaml:"mode"`
	HMACSecret  string `yaml:"hmac_secret"`
	JWKSURL     string `yaml:"jwks_url"`
	TenantClaim string `yaml:"tenant_claim"`
	RoleClaim   string `yaml:"role_claim"`
	NameClaim   string `yaml:"name_claim"`
	Issuer      string `yaml:"issuer"`
}

// Verifier validates tokens and extracts tenant/role claims.
type Verifier struct {
	cfg    Config
	parser *jwt.Parser
	http   *http.Client

	mu        sync.RWMutex
	keys      map[string]any
	lastFetch time.Time
	cacheTTL  time.Duration
}

func NewVerifier(cfg Config) (*Verifier, error) {
	cfg.Mode = strings.ToLower(strings.TrimSpace(cfg.Mode))
	if cfg.Mode == "" {
		cfg.Mode = "dev"
	}
	if cfg.TenantClaim == "" {
		cfg.TenantClaim = "tenant"
	}
	if cfg.RoleClaim == "" {
		cfg.RoleClaim = "role"
	}
	if cfg.NameClaim == "" {
		cfg.NameClaim = "name"
	}
	opts := []jwt.ParserOption{jwt.WithExpirationRequired()}
	switch cfg.Mode {
	case "dev":
	case "hmac":
		if cfg.HMACSecret == "" {
			return nil, errors.New("hmac auth requires a secret")
		}
		opts = append(opts, jwt.WithValidMethods([]string{"HS256"}))
	case "jwks":
		if cfg.JWKSURL == "" {
			return nil, errors.New("jwks auth requires a key set url")
		}
		opts = append(opts, jwt.WithValidMethods([]string{"RS256"}))
	default:
		return nil, fmt.Errorf("unsupported auth mode %q", cfg.Mode)
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	return &Verifier{
		cfg:      cfg,
		parser:   jwt.NewParser(opts...),
		http:     &http.Client{Timeout: 5 * time.Second},
		keys:     map[string]any{},
		cacheTTL: 10 * time.Minute,
	}, nil
}

// Mode reports the configured verification mode.
func (v *Verifier) Mode() string { return v.cfg.Mode }

func (v *Verifier) Verify(token string) (Principal, error) {
	if v.cfg.Mode == "dev" {
		// token format: tenant:role:subject
		parts := strings.SplitN(token, ":", 3)
		if len(parts) < 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
			return Principal{}, errors.New("invalid dev token; expected tenant:role:subject")
		}
		return Principal{Tenant: parts[0], Role: strings.ToLower(parts[1]), Subject: parts[2]}, nil
	}
	claims := jwt.MapClaims{}
	if _, err := v.parser.ParseWithClaims(token, claims, v.keyFunc); err != nil {
		return Principal{}, err
	}
	tenant, _ := claims[v.cfg.TenantClaim].(string)
	role, _ := claims[v.cfg.RoleClaim].(string)
	name, _ := claims[v.cfg.NameClaim].(string)
	sub, _ := claims.GetSubject()
	if tenant == "" {
		return Principal{}, errors.New("missing tenant claim")
	}
	if role == "" {
		return Principal{}, errors.New("missing role claim")
	}
	if sub == "" {
		return Principal{}, errors.New("missing sub claim")
	}
	return Principal{Tenant: tenant, Role: strings.ToLower(role), Subject: sub, Name: name}, nil
}

func (v *Verifier) keyFunc(t *jwt.Token) (any, error) {
	switch v.cfg.Mode {
	case "hmac":
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(v.cfg.HMACSecret), nil
	case "jwks":
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		kid, _ := t.Header["kid"].(string)
		return v.rsaKey(kid)
	}
	return nil, errors.New("unsupported auth mode")
}

type jwks struct {
	Keys []struct {
		Kty string `json:"kty"`
		Kid string `json:"kid"`
		N   string `json:"n"`
		E   string `json:"e"`
	} `json:"keys"`
}

// rsaKey returns the cached key for kid, refetching the key set when stale or unknown.
func (v *Verifier) rsaKey(kid string) (any, error) {
	v.mu.RLock()
	k, ok := v.keys[kid]
	stale := time.Since(v.lastFetch) > v.cacheTTL
	v.mu.RUnlock()
	if ok && !stale {
		return k, nil
	}
	if err := v.fetchJWKS(); err != nil {
		return nil, err
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	if k, ok := v.keys[kid]; ok {
		return k, nil
	}
	return nil, errors.New("kid not found in JWKS")
}

func (v *Verifier) fetchJWKS() error {
	resp, err := v.http.Get(v.cfg.JWKSURL)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("jwks fetch: status %d", resp.StatusCode)
	}
	var set jwks
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return err
	}
	keys := map[string]any{}
	for _, k := range set.Keys {
		if !strings.EqualFold(k.Kty, "RSA") {
			continue
		}
		n, err := base64.RawURLEncoding.DecodeString(k.N)
		if err != nil {
			return err
		}
		e, err := base64.RawURLEncoding.DecodeString(k.E)
		if err != nil {
			return err
		}
		keys[k.Kid] = &rsa.PublicKey{N: new(big.Int).SetBytes(n), E: int(new(big.Int).SetBytes(e).Int64())}
	}
	v.mu.Lock()
	v.keys = keys
	v.lastFetch = time.Now()
	v.mu.Unlock()
	return nil
}
