package auth

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jellydator/ttlcache/v3"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
)

const (
	defaultJWKSCacheTTL = 5 * time.Minute
	minJWKSRefresh      = 30 * time.Second
)

var errKeyNotFound = errors.New("signing key not found in JWKS")

// JWKSCache resolves RSA verification keys by kid. Keys expire individually
// after the TTL. An unknown kid refreshes the whole set so rotated keys are
// picked up without a restart, at most once per minRefresh.
type JWKSCache struct {
	url        string
	client     *http.Client
	keys       *ttlcache.Cache[string, *rsa.PublicKey]
	minRefresh time.Duration
	now        func() time.Time

	refreshMu   sync.Mutex
	lastRefresh time.Time
}

func NewJWKSCache(url string, ttl time.Duration, client *http.Client) *JWKSCache {
	if ttl <= 0 {
		ttl = defaultJWKSCacheTTL
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &JWKSCache{
		url:        url,
		client:     client,
		minRefresh: minJWKSRefresh,
		now:        time.Now,
		keys: ttlcache.New[string, *rsa.PublicKey](
			ttlcache.WithTTL[string, *rsa.PublicKey](ttl),
			ttlcache.WithDisableTouchOnHit[string, *rsa.PublicKey](),
		),
	}
}

func (c *JWKSCache) cached(kid string) *rsa.PublicKey {
	if item := c.keys.Get(kid); item != nil {
		return item.Value()
	}
	return nil
}

// Key returns the key for kid, fetching the JWKS document on a miss.
func (c *JWKSCache) Key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	if key := c.cached(kid); key != nil {
		return key, nil
	}

	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()
	if key := c.cached(kid); key != nil {
		return key, nil
	}
	if !c.lastRefresh.IsZero() && c.now().Sub(c.lastRefresh) < c.minRefresh {
		return nil, fmt.Errorf("kid %q: %w", kid, errKeyNotFound)
	}
	if err := c.refresh(ctx); err != nil {
		return nil, err
	}
	if key := c.cached(kid); key != nil {
		return key, nil
	}
	return nil, fmt.Errorf("kid %q: %w", kid, errKeyNotFound)
}

func (c *JWKSCache) refresh(ctx context.Context) error {
	c.lastRefresh = c.now()
	set, err := jwk.Fetch(ctx, c.url, jwk.WithHTTPClient(c.client))
	if err != nil {
		return fmt.Errorf("fetch JWKS: %w", err)
	}
	for i := 0; i < set.Len(); i++ {
		key, ok := set.Key(i)
		if !ok || key.KeyType() != jwa.RSA || key.KeyID() == "" {
			continue
		}
		if use := key.KeyUsage(); use != "" && use != string(jwk.ForSignature) {
			continue
		}
		var raw interface{}
		if err := key.Raw(&raw); err != nil {
			continue
		}
		pub, ok := raw.(*rsa.PublicKey)
		if !ok {
			continue
		}
		c.keys.Set(key.KeyID(), pub, ttlcache.DefaultTTL)
	}
	return nil
}

// Keyfunc adapts the cache to jwt.ParseWithClaims.
func (c *JWKSCache) Keyfunc(ctx context.Context) jwt.Keyfunc {
	return func(token *jwt.Token) (interface{}, error) {
		kid, ok := token.Header["kid"].(string)
		if !ok || kid == "" {
			return nil, errors.New("token has no kid header")
		}
		return c.Key(ctx, kid)
	}
}

// DiscoverJWKSURL reads jwks_uri from the issuer's OpenID configuration.
func DiscoverJWKSURL(ctx context.Context, client *http.Client, issuer string) (string, error) {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	var doc struct {
		JWKSURI string `json:"jwks_uri"`
	}
	url := strings.TrimRight(issuer, "/") + "/.well-known/openid-configuration"
	if err := getJSON(ctx, client, url, &doc); err != nil {
		return "", fmt.Errorf("oidc discovery: %w", err)
	}
	if doc.JWKSURI == "" {
		return "", errors.New("oidc discovery: document has no jwks_uri")
	}
	return doc.JWKSURI, nil
}

func getJSON(ctx context.Context, client *http.Client, url string, v interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}
