package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	sheetstore "github.com/danielGPGT/go-sheetstore"
)

// APIKeyHeader carries the caller's API key.
const APIKeyHeader = "X-API-Key"

// Principal is an authenticated API key.
type Principal struct {
	Key           string
	Name          string
	Role          string
	AllowedSheets []string
}

// CanAccess reports whether the key may use a sheet. An empty list or the
// entry "all" grants every sheet.
func (p *Principal) CanAccess(sheet string) bool {
	if len(p.AllowedSheets) == 0 {
		return true
	}
	for _, s := range p.AllowedSheets {
		if s == "all" || s == sheet {
			return true
		}
	}
	return false
}

// Authenticator resolves an API key into a principal.
type Authenticator interface {
	Authenticate(ctx context.Context, key string) (*Principal, error)
}

// Lister is the read side of the store used by SheetKeyAuthenticator.
type Lister interface {
	List(ctx context.Context, sheet string, query sheetstore.Query) ([]*sheetstore.Record, error)
}

// SheetKeyAuthenticator validates keys against rows of a key sheet with the
// columns api_key, status, expiry_date, role, name and allowed_sheets.
type SheetKeyAuthenticator struct {
	store        Lister
	sheet        string
	requiredRole string
	ttl          time.Duration
	now          func() time.Time

	mu    sync.Mutex
	cache map[string]cachedPrincipal
}

type cachedPrincipal struct {
	principal *Principal
	at        time.Time
}

// KeyAuthConfig configures a SheetKeyAuthenticator.
type KeyAuthConfig struct {
	Sheet        string        // default: api_keys
	RequiredRole string        // empty accepts every role
	CacheTTL     time.Duration // default: 5m
	Now          func() time.Time
}

// NewSheetKeyAuthenticator creates an authenticator reading keys through store.
func NewSheetKeyAuthenticator(store Lister, config KeyAuthConfig) *SheetKeyAuthenticator {
	if config.Sheet == "" {
		config.Sheet = "api_keys"
	}
	if config.CacheTTL <= 0 {
		config.CacheTTL = 5 * time.Minute
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &SheetKeyAuthenticator{
		store:        store,
		sheet:        config.Sheet,
		requiredRole: config.RequiredRole,
		ttl:          config.CacheTTL,
		now:          config.Now,
		cache:        make(map[string]cachedPrincipal),
	}
}

// Authenticate implements Authenticator.
func (a *SheetKeyAuthenticator) Authenticate(ctx context.Context, key string) (*Principal, error) {
	if key == "" {
		return nil, fmt.Errorf("%w: API key is required", ErrUnauthorized)
	}

	now := a.now()
	a.mu.Lock()
	cached, ok := a.cache[key]
	a.mu.Unlock()
	if ok && now.Sub(cached.at) < a.ttl {
		return cached.principal, nil
	}

	records, err := a.store.List(ctx, a.sheet, sheetstore.Query{
		Conditions: []sheetstore.Condition{{Column: "api_key", Operator: "==", Value: key}},
		Limit:      1,
	})
	if errors.Is(err, sheetstore.ErrNotFound) {
		return nil, fmt.Errorf("%w: Invalid or expired API key", ErrUnauthorized)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read API keys: %w", err)
	}
	if len(records) == 0 || !a.valid(records[0], now) {
		return nil, fmt.Errorf("%w: Invalid or expired API key", ErrUnauthorized)
	}

	rec := records[0]
	p := &Principal{
		Key:  key,
		Name: rec.GetAsString("name", ""),
		Role: rec.GetAsString("role", ""),
	}
	for _, s := range rec.GetAsStrings("allowed_sheets", nil) {
		if s = strings.TrimSpace(s); s != "" {
			p.AllowedSheets = append(p.AllowedSheets, s)
		}
	}

	a.mu.Lock()
	a.cache[key] = cachedPrincipal{principal: p, at: now}
	a.mu.Unlock()
	return p, nil
}

func (a *SheetKeyAuthenticator) valid(rec *sheetstore.Record, now time.Time) bool {
	if rec.GetAsString("api_key", "") == "" || rec.GetAsString("status", "") != "active" {
		return false
	}
	if expiry := rec.GetAsTime("expiry_date", time.Time{}); !expiry.IsZero() && expiry.Before(now) {
		return false
	}
	if a.requiredRole != "" && rec.GetAsString("role", "") != a.requiredRole {
		return false
	}
	return true
}

type principalKey struct{}

// PrincipalFrom returns the authenticated principal of a request, if any.
func PrincipalFrom(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*Principal)
	return p, ok
}

// Authenticate rejects requests without a valid API key.
func Authenticate(auth Authenticator, h *handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := auth.Authenticate(r.Context(), r.Header.Get(APIKeyHeader))
			if err != nil {
				h.fail(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), principalKey{}, p)))
		})
	}
}
