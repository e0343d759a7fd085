// Package identity normalizes platform-supplied identity values into the
// comparable domain.Identity key and carries it through request contexts.
package identity

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/ashureev/pjsk-cards/internal/domain"
	"github.com/go-chi/chi/v5"
)

const (
	// PlatformParam and ConversationParam are the chi URL parameters.
	PlatformParam     = "platform"
	ConversationParam = "conversation"

	// UnknownPlatform is used when a platform adapter reports no name.
	UnknownPlatform = "unknown"
)

type contextKey int

const identityKey contextKey = iota

var platformPattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)

// FromContext extracts the identity placed by Middleware.
func FromContext(ctx context.Context) (domain.Identity, bool) {
	id, ok := ctx.Value(identityKey).(domain.Identity)
	return id, ok
}

// WithIdentity returns a context carrying id.
func WithIdentity(ctx context.Context, id domain.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// Normalize converts live platform values to a domain.Identity. Strings,
// byte slices, fmt.Stringer implementations and integer kinds are accepted;
// any other type is rejected with domain.ErrInvalidIdentity before it can
// reach a map.
func Normalize(platform, conversation any) (domain.Identity, error) {
	p, err := part("platform", platform)
	if err != nil {
		return domain.Identity{}, err
	}
	c, err := part("conversation", conversation)
	if err != nil {
		return domain.Identity{}, err
	}
	p = strings.ToLower(p)
	if !platformPattern.MatchString(p) {
		return domain.Identity{}, fmt.Errorf("%w: platform %q has unsupported characters", domain.ErrInvalidIdentity, p)
	}
	id := domain.Identity{Platform: p, Conversation: c}
	if err := id.Validate(); err != nil {
		return domain.Identity{}, err
	}
	return id, nil
}

// FromSender picks the first non-empty conversation candidate, mirroring how
// chat adapters fall back from session id to sender id to sender name.
func FromSender(platform any, candidates ...any) (domain.Identity, error) {
	if platform == nil {
		platform = UnknownPlatform
	}
	if s, ok := platform.(string); ok && strings.TrimSpace(s) == "" {
		platform = UnknownPlatform
	}
	for _, c := range candidates {
		s, err := part("conversation", c)
		if err == nil && s != "" {
			return Normalize(platform, s)
		}
	}
	return domain.Identity{}, fmt.Errorf("%w: no usable conversation id", domain.ErrInvalidIdentity)
}

func part(name string, v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "", fmt.Errorf("%w: %s is nil", domain.ErrInvalidIdentity, name)
	case string:
		return strings.TrimSpace(x), nil
	case []byte:
		return strings.TrimSpace(string(x)), nil
	case fmt.Stringer:
		rv := reflect.ValueOf(v)
		if rv.Kind() == reflect.Pointer && rv.IsNil() {
			return "", fmt.Errorf("%w: %s is a nil %T", domain.ErrInvalidIdentity, name, v)
		}
		return strings.TrimSpace(x.String()), nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10), nil
	case reflect.String:
		return strings.TrimSpace(rv.String()), nil
	}
	return "", fmt.Errorf("%w: %s has unsupported type %T", domain.ErrInvalidIdentity, name, v)
}

// Middleware resolves the identity from the chi route parameters and rejects
// the request with 400 when it does not normalize.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := Normalize(chi.URLParam(r, PlatformParam), chi.URLParam(r, ConversationParam))
		if err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = fmt.Fprintf(w, `{"error":%q}`, err.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

// IPFromRequest returns a normalized remote IP for optional request tracing.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
