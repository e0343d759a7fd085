package api

import (
	"net/http"

	"github.com/ashureev/pjsk-cards/internal/domain"
	"github.com/ashureev/pjsk-cards/internal/middleware"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// RouterOptions carries the optional pieces of the HTTP surface.
type RouterOptions struct {
	AllowedOrigins []string
	Limiter        *RateLimiter
	Live           http.Handler
	Renderer       ReadyChecker
	Persister      PendingCounter
	RequestLogging bool
	// OnCardDeleted runs after a card is deleted over HTTP.
	OnCardDeleted func(domain.Identity)
}

// NewRouter assembles the chi router for every HTTP route.
func NewRouter(base *Handler, opts RouterOptions) chi.Router {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	if opts.RequestLogging {
		r.Use(chiMiddleware.Logger)
	}
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	if len(opts.AllowedOrigins) > 0 {
		r.Use(middleware.CORS(opts.AllowedOrigins))
	}

	NewHealthHandler(base, opts.Renderer, opts.Persister).RegisterHealth(r)
	NewCharacterHandler(base).RegisterRoutes(r)

	var perIdentity []func(http.Handler) http.Handler
	if opts.Limiter != nil {
		perIdentity = append(perIdentity, opts.Limiter.Middleware)
	}
	cards := NewCardHandler(base)
	cards.onDelete = opts.OnCardDeleted
	cards.RegisterRoutes(r, opts.Live, perIdentity...)

	return r
}
