package server

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/go-go-golems/cauldron/pkg/cache"
	"github.com/go-go-golems/cauldron/pkg/craft"
	"github.com/go-go-golems/cauldron/pkg/ingredients"
	"github.com/go-go-golems/cauldron/pkg/narration"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const (
	maxBodyBytes    = 1 << 20
	shutdownTimeout = 5 * time.Second
)

// Server exposes crafting, narration and the ingredient catalog over HTTP.
type Server struct {
	coordinator    *craft.Coordinator
	narrator       *narration.Narrator
	store          cache.Store
	catalog        *ingredients.Catalog
	allowedOrigins []string
	now            func() time.Time
}

type Option func(*Server)

func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) {
		s.allowedOrigins = origins
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		s.now = now
	}
}

func New(
	coordinator *craft.Coordinator,
	narrator *narration.Narrator,
	store cache.Store,
	catalog *ingredients.Catalog,
	options ...Option,
) *Server {
	s := &Server{
		coordinator: coordinator,
		narrator:    narrator,
		store:       store,
		catalog:     catalog,
		now:         time.Now,
	}
	for _, o := range options {
		o(s)
	}
	return s
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("POST /api/craft", s.handleCraft)
	mux.HandleFunc("POST /api/fingerprint", s.handleFingerprint)
	mux.HandleFunc("GET /api/recipes", s.handleListRecipes)
	mux.HandleFunc("GET /api/recipes/{hash}", s.handleGetRecipe)

	mux.HandleFunc("GET /api/ingredients", s.handleListIngredients)
	mux.HandleFunc("GET /api/ingredients/{id}", s.handleGetIngredient)

	mux.HandleFunc("POST /api/dialogue", s.handleDialogue)
	mux.HandleFunc("POST /api/narrate", s.handleNarrate)

	return withRequestLogging(withCORS(s.allowedOrigins, mux))
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down,
// giving open streams a few seconds to finish.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "could not listen on %s", addr)
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener, which it closes.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	// requests outlive the cancellation of ctx so that shutdown can drain them
	base := context.WithoutCancel(ctx)
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return base
		},
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		log.Info().Str("addr", ln.Addr().String()).Msg("Cauldron listening")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server failed")
		}
		return nil
	})
	eg.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return eg.Wait()
}
