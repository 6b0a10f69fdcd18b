package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/go-go-golems/cauldron/pkg/craft"
	"github.com/go-go-golems/cauldron/pkg/narration"
	"github.com/go-go-golems/cauldron/pkg/recipes"
	"github.com/pkg/errors"
)

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

// decodeBody reads a JSON request body into v, answering 400 itself on
// failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		requestLogger(r).Debug().Err(err).Msg("Invalid request body")
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return false
	}
	return true
}

// finishStream maps the outcome of a streamed session onto the response.
// Failures that happen before the first event are still plain JSON.
func finishStream(w http.ResponseWriter, r *http.Request, sink *SSESink, err error) {
	if err == nil {
		return
	}
	var validationErr *recipes.ValidationError
	switch {
	case errors.As(err, &validationErr):
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error: capitalize(validationErr.Message),
			Field: validationErr.Field,
		})
	case errors.Is(err, craft.ErrSessionAborted):
		requestLogger(r).Debug().Err(err).Msg("Client disconnected")
	default:
		requestLogger(r).Error().Err(err).Msg("Stream failed")
		if !sink.Started() {
			writeError(w, http.StatusInternalServerError, "Internal server error")
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": s.now().UTC().Format(time.RFC3339Nano),
	})
}

func (s *Server) handleCraft(w http.ResponseWriter, r *http.Request) {
	var req recipes.Request
	if !decodeBody(w, r, &req) {
		return
	}
	sink := NewSSESink(w)
	res, err := s.coordinator.Craft(r.Context(), req, sink)
	if res != nil {
		requestLogger(r).Info().Object("craft", res).Str("state", string(res.State())).Msg("Craft finished")
	}
	finishStream(w, r, sink, err)
}

type fingerprintResponse struct {
	Hash        string             `json:"hash"`
	Materials   []recipes.Material `json:"materials"`
	Incantation string             `json:"incantation"`
	Cached      bool               `json:"cached"`
}

// handleFingerprint computes the cache key of a request without crafting.
func (s *Server) handleFingerprint(w http.ResponseWriter, r *http.Request) {
	var req recipes.Request
	if !decodeBody(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		finishStream(w, r, nil, err)
		return
	}
	hash := req.Fingerprint()
	_, cached, err := s.store.Get(r.Context(), hash)
	if err != nil {
		requestLogger(r).Warn().Err(err).Msg("Cache lookup failed")
	}
	writeJSON(w, http.StatusOK, fingerprintResponse{
		Hash:        hash,
		Materials:   recipes.SortedMaterials(req.Materials),
		Incantation: recipes.NormalizeIncantation(req.Incantation),
		Cached:      cached,
	})
}

func (s *Server) handleListRecipes(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.List(r.Context())
	if err != nil {
		requestLogger(r).Error().Err(err).Msg("Could not list recipes")
		writeError(w, http.StatusInternalServerError, "Could not list recipes")
		return
	}
	if list == nil {
		list = []*recipes.Recipe{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetRecipe(w http.ResponseWriter, r *http.Request) {
	hash := strings.ToLower(r.PathValue("hash"))
	recipe, ok, err := s.store.Get(r.Context(), hash)
	if err != nil {
		requestLogger(r).Error().Err(err).Str("fingerprint", hash).Msg("Could not read recipe")
		writeError(w, http.StatusInternalServerError, "Could not read recipe")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "Recipe not found")
		return
	}
	writeJSON(w, http.StatusOK, recipe)
}

func (s *Server) handleListIngredients(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.catalog.List())
}

func (s *Server) handleGetIngredient(w http.ResponseWriter, r *http.Request) {
	ingredient, ok := s.catalog.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "Ingredient not found")
		return
	}
	writeJSON(w, http.StatusOK, ingredient)
}

func (s *Server) handleDialogue(w http.ResponseWriter, r *http.Request) {
	var req narration.DialogueRequest
	if !decodeBody(w, r, &req) {
		return
	}
	sink := NewSSESink(w)
	_, err := s.narrator.Dialogue(r.Context(), req, sink)
	finishStream(w, r, sink, err)
}

func (s *Server) handleNarrate(w http.ResponseWriter, r *http.Request) {
	var req narration.NarrationRequest
	if !decodeBody(w, r, &req) {
		return
	}
	sink := NewSSESink(w)
	_, err := s.narrator.Narrate(r.Context(), req, sink)
	finishStream(w, r, sink, err)
}
