package server

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-go-golems/cauldron/pkg/cache"
	"github.com/go-go-golems/cauldron/pkg/craft"
	"github.com/go-go-golems/cauldron/pkg/events"
	"github.com/go-go-golems/cauldron/pkg/generator/mock"
	"github.com/go-go-golems/cauldron/pkg/ingredients"
	"github.com/go-go-golems/cauldron/pkg/narration"
	"github.com/go-go-golems/cauldron/pkg/prompts"
	"github.com/go-go-golems/cauldron/pkg/recipes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var recipeChunks = []string{
	"Let me see.\n",
	`{"steps": [{"type": "mix", "description": "Fold the ash into the echo"}], `,
	`"result": {"name": "Echoing Frost", "rarity": 17, "effects": ["chill"]}}`,
}

const craftBody = `{"materials": [{"name": "snow_ash", "quantity": 5, "unit": "g"}, {"name": "cobalt_echo", "quantity": 10, "unit": "ml"}], "incantation": "Frost Bind"}`

var fixedNow = time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)

type fixture struct {
	handler http.Handler
	store   *cache.MemoryStore
	gen     *mock.Generator
}

func newFixture(t *testing.T, chunks ...string) *fixture {
	t.Helper()
	store := cache.NewMemoryStore()
	gen := mock.New(chunks...)
	catalog := ingredients.Default()
	coordinator := craft.NewCoordinator(store, gen, prompts.NewRecipeBuilder(catalog))
	s := New(coordinator, narration.NewNarrator(gen), store, catalog,
		WithAllowedOrigins("http://localhost:5173"),
		WithClock(func() time.Time { return fixedNow }),
	)
	return &fixture{handler: s.Handler(), store: store, gen: gen}
}

func (f *fixture) do(method, path, body string, headers ...string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

// readEvents decodes an SSE body into one map per data line.
func readEvents(t *testing.T, body string) []map[string]interface{} {
	t.Helper()
	ret := []map[string]interface{}{}
	for _, frame := range strings.Split(body, "\n\n") {
		if frame == "" {
			continue
		}
		require.True(t, strings.HasPrefix(frame, "data: "), "bad frame %q", frame)
		data := strings.TrimPrefix(frame, "data: ")
		_, err := events.NewEventFromJson([]byte(data))
		require.NoError(t, err)
		m := map[string]interface{}{}
		require.NoError(t, json.Unmarshal([]byte(data), &m))
		ret = append(ret, m)
	}
	return ret
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status": "ok", "timestamp": "2024-05-06T07:08:09Z"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
}

func TestRequestIDIsEchoed(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodGet, "/health", "", RequestIDHeader, "abc-123")
	assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))
}

func TestCraftStreamsThenReplays(t *testing.T) {
	f := newFixture(t, recipeChunks...)

	rec := f.do(http.MethodPost, "/api/craft", craftBody)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))

	evs := readEvents(t, rec.Body.String())
	require.Len(t, evs, len(recipeChunks)+1)
	for i, chunk := range recipeChunks {
		assert.Equal(t, "chunk", evs[i]["type"])
		assert.Equal(t, chunk, evs[i]["content"])
	}
	last := evs[len(evs)-1]
	assert.Equal(t, "complete", last["type"])
	assert.Equal(t, false, last["cached"])
	recipe := last["recipe"].(map[string]interface{})
	assert.Equal(t, "Echoing Frost", recipe["result"].(map[string]interface{})["name"])
	hash := recipe["hash"].(string)
	assert.Len(t, hash, 64)

	rec = f.do(http.MethodPost, "/api/craft",
		`{"materials": [{"name": "cobalt_echo", "quantity": 10, "unit": "ml"}, {"name": "snow_ash", "quantity": 5, "unit": "g"}], "incantation": "frost bind"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	evs = readEvents(t, rec.Body.String())
	require.Len(t, evs, 1)
	assert.Equal(t, "complete", evs[0]["type"])
	assert.Equal(t, true, evs[0]["cached"])
	assert.Equal(t, 1, f.gen.Calls())

	rec = f.do(http.MethodGet, "/api/recipes", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []recipes.Recipe
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, hash, list[0].Hash)

	rec = f.do(http.MethodGet, "/api/recipes/"+hash, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got recipes.Recipe
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "Echoing Frost", got.Outcome.Name)
}

func TestCraftRejectsBadRequests(t *testing.T) {
	f := newFixture(t, recipeChunks...)

	tests := []struct {
		name     string
		body     string
		expected string
	}{
		{"no materials", `{"materials": [], "incantation": "stir"}`, `{"error": "Materials are required", "field": "materials"}`},
		{"no incantation", `{"materials": [{"name": "snow_ash", "quantity": 1, "unit": "g"}]}`, `{"error": "Incantation is required", "field": "incantation"}`},
		{"not json", `{"materials": `, `{"error": "Invalid JSON body"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(http.MethodPost, "/api/craft", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.JSONEq(t, tt.expected, rec.Body.String())
		})
	}
	assert.Equal(t, 0, f.gen.Calls())
}

func TestCraftParseFailureIsAnEvent(t *testing.T) {
	f := newFixture(t, "The cauldron ", "fizzles.")
	rec := f.do(http.MethodPost, "/api/craft", craftBody)
	require.Equal(t, http.StatusOK, rec.Code)

	evs := readEvents(t, rec.Body.String())
	require.Len(t, evs, 3)
	assert.Equal(t, "error", evs[2]["type"])
	assert.Equal(t, "Failed to parse recipe (malformed_block)", evs[2]["message"])
	assert.Equal(t, 0, f.store.Len())
}

func TestUnknownRecipe(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodGet, "/api/recipes/"+strings.Repeat("0", 64), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error": "Recipe not found"}`, rec.Body.String())

	rec = f.do(http.MethodGet, "/api/recipes", "")
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestFingerprint(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodPost, "/api/fingerprint", craftBody)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp fingerprintResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	expected := recipes.Fingerprint([]recipes.Material{
		{Name: "snow_ash", Quantity: 5, Unit: "g"},
		{Name: "cobalt_echo", Quantity: 10, Unit: "ml"},
	}, "Frost Bind")
	assert.Equal(t, expected, resp.Hash)
	assert.Equal(t, "frost bind", resp.Incantation)
	assert.Equal(t, "cobalt_echo", resp.Materials[0].Name)
	assert.False(t, resp.Cached)
	assert.Equal(t, 0, f.gen.Calls())

	rec = f.do(http.MethodPost, "/api/fingerprint", `{"materials": [{"name": "snow_ash", "quantity": 1, "unit": "g"}], "incantation": ""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIngredients(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/api/ingredients", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []ingredients.Ingredient
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 8)

	rec = f.do(http.MethodGet, "/api/ingredients/snow_ash", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var ingredient ingredients.Ingredient
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ingredient))
	assert.Equal(t, "Snow Ash", ingredient.Name)

	rec = f.do(http.MethodGet, "/api/ingredients/unobtainium", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error": "Ingredient not found"}`, rec.Body.String())
}

func TestCORS(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodOptions, "/api/craft", "",
		"Origin", "http://localhost:5173",
		"Access-Control-Request-Method", "POST",
	)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")

	rec = f.do(http.MethodGet, "/health", "", "Origin", "http://evil.example")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestDialogueAndNarrate(t *testing.T) {
	f := newFixture(t, "Welcome, ", "*apprentice*.")

	rec := f.do(http.MethodPost, "/api/dialogue", `{"questId": "q1", "message": "Hello"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	evs := readEvents(t, rec.Body.String())
	require.Len(t, evs, 3)
	assert.Equal(t, "final", evs[2]["type"])
	assert.Equal(t, "Welcome, apprentice.", evs[2]["text"])

	rec = f.do(http.MethodPost, "/api/narrate", `{"scene": {"location": "the guild hall"}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	evs = readEvents(t, rec.Body.String())
	assert.Equal(t, "final", evs[len(evs)-1]["type"])

	rec = f.do(http.MethodPost, "/api/narrate", `{"scene": {}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error": "Location is required", "field": "scene.location"}`, rec.Body.String())
}

func TestSSESinkWritesHeadersLazily(t *testing.T) {
	rec := httptest.NewRecorder()
	sink := NewSSESink(rec)
	assert.False(t, sink.Started())

	require.NoError(t, sink.Send(context.Background(), events.NewChunkEvent("hi")))
	assert.True(t, sink.Started())
	assert.Equal(t, "data: {\"type\":\"chunk\",\"content\":\"hi\"}\n\n", rec.Body.String())
	assert.True(t, rec.Flushed)

	require.NoError(t, sink.Close())
	assert.ErrorIs(t, sink.Send(context.Background(), events.NewChunkEvent("late")), events.ErrSinkClosed)
}

func TestListenAndServeStopsOnCancel(t *testing.T) {
	s := New(nil, nil, cache.NewMemoryStore(), ingredients.Default())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.ListenAndServe(ctx, "127.0.0.1:0")
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestShutdownLetsOpenStreamFinish(t *testing.T) {
	store := cache.NewMemoryStore()
	gen := mock.New(recipeChunks...)
	gen.Delay = 50 * time.Millisecond
	catalog := ingredients.Default()
	s := New(craft.NewCoordinator(store, gen, prompts.NewRecipeBuilder(catalog)), nil, store, catalog)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- s.Serve(ctx, ln)
	}()

	resp, err := http.Post("http://"+ln.Addr().String()+"/api/craft", "application/json", strings.NewReader(craftBody))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// headers arrive with the first chunk, the rest is still being generated
	cancel()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	evs := readEvents(t, string(body))
	require.NotEmpty(t, evs)
	last := evs[len(evs)-1]
	assert.Equal(t, "complete", last["type"])
	assert.Equal(t, 1, store.Len())

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
