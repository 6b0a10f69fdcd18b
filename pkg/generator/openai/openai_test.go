package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-go-golems/cauldron/pkg/generator"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateStreamsDeltas(t *testing.T) {
	requests := make(chan map[string]interface{}, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		var body map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		requests <- body

		w.Header().Set("Content-Type", "text/event-stream")
		for _, delta := range []string{"", "Heat ", "the ", "ash"} {
			_, _ = fmt.Fprintf(w, "data: {\"id\":\"1\",\"object\":\"chat.completion.chunk\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", delta)
		}
		_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	g, err := New("test-key", server.URL+"/v1", WithModel("gpt-test"))
	require.NoError(t, err)

	s, err := g.Generate(context.Background(), generator.Prompt{System: "sys", User: "brew", MaxTokens: 42})
	require.NoError(t, err)
	defer func() {
		_ = s.Close()
	}()

	var chunks []string
	for {
		chunk, err := s.Recv()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		chunks = append(chunks, chunk)
	}
	assert.Equal(t, []string{"Heat ", "the ", "ash"}, chunks)

	body := <-requests
	assert.Equal(t, "gpt-test", body["model"])
	assert.Equal(t, true, body["stream"])
	assert.Equal(t, 42.0, body["max_tokens"])
	messages := body["messages"].([]interface{})
	require.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0].(map[string]interface{})["role"])
}

func TestGenerateAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	}))
	defer server.Close()

	g, err := New("test-key", server.URL+"/v1")
	require.NoError(t, err)

	_, err = g.Generate(context.Background(), generator.Prompt{User: "brew"})
	var genErr *generator.GeneratorError
	require.True(t, errors.As(err, &genErr))
	assert.Equal(t, ProviderName, genErr.Provider)
	assert.Equal(t, http.StatusUnauthorized, genErr.StatusCode)
}

func TestNewRequiresKey(t *testing.T) {
	_, err := New("", "")
	assert.Error(t, err)
}
