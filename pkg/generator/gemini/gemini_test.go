package gemini

import (
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextParts(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: &genai.Content{Parts: []genai.Part{
				genai.Text("Heat "),
				genai.Text(""),
				genai.Blob{MIMEType: "image/png"},
				genai.Text("the ash"),
			}}},
			{Content: &genai.Content{Parts: []genai.Part{genai.Text("ignored")}}},
		},
	}
	assert.Equal(t, []string{"Heat ", "the ash"}, textParts(resp))
	assert.Empty(t, textParts(nil))
	assert.Empty(t, textParts(&genai.GenerateContentResponse{Candidates: []*genai.Candidate{{}}}))
}

func TestNew(t *testing.T) {
	_, err := New("")
	assert.Error(t, err)

	g, err := New("key", WithModel("gemini-pro"), WithMaxTokens(10), WithTemperature(0.2))
	require.NoError(t, err)
	assert.Equal(t, "gemini-pro", g.model)
	assert.Equal(t, 10, g.maxTokens)
	require.NotNil(t, g.temperature)
	assert.Equal(t, 0.2, *g.temperature)
}
