package mock

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/go-go-golems/cauldron/pkg/generator"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScriptedChunks(t *testing.T) {
	g := New("a", "b")
	s, err := g.Generate(context.Background(), generator.Prompt{User: "u"})
	require.NoError(t, err)

	for _, expected := range []string{"a", "b"} {
		chunk, err := s.Recv()
		require.NoError(t, err)
		assert.Equal(t, expected, chunk)
	}
	_, err = s.Recv()
	assert.Equal(t, io.EOF, err)

	assert.Equal(t, 1, g.Calls())
	assert.Equal(t, "u", g.Prompts()[0].User)
}

func TestStreamError(t *testing.T) {
	g := &Generator{Chunks: []string{"a"}, StreamErr: errors.New("reset")}
	s, err := g.Generate(context.Background(), generator.Prompt{})
	require.NoError(t, err)

	_, err = s.Recv()
	require.NoError(t, err)
	_, err = s.Recv()
	var genErr *generator.GeneratorError
	assert.True(t, errors.As(err, &genErr))
}

func TestOpenError(t *testing.T) {
	g := &Generator{OpenErr: errors.New("refused")}
	_, err := g.Generate(context.Background(), generator.Prompt{})
	var genErr *generator.GeneratorError
	assert.True(t, errors.As(err, &genErr))
}

func TestHangHonoursContext(t *testing.T) {
	g := &Generator{Hang: true}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	s, err := g.Generate(ctx, generator.Prompt{})
	require.NoError(t, err)
	_, err = s.Recv()
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
