package cmds

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/go-go-golems/cauldron/pkg/cache"
	"github.com/go-go-golems/cauldron/pkg/generator/factory"
	"github.com/go-go-golems/cauldron/pkg/generator/mock"
	"github.com/go-go-golems/cauldron/pkg/recipes"
	"github.com/go-go-golems/cauldron/pkg/settings"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMaterial(t *testing.T) {
	tests := []struct {
		in       string
		expected recipes.Material
		wantErr  bool
	}{
		{in: "cobalt_echo:10:ml", expected: recipes.Material{Name: "cobalt_echo", Quantity: 10, Unit: "ml"}},
		{in: "snow_ash:2.5", expected: recipes.Material{Name: "snow_ash", Quantity: 2.5}},
		{in: " moon_glass : 1 : g ", expected: recipes.Material{Name: "moon_glass", Quantity: 1, Unit: "g"}},
		{in: "snow_ash", wantErr: true},
		{in: "snow_ash:lots:g", wantErr: true},
		{in: "a:1:g:extra", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			m, err := parseMaterial(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, m)
		})
	}
}

func TestRequestFromFlags(t *testing.T) {
	cmd := NewFingerprintCommand()
	require.NoError(t, cmd.ParseFlags([]string{"-m", "snow_ash:5:g", "--material", "cobalt_echo:10:ml", "-i", "Frost Bind"}))
	req, err := requestFromFlags(cmd)
	require.NoError(t, err)
	assert.Len(t, req.Materials, 2)
	assert.Equal(t, "Frost Bind", req.Incantation)

	cmd = NewFingerprintCommand()
	require.NoError(t, cmd.ParseFlags([]string{"-m", "snow_ash:5:g"}))
	_, err = requestFromFlags(cmd)
	assert.Error(t, err)
}

func TestFingerprintCommand(t *testing.T) {
	cmd := NewFingerprintCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetArgs([]string{"-m", "snow_ash:5:g", "-i", "Frost Bind"})
	require.NoError(t, cmd.Execute())

	expected := recipes.Fingerprint([]recipes.Material{{Name: "snow_ash", Quantity: 5, Unit: "g"}}, "Frost Bind")
	assert.Equal(t, expected+"\n", out.String())
}

func TestRunCraftPrintsThroughRouter(t *testing.T) {
	s := &settings.Settings{GenerationTimeout: 5 * time.Second, Temperature: settings.DefaultTemperature}
	a := newAppWith(s, cache.NewMemoryStore(), mock.New(factory.MockRecipe...))
	req := recipes.Request{
		Materials:   []recipes.Material{{Name: "snow_ash", Quantity: 5, Unit: "g"}},
		Incantation: "Frost Bind",
	}

	out := &bytes.Buffer{}
	res, err := runCraft(context.Background(), a.coordinator, req, out, false)
	require.NoError(t, err)
	require.NoError(t, res.Err)
	assert.False(t, res.Cached)
	assert.Contains(t, out.String(), "The cauldron hums.")
	assert.Contains(t, out.String(), "--- generated recipe ---")
	assert.Contains(t, out.String(), "Placeholder Tonic")

	out.Reset()
	res, err = runCraft(context.Background(), a.coordinator, req, out, false)
	require.NoError(t, err)
	assert.True(t, res.Cached)
	assert.Contains(t, out.String(), "--- cached recipe ---")
	assert.NotContains(t, out.String(), "The cauldron hums.")
}
