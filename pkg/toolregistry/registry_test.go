package toolregistry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// staticSource serves a fixed definition list.
type staticSource struct {
	defs  []ToolDefinition
	calls int
}

func (s *staticSource) ToolsForUser(_ context.Context, _ string) ([]ToolDefinition, error) {
	s.calls++
	return s.defs, nil
}

func weatherDefinition(endpoint string) ToolDefinition {
	return ToolDefinition{
		ID:       "t1",
		UserID:   "u1",
		Name:     "get_weather",
		Endpoint: endpoint,
		ParamsSchema: map[string]interface{}{
			"properties": map[string]interface{}{
				"city": map[string]interface{}{"type": "string"},
				"unit": map[string]interface{}{"type": "string"},
			},
			"required": []interface{}{"city"},
		},
	}
}

func TestRegistryBind(t *testing.T) {
	source := &staticSource{defs: []ToolDefinition{
		weatherDefinition("http://example.com/weather"),
		{ID: "t2", UserID: "u1", Name: "other_tool", ParamsSchema: map[string]interface{}{}},
	}}
	r := New(source, "u1")

	tools, err := r.Bind(context.Background(), []string{"get_weather"})
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, "get_weather", tools[0].Name)
	assert.Equal(t, "Tool for get_weather", tools[0].Description)

	t.Run("unknown names are skipped", func(t *testing.T) {
		tools, err := r.Bind(context.Background(), []string{"nope"})
		require.NoError(t, err)
		assert.Empty(t, tools)
	})

	t.Run("definitions are fetched once per registry", func(t *testing.T) {
		_, err := r.Bind(context.Background(), []string{"other_tool"})
		require.NoError(t, err)
		assert.Equal(t, 1, source.calls)
	})
}

func TestBoundToolInvoke(t *testing.T) {
	t.Run("arguments become query parameters", func(t *testing.T) {
		var gotQuery string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotQuery = r.URL.RawQuery
			_, _ = w.Write([]byte(`{"temp": 18}`))
		}))
		defer srv.Close()

		r := New(&staticSource{}, "u1")
		tool, err := r.BindDefinition(weatherDefinition(srv.URL))
		require.NoError(t, err)

		result, err := tool.Invoke(context.Background(), map[string]interface{}{"city": "Dublin"})
		require.NoError(t, err)
		assert.Equal(t, `{"temp": 18}`, result)
		assert.Contains(t, gotQuery, "city=Dublin")
		// The absent optional is explicit nil and never sent over the wire.
		assert.NotContains(t, gotQuery, "unit")
	})

	t.Run("missing required argument is a validation error", func(t *testing.T) {
		r := New(&staticSource{}, "u1")
		tool, err := r.BindDefinition(weatherDefinition("http://example.com"))
		require.NoError(t, err)

		_, err = tool.Invoke(context.Background(), map[string]interface{}{"unit": "celsius"})
		assert.Error(t, err)
	})

	t.Run("non-2xx becomes a result string, not an error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "nope", http.StatusBadGateway)
		}))
		defer srv.Close()

		r := New(&staticSource{}, "u1")
		tool, err := r.BindDefinition(weatherDefinition(srv.URL))
		require.NoError(t, err)

		result, err := tool.Invoke(context.Background(), map[string]interface{}{"city": "Dublin"})
		require.NoError(t, err)
		assert.Contains(t, result, "502")
	})

	t.Run("no endpoint yields a descriptive string", func(t *testing.T) {
		r := New(&staticSource{}, "u1")
		tool, err := r.BindDefinition(weatherDefinition(""))
		require.NoError(t, err)

		result, err := tool.Invoke(context.Background(), map[string]interface{}{"city": "Dublin"})
		require.NoError(t, err)
		assert.Contains(t, result, "no API endpoint")
	})
}
