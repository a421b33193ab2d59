package toolregistry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileSchemaJSONSchemaFormat(t *testing.T) {
	schema, err := CompileSchema(map[string]interface{}{
		"properties": map[string]interface{}{
			"city": map[string]interface{}{
				"type":        "string",
				"description": "City name",
			},
			"unit": map[string]interface{}{
				"type": "string",
			},
		},
		"required": []interface{}{"city"},
	})
	require.NoError(t, err)
	require.Len(t, schema.Params, 2)

	t.Run("missing required field is rejected", func(t *testing.T) {
		err := schema.Validate(map[string]interface{}{"unit": "celsius"})
		assert.Error(t, err)
	})

	t.Run("omitted optional field is accepted", func(t *testing.T) {
		err := schema.Validate(map[string]interface{}{"city": "Dublin"})
		assert.NoError(t, err)
	})

	t.Run("absent optional becomes explicit nil", func(t *testing.T) {
		args := schema.Normalize(map[string]interface{}{"city": "Dublin"})
		val, present := args["unit"]
		assert.True(t, present)
		assert.Nil(t, val)
	})
}

func TestCompileSchemaLegacyFlatMap(t *testing.T) {
	schema, err := CompileSchema(map[string]interface{}{
		"city": "str",
		"days": "int",
	})
	require.NoError(t, err)

	t.Run("every field is required", func(t *testing.T) {
		for _, p := range schema.Params {
			assert.True(t, p.Required, p.Name)
		}
		assert.Error(t, schema.Validate(map[string]interface{}{"city": "Dublin"}))
		assert.NoError(t, schema.Validate(map[string]interface{}{"city": "Dublin", "days": 3}))
	})

	t.Run("legacy type names map onto kinds", func(t *testing.T) {
		kinds := map[string]Kind{}
		for _, p := range schema.Params {
			kinds[p.Name] = p.Kind
		}
		assert.Equal(t, KindString, kinds["city"])
		assert.Equal(t, KindInteger, kinds["days"])
	})
}

func TestKindFromName(t *testing.T) {
	assert.Equal(t, KindNumber, kindFromName("float"))
	assert.Equal(t, KindBoolean, kindFromName("bool"))
	assert.Equal(t, KindObject, kindFromName("dict"))
	assert.Equal(t, KindArray, kindFromName("list"))

	t.Run("unrecognized names default to string", func(t *testing.T) {
		assert.Equal(t, KindString, kindFromName("tuple"))
	})
}

func TestInputSchema(t *testing.T) {
	schema, err := CompileSchema(map[string]interface{}{
		"properties": map[string]interface{}{
			"query": map[string]interface{}{"type": "string", "description": "Search query"},
		},
		"required": []string{"query"},
	})
	require.NoError(t, err)

	rendered := schema.InputSchema()
	assert.Equal(t, "object", rendered["type"])
	assert.Equal(t, []string{"query"}, rendered["required"])

	props, ok := rendered["properties"].(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, props, "query")
}
