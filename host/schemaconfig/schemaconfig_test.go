package schemaconfig_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scriptcore/unitscript/compiler"
	"github.com/scriptcore/unitscript/host/schemaconfig"
)

func TestLoad_ValidManifestProducesSchema(t *testing.T) {
	manifest := []byte(`{
		"bindings": {"self": "Bot", "enemy": "Enemy"},
		"types": {
			"Bot": {
				"attributes": {
					"forward": {"result": "any", "callable": true},
					"hp": {"result": "number", "callable": false}
				}
			}
		}
	}`)

	schema, err := schemaconfig.Load(manifest)
	require.NoError(t, err)

	tag, ok := schema.Lookup("self")
	require.True(t, ok)
	assert.Equal(t, compiler.TypeTag("Bot"), tag)

	attr, ok := schema.Attribute(compiler.TypeTag("Bot"), "forward")
	require.True(t, ok)
	assert.True(t, attr.Callable)
}

func TestLoad_RejectsManifestMissingRequiredField(t *testing.T) {
	manifest := []byte(`{"bindings": {"self": "Bot"}}`)

	_, err := schemaconfig.Load(manifest)
	assert.Error(t, err)
}

func TestLoad_RejectsMalformedJSON(t *testing.T) {
	_, err := schemaconfig.Load([]byte(`{not json`))
	assert.Error(t, err)
}
