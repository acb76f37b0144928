package masking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "", MaskSecret("  "))
	assert.Equal(t, "****", MaskSecret("abc"))
	assert.Equal(t, "****6789", MaskSecret("123456789"))
}

func TestMaskCredentials(t *testing.T) {
	out := MaskCredentials(map[string]any{
		"client_id":     "sf-client",
		"client_secret": "supersecretvalue",
		"nested":        map[string]any{"refresh_token": "tok_abcdef"},
		"count":         3,
	})

	assert.Equal(t, "sf-client", out["client_id"])
	assert.Equal(t, "****alue", out["client_secret"])
	assert.Equal(t, "****cdef", out["nested"].(map[string]any)["refresh_token"])
	assert.Equal(t, 3, out["count"])
}
