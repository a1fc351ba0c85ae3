package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValidUUID(t *testing.T) {
	assert.True(t, IsValidUUID("a2f1c3d4-5678-4abc-9def-0123456789ab"))
	assert.False(t, IsValidUUID(""))
	assert.False(t, IsValidUUID("a2f1c3d4"))
	assert.False(t, IsValidUUID("A2F1C3D4-5678-4ABC-9DEF-0123456789AB"))
}

func TestIsValidEmail(t *testing.T) {
	assert.True(t, IsValidEmail("ada@example.com"))
	assert.False(t, IsValidEmail(""))
	assert.False(t, IsValidEmail("not an email"))
	assert.False(t, IsValidEmail("missing@tld"))
}

func TestIsValidEnum(t *testing.T) {
	reasons := []string{"manual", "security"}
	assert.True(t, IsValidEnum("manual", reasons))
	assert.True(t, IsValidEnum("", reasons), "empty value defers to defaults")
	assert.False(t, IsValidEnum("other", reasons))
}
