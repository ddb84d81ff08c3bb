package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashString(t *testing.T) {
	h := HashString("jo@firm.com")

	assert.Len(t, h, 64)
	assert.Equal(t, h, HashString("  JO@Firm.com "))
	assert.NotEqual(t, h, HashString("jo@firm.org"))
	assert.NotContains(t, h, "jo@firm.com")
}
