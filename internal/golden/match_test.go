package golden

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasPrivateLabelConflict(t *testing.T) {
	spar := "Spar"
	konzum := "K Plus"
	empty := ""

	assert.True(t, hasPrivateLabelConflict("Spar", &konzum))
	assert.False(t, hasPrivateLabelConflict("Spar", &spar))
	assert.False(t, hasPrivateLabelConflict("", &konzum))
	assert.False(t, hasPrivateLabelConflict("Spar", &empty))
	assert.False(t, hasPrivateLabelConflict("Spar", nil))
	assert.False(t, hasPrivateLabelConflict("Nepoznato", &konzum)) // generic brand never conflicts
}
