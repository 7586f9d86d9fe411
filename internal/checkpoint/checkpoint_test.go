package checkpoint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup_KnownCheckpoints(t *testing.T) {
	tests := []struct {
		id   ID
		name string
		role Role
	}{
		{Start, "Motisha Tuk", RoleStart},
		{Terminal, "Gheti", RoleTerminal},
		{FinalOfDay, "Sagaal Pol", RoleFinalOfDay},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cp, ok := Lookup(tt.id)
			require.True(t, ok)
			assert.Equal(t, tt.name, cp.Name)
			assert.Equal(t, tt.role, cp.Role)
		})
	}
}

func TestLookup_Unknown(t *testing.T) {
	_, ok := Lookup(ID(9))
	assert.False(t, ok)
	assert.False(t, Valid(ID(0)))
	assert.Equal(t, "checkpoint 9", ID(9).Name())
}

func TestAll_RouteOrderAndCopy(t *testing.T) {
	all := All()
	require.Len(t, all, 3)
	assert.Equal(t, Start, all[0].ID)
	assert.Equal(t, FinalOfDay, all[2].ID)

	all[0].Name = "mutated"
	assert.Equal(t, "Motisha Tuk", Start.Name(), "All must return a copy")
}
