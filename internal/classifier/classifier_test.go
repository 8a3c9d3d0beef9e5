package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SayHoang/plantidentify/internal/errors"
)

func TestScientificNameKeyCasing(t *testing.T) {
	t.Parallel()

	// Config sources disagree on map key casing: defaults keep the label
	// case, a config file arrives lowercased. Both must resolve.
	tests := []struct {
		name  string
		table map[string]string
	}{
		{"mixed-case keys", map[string]string{"Pothos": "Epipremnum_aureum", "Monstera": "Monstera_deliciosa"}},
		{"lowercased keys", map[string]string{"pothos": "Epipremnum_aureum", "monstera": "Monstera_deliciosa"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := &Classifier{scientific: scientificTable(tt.table)}

			name, err := c.ScientificName("Pothos")
			require.NoError(t, err)
			assert.Equal(t, "Epipremnum_aureum", name)

			name, err = c.ScientificName("Monstera")
			require.NoError(t, err)
			assert.Equal(t, "Monstera_deliciosa", name)
		})
	}
}

func TestScientificNameMissingMapping(t *testing.T) {
	t.Parallel()

	c := &Classifier{scientific: scientificTable(map[string]string{"pothos": "Epipremnum_aureum"})}

	_, err := c.ScientificName("Monstera")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}
