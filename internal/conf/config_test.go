package conf

import (
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultSettings(t *testing.T) *Settings {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	setDefaultConfig()

	settings, err := settingsFromViper()
	require.NoError(t, err)
	return settings
}

func TestDefaultsUnmarshal(t *testing.T) {
	settings := defaultSettings(t)

	assert.Equal(t, []string{"Pothos", "Monstera"}, settings.Classifier.Labels)
	assert.InDelta(t, 90.0, settings.Classifier.Threshold, 0.001)
	assert.Equal(t, "Epipremnum_aureum", settings.Classifier.ScientificNames["pothos"])
	assert.Equal(t, "Monstera_deliciosa", settings.Classifier.ScientificNames["monstera"])

	assert.Equal(t, "https://api.inaturalist.org/v1", settings.Directory.BaseURL)
	assert.Positive(t, settings.Directory.AutocompleteTTL)
	assert.Positive(t, settings.Directory.LookupTTL)

	assert.Equal(t, "local", settings.Store.Backend)
	assert.Equal(t, "collected_data", settings.Store.Prefix)
	assert.True(t, settings.Store.Index.Enabled)

	assert.Equal(t, ":8080", settings.Server.Address)
	assert.Positive(t, settings.Server.SessionTTL)
}

func TestDefaultsAreValid(t *testing.T) {
	settings := defaultSettings(t)
	assert.NoError(t, ValidateSettings(settings))
}

// Viper lowercases nested map keys read from a config file while leaving list
// entries alone. A mixed-case scientificnames table from a file must still
// resolve for every configured label.
func TestConfigFileScientificNameCase(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	setDefaultConfig()

	configFile := `
classifier:
  labels:
    - Pothos
    - Monstera
  scientificnames:
    Pothos: Epipremnum_aureum
    Monstera: Monstera_deliciosa
`
	viper.SetConfigType("yaml")
	require.NoError(t, viper.ReadConfig(strings.NewReader(configFile)))

	settings, err := settingsFromViper()
	require.NoError(t, err)

	assert.Equal(t, []string{"Pothos", "Monstera"}, settings.Classifier.Labels)
	for _, label := range settings.Classifier.Labels {
		name, ok := settings.Classifier.ScientificNames[strings.ToLower(label)]
		assert.True(t, ok, "no scientific name for label %q", label)
		assert.NotEmpty(t, name)
	}
	assert.Equal(t, "Epipremnum_aureum", settings.Classifier.ScientificNames["pothos"])
	assert.Equal(t, "Monstera_deliciosa", settings.Classifier.ScientificNames["monstera"])
}

func TestValidateSettings(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr string
	}{
		{
			name:    "no labels",
			mutate:  func(s *Settings) { s.Classifier.Labels = nil },
			wantErr: "classifier.labels",
		},
		{
			name:    "threshold above 100",
			mutate:  func(s *Settings) { s.Classifier.Threshold = 101 },
			wantErr: "classifier.threshold",
		},
		{
			name:    "negative threshold",
			mutate:  func(s *Settings) { s.Classifier.Threshold = -1 },
			wantErr: "classifier.threshold",
		},
		{
			name:    "unknown store backend",
			mutate:  func(s *Settings) { s.Store.Backend = "s3" },
			wantErr: "store.backend",
		},
		{
			name:   "ftp backend is accepted",
			mutate: func(s *Settings) { s.Store.Backend = "ftp" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := defaultSettings(t)
			tt.mutate(settings)

			err := ValidateSettings(settings)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
