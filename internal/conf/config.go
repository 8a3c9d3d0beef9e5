// config.go: settings struct and functions to load the plantidentify configuration.
package conf

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// MainSettings contains process-wide settings.
type MainSettings struct {
	Name string      // application name used in logs
	Log  LogSettings // main log settings
}

// LogSettings contains settings for application logging.
type LogSettings struct {
	Level string // minimum log level: debug, info, warn, error
	Path  string // directory for per-service log files
}

// ClassifierSettings contains settings for the leaf image classifier model.
type ClassifierSettings struct {
	ModelPath       string            // path to the TensorFlow Lite model file
	Labels          []string          // ordered class labels, must match training order
	ScientificNames map[string]string // class label -> canonical scientific name
	Threshold       float64           // confidence threshold in percent for a confident prediction
	Threads         int               // interpreter threads, 0 for CPU count
}

// DirectorySettings contains settings for the species directory (iNaturalist) client.
type DirectorySettings struct {
	BaseURL             string        // API base URL
	AutocompleteTTL     time.Duration // cache TTL for autocomplete queries
	LookupTTL           time.Duration // cache TTL for taxa and observation lookups
	AutocompleteTimeout time.Duration // request timeout for autocomplete
	TaxaTimeout         time.Duration // request timeout for taxa search
	ObservationsTimeout time.Duration // request timeout for observation listing
	RateLimitMS         int           // minimum milliseconds between requests
}

// LocalBucketSettings configures the directory-tree object store backend.
type LocalBucketSettings struct {
	Root string // root directory for stored objects
}

// FTPBucketSettings configures the remote FTP object store backend.
type FTPBucketSettings struct {
	Host         string        // FTP server host
	Port         int           // FTP server port
	Username     string        // login user
	PasswordFile string        // path to a file holding the password; env var takes precedence
	BasePath     string        // base path on the server
	Timeout      time.Duration // dial and transfer timeout
}

// IndexSettings configures the secondary feedback metadata index.
type IndexSettings struct {
	Enabled bool   // false disables the advisory metadata index
	Path    string // sqlite database path
}

// StoreSettings contains settings for the feedback store.
type StoreSettings struct {
	Backend string              // object store backend: local or ftp
	Prefix  string              // destination prefix for stored feedback images
	Local   LocalBucketSettings // local backend settings
	FTP     FTPBucketSettings   // ftp backend settings
	Index   IndexSettings       // metadata index settings
}

// ServerSettings contains settings for the HTTP server.
type ServerSettings struct {
	Address       string        // listen address, host:port
	SessionSecret string        // cookie signing secret, generated when empty
	SessionTTL    time.Duration // idle lifetime of a browser session's workflow state
}

// Settings is the root of the configuration tree.
type Settings struct {
	Debug bool // true to enable debug logging

	Main       MainSettings
	Classifier ClassifierSettings
	Directory  DirectorySettings
	Store      StoreSettings
	Server     ServerSettings
}

// Load reads the configuration file and environment variables into Settings.
func Load() (*Settings, error) {
	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}
	return settingsFromViper()
}

// settingsFromViper unmarshals the current viper state into Settings and
// validates the result.
func settingsFromViper() (*Settings, error) {
	settings := &Settings{}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	normalizeScientificNames(settings)

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	return settings, nil
}

// normalizeScientificNames rekeys the class to scientific name table by
// lowercased class label. Viper lowercases nested map keys read from a config
// file but leaves list entries alone, so without this a file-provided table
// never matches the mixed-case labels.
func normalizeScientificNames(settings *Settings) {
	names := settings.Classifier.ScientificNames
	if len(names) == 0 {
		return
	}
	normalized := make(map[string]string, len(names))
	for label, name := range names {
		normalized[strings.ToLower(label)] = name
	}
	settings.Classifier.ScientificNames = normalized
}

// initViper initializes viper with default values and reads the configuration file.
func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	viper.SetEnvPrefix("plantidentify")
	viper.AutomaticEnv()

	// function defined in defaults.go
	setDefaultConfig()

	err = viper.ReadInConfig()
	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			// No config file is fine, defaults apply.
			return nil
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// GetDefaultConfigPaths returns the OS specific config file search paths.
func GetDefaultConfigPaths() ([]string, error) {
	exePath, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("error getting executable path: %w", err)
	}
	exeDir := filepath.Dir(exePath)

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("error getting home directory: %w", err)
	}

	var configPaths []string
	switch runtime.GOOS {
	case "windows":
		configPaths = []string{
			exeDir,
			filepath.Join(homeDir, "AppData", "Roaming", "plantidentify"),
		}
	default:
		configPaths = []string{
			".",
			filepath.Join(homeDir, ".config", "plantidentify"),
			"/etc/plantidentify",
		}
	}

	return configPaths, nil
}

// ValidateSettings checks the loaded settings for configuration errors that
// would otherwise surface much later as confusing runtime failures.
func ValidateSettings(settings *Settings) error {
	if len(settings.Classifier.Labels) == 0 {
		return fmt.Errorf("classifier.labels must list at least one class")
	}
	if settings.Classifier.Threshold < 0 || settings.Classifier.Threshold > 100 {
		return fmt.Errorf("classifier.threshold must be within [0,100], got %v", settings.Classifier.Threshold)
	}
	for _, label := range settings.Classifier.Labels {
		if _, ok := settings.Classifier.ScientificNames[strings.ToLower(label)]; !ok {
			// A missing mapping is reported per action, not fatal at load time,
			// but warn early so it can be fixed before users hit it.
			fmt.Fprintf(os.Stderr, "warning: no scientific name mapping for class %q\n", label)
		}
	}
	switch settings.Store.Backend {
	case "local", "ftp":
	default:
		return fmt.Errorf("store.backend must be local or ftp, got %q", settings.Store.Backend)
	}
	return nil
}
