// conf/defaults.go default values for settings
package conf

import (
	"github.com/spf13/viper"
)

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "plantidentify")
	viper.SetDefault("main.log.level", "info")
	viper.SetDefault("main.log.path", "logs/")

	viper.SetDefault("classifier.modelpath", "model/best_plant_classifier_vgg16.tflite")
	viper.SetDefault("classifier.labels", []string{"Pothos", "Monstera"})
	viper.SetDefault("classifier.scientificnames", map[string]string{
		"Pothos":   "Epipremnum_aureum",
		"Monstera": "Monstera_deliciosa",
	})
	viper.SetDefault("classifier.threshold", 90.0)
	viper.SetDefault("classifier.threads", 0)

	viper.SetDefault("directory.baseurl", "https://api.inaturalist.org/v1")
	viper.SetDefault("directory.autocompletettl", "10m")
	viper.SetDefault("directory.lookupttl", "1h")
	viper.SetDefault("directory.autocompletetimeout", "5s")
	viper.SetDefault("directory.taxatimeout", "10s")
	viper.SetDefault("directory.observationstimeout", "15s")
	viper.SetDefault("directory.ratelimitms", 250)

	viper.SetDefault("store.backend", "local")
	viper.SetDefault("store.prefix", "collected_data")
	viper.SetDefault("store.local.root", "data/")
	viper.SetDefault("store.ftp.host", "")
	viper.SetDefault("store.ftp.port", 21)
	viper.SetDefault("store.ftp.username", "")
	viper.SetDefault("store.ftp.passwordfile", "")
	viper.SetDefault("store.ftp.basepath", "/")
	viper.SetDefault("store.ftp.timeout", "30s")
	viper.SetDefault("store.index.enabled", true)
	viper.SetDefault("store.index.path", "data/feedback.db")

	viper.SetDefault("server.address", ":8080")
	viper.SetDefault("server.sessionsecret", "")
	viper.SetDefault("server.sessionttl", "1h")
}
