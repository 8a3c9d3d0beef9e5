package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/SayHoang/plantidentify/cmd/classify"
	"github.com/SayHoang/plantidentify/cmd/serve"
	"github.com/SayHoang/plantidentify/internal/conf"
)

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "plantidentify",
		Short: "Plant leaf classification and feedback collection",
	}

	// Set up the global flags for the root command.
	if err := setupFlags(rootCmd, settings); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
	}

	rootCmd.AddCommand(
		serve.Command(settings),
		classify.Command(settings),
	)

	return rootCmd
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) error {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")
	rootCmd.PersistentFlags().StringVar(&settings.Classifier.ModelPath, "model", viper.GetString("classifier.modelpath"), "Path to the TensorFlow Lite model file")
	rootCmd.PersistentFlags().Float64VarP(&settings.Classifier.Threshold, "threshold", "t", viper.GetFloat64("classifier.threshold"), "Confidence threshold in percent for a confident prediction")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}

	return nil
}
