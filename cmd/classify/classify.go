// Package classify implements the classify command, a one-shot model run
// over a single image file for smoke testing a model outside the web UI.
package classify

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/SayHoang/plantidentify/internal/classifier"
	"github.com/SayHoang/plantidentify/internal/conf"
	"github.com/SayHoang/plantidentify/internal/imageprep"
)

// Command creates the classify command.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "classify [image file]",
		Short: "Classify a single image file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return classifyFile(settings, args[0])
		},
	}
}

func classifyFile(settings *conf.Settings, imagePath string) error {
	data, err := os.ReadFile(imagePath)
	if err != nil {
		return fmt.Errorf("failed to read image: %w", err)
	}

	tensor, err := imageprep.Preprocess(data)
	if err != nil {
		return fmt.Errorf("failed to preprocess image: %w", err)
	}

	model, err := classifier.New(settings)
	if err != nil {
		return fmt.Errorf("failed to initialize classifier: %w", err)
	}
	defer model.Close()

	prediction, err := model.Predict(tensor)
	if err != nil {
		return fmt.Errorf("inference failed: %w", err)
	}

	fmt.Printf("%s: %s (%.2f%%)\n", imagePath, prediction.Label, prediction.Confidence)
	if prediction.Confidence < settings.Classifier.Threshold {
		fmt.Println("below confidence threshold, treat as a guess")
	}
	return nil
}
