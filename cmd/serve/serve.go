// Package serve implements the serve command, the composition root that
// wires the classifier, species directory, feedback store and HTTP server
// together and runs them until interrupted.
package serve

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/SayHoang/plantidentify/internal/classifier"
	"github.com/SayHoang/plantidentify/internal/conf"
	"github.com/SayHoang/plantidentify/internal/feedback"
	"github.com/SayHoang/plantidentify/internal/httpserver"
	"github.com/SayHoang/plantidentify/internal/inat"
	"github.com/SayHoang/plantidentify/internal/logging"
	"github.com/SayHoang/plantidentify/internal/observability"
	"github.com/SayHoang/plantidentify/internal/store"
)

const shutdownTimeout = 10 * time.Second

// Command creates the serve command.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the web service",
		Long:  "Start the HTTP server hosting the classification web UI, the JSON API and the metrics endpoint.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(settings)
		},
	}

	if err := setupFlags(cmd, settings); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}

	return cmd
}

// setupFlags configures flags specific to the serve command.
func setupFlags(cmd *cobra.Command, settings *conf.Settings) error {
	cmd.Flags().StringVar(&settings.Server.Address, "address", viper.GetString("server.address"), "Listen address and port")
	cmd.Flags().StringVar(&settings.Store.Backend, "store", viper.GetString("store.backend"), "Feedback store backend (local or ftp)")
	cmd.Flags().StringVar(&settings.Store.Prefix, "prefix", viper.GetString("store.prefix"), "Destination prefix for stored feedback images")

	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}

	return nil
}

func runServer(settings *conf.Settings) error {
	metrics, err := observability.NewMetrics()
	if err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}

	model, err := classifier.New(settings)
	if err != nil {
		return fmt.Errorf("failed to initialize classifier: %w", err)
	}
	defer model.Close()
	model.SetMetrics(metrics.Classifier)
	logging.Info("classifier ready",
		"classes", strings.Join(model.Labels(), ", "),
		"threshold", settings.Classifier.Threshold)

	directory := inat.NewClient(inat.ConfigFromSettings(settings))
	defer directory.Close()
	directory.SetMetrics(metrics.Directory)

	bucket, err := store.NewBucket(&settings.Store)
	if err != nil {
		return fmt.Errorf("failed to initialize feedback bucket: %w", err)
	}

	var index *store.Index
	if settings.Store.Index.Enabled {
		index, err = store.OpenIndex(settings.Store.Index.Path)
		if err != nil {
			// The index is advisory, a failed open only loses metadata.
			logging.Warn("metadata index unavailable, continuing without it",
				"path", settings.Store.Index.Path,
				"error", err)
			index = nil
		}
	}

	feedbackStore := store.New(bucket, index)
	defer feedbackStore.Close()
	feedbackStore.SetMetrics(metrics.Store)

	workflow := feedback.New(model, directory, feedbackStore,
		settings.Classifier.Threshold, settings.Store.Prefix)

	server, err := httpserver.NewServer(settings, workflow, metrics)
	if err != nil {
		return fmt.Errorf("failed to initialize HTTP server: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Start()
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
	}

	logging.Info("shutdown signal received, draining requests")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
