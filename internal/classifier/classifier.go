// Package classifier wraps the pretrained leaf-plant TensorFlow Lite model.
package classifier

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	tflite "github.com/tphakala/go-tflite"

	"github.com/SayHoang/plantidentify/internal/conf"
	"github.com/SayHoang/plantidentify/internal/errors"
	"github.com/SayHoang/plantidentify/internal/imageprep"
	"github.com/SayHoang/plantidentify/internal/logging"
	obsmetrics "github.com/SayHoang/plantidentify/internal/observability/metrics"
)

// modelName labels this model in exported metrics.
const modelName = "leafnet"

// Classifier represents the loaded model with its interpreter and label set.
type Classifier struct {
	interpreter *tflite.Interpreter
	labels      []string
	known       map[string]struct{}
	scientific  map[string]string
	logger      *slog.Logger
	prom        *obsmetrics.ClassifierMetrics
	mu          sync.Mutex
}

// New initializes a new Classifier from the given settings.
func New(settings *conf.Settings) (*Classifier, error) {
	start := time.Now()

	modelData, err := os.ReadFile(settings.Classifier.ModelPath)
	if err != nil {
		return nil, errors.Newf("failed to read model file: %w", err).
			Category(errors.CategoryModelLoad).
			Component("classifier").
			Context("model_path", settings.Classifier.ModelPath).
			Build()
	}

	model := tflite.NewModel(modelData)
	if model == nil {
		return nil, errors.Newf("cannot load TensorFlow Lite model").
			Category(errors.CategoryModelInit).
			Component("classifier").
			Context("model_size_mb", len(modelData)/1024/1024).
			Timing("model-init", time.Since(start)).
			Build()
	}

	threads := settings.Classifier.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}

	options := tflite.NewInterpreterOptions()
	options.SetNumThread(threads)
	options.SetErrorReporter(func(msg string, userData any) {
		logging.Error("TFLite error", "message", msg)
	}, nil)

	interpreter := tflite.NewInterpreter(model, options)
	if interpreter == nil {
		return nil, errors.Newf("cannot create interpreter").
			Category(errors.CategoryModelInit).
			Component("classifier").
			Build()
	}
	if status := interpreter.AllocateTensors(); status != tflite.OK {
		return nil, errors.Newf("tensor allocation failed: %v", status).
			Category(errors.CategoryModelInit).
			Component("classifier").
			Build()
	}

	// The interpreter keeps its own copy of the model data.
	runtime.GC()

	c := &Classifier{
		interpreter: interpreter,
		labels:      settings.Classifier.Labels,
		known:       make(map[string]struct{}, len(settings.Classifier.Labels)),
		scientific:  scientificTable(settings.Classifier.ScientificNames),
		logger:      logging.ForService("classifier"),
	}
	for _, label := range c.labels {
		c.known[label] = struct{}{}
	}

	if c.logger != nil {
		c.logger.Info("classifier model initialized",
			"model_path", settings.Classifier.ModelPath,
			"labels", len(c.labels),
			"threads", threads,
			"load_duration_ms", time.Since(start).Milliseconds())
	}

	return c, nil
}

// SetMetrics attaches Prometheus collectors to the classifier. Optional.
func (c *Classifier) SetMetrics(m *obsmetrics.ClassifierMetrics) {
	c.prom = m
	if m != nil {
		m.SetModelLoaded(c.interpreter != nil)
	}
}

// Predict performs inference on a preprocessed image tensor and returns the
// top class with its confidence as a percentage.
func (c *Classifier) Predict(input *imageprep.Tensor) (Prediction, error) {
	// The interpreter is not safe for concurrent invocation.
	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()
	prediction, err := c.invoke(input)
	if c.prom != nil {
		c.prom.RecordPrediction(modelName, prediction.Label, prediction.Confidence, time.Since(start).Seconds(), err)
	}
	return prediction, err
}

func (c *Classifier) invoke(input *imageprep.Tensor) (Prediction, error) {
	inputTensor := c.interpreter.GetInputTensor(0)
	if inputTensor == nil {
		return Prediction{}, fmt.Errorf("cannot get input tensor")
	}
	copy(inputTensor.Float32s(), input.Data)

	if status := c.interpreter.Invoke(); status != tflite.OK {
		return Prediction{}, fmt.Errorf("tensor invoke failed: %v", status)
	}

	outputTensor := c.interpreter.GetOutputTensor(0)
	if outputTensor == nil {
		return Prediction{}, fmt.Errorf("cannot get output tensor")
	}
	probabilities := extractProbabilities(outputTensor)

	return top1(probabilities, c.labels), nil
}

// Known reports whether label is a member of the model's label set.
func (c *Classifier) Known(label string) bool {
	_, ok := c.known[label]
	return ok
}

// scientificTable rekeys the configured label to scientific name map by
// lowercased label. Config sources differ on key casing (viper lowercases
// map keys read from files), so lookups go through the lowercased form.
func scientificTable(names map[string]string) map[string]string {
	table := make(map[string]string, len(names))
	for label, name := range names {
		table[strings.ToLower(label)] = name
	}
	return table
}

// ScientificName resolves a class label to its canonical scientific name via
// the static configuration table. A missing mapping is a configuration error
// surfaced to the caller, never silently ignored.
func (c *Classifier) ScientificName(label string) (string, error) {
	name, ok := c.scientific[strings.ToLower(label)]
	if !ok || name == "" {
		return "", errors.Newf("no scientific name mapping for class %q", label).
			Category(errors.CategoryConfiguration).
			Component("classifier").
			Context("label", label).
			Build()
	}
	return name, nil
}

// Labels returns the ordered label set the model was trained to emit.
func (c *Classifier) Labels() []string {
	return c.labels
}

// Close releases the interpreter.
func (c *Classifier) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.interpreter != nil {
		c.interpreter.Delete()
		c.interpreter = nil
	}
	if c.prom != nil {
		c.prom.SetModelLoaded(false)
	}
}

// extractProbabilities copies the class probability vector out of the output tensor.
func extractProbabilities(tensor *tflite.Tensor) []float32 {
	size := tensor.Dim(tensor.NumDims() - 1)
	probabilities := make([]float32, size)
	copy(probabilities, tensor.Float32s())
	return probabilities
}
