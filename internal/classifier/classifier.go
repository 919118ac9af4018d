// Package classifier turns a photo of waste into a material label with a
// confidence distribution, using a pretrained image classification model.
package classifier

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
)

// Classifier is built once at startup and shared by all requests. It is
// either loaded (engine != nil) or permanently unavailable for the life of
// the process.
type Classifier struct {
	engine Engine
	spec   ModelSpec
	pre    Preprocessor
	logger *zap.Logger
}

// LoadOptions locate the model artifacts on disk.
type LoadOptions struct {
	ConfigPath string
	// ModelPaths are tried in order; the first existing file is loaded.
	ModelPaths     []string
	OnnxRuntimeLib string
}

// EngineFactory opens a model file. It exists so tests can load without
// ONNX Runtime.
type EngineFactory func(modelPath string, spec ModelSpec) (Engine, error)

// New wraps an already opened engine.
func New(engine Engine, spec ModelSpec, logger *zap.Logger) *Classifier {
	return &Classifier{
		engine: engine,
		spec:   spec,
		pre:    newPreprocessor(spec),
		logger: logger.Named("classifier"),
	}
}

// Unavailable returns a classifier that fails every call with ErrModelUnavailable.
func Unavailable(logger *zap.Logger) *Classifier {
	return New(nil, DefaultModelSpec(), logger)
}

// Load reads the model configuration and opens the first model file found.
// It never fails: any problem is logged and yields an unavailable classifier.
func Load(opts LoadOptions, logger *zap.Logger) *Classifier {
	return LoadWith(opts, func(modelPath string, spec ModelSpec) (Engine, error) {
		return NewOnnxEngine(modelPath, opts.OnnxRuntimeLib, spec)
	}, logger)
}

// LoadWith is Load with a custom engine factory.
func LoadWith(opts LoadOptions, open EngineFactory, logger *zap.Logger) *Classifier {
	log := logger.Named("classifier")

	spec, found, err := LoadModelSpec(opts.ConfigPath)
	if err != nil {
		log.Error("invalid model config, model unavailable", zap.String("path", opts.ConfigPath), zap.Error(err))
		return Unavailable(logger)
	}
	if found {
		log.Info("loaded model config",
			zap.Int("classes", spec.Labels.Len()),
			zap.Int("height", spec.Height), zap.Int("width", spec.Width))
	} else {
		log.Warn("model config not found, using default configuration", zap.String("path", opts.ConfigPath))
	}

	modelPath := firstExisting(opts.ModelPaths)
	if modelPath == "" {
		log.Error("no model file found, model unavailable", zap.Strings("looked_for", opts.ModelPaths))
		return Unavailable(logger)
	}

	engine, err := open(modelPath, spec)
	if err != nil {
		log.Error("failed to open model, model unavailable", zap.String("path", modelPath), zap.Error(err))
		return Unavailable(logger)
	}

	log.Info("model loaded", zap.String("path", modelPath), zap.Strings("classes", spec.Labels.Names()))
	return New(engine, spec, logger)
}

func firstExisting(paths []string) string {
	for _, p := range paths {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p
		}
	}
	return ""
}

// Available reports whether a model is loaded.
func (c *Classifier) Available() bool { return c.engine != nil }

// Labels returns the material names in model output order.
func (c *Classifier) Labels() []string { return c.spec.Labels.Names() }

// Classify decodes the image at path and runs it through the model. On
// failure the returned error wraps ErrModelUnavailable, ErrDecode or
// ErrInference and the prediction is nil.
func (c *Classifier) Classify(ctx context.Context, path string) (*Prediction, error) {
	if c.engine == nil {
		return nil, &Error{Kind: ErrModelUnavailable}
	}

	input, err := c.pre.LoadTensor(path)
	if err != nil {
		return nil, &Error{Kind: ErrDecode, Path: path, Err: err}
	}

	if err := ctx.Err(); err != nil {
		return nil, &Error{Kind: ErrInference, Path: path, Err: err}
	}

	prediction, err := c.infer(input)
	if err != nil {
		return nil, &Error{Kind: ErrInference, Path: path, Err: err}
	}

	c.logger.Debug("classified image",
		zap.String("path", path),
		zap.String("predicted_class", prediction.PredictedClass),
		zap.Float64("confidence", prediction.ConfidenceScore))
	return prediction, nil
}

func (c *Classifier) infer(input []float32) (prediction *Prediction, err error) {
	defer func() {
		if r := recover(); r != nil {
			prediction = nil
			err = fmt.Errorf("engine panic: %v", r)
		}
	}()

	logits, err := c.engine.Infer(input)
	if err != nil {
		return nil, err
	}
	return newPrediction(c.spec.Labels, logits)
}

// Close releases the model.
func (c *Classifier) Close() error {
	if c.engine == nil {
		return nil
	}
	return c.engine.Close()
}
