package classifier

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// ImageNet normalisation constants used when the config does not override them.
var (
	DefaultMean = [3]float32{0.485, 0.456, 0.406}
	DefaultStd  = [3]float32{0.229, 0.224, 0.225}
)

const defaultImageSide = 224

// ImageSize is the model input resolution. In JSON it is either a single
// integer (square) or [height, width].
type ImageSize struct {
	Height int
	Width  int
}

func (s *ImageSize) UnmarshalJSON(data []byte) error {
	var side int
	if err := json.Unmarshal(data, &side); err == nil {
		s.Height, s.Width = side, side
		return nil
	}
	var pair []int
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("image_size must be an integer or [height, width]: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("image_size must have 2 entries, got %d", len(pair))
	}
	s.Height, s.Width = pair[0], pair[1]
	return nil
}

func (s ImageSize) MarshalJSON() ([]byte, error) {
	return json.Marshal([]int{s.Height, s.Width})
}

// ModelConfig is the model configuration document shipped next to the weights.
type ModelConfig struct {
	ClassLabels map[string]string `json:"class_labels"`
	ImageSize   ImageSize         `json:"image_size"`
	Mean        *[3]float32       `json:"mean,omitempty"`
	Std         *[3]float32       `json:"std,omitempty"`
	InputName   string            `json:"input_name,omitempty"`
	OutputName  string            `json:"output_name,omitempty"`
	OutputShape []int64           `json:"output_shape,omitempty"`
}

// ModelSpec is the validated, typed form of ModelConfig.
type ModelSpec struct {
	Labels     LabelSet
	Height     int
	Width      int
	Mean       [3]float32
	Std        [3]float32
	InputName  string
	OutputName string
}

// DefaultModelSpec describes the stock five-class 224x224 model.
func DefaultModelSpec() ModelSpec {
	return ModelSpec{
		Labels:     DefaultLabels,
		Height:     defaultImageSide,
		Width:      defaultImageSide,
		Mean:       DefaultMean,
		Std:        DefaultStd,
		InputName:  "input",
		OutputName: "output",
	}
}

// LoadModelSpec reads the configuration document at path. found is false
// when the file does not exist, in which case the default spec is returned.
func LoadModelSpec(path string) (spec ModelSpec, found bool, err error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultModelSpec(), false, nil
	}
	if err != nil {
		return ModelSpec{}, false, fmt.Errorf("failed to read model config: %w", err)
	}

	var cfg ModelConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return ModelSpec{}, true, fmt.Errorf("failed to parse model config: %w", err)
	}
	spec, err = cfg.Spec()
	return spec, true, err
}

// Spec validates the document and fills in defaults.
func (c ModelConfig) Spec() (ModelSpec, error) {
	spec := DefaultModelSpec()

	labels, err := LabelSetFromIndexMap(c.ClassLabels)
	if err != nil {
		return ModelSpec{}, err
	}
	spec.Labels = labels

	if c.ImageSize.Height != 0 || c.ImageSize.Width != 0 {
		if c.ImageSize.Height <= 0 || c.ImageSize.Width <= 0 {
			return ModelSpec{}, fmt.Errorf("image_size must be positive, got %dx%d", c.ImageSize.Height, c.ImageSize.Width)
		}
		spec.Height, spec.Width = c.ImageSize.Height, c.ImageSize.Width
	}
	if c.Mean != nil {
		spec.Mean = *c.Mean
	}
	if c.Std != nil {
		for i, v := range c.Std {
			if v == 0 {
				return ModelSpec{}, fmt.Errorf("std[%d] must not be zero", i)
			}
		}
		spec.Std = *c.Std
	}
	if c.InputName != "" {
		spec.InputName = c.InputName
	}
	if c.OutputName != "" {
		spec.OutputName = c.OutputName
	}

	if n := len(c.OutputShape); n > 0 {
		if dim := c.OutputShape[n-1]; dim > 0 && int(dim) != labels.Len() {
			return ModelSpec{}, fmt.Errorf("model outputs %d classes but %d labels are configured", dim, labels.Len())
		}
	}
	return spec, nil
}

// InputShape is the NCHW shape fed to the model.
func (s ModelSpec) InputShape() []int64 {
	return []int64{1, 3, int64(s.Height), int64(s.Width)}
}

// OutputShape is the shape of the logits tensor.
func (s ModelSpec) OutputShape() []int64 {
	return []int64{1, int64(s.Labels.Len())}
}
