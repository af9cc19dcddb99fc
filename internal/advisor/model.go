package advisor

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/klauspost/compress/gzip"

	"cropsense/internal/types"
)

// Artifact is the on-disk representation of the fitted fertilizer model: a
// multinomial logistic regression plus the standard scaler it was trained
// with. The file is gzip-compressed JSON produced by the training pipeline.
type Artifact struct {
	ModelVersion string   `json:"model_version"`
	FeatureNames []string `json:"feature_names"`
	Labels       []string `json:"labels"`

	Scaler struct {
		Mean []float64 `json:"mean"`
		Std  []float64 `json:"std"`
	} `json:"scaler"`

	// Coefficients is labels x features; Intercepts is one per label.
	Coefficients [][]float64 `json:"coefficients"`
	Intercepts   []float64   `json:"intercepts"`
}

// Model is the loaded classifier. All fields are read-only after construction,
// making concurrent Classify calls safe without synchronization.
type Model struct {
	artifact Artifact
}

// LoadModel reads and validates a model artifact from disk. Any I/O or decode
// failure is model_unavailable (the artifact cannot be used at all); a shape
// inconsistency inside an otherwise readable artifact is configuration_mismatch
// (a deployment or versioning bug). Both are fatal at startup.
func LoadModel(path string) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, types.NewAppError(
			types.ErrCodeModelUnavailable,
			fmt.Sprintf("cannot open model artifact %s", path),
			err,
		)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, types.NewAppError(
			types.ErrCodeModelUnavailable,
			"model artifact is not valid gzip",
			err,
		)
	}
	defer gz.Close()

	var artifact Artifact
	if err := json.NewDecoder(gz).Decode(&artifact); err != nil {
		return nil, types.NewAppError(
			types.ErrCodeModelUnavailable,
			"failed to decode model artifact",
			err,
		)
	}

	return NewModel(artifact)
}

// NewModel validates an in-memory artifact and wraps it as a classifier.
// Exposed so tests can construct models without a file fixture.
func NewModel(artifact Artifact) (*Model, error) {
	if err := validateArtifact(artifact); err != nil {
		return nil, err
	}
	return &Model{artifact: artifact}, nil
}

func validateArtifact(a Artifact) error {
	n := len(a.FeatureNames)
	k := len(a.Labels)

	switch {
	case n == 0 || k == 0:
		return mismatch("artifact declares no features or no labels")
	case n != featureCount:
		return mismatch(fmt.Sprintf("artifact has %d features, service expects %d", n, featureCount))
	case len(a.Scaler.Mean) != n || len(a.Scaler.Std) != n:
		return mismatch("scaler parameter length does not match feature count")
	case len(a.Coefficients) != k:
		return mismatch("coefficient rows do not match label count")
	case len(a.Intercepts) != k:
		return mismatch("intercept count does not match label count")
	case a.ModelVersion == "":
		return mismatch("artifact is missing a model version")
	}

	for i, row := range a.Coefficients {
		if len(row) != n {
			return mismatch(fmt.Sprintf("coefficient row %d has %d values, expected %d", i, len(row), n))
		}
	}
	for i, std := range a.Scaler.Std {
		if std <= 0 {
			return mismatch(fmt.Sprintf("scaler std for feature %q must be positive", a.FeatureNames[i]))
		}
	}

	return nil
}

func mismatch(msg string) error {
	return types.NewAppError(types.ErrCodeConfigMismatch, msg, nil)
}

// Classify scores a feature vector. Pure and side-effect free: the same
// vector always produces the same result. The returned probabilities are a
// softmax over the class scores, so they are non-negative and sum to 1; the
// label is the argmax (first label wins exact ties, keeping results
// deterministic).
func (m *Model) Classify(vector types.FeatureVector) (types.ClassificationResult, error) {
	a := m.artifact

	if len(vector) != len(a.FeatureNames) {
		return types.ClassificationResult{}, types.NewAppErrorWithDetails(
			types.ErrCodeConfigMismatch,
			"feature vector length does not match fitted model",
			nil,
			map[string]any{"got": len(vector), "expected": len(a.FeatureNames)},
		)
	}

	// Standardize with the scaler the model was fitted with.
	scaled := make([]float64, len(vector))
	for i, x := range vector {
		scaled[i] = (x - a.Scaler.Mean[i]) / a.Scaler.Std[i]
	}

	// Class scores, then a numerically stable softmax.
	logits := make([]float64, len(a.Labels))
	maxLogit := math.Inf(-1)
	for k, row := range a.Coefficients {
		score := a.Intercepts[k]
		for i, w := range row {
			score += w * scaled[i]
		}
		logits[k] = score
		if score > maxLogit {
			maxLogit = score
		}
	}

	var sum float64
	exps := make([]float64, len(logits))
	for k, l := range logits {
		exps[k] = math.Exp(l - maxLogit)
		sum += exps[k]
	}

	probabilities := make(map[string]float64, len(a.Labels))
	best := 0
	for k, label := range a.Labels {
		probabilities[label] = exps[k] / sum
		if exps[k] > exps[best] {
			best = k
		}
	}

	return types.ClassificationResult{
		Label:         a.Labels[best],
		Probabilities: probabilities,
	}, nil
}

// Version returns the artifact's model version string.
func (m *Model) Version() string {
	return m.artifact.ModelVersion
}

// Name implements core.HealthProbe.
func (m *Model) Name() string { return "model" }

// Check implements core.HealthProbe. A constructed Model is always usable, so
// the probe simply confirms the process holds a loaded artifact.
func (m *Model) Check(_ context.Context) error {
	if len(m.artifact.Labels) == 0 {
		return types.NewAppError(types.ErrCodeModelUnavailable, "model artifact not loaded", nil)
	}
	return nil
}
