// Package types contains the shared domain types for the CropSense advisory
// platform: sensor readings, weather observations, classification results,
// and the Advisory value returned to callers. Types here are plain data;
// behavior lives in the packages that own each concern.
package types

import "time"

// WeatherCondition is the simplified weather condition used for farming
// decisions. The upstream provider's dozens of condition codes are collapsed
// into these three buckets before the observation enters the system.
type WeatherCondition string

const (
	ConditionClear  WeatherCondition = "Clear"
	ConditionClouds WeatherCondition = "Clouds"
	ConditionRain   WeatherCondition = "Rain"
)

// Leaf color codes as reported by field sensors. The code is a visual
// indicator of plant nutrient status and is a direct model input.
const (
	LeafYellowSevereDeficiency = 0 // severe nitrogen deficiency
	LeafPaleGreen              = 1
	LeafLightGreen             = 2
	LeafMediumGreen            = 3
	LeafDarkGreen              = 4
	LeafDarkGreenSpots         = 5 // possible toxicity
)

// WeatherCode is the categorical weather input the fertilizer model was
// fitted with. It is derived from a WeatherObservation, never supplied by
// the caller.
type WeatherCode int

const (
	WeatherDryHot    WeatherCode = 0
	WeatherDryCool   WeatherCode = 1
	WeatherHumidHot  WeatherCode = 2
	WeatherHumidCool WeatherCode = 3
	WeatherNormal    WeatherCode = 4
)

// SensorReading is a single validated soil/plant measurement supplied by the
// caller. Nutrient values are in kg/ha. The reading is an immutable value
// object created per request; persistence is the API layer's concern.
type SensorReading struct {
	Nitrogen   float64 `json:"nitrogen"`
	Phosphorus float64 `json:"phosphorus"`
	Potassium  float64 `json:"potassium"`
	LeafColor  int     `json:"leaf_color"`
}

// Validate checks the reading's field domains. It returns an AppError with a
// validation code naming the offending field, or nil if the reading is valid.
func (r SensorReading) Validate() error {
	switch {
	case r.Nitrogen < 0:
		return NewAppError(ErrCodeValidationNutrientRange, "nitrogen must not be negative", nil)
	case r.Phosphorus < 0:
		return NewAppError(ErrCodeValidationNutrientRange, "phosphorus must not be negative", nil)
	case r.Potassium < 0:
		return NewAppError(ErrCodeValidationNutrientRange, "potassium must not be negative", nil)
	case r.LeafColor < LeafYellowSevereDeficiency || r.LeafColor > LeafDarkGreenSpots:
		return NewAppError(ErrCodeValidationLeafColor, "leaf_color must be between 0 and 5", nil)
	}
	return nil
}

// WeatherObservation is a point-in-time weather snapshot for a location.
// Observations are owned by the weather cache: one live observation per
// location key, superseded (not mutated) on refresh.
type WeatherObservation struct {
	Location        string           `json:"location"`
	TemperatureC    float64          `json:"temperature_celsius"`
	HumidityPercent float64          `json:"humidity_percent"`
	Condition       WeatherCondition `json:"condition"`
	RainExpected    bool             `json:"rain_expected"`
	FetchedAt       time.Time        `json:"fetched_at"`

	// IsStale marks an observation served past its TTL because a refresh
	// failed. IsDefault marks the neutral assumption substituted when no
	// observation could be obtained at all.
	IsStale   bool `json:"is_stale"`
	IsDefault bool `json:"is_default"`
}

// Validate checks the observation's field domains before it is used to build
// model features.
func (w WeatherObservation) Validate() error {
	if w.HumidityPercent < 0 || w.HumidityPercent > 100 {
		return NewAppError(ErrCodeValidationHumidityRange, "humidity_percent must be between 0 and 100", nil)
	}
	return nil
}

// FeatureVector is the fixed-order numeric input to the classifier. Its
// length and ordering must exactly match the feature names the model artifact
// was fitted with; a mismatch is a deployment bug, not a runtime condition.
type FeatureVector []float64

// ClassificationResult is the raw model output for one inference call:
// the winning label and the full probability distribution over labels.
// Results are produced fresh per call and never cached.
type ClassificationResult struct {
	Label         string             `json:"label"`
	Probabilities map[string]float64 `json:"probabilities"`
}

// Advisory is the sole output of the advisory composer: a fertilizer
// recommendation with its confidence, the weather snapshot it was computed
// against, and flags describing how it was produced. The value is immutable
// once returned; persistence (and the stored ID) belongs to the caller.
type Advisory struct {
	ID              string             `json:"id,omitempty"`
	Label           string             `json:"label"`
	Confidence      float64            `json:"confidence"`
	Weather         WeatherObservation `json:"weather"`
	OverrideApplied bool               `json:"override_applied"`
	OverrideRule    string             `json:"override_rule,omitempty"`
	ModelVersion    string             `json:"model_version"`
	GeneratedAt     time.Time          `json:"generated_at"`
}
