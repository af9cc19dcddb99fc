package types

import (
	"context"
	"time"
)

// Validator is implemented by entities to self-validate.
type Validator interface {
	Validate() error
}

// WeatherSource defines how the platform obtains a current weather observation
// for a location. Implemented by the weather cache; the advisory composer
// depends on this interface so tests can inject fixed observations.
type WeatherSource interface {
	Get(ctx context.Context, location string) (WeatherObservation, error)
}

// Classifier scores a feature vector against the fitted fertilizer model.
// Implementations hold read-only model state loaded once at startup; Classify
// must be a pure, side-effect-free call safe for concurrent use.
type Classifier interface {
	Classify(vector FeatureVector) (ClassificationResult, error)
	Version() string
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the real system time (always UTC).
type RealClock struct{}

// Now returns the current time in UTC.
func (RealClock) Now() time.Time { return time.Now().UTC() }
