package advisor

import (
	"context"
	"errors"
	"log/slog"

	"cropsense/internal/types"
	"cropsense/internal/weather"
)

// Metrics records advisory outcomes. Implemented by core.PrometheusCollector;
// a nil Metrics disables recording.
type Metrics interface {
	RecordAdvisory(source string)
}

// Service is the advisory composer: the single entry point that turns a
// sensor reading plus a location into an Advisory. It owns no state of its
// own; all collaborators are injected and the pipeline is pure apart from the
// cache's internal bookkeeping.
type Service struct {
	weather    types.WeatherSource
	classifier types.Classifier
	rules      *RuleEngine
	clock      types.Clock
	logger     *slog.Logger
	metrics    Metrics
}

// NewService wires the composer. A nil clock falls back to the real UTC
// clock; a nil logger falls back to slog.Default; a nil rules engine falls
// back to the default rule set.
func NewService(
	source types.WeatherSource,
	classifier types.Classifier,
	rules *RuleEngine,
	clock types.Clock,
	logger *slog.Logger,
	metrics Metrics,
) *Service {
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if rules == nil {
		rules = NewRuleEngine(DefaultRules())
	}
	return &Service{
		weather:    source,
		classifier: classifier,
		rules:      rules,
		clock:      clock,
		logger:     logger,
		metrics:    metrics,
	}
}

// Advise produces an advisory for the reading at the given location.
//
// Weather degradation is deliberate: when the cache reports
// weather_unavailable (provider down, nothing cached), the composer
// substitutes the neutral default observation and continues; the result
// carries the IsDefault flag instead of an error. Any other weather failure
// (empty location, unknown location) is the caller's problem and propagates.
//
// Validation failures, classifier failures, and configuration mismatches
// propagate as AppErrors for the transport layer to map.
func (s *Service) Advise(ctx context.Context, reading types.SensorReading, location string) (types.Advisory, error) {
	if err := reading.Validate(); err != nil {
		return types.Advisory{}, err
	}

	obs, err := s.weather.Get(ctx, location)
	if err != nil {
		var appErr *types.AppError
		if errors.As(err, &appErr) && appErr.Code == types.ErrCodeWeatherUnavailable {
			obs = weather.DefaultObservation(location, s.clock.Now())
			s.logger.Warn("advising with default weather",
				slog.String("location", location),
				slog.String("cause", appErr.Message),
			)
		} else {
			return types.Advisory{}, err
		}
	}

	vector, err := BuildFeatures(reading, obs)
	if err != nil {
		return types.Advisory{}, err
	}

	result, err := s.classifier.Classify(vector)
	if err != nil {
		return types.Advisory{}, err
	}

	advisory := types.Advisory{
		Label:        result.Label,
		Confidence:   result.Probabilities[result.Label],
		Weather:      obs,
		ModelVersion: s.classifier.Version(),
		GeneratedAt:  s.clock.Now(),
	}

	if rule := s.rules.Apply(reading, obs); rule != nil {
		advisory.Label = rule.Label
		advisory.Confidence = rule.Confidence
		advisory.OverrideApplied = true
		advisory.OverrideRule = rule.Name
		s.logger.Info("override rule applied",
			slog.String("rule", rule.Name),
			slog.String("label", rule.Label),
		)
		s.record("override")
	} else {
		s.record("model")
	}

	return advisory, nil
}

func (s *Service) record(source string) {
	if s.metrics != nil {
		s.metrics.RecordAdvisory(source)
	}
}
