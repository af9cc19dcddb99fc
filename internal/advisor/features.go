// Package advisor contains the advisory composition engine: feature building,
// the fitted fertilizer classifier, the override rule engine, and the service
// that orchestrates them into a single Advisory per request.
package advisor

import (
	"cropsense/internal/types"
)

// featureCount is the number of inputs the fertilizer model was fitted with:
// nitrogen, phosphorus, potassium, leaf_color, weather_code, in that order.
const featureCount = 5

// hotTemperatureC is the threshold above which a day counts as "hot" for the
// categorical weather code.
const hotTemperatureC = 25.0

// BuildFeatures converts a validated sensor reading and weather observation
// into the fixed-order feature vector the classifier expects. It is a pure
// function: identical inputs always produce identical vectors.
//
// Raw values are emitted here; standardization happens inside the classifier,
// whose scaler parameters ship with the model artifact.
func BuildFeatures(reading types.SensorReading, weather types.WeatherObservation) (types.FeatureVector, error) {
	if err := reading.Validate(); err != nil {
		return nil, err
	}
	if err := weather.Validate(); err != nil {
		return nil, err
	}

	return types.FeatureVector{
		reading.Nitrogen,
		reading.Phosphorus,
		reading.Potassium,
		float64(reading.LeafColor),
		float64(WeatherToCode(weather)),
	}, nil
}

// WeatherToCode collapses an observation into the categorical weather code the
// model was trained on. Rain splits on temperature into humid-hot/humid-cool;
// everything else splits into dry-hot/dry-cool. A defaulted observation or an
// unrecognized condition maps to the neutral code.
func WeatherToCode(weather types.WeatherObservation) types.WeatherCode {
	if weather.IsDefault {
		return types.WeatherNormal
	}
	switch weather.Condition {
	case types.ConditionRain:
		if weather.TemperatureC > hotTemperatureC {
			return types.WeatherHumidHot
		}
		return types.WeatherHumidCool
	case types.ConditionClear, types.ConditionClouds:
		if weather.TemperatureC > hotTemperatureC {
			return types.WeatherDryHot
		}
		return types.WeatherDryCool
	default:
		return types.WeatherNormal
	}
}
