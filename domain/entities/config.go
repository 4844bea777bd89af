package entities

import "fmt"

// AppConfig holds presentation toggles forwarded to the client untouched.
// The orchestrator only validates numeric ranges.
type AppConfig struct {
	IntroText         string  `json:"intro_text"`
	AnimationsEnabled bool    `json:"animations_enabled"`
	RotationEnabled   bool    `json:"rotation_enabled"`
	RotationSpeed     float64 `json:"rotation_speed"`
}

// DefaultAppConfig returns the configuration used before an admin changes it.
func DefaultAppConfig() AppConfig {
	return AppConfig{
		IntroText:         "Welcome back, system online.",
		AnimationsEnabled: true,
		RotationEnabled:   true,
		RotationSpeed:     1,
	}
}

// Validate validates numeric ranges.
func (c AppConfig) Validate() error {
	if c.RotationSpeed < 0 || c.RotationSpeed > 10 {
		return fmt.Errorf("rotation speed must be between 0 and 10, got %f", c.RotationSpeed)
	}
	return nil
}
