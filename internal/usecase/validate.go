package usecase

import (
	"fmt"
	"strconv"
	"strings"

	"discord-render-bot/internal/infra/session"
)

const (
	minSteps = 1
	maxSteps = 150
	minCFG   = 1.0
	maxCFG   = 30.0
	maxSeed  = int64(1)<<32 - 1

	minAdapterStrength = 0.1
	maxAdapterStrength = 3.0
)

// ValidationError names the offending field so the chat layer can render a
// structured ephemeral message. Never persisted.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// ParseSteps validates a modal steps input.
func ParseSteps(raw string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, invalid("steps", "must be an integer")
	}
	if n < minSteps || n > maxSteps {
		return 0, invalid("steps", "must be between %d and %d", minSteps, maxSteps)
	}
	return n, nil
}

// ParseCFG validates a modal cfg input.
func ParseCFG(raw string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, invalid("cfg", "must be a number")
	}
	if f < minCFG || f > maxCFG {
		return 0, invalid("cfg", "must be between %g and %g", minCFG, maxCFG)
	}
	return f, nil
}

// ParseSeed resolves a seed input. Empty or "random" draws a fresh uniform
// seed in [0, 2^32); anything else must be an integer in that range.
func ParseSeed(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, "random") {
		return session.RandomSeed(), nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, invalid("seed", "must be an integer, empty, or \"random\"")
	}
	if n < 0 || n > maxSeed {
		return 0, invalid("seed", "must be between 0 and %d", maxSeed)
	}
	return n, nil
}

// ValidateAdapterStrength bounds an adapter slot's strength.
func ValidateAdapterStrength(strength float64) error {
	if strength < minAdapterStrength || strength > maxAdapterStrength {
		return invalid("strength", "must be between %g and %g", minAdapterStrength, maxAdapterStrength)
	}
	return nil
}
