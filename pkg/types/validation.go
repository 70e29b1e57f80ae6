package types

import "regexp"

// Compiled once at package init, matching the teacher's approach to
// high-frequency validation on the hot connection-handshake path.
var userIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// IsValidUserID checks the 1-50 character alphanumeric-plus-separator rule.
func IsValidUserID(userID string) bool {
	if len(userID) < 1 || len(userID) > 50 {
		return false
	}
	return userIDRegex.MatchString(userID)
}

// IsValidExperimentGroup checks membership in the fixed four-group set.
func IsValidExperimentGroup(group string) bool {
	switch group {
	case GroupExperiment, GroupControl1, GroupControl2, GroupDebug:
		return true
	default:
		return false
	}
}

// NormalizeExperimentGroup applies the handshake default when the client
// omitted the field, and rejects anything outside the fixed set.
func NormalizeExperimentGroup(group string) (string, error) {
	if group == "" {
		return DefaultExperimentGroup, nil
	}
	if !IsValidExperimentGroup(group) {
		return "", ErrInvalidExperimentGroup
	}
	return group, nil
}

// IsValidEffectType checks membership in the fixed nine-effect set.
func IsValidEffectType(effectType string) bool {
	switch effectType {
	case EffectSparkle, EffectWave, EffectExcitement, EffectBounce, EffectCheer,
		EffectShimmer, EffectFocus, EffectGroove, EffectClappingIcons:
		return true
	default:
		return false
	}
}

// ClampIntensity enforces the [0,1] post-formula clamp §4.5 mandates
// uniformly, regardless of which ladder rank produced the raw value.
func ClampIntensity(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
