package config

import (
	"hash/fnv"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// FeatureFlags manages feature toggles with percentage rollout.
// A partially rolled out feature is decided per subject (a resident id,
// for example) so the same subject always lands in the same bucket.
type FeatureFlags struct {
	mu sync.RWMutex

	features map[string]*Feature

	// Override rules (for testing/debugging)
	subjectOverrides map[string]map[string]bool // subject -> feature -> enabled
}

// Feature represents a single feature flag.
type Feature struct {
	Name        string
	Description string
	Enabled     bool

	// Rollout percentage (0-100)
	// Subjects are assigned based on hash of their id
	RolloutPercent int
}

// Predefined feature flag names.
const (
	FeatureProgressCache   = "progress_cache"   // Redis cache for resident progress
	FeatureEventStreaming  = "event_streaming"  // Publish assessment events to Kafka
	FeatureProgressETag    = "progress_etag"    // ETag / 304 on resident progress
	FeatureProgramProgress = "program_progress" // Program-wide progress endpoint
)

// LoadFeatureFlags loads feature flags from environment variables.
func LoadFeatureFlags() *FeatureFlags {
	ff := &FeatureFlags{
		features:         make(map[string]*Feature),
		subjectOverrides: make(map[string]map[string]bool),
	}

	ff.initializeDefaults()
	ff.loadFromEnvironment()

	return ff
}

func (ff *FeatureFlags) initializeDefaults() {
	ff.features[FeatureProgressCache] = &Feature{
		Name:           FeatureProgressCache,
		Description:    "Cache resident progress responses in Redis",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureEventStreaming] = &Feature{
		Name:           FeatureEventStreaming,
		Description:    "Publish assessment events to Kafka",
		Enabled:        false, // needs brokers
		RolloutPercent: 0,
	}

	ff.features[FeatureProgressETag] = &Feature{
		Name:           FeatureProgressETag,
		Description:    "Conditional GET on resident progress",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureProgramProgress] = &Feature{
		Name:           FeatureProgramProgress,
		Description:    "Program-wide progress overview",
		Enabled:        true,
		RolloutPercent: 100,
	}
}

// loadFromEnvironment loads feature flag overrides from env vars.
// Format: FEATURE_<NAME>=true|false|<percent>[%]
// Example: FEATURE_PROGRESS_CACHE=false
// Example: FEATURE_PROGRESS_CACHE=25% (25% of residents)
func (ff *FeatureFlags) loadFromEnvironment() {
	for name, feature := range ff.features {
		val := strings.TrimSpace(os.Getenv(featureNameToEnvKey(name)))
		if val == "" {
			continue
		}

		if b, err := strconv.ParseBool(val); err == nil {
			feature.Enabled = b
			if b {
				feature.RolloutPercent = 100
			} else {
				feature.RolloutPercent = 0
			}
			continue
		}

		if p, err := strconv.Atoi(strings.TrimSuffix(val, "%")); err == nil && p >= 0 && p <= 100 {
			feature.Enabled = p > 0
			feature.RolloutPercent = p
		}
	}
}

// featureNameToEnvKey converts feature name to environment variable key.
// "progress_cache" -> "FEATURE_PROGRESS_CACHE"
func featureNameToEnvKey(name string) string {
	key := strings.ToUpper(name)
	key = strings.ReplaceAll(key, ".", "_")
	return "FEATURE_" + key
}

// IsEnabled checks if a feature is enabled for subject. An empty subject
// asks whether the feature is on at all.
func (ff *FeatureFlags) IsEnabled(featureName, subject string) bool {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	if subject != "" {
		if overrides, ok := ff.subjectOverrides[subject]; ok {
			if enabled, ok := overrides[featureName]; ok {
				return enabled
			}
		}
	}

	feature, ok := ff.features[featureName]
	if !ok || !feature.Enabled {
		return false
	}

	if feature.RolloutPercent < 100 && subject != "" {
		return inRollout(subject, featureName, feature.RolloutPercent)
	}

	return feature.RolloutPercent > 0
}

// inRollout uses consistent hashing so subjects stay in their bucket.
func inRollout(subject, featureName string, percent int) bool {
	h := fnv.New32a()
	h.Write([]byte(featureName))
	h.Write([]byte(subject))
	return int(h.Sum32()%100) < percent
}

// SetSubjectOverride forces a feature on or off for one subject.
func (ff *FeatureFlags) SetSubjectOverride(subject, featureName string, enabled bool) {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	if _, ok := ff.subjectOverrides[subject]; !ok {
		ff.subjectOverrides[subject] = make(map[string]bool)
	}
	ff.subjectOverrides[subject][featureName] = enabled
}

// ClearSubjectOverrides removes all overrides for a subject.
func (ff *FeatureFlags) ClearSubjectOverrides(subject string) {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	delete(ff.subjectOverrides, subject)
}

// SetRolloutPercent updates the rollout percentage for a feature.
func (ff *FeatureFlags) SetRolloutPercent(featureName string, percent int) error {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	feature, ok := ff.features[featureName]
	if !ok {
		return ErrFeatureNotFound
	}

	if percent < 0 || percent > 100 {
		return ErrInvalidRolloutPercent
	}

	feature.RolloutPercent = percent
	feature.Enabled = percent > 0

	return nil
}

// EnableFeature enables a feature at 100% rollout.
func (ff *FeatureFlags) EnableFeature(featureName string) error {
	return ff.SetRolloutPercent(featureName, 100)
}

// DisableFeature disables a feature completely.
func (ff *FeatureFlags) DisableFeature(featureName string) error {
	return ff.SetRolloutPercent(featureName, 0)
}

// GetAllFeatures returns copies of all features sorted by name.
func (ff *FeatureFlags) GetAllFeatures() []Feature {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	result := make([]Feature, 0, len(ff.features))
	for _, v := range ff.features {
		result = append(result, *v)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// --- Errors ---

var (
	ErrFeatureNotFound       = &FeatureFlagError{Message: "feature not found"}
	ErrInvalidRolloutPercent = &FeatureFlagError{Message: "rollout percent must be 0-100"}
)

// FeatureFlagError represents a feature flag error.
type FeatureFlagError struct {
	Message string
}

func (e *FeatureFlagError) Error() string {
	return e.Message
}
