package config

import (
	"fmt"
	"hash/fnv"
	"os"
	"strconv"
	"strings"
	"sync"
)

// FeatureFlags manages runtime toggles for the presence hub. Supports
// gradual rollout by user ID and per-user overrides for debugging.
//
// Философия: присутствие должно подталкивать к живому контакту. Флаги
// позволяют выключить шумные уведомления, не трогая ядро хаба.
type FeatureFlags struct {
	mu sync.RWMutex

	features map[string]*Feature

	// Override rules (for testing/debugging)
	userOverrides map[string]map[string]bool // userID -> feature -> enabled
}

// Feature represents a single feature flag.
type Feature struct {
	Name        string
	Description string
	Enabled     bool

	// Rollout percentage (0-100)
	// Users are assigned based on hash of their ID
	RolloutPercent int
}

// Predefined feature flag names.
const (
	// === Presence Features ===
	FeaturePresenceMirror = "presence.mirror" // mirror snapshots into Redis
	FeaturePresenceStats  = "presence.stats"  // expose live counters over REST

	// === Notification Features ===
	FeatureNotifyPeerJoined = "notify.peer_joined" // "X is online" in the bell
	FeatureNotifyArchive    = "notify.archive"     // persist the feed to Postgres
)

// LoadFeatureFlags loads feature flags from environment variables.
func LoadFeatureFlags() *FeatureFlags {
	ff := &FeatureFlags{
		features:      make(map[string]*Feature),
		userOverrides: make(map[string]map[string]bool),
	}

	ff.initializeDefaults()
	ff.loadFromEnvironment()

	return ff
}

// initializeDefaults sets up all features with default values.
func (ff *FeatureFlags) initializeDefaults() {
	ff.features[FeaturePresenceMirror] = &Feature{
		Name:           FeaturePresenceMirror,
		Description:    "Mirror presence snapshots into Redis",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeaturePresenceStats] = &Feature{
		Name:           FeaturePresenceStats,
		Description:    "Expose live hub counters over REST",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureNotifyPeerJoined] = &Feature{
		Name:           FeatureNotifyPeerJoined,
		Description:    "Notify when a peer comes online",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureNotifyArchive] = &Feature{
		Name:           FeatureNotifyArchive,
		Description:    "Persist the notification feed to Postgres",
		Enabled:        true,
		RolloutPercent: 100,
	}
}

// loadFromEnvironment overrides defaults via FEATURE_* variables, e.g.
// FEATURE_NOTIFY_PEER_JOINED=false.
func (ff *FeatureFlags) loadFromEnvironment() {
	for name, feature := range ff.features {
		envKey := featureNameToEnvKey(name)
		if val := os.Getenv(envKey); val != "" {
			if enabled, err := strconv.ParseBool(val); err == nil {
				feature.Enabled = enabled
			}
		}
		if val := os.Getenv(envKey + "_ROLLOUT"); val != "" {
			if percent, err := strconv.Atoi(val); err == nil && percent >= 0 && percent <= 100 {
				feature.RolloutPercent = percent
			}
		}
	}
}

// featureNameToEnvKey converts "notify.peer_joined" to "FEATURE_NOTIFY_PEER_JOINED".
func featureNameToEnvKey(name string) string {
	key := strings.ReplaceAll(name, ".", "_")
	return "FEATURE_" + strings.ToUpper(key)
}

// IsEnabled reports whether the feature is on for the given user. An empty
// userID ignores rollout percentage and user overrides.
func (ff *FeatureFlags) IsEnabled(featureName, userID string) bool {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	if userID != "" {
		if overrides, ok := ff.userOverrides[userID]; ok {
			if enabled, ok := overrides[featureName]; ok {
				return enabled
			}
		}
	}

	feature, ok := ff.features[featureName]
	if !ok || !feature.Enabled {
		return false
	}

	if feature.RolloutPercent >= 100 || userID == "" {
		return true
	}

	return ff.isInRollout(userID, featureName, feature.RolloutPercent)
}

// isInRollout assigns the user a stable bucket from a hash of user and
// feature name, so different features roll out to different user subsets.
func (ff *FeatureFlags) isInRollout(userID, featureName string, percent int) bool {
	h := fnv.New32a()
	h.Write([]byte(userID))
	h.Write([]byte(featureName))
	return int(h.Sum32()%100) < percent
}

// SetUserOverride forces a feature on or off for a single user.
func (ff *FeatureFlags) SetUserOverride(userID, featureName string, enabled bool) {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	if ff.userOverrides[userID] == nil {
		ff.userOverrides[userID] = make(map[string]bool)
	}
	ff.userOverrides[userID][featureName] = enabled
}

// ClearUserOverrides removes all overrides for a user.
func (ff *FeatureFlags) ClearUserOverrides(userID string) {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	delete(ff.userOverrides, userID)
}

// SetRolloutPercent updates the rollout percentage for a feature.
func (ff *FeatureFlags) SetRolloutPercent(featureName string, percent int) error {
	if percent < 0 || percent > 100 {
		return fmt.Errorf("rollout percent must be 0-100, got %d", percent)
	}

	ff.mu.Lock()
	defer ff.mu.Unlock()

	feature, ok := ff.features[featureName]
	if !ok {
		return fmt.Errorf("unknown feature: %s", featureName)
	}
	feature.RolloutPercent = percent
	return nil
}

// EnableFeature turns a feature on globally.
func (ff *FeatureFlags) EnableFeature(featureName string) error {
	return ff.setEnabled(featureName, true)
}

// DisableFeature turns a feature off globally.
func (ff *FeatureFlags) DisableFeature(featureName string) error {
	return ff.setEnabled(featureName, false)
}

func (ff *FeatureFlags) setEnabled(featureName string, enabled bool) error {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	feature, ok := ff.features[featureName]
	if !ok {
		return fmt.Errorf("unknown feature: %s", featureName)
	}
	feature.Enabled = enabled
	return nil
}

// MirrorEnabled reports whether presence snapshots should be mirrored to Redis.
func (ff *FeatureFlags) MirrorEnabled() bool {
	return ff.IsEnabled(FeaturePresenceMirror, "")
}

// ArchiveEnabled reports whether the notification feed should be archived.
func (ff *FeatureFlags) ArchiveEnabled() bool {
	return ff.IsEnabled(FeatureNotifyArchive, "")
}

// PeerJoinedEnabled reports whether join notifications are on for the user.
func (ff *FeatureFlags) PeerJoinedEnabled(userID string) bool {
	return ff.IsEnabled(FeatureNotifyPeerJoined, userID)
}

// StatsEnabled reports whether live counters are exposed over REST.
func (ff *FeatureFlags) StatsEnabled() bool {
	return ff.IsEnabled(FeaturePresenceStats, "")
}
