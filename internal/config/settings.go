// Package config is the typed settings layer over the task store's
// key-value table, grounded on the teacher's internal/config/settings.go
// ConfigManager (typed getters/setters, lazy secure-token generation,
// FactoryReset), generalized to cover every default §6 names: retry,
// redirect, mode, metered/roaming allowance, the uid->account divisor,
// progress-throttle knobs, and worker concurrency caps.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"time"
)

// Keys for settings stored in the task store's app_settings table.
const (
	KeyMaxConcurrentDownloads = "max_concurrent_downloads"
	KeyMaxConcurrentUploads   = "max_concurrent_uploads"
	KeyAccountDivisor         = "account_divisor"
	KeyDefaultRetryAllowed    = "default_retry_allowed"
	KeyDefaultRedirectAllowed = "default_redirect_allowed"
	KeyDefaultMode            = "default_mode"
	KeyDefaultMeteredAllowed  = "default_metered_allowed"
	KeyDefaultRoamingAllowed  = "default_roaming_allowed"
	KeyProgressIntervalMS     = "progress_interval_ms"
	KeyEnableIntegrityCheck   = "enable_integrity_check"
	KeyMaxRetries             = "max_retries"
	KeyAPIToken               = "api_token"
	KeyUserAgent              = "user_agent"
)

// kvStore is the subset of taskstore.Store this package needs, kept as an
// interface so config doesn't force every caller to link the full store.
type kvStore interface {
	GetString(key string) (string, error)
	SetString(key, value string) error
}

// Manager is the typed configuration surface.
type Manager struct {
	store kvStore
}

// New wraps store.
func New(store kvStore) *Manager {
	return &Manager{store: store}
}

func (m *Manager) getInt(key string, def int) int {
	val, err := m.store.GetString(key)
	if err != nil || val == "" {
		return def
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return def
	}
	return n
}

func (m *Manager) setInt(key string, n int) error {
	return m.store.SetString(key, strconv.Itoa(n))
}

func (m *Manager) getBool(key string, def bool) bool {
	val, err := m.store.GetString(key)
	if err != nil || val == "" {
		return def
	}
	return val == "true"
}

func (m *Manager) setBool(key string, b bool) error {
	v := "false"
	if b {
		v = "true"
	}
	return m.store.SetString(key, v)
}

// GetMaxConcurrentDownloads defaults to 4.
func (m *Manager) GetMaxConcurrentDownloads() int { return m.getInt(KeyMaxConcurrentDownloads, 4) }
func (m *Manager) SetMaxConcurrentDownloads(n int) error {
	return m.setInt(KeyMaxConcurrentDownloads, n)
}

// GetMaxConcurrentUploads defaults to 2.
func (m *Manager) GetMaxConcurrentUploads() int { return m.getInt(KeyMaxConcurrentUploads, 2) }
func (m *Manager) SetMaxConcurrentUploads(n int) error {
	return m.setInt(KeyMaxConcurrentUploads, n)
}

// GetAccountDivisor is the platform-specific uid->account scaling factor
// (§4.2/§9 Open Question), externalized as configuration, default 200000.
func (m *Manager) GetAccountDivisor() uint64 {
	return uint64(m.getInt(KeyAccountDivisor, 200000))
}
func (m *Manager) SetAccountDivisor(n uint64) error {
	return m.setInt(KeyAccountDivisor, int(n))
}

func (m *Manager) GetDefaultRetryAllowed() bool { return m.getBool(KeyDefaultRetryAllowed, true) }
func (m *Manager) GetDefaultRedirectAllowed() bool {
	return m.getBool(KeyDefaultRedirectAllowed, true)
}
func (m *Manager) GetDefaultModeBackground() bool { return m.getBool(KeyDefaultMode, true) }
func (m *Manager) GetDefaultMeteredAllowed() bool {
	return m.getBool(KeyDefaultMeteredAllowed, true)
}
func (m *Manager) GetDefaultRoamingAllowed() bool {
	return m.getBool(KeyDefaultRoamingAllowed, true)
}

// GetProgressInterval is the worker's throttle interval (§4.7), default
// 500ms.
func (m *Manager) GetProgressInterval() time.Duration {
	return time.Duration(m.getInt(KeyProgressIntervalMS, 500)) * time.Millisecond
}
func (m *Manager) SetProgressInterval(d time.Duration) error {
	return m.setInt(KeyProgressIntervalMS, int(d.Milliseconds()))
}

func (m *Manager) GetEnableIntegrityCheck() bool {
	return m.getBool(KeyEnableIntegrityCheck, true)
}
func (m *Manager) SetEnableIntegrityCheck(enabled bool) error {
	return m.setBool(KeyEnableIntegrityCheck, enabled)
}

// GetMaxRetries is the hard cap on tries (§4.7), default 5.
func (m *Manager) GetMaxRetries() int        { return m.getInt(KeyMaxRetries, 5) }
func (m *Manager) SetMaxRetries(n int) error { return m.setInt(KeyMaxRetries, n) }

// GetAPIToken lazily generates a token for the debug API surface on first
// use, matching the teacher's GetAIToken idiom.
func (m *Manager) GetAPIToken() string {
	val, err := m.store.GetString(KeyAPIToken)
	if err != nil || val == "" {
		token := generateSecureToken()
		_ = m.store.SetString(KeyAPIToken, token)
		return token
	}
	return val
}

func (m *Manager) GetUserAgent() string {
	val, err := m.store.GetString(KeyUserAgent)
	if err != nil {
		return ""
	}
	return val
}
func (m *Manager) SetUserAgent(ua string) error { return m.store.SetString(KeyUserAgent, ua) }

func generateSecureToken() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "tachyon-fallback-token-change-me"
	}
	return hex.EncodeToString(b)
}

// FactoryReset clears every known key back to its default.
func (m *Manager) FactoryReset() error {
	keys := []string{
		KeyMaxConcurrentDownloads, KeyMaxConcurrentUploads, KeyAccountDivisor,
		KeyDefaultRetryAllowed, KeyDefaultRedirectAllowed, KeyDefaultMode,
		KeyDefaultMeteredAllowed, KeyDefaultRoamingAllowed, KeyProgressIntervalMS,
		KeyEnableIntegrityCheck, KeyMaxRetries, KeyAPIToken, KeyUserAgent,
	}
	for _, key := range keys {
		if err := m.store.SetString(key, ""); err != nil {
			return err
		}
	}
	return nil
}
