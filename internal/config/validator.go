package config

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"
)

var kioskIDPattern = regexp.MustCompile(`^[a-z0-9\-]+$`)

// Validate checks the configuration, fills defaults and derives durations.
func Validate(cfg *Config) error {
	if cfg.KioskID == "" {
		return fmt.Errorf("kiosk_id is required")
	}
	if !kioskIDPattern.MatchString(cfg.KioskID) {
		return fmt.Errorf("kiosk_id must match pattern [a-z0-9-]+")
	}

	if cfg.ShutdownTimeoutS <= 0 {
		cfg.ShutdownTimeoutS = 5
	}
	cfg.ShutdownTimeout = time.Duration(cfg.ShutdownTimeoutS) * time.Second

	if err := validateAPI(&cfg.API); err != nil {
		return err
	}
	if err := validatePreview(&cfg.Preview, cfg.API.BaseURL); err != nil {
		return err
	}

	if cfg.EventStream.ReconnectDelayMS < 0 {
		return fmt.Errorf("event_stream.reconnect_delay_ms must be >= 0")
	}
	cfg.EventStream.ReconnectDelay = msOr(cfg.EventStream.ReconnectDelayMS, 2000)

	if cfg.UI.ErrorDisplayMS < 0 {
		return fmt.Errorf("ui.error_display_ms must be >= 0")
	}
	cfg.UI.ErrorDisplay = msOr(cfg.UI.ErrorDisplayMS, 5000)

	if cfg.Health.Addr == "" {
		cfg.Health.Addr = ":8080"
	}

	validateMQTT(&cfg.MQTT, cfg.KioskID)
	return nil
}

func validateAPI(api *APIConfig) error {
	if api.BaseURL == "" {
		api.BaseURL = "http://localhost:8000"
	}
	if err := requireScheme("api.base_url", api.BaseURL, "http", "https"); err != nil {
		return err
	}

	if api.WSBaseURL == "" {
		api.WSBaseURL = "ws" + strings.TrimPrefix(api.BaseURL, "http")
	}
	if err := requireScheme("api.ws_base_url", api.WSBaseURL, "ws", "wss"); err != nil {
		return err
	}

	if api.RequestTimeoutMS < 0 {
		return fmt.Errorf("api.request_timeout_ms must be >= 0")
	}
	api.RequestTimeout = msOr(api.RequestTimeoutMS, 10000)

	if api.QRSize <= 0 {
		api.QRSize = 512
	}
	return nil
}

func validatePreview(p *PreviewConfig, apiBase string) error {
	if p.URL == "" {
		p.URL = strings.TrimRight(apiBase, "/") + "/api/v1/camera/preview"
	}
	if err := requireScheme("preview.url", p.URL, "http", "https"); err != nil {
		return err
	}

	for name, v := range map[string]int{
		"preview.reconnect_delay_ms":      p.ReconnectDelayMS,
		"preview.verify_delay_ms":         p.VerifyDelayMS,
		"preview.stale_check_interval_ms": p.StaleCheckIntervalMS,
		"preview.stale_threshold_ms":      p.StaleThresholdMS,
		"preview.max_restart_attempts":    p.MaxRestartAttempts,
	} {
		if v < 0 {
			return fmt.Errorf("%s must be >= 0", name)
		}
	}

	p.ReconnectDelay = msOr(p.ReconnectDelayMS, 2000)
	p.VerifyDelay = msOr(p.VerifyDelayMS, 2000)
	p.StaleCheckInterval = msOr(p.StaleCheckIntervalMS, 3000)
	p.StaleThreshold = msOr(p.StaleThresholdMS, 5000)
	if p.MaxRestartAttempts == 0 {
		p.MaxRestartAttempts = 10
	}
	if p.QueueBuffers <= 0 {
		p.QueueBuffers = 3
	}
	return nil
}

func validateMQTT(m *MQTTConfig, kioskID string) {
	if m.Topics.Status == "" {
		m.Topics.Status = fmt.Sprintf("picpop/status/%s", kioskID)
	}
	if m.Topics.Faults == "" {
		m.Topics.Faults = fmt.Sprintf("picpop/faults/%s", kioskID)
	}
	if m.Topics.Control == "" {
		m.Topics.Control = fmt.Sprintf("picpop/control/%s", kioskID)
	}
	if m.QoS == nil {
		m.QoS = map[string]byte{
			"status":  0,
			"faults":  1,
			"control": 1,
		}
	}
}

func requireScheme(field, raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	for _, s := range schemes {
		if u.Scheme == s {
			return nil
		}
	}
	return fmt.Errorf("%s must use %s, got %q", field, strings.Join(schemes, " or "), raw)
}

func msOr(ms, fallback int) time.Duration {
	if ms == 0 {
		ms = fallback
	}
	return time.Duration(ms) * time.Millisecond
}
