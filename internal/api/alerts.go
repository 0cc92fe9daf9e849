package api

import (
	"bytes"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"sync"
	"time"
)

// Alert severity levels
const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
	SeverityInfo     = "info"
)

// Alert event types
const (
	AlertBrokerDisconnected = "broker_disconnected"
	AlertSweepFailed        = "sweep_failed"
	AlertSweepDegraded      = "sweep_degraded"
)

// AlertPayload is the JSON structure sent to the webhook.
type AlertPayload struct {
	Instance  string                 `json:"instance"`
	Event     string                 `json:"event"`
	Timestamp string                 `json:"timestamp"`
	Severity  string                 `json:"severity"`
	Message   string                 `json:"message,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// AlertConfig holds alert configuration.
type AlertConfig struct {
	WebhookURL            string
	BrokerDisconnectDelay time.Duration // How long the broker must be gone before alerting
}

var (
	alertConfig = &AlertConfig{
		BrokerDisconnectDelay: 30 * time.Second,
	}
	alertMu sync.Mutex

	brokerDisconnectedSince time.Time
	brokerAlertSent         bool
	lastKnownBrokerState    bool
	alertMonitorInitialized bool

	// sendAlertHook replaces the webhook POST in tests.
	sendAlertHook func(url string, payload AlertPayload)
)

// InitAlerts configures the webhook. XYZ_ALERT_WEBHOOK_URL overrides
// webhookURL and XYZ_BROKER_ALERT_DELAY the broker disconnect delay.
func InitAlerts(webhookURL string) {
	alertMu.Lock()
	defer alertMu.Unlock()

	alertConfig.WebhookURL = webhookURL
	if v := os.Getenv("XYZ_ALERT_WEBHOOK_URL"); v != "" {
		alertConfig.WebhookURL = v
	}
	if delayStr := os.Getenv("XYZ_BROKER_ALERT_DELAY"); delayStr != "" {
		if d, err := time.ParseDuration(delayStr); err == nil {
			alertConfig.BrokerDisconnectDelay = d
		}
	}

	if alertConfig.WebhookURL != "" {
		log.Printf("Alerts enabled: webhook URL configured (broker_delay=%s)", alertConfig.BrokerDisconnectDelay)
	}

	lastKnownBrokerState = true // Assume connected at start
	brokerDisconnectedSince = time.Time{}
	brokerAlertSent = false
	alertMonitorInitialized = true
}

// GetAlertWebhookURL returns the configured webhook URL.
func GetAlertWebhookURL() string {
	alertMu.Lock()
	defer alertMu.Unlock()
	return alertConfig.WebhookURL
}

// SendAlert sends an alert to the configured webhook (best-effort, non-blocking).
func SendAlert(event, severity, message string, details map[string]interface{}) {
	alertMu.Lock()
	webhookURL := alertConfig.WebhookURL
	hook := sendAlertHook
	alertMu.Unlock()

	if webhookURL == "" {
		log.Printf("[ALERT] %s severity=%s msg=%q details=%v", event, severity, message, details)
		return
	}

	instance := GetInstanceName()
	if instance == "" {
		instance = "unknown"
	}

	payload := AlertPayload{
		Instance:  instance,
		Event:     event,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Severity:  severity,
		Message:   message,
		Details:   details,
	}

	if hook != nil {
		hook(webhookURL, payload)
		return
	}
	go sendWebhook(webhookURL, payload)
}

func sendWebhook(url string, payload AlertPayload) {
	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("alert: failed to marshal payload: %v", err)
		return
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		log.Printf("alert: webhook POST failed: %v", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		log.Printf("alert: webhook returned status %d", resp.StatusCode)
	}
}

// CheckAndAlertBroker tracks the executor broker connection and alerts once
// it has been down longer than the configured delay, and again on recovery.
func CheckAndAlertBroker(connected bool) {
	alertMu.Lock()
	if !alertMonitorInitialized {
		alertMu.Unlock()
		return
	}

	now := time.Now()
	var send func()

	if connected {
		if !lastKnownBrokerState && brokerAlertSent {
			send = func() {
				SendAlert(AlertBrokerDisconnected, SeverityInfo, "MQTT broker connection restored", map[string]interface{}{
					"recovered_at": now.UTC().Format(time.RFC3339),
				})
			}
		}
		brokerDisconnectedSince = time.Time{}
		brokerAlertSent = false
		lastKnownBrokerState = true
	} else {
		if lastKnownBrokerState {
			brokerDisconnectedSince = now
		}
		lastKnownBrokerState = false

		if !brokerAlertSent && !brokerDisconnectedSince.IsZero() {
			down := now.Sub(brokerDisconnectedSince)
			if down >= alertConfig.BrokerDisconnectDelay {
				brokerAlertSent = true
				since := brokerDisconnectedSince
				send = func() {
					SendAlert(AlertBrokerDisconnected, SeverityWarning, "MQTT broker disconnected", map[string]interface{}{
						"disconnected_since":   since.UTC().Format(time.RFC3339),
						"disconnected_seconds": int(down.Seconds()),
					})
				}
			}
		}
	}
	alertMu.Unlock()

	SetBrokerConnected(connected)
	if send != nil {
		send()
	}
}

// StartAlertMonitor polls connected every checkInterval until stop is closed.
func StartAlertMonitor(checkInterval time.Duration, connected func() bool, stop <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(checkInterval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				CheckAndAlertBroker(connected())
			}
		}
	}()
}
