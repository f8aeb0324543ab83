// Package mqttpub publishes controller telemetry over MQTT and accepts
// pump commands, with Home Assistant discovery support.
package mqttpub

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/seedling-labs/gardener/pkg/board"
	"github.com/seedling-labs/gardener/pkg/config"
	"github.com/seedling-labs/gardener/pkg/sample"
)

// PumpFunc runs the pump for the given number of seconds. Zero stops it.
type PumpFunc func(seconds int) error

type Client struct {
	client mqtt.Client
	log    *zap.Logger
	cfg    *config.Config
	prefix string
	pump   PumpFunc
}

// New creates an MQTT client with reconnect handling.
// Returns nil when MQTT is disabled in the config.
func New(log *zap.Logger, cfg *config.Config, pump PumpFunc) *Client {
	if !cfg.MQTT.Enabled {
		return nil
	}

	prefix := strings.TrimSuffix(cfg.MQTT.TopicPrefix, "/")

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.MQTT.Broker)
	opts.SetClientID(cfg.MQTT.ClientID)

	opts.SetKeepAlive(10 * time.Second)
	opts.SetPingTimeout(5 * time.Second)

	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(1 * time.Minute)

	// Keep retrying the initial connect so a slow-starting broker
	// does not take the whole daemon down.
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)

	opts.SetOrderMatters(false)

	// Broker announces us offline if the connection drops
	opts.SetWill(prefix+"/availability", "offline", 1, true)

	c := &Client{
		log:    log,
		cfg:    cfg,
		prefix: prefix,
		pump:   pump,
	}

	opts.SetOnConnectHandler(c.onConnect)

	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		log.Warn("MQTT connection lost, retrying in background", zap.Error(err))
	})

	opts.SetReconnectingHandler(func(client mqtt.Client, options *mqtt.ClientOptions) {
		log.Info("MQTT reconnecting")
	})

	c.client = mqtt.NewClient(opts)

	return c
}

// Connect initiates the connection.
func (c *Client) Connect() error {
	if c == nil || c.client == nil {
		return nil
	}
	c.log.Info("MQTT connecting", zap.String("broker", c.cfg.MQTT.Broker))

	token := c.client.Connect()
	if token.Wait() && token.Error() != nil {
		c.log.Error("MQTT initial connection error", zap.Error(token.Error()))
		return token.Error()
	}

	return nil
}

// Disconnect publishes the offline status before closing the socket.
func (c *Client) Disconnect() {
	if c == nil || c.client == nil || !c.client.IsConnected() {
		return
	}

	token := c.client.Publish(c.prefix+"/availability", 0, true, "offline")
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		c.log.Warn("failed to publish offline status", zap.Error(token.Error()))
	}

	c.client.Disconnect(250)
	c.log.Info("MQTT disconnected")
}

// Publish sends a payload to <prefix>/<subtopic> without blocking the caller.
func (c *Client) Publish(subtopic string, payload interface{}, retained bool) {
	if c == nil || c.client == nil || !c.client.IsConnected() {
		return
	}

	topic := fmt.Sprintf("%s/%s", c.prefix, subtopic)
	msg := fmt.Sprintf("%v", payload)

	token := c.client.Publish(topic, 0, retained, msg)

	go func() {
		if token.WaitTimeout(5 * time.Second) {
			if token.Error() != nil {
				c.log.Warn("MQTT publish error", zap.String("topic", topic), zap.Error(token.Error()))
			}
		} else {
			c.log.Warn("MQTT publish timeout", zap.String("topic", topic))
		}
	}()
}

// PublishSample sends the current moisture and pump state.
func (c *Client) PublishSample(s sample.Sample) {
	if c == nil {
		return
	}
	c.Publish("moisture/state", fmt.Sprintf("%.1f", s.Percent), true)
	c.Publish("moisture/raw", s.Raw, true)
	if s.PumpActive {
		c.Publish("pump/state", "ON", true)
	} else {
		c.Publish("pump/state", "OFF", true)
	}
}

// onConnect is called by paho on its internal event goroutine.
func (c *Client) onConnect(client mqtt.Client) {
	c.log.Info("MQTT connected")

	topic := fmt.Sprintf("%s/pump/set", c.prefix)
	if token := client.Subscribe(topic, 1, c.handlePumpSet); token.Wait() && token.Error() != nil {
		c.log.Error("MQTT subscribe error", zap.String("topic", topic), zap.Error(token.Error()))
	} else {
		c.log.Info("MQTT subscribed", zap.String("topic", topic))
	}

	// Discovery and online status off the event goroutine, since
	// publishHADiscovery sleeps.
	go func() {
		c.Publish("availability", "online", true)
		c.publishHADiscovery()
	}()
}

// handlePumpSet processes pump commands: a number of seconds, or 0/OFF to stop.
func (c *Client) handlePumpSet(client mqtt.Client, msg mqtt.Message) {
	seconds, err := parsePumpCommand(string(msg.Payload()))
	if err != nil {
		c.log.Warn("invalid pump command", zap.ByteString("payload", msg.Payload()), zap.Error(err))
		return
	}

	if err := c.pump(seconds); err != nil {
		c.log.Error("pump command failed", zap.Int("seconds", seconds), zap.Error(err))
		return
	}

	if seconds > 0 {
		c.Publish("pump/state", "ON", true)
	} else {
		c.Publish("pump/state", "OFF", true)
	}
}

// parsePumpCommand converts an MQTT payload into pump seconds.
// Accepts plain integers within the safety limits, 0, and ON/OFF aliases.
func parsePumpCommand(payload string) (int, error) {
	switch strings.ToLower(strings.TrimSpace(payload)) {
	case "off", "false", "0":
		return 0, nil
	case "on", "true":
		return board.PumpMaxSeconds, nil
	}

	seconds, err := strconv.Atoi(strings.TrimSpace(payload))
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", payload)
	}
	if seconds < board.PumpMinSeconds || seconds > board.PumpMaxSeconds {
		return 0, fmt.Errorf("seconds %d outside allowed range %d-%d", seconds, board.PumpMinSeconds, board.PumpMaxSeconds)
	}
	return seconds, nil
}

// publishHADiscovery sends entity configuration for Home Assistant.
func (c *Client) publishHADiscovery() {
	if !c.cfg.MQTT.HADiscoveryEnabled {
		return
	}

	// Give subscriptions a moment to settle
	time.Sleep(1 * time.Second)

	safeID := sanitizeID(c.cfg.MQTT.ClientID)

	availability := []map[string]string{
		{
			"topic":                 fmt.Sprintf("%s/availability", c.prefix),
			"payload_available":     "online",
			"payload_not_available": "offline",
		},
	}

	device := map[string]interface{}{
		"identifiers":  []string{safeID},
		"name":         "Gardener Controller",
		"manufacturer": "Seedling Labs",
		"model":        "Plant Watering Controller",
	}

	sensorTopic := fmt.Sprintf("%s/sensor/%s/moisture/config", c.cfg.MQTT.HADiscoveryPrefix, safeID)
	sensorPayload := map[string]interface{}{
		"name":                "Soil Moisture",
		"unique_id":           safeID + "_moisture",
		"object_id":           safeID + "_moisture",
		"icon":                "mdi:water-percent",
		"state_topic":         fmt.Sprintf("%s/moisture/state", c.prefix),
		"unit_of_measurement": "%",
		"state_class":         "measurement",
		"availability":        availability,
		"device":              device,
	}

	switchTopic := fmt.Sprintf("%s/switch/%s/pump/config", c.cfg.MQTT.HADiscoveryPrefix, safeID)
	switchPayload := map[string]interface{}{
		"name":          "Water Pump",
		"unique_id":     safeID + "_pump",
		"object_id":     safeID + "_pump",
		"icon":          "mdi:water-pump",
		"command_topic": fmt.Sprintf("%s/pump/set", c.prefix),
		"state_topic":   fmt.Sprintf("%s/pump/state", c.prefix),
		"availability":  availability,
		"device":        device,
	}

	for topic, payload := range map[string]map[string]interface{}{
		sensorTopic: sensorPayload,
		switchTopic: switchPayload,
	} {
		jsonPayload, _ := json.Marshal(payload)
		c.client.Publish(topic, 0, true, jsonPayload)
		c.log.Info("HA discovery sent", zap.String("topic", topic))
	}
}

// sanitizeID keeps only characters Home Assistant accepts in entity IDs.
func sanitizeID(id string) string {
	id = strings.ReplaceAll(id, " ", "_")
	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			return r
		}
		return -1
	}, id)
}
