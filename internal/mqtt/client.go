package mqtt

import (
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"playbulb-controller/internal/config"
	"playbulb-controller/internal/core"
	"playbulb-controller/internal/device"
	"playbulb-controller/internal/protocol"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Client bridges the agent to an MQTT broker. Incoming set topics become
// agent commands; device and link events are published as retained state.
type Client struct {
	client   mqtt.Client
	cfg      *config.Config
	commands core.CommandChannel
	eventBus *core.EventBus
	status   *core.Status
	prefix   string

	events    core.Subscriber
	done      chan struct{}
	closeOnce sync.Once
}

// NewClient returns nil when MQTT is disabled.
func NewClient(cfg *config.Config, commands core.CommandChannel, eb *core.EventBus, status *core.Status) *Client {
	if !cfg.MQTT.Enabled {
		return nil
	}

	prefix := strings.TrimSuffix(cfg.MQTT.TopicPrefix, "/")

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.MQTT.Broker)
	opts.SetClientID(cfg.MQTT.ClientID)
	opts.SetUsername(cfg.MQTT.Username)
	opts.SetPassword(cfg.MQTT.Password)

	opts.SetKeepAlive(10 * time.Second)
	opts.SetPingTimeout(5 * time.Second)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(1 * time.Minute)

	// Retry at startup while the broker is not up yet.
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetOrderMatters(false)

	opts.SetWill(prefix+"/availability", "offline", 1, true)

	c := &Client{
		cfg:      cfg,
		commands: commands,
		eventBus: eb,
		status:   status,
		prefix:   prefix,
		events:   eb.Subscribe(core.DeviceStateEvent, core.LinkChangedEvent),
		done:     make(chan struct{}),
	}

	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		log.Printf("[MQTT] Connection lost: %v. Retrying in background...", err)
	})
	opts.SetReconnectingHandler(func(client mqtt.Client, options *mqtt.ClientOptions) {
		log.Println("[MQTT] Attempting to reconnect...")
	})

	c.client = mqtt.NewClient(opts)
	go c.publishEvents()
	return c
}

// Connect starts the connection loop.
func (c *Client) Connect() error {
	if c == nil {
		return nil
	}
	log.Printf("[MQTT] Starting connection loop to %s...", c.cfg.MQTT.Broker)

	token := c.client.Connect()
	if token.Wait() && token.Error() != nil {
		log.Printf("[MQTT] Initial connection error: %v", token.Error())
		return token.Error()
	}
	return nil
}

// Disconnect publishes offline and closes the connection.
func (c *Client) Disconnect() {
	if c == nil {
		return
	}
	c.closeOnce.Do(func() {
		c.eventBus.Unsubscribe(c.events, core.DeviceStateEvent, core.LinkChangedEvent)
		close(c.done)
	})
	if !c.client.IsConnected() {
		return
	}
	log.Println("[MQTT] Disconnecting...")

	token := c.client.Publish(c.prefix+"/availability", 0, true, "offline")
	if token.WaitTimeout(2 * time.Second) {
		if token.Error() != nil {
			log.Printf("[MQTT] Warning: failed to publish offline status: %v", token.Error())
		}
	} else {
		log.Println("[MQTT] Warning: timed out publishing offline status")
	}

	c.client.Disconnect(250)
	log.Println("[MQTT] Disconnected.")
}

// Publish sends payload to <prefix>/<subtopic> without blocking the caller.
func (c *Client) Publish(subtopic string, payload interface{}, retained bool) {
	if !c.client.IsConnected() {
		return
	}

	topic := c.topic(subtopic)
	token := c.client.Publish(topic, 0, retained, payload)
	go func() {
		if token.WaitTimeout(5 * time.Second) {
			if token.Error() != nil {
				log.Printf("[MQTT] Publish error to %s: %v", topic, token.Error())
			}
		} else {
			log.Printf("[MQTT] Timeout publishing to %s", topic)
		}
	}()
}

func (c *Client) topic(sub string) string {
	return fmt.Sprintf("%s/%s", c.prefix, sub)
}

func (c *Client) onConnect(client mqtt.Client) {
	log.Println("[MQTT] Connected to broker.")

	topics := map[string]func(string) (core.Command, error){
		"color/set":   colorCommand,
		"rgbw/set":    rgbwCommand,
		"effect/set":  effectCommand,
		"power/set":   c.powerCommand,
		"name/set":    nameCommand,
		"refresh":     func(string) (core.Command, error) { return core.Command{Type: core.CmdRefresh}, nil },
		"script/run":  scriptCommand,
		"script/stop": func(string) (core.Command, error) { return core.Command{Type: core.CmdStopScript}, nil },
	}

	for sub, parse := range topics {
		topic := c.topic(sub)
		if token := client.Subscribe(topic, 1, c.handler(parse)); token.Wait() && token.Error() != nil {
			log.Printf("[MQTT] Error subscribing to %s: %v", topic, token.Error())
		} else {
			log.Printf("[MQTT] Subscribed to %s", topic)
		}
	}

	go func() {
		c.Publish("availability", "online", true)
		c.publishLink(c.status.Link())
		if snap := c.status.Device(); snap != nil {
			c.publishState(*snap)
		}
		if c.cfg.MQTT.HADiscoveryEnabled {
			c.PublishHADiscovery()
		}
	}()
}

func (c *Client) handler(parse func(string) (core.Command, error)) mqtt.MessageHandler {
	return func(client mqtt.Client, msg mqtt.Message) {
		cmd, err := parse(strings.TrimSpace(string(msg.Payload())))
		if err != nil {
			log.Printf("[MQTT] Ignoring %s: %v", msg.Topic(), err)
			return
		}
		select {
		case c.commands <- cmd:
		case <-time.After(5 * time.Second):
			log.Printf("[MQTT] Command queue full, dropped %s", cmd.Type)
		}
	}
}

func (c *Client) publishEvents() {
	for {
		select {
		case <-c.done:
			return
		case ev := <-c.events:
			switch p := ev.Payload.(type) {
			case device.Snapshot:
				c.publishState(p)
			case core.LinkStatus:
				c.publishLink(p)
			}
		}
	}
}

func (c *Client) publishLink(link core.LinkStatus) {
	if link.Connected {
		c.Publish("connection", "connected", true)
	} else {
		c.Publish("connection", "disconnected", true)
	}
}

func (c *Client) publishState(s device.Snapshot) {
	if data, err := json.Marshal(s); err == nil {
		c.Publish("state", data, true)
	}
	if s.Color != nil {
		c.Publish("color/state", s.Color.Hex(), true)
		c.Publish("rgbw/state", formatRGBW(*s.Color), true)
		c.Publish("power/state", powerState(*s.Color), true)
	}
	if s.Effect != nil {
		name, _ := s.Effect.Type.MarshalText()
		c.Publish("effect/state", string(name), true)
	}
}

// PublishHADiscovery announces the bulb as an RGBW light.
func (c *Client) PublishHADiscovery() {
	time.Sleep(1 * time.Second)

	safeID := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			return r
		}
		return -1
	}, strings.ReplaceAll(c.cfg.MQTT.ClientID, " ", "_"))

	effects := []string{}
	for _, t := range []protocol.EffectType{protocol.EffectBlink, protocol.EffectPulse, protocol.EffectDisco, protocol.EffectRainbow, protocol.EffectCandle, protocol.EffectOff} {
		name, _ := t.MarshalText()
		effects = append(effects, string(name))
	}

	model := "Playbulb"
	if snap := c.status.Device(); snap != nil && snap.Name != nil {
		model = *snap.Name
	}

	discoveryTopic := fmt.Sprintf("%s/light/%s/light/config", c.cfg.MQTT.HADiscoveryPrefix, safeID)
	payload := map[string]interface{}{
		"name":      "Light",
		"unique_id": safeID + "_light",
		"object_id": safeID,
		"icon":      "mdi:lightbulb",

		"command_topic":      c.topic("power/set"),
		"state_topic":        c.topic("power/state"),
		"rgbw_command_topic": c.topic("rgbw/set"),
		"rgbw_state_topic":   c.topic("rgbw/state"),

		"effect_command_topic": c.topic("effect/set"),
		"effect_state_topic":   c.topic("effect/state"),
		"effect_list":          effects,

		"availability_mode": "all",
		"availability": []map[string]string{
			{
				"topic":                 c.topic("availability"),
				"payload_available":     "online",
				"payload_not_available": "offline",
			},
			{
				"topic":                 c.topic("connection"),
				"payload_available":     "connected",
				"payload_not_available": "disconnected",
			},
		},

		"device": map[string]interface{}{
			"identifiers":  []string{safeID, c.cfg.BLE.Address},
			"name":         "Playbulb Controller",
			"manufacturer": "MiPow",
			"model":        model,
		},
	}

	jsonPayload, _ := json.Marshal(payload)
	c.client.Publish(discoveryTopic, 0, true, jsonPayload)
	log.Printf("[MQTT] HA Discovery sent to %s", discoveryTopic)
}

// --- Payload parsers ---

func colorCommand(payload string) (core.Command, error) {
	if _, err := protocol.ParseColor(payload); err != nil {
		return core.Command{}, err
	}
	return core.Command{Type: core.CmdSetColor, Payload: map[string]interface{}{"color": payload}}, nil
}

// rgbwCommand accepts the "r,g,b,w" order Home Assistant uses.
func rgbwCommand(payload string) (core.Command, error) {
	parts := strings.Split(payload, ",")
	if len(parts) != 4 {
		return core.Command{}, fmt.Errorf("rgbw %q: want r,g,b,w", payload)
	}
	return colorCommand(strings.Join([]string{parts[3], parts[0], parts[1], parts[2]}, ","))
}

func formatRGBW(c protocol.Color) string {
	return fmt.Sprintf("%d,%d,%d,%d", c.Red, c.Green, c.Blue, c.White)
}

func powerState(c protocol.Color) string {
	if c == (protocol.Color{}) {
		return "OFF"
	}
	return "ON"
}

// effectCommand parses "<name>[,delay[,w,r,g,b]]".
func effectCommand(payload string) (core.Command, error) {
	parts := strings.Split(payload, ",")
	if len(parts) != 1 && len(parts) != 2 && len(parts) != 6 {
		return core.Command{}, fmt.Errorf("effect %q: want name[,delay[,w,r,g,b]]", payload)
	}
	name := strings.TrimSpace(parts[0])
	if _, ok := protocol.ParseEffectType(name); !ok {
		return core.Command{}, fmt.Errorf("unknown effect '%s'", name)
	}
	p := map[string]interface{}{"effect": name}
	if len(parts) >= 2 {
		delay, err := strconv.ParseUint(strings.TrimSpace(parts[1]), 10, 8)
		if err != nil {
			return core.Command{}, fmt.Errorf("effect %q: invalid delay", payload)
		}
		p["delay"] = int(delay)
	}
	if len(parts) == 6 {
		color, err := protocol.ParseColor(strings.Join(parts[2:], ","))
		if err != nil {
			return core.Command{}, err
		}
		p["color"] = color.Hex()
	}
	return core.Command{Type: core.CmdSetEffect, Payload: p}, nil
}

// powerCommand maps ON to the last known color (full white when the bulb
// was off or never read) and OFF to all channels zero.
func (c *Client) powerCommand(payload string) (core.Command, error) {
	var last *protocol.Color
	if snap := c.status.Device(); snap != nil {
		last = snap.Color
	}
	return powerCommand(payload, last)
}

func powerCommand(payload string, last *protocol.Color) (core.Command, error) {
	switch strings.ToLower(payload) {
	case "on", "true", "1":
		color := protocol.Color{White: 255}
		if last != nil && *last != (protocol.Color{}) {
			color = *last
		}
		return core.Command{Type: core.CmdSetColor, Payload: map[string]interface{}{"color": color.Hex()}}, nil
	case "off", "false", "0":
		return core.Command{Type: core.CmdSetColor, Payload: map[string]interface{}{"color": protocol.Color{}.Hex()}}, nil
	}
	return core.Command{}, fmt.Errorf("power %q: want ON or OFF", payload)
}

func nameCommand(payload string) (core.Command, error) {
	if payload == "" {
		return core.Command{}, fmt.Errorf("empty name")
	}
	return core.Command{Type: core.CmdSetName, Payload: map[string]interface{}{"name": payload}}, nil
}

func scriptCommand(payload string) (core.Command, error) {
	if !strings.HasSuffix(payload, ".lua") {
		payload += ".lua"
	}
	return core.Command{Type: core.CmdRunScript, Payload: map[string]interface{}{"name": payload}}, nil
}
