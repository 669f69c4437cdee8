// Package mqtt is a primary adapter that turns MQTT messages into booth
// triggers.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"photobooth/internal/domain"
	"photobooth/internal/logging"
)

var log = logging.For("mqtt")

// Publisher injects trigger events.
type Publisher interface {
	Publish(domain.TriggerEvent) error
}

// Config contains broker settings.
type Config struct {
	Broker   string // tcp://host:1883
	Topic    string
	ClientID string
	QoS      byte
}

// Command is the optional JSON payload. A plain or empty payload means
// "trigger".
type Command struct {
	Command string `json:"command"`
}

// Listener subscribes to the trigger topic.
type Listener struct {
	cfg     Config
	events  Publisher
	control domain.TriggerControl
	client  paho.Client
}

// NewListener creates a listener. control may be nil; run and stop
// commands are then rejected.
func NewListener(cfg Config, events Publisher, control domain.TriggerControl) *Listener {
	if !strings.Contains(cfg.Broker, "://") {
		cfg.Broker = "tcp://" + cfg.Broker
	}
	return &Listener{cfg: cfg, events: events, control: control}
}

// Run connects, subscribes and blocks until ctx is cancelled.
func (l *Listener) Run(ctx context.Context) error {
	opts := paho.NewClientOptions()
	opts.AddBroker(l.cfg.Broker)
	opts.SetClientID(l.cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(5 * time.Second)
	opts.SetOnConnectHandler(func(c paho.Client) {
		log.Infof("connected to %s", l.cfg.Broker)
		token := c.Subscribe(l.cfg.Topic, l.cfg.QoS, l.messageHandler(ctx))
		if !token.WaitTimeout(5 * time.Second) {
			log.Errorf("subscription to %s timed out", l.cfg.Topic)
			return
		}
		if err := token.Error(); err != nil {
			log.Errorf("subscribe %s: %v", l.cfg.Topic, err)
			return
		}
		log.Debugf("subscribed to %s (qos %d)", l.cfg.Topic, l.cfg.QoS)
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		log.Warnf("connection lost: %v", err)
	})

	l.client = paho.NewClient(opts)
	token := l.client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		// ConnectRetry keeps trying in the background.
		log.Warnf("broker %s not reachable yet, retrying", l.cfg.Broker)
	} else if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}

	<-ctx.Done()
	if l.client.IsConnected() {
		l.client.Unsubscribe(l.cfg.Topic).WaitTimeout(time.Second)
	}
	l.client.Disconnect(250)
	log.Debugf("disconnected")
	return nil
}

func (l *Listener) messageHandler(ctx context.Context) paho.MessageHandler {
	return func(_ paho.Client, msg paho.Message) {
		if err := l.Handle(ctx, msg.Payload()); err != nil {
			log.Warnf("message on %s: %v", msg.Topic(), err)
		}
	}
}

// Handle applies one message payload.
func (l *Listener) Handle(ctx context.Context, payload []byte) error {
	name := parseCommand(payload)
	log.Debugf("command %q", name)
	switch name {
	case "trigger":
		return l.events.Publish(domain.TriggerNow(domain.SourceMQTT))
	case "run", "stop":
		if l.control == nil {
			return fmt.Errorf("%s: autonomous triggering is disabled", name)
		}
		cmd := domain.CommandRun
		if name == "stop" {
			cmd = domain.CommandStop
		}
		return l.control.Control(ctx, cmd)
	default:
		return fmt.Errorf("unknown command %q", name)
	}
}

func parseCommand(payload []byte) string {
	text := strings.TrimSpace(string(payload))
	if text == "" {
		return "trigger"
	}
	if strings.HasPrefix(text, "{") {
		var cmd Command
		if err := json.Unmarshal([]byte(text), &cmd); err == nil && cmd.Command != "" {
			return strings.ToLower(cmd.Command)
		}
		return "invalid"
	}
	return strings.ToLower(text)
}
