package producer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	mqtt "github.com/soypat/natiu-mqtt"

	"github.com/newmanjoel/Lights/animation"
	"github.com/newmanjoel/Lights/config"
	"github.com/newmanjoel/Lights/util"
)

// Topics below the configured prefix.
const (
	TopicBrightness = "brightness/set"
	TopicSpeed      = "speed/set"
	TopicAnimation  = "animation/set"
	TopicColor      = "color/set"
)

var ErrUnknownTopic = errors.New("unknown topic")

// AnimationLookup finds library animations by id.
type AnimationLookup interface {
	Get(id int) (animation.Animation, error)
}

// MQTT subscribes to the command topics of a broker and turns every
// message into a command. The connection is re-established after a fixed
// delay until shutdown.
type MQTT struct {
	cfg       config.MQTTConfig
	lib       AnimationLookup
	ledsTotal int
	cmds      chan<- animation.Command
	shutdown  *util.Shutdown
	dial      func(ctx context.Context, addr string) (net.Conn, error)
}

func NewMQTT(cfg config.MQTTConfig, lib AnimationLookup, ledsTotal int, cmds chan<- animation.Command, shutdown *util.Shutdown) *MQTT {
	dialer := &net.Dialer{Timeout: cfg.Timeout}
	return &MQTT{
		cfg:       cfg,
		lib:       lib,
		ledsTotal: ledsTotal,
		cmds:      cmds,
		shutdown:  shutdown,
		dial: func(ctx context.Context, addr string) (net.Conn, error) {
			return dialer.DialContext(ctx, "tcp", addr)
		},
	}
}

func (m *MQTT) Run() {
	slog.Info("MQTT producer started", "broker", m.cfg.Broker, "prefix", m.cfg.TopicPrefix)
	for !m.shutdown.IsSet() {
		err := m.session()
		if m.shutdown.IsSet() {
			break
		}
		slog.Error("MQTT session ended, reconnecting", "error", err, "delay", m.cfg.ReconnectDelay)
		select {
		case <-time.After(m.cfg.ReconnectDelay):
		case <-m.shutdown.Done():
		}
	}
	slog.Info("MQTT producer stopped")
}

// session connects, subscribes and handles messages until the connection
// drops or shutdown closes it.
func (m *MQTT) session() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-m.shutdown.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	conn, err := m.dial(ctx, m.cfg.Broker)
	if err != nil {
		return fmt.Errorf("dial %s: %w", m.cfg.Broker, err)
	}
	// closing the connection is the only way to interrupt HandleNext
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()
	defer conn.Close()

	client := mqtt.NewClient(mqtt.ClientConfig{
		Decoder: mqtt.DecoderNoAlloc{UserBuffer: make([]byte, 4096)},
		OnPub: func(_ mqtt.Header, varPub mqtt.VariablesPublish, r io.Reader) error {
			payload, err := io.ReadAll(r)
			if err != nil {
				return err
			}
			m.handle(string(varPub.TopicName), payload)
			return nil
		},
	})

	var varconn mqtt.VariablesConnect
	varconn.SetDefaultMQTT([]byte(m.cfg.ClientID))
	// no keepalive, the session has no writer while it waits for messages
	varconn.KeepAlive = 0
	if m.cfg.Username != "" {
		varconn.Username = []byte(m.cfg.Username)
		if m.cfg.Password != "" {
			varconn.Password = []byte(m.cfg.Password)
		}
	}

	conn.SetDeadline(time.Now().Add(m.cfg.Timeout))
	if err := client.StartConnect(conn, &varconn); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	for !client.IsConnected() {
		if err := client.HandleNext(); err != nil {
			return fmt.Errorf("mqtt connect: %w", err)
		}
	}
	slog.Info("MQTT connected", "broker", m.cfg.Broker)

	filters := make([]mqtt.SubscribeRequest, 0, 4)
	for _, topic := range []string{TopicBrightness, TopicSpeed, TopicAnimation, TopicColor} {
		filters = append(filters, mqtt.SubscribeRequest{
			TopicFilter: []byte(m.topic(topic)),
			QoS:         mqtt.QoS0,
		})
	}
	err = client.StartSubscribe(mqtt.VariablesSubscribe{
		PacketIdentifier: 1,
		TopicFilters:     filters,
	})
	if err != nil {
		return fmt.Errorf("mqtt subscribe: %w", err)
	}
	// the SUBACK is read by the receive loop below, which has no deadline
	conn.SetDeadline(time.Time{})
	slog.Info("MQTT subscribed", "topics", len(filters))

	for client.IsConnected() {
		if err := client.HandleNext(); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("mqtt receive: %w", err)
		}
	}
	return client.Err()
}

func (m *MQTT) topic(name string) string {
	return strings.TrimSuffix(m.cfg.TopicPrefix, "/") + "/" + name
}

func (m *MQTT) handle(topic string, payload []byte) {
	cmd, err := m.Parse(topic, payload)
	if err != nil {
		slog.Warn("Ignoring MQTT message", "topic", topic, "payload", string(payload), "error", err)
		return
	}
	slog.Debug("MQTT command", "topic", topic, "command", cmd.String())
	select {
	case m.cmds <- cmd:
	case <-m.shutdown.Done():
	}
}

// Parse turns a message into a command. Brightness, speed and animation
// payloads are plain numbers, colour payloads are #rrggbb.
func (m *MQTT) Parse(topic string, payload []byte) (animation.Command, error) {
	value := strings.TrimSpace(string(payload))
	switch topic {
	case m.topic(TopicBrightness):
		level, err := strconv.ParseUint(value, 10, 8)
		if err != nil {
			return nil, fmt.Errorf("brightness %q must be between 0 and 255", value)
		}
		return animation.SetBrightness{Level: uint8(level)}, nil
	case m.topic(TopicSpeed):
		fps, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("speed %q: %w", value, err)
		}
		cmd := animation.SetSpeed{FPS: fps}
		return cmd, cmd.Validate()
	case m.topic(TopicAnimation):
		id, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("animation id %q: %w", value, err)
		}
		anim, err := m.lib.Get(id)
		if err != nil {
			return nil, err
		}
		return animation.SetAnimation{Animation: anim}, nil
	case m.topic(TopicColor):
		color, err := animation.ParseHexColor(value)
		if err != nil {
			return nil, err
		}
		return animation.SetAnimation{Animation: animation.SingleColor(value, color, m.ledsTotal, animation.DefaultSpeed)}, nil
	}
	return nil, fmt.Errorf("%w %s", ErrUnknownTopic, topic)
}
