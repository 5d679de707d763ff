package bus

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/sensorhub-io/hub/core"
)

// MQTTSourceOptions configures an MQTTSource.
type MQTTSourceOptions struct {
	Broker   string
	ClientID string
	Username string
	Password string
	// TopicFilter is the MQTT subscription filter, e.g. "sensors/+/+".
	TopicFilter string
	Logger      *slog.Logger
	Clock       core.Clock
}

// MQTTSource bridges an external MQTT broker into the bus: every message
// whose topic matches TopicFilter is parsed as "<systemUID>/<outputName>",
// its JSON body decoded into field values, and republished as a DataEvent
// on IngestTopic for the persistence bridge to consume. Grounded on
// owl-common/mqtt.Client's NewClient/Subscribe shape (broker options,
// auto-reconnect, token.Wait-based error handling).
type MQTTSource struct {
	client mqtt.Client
	bus    *Bus
	logger *slog.Logger
	clock  core.Clock
}

// NewMQTTSource connects to the broker and subscribes to opts.TopicFilter.
func NewMQTTSource(opts MQTTSourceOptions, b *Bus) (*MQTTSource, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := opts.Clock
	if clock == nil {
		clock = core.SystemClock
	}

	copts := mqtt.NewClientOptions()
	copts.AddBroker(opts.Broker)
	copts.SetClientID(opts.ClientID)
	if opts.Username != "" {
		copts.SetUsername(opts.Username)
	}
	if opts.Password != "" {
		copts.SetPassword(opts.Password)
	}
	copts.SetAutoReconnect(true)
	copts.SetCleanSession(true)

	src := &MQTTSource{bus: b, logger: logger, clock: clock}
	src.client = mqtt.NewClient(copts)

	if token := src.client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect to mqtt broker %q: %w", opts.Broker, token.Error())
	}
	if token := src.client.Subscribe(opts.TopicFilter, 1, src.handle); token.Wait() && token.Error() != nil {
		src.client.Disconnect(250)
		return nil, fmt.Errorf("subscribe to mqtt topic filter %q: %w", opts.TopicFilter, token.Error())
	}
	return src, nil
}

func (s *MQTTSource) handle(_ mqtt.Client, msg mqtt.Message) {
	systemUID, outputName, ok := splitProducerTopic(msg.Topic())
	if !ok {
		s.logger.Warn("ignoring mqtt message on malformed topic", "topic", msg.Topic())
		return
	}

	var fields core.FieldValues
	if err := json.Unmarshal(msg.Payload(), &fields); err != nil {
		s.logger.Warn("ignoring mqtt message with undecodable body", "topic", msg.Topic(), "error", err)
		return
	}

	s.bus.Publish(IngestTopic, DataEvent{
		SystemUID:  systemUID,
		OutputName: outputName,
		Fields:     fields,
		EventTime:  s.clock.Now(),
	})
}

// splitProducerTopic parses "<systemUID>/<outputName>" from an inbound MQTT
// topic. The last path segment is the output name; everything before it is
// the system UID, so UIDs containing slashes still split correctly.
func splitProducerTopic(topic string) (systemUID, outputName string, ok bool) {
	idx := strings.LastIndexByte(topic, '/')
	if idx <= 0 || idx == len(topic)-1 {
		return "", "", false
	}
	return topic[:idx], topic[idx+1:], true
}

// Close disconnects the underlying MQTT client.
func (s *MQTTSource) Close() {
	s.client.Disconnect(250)
}
