package bus

import (
	"io"
	"log/slog"
	"testing"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sensorhub-io/hub/core"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeMessage implements mqtt.Message without a real broker connection, so
// MQTTSource.handle can be exercised directly.
type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 1 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 0 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

func TestSplitProducerTopicAcceptsSystemAndOutput(t *testing.T) {
	systemUID, outputName, ok := splitProducerTopic("sensors/station-1/temperature")
	require.True(t, ok)
	assert.Equal(t, "sensors/station-1", systemUID)
	assert.Equal(t, "temperature", outputName)
}

func TestSplitProducerTopicRejectsMalformedTopics(t *testing.T) {
	for _, topic := range []string{"temperature", "/temperature", "station-1/", ""} {
		_, _, ok := splitProducerTopic(topic)
		assert.Falsef(t, ok, "expected topic %q to be rejected", topic)
	}
}

func TestMQTTSourceHandlePublishesDataEventOnIngestTopic(t *testing.T) {
	b := New()
	src := &MQTTSource{bus: b, logger: discardLogger(), clock: fixedClock(42)}

	var received Event
	sub := b.Subscribe(IngestTopic, []any{DataEvent{}}, func(e Event) {
		received = e
	})
	sub.Request(1)

	src.handle(nil, &fakeMessage{topic: "station-1/temperature", payload: []byte(`{"value":21.5}`)})

	require.Equal(t, IngestTopic, received.Topic)
	evt, ok := received.Payload.(DataEvent)
	require.True(t, ok)
	assert.Equal(t, "station-1", evt.SystemUID)
	assert.Equal(t, "temperature", evt.OutputName)
	assert.Equal(t, 21.5, evt.Fields["value"])
	assert.EqualValues(t, 42, evt.EventTime)
}

func TestMQTTSourceHandleIgnoresMalformedTopic(t *testing.T) {
	b := New()
	src := &MQTTSource{bus: b, logger: discardLogger(), clock: fixedClock(1)}

	delivered := false
	sub := b.Subscribe(IngestTopic, nil, func(e Event) { delivered = true })
	sub.Request(1)

	src.handle(nil, &fakeMessage{topic: "malformed", payload: []byte(`{}`)})

	assert.False(t, delivered)
}

func TestMQTTSourceHandleIgnoresUndecodableBody(t *testing.T) {
	b := New()
	src := &MQTTSource{bus: b, logger: discardLogger(), clock: fixedClock(1)}

	delivered := false
	sub := b.Subscribe(IngestTopic, nil, func(e Event) { delivered = true })
	sub.Request(1)

	src.handle(nil, &fakeMessage{topic: "station-1/temperature", payload: []byte("not json")})

	assert.False(t, delivered)
}

type fixedClock core.Instant

func (c fixedClock) Now() core.Instant { return core.Instant(c) }

var _ mqtt.Message = (*fakeMessage)(nil)
