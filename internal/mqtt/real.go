package mqtt

import (
	"fmt"
	"log"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/sweeney/ledpanel/internal/logic"
)

// DefaultQueueSize is how many messages are held while the broker is unreachable.
const DefaultQueueSize = 64

const publishTimeout = 5 * time.Second

// RealPublisher publishes to an actual MQTT broker. Connecting happens in the
// background; messages published while disconnected are queued and replayed
// on (re)connect.
type RealPublisher struct {
	client paho.Client

	mu    sync.Mutex
	queue *outbox
}

// NewRealPublisher creates a publisher for the given broker and starts
// connecting without waiting for the broker.
func NewRealPublisher(broker string, queueSize int) *RealPublisher {
	p := &RealPublisher{queue: newOutbox(queueSize)}

	will, _ := FormatSystemPayload(SystemEvent{Event: "OFFLINE"})
	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID("ledpanel-" + uuid.NewString()).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(TopicSystem, string(will), 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Printf("mqtt: connection lost: %v", err)
		})

	p.client = paho.NewClient(opts)
	p.client.Connect()
	return p
}

// IsConnected reports whether the broker connection is open.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Publish sends a toggle event. QoS 0 (at-most-once), not retained.
func (p *RealPublisher) Publish(event logic.ToggleEvent) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	return p.send(queuedMsg{topic: Topic, payload: payload})
}

// PublishSystem sends a system lifecycle event. QoS 1 so startup and shutdown
// reach the broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.send(queuedMsg{topic: TopicSystem, payload: payload, qos: 1, retained: event.Retained})
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}

func (p *RealPublisher) send(msg queuedMsg) error {
	if !p.client.IsConnectionOpen() {
		p.mu.Lock()
		p.queue.push(msg)
		p.mu.Unlock()
		return nil
	}
	return p.publish(msg)
}

func (p *RealPublisher) publish(msg queuedMsg) error {
	token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish %s: timeout", msg.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", msg.topic, err)
	}
	return nil
}

func (p *RealPublisher) onConnect(paho.Client) {
	p.mu.Lock()
	pending := p.queue.drain()
	p.mu.Unlock()

	log.Printf("mqtt: connected")
	for _, msg := range pending {
		if err := p.publish(msg); err != nil {
			log.Printf("mqtt: replay failed: %v", err)
		}
	}
}
