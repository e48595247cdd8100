package mqtt

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/denisbrodbeck/machineid"
	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/hatch-controller/internal/event"
)

// DefaultBufferSize is how many messages are held while disconnected.
const DefaultBufferSize = 100

// Options configures a RealPublisher. Empty fields take defaults.
type Options struct {
	Broker      string
	ClientID    string // defaults to ClientID(app)
	App         string // used to derive the client ID, e.g. "hatch-controller"
	Topic       string // defaults to Topic
	SystemTopic string // defaults to TopicSystem; also carries the will
	BufferSize  int
}

// ClientID returns a stable per-machine client ID for app. It falls back to
// the hostname when the machine ID is unavailable.
func ClientID(app string) string {
	id, err := machineid.ProtectedID(app)
	if err != nil {
		host, _ := os.Hostname()
		return app + "-" + host
	}
	return app + "-" + id[:12]
}

// RealPublisher publishes to an actual MQTT broker. Messages published
// while disconnected are buffered and replayed on (re)connect.
type RealPublisher struct {
	client      paho.Client
	topic       string
	systemTopic string

	mu            sync.Mutex
	buf           *ringBuffer
	connectedOnce bool

	cancel context.CancelFunc
	done   chan struct{}
}

// NewRealPublisher creates a publisher and starts connecting in the
// background, retrying with exponential backoff until Close.
func NewRealPublisher(o Options) *RealPublisher {
	if o.App == "" {
		o.App = "hatch-controller"
	}
	if o.ClientID == "" {
		o.ClientID = ClientID(o.App)
	}
	if o.Topic == "" {
		o.Topic = Topic
	}
	if o.SystemTopic == "" {
		o.SystemTopic = TopicSystem
	}
	if o.BufferSize <= 0 {
		o.BufferSize = DefaultBufferSize
	}

	p := &RealPublisher{
		topic:       o.Topic,
		systemTopic: o.SystemTopic,
		buf:         newRingBuffer(o.BufferSize),
		done:        make(chan struct{}),
	}

	opts := paho.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(time.Minute).
		SetWill(o.SystemTopic, string(willPayload()), 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Printf("mqtt: connection lost: %v", err)
		})
	p.client = paho.NewClient(opts)

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	go p.connect(ctx, o.Broker)
	return p
}

// connect makes the first connection. paho's auto-reconnect takes over
// after that.
func (p *RealPublisher) connect(ctx context.Context, broker string) {
	defer close(p.done)

	bo := backoff.NewExponentialBackOff()
	bo.MaxInterval = time.Minute
	bo.MaxElapsedTime = 0 // retry until Close

	err := backoff.RetryNotify(func() error {
		token := p.client.Connect()
		if !token.WaitTimeout(10 * time.Second) {
			return fmt.Errorf("connection timeout")
		}
		return token.Error()
	}, backoff.WithContext(bo, ctx), func(err error, next time.Duration) {
		log.Printf("mqtt: connect to %s failed: %v (retry in %v)", broker, err, next.Round(time.Second))
	})
	if err != nil && ctx.Err() == nil {
		log.Printf("mqtt: giving up on %s: %v", broker, err)
	}
}

// onConnect replays buffered messages. Every connection after the first
// also announces RECONNECTED.
func (p *RealPublisher) onConnect(c paho.Client) {
	p.mu.Lock()
	pending := p.buf.drainAll()
	first := !p.connectedOnce
	p.connectedOnce = true
	p.mu.Unlock()

	log.Printf("mqtt: connected, replaying %d buffered messages", len(pending))
	for _, m := range pending {
		c.Publish(m.topic, m.qos, m.retained, m.payload)
	}

	if !first {
		payload, _ := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "RECONNECTED"})
		c.Publish(p.systemTopic, 1, false, payload)
	}
}

// Publish sends a controller event to the MQTT broker.
func (p *RealPublisher) Publish(ev event.Event) error {
	payload, err := FormatPayload(ev)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	// QoS 0 (at-most-once), not retained
	return p.publish(bufferedMsg{topic: p.topic, payload: payload})
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(ev SystemEvent) error {
	payload, err := FormatSystemPayload(ev)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	// QoS 1 (at-least-once) so lifecycle events survive a flaky link
	return p.publish(bufferedMsg{topic: p.systemTopic, payload: payload, qos: 1, retained: ev.Retained})
}

func (p *RealPublisher) publish(m bufferedMsg) error {
	if !p.client.IsConnectionOpen() {
		p.mu.Lock()
		p.buf.push(m)
		p.mu.Unlock()
		return nil
	}

	token := p.client.Publish(m.topic, m.qos, m.retained, m.payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Buffered returns how many messages are waiting for a connection.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.len()
}

// Close stops connecting and disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.cancel()
	<-p.done
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
