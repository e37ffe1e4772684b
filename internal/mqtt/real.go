package mqtt

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// DefaultBufferSize is how many messages are kept while the broker is away.
const DefaultBufferSize = 100

const (
	publishTimeout = 5 * time.Second
	closeTimeout   = 5 * time.Second
)

var errClosed = errors.New("publisher closed")

// Options configures a RealPublisher.
type Options struct {
	ClientID   string
	Handlers   Handlers
	BufferSize int
	Logger     *slog.Logger
}

// RealPublisher publishes to an actual MQTT broker. Publish calls only
// queue the message: a sender goroutine waits on the broker, so the station
// loop never does. Messages published while disconnected, or whose send
// failed, are buffered and replayed oldest first on reconnect or after the
// next successful send.
type RealPublisher struct {
	client   paho.Client
	handlers Handlers
	logger   *slog.Logger
	sendFn   func(bufferedMsg) error

	outbox chan bufferedMsg
	quit   chan struct{}
	done   chan struct{}

	mu        sync.Mutex
	buffer    *ringBuffer
	connected bool
	everUp    bool
	closed    bool
}

func newPublisher(handlers Handlers, bufferSize int, logger *slog.Logger) *RealPublisher {
	return &RealPublisher{
		handlers: handlers,
		logger:   logger,
		outbox:   make(chan bufferedMsg, bufferSize),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
		buffer:   newRingBuffer(bufferSize, logger),
	}
}

// start runs the sender. sendFn must be set first.
func (p *RealPublisher) start() {
	go p.sender()
}

// NewRealPublisher creates a publisher for the given broker. If the broker
// cannot be reached within ten seconds the publisher is still returned and
// keeps retrying in the background.
func NewRealPublisher(broker string, o Options) (*RealPublisher, error) {
	if o.ClientID == "" {
		o.ClientID = "env-station"
	}
	if o.BufferSize <= 0 {
		o.BufferSize = DefaultBufferSize
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	logger := o.Logger.With("component", "mqtt", "broker", broker)

	p := newPublisher(o.Handlers, o.BufferSize, logger)
	p.sendFn = p.send

	will, err := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     "SHUTDOWN",
		Reason:    "MQTT_DISCONNECT",
	})
	if err != nil {
		return nil, fmt.Errorf("format will: %w", err)
	}

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(o.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetMaxReconnectInterval(60 * time.Second).
		SetKeepAlive(30 * time.Second).
		SetWill(TopicSystem, string(will), 1, false).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(p.onConnectionLost)

	p.client = paho.NewClient(opts)
	p.start()
	token := p.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		logger.Warn("broker not reachable yet, buffering until connected")
		return p, nil
	}
	if err := token.Error(); err != nil {
		close(p.quit)
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return p, nil
}

func (p *RealPublisher) onConnect(c paho.Client) {
	p.mu.Lock()
	p.connected = true
	reconnected := p.everUp
	p.everUp = true
	pending := p.buffer.drainAll()
	for _, msg := range pending {
		p.enqueueLocked(msg)
	}
	p.mu.Unlock()

	p.logger.Info("mqtt connected", "replaying", len(pending))

	for _, topic := range p.handlers.Topics() {
		t := c.Subscribe(topic, 1, p.onMessage)
		if t.WaitTimeout(5*time.Second) && t.Error() != nil {
			p.logger.Error("subscribe failed", "topic", topic, "error", t.Error())
		}
	}

	if reconnected {
		if err := p.PublishSystem(SystemEvent{Timestamp: time.Now(), Event: "RECONNECTED"}); err != nil {
			p.logger.Warn("publish reconnect event failed", "error", err)
		}
	}
}

func (p *RealPublisher) onConnectionLost(_ paho.Client, err error) {
	p.mu.Lock()
	p.connected = false
	p.mu.Unlock()
	p.logger.Warn("mqtt connection lost", "error", err)
}

func (p *RealPublisher) onMessage(_ paho.Client, msg paho.Message) {
	if err := p.handlers.Dispatch(msg.Topic(), msg.Payload()); err != nil {
		p.logger.Warn("rejected inbound message", "topic", msg.Topic(), "error", err)
	}
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// Buffered returns how many messages are waiting for a connection.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buffer.len()
}

// publish queues msg for the sender, or buffers it while disconnected.
func (p *RealPublisher) publish(msg bufferedMsg) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return errClosed
	}
	if !p.connected {
		p.buffer.push(msg)
		return nil
	}
	p.enqueueLocked(msg)
	return nil
}

// enqueueLocked hands msg to the sender. When the sender is stuck on a slow
// broker and the outbox is full, msg waits in the buffer instead.
func (p *RealPublisher) enqueueLocked(msg bufferedMsg) {
	select {
	case p.outbox <- msg:
	default:
		p.buffer.push(msg)
	}
}

// sender delivers queued messages until Close, then flushes the outbox.
func (p *RealPublisher) sender() {
	defer close(p.done)
	for {
		select {
		case msg := <-p.outbox:
			p.deliver(msg)
		case <-p.quit:
			for {
				select {
				case msg := <-p.outbox:
					p.deliver(msg)
				default:
					return
				}
			}
		}
	}
}

// deliver sends msg, buffering it on failure. A success while connected
// retries whatever earlier failures left in the buffer.
func (p *RealPublisher) deliver(msg bufferedMsg) {
	if err := p.sendFn(msg); err != nil {
		p.logger.Warn("publish failed, buffering", "topic", msg.topic, "error", err)
		p.mu.Lock()
		p.buffer.push(msg)
		p.mu.Unlock()
		return
	}

	p.mu.Lock()
	var retry []bufferedMsg
	if p.connected {
		retry = p.buffer.drainAll()
	}
	p.mu.Unlock()

	for i, m := range retry {
		if err := p.sendFn(m); err != nil {
			p.logger.Warn("retry failed, buffering", "topic", m.topic, "error", err)
			p.mu.Lock()
			for _, rest := range retry[i:] {
				p.buffer.push(rest)
			}
			p.mu.Unlock()
			return
		}
	}
}

func (p *RealPublisher) send(msg bufferedMsg) error {
	token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish %s timeout", msg.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", msg.topic, err)
	}
	return nil
}

// PublishTransition sends a mode change, QoS 0.
func (p *RealPublisher) PublishTransition(event TransitionEvent) error {
	payload, err := FormatTransitionPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	return p.publish(bufferedMsg{topic: Topic, payload: payload})
}

// PublishFault sends a fault change, QoS 0.
func (p *RealPublisher) PublishFault(event FaultEvent) error {
	payload, err := FormatFaultPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	return p.publish(bufferedMsg{topic: Topic, payload: payload})
}

// PublishSystem sends a system lifecycle event, QoS 1.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.publish(bufferedMsg{topic: TopicSystem, payload: payload, qos: 1, retained: event.Retained})
}

// Close stops accepting messages, gives the sender a few seconds to flush
// what is queued, and disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	close(p.quit)
	select {
	case <-p.done:
	case <-time.After(closeTimeout):
		p.logger.Warn("gave up flushing outbox", "queued", len(p.outbox))
	}
	if p.client != nil {
		p.client.Disconnect(1000) // 1 second timeout
	}
	return nil
}
