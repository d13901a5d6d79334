// Package bus is the MQTT device bus: it delivers device reports to a handler
// and publishes ON/OFF commands to devices and groups.
package bus

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"plug_sync/internal/logger"
	"plug_sync/internal/models"
)

// Config is what the bus needs to reach the broker.
type Config struct {
	URL       string
	ClientID  string
	BaseTopic string
	QoS       byte
}

// MessageHandler receives one inbound message. A returned error is logged only.
type MessageHandler func(topic string, payload []byte) error

type subscription struct {
	topic   string
	handler MessageHandler
}

// Client wraps paho with subscription restore on reconnect, panic-safe
// handlers and fire-and-forget command publishing.
//
// All methods are safe for concurrent use.
type Client struct {
	client pahomqtt.Client
	cfg    Config
	topics Topics
	log    *logger.Logger

	subscriptions map[string]subscription
	subMu         sync.RWMutex

	connected bool
	connMu    sync.RWMutex

	closeOnce sync.Once
}

// commandPayload is the body of every <base>/<target>/set message.
type commandPayload struct {
	State models.PlugState `json:"state"`
}

func newClient(cfg Config, log *logger.Logger) *Client {
	if log == nil {
		log = logger.Nop()
	}
	return &Client{
		cfg:           cfg,
		topics:        NewTopics(cfg.BaseTopic),
		log:           log,
		subscriptions: make(map[string]subscription),
	}
}

// Connect dials the broker and blocks until the first connection succeeds or fails.
func Connect(cfg Config, log *logger.Logger) (*Client, error) {
	if cfg.QoS > maxQoS {
		return nil, ErrInvalidQoS
	}
	opts, err := buildClientOptions(cfg)
	if err != nil {
		return nil, err
	}

	c := newClient(cfg, log)

	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		c.handleConnect()
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleDisconnect(err)
	})
	opts.SetReconnectingHandler(func(_ pahomqtt.Client, _ *pahomqtt.ClientOptions) {
		c.log.Infow("bus_reconnecting", "client_id", cfg.ClientID)
	})

	c.client = pahomqtt.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// the OnConnect callback runs asynchronously and may not have happened yet
	c.setConnected(true)
	return c, nil
}

// Topics returns the topic builder for the configured base.
func (c *Client) Topics() Topics {
	return c.topics
}

func (c *Client) setConnected(v bool) {
	c.connMu.Lock()
	c.connected = v
	c.connMu.Unlock()
}

func (c *Client) handleConnect() {
	c.setConnected(true)
	c.log.Infow("bus_connected", "client_id", c.cfg.ClientID)
	c.restoreSubscriptions()
}

func (c *Client) handleDisconnect(err error) {
	c.setConnected(false)
	c.log.Warnw("bus_connection_lost", "err", err)
}

// restoreSubscriptions re-subscribes every tracked topic after a reconnect.
func (c *Client) restoreSubscriptions() {
	c.subMu.RLock()
	defer c.subMu.RUnlock()

	for _, sub := range c.subscriptions {
		c.client.Subscribe(sub.topic, c.cfg.QoS, c.wrapHandler(sub.handler))
	}
}

// IsConnected reports the last known connection state.
func (c *Client) IsConnected() bool {
	if c.client == nil {
		return false
	}
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected && c.client.IsConnected()
}

// Subscribe registers handler for topic (wildcards allowed) and keeps it
// registered across reconnects.
func (c *Client) Subscribe(topic string, handler MessageHandler) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if handler == nil {
		return fmt.Errorf("%w: handler cannot be nil", ErrSubscribeFailed)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.subMu.Lock()
	c.subscriptions[topic] = subscription{topic: topic, handler: handler}
	c.subMu.Unlock()

	token := c.client.Subscribe(topic, c.cfg.QoS, c.wrapHandler(handler))
	var err error
	if !token.WaitTimeout(defaultSubscribeTimeout) {
		err = fmt.Errorf("%w: timeout after %v", ErrSubscribeFailed, defaultSubscribeTimeout)
	} else if terr := token.Error(); terr != nil {
		err = fmt.Errorf("%w: %w", ErrSubscribeFailed, terr)
	}
	if err != nil {
		c.subMu.Lock()
		delete(c.subscriptions, topic)
		c.subMu.Unlock()
		return err
	}

	c.log.Infow("bus_subscribed", "topic", topic)
	return nil
}

// Publish hands payload to the broker without waiting for the acknowledgement.
// The outcome is observed in the background and failures are logged.
func (c *Client) Publish(topic string, payload []byte) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, c.cfg.QoS, false, payload)
	go c.awaitDelivery(topic, token)
	return nil
}

func (c *Client) awaitDelivery(topic string, token pahomqtt.Token) {
	timer := time.NewTimer(defaultDeliveryTimeout)
	defer timer.Stop()

	select {
	case <-token.Done():
	case <-timer.C:
		c.log.Warnw("bus_publish_unacknowledged", "topic", topic, "timeout", defaultDeliveryTimeout)
		return
	}
	if err := token.Error(); err != nil {
		c.log.Warnw("bus_publish_failed", "topic", topic, "err", err)
	}
}

// SendCommand publishes {"state": state} to <base>/<target>/set. target is a
// device id or the group id.
func (c *Client) SendCommand(target string, state models.PlugState) error {
	if target == "" {
		return ErrInvalidTopic
	}
	payload, err := json.Marshal(commandPayload{State: state})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	if err := c.Publish(c.topics.Set(target), payload); err != nil {
		return err
	}
	c.log.Debugw("bus_command_sent", "target", target, "state", state)
	return nil
}

// Close disconnects from the broker; no handler runs after it returns.
// Closing an unconnected client, or closing twice, is a no-op.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	c.closeOnce.Do(func() {
		c.client.Disconnect(defaultDisconnectQuiesce)
		c.setConnected(false)
	})
	return nil
}

// wrapHandler adapts a MessageHandler to paho and recovers handler panics.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				c.log.Errorw("bus_handler_panic", "topic", msg.Topic(), "panic", r)
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			c.log.Warnw("bus_handler_error", "topic", msg.Topic(), "err", err)
		}
	}
}
