package mqtt

import (
	"context"
	"fmt"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/bulles-portal/internal/infrastructure/config"
)

// Client publishes the portal's auth events and its retained online/offline
// status. It never subscribes.
//
// All methods are safe for concurrent use. A nil or never-connected Client
// reports itself disconnected and refuses to publish.
type Client struct {
	cfg  config.MQTTConfig
	paho pahomqtt.Client

	mu        sync.RWMutex
	up        bool
	onConnect func()
	onLost    func(error)
}

// Connect dials the broker and waits up to defaultConnectTimeout for the
// first session. paho reconnects on its own afterwards and every reconnect
// republishes the online status.
func Connect(cfg config.MQTTConfig) (*Client, error) {
	c := &Client{cfg: cfg}

	opts := buildClientOptions(cfg)
	configureLWT(opts, cfg.Broker.ClientID)
	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.handleConnect() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.handleDisconnect(err) })

	c.paho = pahomqtt.NewClient(opts)
	tok := c.paho.Connect()
	if !tok.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: no answer from broker within %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := tok.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// The connect handler runs on a paho goroutine and may lag behind.
	c.setUp(true)
	return c, nil
}

func (c *Client) setUp(up bool) {
	c.mu.Lock()
	c.up = up
	c.mu.Unlock()
}

func (c *Client) handleConnect() {
	c.setUp(true)
	c.announce(buildOnlinePayload(c.cfg.Broker.ClientID))

	c.mu.RLock()
	fn := c.onConnect
	c.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

func (c *Client) handleDisconnect(err error) {
	c.setUp(false)

	c.mu.RLock()
	fn := c.onLost
	c.mu.RUnlock()
	if fn != nil {
		fn(err)
	}
}

// announce publishes a retained status message on bulles/system/status.
func (c *Client) announce(payload string) pahomqtt.Token {
	return c.paho.Publish(Topics{}.SystemStatus(), byte(c.cfg.QoS), true, payload)
}

// Close announces a graceful shutdown, then disconnects.
func (c *Client) Close() error {
	if c == nil || c.paho == nil {
		return nil
	}
	if c.IsConnected() {
		c.announce(buildOfflinePayload(c.cfg.Broker.ClientID)).WaitTimeout(defaultPublishTimeout)
	}
	c.paho.Disconnect(defaultDisconnectQuiesce)
	c.setUp(false)
	return nil
}

// HealthCheck reports ErrNotConnected while the broker link is down.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected combines the last seen connection event with paho's own view.
func (c *Client) IsConnected() bool {
	if c == nil {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.up && c.paho != nil && c.paho.IsConnected()
}

// SetOnConnect registers fn to run after every (re)connect.
func (c *Client) SetOnConnect(fn func()) {
	c.mu.Lock()
	c.onConnect = fn
	c.mu.Unlock()
}

// SetOnDisconnect registers fn to run when the broker link drops.
func (c *Client) SetOnDisconnect(fn func(error)) {
	c.mu.Lock()
	c.onLost = fn
	c.mu.Unlock()
}
