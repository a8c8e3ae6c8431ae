package mqtt

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/ayaproj/aya/pkg/aya"
)

// Options configures the MQTT client.
type Options struct {
	BrokerURL string
	ClientID  string
	Username  string
	Password  string
	TLSCA     string
	TLSCert   string
	TLSKey    string
	TopicBase string
	Timeout   time.Duration
}

// Client is an MQTT adapter implementing the Broker port.
type Client struct {
	client     paho.Client
	replyTopic string
	topicBase  string
	timeout    time.Duration

	mu            sync.Mutex
	replyHandlers map[string]chan aya.ReplyEnvelope
}

// NewClient creates and connects an MQTT client.
func NewClient(opts Options) (*Client, error) {
	if opts.TopicBase == "" {
		opts.TopicBase = aya.BaseTopic
	}
	if opts.Timeout == 0 {
		opts.Timeout = 2 * time.Second
	}

	c := &Client{
		replyTopic:    aya.TopicReply(opts.TopicBase, opts.ClientID),
		topicBase:     opts.TopicBase,
		timeout:       opts.Timeout,
		replyHandlers: map[string]chan aya.ReplyEnvelope{},
	}

	clientOpts := paho.NewClientOptions().AddBroker(opts.BrokerURL)
	clientOpts.SetClientID(opts.ClientID)
	clientOpts.SetConnectTimeout(opts.Timeout)
	clientOpts.SetAutoReconnect(true)
	clientOpts.SetOnConnectHandler(func(client paho.Client) {
		token := client.Subscribe(c.replyTopic, 1, c.handleReply)
		token.Wait()
	})

	if opts.Username != "" {
		clientOpts.SetUsername(opts.Username)
		clientOpts.SetPassword(opts.Password)
	}

	tlsConfig, err := buildTLSConfig(opts.TLSCA, opts.TLSCert, opts.TLSKey)
	if err != nil {
		return nil, err
	}
	if tlsConfig != nil {
		clientOpts.SetTLSConfig(tlsConfig)
	}

	c.client = paho.NewClient(clientOpts)
	if token := c.client.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	if token := c.client.Subscribe(c.replyTopic, 1, c.handleReply); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}

	return c, nil
}

// ReplyTopic returns the topic used for replies.
func (c *Client) ReplyTopic() string {
	return c.replyTopic
}

// PublishCommand publishes a command and waits for a reply.
func (c *Client) PublishCommand(ctx context.Context, nodeID string, cmd aya.CommandEnvelope) (aya.ReplyEnvelope, error) {
	req, err := json.Marshal(cmd)
	if err != nil {
		return aya.ReplyEnvelope{}, fmt.Errorf("marshal command: %w", err)
	}

	replyCh := make(chan aya.ReplyEnvelope, 1)
	c.mu.Lock()
	c.replyHandlers[cmd.ID] = replyCh
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.replyHandlers, cmd.ID)
		c.mu.Unlock()
	}()

	topic := aya.TopicCommands(c.topicBase, nodeID)
	if token := c.client.Publish(topic, 1, false, req); token.Wait() && token.Error() != nil {
		return aya.ReplyEnvelope{}, token.Error()
	}

	select {
	case <-ctx.Done():
		return aya.ReplyEnvelope{}, ctx.Err()
	case reply := <-replyCh:
		return reply, nil
	case <-time.After(c.timeout):
		return aya.ReplyEnvelope{}, errors.New("timeout waiting for reply")
	}
}

// presenceWindow bounds how long ListPresence collects retained messages.
const presenceWindow = 250 * time.Millisecond

// decodeTo returns a handler that unmarshals each payload into T and
// offers it to ch without blocking. Undecodable payloads are dropped.
func decodeTo[T any](ch chan<- T) paho.MessageHandler {
	return func(_ paho.Client, msg paho.Message) {
		var v T
		if err := json.Unmarshal(msg.Payload(), &v); err != nil {
			return
		}
		select {
		case ch <- v:
		default:
		}
	}
}

// subscribe wires handler to topic and returns the matching unsubscribe.
func (c *Client) subscribe(topic string, handler paho.MessageHandler) (func(), error) {
	if token := c.client.Subscribe(topic, 1, handler); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	return func() { c.client.Unsubscribe(topic).Wait() }, nil
}

// ListPresence collects retained presence messages. Each node publishes
// presence retained, so one collection window sees every known node.
func (c *Client) ListPresence(ctx context.Context) ([]aya.Presence, error) {
	seen := make(chan aya.Presence, 16)
	unsubscribe, err := c.subscribe(fmt.Sprintf("%s/node/+/presence", c.topicBase), decodeTo(seen))
	if err != nil {
		return nil, err
	}
	defer unsubscribe()

	collect := map[string]aya.Presence{}
	wait := time.NewTimer(presenceWindow)
	defer wait.Stop()
	for collecting := true; collecting; {
		select {
		case presence := <-seen:
			collect[presence.NodeID] = presence
		case <-ctx.Done():
			collecting = false
		case <-wait.C:
			collecting = false
		}
	}

	out := make([]aya.Presence, 0, len(collect))
	for _, presence := range collect {
		out = append(out, presence)
	}
	return out, nil
}

// GetPlayerState returns the retained player state.
func (c *Client) GetPlayerState(ctx context.Context, nodeID string) (aya.PlayerState, error) {
	stateCh := make(chan aya.PlayerState, 1)
	unsubscribe, err := c.subscribe(aya.TopicState(c.topicBase, nodeID), decodeTo(stateCh))
	if err != nil {
		return aya.PlayerState{}, err
	}
	defer unsubscribe()

	select {
	case <-ctx.Done():
		return aya.PlayerState{}, ctx.Err()
	case state := <-stateCh:
		return state, nil
	case <-time.After(c.timeout):
		return aya.PlayerState{}, errors.New("timeout waiting for state")
	}
}

// WatchPlayer streams state and events for a player node.
func (c *Client) WatchPlayer(ctx context.Context, nodeID string) (<-chan aya.PlayerState, <-chan aya.Event, <-chan error) {
	stateCh := make(chan aya.PlayerState, 8)
	eventCh := make(chan aya.Event, 8)
	errCh := make(chan error, 1)

	unsubState, err := c.subscribe(aya.TopicState(c.topicBase, nodeID), decodeTo(stateCh))
	if err != nil {
		errCh <- err
		return stateCh, eventCh, errCh
	}
	unsubEvents, err := c.subscribe(aya.TopicEvents(c.topicBase, nodeID), decodeTo(eventCh))
	if err != nil {
		unsubState()
		errCh <- err
		return stateCh, eventCh, errCh
	}

	go func() {
		<-ctx.Done()
		unsubState()
		unsubEvents()
		close(stateCh)
		close(eventCh)
		close(errCh)
	}()

	return stateCh, eventCh, errCh
}

func (c *Client) handleReply(_ paho.Client, msg paho.Message) {
	var reply aya.ReplyEnvelope
	if err := json.Unmarshal(msg.Payload(), &reply); err != nil {
		return
	}

	c.mu.Lock()
	ch, ok := c.replyHandlers[reply.ID]
	c.mu.Unlock()
	if !ok {
		return
	}

	select {
	case ch <- reply:
	default:
	}
}

func buildTLSConfig(caPath, certPath, keyPath string) (*tls.Config, error) {
	if caPath == "" && certPath == "" && keyPath == "" {
		return nil, nil
	}

	config := &tls.Config{}
	if caPath != "" {
		pem, err := os.ReadFile(caPath)
		if err != nil {
			return nil, err
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, errors.New("failed to parse CA bundle")
		}
		config.RootCAs = pool
	}

	if certPath != "" || keyPath != "" {
		if certPath == "" || keyPath == "" {
			return nil, errors.New("both tls cert and key are required")
		}
		cert, err := tls.LoadX509KeyPair(certPath, keyPath)
		if err != nil {
			return nil, err
		}
		config.Certificates = []tls.Certificate{cert}
	}

	return config, nil
}
