package mqtt

import (
	"sync"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// fakeToken is a paho token that is already complete unless gated.
type fakeToken struct {
	err  error
	done chan struct{}
}

func doneToken(err error) *fakeToken {
	t := &fakeToken{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool { <-t.done; return true }

func (t *fakeToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}

func (t *fakeToken) Done() <-chan struct{} { return t.done }
func (t *fakeToken) Error() error          { return t.err }

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 0 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 0 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

// fakeClient implements pahomqtt.Client in memory.
type fakeClient struct {
	mu sync.Mutex

	opts *pahomqtt.ClientOptions

	// connectErrs is consumed one per Connect call; missing entries succeed.
	connectErrs []error
	// gate, when set, holds Connect tokens open until closed.
	gate chan struct{}

	connects     int
	connected    bool
	disconnects  int
	subscribed   []string
	unsubscribed []string
	published    []published
	publishErr   error
}

func (c *fakeClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeClient) IsConnectionOpen() bool { return c.IsConnected() }

func (c *fakeClient) Connect() pahomqtt.Token {
	c.mu.Lock()
	var err error
	if c.connects < len(c.connectErrs) {
		err = c.connectErrs[c.connects]
	}
	c.connects++
	c.connected = err == nil
	gate := c.gate
	c.mu.Unlock()

	if gate == nil {
		return doneToken(err)
	}
	t := &fakeToken{err: err, done: make(chan struct{})}
	go func() {
		<-gate
		close(t.done)
	}()
	return t
}

func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	c.connected = false
	c.disconnects++
	c.mu.Unlock()
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.publishErr != nil {
		return doneToken(c.publishErr)
	}
	var data []byte
	switch p := payload.(type) {
	case []byte:
		data = p
	case string:
		data = []byte(p)
	}
	c.published = append(c.published, published{topic: topic, qos: qos, retained: retained, payload: data})
	return doneToken(nil)
}

func (c *fakeClient) Subscribe(topic string, _ byte, _ pahomqtt.MessageHandler) pahomqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribed = append(c.subscribed, topic)
	return doneToken(nil)
}

func (c *fakeClient) SubscribeMultiple(filters map[string]byte, _ pahomqtt.MessageHandler) pahomqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	for topic := range filters {
		c.subscribed = append(c.subscribed, topic)
	}
	return doneToken(nil)
}

func (c *fakeClient) Unsubscribe(topics ...string) pahomqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unsubscribed = append(c.unsubscribed, topics...)
	return doneToken(nil)
}

func (c *fakeClient) AddRoute(string, pahomqtt.MessageHandler) {}

func (c *fakeClient) OptionsReader() pahomqtt.ClientOptionsReader {
	return pahomqtt.ClientOptionsReader{}
}

// deliver simulates an inbound message through the default handler.
func (c *fakeClient) deliver(topic string, payload string) {
	c.mu.Lock()
	handler := c.opts.DefaultPublishHandler
	c.mu.Unlock()
	handler(c, &fakeMessage{topic: topic, payload: []byte(payload)})
}

// lose simulates an unexpected connection drop.
func (c *fakeClient) lose(err error) {
	c.mu.Lock()
	c.connected = false
	handler := c.opts.OnConnectionLost
	c.mu.Unlock()
	handler(c, err)
}

func (c *fakeClient) subscriptions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.subscribed...)
}

func (c *fakeClient) publishes() []published {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]published(nil), c.published...)
}

// stateRecorder collects state transitions.
type stateRecorder struct {
	mu     sync.Mutex
	states []State
}

func (r *stateRecorder) record(s State, _ error) {
	r.mu.Lock()
	r.states = append(r.states, s)
	r.mu.Unlock()
}

func (r *stateRecorder) all() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}

// newTestBridge wires a bridge to fc with a manual reconnect clock.
func newTestBridge(t *testing.T, fc *fakeClient, opts Options) (*Bridge, chan time.Time, *stateRecorder) {
	t.Helper()

	b := NewBridge(opts)
	b.newClient = func(o *pahomqtt.ClientOptions) pahomqtt.Client {
		fc.mu.Lock()
		fc.opts = o
		fc.mu.Unlock()
		return fc
	}
	tick := make(chan time.Time)
	b.after = func(time.Duration) <-chan time.Time { return tick }

	rec := &stateRecorder{}
	b.OnStateChange(rec.record)
	t.Cleanup(b.Disconnect)
	return b, tick, rec
}
