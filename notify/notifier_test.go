package notify

import (
	"sync"
	"testing"
	"time"

	"github.com/bhunjadi/pagination/encoding"
	"github.com/nats-io/nats.go"
)

func TestHub_BasicSubscribeSignal(t *testing.T) {
	hub := NewHub(1)

	signals, cancel := hub.Subscribe(Filter{})
	defer cancel()

	hub.Signal("orders")

	select {
	case sig := <-signals:
		if sig.Collection != "orders" || sig.Seq != 1 || sig.Origin != 1 {
			t.Errorf("unexpected signal %+v", sig)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for signal")
	}
}

func TestHub_FilterSpecificCollection(t *testing.T) {
	hub := NewHub(1)

	signals, cancel := hub.Subscribe(Filter{Collections: []string{"orders"}})
	defer cancel()

	hub.Signal("users")

	select {
	case sig := <-signals:
		t.Errorf("should not receive signal for users, got %+v", sig)
	case <-time.After(50 * time.Millisecond):
	}

	hub.Signal("orders")

	select {
	case sig := <-signals:
		if sig.Collection != "orders" {
			t.Errorf("expected orders, got %s", sig.Collection)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for signal")
	}
}

func TestHub_SignalsCoalesce(t *testing.T) {
	hub := NewHub(1)

	signals, cancel := hub.Subscribe(Filter{})
	defer cancel()

	// A burst of writes must never block the writer
	for i := 0; i < 50; i++ {
		hub.Signal("orders")
	}

	select {
	case <-signals:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("expected a pending signal after a burst")
	}

	select {
	case sig := <-signals:
		t.Errorf("burst should coalesce into one pending signal, got extra %+v", sig)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_CancelUnsubscribes(t *testing.T) {
	hub := NewHub(1)

	signals, cancel := hub.Subscribe(Filter{})
	cancel()
	cancel() // idempotent

	select {
	case _, ok := <-signals:
		if ok {
			t.Error("channel should be closed after cancel")
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for channel close")
	}

	// Subsequent signals should not panic
	hub.Signal("orders")

	if n := hub.SubscriberCount(); n != 0 {
		t.Errorf("expected 0 subscribers, got %d", n)
	}
}

func TestHub_ConcurrentSignalSubscribe(t *testing.T) {
	hub := NewHub(1)
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			signals, cancel := hub.Subscribe(Filter{})
			defer cancel()

			timeout := time.After(200 * time.Millisecond)
			for {
				select {
				case <-signals:
				case <-timeout:
					return
				}
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			hub.Signal("orders")
		}
	}()

	wg.Wait()
}

type recordingRelay struct {
	mu      sync.Mutex
	signals []Signal
}

func (r *recordingRelay) Relay(sig Signal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.signals = append(r.signals, sig)
}

func TestHub_RelayOnlyLocalSignals(t *testing.T) {
	hub := NewHub(7)
	relay := &recordingRelay{}
	hub.AddRelay(relay)

	hub.Signal("orders")
	hub.Deliver(Signal{Collection: "orders", Seq: 99, Origin: 8})

	relay.mu.Lock()
	defer relay.mu.Unlock()
	if len(relay.signals) != 1 {
		t.Fatalf("expected 1 relayed signal, got %d", len(relay.signals))
	}
	if relay.signals[0].Origin != 7 {
		t.Errorf("relayed signal should carry local origin, got %d", relay.signals[0].Origin)
	}
}

type fakeConn struct {
	mu        sync.Mutex
	published map[string][][]byte
	handler   nats.MsgHandler
	closed    bool
}

func (c *fakeConn) Publish(subject string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.published == nil {
		c.published = make(map[string][][]byte)
	}
	c.published[subject] = append(c.published[subject], data)
	return nil
}

func (c *fakeConn) Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error) {
	c.handler = cb
	return nil, nil
}

func (c *fakeConn) Close() {
	c.closed = true
}

func TestNatsBridge_PublishesAndSuppressesEcho(t *testing.T) {
	hub := NewHub(1)
	conn := &fakeConn{}

	bridge, err := newBridge(conn, "app.changes.", hub)
	if err != nil {
		t.Fatalf("newBridge failed: %v", err)
	}
	defer bridge.Close()

	signals, cancel := hub.Subscribe(Filter{})
	defer cancel()

	hub.Signal("sales.orders")
	<-signals

	conn.mu.Lock()
	payloads := conn.published["app.changes.sales_orders"]
	conn.mu.Unlock()
	if len(payloads) != 1 {
		t.Fatalf("expected 1 published payload, got %d", len(payloads))
	}

	// Our own message echoed back must not trigger a second local signal
	conn.handler(&nats.Msg{Data: payloads[0]})
	select {
	case sig := <-signals:
		t.Errorf("echo should be suppressed, got %+v", sig)
	case <-time.After(50 * time.Millisecond):
	}

	// A peer's signal is delivered locally
	remote, err := encoding.Marshal(Signal{Collection: "sales.orders", Seq: 5, Origin: 2})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	conn.handler(&nats.Msg{Data: remote})

	select {
	case sig := <-signals:
		if sig.Origin != 2 || sig.Collection != "sales.orders" {
			t.Errorf("unexpected remote signal %+v", sig)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for remote signal")
	}

	// Malformed payloads are dropped
	conn.handler(&nats.Msg{Data: []byte{0xc1}})
}
