package ws

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
)

func testConn(h *Hub, buf int) *conn {
	return &conn{send: make(chan []byte, buf), hub: h}
}

func TestPublish_DeliversToRoom(t *testing.T) {
	h := NewHub(zerolog.Nop())
	c := testConn(h, 4)
	h.subscribe(c, "m1")
	other := testConn(h, 4)
	h.subscribe(other, "m2")

	h.Publish("m1", "market_created", map[string]string{"creator": "alice"})

	select {
	case raw := <-c.send:
		var msg Msg
		if err := json.Unmarshal(raw, &msg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if msg.Type != "market_created" || msg.MarketKey != "m1" {
			t.Errorf("got %+v", msg)
		}
	default:
		t.Fatal("subscriber received nothing")
	}
	select {
	case <-other.send:
		t.Error("message leaked into another room")
	default:
	}
}

func TestPublish_DropsOnFullBuffer(t *testing.T) {
	h := NewHub(zerolog.Nop())
	var drops atomic.Int64
	h.OnDrop(func() { drops.Add(1) })

	c := testConn(h, 1)
	h.subscribe(c, "m1")

	h.Publish("m1", "trade", nil)
	h.Publish("m1", "trade", nil)

	if got := drops.Load(); got != 1 {
		t.Errorf("drops = %d, want 1", got)
	}
}

// Publish iterates a room that subscribe, unsubscribe and removeConn mutate
// concurrently; the loop must stay consistent with those writers.
func TestPublish_ConcurrentWithMembershipChurn(t *testing.T) {
	h := NewHub(zerolog.Nop())
	stop := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			c := testConn(h, 1)
			h.conns[c] = true
			h.subscribe(c, "m1")
			h.unsubscribe(c, "m1")
			h.subscribe(c, "m1")
			h.removeConn(c)
		}
	}()

	for i := 0; i < 2000; i++ {
		h.Publish("m1", "trade", i)
	}
	close(stop)
	wg.Wait()
}
