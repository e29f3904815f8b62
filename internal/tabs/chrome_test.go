package tabs

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"smartlauncher/internal/models"
)

func TestChromeTabAckRouting(t *testing.T) {
	tab := &chromeTab{id: "t1", acks: make(map[string]chan models.TabAck)}
	ch := tab.expect("ext_1")

	tab.deliverAck("{not json")
	tab.deliverAck(`{"action":"ack","sessionId":"ext_other","success":true}`)
	select {
	case ack := <-ch:
		t.Fatalf("unexpected ack %+v", ack)
	default:
	}

	payload, _ := json.Marshal(models.TabAck{Action: models.ActionAck, SessionID: "ext_1", Success: true})
	tab.deliverAck(string(payload))
	select {
	case ack := <-ch:
		if !ack.Success || ack.SessionID != "ext_1" {
			t.Fatalf("unexpected ack %+v", ack)
		}
	default:
		t.Fatalf("ack was not routed")
	}

	// a duplicate must not block the event loop
	tab.deliverAck(string(payload))
	tab.deliverAck(string(payload))

	tab.drop("ext_1")
	if _, ok := tab.acks["ext_1"]; ok {
		t.Fatalf("dropped waiter still registered")
	}
}

func TestChromeReleasesTabsAfterRetention(t *testing.T) {
	// no allocator behind the context, so navigation fails immediately
	c := newChrome(context.Background(), WithRetention(30*time.Millisecond))
	defer c.Close()

	tab, err := c.Open(context.Background(), "https://example.test/?from=extension")
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c.WaitLoaded(ctx, tab.ID); err == nil {
		t.Fatalf("expected navigation error without a browser")
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := c.get(tab.ID); !ok {
			if _, err := c.Send(ctx, tab.ID, models.TabMessage{SessionID: "x"}); err != ErrUnknownTab {
				t.Fatalf("expected ErrUnknownTab after release, got %v", err)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("tab was never released")
}
