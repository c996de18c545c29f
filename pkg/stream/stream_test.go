package stream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/DevStudio-infra/the-trade-tracker-sub002/pkg/market"
)

type staticTokens struct{ token string }

func (s staticTokens) SecurityToken() string { return s.token }

func TestBackoffSequence(t *testing.T) {
	want := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
	}
	for attempts, expected := range want {
		if got := nextBackoff(attempts); got != expected {
			t.Fatalf("nextBackoff(%d)=%v, expected %v", attempts, got, expected)
		}
	}
	// Beyond the cap the delay flattens at 30s.
	if got := nextBackoff(5); got != 30*time.Second {
		t.Fatalf("nextBackoff(5)=%v, expected 30s cap", got)
	}
	if got := nextBackoff(10); got != 30*time.Second {
		t.Fatalf("nextBackoff(10)=%v, expected 30s cap", got)
	}
}

func TestParseFrame(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		wantTick bool
		wantErr  bool
	}{
		{"price", `{"type":"price","epic":"EURUSD","bid":1.1,"ask":1.2,"timestamp":1700000000000,"volume":3}`, true, false},
		{"pong", `{"type":"pong"}`, false, false},
		{"unknown type dropped", `{"type":"quote_v2","epic":"EURUSD"}`, false, false},
		{"garbage", `{not json`, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tick, ok, err := parseFrame([]byte(tt.payload))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err=%v, wantErr=%v", err, tt.wantErr)
			}
			if ok != tt.wantTick {
				t.Fatalf("ok=%v, wantTick=%v", ok, tt.wantTick)
			}
			if ok && tick.Mid() != 1.15 {
				t.Fatalf("mid=%v, expected 1.15", tick.Mid())
			}
		})
	}
}

// echoPriceServer upgrades, reads the auth frame, then emits one price frame
// per subscribe it receives.
func echoPriceServer(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for {
			var f clientFrame
			if err := conn.ReadJSON(&f); err != nil {
				return
			}
			switch f.Action {
			case "auth":
				if f.Token != "sock-token" {
					t.Errorf("auth token=%q, expected sock-token", f.Token)
				}
			case "ping":
				_ = conn.WriteJSON(map[string]string{"type": "pong"})
			case "subscribe":
				_ = conn.WriteJSON(map[string]any{
					"type": "price", "epic": f.Epic,
					"bid": 1.1000, "ask": 1.1002,
					"timestamp": time.Now().UnixMilli(), "volume": 1.0,
				})
			}
		}
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestConnectSubscribeDispatch(t *testing.T) {
	srv := echoPriceServer(t)
	defer srv.Close()

	m := NewManager(wsURL(srv), staticTokens{"sock-token"}, nil)
	defer m.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.Connect(ctx); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if m.State() != StateConnected {
		t.Fatalf("state=%s, expected CONNECTED", m.State())
	}

	ticks := make(chan float64, 1)
	var once sync.Once
	err := m.Subscribe("EURUSD", func(tk market.Tick) {
		once.Do(func() { ticks <- tk.Bid })
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	select {
	case bid := <-ticks:
		if bid != 1.1 {
			t.Fatalf("bid=%v, expected 1.1", bid)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no tick dispatched within 3s")
	}
}

func TestCloseStopsDispatchSynchronously(t *testing.T) {
	srv := echoPriceServer(t)
	defer srv.Close()

	m := NewManager(wsURL(srv), staticTokens{"sock-token"}, nil)
	ctx := context.Background()
	if err := m.Connect(ctx); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	var mu sync.Mutex
	count := 0
	_ = m.Subscribe("GBPUSD", func(market.Tick) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	m.Close()
	mu.Lock()
	after := count
	mu.Unlock()

	time.Sleep(200 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if count != after {
		t.Fatalf("handler fired after Close: %d -> %d", after, count)
	}
	if m.State() != StateDisconnected {
		t.Fatalf("state=%s, expected DISCONNECTED", m.State())
	}
}
