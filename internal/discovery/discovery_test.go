package discovery

import (
	"context"
	"errors"
	"net"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/grandcat/zeroconf"

	"system_bridge/internal/logger"
	"system_bridge/internal/models"
)

func sampleRecord(uuid string) models.MDNSTextRecord {
	return models.MDNSTextRecord{
		Address:          "http://192.168.1.20:9170",
		FQDN:             "desk.lan",
		Host:             "desk",
		IP:               "192.168.1.20",
		MAC:              "aa:bb:cc:dd:ee:ff",
		Port:             9170,
		UUID:             uuid,
		Version:          "1.2.3",
		WebsocketAddress: "ws://192.168.1.20:9172/api/websocket",
		WSPort:           9172,
	}
}

func TestTXTRoundTrip(t *testing.T) {
	rec := sampleRecord("u-1")
	got := DecodeTXT(EncodeTXT(rec))
	if got != rec {
		t.Fatalf("got %+v, want %+v", got, rec)
	}
}

func TestDecodeTXT_IgnoresJunk(t *testing.T) {
	got := DecodeTXT([]string{"noequals", "port=abc", "uuid=x=y", "other=1"})
	if got.Port != 0 || got.UUID != "x=y" {
		t.Fatalf("got %+v", got)
	}
}

type fakeServer struct{ shut bool }

func (s *fakeServer) Shutdown() { s.shut = true }

func TestAdvertiser(t *testing.T) {
	cases := []struct {
		name      string
		apiKey    string
		regErr    error
		wantCalls int
		wantErr   bool
	}{
		{"skipped_without_key", "", nil, 0, false},
		{"registers", "k", nil, 1, false},
		{"failure_reported", "k", errors.New("no multicast"), 1, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := NewAdvertiser(logger.Nop())
			srv := &fakeServer{}
			calls := 0
			var gotTXT []string
			a.register = func(instance, service, domain string, port int, txt []string) (shutdowner, error) {
				calls++
				if service != ServiceType || domain != Domain || port != 9170 {
					t.Errorf("register(%q, %q, %q, %d)", instance, service, domain, port)
				}
				gotTXT = txt
				if tc.regErr != nil {
					return nil, tc.regErr
				}
				return srv, nil
			}

			err := a.Start("desk", tc.apiKey, sampleRecord("u-1"))
			if (err != nil) != tc.wantErr {
				t.Fatalf("err = %v", err)
			}
			if calls != tc.wantCalls {
				t.Fatalf("calls = %d, want %d", calls, tc.wantCalls)
			}
			if calls == 1 && !reflect.DeepEqual(gotTXT, EncodeTXT(sampleRecord("u-1"))) {
				t.Fatalf("txt = %v", gotTXT)
			}

			a.Stop()
			if tc.wantCalls == 1 && tc.regErr == nil && !srv.shut {
				t.Fatal("server not shut down")
			}
		})
	}
}

type recordingSink struct {
	mu   sync.Mutex
	rows map[string]models.Bridge
	n    int
}

func newSink() *recordingSink {
	return &recordingSink{rows: make(map[string]models.Bridge)}
}

func (s *recordingSink) Upsert(_ context.Context, b models.Bridge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[b.Key] = b
	s.n++
	return nil
}

func entry(instance string, rec models.MDNSTextRecord, ttl uint32) *zeroconf.ServiceEntry {
	e := zeroconf.NewServiceEntry(instance, ServiceType, Domain)
	e.Text = EncodeTXT(rec)
	e.Port = rec.Port
	e.TTL = ttl
	e.AddrIPv4 = []net.IP{net.ParseIP(rec.IP)}
	return e
}

// scripted returns a browse func that replays one batch of entries per window.
func scripted(windows ...[]*zeroconf.ServiceEntry) browseFunc {
	var mu sync.Mutex
	i := 0
	return func(ctx context.Context, _, _ string, entries chan<- *zeroconf.ServiceEntry) error {
		mu.Lock()
		var batch []*zeroconf.ServiceEntry
		if i < len(windows) {
			batch = windows[i]
		}
		i++
		mu.Unlock()
		go func() {
			for _, e := range batch {
				select {
				case entries <- e:
				case <-ctx.Done():
					return
				}
			}
		}()
		return nil
	}
}

func newTestBrowser(sink BridgeSink, windows ...[]*zeroconf.ServiceEntry) *Browser {
	b := NewBrowser(sink, "self-uuid", 20*time.Millisecond, logger.Nop())
	b.browse = scripted(windows...)
	return b
}

func TestBrowser_DuplicateServiceUpUpsertsOnce(t *testing.T) {
	sink := newSink()
	rec := sampleRecord("peer-1")
	b := newTestBrowser(sink, []*zeroconf.ServiceEntry{entry("desk", rec, 120), entry("desk", rec, 120)})

	if err := b.pass(context.Background()); err != nil {
		t.Fatalf("pass: %v", err)
	}

	if sink.n != 1 || len(sink.rows) != 1 {
		t.Fatalf("upserts = %d rows = %d, want 1/1", sink.n, len(sink.rows))
	}
	got := sink.rows["peer-1"]
	want := models.Bridge{Key: "peer-1", Name: "desk (192.168.1.20)", Host: "192.168.1.20", Port: 9170}
	if got != want {
		t.Fatalf("bridge = %+v, want %+v", got, want)
	}
	if peers := b.Peers(); len(peers) != 1 {
		t.Fatalf("peers = %+v", peers)
	}
}

func TestBrowser_IgnoresSelfAndRecordsWithoutUUID(t *testing.T) {
	sink := newSink()
	b := newTestBrowser(sink, []*zeroconf.ServiceEntry{
		entry("me", sampleRecord("self-uuid"), 120),
		entry("anon", sampleRecord(""), 120),
	})
	if err := b.pass(context.Background()); err != nil {
		t.Fatalf("pass: %v", err)
	}
	if sink.n != 0 || len(b.Peers()) != 0 {
		t.Fatalf("upserts = %d peers = %v", sink.n, b.Peers())
	}
}

func TestBrowser_GoodbyeRemovesFromMemoryOnly(t *testing.T) {
	sink := newSink()
	rec := sampleRecord("peer-1")
	b := newTestBrowser(sink,
		[]*zeroconf.ServiceEntry{entry("desk", rec, 120)},
		[]*zeroconf.ServiceEntry{entry("desk", rec, 0)},
	)
	ctx := context.Background()
	_ = b.pass(ctx)
	_ = b.pass(ctx)

	if len(b.Peers()) != 0 {
		t.Fatalf("peer still live after goodbye: %v", b.Peers())
	}
	if _, ok := sink.rows["peer-1"]; !ok {
		t.Fatal("stored bridge removed on serviceDown")
	}
}

func TestBrowser_ExpiresAfterTwoMissedWindows(t *testing.T) {
	sink := newSink()
	rec := sampleRecord("peer-1")
	b := newTestBrowser(sink, []*zeroconf.ServiceEntry{entry("desk", rec, 120)}, nil, nil)
	ctx := context.Background()

	_ = b.pass(ctx)
	_ = b.pass(ctx)
	if len(b.Peers()) != 1 {
		t.Fatal("peer expired after a single missed window")
	}
	_ = b.pass(ctx)
	if len(b.Peers()) != 0 {
		t.Fatal("peer not expired after two missed windows")
	}
}

func TestBrowser_ChangedRecordUpsertsAgain(t *testing.T) {
	sink := newSink()
	rec := sampleRecord("peer-1")
	moved := rec
	moved.IP = "192.168.1.30"
	b := newTestBrowser(sink,
		[]*zeroconf.ServiceEntry{entry("desk", rec, 120)},
		[]*zeroconf.ServiceEntry{entry("desk", moved, 120)},
	)
	ctx := context.Background()
	_ = b.pass(ctx)
	_ = b.pass(ctx)

	if sink.n != 2 {
		t.Fatalf("upserts = %d, want 2", sink.n)
	}
	if got := sink.rows["peer-1"].Host; got != "192.168.1.30" {
		t.Fatalf("host = %q", got)
	}
}

func (s *recordingSink) remove(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, key)
}

func TestBrowser_DeletedRowReturnsWhileAdvertising(t *testing.T) {
	sink := newSink()
	rec := sampleRecord("peer-1")
	b := newTestBrowser(sink,
		[]*zeroconf.ServiceEntry{entry("desk", rec, 120)},
		[]*zeroconf.ServiceEntry{entry("desk", rec, 120), entry("desk", rec, 120)},
	)
	ctx := context.Background()
	_ = b.pass(ctx)
	sink.remove("peer-1")
	_ = b.pass(ctx)

	if _, ok := sink.rows["peer-1"]; !ok {
		t.Fatal("deleted bridge not restored by the next window")
	}
	if sink.n != 2 {
		t.Fatalf("upserts = %d, want one per window", sink.n)
	}
}

func TestBrowser_RunStopsOnCancel(t *testing.T) {
	b := newTestBrowser(newSink())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		b.Run(ctx)
		close(done)
	}()
	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
