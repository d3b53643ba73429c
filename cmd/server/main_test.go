package main

import (
	"context"
	"net"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/ksiwatch/internal/evidence"
	"github.com/linnemanlabs/ksiwatch/internal/evidence/memstore"
)

func TestNotifySystemd_NoSocket(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", "")

	err := notifySystemd()
	if err == nil {
		t.Fatal("expected error when NOTIFY_SOCKET is empty")
	}
	if !strings.Contains(err.Error(), "NOTIFY_SOCKET not set") {
		t.Errorf("error = %q, want substring %q", err, "NOTIFY_SOCKET not set")
	}
}

func TestNotifySystemd_InvalidPath(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", filepath.Join(t.TempDir(), "nonexistent.sock"))

	err := notifySystemd()
	if err == nil {
		t.Fatal("expected error for nonexistent socket")
	}
	if !strings.Contains(err.Error(), "dial failed") {
		t.Errorf("error = %q, want substring %q", err, "dial failed")
	}
}

func TestNotifySystemd_Success(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "notify.sock")

	// Create a real unixgram listener.
	var lc net.ListenConfig
	conn, err := lc.ListenPacket(context.Background(), "unixgram", sockPath)
	if err != nil {
		t.Fatalf("listen unixgram: %v", err)
	}
	defer func() { _ = conn.Close() }()

	t.Setenv("NOTIFY_SOCKET", sockPath)

	if err := notifySystemd(); err != nil {
		t.Fatalf("notifySystemd() = %v, want nil", err)
	}

	buf := make([]byte, 256)
	n, _, err := conn.ReadFrom(buf)
	if err != nil {
		t.Fatalf("read from socket: %v", err)
	}

	got := string(buf[:n])
	if got != "READY=1" {
		t.Errorf("payload = %q, want %q", got, "READY=1")
	}
}

type countingProducer struct{ runs atomic.Int32 }

func (p *countingProducer) Name() string     { return "heartbeat" }
func (p *countingProducer) Category() string { return "KSI-MLA-OSM" }
func (p *countingProducer) Produce(context.Context) (*evidence.Result, error) {
	n := p.runs.Add(1)
	return &evidence.Result{Summary: map[string]float64{"total": float64(n)}}, nil
}

func TestCollectLoop_RunsUntilCancelled(t *testing.T) {
	t.Parallel()

	p := &countingProducer{}
	agg := evidence.NewAggregator(memstore.New(), log.Nop(), evidence.Hooks{}, 3)
	runner := evidence.NewRunner([]evidence.Producer{p}, agg, log.Nop(), evidence.RunHooks{}, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		collectLoop(ctx, log.Nop(), runner, 5*time.Millisecond)
		close(done)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for p.runs.Load() < 2 {
		if time.Now().After(deadline) {
			t.Fatal("collect loop did not run twice")
		}
		time.Sleep(time.Millisecond)
	}
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("collect loop did not stop after cancel")
	}

	doc, ok, err := agg.Document(context.Background(), "KSI-MLA-OSM")
	if err != nil || !ok {
		t.Fatalf("Document() = ok %v, err %v", ok, err)
	}
	if got := len(evidence.Components(doc)); got != 1 {
		t.Errorf("components = %d, want 1", got)
	}
}
