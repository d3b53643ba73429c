package producers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestLoki(t *testing.T, def CheckDef, handler http.HandlerFunc) *LokiCheck {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	f := &Factory{
		Loki:       Backend{Endpoint: srv.URL + "/loki-gw", TenantID: "audit"},
		HTTPClient: srv.Client(),
		Now:        func() time.Time { return fixedNow },
	}
	def.Name = "ssh_logins"
	def.Category = "KSI-MLA-LET"
	def.Type = TypeLoki
	p, err := f.New(def)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p.(*LokiCheck)
}

const twoStreams = `{"status":"success","data":{"resultType":"streams","result":[
	{"stream":{"host":"bastion-1"},"values":[["1720713600000000000","Accepted publickey for ops"],["1720713500000000000","Accepted publickey for ci"]]},
	{"stream":{"host":"bastion-2"},"values":[["1720713400000000000","Accepted publickey for ops"],["bad"]]}
]}}`

func TestLokiCheck_CountsLines(t *testing.T) {
	t.Parallel()

	l := newTestLoki(t, CheckDef{Counters: map[string]string{
		"accepted": `{job="sshd"} |= "Accepted"`,
	}}, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/loki-gw/loki/api/v1/query_range" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("X-Scope-OrgID"); got != "audit" {
			t.Errorf("X-Scope-OrgID = %q", got)
		}
		q := r.URL.Query()
		if q.Get("limit") != "500" || q.Get("direction") != "backward" {
			t.Errorf("limit/direction = %s/%s", q.Get("limit"), q.Get("direction"))
		}
		if !strings.HasPrefix(q.Get("start"), "2025-07-11T15:00:00") {
			t.Errorf("start = %q, want default 1h window", q.Get("start"))
		}
		_, _ = fmt.Fprint(w, twoStreams)
	})

	res, err := l.Produce(context.Background())
	if err != nil {
		t.Fatalf("Produce: %v", err)
	}
	if res.Summary["accepted"] != 3 {
		t.Errorf("accepted = %v, want 3", res.Summary["accepted"])
	}
	pl := res.Payload["accepted"].(map[string]any)
	if pl["stream_count"] != 2 || pl["truncated"] != false {
		t.Errorf("payload = %v", pl)
	}
	sample := pl["sample"].([]logLine)
	if len(sample) != 3 {
		t.Fatalf("sample = %d lines, want 3", len(sample))
	}
	if sample[0].Labels["host"] != "bastion-1" || sample[1].Labels != nil || sample[2].Labels["host"] != "bastion-2" {
		t.Errorf("labels only expected on first line per stream: %+v", sample)
	}
}

func TestLokiCheck_LimitMarksTruncated(t *testing.T) {
	t.Parallel()

	l := newTestLoki(t, CheckDef{Counters: map[string]string{"accepted": `{job="sshd"}`}, Limit: 3},
		func(w http.ResponseWriter, _ *http.Request) { _, _ = fmt.Fprint(w, twoStreams) })

	res, err := l.Produce(context.Background())
	if err != nil {
		t.Fatalf("Produce: %v", err)
	}
	if pl := res.Payload["accepted"].(map[string]any); pl["truncated"] != true {
		t.Errorf("truncated = %v, want true", pl["truncated"])
	}
}

func TestLokiCheck_RejectsNonStreamResult(t *testing.T) {
	t.Parallel()

	l := newTestLoki(t, CheckDef{Counters: map[string]string{"rate": `rate({job="sshd"}[5m])`}},
		func(w http.ResponseWriter, _ *http.Request) {
			_, _ = fmt.Fprint(w, `{"status":"success","data":{"resultType":"matrix","result":[]}}`)
		})

	if _, err := l.Produce(context.Background()); err == nil || !strings.Contains(err.Error(), "unsupported result type") {
		t.Fatalf("err = %v, want unsupported result type", err)
	}
}

func TestFlattenStreams_SampleCap(t *testing.T) {
	t.Parallel()

	l := newTestLoki(t, CheckDef{Counters: map[string]string{"a": "x"}},
		func(w http.ResponseWriter, _ *http.Request) {
			vals := make([]string, 12)
			for i := range vals {
				vals[i] = fmt.Sprintf(`["%d","line %d"]`, i, i)
			}
			_, _ = fmt.Fprintf(w, `{"status":"success","data":{"resultType":"streams","result":[{"stream":{},"values":[%s]}]}}`, strings.Join(vals, ","))
		})

	res, err := l.Produce(context.Background())
	if err != nil {
		t.Fatalf("Produce: %v", err)
	}
	if res.Summary["a"] != 12 {
		t.Errorf("count = %v, want 12", res.Summary["a"])
	}
	if got := len(res.Payload["a"].(map[string]any)["sample"].([]logLine)); got != sampleLines {
		t.Errorf("sample = %d, want %d", got, sampleLines)
	}
}
