package claude

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/linnemanlabs/ksiwatch/internal/deadline"
	"github.com/linnemanlabs/ksiwatch/internal/inbox"
)

func TestParseVerdict(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		text    string
		want    deadline.Tier
		ok      bool
		wantErr bool
	}{
		{"high", "high", deadline.TierHigh, true, false},
		{"capitalized with period", "Moderate.", deadline.TierModerate, true, false},
		{"markdown", "**low** - routine notice", deadline.TierLow, true, false},
		{"none", "none", "", false, false},
		{"garbage", "maybe later", "", false, true},
		{"empty", "", "", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			msg := &anthropic.Message{
				Content:    []anthropic.ContentBlockUnion{{Type: "text", Text: tt.text}},
				StopReason: anthropic.StopReasonEndTurn,
			}
			got, ok, err := parseVerdict(msg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want || ok != tt.ok {
				t.Errorf("parseVerdict(%q) = (%q, %v), want (%q, %v)", tt.text, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestParseVerdict_SkipsNonTextBlocks(t *testing.T) {
	t.Parallel()

	msg := &anthropic.Message{Content: []anthropic.ContentBlockUnion{
		{Type: "thinking"},
		{Type: "text", Text: "high"},
	}}
	if got, ok, err := parseVerdict(msg); err != nil || !ok || got != deadline.TierHigh {
		t.Errorf("got (%q, %v, %v)", got, ok, err)
	}

	if _, _, err := parseVerdict(&anthropic.Message{}); err == nil {
		t.Error("expected error for empty content")
	}
}

func TestBuildParams(t *testing.T) {
	t.Parallel()

	c := New("k", "")
	p := c.buildParams(&inbox.Message{
		From:    "info@fedramp.gov",
		Subject: "Significant change request",
		Body:    strings.Repeat("x", maxBodyChars+10),
	})

	if p.Model != anthropic.Model(DefaultModel) {
		t.Errorf("model = %q", p.Model)
	}
	if len(p.System) != 1 || !strings.Contains(p.System[0].Text, "exactly one word") {
		t.Errorf("system = %+v", p.System)
	}
	if len(p.Messages) != 1 || len(p.Messages[0].Content) != 1 || p.Messages[0].Content[0].OfText == nil {
		t.Fatalf("messages = %+v", p.Messages)
	}
	text := p.Messages[0].Content[0].OfText.Text
	if !strings.HasPrefix(text, "From: info@fedramp.gov\nSubject: Significant change request") {
		t.Errorf("prompt = %q", text[:80])
	}
	if !strings.HasSuffix(text, "[truncated]") {
		t.Error("long body should be truncated")
	}
}

func TestClassify_RoundTrip(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("X-Api-Key"); got != "test-key" {
			t.Errorf("api key = %q", got)
		}
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req["model"] != "claude-test" {
			t.Errorf("model = %v", req["model"])
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprint(w, `{"id":"msg_1","type":"message","role":"assistant","model":"claude-test",
			"content":[{"type":"text","text":"moderate"}],"stop_reason":"end_turn",
			"usage":{"input_tokens":42,"output_tokens":1}}`)
	}))
	t.Cleanup(srv.Close)

	c := New("test-key", "claude-test", option.WithBaseURL(srv.URL), option.WithMaxRetries(0))
	tier, ok, err := c.Classify(context.Background(), &inbox.Message{
		ID:         "m-1",
		Subject:    "Corrective action plan overdue",
		ReceivedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if !ok || tier != deadline.TierModerate {
		t.Errorf("got (%q, %v), want moderate", tier, ok)
	}
}

func TestClassify_APIError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = fmt.Fprint(w, `{"type":"error","error":{"type":"invalid_request_error","message":"bad"}}`)
	}))
	t.Cleanup(srv.Close)

	c := New("test-key", "claude-test", option.WithBaseURL(srv.URL), option.WithMaxRetries(0))
	if _, _, err := c.Classify(context.Background(), &inbox.Message{ID: "m"}); err == nil {
		t.Fatal("expected error")
	}
}

var _ inbox.Classifier = (*Client)(nil)
