package testutil

import (
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/suricare/suricare/internal/assistant"
	"github.com/suricare/suricare/internal/store"
)

func TestNewTestServer(t *testing.T) {
	srv, st := NewTestServer(t, nil)
	if srv == nil || st == nil {
		t.Fatal("NewTestServer returned nil")
	}
	SeedChild(t, st, "Mia", 1, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	rr := Do(t, srv, http.MethodGet, "/health", nil)
	AssertHTTPStatus(t, http.StatusOK, rr.Code, "health")
	resp := AssertJSONResponse(t, rr, "healthy")
	if resp["children"] != float64(1) {
		t.Errorf("expected 1 child, got %v", resp["children"])
	}
}

func TestCreateHTTPRequest(t *testing.T) {
	tests := []struct {
		name     string
		method   string
		body     interface{}
		wantBody string
	}{
		{"no body", http.MethodGet, nil, ""},
		{"raw string", http.MethodPost, `{"message":"hi"}`, `{"message":"hi"}`},
		{"struct body", http.MethodPut, map[string]string{"title": "Naps"}, `{"title":"Naps"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := CreateHTTPRequest(t, tt.method, "/chats", tt.body)
			if req.Method != tt.method {
				t.Errorf("expected method %s, got %s", tt.method, req.Method)
			}
			if req.URL.Path != "/chats" {
				t.Errorf("expected path /chats, got %s", req.URL.Path)
			}
			got, err := io.ReadAll(req.Body)
			if err != nil {
				t.Fatal(err)
			}
			if string(got) != tt.wantBody {
				t.Errorf("expected body %q, got %q", tt.wantBody, got)
			}
		})
	}
}

func TestReadEvents(t *testing.T) {
	body := "data: {\"type\":\"token\",\"content\":\"Hi\",\"done\":false}\n\n" +
		": keep-alive\n\n" +
		"data: {\"type\":\"done\",\"content\":\"Hi there\",\"done\":true}\n\n"
	events := ReadEvents(t, body)
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Type != assistant.EventToken || events[0].Content != "Hi" {
		t.Errorf("unexpected first event %+v", events[0])
	}
	if !events[1].Done {
		t.Error("expected the last event to be done")
	}
}

func TestSeedSleep(t *testing.T) {
	st := store.NewInMemoryStore()
	c := SeedChild(t, st, "Leo", 2, time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC))
	SeedSleep(t, st, c.ID, 1, 9.5)

	recs, err := st.ListSleep(t.Context(), c.ID, store.Range{})
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].DurationHours() != 9.5 {
		t.Errorf("unexpected records %+v", recs)
	}
}
