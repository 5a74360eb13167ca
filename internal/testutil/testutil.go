// Package testutil provides common test utilities and helpers for SuriCare tests.
package testutil

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/suricare/suricare/internal/alerts"
	"github.com/suricare/suricare/internal/api"
	"github.com/suricare/suricare/internal/assistant"
	"github.com/suricare/suricare/internal/genai"
	"github.com/suricare/suricare/internal/guardrail"
	"github.com/suricare/suricare/internal/knowledge"
	"github.com/suricare/suricare/internal/models"
	"github.com/suricare/suricare/internal/patterns"
	"github.com/suricare/suricare/internal/prompt"
	"github.com/suricare/suricare/internal/store"
)

// Now is the fixed clock used by NewTestServer.
var Now = time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)

// Clock returns Now.
func Clock() time.Time { return Now }

// NewTestServer creates a test API server with in-memory dependencies, a lexical knowledge
// index over the embedded knowledge base and the default guardrail rules. A nil gen uses
// the offline generator.
func NewTestServer(t *testing.T, gen assistant.Generator) (*api.Server, *store.InMemoryStore) {
	t.Helper()
	if gen == nil {
		gen = genai.Offline{}
	}
	st := store.NewInMemoryStore()
	an := patterns.NewAnalyzer(st, patterns.WithClock(Clock))
	guard := guardrail.NewDefault()
	idx := knowledge.Build(context.Background(), knowledge.Default(), nil)
	asst := assistant.New(gen, prompt.NewBuilder(guard.Rules()), guard,
		assistant.WithSearcher(idx),
		assistant.WithAnalyzer(an),
		assistant.WithMessageStore(st),
		assistant.WithTimeout(5*time.Second),
		assistant.WithClock(Clock),
	)
	gen2 := alerts.NewGenerator(an, st, alerts.WithClock(Clock))
	srv := api.NewServer(st, asst, an, api.WithAlertGenerator(gen2), api.WithClock(Clock))
	return srv, st
}

// Do serves one request against h and returns the recorder.
func Do(t *testing.T, h http.Handler, method, url string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, CreateHTTPRequest(t, method, url, body))
	return rr
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t *testing.T, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// AssertJSONResponse decodes JSON response and validates the status field.
func AssertJSONResponse(t *testing.T, rr *httptest.ResponseRecorder, expectedStatus string) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
	}

	if status, ok := response["status"].(string); ok {
		if status != expectedStatus {
			t.Errorf("expected status '%s', got '%s' (message %v)", expectedStatus, status, response["message"])
		}
	} else {
		t.Error("response missing or invalid 'status' field")
	}

	return response
}

// DecodeResult decodes the result field of an APIResponse body into target.
func DecodeResult(t *testing.T, rr *httptest.ResponseRecorder, target interface{}) {
	t.Helper()
	var envelope struct {
		Status  string          `json:"status"`
		Message string          `json:"message"`
		Result  json.RawMessage `json:"result"`
	}
	MustUnmarshalJSON(t, rr.Body.Bytes(), &envelope)
	if envelope.Status == string(models.APIStatusError) {
		t.Fatalf("unexpected error response: %s", envelope.Message)
	}
	MustUnmarshalJSON(t, envelope.Result, target)
}

// CreateHTTPRequest creates an HTTP request with optional JSON body for testing.
func CreateHTTPRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	t.Helper()
	var reqBody *bytes.Buffer
	switch b := body.(type) {
	case nil:
		reqBody = bytes.NewBuffer(nil)
	case string:
		reqBody = bytes.NewBufferString(b)
	default:
		reqBody = bytes.NewBuffer(MustMarshalJSON(t, b))
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		t.Fatalf("failed to create HTTP request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return req
}

// ReadEvents parses a server-sent event body into assistant events.
func ReadEvents(t *testing.T, body string) []assistant.Event {
	t.Helper()
	var events []assistant.Event
	sc := bufio.NewScanner(strings.NewReader(body))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev assistant.Event
		MustUnmarshalJSON(t, []byte(strings.TrimPrefix(line, "data: ")), &ev)
		events = append(events, ev)
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("failed to read event stream: %v", err)
	}
	return events
}

// SeedChild stores a child for carerID born on birth.
func SeedChild(t *testing.T, st store.Store, name string, carerID int64, birth time.Time) *models.Child {
	t.Helper()
	c := &models.Child{Name: name, BirthDate: birth, Gender: "female", CarerID: carerID}
	if err := st.CreateChild(context.Background(), c); err != nil {
		t.Fatalf("failed to seed child: %v", err)
	}
	return c
}

// SeedSleep stores one night of sleep of the given length ending daysAgo days before Now.
func SeedSleep(t *testing.T, st store.Store, childID int64, daysAgo int, hours float64) {
	t.Helper()
	end := Now.Add(-time.Duration(daysAgo) * 24 * time.Hour)
	r := &models.SleepRecord{
		ChildID:   childID,
		StartTime: end.Add(-time.Duration(hours * float64(time.Hour))),
		EndTime:   end,
		CheckIn:   end,
	}
	if err := st.AddSleep(context.Background(), r); err != nil {
		t.Fatalf("failed to seed sleep: %v", err)
	}
}

// MustMarshalJSON marshals an object to JSON and fails test on error.
func MustMarshalJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal JSON: %v", err)
	}
	return data
}

// MustUnmarshalJSON unmarshals JSON data into target and fails test on error.
func MustUnmarshalJSON(t *testing.T, data []byte, target interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, target); err != nil {
		t.Fatalf("failed to unmarshal JSON: %v", err)
	}
}
