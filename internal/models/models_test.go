package models

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestParseDimension(t *testing.T) {
	for _, in := range []string{"sleep", " Nutrition ", "SYMPTOMS", "growth"} {
		if _, err := ParseDimension(in); err != nil {
			t.Errorf("ParseDimension(%q) returned error: %v", in, err)
		}
	}
	if _, err := ParseDimension("poop"); !errors.Is(err, ErrInvalidDimension) {
		t.Errorf("Expected ErrInvalidDimension, got %v", err)
	}
}

func TestChildValidate(t *testing.T) {
	birth := time.Date(2023, 12, 15, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name  string
		child Child
		want  error
	}{
		{"valid", Child{Name: "Mia", BirthDate: birth, CarerID: 7}, nil},
		{"blank name", Child{Name: "  ", BirthDate: birth, CarerID: 7}, ErrEmptyName},
		{"long name", Child{Name: strings.Repeat("a", MaxNameLength+1), BirthDate: birth, CarerID: 7}, ErrNameTooLong},
		{"no birth date", Child{Name: "Mia", CarerID: 7}, ErrMissingBirthDate},
		{"future birth", Child{Name: "Mia", BirthDate: time.Now().AddDate(1, 0, 0), CarerID: 7}, ErrBirthDateInFuture},
		{"no carer", Child{Name: "Mia", BirthDate: birth}, ErrMissingCarer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.child.Validate(); !errors.Is(err, tt.want) {
				t.Errorf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSleepRecordValidateDefaultsCheckIn(t *testing.T) {
	end := time.Date(2025, 3, 9, 7, 0, 0, 0, time.UTC)
	r := SleepRecord{ChildID: 1, StartTime: end.Add(-10 * time.Hour), EndTime: end}
	if err := r.Validate(); err != nil {
		t.Fatalf("Validate() returned error: %v", err)
	}
	if !r.CheckIn.Equal(end) {
		t.Errorf("Expected check-in to default to the interval end, got %v", r.CheckIn)
	}
	if r.DurationHours() != 10 {
		t.Errorf("Expected 10 hours, got %v", r.DurationHours())
	}

	// Reversed intervals are stored and discarded later by the analyzer.
	bad := SleepRecord{ChildID: 1, StartTime: end, EndTime: end.Add(-time.Hour)}
	if err := bad.Validate(); err != nil {
		t.Errorf("Reversed interval should be accepted, got %v", err)
	}
	if err := (&SleepRecord{ChildID: 1, EndTime: end}).Validate(); !errors.Is(err, ErrMissingSleepInterval) {
		t.Errorf("Expected ErrMissingSleepInterval, got %v", err)
	}
}

func TestRecordValidate(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)
	tests := []struct {
		name string
		rec  interface{ Validate() error }
		want error
	}{
		{"meal ok", &MealRecord{ChildID: 1, CheckIn: now, ConsumptionLevel: Float(0)}, nil},
		{"meal without level", &MealRecord{ChildID: 1, CheckIn: now}, nil},
		{"meal over 100", &MealRecord{ChildID: 1, CheckIn: now, ConsumptionLevel: Float(100.5)}, ErrConsumptionRange},
		{"meal negative", &MealRecord{ChildID: 1, CheckIn: now, ConsumptionLevel: Float(-1)}, ErrConsumptionRange},
		{"meal no check-in", &MealRecord{ChildID: 1}, ErrMissingCheckIn},
		{"meal no child", &MealRecord{CheckIn: now}, ErrMissingChild},
		{"symptom ok", &SymptomRecord{ChildID: 1, CheckIn: now, Symptom: "cough"}, nil},
		{"symptom blank", &SymptomRecord{ChildID: 1, CheckIn: now, Symptom: " "}, ErrEmptySymptom},
		{"symptom long", &SymptomRecord{ChildID: 1, CheckIn: now, Symptom: strings.Repeat("x", MaxSymptomLength+1)}, ErrSymptomTooLong},
		{"growth weight only", &GrowthRecord{ChildID: 1, CheckIn: now, Weight: Float(11.2)}, nil},
		{"growth empty", &GrowthRecord{ChildID: 1, CheckIn: now}, ErrNoMeasurement},
		{"growth negative", &GrowthRecord{ChildID: 1, CheckIn: now, Height: Float(-80)}, ErrNegativeMeasurement},
		{"poop ok", &PoopRecord{ChildID: 1, CheckIn: now, Color: "brown"}, nil},
		{"poop long note", &PoopRecord{ChildID: 1, CheckIn: now, Note: strings.Repeat("n", MaxNoteLength+1)}, ErrNoteTooLong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.rec.Validate(); !errors.Is(err, tt.want) {
				t.Errorf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestNormalizeConvertsToUTC(t *testing.T) {
	sg := time.FixedZone("SGT", 8*3600)
	local := time.Date(2025, 3, 10, 7, 0, 0, 0, sg)
	r := SleepRecord{CheckIn: local, StartTime: local.Add(-9 * time.Hour), EndTime: local}
	r.Normalize()
	if r.CheckIn.Location() != time.UTC || r.StartTime.Location() != time.UTC || r.EndTime.Location() != time.UTC {
		t.Errorf("Expected UTC timestamps, got %v %v %v", r.CheckIn, r.StartTime, r.EndTime)
	}
	if !r.OccurredAt().Equal(local) {
		t.Errorf("Normalize must not change the instant")
	}
}

func TestSymptomLabel(t *testing.T) {
	if got := (SymptomRecord{Symptom: "  Runny Nose "}).Label(); got != "runny nose" {
		t.Errorf("Label() = %q", got)
	}
}

func TestChatValidation(t *testing.T) {
	req := ChatCreateRequest{OwnerID: 7, Title: "   "}
	if err := req.Validate(); err != nil {
		t.Fatalf("Validate() returned error: %v", err)
	}
	if req.Title != DefaultChatTitle {
		t.Errorf("Expected default title, got %q", req.Title)
	}
	if err := (&ChatCreateRequest{}).Validate(); !errors.Is(err, ErrMissingCarer) {
		t.Errorf("Expected ErrMissingCarer, got %v", err)
	}
	long := ChatCreateRequest{OwnerID: 7, Title: strings.Repeat("t", MaxChatTitleLength+1)}
	if err := long.Validate(); !errors.Is(err, ErrTitleTooLong) {
		t.Errorf("Expected ErrTitleTooLong, got %v", err)
	}

	if err := (&ChatMessage{Message: "hi", Sender: "bot"}).Validate(); !errors.Is(err, ErrInvalidSender) {
		t.Errorf("Expected ErrInvalidSender, got %v", err)
	}
	if err := (&ChatMessage{Message: " ", Sender: SenderUser}).Validate(); !errors.Is(err, ErrEmptyMessage) {
		t.Errorf("Expected ErrEmptyMessage, got %v", err)
	}
}

func TestChatRequestValidateContextual(t *testing.T) {
	tests := []struct {
		name string
		req  ChatRequest
		want error
	}{
		{"valid", ChatRequest{Message: "How is she sleeping?", ChildID: 1, CarerID: 7}, nil},
		{"empty", ChatRequest{Message: "", ChildID: 1, CarerID: 7}, ErrEmptyMessage},
		{"too long", ChatRequest{Message: strings.Repeat("q", MaxChatMessageLength+1), ChildID: 1, CarerID: 7}, ErrMessageTooLong},
		{"no child", ChatRequest{Message: "hi", CarerID: 7}, ErrMissingChild},
		{"no carer", ChatRequest{Message: "hi", ChildID: 1}, ErrMissingCarer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.req.ValidateContextual(); !errors.Is(err, tt.want) {
				t.Errorf("ValidateContextual() = %v, want %v", err, tt.want)
			}
		})
	}
	if err := (&ChatRequest{Message: "general question"}).Validate(); err != nil {
		t.Errorf("General request should not need a child: %v", err)
	}
}

func TestHealthAlertValidate(t *testing.T) {
	a := HealthAlert{ChildID: 1, Severity: AlertSeverityInfo}
	if err := a.Validate(); err != nil {
		t.Errorf("Validate() returned error: %v", err)
	}
	a.Severity = "critical"
	if err := a.Validate(); !errors.Is(err, ErrInvalidAlertSeverity) {
		t.Errorf("Expected ErrInvalidAlertSeverity, got %v", err)
	}
	a = HealthAlert{Severity: AlertSeverityWarning}
	if err := a.Validate(); !errors.Is(err, ErrMissingChild) {
		t.Errorf("Expected ErrMissingChild, got %v", err)
	}
}

func TestAPIResponseHelpers(t *testing.T) {
	if r := Success(1); r.Status != string(APIStatusOK) || r.Result != 1 {
		t.Errorf("Unexpected Success response %+v", r)
	}
	if r := Error("boom"); r.Status != string(APIStatusError) || r.Message != "boom" {
		t.Errorf("Unexpected Error response %+v", r)
	}
	if r := Recorded("x"); r.Status != string(APIStatusRecorded) || r.Result != "x" {
		t.Errorf("Unexpected Recorded response %+v", r)
	}
	if r := SuccessWithMessage("done", nil); r.Message != "done" || r.Result != nil {
		t.Errorf("Unexpected SuccessWithMessage response %+v", r)
	}
}
