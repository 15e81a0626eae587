package anonymizer

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/clinichub/clinichub/internal/domain/report"
	"github.com/clinichub/clinichub/internal/platform/crypto"
)

func testReport(patientID string) *report.FinalizedReport {
	return &report.FinalizedReport{
		ID:                    uuid.New(),
		PatientID:             patientID,
		Diagnosis:             "J06.9 acute upper respiratory infection",
		PrescribedMedications: []string{"paracetamol 500mg"},
		ConsultationDate:      time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC),
		ConsultationType:      "in_person",
		DoctorID:              uuid.New(),
		DoctorName:            "Dr. Vogel",
		GDPRConsentObtained:   true,
		CreatedAt:             time.Now(),
	}
}

func newTestAnonymizer(t *testing.T) *Anonymizer {
	t.Helper()
	key := make([]byte, 32)
	enc, err := crypto.NewAEADEncryptor(key, "v1")
	if err != nil {
		t.Fatalf("encryptor: %v", err)
	}
	return New(enc, "unit-test-salt")
}

func TestPrepare_OneRecordPerReport(t *testing.T) {
	a := newTestAnonymizer(t)
	reports := []*report.FinalizedReport{
		testReport("patient-1"), testReport("patient-2"), testReport("patient-3"),
	}

	encrypted, meta, err := a.Prepare("2026-03", reports)
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if len(encrypted) == 0 {
		t.Fatal("expected non-empty ciphertext")
	}
	if meta.Algorithm != "AES-256-GCM" || meta.KeyVersion != "v1" {
		t.Errorf("unexpected metadata %+v", meta)
	}
	if meta.Checksum == "" {
		t.Error("expected checksum")
	}

	key := make([]byte, 32)
	enc, _ := crypto.NewAEADEncryptor(key, "v1")
	cleartext, err := enc.Decrypt(encrypted)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	var payload Payload
	if err := json.Unmarshal(cleartext, &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if payload.Month != "2026-03" {
		t.Errorf("expected month 2026-03, got %s", payload.Month)
	}
	if payload.ReportCount != 3 || len(payload.Records) != 3 {
		t.Fatalf("expected 3 records, got count=%d len=%d", payload.ReportCount, len(payload.Records))
	}
}

func TestPrepare_StripsIdentifiers(t *testing.T) {
	a := newTestAnonymizer(t)
	r := testReport("patient-secret-0042")
	encrypted, _, err := a.Prepare("2026-03", []*report.FinalizedReport{r})
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}

	key := make([]byte, 32)
	enc, _ := crypto.NewAEADEncryptor(key, "v1")
	cleartext, _ := enc.Decrypt(encrypted)
	text := string(cleartext)

	if strings.Contains(text, r.PatientID) {
		t.Error("cleartext payload contains raw patient identifier")
	}
	if strings.Contains(text, r.ID.String()) {
		t.Error("cleartext payload contains report identifier")
	}
	if strings.Contains(text, r.DoctorID.String()) {
		t.Error("cleartext payload contains doctor identifier")
	}
	if !strings.Contains(text, a.HashPatientID(r.PatientID)) {
		t.Error("expected hashed patient reference in payload")
	}
}

func TestHashPatientID_Deterministic(t *testing.T) {
	a := newTestAnonymizer(t)
	h1 := a.HashPatientID("patient-1")
	h2 := a.HashPatientID("patient-1")
	if h1 != h2 {
		t.Error("same patient must hash to the same reference")
	}
	if h1 == a.HashPatientID("patient-2") {
		t.Error("different patients must hash to different references")
	}

	other := New(newTestAnonymizer(t).enc, "other-salt")
	if h1 == other.HashPatientID("patient-1") {
		t.Error("different salts must produce different references")
	}
}

func TestPrepare_ValidationFailsWholeBatch(t *testing.T) {
	a := newTestAnonymizer(t)
	bad := testReport("patient-2")
	bad.Diagnosis = ""
	reports := []*report.FinalizedReport{testReport("patient-1"), bad}

	encrypted, _, err := a.Prepare("2026-03", reports)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if verr.Field != "diagnosis" {
		t.Errorf("expected diagnosis field, got %q", verr.Field)
	}
	if encrypted != nil {
		t.Error("expected no partial payload on validation failure")
	}
}

func TestValidate_RequiredFields(t *testing.T) {
	a := newTestAnonymizer(t)
	cases := []struct {
		field  string
		mutate func(*report.FinalizedReport)
	}{
		{"patient_id", func(r *report.FinalizedReport) { r.PatientID = "" }},
		{"diagnosis", func(r *report.FinalizedReport) { r.Diagnosis = "" }},
		{"doctor_name", func(r *report.FinalizedReport) { r.DoctorName = "" }},
		{"consultation_date", func(r *report.FinalizedReport) { r.ConsultationDate = time.Time{} }},
	}
	for _, tc := range cases {
		r := testReport("patient-1")
		tc.mutate(r)
		err := a.Validate([]*report.FinalizedReport{r})
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("%s: expected ValidationError, got %v", tc.field, err)
		}
		if verr.Field != tc.field {
			t.Errorf("expected field %q, got %q", tc.field, verr.Field)
		}
	}
}
