// Package anonymizer builds the privacy-preserving payload transmitted to
// the government compliance API. Patient identifiers are replaced with
// deterministic salted hashes, only whitelisted clinical fields are carried
// over, and the result is encrypted before it leaves the process.
package anonymizer

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/clinichub/clinichub/internal/domain/report"
	"github.com/clinichub/clinichub/internal/platform/crypto"
)

// Record is one anonymized report inside a submission payload. The field set
// is a strict whitelist: nothing outside it ever reaches the wire.
type Record struct {
	PatientRef       string   `json:"patient_ref"`
	Diagnosis        string   `json:"diagnosis"`
	Medications      []string `json:"medications"`
	ConsultationDate string   `json:"consultation_date"`
	ConsultationType string   `json:"consultation_type"`
	Clinician        string   `json:"clinician"`
	GDPRConsent      bool     `json:"gdpr_consent"`
}

// Payload is the cleartext submission body before encryption.
type Payload struct {
	Month       string   `json:"month"`
	ReportCount int      `json:"report_count"`
	Records     []Record `json:"records"`
}

// Metadata travels alongside the encrypted payload so the receiver can
// verify integrity and pick the right key.
type Metadata struct {
	Algorithm  string `json:"algorithm"`
	KeyVersion string `json:"key_version"`
	Checksum   string `json:"checksum"`
}

// ValidationError reports a report that cannot be anonymized. Preparation is
// all-or-nothing: one bad report fails the whole batch, no partial payload.
type ValidationError struct {
	ReportID string
	Field    string
	Reason   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("report %s: field %q %s", e.ReportID, e.Field, e.Reason)
}

type Anonymizer struct {
	enc  crypto.Encryptor
	salt string
}

func New(enc crypto.Encryptor, salt string) *Anonymizer {
	return &Anonymizer{enc: enc, salt: salt}
}

// HashPatientID derives the stable pseudonymous reference for a patient.
// Same patient, same output, across batches and across restarts.
func (a *Anonymizer) HashPatientID(patientID string) string {
	sum := sha256.Sum256([]byte(a.salt + patientID))
	return hex.EncodeToString(sum[:])
}

// Validate checks that every report carries the fields the payload needs.
// It returns the first problem found as a *ValidationError.
func (a *Anonymizer) Validate(reports []*report.FinalizedReport) error {
	for _, r := range reports {
		if err := validateReport(r); err != nil {
			return err
		}
	}
	return nil
}

func validateReport(r *report.FinalizedReport) error {
	if r.PatientID == "" {
		return &ValidationError{ReportID: r.ID.String(), Field: "patient_id", Reason: "is empty"}
	}
	if r.Diagnosis == "" {
		return &ValidationError{ReportID: r.ID.String(), Field: "diagnosis", Reason: "is empty"}
	}
	if r.DoctorName == "" {
		return &ValidationError{ReportID: r.ID.String(), Field: "doctor_name", Reason: "is empty"}
	}
	if r.ConsultationDate.IsZero() {
		return &ValidationError{ReportID: r.ID.String(), Field: "consultation_date", Reason: "is not set"}
	}
	return nil
}

// Prepare validates, anonymizes and encrypts the reports of one batch.
// The checksum in the returned Metadata is computed over the canonical JSON
// of the cleartext payload, so the receiver can verify after decryption.
func (a *Anonymizer) Prepare(month string, reports []*report.FinalizedReport) ([]byte, Metadata, error) {
	if err := a.Validate(reports); err != nil {
		return nil, Metadata{}, err
	}

	records := make([]Record, 0, len(reports))
	for _, r := range reports {
		meds := r.PrescribedMedications
		if meds == nil {
			meds = []string{}
		}
		records = append(records, Record{
			PatientRef:       a.HashPatientID(r.PatientID),
			Diagnosis:        r.Diagnosis,
			Medications:      meds,
			ConsultationDate: r.ConsultationDate.Format(time.DateOnly),
			ConsultationType: r.ConsultationType,
			Clinician:        r.DoctorName,
			GDPRConsent:      r.GDPRConsentObtained,
		})
	}

	payload := Payload{Month: month, ReportCount: len(records), Records: records}
	cleartext, err := json.Marshal(payload)
	if err != nil {
		return nil, Metadata{}, fmt.Errorf("marshal payload: %w", err)
	}

	sum := sha256.Sum256(cleartext)
	encrypted, err := a.enc.Encrypt(cleartext)
	if err != nil {
		return nil, Metadata{}, fmt.Errorf("encrypt payload: %w", err)
	}

	meta := Metadata{
		Algorithm:  a.enc.Algorithm(),
		KeyVersion: a.enc.KeyVersion(),
		Checksum:   hex.EncodeToString(sum[:]),
	}
	return encrypted, meta, nil
}
