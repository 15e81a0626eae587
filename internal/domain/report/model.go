package report

import (
	"time"

	"github.com/google/uuid"
)

// FinalizedReport is the immutable output of the report-review workflow and
// the read-only input to batch submission. This service never creates or
// mutates reports.
type FinalizedReport struct {
	ID                    uuid.UUID  `db:"id" json:"id"`
	PatientID             string     `db:"patient_id" json:"patient_id"`
	Diagnosis             string     `db:"diagnosis" json:"diagnosis"`
	PrescribedMedications []string   `db:"prescribed_medications" json:"prescribed_medications"`
	ConsultationDate      time.Time  `db:"consultation_date" json:"consultation_date"`
	ConsultationType      string     `db:"consultation_type" json:"consultation_type"`
	DoctorID              uuid.UUID  `db:"doctor_id" json:"doctor_id"`
	DoctorName            string     `db:"doctor_name" json:"doctor_name"`
	GDPRConsentObtained   bool       `db:"gdpr_consent_obtained" json:"gdpr_consent_obtained"`
	CreatedAt             time.Time  `db:"created_at" json:"created_at"`
}
