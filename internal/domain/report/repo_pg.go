package report

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type reportRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &reportRepoPG{pool: pool}
}

const reportCols = `id, patient_id, diagnosis, prescribed_medications,
	consultation_date, consultation_type, doctor_id, doctor_name,
	gdpr_consent_obtained, created_at`

func (r *reportRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*FinalizedReport, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+reportCols+` FROM finalized_report WHERE id = $1`, id)
	var fr FinalizedReport
	err := row.Scan(&fr.ID, &fr.PatientID, &fr.Diagnosis, &fr.PrescribedMedications,
		&fr.ConsultationDate, &fr.ConsultationType, &fr.DoctorID, &fr.DoctorName,
		&fr.GDPRConsentObtained, &fr.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &fr, nil
}

func (r *reportRepoPG) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*FinalizedReport, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+reportCols+` FROM finalized_report WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byID := make(map[uuid.UUID]*FinalizedReport, len(ids))
	for rows.Next() {
		var fr FinalizedReport
		if err := rows.Scan(&fr.ID, &fr.PatientID, &fr.Diagnosis, &fr.PrescribedMedications,
			&fr.ConsultationDate, &fr.ConsultationType, &fr.DoctorID, &fr.DoctorName,
			&fr.GDPRConsentObtained, &fr.CreatedAt); err != nil {
			return nil, err
		}
		byID[fr.ID] = &fr
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]*FinalizedReport, 0, len(ids))
	for _, id := range ids {
		fr, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("finalized report %s not found", id)
		}
		out = append(out, fr)
	}
	return out, nil
}
