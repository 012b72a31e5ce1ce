package consultation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/medivault/internal/db"
)

const consultationColumns = `id, patient_id, provider_id, facility_id, blood_pressure, sugar, temperature,
	diagnosis, medicines, document_path, recorded_at`

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func scanConsultation(row pgx.Row) (*Consultation, error) {
	var c Consultation
	var bp, sugar, temperature, diagnosis *string
	var medicines []byte

	err := row.Scan(
		&c.ID,
		&c.PatientID,
		&c.ProviderID,
		&c.FacilityID,
		&bp,
		&sugar,
		&temperature,
		&diagnosis,
		&medicines,
		&c.DocumentPath,
		&c.RecordedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrConsultationNotFound
		}
		return nil, err
	}

	c.Vitals = Vitals{BloodPressure: deref(bp), Sugar: deref(sugar), Temperature: deref(temperature)}
	c.Diagnosis = deref(diagnosis)
	if len(medicines) > 0 {
		if err := json.Unmarshal(medicines, &c.Medicines); err != nil {
			return nil, fmt.Errorf("decode medicines: %w", err)
		}
	}
	return &c, nil
}

func (r *PgRepository) Create(ctx context.Context, c Consultation) (*Consultation, error) {
	medicines, err := json.Marshal(c.Medicines)
	if err != nil {
		return nil, fmt.Errorf("encode medicines: %w", err)
	}
	if c.Medicines == nil {
		medicines = []byte("[]")
	}

	row := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO consultations (id, patient_id, provider_id, facility_id, blood_pressure, sugar, temperature,
		                           diagnosis, medicines, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING `+consultationColumns,
		c.ID, c.PatientID, c.ProviderID, c.FacilityID,
		nullable(c.Vitals.BloodPressure), nullable(c.Vitals.Sugar), nullable(c.Vitals.Temperature),
		nullable(c.Diagnosis), medicines, c.RecordedAt)
	return scanConsultation(row)
}

func (r *PgRepository) SetDocumentPath(ctx context.Context, id uuid.UUID, path string) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE consultations
		SET document_path = $2
		WHERE id = $1
	`, id, path)
	if err != nil {
		return fmt.Errorf("set document path: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConsultationNotFound
	}
	return nil
}

func (r *PgRepository) ListByPair(ctx context.Context, patientID, providerID uuid.UUID) ([]Consultation, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT `+consultationColumns+`
		FROM consultations
		WHERE patient_id = $1
		  AND provider_id = $2
		ORDER BY recorded_at DESC
	`, patientID, providerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Consultation
	for rows.Next() {
		c, err := scanConsultation(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *c)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
