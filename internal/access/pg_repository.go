package access

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/medivault/internal/db"
)

const accessRequestColumns = `id, provider_id, patient_id, otp, status, created_at, otp_sent_at, verified_at, expires_at`

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func scanAccessRequest(row pgx.Row) (*AccessRequest, error) {
	var r AccessRequest
	var verifiedAt *time.Time

	err := row.Scan(
		&r.ID,
		&r.ProviderID,
		&r.PatientID,
		&r.OTP,
		&r.Status,
		&r.CreatedAt,
		&r.OTPSentAt,
		&verifiedAt,
		&r.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccessRequestNotFound
		}
		return nil, err
	}

	r.VerifiedAt = verifiedAt
	return &r, nil
}

func (r *PgRepository) Create(ctx context.Context, req AccessRequest) (*AccessRequest, error) {
	row := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO access_requests (id, provider_id, patient_id, otp, status, created_at, otp_sent_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+accessRequestColumns,
		req.ID, req.ProviderID, req.PatientID, req.OTP, req.Status, req.CreatedAt, req.OTPSentAt, req.ExpiresAt)
	return scanAccessRequest(row)
}

func (r *PgRepository) GetByID(ctx context.Context, id uuid.UUID) (*AccessRequest, error) {
	row := db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT `+accessRequestColumns+`
		FROM access_requests
		WHERE id = $1
	`, id)
	return scanAccessRequest(row)
}

func (r *PgRepository) Approve(ctx context.Context, id uuid.UUID, verifiedAt time.Time) (*AccessRequest, error) {
	row := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE access_requests
		SET status = 'APPROVED',
		    verified_at = $2
		WHERE id = $1
		  AND status = 'PENDING'
		  AND expires_at >= $2
		RETURNING `+accessRequestColumns,
		id, verifiedAt)
	return scanAccessRequest(row)
}

func (r *PgRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (*AccessRequest, error) {
	row := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE access_requests
		SET status = $2
		WHERE id = $1
		  AND status = $3
		RETURNING `+accessRequestColumns,
		id, to, from)
	return scanAccessRequest(row)
}
