// Package dbtest gives repository tests a migrated Postgres pool. Tests skip
// unless TEST_POSTGRES_DSN names a disposable database.
package dbtest

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/medivault/internal/config"
	"github.com/hackgods/medivault/internal/db"
)

const EnvDSN = "TEST_POSTGRES_DSN"

// SQLSTATE check_violation.
const CheckViolation = "23514"

// Pool connects to EnvDSN and applies the schema. The pool closes with t.
func Pool(t testing.TB) *pgxpool.Pool {
	t.Helper()

	dsn := os.Getenv(EnvDSN)
	if dsn == "" {
		t.Skipf("%s not set", EnvDSN)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn, config.PoolConfig{MaxConns: 4})
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, db.Migrate(ctx, pool))
	return pool
}

// Parties are the directory rows a test's appointments and grants point at.
type Parties struct {
	FacilityID uuid.UUID
	ProviderID uuid.UUID
	PatientID  uuid.UUID
}

// Seed inserts a fresh active facility, provider and patient.
func Seed(t testing.TB, pool *pgxpool.Pool) Parties {
	t.Helper()
	ctx := context.Background()
	p := Parties{FacilityID: uuid.New(), ProviderID: uuid.New(), PatientID: uuid.New()}

	_, err := pool.Exec(ctx, `INSERT INTO facilities (id, name, active) VALUES ($1, 'Test Clinic', TRUE)`, p.FacilityID)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `
		INSERT INTO providers (id, facility_id, name, email, active)
		VALUES ($1, $2, 'Asha Rao', 'asha@example.com', TRUE)
	`, p.ProviderID, p.FacilityID)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `INSERT INTO patients (id, name, email) VALUES ($1, 'Ravi Kumar', 'ravi@example.com')`, p.PatientID)
	require.NoError(t, err)
	return p
}

// RequireCode asserts err is a Postgres error with SQLSTATE code.
func RequireCode(t testing.TB, err error, code string) {
	t.Helper()
	var pgErr *pgconn.PgError
	require.ErrorAs(t, err, &pgErr)
	require.Equal(t, code, pgErr.Code)
}
