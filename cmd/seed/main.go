package main

import (
	"context"
	"flag"
	"log"
	"os"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/hackgods/medivault/internal/config"
	"github.com/hackgods/medivault/internal/db"
	"github.com/hackgods/medivault/internal/logger"
)

var specializations = []string{
	"General Medicine",
	"Dermatology",
	"Cardiology",
	"Orthopedics",
	"Endocrinology",
	"Neurology",
	"Pediatrics",
	"Psychiatry",
	"Ophthalmology",
	"ENT",
}

func main() {
	facilities := flag.Int("facilities", 10, "number of facilities to create")
	providers := flag.Int("providers", 100, "number of providers spread across facilities")
	patients := flag.Int("patients", 9000, "number of patients to create")
	flag.Parse()

	_ = godotenv.Load()

	lg, err := logger.New(os.Getenv("APP_ENV"), "info")
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		lg.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn, config.PoolConfig{MaxConns: 4, MinConns: 1})
	if err != nil {
		lg.Fatal("connect postgres", zap.Error(err))
	}
	defer pool.Close()

	if err := db.Migrate(context.Background(), pool); err != nil {
		lg.Fatal("migrate", zap.Error(err))
	}

	faker := gofakeit.New(time.Now().UnixNano())

	facilityIDs, err := seedFacilities(context.Background(), pool, faker, *facilities)
	if err != nil {
		lg.Fatal("seed facilities", zap.Error(err))
	}
	lg.Info("facilities seeded", zap.Int("count", len(facilityIDs)))

	if err := seedProviders(context.Background(), pool, faker, facilityIDs, *providers); err != nil {
		lg.Fatal("seed providers", zap.Error(err))
	}
	lg.Info("providers seeded", zap.Int("count", *providers))

	n, err := seedPatients(context.Background(), pool, faker, *patients)
	if err != nil {
		lg.Fatal("seed patients", zap.Error(err))
	}
	lg.Info("patients seeded", zap.Int64("count", n))

	lg.Info("seed complete")
}

func seedFacilities(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, count int) ([]uuid.UUID, error) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		addr := faker.Address()
		name := addr.City + " " + faker.RandomString([]string{"Hospital", "Clinic", "Medical Centre", "Health Centre"})

		_, err := tx.Exec(ctx, `
			INSERT INTO facilities (id, name, address, contact_number, active, created_at, updated_at)
			VALUES ($1, $2, $3, $4, TRUE, now(), now())
		`, id, name, addr.Address, faker.Phone())
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return ids, nil
}

func seedProviders(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, facilityIDs []uuid.UUID, count int) error {
	if len(facilityIDs) == 0 {
		return nil
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i := 0; i < count; i++ {
		first, last := faker.FirstName(), faker.LastName()
		email := strings.ToLower(first+"."+last) + "@" + faker.DomainName()
		license := "MCI-" + faker.DigitN(6)

		_, err := tx.Exec(ctx, `
			INSERT INTO providers (id, facility_id, name, specialization, license_number, email, phone, active, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE, now(), now())
		`, uuid.New(), facilityIDs[i%len(facilityIDs)], first+" "+last,
			specializations[faker.Number(0, len(specializations)-1)], license, email, faker.Phone())
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// seedPatients bulk loads through COPY.
func seedPatients(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, count int) (int64, error) {
	genders := []string{"MALE", "FEMALE", "OTHER"}
	bloodGroups := []string{"A+", "A-", "B+", "B-", "AB+", "AB-", "O+", "O-"}
	now := time.Now()

	rows := make([][]any, 0, count)
	for i := 0; i < count; i++ {
		rows = append(rows, []any{
			uuid.New(),
			faker.Name(),
			faker.Number(1, 90),
			genders[faker.Number(0, len(genders)-1)],
			bloodGroups[faker.Number(0, len(bloodGroups)-1)],
			faker.Email(),
			faker.Phone(),
			now,
			now,
		})
	}

	return pool.CopyFrom(ctx,
		pgx.Identifier{"patients"},
		[]string{"id", "name", "age", "gender", "blood_group", "email", "phone", "created_at", "updated_at"},
		pgx.CopyFromRows(rows))
}
