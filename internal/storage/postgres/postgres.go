package postgres

import (
	"context"
	"errors"

	"github.com/fdg312/nutrition-engine/internal/storage"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

// PostgresStorage — Postgres реализация storage.Storage
type PostgresStorage struct {
	pool          *pgxpool.Pool
	foods         *foodsStorage
	patients      *patientsStorage
	contracts     *contractsStorage
	plans         *plansStorage
	intakes       *PostgresIntakesStorage
	deliveries    *deliveriesStorage
	notifications *PostgresNotificationsStorage
}

// New создаёт PostgresStorage и проверяет соединение
func New(ctx context.Context, databaseURL string) (*PostgresStorage, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStorage{
		pool:          pool,
		foods:         &foodsStorage{pool: pool},
		patients:      &patientsStorage{pool: pool},
		contracts:     &contractsStorage{pool: pool},
		plans:         &plansStorage{pool: pool},
		intakes:       NewPostgresIntakesStorage(pool),
		deliveries:    &deliveriesStorage{pool: pool},
		notifications: NewPostgresNotificationsStorage(pool),
	}, nil
}

func (p *PostgresStorage) GetFoodsStorage() storage.FoodsStorage {
	return p.foods
}

func (p *PostgresStorage) GetPatientsStorage() storage.PatientsStorage {
	return p.patients
}

func (p *PostgresStorage) GetContractsStorage() storage.ContractsStorage {
	return p.contracts
}

func (p *PostgresStorage) GetPlansStorage() storage.PlansStorage {
	return p.plans
}

func (p *PostgresStorage) GetIntakesStorage() storage.IntakesStorage {
	return p.intakes
}

func (p *PostgresStorage) GetDeliveriesStorage() storage.DeliveriesStorage {
	return p.deliveries
}

func (p *PostgresStorage) GetNotificationsStorage() storage.NotificationsStorage {
	return p.notifications
}

// Close закрывает пул соединений
func (p *PostgresStorage) Close() error {
	p.pool.Close()
	return nil
}

// isUniqueViolation reports whether err is a lost race on a unique index.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// notFound maps pgx.ErrNoRows to storage.ErrNotFound.
func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.ErrNotFound
	}
	return err
}
