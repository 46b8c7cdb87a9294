// Package pgtest поднимает PostgreSQL в Docker для интеграционных тестов.
//
// PGTEST_DSN: использовать готовую базу вместо контейнера.
// REUSE_DOCKER: не удалять контейнер после тестов.
package pgtest

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"

	"serotonyl.ru/monad-curator/internal/db/postgres"
)

const (
	image    = "postgres"
	tag      = "16-alpine"
	user     = "curator"
	password = "curator"
	dbName   = "curator_test"
)

// Database: тестовая база.
type Database struct {
	Pool *pgxpool.Pool

	pool     *dockertest.Pool
	resource *dockertest.Resource
}

// Run запускает контейнер, ждёт готовности и применяет миграции.
func Run(ctx context.Context) (*Database, error) {
	if dsn := os.Getenv("PGTEST_DSN"); dsn != "" {
		return connect(ctx, nil, nil, dsn)
	}

	pool, err := dockertest.NewPool("")
	if err != nil {
		return nil, fmt.Errorf("docker недоступен: %w", err)
	}
	if err := pool.Client.Ping(); err != nil {
		return nil, fmt.Errorf("docker недоступен: %w", err)
	}
	pool.MaxWait = 60 * time.Second

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: image,
		Tag:        tag,
		Env: []string{
			"POSTGRES_USER=" + user,
			"POSTGRES_PASSWORD=" + password,
			"POSTGRES_DB=" + dbName,
		},
	}, func(hc *docker.HostConfig) {
		hc.AutoRemove = true
		hc.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка запуска контейнера: %w", err)
	}
	_ = resource.Expire(300)

	dsn := fmt.Sprintf("postgres://%s:%s@127.0.0.1:%s/%s?sslmode=disable",
		user, password, resource.GetPort("5432/tcp"), dbName)
	d, err := connect(ctx, pool, resource, dsn)
	if err != nil {
		_ = pool.Purge(resource)
		return nil, err
	}
	return d, nil
}

func connect(ctx context.Context, pool *dockertest.Pool, resource *dockertest.Resource, dsn string) (*Database, error) {
	var pg *pgxpool.Pool
	retry := func() error {
		var err error
		pg, err = postgres.Connect(ctx, dsn, 20, 1)
		return err
	}
	var err error
	if pool != nil {
		err = pool.Retry(retry)
	} else {
		err = retry()
	}
	if err != nil {
		return nil, fmt.Errorf("база не поднялась: %w", err)
	}

	if err := postgres.Migrate(ctx, pg); err != nil {
		pg.Close()
		return nil, err
	}
	return &Database{Pool: pg, pool: pool, resource: resource}, nil
}

// Truncate очищает все таблицы предметной области.
func (d *Database) Truncate(ctx context.Context) error {
	_, err := d.Pool.Exec(ctx, `TRUNCATE users, projects, criteria, votes, criteria_votes,
		role_tallies, alerts, admin_login_attempts CASCADE`)
	return err
}

// Stop закрывает пул и удаляет контейнер.
func (d *Database) Stop() error {
	d.Pool.Close()
	if d.pool == nil || d.resource == nil {
		return nil
	}
	if _, reuse := os.LookupEnv("REUSE_DOCKER"); reuse {
		return nil
	}
	return d.pool.Purge(d.resource)
}
