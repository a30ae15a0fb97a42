package test

import (
	"database/sql"
	"fmt"
	"net"
	"time"

	"github.com/ory/dockertest/v3"
	"github.com/pkg/errors"
)

const (
	postgresImage    = "postgres"
	postgresVersion  = "14"
	postgresUser     = "postgres"
	postgresPassword = "secret"
	postgresDatabase = "billing"

	connectTimeout = 60 * time.Second
)

// StartPostgresDB launches a throwaway postgres container and returns the
// database url to reach it.
func StartPostgresDB(pool *dockertest.Pool) (string, error) {
	resource, err := pool.Run(postgresImage, postgresVersion, []string{
		"POSTGRES_USER=" + postgresUser,
		"POSTGRES_PASSWORD=" + postgresPassword,
		"POSTGRES_DB=" + postgresDatabase,
	})
	if err != nil {
		return "", errors.Wrap(err, "failed to start postgres container")
	}

	// Containers are reaped even if the test process dies hard.
	if err := resource.Expire(600); err != nil {
		return "", errors.Wrap(err, "failed to set container expiry")
	}

	url := fmt.Sprintf(
		"postgres://%s:%s@%s/%s?sslmode=disable",
		postgresUser,
		postgresPassword,
		net.JoinHostPort("localhost", resource.GetPort("5432/tcp")),
		postgresDatabase,
	)
	return url, nil
}

// WaitForConnection opens the database and, when ping is set, blocks until
// it answers or the timeout elapses. The returned func closes the handle.
func WaitForConnection(databaseURL string, ping bool) (*sql.DB, func(), error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to open database")
	}

	closeFn := func() {
		_ = db.Close()
	}

	if ping {
		deadline := time.Now().Add(connectTimeout)
		for {
			if err = db.Ping(); err == nil {
				break
			}
			if time.Now().After(deadline) {
				closeFn()
				return nil, nil, errors.Wrap(err, "timed out waiting for database")
			}
			time.Sleep(500 * time.Millisecond)
		}
	}

	return db, closeFn, nil
}
