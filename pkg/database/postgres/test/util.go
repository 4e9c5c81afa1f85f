package test

import (
	"database/sql"
	"net/url"
	"time"

	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/code-payments/code-vesting/pkg/retry"
	"github.com/code-payments/code-vesting/pkg/retry/backoff"
)

const (
	image    = "postgres"
	imageTag = "14.12"

	user     = "vesting"
	password = "vesting-test"
	dbname   = "vesting_test"

	// Containers outliving their test run are killed by docker
	containerExpiry = 2 * time.Minute

	connectAttempts = 60
	connectInterval = 500 * time.Millisecond
)

// StartPostgresDB runs a throwaway postgres container and returns a client
// connected to it. The returned func removes the container.
func StartPostgresDB(pool *dockertest.Pool) (*sql.DB, func(), error) {
	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: image,
		Tag:        imageTag,
		Env: []string{
			"POSTGRES_USER=" + user,
			"POSTGRES_PASSWORD=" + password,
			"POSTGRES_DB=" + dbname,
		},
	}, func(config *docker.HostConfig) {
		config.AutoRemove = true
		config.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		return nil, nil, errors.Wrap(err, "error starting postgres container")
	}

	purge := func() {
		if err := pool.Purge(resource); err != nil {
			logrus.StandardLogger().WithError(err).Warn("failure removing postgres container")
		}
	}

	// Expire never fails
	_ = resource.Expire(uint(containerExpiry.Seconds()))

	dsn := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(user, password),
		Host:     resource.GetHostPort("5432/tcp"),
		Path:     "/" + dbname,
		RawQuery: "sslmode=disable",
	}

	var db *sql.DB
	_, err = retry.Retry(
		func() error {
			var err error
			db, err = sql.Open("pgx", dsn.String())
			if err != nil {
				return err
			}

			if err := db.Ping(); err != nil {
				db.Close()
				return err
			}
			return nil
		},
		retry.Limit(connectAttempts),
		retry.Backoff(backoff.Constant(connectInterval), connectInterval),
	)
	if err != nil {
		purge()
		return nil, nil, errors.Wrapf(err, "postgres unavailable after %d attempts", connectAttempts)
	}

	return db, func() {
		db.Close()
		purge()
	}, nil
}
