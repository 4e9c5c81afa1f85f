package pg

import (
	"context"
	"database/sql"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws/external"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	"github.com/aws/aws-sdk-go-v2/service/rds/rdsutils"
	"github.com/pkg/errors"

	_ "github.com/newrelic/go-agent/v3/integrations/nrpgx"
)

const (
	driverName = "nrpgx"

	defaultSSLMode = "disable"
	pingTimeout    = 10 * time.Second
)

type Config struct {
	User               string
	Host               string
	Password           string
	Port               int
	DbName             string
	MaxOpenConnections int
	MaxIdleConnections int

	// SSLMode is passed through to the driver. Defaults to disable.
	SSLMode string

	// UseAwsIam authenticates with an RDS IAM token instead of Password. Only
	// provisioned Aurora clusters support it.
	UseAwsIam bool
}

// Open returns a connection pool to the configured database, instrumented
// with New Relic. The connection is checked before returning.
func Open(ctx context.Context, config *Config) (*sql.DB, error) {
	password := config.Password
	if config.UseAwsIam {
		token, err := buildAwsIamToken(config)
		if err != nil {
			return nil, errors.Wrap(err, "error building rds iam token")
		}
		password = token
	}

	db, err := sql.Open(driverName, config.dsn(password))
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "error connecting to database")
	}

	if config.MaxOpenConnections > 0 {
		db.SetMaxOpenConns(config.MaxOpenConnections)
	}
	if config.MaxIdleConnections > 0 {
		db.SetMaxIdleConns(config.MaxIdleConnections)
	}
	db.SetConnMaxIdleTime(time.Hour)
	db.SetConnMaxLifetime(time.Hour)

	return db, nil
}

func (c *Config) address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c *Config) dsn(password string) string {
	sslMode := c.SSLMode
	if len(sslMode) == 0 {
		sslMode = defaultSSLMode
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, password),
		Host:     c.address(),
		Path:     "/" + c.DbName,
		RawQuery: url.Values{"sslmode": []string{sslMode}}.Encode(),
	}
	return u.String()
}

// https://docs.aws.amazon.com/AmazonRDS/latest/AuroraUserGuide/UsingWithRDS.IAMDBAuth.Connecting.Go.html
func buildAwsIamToken(config *Config) (string, error) {
	awsConfig, err := external.LoadDefaultAWSConfig()
	if err != nil {
		return "", errors.Wrap(err, "error loading aws config")
	}

	// The RDS client is only used for its resolved region and credentials
	rdsClient := rds.New(awsConfig)
	token, err := rdsutils.BuildAuthToken(config.address(), rdsClient.Region, config.User, rdsClient.Credentials)
	if err != nil {
		return "", err
	}
	return token, nil
}
