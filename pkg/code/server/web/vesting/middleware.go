package vesting

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/code-payments/code-vesting/pkg/metrics"
	"github.com/code-payments/code-vesting/pkg/rate"
)

// rateLimitMiddleware limits requests per client IP
func rateLimitMiddleware(limiter rate.Limiter) fiber.Handler {
	return func(c *fiber.Ctx) error {
		allowed, err := limiter.Allow(c.IP())
		if err != nil {
			logrus.StandardLogger().WithField("type", "vesting/web/middleware").WithError(err).Warn("failure checking rate limit")
		} else if !allowed {
			return c.Status(http.StatusTooManyRequests).JSON(NewGenericApiFailureResponseBody(errors.New("rate limited")))
		}
		return c.Next()
	}
}

// newRelicMiddleware wraps each request in a New Relic web transaction that
// downstream method tracers attach their segments to
func newRelicMiddleware(app *newrelic.Application) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if app == nil {
			return c.Next()
		}

		txn := app.StartTransaction(c.Method() + " " + c.Path())
		defer txn.End()

		ctx := newrelic.NewContext(c.UserContext(), txn)
		ctx = metrics.WithNewRelicApplication(ctx, app)
		c.SetUserContext(ctx)

		err := c.Next()
		if err != nil {
			txn.NoticeError(err)
		}

		txn.AddAttribute("http.statusCode", c.Response().StatusCode())
		return err
	}
}
