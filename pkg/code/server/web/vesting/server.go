package vesting

import (
	"context"
	"crypto/ed25519"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/mr-tron/base58"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/code-payments/code-vesting/pkg/code/data/tokenaccount"
	"github.com/code-payments/code-vesting/pkg/code/vesting"
	"github.com/code-payments/code-vesting/pkg/database/query"
	"github.com/code-payments/code-vesting/pkg/rate"
)

const (
	v1PathPrefix                  = "/v1"
	v1SubmitTransactionPath       = v1PathPrefix + "/transactions"
	v1GetContractPath             = v1PathPrefix + "/contracts/:identifier"
	v1GetContractsByInitializer   = v1PathPrefix + "/initializers/:initializer/contracts"
	v1GetTokenAccountPath         = v1PathPrefix + "/accounts/:address"
	v1DeriveAddressesPath         = v1PathPrefix + "/addresses"
	healthPath                    = "/healthz"
	maxContractsPageSize          = 100
	defaultContractsPageSize      = 25
	maxSubmitTransactionBodyBytes = 16 * 1024
)

// Ledger is the read side of the token ledger exposed by the API
type Ledger interface {
	GetAccount(ctx context.Context, address ed25519.PublicKey) (*tokenaccount.Record, error)
}

type Server struct {
	log       *logrus.Entry
	program   *vesting.Program
	processor *vesting.Processor
	ledger    Ledger
	limiter   rate.Limiter
	nrApp     *newrelic.Application
}

// NewVestingServer returns a new HTTP API over the vesting program. nrApp may
// be nil.
func NewVestingServer(
	program *vesting.Program,
	processor *vesting.Processor,
	ledger Ledger,
	limiter rate.Limiter,
	nrApp *newrelic.Application,
) *Server {
	return &Server{
		log:       logrus.StandardLogger().WithField("type", "vesting/web/server"),
		program:   program,
		processor: processor,
		ledger:    ledger,
		limiter:   limiter,
		nrApp:     nrApp,
	}
}

// App returns a fiber app with every route registered
func (s *Server) App() *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		BodyLimit:             maxSubmitTransactionBodyBytes,
		ErrorHandler:          s.errorHandler,
	})

	app.Get(healthPath, func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(NewGenericApiSuccessResponseBody())
	})

	app.Use(v1PathPrefix, newRelicMiddleware(s.nrApp), rateLimitMiddleware(s.limiter))
	app.Post(v1SubmitTransactionPath, s.submitTransactionHandler)
	app.Get(v1GetContractPath, s.getContractHandler)
	app.Get(v1GetContractsByInitializer, s.getContractsByInitializerHandler)
	app.Get(v1GetTokenAccountPath, s.getTokenAccountHandler)
	app.Get(v1DeriveAddressesPath, s.deriveAddressesHandler)

	return app
}

func (s *Server) submitTransactionHandler(c *fiber.Ctx) error {
	log := s.log.WithField("path", v1SubmitTransactionPath)

	var req SubmitTransactionRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, errors.Wrap(err, "invalid request body"))
	}

	txn, err := req.toTransaction()
	if err != nil {
		return badRequest(c, err)
	}

	results, err := s.processor.ProcessTransaction(c.UserContext(), txn)
	if err != nil {
		statusCode, err := HandleVestingErrorInWebContext(err)
		if statusCode == http.StatusInternalServerError {
			log.WithError(err).Warn("failure processing transaction")
		}
		return c.Status(statusCode).JSON(NewGenericApiFailureResponseBody(err))
	}

	body := NewGenericApiSuccessResponseBody()
	body["signature"] = base58.Encode(txn.Signature())
	body["results"] = toInstructionResultViews(results)
	return c.Status(http.StatusOK).JSON(body)
}

func (s *Server) getContractHandler(c *fiber.Ctx) error {
	log := s.log.WithField("path", v1GetContractPath)

	identifier, err := url.PathUnescape(c.Params("identifier"))
	if err != nil {
		return badRequest(c, errors.New("invalid identifier"))
	}
	log = log.WithField("identifier", identifier)

	record, err := s.program.GetContract(c.UserContext(), identifier)
	if err != nil {
		return s.failure(c, log, err)
	}

	view, err := toContractView(record)
	if err != nil {
		return s.failure(c, log, err)
	}

	body := NewGenericApiSuccessResponseBody()
	body["contract"] = view
	return c.Status(http.StatusOK).JSON(body)
}

func (s *Server) getContractsByInitializerHandler(c *fiber.Ctx) error {
	log := s.log.WithField("path", v1GetContractsByInitializer)

	initializer, err := decodePublicKey(c.Params("initializer"))
	if err != nil {
		return badRequest(c, errors.New("initializer is not a public key"))
	}
	log = log.WithField("initializer", base58.Encode(initializer))

	limit := uint64(defaultContractsPageSize)
	if rawLimit := c.Query("limit"); len(rawLimit) > 0 {
		limit, err = strconv.ParseUint(rawLimit, 10, 64)
		if err != nil || limit == 0 || limit > maxContractsPageSize {
			return badRequest(c, errors.Errorf("limit must be between 1 and %d", maxContractsPageSize))
		}
	}

	opts := []query.Option{
		query.WithLimit(limit),
		query.WithDirection(query.ToOrderingWithFallback(c.Query("order"), query.Ascending)),
	}
	if rawCursor := c.Query("cursor"); len(rawCursor) > 0 {
		cursor, err := query.CursorFromBase58(rawCursor)
		if err != nil {
			return badRequest(c, errors.Wrap(err, "invalid cursor"))
		}
		opts = append(opts, query.WithCursor(cursor))
	}

	records, err := s.program.GetContractsByInitializer(c.UserContext(), initializer, opts...)
	if err != nil {
		return s.failure(c, log, err)
	}

	page, err := toContractPageView(records, limit)
	if err != nil {
		return s.failure(c, log, err)
	}

	body := NewGenericApiSuccessResponseBody()
	body["page"] = page
	return c.Status(http.StatusOK).JSON(body)
}

func (s *Server) getTokenAccountHandler(c *fiber.Ctx) error {
	log := s.log.WithField("path", v1GetTokenAccountPath)

	address, err := decodePublicKey(c.Params("address"))
	if err != nil {
		return badRequest(c, errors.New("address is not a public key"))
	}
	log = log.WithField("address", base58.Encode(address))

	account, err := s.ledger.GetAccount(c.UserContext(), address)
	if err != nil {
		return s.failure(c, log, err)
	}

	body := NewGenericApiSuccessResponseBody()
	body["account"] = toTokenAccountView(account)
	return c.Status(http.StatusOK).JSON(body)
}

func (s *Server) deriveAddressesHandler(c *fiber.Ctx) error {
	log := s.log.WithField("path", v1DeriveAddressesPath)

	identifier := c.Query("identifier")
	mint, err := decodePublicKey(c.Query("mint"))
	if err != nil {
		return badRequest(c, errors.New("mint is not a public key"))
	}

	contractAddress, escrowAddress, err := s.program.DeriveAddresses(identifier, mint)
	if err != nil {
		return s.failure(c, log, err)
	}

	body := NewGenericApiSuccessResponseBody()
	body["addresses"] = &DerivedAddressesView{
		Identifier:      identifier,
		Mint:            base58.Encode(mint),
		VestingContract: contractAddress.ToBase58(),
		ContractBump:    contractAddress.Bump,
		EscrowAccount:   escrowAddress.ToBase58(),
		EscrowBump:      escrowAddress.Bump,
	}
	return c.Status(http.StatusOK).JSON(body)
}

func (s *Server) failure(c *fiber.Ctx, log *logrus.Entry, err error) error {
	statusCode, safeErr := HandleVestingErrorInWebContext(err)
	if statusCode == http.StatusInternalServerError {
		log.WithError(err).Warn("failure handling request")
	}
	return c.Status(statusCode).JSON(NewGenericApiFailureResponseBody(safeErr))
}

func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	statusCode := http.StatusInternalServerError

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		statusCode = fiberErr.Code
	} else {
		s.log.WithError(err).WithField("path", c.Path()).Warn("unhandled error")
		err = errors.New("internal server error")
	}

	return c.Status(statusCode).JSON(NewGenericApiFailureResponseBody(err))
}

func badRequest(c *fiber.Ctx, err error) error {
	return c.Status(http.StatusBadRequest).JSON(NewGenericApiFailureResponseBody(err))
}

func decodePublicKey(value string) (ed25519.PublicKey, error) {
	decoded, err := base58.Decode(value)
	if err != nil {
		return nil, err
	}
	if len(decoded) != ed25519.PublicKeySize {
		return nil, errors.New("invalid public key length")
	}
	return decoded, nil
}
