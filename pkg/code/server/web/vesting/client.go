package vesting

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/pkg/errors"
)

// ErrNotFound is returned by the Client when the server reports a missing
// contract or token account
var ErrNotFound = errors.New("not found")

// Client is a read-only client for the vesting HTTP API
type Client struct {
	endpoint string
	timeout  time.Duration
}

func NewClient(endpoint string, timeout time.Duration) *Client {
	return &Client{
		endpoint: strings.TrimSuffix(endpoint, "/"),
		timeout:  timeout,
	}
}

func (c *Client) GetContract(identifier string) (*ContractView, error) {
	var resp struct {
		Contract *ContractView `json:"contract"`
	}
	if err := c.get(v1PathPrefix+"/contracts/"+url.PathEscape(identifier), &resp); err != nil {
		return nil, err
	}
	return resp.Contract, nil
}

func (c *Client) GetTokenAccount(address string) (*TokenAccountView, error) {
	var resp struct {
		Account *TokenAccountView `json:"account"`
	}
	if err := c.get(v1PathPrefix+"/accounts/"+url.PathEscape(address), &resp); err != nil {
		return nil, err
	}
	return resp.Account, nil
}

func (c *Client) get(path string, out any) error {
	agent := fiber.Get(c.endpoint + path)
	agent.Timeout(c.timeout)
	if err := agent.Parse(); err != nil {
		return errors.Wrap(err, "invalid request")
	}

	statusCode, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return errors.Wrap(errs[0], "error calling vesting api")
	}

	var failure struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &failure); err != nil {
		return errors.Wrapf(err, "unexpected response with status %d", statusCode)
	}

	switch {
	case statusCode == http.StatusNotFound:
		return errors.Wrap(ErrNotFound, failure.Error)
	case statusCode != http.StatusOK || !failure.Success:
		return errors.Errorf("vesting api returned %d: %s", statusCode, failure.Error)
	}

	return json.Unmarshal(body, out)
}
