package netutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateHttpUrl(t *testing.T) {
	for _, valid := range []string{
		"http://localhost:8080",
		"http://127.0.0.1:8080",
		"https://vesting.example.com",
		"https://vesting.example.com/base",
		"http://[::1]:8080",
	} {
		assert.NoError(t, ValidateHttpUrl(valid, false), valid)
	}

	for _, invalid := range []string{
		"",
		"localhost:8080",
		"ftp://example.com",
		"http://",
		"http://:8080",
		"http://example.com.",
	} {
		assert.Error(t, ValidateHttpUrl(invalid, false), invalid)
	}

	assert.NoError(t, ValidateHttpUrl("https://example.com", true))
	assert.Error(t, ValidateHttpUrl("http://example.com", true))
}
