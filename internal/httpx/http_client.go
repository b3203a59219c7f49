package httpx

import (
	"net/http"
	"time"

	"github.com/hashicorp/go-cleanhttp"
)

const defaultExternalHTTPTimeout = 90 * time.Second

var externalHTTPClient = newExternalHTTPClient()

func newExternalHTTPClient() *http.Client {
	c := cleanhttp.DefaultPooledClient()
	c.Timeout = defaultExternalHTTPTimeout
	return c
}

// ExternalHTTPClient is the shared client for calls to Jira, Slack and LLM APIs.
func ExternalHTTPClient() *http.Client {
	return externalHTTPClient
}

func ConfigureExternalHTTPClient(timeoutSeconds int) time.Duration {
	timeout := defaultExternalHTTPTimeout
	if timeoutSeconds > 0 {
		timeout = time.Duration(timeoutSeconds) * time.Second
	}
	externalHTTPClient.Timeout = timeout
	return timeout
}
