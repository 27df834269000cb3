// Package fetch implements an outbound HTTP retrieval helper that strips
// volatile response headers before the payload is handed back.
package fetch

import (
	"context"
	"fmt"
	"net/http"

	"github.com/emporium-dao/emporium/internal/models/modeldto"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// sanitizedHeaders lists response headers that vary per request or leak
// upstream infrastructure details and must not be exposed.
var sanitizedHeaders = []string{
	"x-mbx-uuid",
	"x-mbx-used-weight",
	"x-mbx-used-weight-1m",
	"Date",
	"Via",
	"X-Amz-Cf-Id",
}

// Client defines attributes of a struct available to its methods.
type Client struct {
	client *resty.Client
	log    *zerolog.Logger
}

// InitClient initializes a resty client for outbound retrieval.
func InitClient(log *zerolog.Logger) *Client {
	fetchClient := resty.New()
	return &Client{client: fetchClient, log: log}
}

// Get retrieves a URL and returns status, sanitized headers and body.
func (c *Client) Get(ctx context.Context, url string) (*modeldto.FetchResponse, error) {
	response, err := c.client.R().SetContext(ctx).Get(url)
	if err != nil {
		c.log.Err(err).Msg(fmt.Sprintf("outbound fetch failed for %s", url))
		return nil, err
	}
	headers := make(map[string]string)
	for name, values := range response.Header() {
		if len(values) > 0 {
			headers[name] = values[0]
		}
	}
	for _, name := range sanitizedHeaders {
		delete(headers, http.CanonicalHeaderKey(name))
	}
	return &modeldto.FetchResponse{
		Status:  response.StatusCode(),
		Headers: headers,
		Body:    string(response.Body()),
	}, nil
}
