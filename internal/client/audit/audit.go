// Package audit implements a client for appending records to the external
// audit service.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/emporium-dao/emporium/internal/config"
	"github.com/emporium-dao/emporium/internal/models/modelaudit"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// ExternalCallFailedError reports a failed append against the audit service.
type ExternalCallFailedError struct {
	Err error
}

func (e *ExternalCallFailedError) Error() string {
	return fmt.Sprintf("%s: external audit call failed", e.Err.Error())
}

func (e *ExternalCallFailedError) Unwrap() error {
	return e.Err
}

// Client defines attributes of a struct available to its methods.
type Client struct {
	client      *resty.Client
	auditConfig *config.AuditConfig
	log         *zerolog.Logger
}

// InitClient initializes a resty client for the audit service.
func InitClient(auditConfig *config.AuditConfig, log *zerolog.Logger) *Client {
	auditClient := resty.New()
	log.Info().Msg("audit service client initialized")
	return &Client{client: auditClient, auditConfig: auditConfig, log: log}
}

// Send appends one record to the audit service and returns the assigned
// sequence number.
func (c *Client) Send(ctx context.Context, record modelaudit.Record) (uint64, error) {
	response, err := c.client.R().SetContext(ctx).SetHeader("Content-Type", "application/json").SetBody(record).Post(c.auditConfig.AuditAddress + "/api/records")
	if err != nil {
		c.log.Err(err).Msg(fmt.Sprintf("audit append failed for record %s", record.ID))
		return 0, &ExternalCallFailedError{Err: err}
	}
	if response.StatusCode() != http.StatusOK {
		return 0, &ExternalCallFailedError{Err: fmt.Errorf("audit service responded with status %d", response.StatusCode())}
	}
	var sequence modelaudit.SequenceResponse
	if err := json.Unmarshal(response.Body(), &sequence); err != nil {
		return 0, &ExternalCallFailedError{Err: err}
	}
	return sequence.Sequence, nil
}
