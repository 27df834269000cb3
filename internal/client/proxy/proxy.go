// Package proxy implements a forwarding client for equivalent token and NFT
// ledgers hosted elsewhere in the network. No business logic lives here, the
// caller's access token is passed through unchanged.
package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/emporium-dao/emporium/internal/models/modeldto"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// RemoteCallError reports a failed call against a remote ledger.
type RemoteCallError struct {
	Service string
	Status  int
	Body    string
}

func (e *RemoteCallError) Error() string {
	return fmt.Sprintf("remote ledger %s responded with status %d: %s", e.Service, e.Status, e.Body)
}

// Client defines attributes of a struct available to its methods.
type Client struct {
	client *resty.Client
	log    *zerolog.Logger
}

// InitClient initializes a resty client for remote ledger forwarding.
func InitClient(log *zerolog.Logger) *Client {
	proxyClient := resty.New()
	log.Info().Msg("remote ledger proxy client initialized")
	return &Client{client: proxyClient, log: log}
}

// FTTransfer forwards a fungible-token transfer to a remote ledger.
func (c *Client) FTTransfer(ctx context.Context, service, accessToken, to, amount string) (*modeldto.TxResponse, error) {
	body := modeldto.TransferRequest{To: to, Amount: amount}
	response, err := c.call(ctx, service, "/api/token/transfer", accessToken, body)
	if err != nil {
		return nil, err
	}
	var out modeldto.TxResponse
	if err := json.Unmarshal(response, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FTTransferFrom forwards an allowance-backed transfer to a remote ledger.
func (c *Client) FTTransferFrom(ctx context.Context, service, accessToken, from, to, amount string) (*modeldto.TxResponse, error) {
	body := modeldto.TransferFromRequest{From: from, To: to, Amount: amount}
	response, err := c.call(ctx, service, "/api/token/transferFrom", accessToken, body)
	if err != nil {
		return nil, err
	}
	var out modeldto.TxResponse
	if err := json.Unmarshal(response, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// NFTTransfer forwards a non-fungible item transfer to a remote ledger.
func (c *Client) NFTTransfer(ctx context.Context, service, accessToken, to, tokenID string) (*modeldto.MessageResponse, error) {
	body := map[string]string{"to": to, "token_id": tokenID}
	response, err := c.call(ctx, service, "/api/nft/transfer", accessToken, body)
	if err != nil {
		return nil, err
	}
	var out modeldto.MessageResponse
	if err := json.Unmarshal(response, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FTBalanceOf queries a balance on a remote ledger.
func (c *Client) FTBalanceOf(ctx context.Context, service, principal string) (string, error) {
	response, err := c.client.R().SetContext(ctx).Get(service + "/api/token/balance/" + principal)
	if err != nil {
		c.log.Err(err).Msg(fmt.Sprintf("remote balance query failed against %s", service))
		return "", err
	}
	if response.StatusCode() != http.StatusOK {
		return "", &RemoteCallError{Service: service, Status: response.StatusCode(), Body: string(response.Body())}
	}
	var out struct {
		Balance string `json:"balance"`
	}
	if err := json.Unmarshal(response.Body(), &out); err != nil {
		return "", err
	}
	return out.Balance, nil
}

func (c *Client) call(ctx context.Context, service, path, accessToken string, body interface{}) ([]byte, error) {
	response, err := c.client.R().SetContext(ctx).SetHeader("Content-Type", "application/json").SetHeader("Authorization", "Bearer "+accessToken).SetBody(body).Post(service + path)
	if err != nil {
		c.log.Err(err).Msg(fmt.Sprintf("remote ledger call failed against %s%s", service, path))
		return nil, err
	}
	if response.StatusCode() != http.StatusOK {
		return nil, &RemoteCallError{Service: service, Status: response.StatusCode(), Body: string(response.Body())}
	}
	return response.Body(), nil
}
