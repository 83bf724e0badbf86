package oracle

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrUnavailable indicates the chain data provider could not be reached or
// answered with a server-side failure. Callers with a cached value should
// degrade to it instead of propagating this error.
var ErrUnavailable = errors.New("chain oracle unavailable")

// Client captures the provider queries used by the height cache, the
// transaction confirmer, and the balance aggregator.
type Client interface {
	ChainHead(ctx context.Context) (uint64, error)
	TxConfirmations(ctx context.Context, txid string) (uint64, error)
	AddressBalance(ctx context.Context, address string) (uint64, error)
	Network() string
}

// chainInfo is the response from the /v1/chain/info endpoint.
type chainInfo struct {
	Blocks  uint64 `json:"blocks"`
	Network string `json:"network"`
}

// txStatus is the response from the /v1/tx/{txid} endpoint.
type txStatus struct {
	TxID          string `json:"txid"`
	Confirmations uint64 `json:"confirmations"`
	BlockHeight   uint64 `json:"blockHeight"`
}

// addressBalance is the response from the /v1/address/{address}/balance endpoint.
type addressBalance struct {
	Confirmed   uint64 `json:"confirmed"`
	Unconfirmed uint64 `json:"unconfirmed"`
}

// ChainHead returns the height of the chain tip.
func (c *HTTPClient) ChainHead(ctx context.Context) (uint64, error) {
	var resp chainInfo
	err := c.getJSON(ctx, chainInfoPath, &resp)
	if err == nil && resp.Blocks > 0 {
		return resp.Blocks, nil
	}
	if err == nil {
		err = fmt.Errorf("provider returned zero height: %w", ErrUnavailable)
	}
	return 0, fmt.Errorf("cannot probe chain head: %w", err)
}

// TxConfirmations returns the confirmation count for txid. A transaction the
// provider has not seen yet reports zero confirmations rather than an error,
// so the confirmer leaves it pending for the next cycle.
func (c *HTTPClient) TxConfirmations(ctx context.Context, txid string) (uint64, error) {
	var resp txStatus
	if err := c.getJSON(ctx, txPath(txid), &resp); err != nil {
		if isNotFound(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("tx %s: %w", txid, err)
	}
	return resp.Confirmations, nil
}

// AddressBalance returns the confirmed on-chain balance for an address.
func (c *HTTPClient) AddressBalance(ctx context.Context, address string) (uint64, error) {
	var resp addressBalance
	if err := c.getJSON(ctx, balancePath(address), &resp); err != nil {
		return 0, fmt.Errorf("address %s: %w", address, err)
	}
	return resp.Confirmed, nil
}

func isNotFound(err error) bool {
	var se *statusError
	return errors.As(err, &se) && se.code == http.StatusNotFound
}
