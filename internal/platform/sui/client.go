// Package sui is a JSON-RPC client for a Sui fullnode, limited to the
// transaction-query surface the sync engine needs. It is a pure I/O
// boundary: no retries, no business logic; every error is wrapped with the
// operation and target so callers can record it with context.
package sui

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/vaultline/suisync/internal/domain"
)

// Client queries a Sui fullnode over JSON-RPC 2.0.
type Client struct {
	rpcURL     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a Client for the given fullnode RPC endpoint. rps bounds
// the request rate against the node (public endpoints enforce their own
// limits and answer 429 past them); rps <= 0 disables client-side limiting.
// Each call carries a bounded timeout via the underlying HTTP client.
func NewClient(rpcURL string, rps float64, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if rps > 0 {
		limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}

	return &Client{
		rpcURL:     rpcURL,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    limiter,
	}
}

// QueryRecent fetches the most recent global transactions, newest first.
// cursor is the opaque pagination token from a previous page; pass "" for
// the first page.
func (c *Client) QueryRecent(ctx context.Context, limit int, cursor string) (domain.TransactionPage, error) {
	page, err := c.queryTransactionBlocks(ctx, nil, limit, cursor)
	if err != nil {
		return domain.TransactionPage{}, fmt.Errorf("sui: query recent transactions (cursor %q): %w", cursor, err)
	}
	return page, nil
}

// QueryByAddress fetches the most recent transactions sent by addr, newest
// first, with the same pagination contract as QueryRecent.
func (c *Client) QueryByAddress(ctx context.Context, addr string, limit int, cursor string) (domain.TransactionPage, error) {
	filter := map[string]any{"FromAddress": addr}
	page, err := c.queryTransactionBlocks(ctx, filter, limit, cursor)
	if err != nil {
		return domain.TransactionPage{}, fmt.Errorf("sui: query transactions for %s (cursor %q): %w", addr, cursor, err)
	}
	return page, nil
}

// GetTransaction looks up a single transaction by digest. Used for ad-hoc
// inspection through the operator API.
func (c *Client) GetTransaction(ctx context.Context, digest string) (domain.RawTransaction, error) {
	params := []any{digest, queryOptions{ShowEffects: true, ShowEvents: true, ShowInput: true}}

	var tb TransactionBlock
	if err := c.call(ctx, "sui_getTransactionBlock", params, &tb); err != nil {
		return domain.RawTransaction{}, fmt.Errorf("sui: get transaction %s: %w", digest, err)
	}
	return ExtractTradeInfo(tb), nil
}

// queryTransactionBlocks runs suix_queryTransactionBlocks with the given
// filter (nil for the global feed) in descending (newest-first) order.
func (c *Client) queryTransactionBlocks(ctx context.Context, filter map[string]any, limit int, cursor string) (domain.TransactionPage, error) {
	query := transactionQuery{
		Filter:  filter,
		Options: queryOptions{ShowEffects: true, ShowEvents: true, ShowInput: true},
	}

	var cursorParam any
	if cursor != "" {
		cursorParam = cursor
	}

	// Last param requests descending (newest-first) order.
	params := []any{query, cursorParam, limit, true}

	var result transactionPage
	if err := c.call(ctx, "suix_queryTransactionBlocks", params, &result); err != nil {
		return domain.TransactionPage{}, err
	}

	records := make([]domain.RawTransaction, 0, len(result.Data))
	for _, tb := range result.Data {
		records = append(records, ExtractTradeInfo(tb))
	}

	next := ""
	if result.NextCursor != nil {
		next = *result.NextCursor
	}

	return domain.TransactionPage{
		Records:    records,
		NextCursor: next,
		HasMore:    result.HasNextPage,
	}, nil
}

// call executes one JSON-RPC request against the node, honouring the
// client-side rate limiter, and unmarshals the result into out.
func (c *Client) call(ctx context.Context, method string, params []any, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait: %w", err)
	}

	reqBody := rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  method,
		Params:  params,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("create %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s http request: %w", method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s read response: %w", method, err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%s: %w", method, domain.ErrRateLimited)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s HTTP %d: %s", method, resp.StatusCode, string(body))
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("%s rpc error %d: %s", method, rpcResp.Error.Code, rpcResp.Error.Message)
	}

	if err := json.Unmarshal(rpcResp.Result, out); err != nil {
		return fmt.Errorf("decode %s result: %w", method, err)
	}
	return nil
}
