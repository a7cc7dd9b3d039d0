package sui

import "encoding/json"

// rpcRequest is the JSON-RPC 2.0 request envelope.
type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

// rpcError is the JSON-RPC 2.0 error object.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// rpcResponse is the JSON-RPC 2.0 response envelope.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

// TransactionBlock mirrors the node's transaction block response shape for
// the fields this service reads. Everything else in the response is ignored.
type TransactionBlock struct {
	Digest      string  `json:"digest"`
	TimestampMs *string `json:"timestampMs"`
	Effects     *struct {
		Status struct {
			Status string `json:"status"`
			Error  string `json:"error,omitempty"`
		} `json:"status"`
		GasUsed struct {
			ComputationCost string `json:"computationCost"`
			StorageCost     string `json:"storageCost"`
			StorageRebate   string `json:"storageRebate"`
		} `json:"gasUsed"`
	} `json:"effects"`
	Events []struct {
		Type       string          `json:"type"`
		Sender     string          `json:"sender"`
		ParsedJSON json.RawMessage `json:"parsedJson"`
	} `json:"events"`
	Transaction *struct {
		Data struct {
			Sender string `json:"sender"`
		} `json:"data"`
	} `json:"transaction"`
}

// transactionPage is the paginated result of suix_queryTransactionBlocks.
type transactionPage struct {
	Data        []TransactionBlock `json:"data"`
	NextCursor  *string            `json:"nextCursor"`
	HasNextPage bool               `json:"hasNextPage"`
}

// queryOptions selects which parts of the transaction block the node returns.
type queryOptions struct {
	ShowEffects bool `json:"showEffects"`
	ShowEvents  bool `json:"showEvents"`
	ShowInput   bool `json:"showInput"`
}

// transactionQuery is the filter+options body of suix_queryTransactionBlocks.
type transactionQuery struct {
	Filter  map[string]any `json:"filter,omitempty"`
	Options queryOptions   `json:"options"`
}
