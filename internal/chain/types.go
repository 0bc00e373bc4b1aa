package chain

import "encoding/json"

// RPCRequest is a JSON-RPC 2.0 request envelope.
type RPCRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
	ID      int         `json:"id"`
}

// RPCResponse is a JSON-RPC 2.0 response envelope.
type RPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
	ID      int             `json:"id"`
}

// RPCError is the error member of a JSON-RPC response.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return e.Message
}

// VaultHandle names the escrow vault accounts a transaction moves funds
// through. It is threaded explicitly through every instruction; there is no
// ambient vault singleton.
type VaultHandle struct {
	Vault        Address
	FeeRecipient Address
}

// PostAccount is the on-chain post account state as the program stores it.
// It is the source of truth for fund movement and the open/completed/helper
// flags; the index is only a projection of it.
type PostAccount struct {
	ID             uint64
	Publisher      Address
	Title          string
	Description    string
	Value          uint64 // base units
	PlatformFee    uint64 // base units
	IsOpen         bool
	AcceptedHelper *Address
	IsCompleted    bool
	CreatedAt      int64
	ExpiresAt      int64
}

// HelpRequestAccount is the on-chain per-applicant bid account state.
type HelpRequestAccount struct {
	PostID    uint64
	Applicant Address
	Status    string // pending, accepted, rejected
	AppliedAt int64
}

// CreatePostArgs carries the createPost instruction arguments.
type CreatePostArgs struct {
	PostID      uint64
	Title       string
	Description string
	Value       uint64 // base units
	Publisher   Address
}
