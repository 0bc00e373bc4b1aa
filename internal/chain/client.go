// Package chain provides the escrow program client for the coduet escrow
// layer: deterministic address derivation, fee arithmetic and the five
// program instructions, each a single confirmed network round trip.
package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

// ErrAccountNotFound is returned when a queried chain account does not exist.
var ErrAccountNotFound = errors.New("chain account not found")

// Client talks JSON-RPC to the escrow program's node. It owns no state:
// every call is an independent round trip that can fail or time out.
type Client struct {
	rpcURL     string
	httpClient *http.Client
	deriver    *Deriver
	limiter    *rate.Limiter
}

// Config holds client configuration.
type Config struct {
	RPCURL    string
	ProgramID string
	Timeout   time.Duration
	// RequestsPerSecond throttles outbound RPC; zero disables the limiter.
	RequestsPerSecond int
	Burst             int
}

// NewClient creates an escrow program client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("RPC URL required")
	}
	programID, err := ParseAddress(cfg.ProgramID)
	if err != nil {
		return nil, fmt.Errorf("program id: %w", err)
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = cfg.RequestsPerSecond
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return &Client{
		rpcURL:     cfg.RPCURL,
		httpClient: &http.Client{Timeout: timeout},
		deriver:    NewDeriver(programID),
		limiter:    limiter,
	}, nil
}

// Deriver exposes the client's address deriver.
func (c *Client) Deriver() *Deriver {
	return c.deriver
}

// Call makes a raw RPC call to the node.
func (c *Client) Call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req := RPCRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      1,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var rpcResp RPCResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	if rpcResp.Error != nil {
		return nil, rpcResp.Error
	}

	return rpcResp.Result, nil
}

// invoke submits a state-changing instruction and returns the confirmed
// transaction signature. A definitive program rejection maps to a
// ProgramError; a transport failure leaves the outcome unknown and is
// wrapped in ErrAmbiguousOutcome so callers never write the index on it.
func (c *Client) invoke(ctx context.Context, method string, params interface{}) (string, error) {
	result, err := c.Call(ctx, method, params)
	if err != nil {
		var rpcErr *RPCError
		if errors.As(err, &rpcErr) {
			if pe, ok := programErrorByCode(rpcErr.Code); ok {
				return "", pe
			}
			return "", fmt.Errorf("%s rejected: %w", method, rpcErr)
		}
		return "", fmt.Errorf("%s: %v: %w", method, err, ErrAmbiguousOutcome)
	}

	sig := gjson.GetBytes(result, "signature").String()
	if sig == "" {
		return "", fmt.Errorf("%s: confirmation missing signature: %w", method, ErrAmbiguousOutcome)
	}
	return sig, nil
}

// CreatePost escrows the deposit and creates the post account. The call
// returns only after the network confirms inclusion.
func (c *Client) CreatePost(ctx context.Context, vault VaultHandle, args CreatePostArgs) (string, error) {
	postAddr, err := c.deriver.PostAddress(args.PostID)
	if err != nil {
		return "", err
	}
	return c.invoke(ctx, "escrow_createPost", map[string]interface{}{
		"postId":      args.PostID,
		"title":       args.Title,
		"description": args.Description,
		"value":       args.Value,
		"post":        postAddr.String(),
		"publisher":   args.Publisher.String(),
		"mainVault":   vault.Vault.String(),
	})
}

// ApplyHelp records a helper's bid in its per-applicant account.
func (c *Client) ApplyHelp(ctx context.Context, vault VaultHandle, postID uint64, applicant Address) (string, error) {
	postAddr, err := c.deriver.PostAddress(postID)
	if err != nil {
		return "", err
	}
	reqAddr, err := c.deriver.HelpRequestAddress(postID, applicant)
	if err != nil {
		return "", err
	}
	return c.invoke(ctx, "escrow_applyHelp", map[string]interface{}{
		"postId":      postID,
		"post":        postAddr.String(),
		"helpRequest": reqAddr.String(),
		"applicant":   applicant.String(),
		"mainVault":   vault.Vault.String(),
	})
}

// AcceptHelper marks one bid accepted and closes the post to new bids. The
// program is the serialization point: only one accept can ever win.
func (c *Client) AcceptHelper(ctx context.Context, vault VaultHandle, postID uint64, applicant, publisher Address) (string, error) {
	postAddr, err := c.deriver.PostAddress(postID)
	if err != nil {
		return "", err
	}
	reqAddr, err := c.deriver.HelpRequestAddress(postID, applicant)
	if err != nil {
		return "", err
	}
	return c.invoke(ctx, "escrow_acceptHelper", map[string]interface{}{
		"postId":      postID,
		"post":        postAddr.String(),
		"helpRequest": reqAddr.String(),
		"applicant":   applicant.String(),
		"publisher":   publisher.String(),
		"mainVault":   vault.Vault.String(),
	})
}

// CompleteContract releases the escrowed value to the helper and the fee to
// the platform recipient. Terminal; must not be retried blindly.
func (c *Client) CompleteContract(ctx context.Context, vault VaultHandle, postID uint64, publisher, helper Address) (string, error) {
	postAddr, err := c.deriver.PostAddress(postID)
	if err != nil {
		return "", err
	}
	return c.invoke(ctx, "escrow_completeContract", map[string]interface{}{
		"postId":               postID,
		"post":                 postAddr.String(),
		"publisher":            publisher.String(),
		"helper":               helper.String(),
		"mainVault":            vault.Vault.String(),
		"platformFeeRecipient": vault.FeeRecipient.String(),
	})
}

// CancelPost refunds the deposit to the publisher. Only legal while the post
// has no accepted helper.
func (c *Client) CancelPost(ctx context.Context, vault VaultHandle, postID uint64, publisher Address) (string, error) {
	postAddr, err := c.deriver.PostAddress(postID)
	if err != nil {
		return "", err
	}
	return c.invoke(ctx, "escrow_cancelPost", map[string]interface{}{
		"postId":               postID,
		"post":                 postAddr.String(),
		"publisher":            publisher.String(),
		"mainVault":            vault.Vault.String(),
		"platformFeeRecipient": vault.FeeRecipient.String(),
	})
}

// GetPost reads the on-chain post account state.
func (c *Client) GetPost(ctx context.Context, postID uint64) (*PostAccount, error) {
	postAddr, err := c.deriver.PostAddress(postID)
	if err != nil {
		return nil, err
	}
	result, err := c.Call(ctx, "escrow_getPost", map[string]interface{}{"post": postAddr.String()})
	if err != nil {
		return nil, err
	}
	root := gjson.ParseBytes(result)
	if !root.Exists() || root.Type == gjson.Null {
		return nil, ErrAccountNotFound
	}

	acct := &PostAccount{
		ID:          root.Get("id").Uint(),
		Title:       root.Get("title").String(),
		Description: root.Get("description").String(),
		Value:       root.Get("value").Uint(),
		PlatformFee: root.Get("platformFee").Uint(),
		IsOpen:      root.Get("isOpen").Bool(),
		IsCompleted: root.Get("isCompleted").Bool(),
		CreatedAt:   root.Get("createdAt").Int(),
		ExpiresAt:   root.Get("expiresAt").Int(),
	}
	if acct.Publisher, err = ParseAddress(root.Get("publisher").String()); err != nil {
		return nil, fmt.Errorf("post account publisher: %w", err)
	}
	if raw := root.Get("acceptedHelper"); raw.Exists() && raw.Type != gjson.Null {
		helper, err := ParseAddress(raw.String())
		if err != nil {
			return nil, fmt.Errorf("post account helper: %w", err)
		}
		acct.AcceptedHelper = &helper
	}
	return acct, nil
}

// GetHelpRequest reads the on-chain bid account for one applicant.
func (c *Client) GetHelpRequest(ctx context.Context, postID uint64, applicant Address) (*HelpRequestAccount, error) {
	reqAddr, err := c.deriver.HelpRequestAddress(postID, applicant)
	if err != nil {
		return nil, err
	}
	result, err := c.Call(ctx, "escrow_getHelpRequest", map[string]interface{}{"helpRequest": reqAddr.String()})
	if err != nil {
		return nil, err
	}
	root := gjson.ParseBytes(result)
	if !root.Exists() || root.Type == gjson.Null {
		return nil, ErrAccountNotFound
	}

	acct := &HelpRequestAccount{
		PostID:    root.Get("postId").Uint(),
		Status:    root.Get("status").String(),
		AppliedAt: root.Get("appliedAt").Int(),
	}
	if acct.Applicant, err = ParseAddress(root.Get("applicant").String()); err != nil {
		return nil, fmt.Errorf("help request applicant: %w", err)
	}
	return acct, nil
}

// GetBalance returns the base-unit balance of an account.
func (c *Client) GetBalance(ctx context.Context, addr Address) (uint64, error) {
	result, err := c.Call(ctx, "getBalance", map[string]interface{}{"account": addr.String()})
	if err != nil {
		return 0, err
	}
	return gjson.GetBytes(result, "value").Uint(), nil
}
