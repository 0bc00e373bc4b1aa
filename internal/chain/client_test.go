package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(Config{RPCURL: srv.URL, ProgramID: testProgramID})
	require.NoError(t, err)
	return client, srv
}

func rpcResult(t *testing.T, w http.ResponseWriter, result string) {
	t.Helper()
	fmt.Fprintf(w, `{"jsonrpc":"2.0","result":%s,"id":1}`, result)
}

func rpcError(t *testing.T, w http.ResponseWriter, code int, message string) {
	t.Helper()
	fmt.Fprintf(w, `{"jsonrpc":"2.0","error":{"code":%d,"message":%q},"id":1}`, code, message)
}

func testVault() VaultHandle {
	return VaultHandle{Vault: addrWithByte(3), FeeRecipient: addrWithByte(4)}
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(Config{ProgramID: testProgramID})
	assert.Error(t, err)

	_, err = NewClient(Config{RPCURL: "http://localhost:8899", ProgramID: "bogus"})
	assert.ErrorIs(t, err, ErrInvalidAddressInput)
}

func TestCreatePostReturnsSignature(t *testing.T) {
	var gotReq RPCRequest
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		rpcResult(t, w, `{"signature":"sig-abc"}`)
	})

	sig, err := client.CreatePost(context.Background(), testVault(), CreatePostArgs{
		PostID:    42,
		Title:     "fix my roof",
		Value:     1_500_000_000,
		Publisher: addrWithByte(1),
	})
	require.NoError(t, err)
	assert.Equal(t, "sig-abc", sig)
	assert.Equal(t, "escrow_createPost", gotReq.Method)

	params := gotReq.Params.(map[string]interface{})
	assert.Equal(t, "fix my roof", params["title"])
	// The derived post account address travels with the instruction.
	expected, err := client.Deriver().PostAddress(42)
	require.NoError(t, err)
	assert.Equal(t, expected.String(), params["post"])
}

func TestInvokeMapsProgramErrors(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		rpcError(t, w, CodePostAlreadyHasHelper, "post already has an accepted helper")
	})

	_, err := client.AcceptHelper(context.Background(), testVault(), 42, addrWithByte(1), addrWithByte(2))
	require.Error(t, err)

	var pe *ProgramError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, CodePostAlreadyHasHelper, pe.Code)
	assert.Equal(t, CategoryStateConflict, pe.Category)
	assert.True(t, IsProgramError(err, CodePostAlreadyHasHelper))

	// A definitive rejection is not ambiguous.
	assert.False(t, errors.Is(err, ErrAmbiguousOutcome))
}

func TestInvokeUnknownRPCErrorIsNotAmbiguous(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		rpcError(t, w, -32000, "node rejected the transaction")
	})

	_, err := client.CancelPost(context.Background(), testVault(), 42, addrWithByte(1))
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrAmbiguousOutcome))

	var pe *ProgramError
	assert.False(t, errors.As(err, &pe))
}

func TestInvokeTransportFailureIsAmbiguous(t *testing.T) {
	client, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	srv.Close()

	_, err := client.CompleteContract(context.Background(), testVault(), 42, addrWithByte(1), addrWithByte(2))
	assert.ErrorIs(t, err, ErrAmbiguousOutcome)
}

func TestInvokeMissingSignatureIsAmbiguous(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		rpcResult(t, w, `{}`)
	})

	_, err := client.ApplyHelp(context.Background(), testVault(), 42, addrWithByte(1))
	assert.ErrorIs(t, err, ErrAmbiguousOutcome)
}

func TestGetPost(t *testing.T) {
	helper := addrWithByte(2)
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		rpcResult(t, w, fmt.Sprintf(`{
			"id": 42,
			"publisher": %q,
			"title": "fix my roof",
			"value": 1500000000,
			"platformFee": 75000000,
			"isOpen": false,
			"acceptedHelper": %q,
			"isCompleted": false,
			"createdAt": 1700000000
		}`, addrWithByte(1).String(), helper.String()))
	})

	acct, err := client.GetPost(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), acct.ID)
	assert.Equal(t, addrWithByte(1), acct.Publisher)
	assert.Equal(t, uint64(1_500_000_000), acct.Value)
	assert.False(t, acct.IsOpen)
	require.NotNil(t, acct.AcceptedHelper)
	assert.Equal(t, helper, *acct.AcceptedHelper)
}

func TestGetPostNotFound(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		rpcResult(t, w, `null`)
	})

	_, err := client.GetPost(context.Background(), 42)
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestGetHelpRequest(t *testing.T) {
	applicant := addrWithByte(5)
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		rpcResult(t, w, fmt.Sprintf(`{"postId":42,"applicant":%q,"status":"pending","appliedAt":1700000100}`, applicant.String()))
	})

	acct, err := client.GetHelpRequest(context.Background(), 42, applicant)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), acct.PostID)
	assert.Equal(t, applicant, acct.Applicant)
	assert.Equal(t, "pending", acct.Status)
}

func TestGetBalance(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		rpcResult(t, w, `{"value":2500000000}`)
	})

	balance, err := client.GetBalance(context.Background(), addrWithByte(1))
	require.NoError(t, err)
	assert.Equal(t, uint64(2_500_000_000), balance)
}
