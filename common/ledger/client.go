package ledger

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/ceramicnetwork/go-registry/common/codec"
	"github.com/ceramicnetwork/go-registry/models"
)

const namespace = "registry"

const (
	method_StorageRequests  = namespace + "_storageRequests"
	method_TotalStoredBytes = namespace + "_totalStoredBytes"
	method_UserProfile      = namespace + "_userProfile"
	subscription_Submit     = "submitAndWatch"
)

const (
	call_StorageRequest = "storageRequest"
	call_StorageUnpin   = "storageUnpin"
)

type txPayload struct {
	Call   string `json:"call"`
	Args   any    `json:"args"`
	Signer string `json:"signer"`
	Nonce  uint64 `json:"nonce"`
}

type signedTx struct {
	Payload   hexutil.Bytes `json:"payload"`
	Signature hexutil.Bytes `json:"signature"`
	Signer    string        `json:"signer"`
}

type wireFileRequest struct {
	FileHash string `json:"fileHash"`
	FileName string `json:"fileName"`
}

type wireUnpinRequest struct {
	Cid      string `json:"cid"`
	FileName string `json:"filename"`
}

type wireEvent struct {
	Section string          `json:"section"`
	Method  string          `json:"method"`
	Error   json.RawMessage `json:"error,omitempty"`
}

type wireTxStatus struct {
	Status    string      `json:"status"`
	BlockHash string      `json:"blockHash,omitempty"`
	Events    []wireEvent `json:"events,omitempty"`
}

// Client is a ledger client speaking JSON-RPC. Transactions are signed with a secp256k1 key over the Keccak256 hash
// of their JSON payload.
type Client struct {
	rpc    *rpc.Client
	key    *ecdsa.PrivateKey
	signer string
	nonce  uint64
}

func Dial(ctx context.Context, url string, hexKey string) (*Client, error) {
	key, err := ParseSignerKey(hexKey)
	if err != nil {
		return nil, err
	}
	dCtx, dCancel := context.WithTimeout(ctx, models.LedgerQueryTimeout)
	defer dCancel()
	rpcClient, err := rpc.DialContext(dCtx, url)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrLedgerUnavailable, err)
	}
	return NewClient(rpcClient, key), nil
}

// ParseSignerKey accepts a hex private key with or without a 0x prefix.
func ParseSignerKey(hexKey string) (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimPrefix(hexKey, "0x"), "0X"))
	if err != nil {
		return nil, fmt.Errorf("ledger: invalid signer key: %w", err)
	}
	return key, nil
}

func NewClient(rpcClient *rpc.Client, key *ecdsa.PrivateKey) *Client {
	return &Client{
		rpc:    rpcClient,
		key:    key,
		signer: crypto.PubkeyToAddress(key.PublicKey).Hex(),
		nonce:  uint64(time.Now().UnixNano()),
	}
}

// Account is the account the client signs for.
func (c *Client) Account() string {
	return c.signer
}

func (c *Client) Close() {
	c.rpc.Close()
}

func (c *Client) StorageRequests(ctx context.Context, account string) ([]*models.LedgerStorageRequest, error) {
	var out []*models.LedgerStorageRequest
	if err := c.call(ctx, &out, method_StorageRequests, account); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) TotalStoredBytes(ctx context.Context, account string) (*uint64, error) {
	var out *uint64
	if err := c.call(ctx, &out, method_TotalStoredBytes, account); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) UserProfile(ctx context.Context, account string) (*string, error) {
	var out *string
	if err := c.call(ctx, &out, method_UserProfile, account); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) SubmitStorageRequest(ctx context.Context, files []models.FileRequest) (<-chan models.TxStatus, error) {
	args := make([]wireFileRequest, len(files))
	for i, f := range files {
		args[i] = wireFileRequest{FileHash: codec.EncodeHex(f.FileHash), FileName: codec.EncodeHex(f.FileName)}
	}
	return c.submit(ctx, call_StorageRequest, args)
}

func (c *Client) SubmitUnpin(ctx context.Context, files []models.UnpinRequest) (<-chan models.TxStatus, error) {
	args := make([]wireUnpinRequest, len(files))
	for i, f := range files {
		args[i] = wireUnpinRequest{Cid: f.Cid, FileName: f.FileName}
	}
	return c.submit(ctx, call_StorageUnpin, args)
}

func (c *Client) call(ctx context.Context, result interface{}, method string, args ...interface{}) error {
	qCtx, qCancel := context.WithTimeout(ctx, models.LedgerQueryTimeout)
	defer qCancel()

	if err := c.rpc.CallContext(qCtx, result, method, args...); err != nil {
		return fmt.Errorf("%w: %s: %v", models.ErrLedgerUnavailable, method, err)
	}
	return nil
}

func (c *Client) sign(call string, args any) (*signedTx, error) {
	payload, err := json.Marshal(txPayload{
		Call:   call,
		Args:   args,
		Signer: c.signer,
		Nonce:  atomic.AddUint64(&c.nonce, 1),
	})
	if err != nil {
		return nil, err
	}
	signature, err := crypto.Sign(crypto.Keccak256(payload), c.key)
	if err != nil {
		return nil, err
	}
	return &signedTx{Payload: payload, Signature: signature, Signer: c.signer}, nil
}

// submit sends a signed transaction and streams its status until a terminal status is seen, the subscription breaks,
// or ctx is done. The returned channel is closed when streaming stops.
func (c *Client) submit(ctx context.Context, call string, args any) (<-chan models.TxStatus, error) {
	tx, err := c.sign(call, args)
	if err != nil {
		return nil, fmt.Errorf("ledger: error signing %s: %w", call, err)
	}
	wireCh := make(chan wireTxStatus)
	sub, err := c.rpc.Subscribe(ctx, namespace, wireCh, subscription_Submit, tx)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", models.ErrLedgerUnavailable, call, err)
	}
	statusCh := make(chan models.TxStatus)
	go func() {
		defer close(statusCh)
		defer sub.Unsubscribe()
		for {
			var status models.TxStatus
			select {
			case <-ctx.Done():
				return
			case err := <-sub.Err():
				if err == nil {
					return
				}
				status = models.TxStatus{Err: fmt.Errorf("%w: %v", models.ErrLedgerUnavailable, err)}
			case wire := <-wireCh:
				status = decodeStatus(wire)
			}
			select {
			case <-ctx.Done():
				return
			case statusCh <- status:
			}
			if status.Err != nil || isTerminal(status.Kind) {
				return
			}
		}
	}()
	return statusCh, nil
}

func decodeStatus(wire wireTxStatus) models.TxStatus {
	status := models.TxStatus{Kind: models.TxStatusKind(wire.Status), BlockHash: wire.BlockHash}
	for _, e := range wire.Events {
		status.Events = append(status.Events, models.LedgerEvent{
			Section: e.Section,
			Method:  e.Method,
			Err:     DecodeDispatchError(e.Error),
		})
	}
	return status
}

func isTerminal(kind models.TxStatusKind) bool {
	switch kind {
	case models.TxStatus_Finalized, models.TxStatus_Dropped, models.TxStatus_Invalid:
		return true
	}
	return false
}
