package ledger

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/ceramicnetwork/go-registry/common/codec"
	"github.com/ceramicnetwork/go-registry/models"
)

const testCid = "QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG"

type FakeRegistryApi struct {
	requests []*models.LedgerStorageRequest
	total    *uint64
	profile  *string
	statuses []wireTxStatus
	received chan signedTx
}

func (f *FakeRegistryApi) StorageRequests(account string) ([]*models.LedgerStorageRequest, error) {
	return f.requests, nil
}

func (f *FakeRegistryApi) TotalStoredBytes(account string) (*uint64, error) {
	return f.total, nil
}

func (f *FakeRegistryApi) UserProfile(account string) (*string, error) {
	return f.profile, nil
}

func (f *FakeRegistryApi) SubmitAndWatch(ctx context.Context, tx signedTx) (*rpc.Subscription, error) {
	notifier, supported := rpc.NotifierFromContext(ctx)
	if !supported {
		return nil, rpc.ErrNotificationsUnsupported
	}
	f.received <- tx
	sub := notifier.CreateSubscription()
	go func() {
		for _, status := range f.statuses {
			if err := notifier.Notify(sub.ID, status); err != nil {
				return
			}
		}
	}()
	return sub, nil
}

func newTestClient(t *testing.T, api *FakeRegistryApi) *Client {
	server := rpc.NewServer()
	if err := server.RegisterName(namespace, api); err != nil {
		t.Fatalf("failed to register api: %v", err)
	}
	t.Cleanup(server.Stop)
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	client := NewClient(rpc.DialInProc(server), key)
	t.Cleanup(client.Close)
	return client
}

func TestQueries(t *testing.T) {
	total := uint64(42)
	profile := codec.EncodeHex([]byte(testCid))
	api := &FakeRegistryApi{
		requests: []*models.LedgerStorageRequest{{FileHash: profile, FileName: "0x61", CreatedAt: 7, IsAssigned: true, MinerIds: []string{"m1"}}},
		total:    &total,
		profile:  &profile,
	}
	client := newTestClient(t, api)
	ctx := context.Background()

	requests, err := client.StorageRequests(ctx, "alice")
	if err != nil {
		t.Fatalf("storage requests failed: %v", err)
	}
	if len(requests) != 1 || requests[0].CreatedAt != 7 || !requests[0].IsAssigned || requests[0].MinerIds[0] != "m1" {
		t.Errorf("unexpected requests %+v", requests)
	}
	if got, err := client.TotalStoredBytes(ctx, "alice"); err != nil || got == nil || *got != 42 {
		t.Errorf("unexpected total %v (%v)", got, err)
	}
	if got, err := client.UserProfile(ctx, "alice"); err != nil || got == nil || *got != profile {
		t.Errorf("unexpected profile %v (%v)", got, err)
	}
}

func TestQueriesWithoutRecord(t *testing.T) {
	client := newTestClient(t, &FakeRegistryApi{})
	ctx := context.Background()
	if got, err := client.TotalStoredBytes(ctx, "bob"); err != nil || got != nil {
		t.Errorf("expected no total, got %v (%v)", got, err)
	}
	if got, err := client.UserProfile(ctx, "bob"); err != nil || got != nil {
		t.Errorf("expected no profile, got %v (%v)", got, err)
	}
}

func TestQueryUnavailable(t *testing.T) {
	client := newTestClient(t, &FakeRegistryApi{})
	client.Close()
	if _, err := client.StorageRequests(context.Background(), "bob"); !errors.Is(err, models.ErrLedgerUnavailable) {
		t.Errorf("expected ledger unavailable, got %v", err)
	}
}

func TestSubmitStorageRequest(t *testing.T) {
	api := &FakeRegistryApi{
		received: make(chan signedTx, 1),
		statuses: []wireTxStatus{
			{Status: "ready"},
			{Status: "inBlock", BlockHash: "0x01", Events: []wireEvent{
				{Section: "system", Method: models.EventMethod_ExtrinsicFailed, Error: json.RawMessage(`{"module":{"section":"marketplace","name":"NoCredits"}}`)},
			}},
			{Status: "finalized", BlockHash: "0x01"},
		},
	}
	client := newTestClient(t, api)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	statusCh, err := client.SubmitStorageRequest(ctx, []models.FileRequest{{FileHash: codec.EncodeCid(testCid), FileName: []byte("batch-info.json")}})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	var statuses []models.TxStatus
	for status := range statusCh {
		statuses = append(statuses, status)
	}
	if len(statuses) != 3 {
		t.Fatalf("expected 3 statuses, got %d: %+v", len(statuses), statuses)
	}
	if statuses[1].Kind != models.TxStatus_InBlock || len(statuses[1].Events) != 1 {
		t.Fatalf("unexpected in-block status %+v", statuses[1])
	}
	expected := models.ModuleError{Section: "marketplace", Name: "NoCredits"}
	if statuses[1].Events[0].Err != expected {
		t.Errorf("expected %v, got %v", expected, statuses[1].Events[0].Err)
	}

	tx := <-api.received
	pub, err := crypto.SigToPub(crypto.Keccak256(tx.Payload), tx.Signature)
	if err != nil {
		t.Fatalf("bad signature: %v", err)
	}
	if crypto.PubkeyToAddress(*pub).Hex() != client.Account() || tx.Signer != client.Account() {
		t.Errorf("transaction not signed by %s", client.Account())
	}
	payload := struct {
		Call string            `json:"call"`
		Args []wireFileRequest `json:"args"`
	}{}
	if err = json.Unmarshal(tx.Payload, &payload); err != nil {
		t.Fatalf("bad payload: %v", err)
	}
	if payload.Call != call_StorageRequest || payload.Args[0].FileHash != codec.EncodeHex([]byte(testCid)) {
		t.Errorf("unexpected payload %s", tx.Payload)
	}
}

func TestParseSignerKey(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	plain := hex.EncodeToString(crypto.FromECDSA(key))
	tests := map[string]struct {
		hexKey    string
		expectErr bool
	}{
		"plain":           {hexKey: plain},
		"0x prefix":       {hexKey: "0x" + plain},
		"0X prefix":       {hexKey: "0X" + plain},
		"not hex":         {hexKey: "0xzz", expectErr: true},
		"prefix only":     {hexKey: "0x", expectErr: true},
		"wrong key width": {hexKey: plain[:10], expectErr: true},
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			parsed, err := ParseSignerKey(test.hexKey)
			if test.expectErr {
				if err == nil {
					t.Errorf("expected error for %q", test.hexKey)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if crypto.PubkeyToAddress(parsed.PublicKey) != crypto.PubkeyToAddress(key.PublicKey) {
				t.Errorf("parsed key does not match generated key")
			}
		})
	}
}
