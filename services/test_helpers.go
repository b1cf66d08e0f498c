package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"reflect"
	"sync"
	"testing"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"

	"github.com/ceramicnetwork/go-registry/models"
)

func testCid(t *testing.T, data string) string {
	c, err := cidOf([]byte(data))
	if err != nil {
		t.Fatalf("failed to build cid: %v", err)
	}
	return c
}

func cidOf(data []byte) (string, error) {
	mh, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return "", err
	}
	return cid.NewCidV1(cid.Raw, mh).String(), nil
}

func Assert(t *testing.T, expected any, actual any, msg string) {
	t.Helper()
	if !reflect.DeepEqual(expected, actual) {
		t.Errorf("%s: expected %v, got %v", msg, expected, actual)
	}
}

type FakeLedger struct {
	lock     sync.Mutex
	requests []*models.LedgerStorageRequest
	total    *uint64
	profile  *string
	queryErr error
	// profileErr fails only the profile query
	profileErr error
	submitErr  error
	statuses   []models.TxStatus
	submitted  [][]models.FileRequest
	unpinned   [][]models.UnpinRequest
	onSubmit   func()
}

func (f *FakeLedger) StorageRequests(ctx context.Context, account string) ([]*models.LedgerStorageRequest, error) {
	return f.requests, f.queryErr
}

func (f *FakeLedger) TotalStoredBytes(ctx context.Context, account string) (*uint64, error) {
	return f.total, f.queryErr
}

func (f *FakeLedger) UserProfile(ctx context.Context, account string) (*string, error) {
	if f.profileErr != nil {
		return nil, f.profileErr
	}
	return f.profile, f.queryErr
}

func (f *FakeLedger) SubmitStorageRequest(ctx context.Context, files []models.FileRequest) (<-chan models.TxStatus, error) {
	f.lock.Lock()
	f.submitted = append(f.submitted, files)
	f.lock.Unlock()
	return f.statusChannel()
}

func (f *FakeLedger) SubmitUnpin(ctx context.Context, files []models.UnpinRequest) (<-chan models.TxStatus, error) {
	f.lock.Lock()
	f.unpinned = append(f.unpinned, files)
	f.lock.Unlock()
	return f.statusChannel()
}

func (f *FakeLedger) statusChannel() (<-chan models.TxStatus, error) {
	if f.onSubmit != nil {
		f.onSubmit()
	}
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	ch := make(chan models.TxStatus, len(f.statuses))
	for _, status := range f.statuses {
		ch <- status
	}
	close(ch)
	return ch, nil
}

func successStatuses() []models.TxStatus {
	return []models.TxStatus{
		{Kind: models.TxStatus_Ready},
		{Kind: models.TxStatus_InBlock, Events: []models.LedgerEvent{
			{Section: "registry", Method: "StorageRequested"},
			{Section: models.EventSection_System, Method: models.EventMethod_ExtrinsicSuccess},
		}},
	}
}

func failureStatuses(cause models.LedgerError) []models.TxStatus {
	return []models.TxStatus{
		{Kind: models.TxStatus_Ready},
		{Kind: models.TxStatus_InBlock, Events: []models.LedgerEvent{
			{Section: models.EventSection_System, Method: models.EventMethod_ExtrinsicFailed, Err: cause},
		}},
	}
}

// FakeContentStore addresses content by its real CID so uploads can be read back.
type FakeContentStore struct {
	lock    sync.Mutex
	objects map[string][]byte
	added   []string
	addErr  error
	// failOn makes Add fail for one name only
	failOn   string
	getErr   error
	getCalls int
	// blockGet makes Get wait for its context to end
	blockGet bool
	// onAdd runs after each successful add, with the stored name
	onAdd func(name string)
}

func NewFakeContentStore() *FakeContentStore {
	return &FakeContentStore{objects: make(map[string][]byte)}
}

func (f *FakeContentStore) Add(ctx context.Context, name string, r io.Reader, progress func(n int64)) (string, error) {
	if f.addErr != nil {
		return "", f.addErr
	}
	if len(f.failOn) > 0 && name == f.failOn {
		return "", errFake
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	if progress != nil {
		progress(int64(len(data)))
	}
	c, err := cidOf(data)
	if err != nil {
		return "", err
	}
	f.lock.Lock()
	f.objects[c] = data
	f.added = append(f.added, name)
	f.lock.Unlock()
	if f.onAdd != nil {
		f.onAdd(name)
	}
	return c, nil
}

func (f *FakeContentStore) Get(ctx context.Context, c string) ([]byte, error) {
	if f.blockGet {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	f.lock.Lock()
	defer f.lock.Unlock()
	f.getCalls++
	if f.getErr != nil {
		return nil, f.getErr
	}
	data, found := f.objects[c]
	if !found {
		return nil, fmt.Errorf("%s not found", c)
	}
	return bytes.Clone(data), nil
}

func (f *FakeContentStore) put(t *testing.T, data []byte) string {
	c, err := cidOf(data)
	if err != nil {
		t.Fatalf("failed to build cid: %v", err)
	}
	f.lock.Lock()
	f.objects[c] = data
	f.lock.Unlock()
	return c
}

func (f *FakeContentStore) addCount() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return len(f.added)
}

type FakeCreditsOracle struct {
	balance *big.Rat
	err     error
	calls   int
}

func (f *FakeCreditsOracle) Balance(ctx context.Context) (*big.Rat, error) {
	f.calls++
	return f.balance, f.err
}

type MockMetricService struct {
	lock   sync.Mutex
	counts map[models.MetricName]int
}

func (m *MockMetricService) Count(ctx context.Context, name models.MetricName, val int) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.counts == nil {
		m.counts = make(map[models.MetricName]int)
	}
	m.counts[name] += val
	return nil
}

func (m *MockMetricService) Distribution(ctx context.Context, name models.MetricName, val int) error {
	return nil
}

func (m *MockMetricService) Shutdown(ctx context.Context) {}

func (m *MockMetricService) count(name models.MetricName) int {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.counts[name]
}

type FakeInvalidator struct {
	invalidated []string
}

func (f *FakeInvalidator) Invalidate(account string) {
	f.invalidated = append(f.invalidated, account)
}

type FakeSnapshotFetcher struct {
	lock     sync.Mutex
	snapshot *models.Snapshot
	err      error
	calls    int
	// release, if set, blocks fetches until closed
	release chan struct{}
}

func (f *FakeSnapshotFetcher) Fetch(ctx context.Context, account string) (*models.Snapshot, error) {
	f.lock.Lock()
	f.calls++
	snapshot, err, release := f.snapshot, f.err, f.release
	f.lock.Unlock()
	if release != nil {
		<-release
	}
	return snapshot, err
}

func (f *FakeSnapshotFetcher) callCount() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.calls
}

var errFake = errors.New("fake failure")

type FakeNotifier struct {
	lock     sync.Mutex
	alerts   []string
	warnings []string
}

func (f *FakeNotifier) SendAlert(title, desc string) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.alerts = append(f.alerts, title)
	return nil
}

func (f *FakeNotifier) SendWarning(title, desc string) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.warnings = append(f.warnings, desc)
	return nil
}

func (f *FakeNotifier) warningCount() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return len(f.warnings)
}
