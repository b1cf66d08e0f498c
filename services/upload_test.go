package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ceramicnetwork/go-registry/common/codec"
	"github.com/ceramicnetwork/go-registry/common/loggers"
	"github.com/ceramicnetwork/go-registry/models"
)

type uploadFixture struct {
	store         *FakeContentStore
	ledger        *FakeLedger
	oracle        *FakeCreditsOracle
	invalidator   *FakeInvalidator
	notifier      *FakeNotifier
	pending       *PendingTracker
	metricService *MockMetricService
	service       *UploadService
	lock          sync.Mutex
	events        []models.UploadEvent
}

func newUploadFixture(statuses []models.TxStatus, balance *big.Rat) *uploadFixture {
	f := &uploadFixture{
		store:         NewFakeContentStore(),
		ledger:        &FakeLedger{statuses: statuses},
		oracle:        &FakeCreditsOracle{balance: balance},
		invalidator:   &FakeInvalidator{},
		notifier:      &FakeNotifier{},
		pending:       NewPendingTracker(time.Hour),
		metricService: &MockMetricService{},
	}
	logger := loggers.NewTestLogger()
	f.service = NewUploadService(UploadServiceOpts{
		Account:       "alice",
		Store:         f.store,
		Ledger:        f.ledger,
		Credits:       NewCreditsGate(f.oracle, logger, f.metricService),
		Invalidator:   f.invalidator,
		Pending:       f.pending,
		OnEvent:       f.record,
		Notifier:      f.notifier,
		Logger:        logger,
		MetricService: f.metricService,
	})
	return f
}

func (f *uploadFixture) record(event models.UploadEvent) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.events = append(f.events, event)
}

func (f *uploadFixture) lastProgress() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	if len(f.events) == 0 {
		return 0
	}
	return f.events[len(f.events)-1].Progress
}

func rawItem(name string, fill byte, n int) models.UploadItem {
	return models.UploadItem{Name: name, Reader: bytes.NewReader(bytes.Repeat([]byte{fill}, n)), Size: int64(n)}
}

func TestUploadByteWeightedProgress(t *testing.T) {
	const mb = 1 << 20
	f := newUploadFixture(successStatuses(), big.NewRat(10, 1))
	progressAfter := make(map[string]int)
	f.store.onAdd = func(name string) {
		progressAfter[name] = f.lastProgress()
	}
	items := []models.UploadItem{rawItem("big.bin", 1, 10*mb), rawItem("one.bin", 2, mb), rawItem("two.bin", 3, mb)}

	result, err := f.service.Upload(context.Background(), items)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	Assert(t, 83, progressAfter["big.bin"], "progress should be byte-weighted after the first file")
	Assert(t, 91, progressAfter["one.bin"], "incorrect progress after the second file")
	Assert(t, 99, progressAfter["two.bin"], "progress should hold below 100 until the batch manifest is stored")
	Assert(t, 99, progressAfter[result.JobId.String()+models.BatchManifestSuffix], "progress reached 100 before the batch manifest was stored")
	Assert(t, 4, f.store.addCount(), "expected one extra upload for the batch manifest")

	reached := false
	for i, event := range f.events {
		if i > 0 && event.Progress < f.events[i-1].Progress {
			t.Errorf("progress decreased from %d to %d", f.events[i-1].Progress, event.Progress)
		}
		if event.Progress == models.MaxUploadProgress {
			reached = true
		}
	}
	if !reached {
		t.Errorf("progress never reached 100")
	}
	last := f.events[len(f.events)-1]
	Assert(t, models.UploadState_Idle, last.State, "job should end idle")
	Assert(t, nil, last.Err, "terminal event should carry no error")
}

func TestUploadSubmitsBatchManifest(t *testing.T) {
	f := newUploadFixture(successStatuses(), big.NewRat(1, 1))
	registered := testCid(t, "registered elsewhere")
	items := []models.UploadItem{
		rawItem("a.txt", 'a', 16),
		{Name: "external.txt", Cid: registered},
	}

	result, err := f.service.Upload(context.Background(), items)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	Assert(t, 2, f.store.addCount(), "external items should not be uploaded")
	Assert(t, "external.txt", result.Files[1].FileName, "incorrect manifest order")
	Assert(t, registered, result.Files[1].Cid, "external cid not kept")

	data, err := f.store.Get(context.Background(), result.ManifestCid)
	if err != nil {
		t.Fatalf("batch manifest not stored: %v", err)
	}
	var stored []models.BatchManifestItem
	if err = json.Unmarshal(data, &stored); err != nil {
		t.Fatalf("batch manifest not json: %v", err)
	}
	Assert(t, result.Files, stored, "stored batch manifest differs from result")

	Assert(t, 1, len(f.ledger.submitted), "expected one storage request")
	request := f.ledger.submitted[0][0]
	Assert(t, result.ManifestCid, string(request.FileHash), "storage request should reference the batch manifest")
	if !strings.HasSuffix(codec.DecodeName(request.FileName), models.BatchManifestSuffix) {
		t.Errorf("unexpected manifest name %q", request.FileName)
	}

	Assert(t, []string{"alice"}, f.invalidator.invalidated, "cache not invalidated")
	Assert(t, 2, len(f.pending.Pending("alice")), "uploaded files not tracked as pending")
	Assert(t, 2, f.oracle.calls, "credits should be checked once per item")
	Assert(t, models.UploadState_Idle, f.service.State(), "pipeline not idle")
	Assert(t, 1, f.metricService.count(models.MetricName_UploadSucceeded), "success not counted")
}

func TestUploadInsufficientCredits(t *testing.T) {
	f := newUploadFixture(successStatuses(), new(big.Rat))

	_, err := f.service.Upload(context.Background(), []models.UploadItem{rawItem("a", 'a', 8), rawItem("b", 'b', 8)})

	if !errors.Is(err, models.ErrInsufficientCredits) {
		t.Fatalf("expected ErrInsufficientCredits, got %v", err)
	}
	Assert(t, 0, f.store.addCount(), "gateway called without credits")
	Assert(t, 0, len(f.ledger.submitted), "ledger called without credits")
	Assert(t, 0, len(f.invalidator.invalidated), "cache invalidated on failure")
	Assert(t, 0, len(f.notifier.alerts), "credits rejection should not alert")
	Assert(t, models.UploadState_Idle, f.service.State(), "pipeline not idle")
	last := f.events[len(f.events)-1]
	if !errors.Is(last.Err, models.ErrInsufficientCredits) {
		t.Errorf("terminal event should carry ErrInsufficientCredits, got %v", last.Err)
	}
}

func TestUploadTransactionFailed(t *testing.T) {
	cause := models.ModuleError{Section: "marketplace", Name: "StorageRequestExists"}
	f := newUploadFixture(failureStatuses(cause), big.NewRat(1, 1))

	_, err := f.service.Upload(context.Background(), []models.UploadItem{rawItem("a", 'a', 8)})

	var txErr *models.TransactionFailedError
	if !errors.As(err, &txErr) {
		t.Fatalf("expected TransactionFailedError, got %v", err)
	}
	Assert(t, models.LedgerError(cause), txErr.Cause, "incorrect cause")
	if errors.Is(err, models.ErrInsufficientCredits) {
		t.Errorf("transaction failure reported as insufficient credits")
	}
	Assert(t, models.UploadState_Idle, f.service.State(), "pipeline not idle")
	Assert(t, 0, len(f.invalidator.invalidated), "cache invalidated on failure")
	Assert(t, 0, len(f.pending.Pending("alice")), "failed upload tracked as pending")
	Assert(t, 1, f.metricService.count(models.MetricName_UploadTransactionFailed), "transaction failure not counted")
	Assert(t, []string{"Storage request rejected"}, f.notifier.alerts, "rejection not alerted")
}

func TestUploadRejectsWhileBusy(t *testing.T) {
	f := newUploadFixture(successStatuses(), big.NewRat(1, 1))
	var busyErr error
	var busyState models.UploadState
	var addsBefore, addsAfter int
	f.ledger.onSubmit = func() {
		busyState = f.service.State()
		addsBefore = f.store.addCount()
		_, busyErr = f.service.Upload(context.Background(), []models.UploadItem{rawItem("b", 'b', 8)})
		addsAfter = f.store.addCount()
	}

	if _, err := f.service.Upload(context.Background(), []models.UploadItem{rawItem("a", 'a', 8)}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	Assert(t, models.UploadState_Submitting, busyState, "incorrect state while submitting")
	if !errors.Is(busyErr, models.ErrUploadInProgress) {
		t.Errorf("expected ErrUploadInProgress, got %v", busyErr)
	}
	Assert(t, addsBefore, addsAfter, "rejected upload touched the gateway")
	Assert(t, 1, len(f.ledger.submitted), "rejected upload reached the ledger")
	Assert(t, 1, f.metricService.count(models.MetricName_UploadRejectedBusy), "rejection not counted")
	Assert(t, models.UploadState_Idle, f.service.State(), "pipeline not idle")
}

func TestUploadInvalidInput(t *testing.T) {
	tests := map[string]struct {
		items       []models.UploadItem
		expectedErr error
	}{
		"empty batch":  {items: nil, expectedErr: models.ErrEmptyBatch},
		"invalid cid":  {items: []models.UploadItem{{Name: "x", Cid: "not-a-cid"}}, expectedErr: models.ErrInvalidCidEncoding},
		"gateway down": {items: []models.UploadItem{rawItem("a", 'a', 8)}, expectedErr: errFake},
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			f := newUploadFixture(successStatuses(), big.NewRat(1, 1))
			f.store.addErr = errFake
			_, err := f.service.Upload(context.Background(), test.items)
			if !errors.Is(err, test.expectedErr) {
				t.Fatalf("expected %v, got %v", test.expectedErr, err)
			}
			Assert(t, 0, len(f.ledger.submitted), "failed batch reached the ledger")
			Assert(t, models.UploadState_Idle, f.service.State(), "pipeline not idle")
		})
	}
}

func TestUploadFailureKeepsProgress(t *testing.T) {
	tests := map[string]struct {
		failOn           func(f *uploadFixture)
		expectedProgress int
	}{
		"second file fails": {
			failOn: func(f *uploadFixture) {
				f.service.concurrency = 1
				f.store.failOn = "b"
			},
			expectedProgress: 50,
		},
		"ledger rejects batch": {
			failOn:           func(f *uploadFixture) { f.ledger.statuses = failureStatuses(models.OtherError{Message: "rejected"}) },
			expectedProgress: models.MaxUploadProgress,
		},
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			f := newUploadFixture(successStatuses(), big.NewRat(1, 1))
			test.failOn(f)

			if _, err := f.service.Upload(context.Background(), []models.UploadItem{rawItem("a", 'a', 8), rawItem("b", 'b', 8)}); err == nil {
				t.Fatalf("expected upload to fail")
			}

			for i := 1; i < len(f.events); i++ {
				if f.events[i].Progress < f.events[i-1].Progress {
					t.Errorf("progress decreased from %d to %d", f.events[i-1].Progress, f.events[i].Progress)
				}
			}
			last := f.events[len(f.events)-1]
			Assert(t, models.UploadState_Idle, last.State, "job should end idle")
			Assert(t, test.expectedProgress, last.Progress, "terminal event should keep the progress reached")
			if last.Err == nil {
				t.Errorf("terminal event should carry the error")
			}
		})
	}
}
