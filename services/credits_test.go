package services

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ceramicnetwork/go-registry/common/loggers"
	"github.com/ceramicnetwork/go-registry/models"
)

func TestEnsureSpendable(t *testing.T) {
	tests := map[string]struct {
		oracle          *FakeCreditsOracle
		expectedErr     error
		expectedRejects int
	}{
		"positive balance": {
			oracle: &FakeCreditsOracle{balance: big.NewRat(1, 1000)},
		},
		"zero balance": {
			oracle:          &FakeCreditsOracle{balance: new(big.Rat)},
			expectedErr:     models.ErrInsufficientCredits,
			expectedRejects: 1,
		},
		"negative balance": {
			oracle:          &FakeCreditsOracle{balance: big.NewRat(-5, 1)},
			expectedErr:     models.ErrInsufficientCredits,
			expectedRejects: 1,
		},
		"no balance record": {
			oracle:          &FakeCreditsOracle{},
			expectedErr:     models.ErrInsufficientCredits,
			expectedRejects: 1,
		},
		"oracle failure": {
			oracle:      &FakeCreditsOracle{err: errFake},
			expectedErr: errFake,
		},
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			metricService := &MockMetricService{}
			gate := NewCreditsGate(test.oracle, loggers.NewTestLogger(), metricService)
			err := gate.EnsureSpendable(context.Background())
			if test.expectedErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
			} else if !errors.Is(err, test.expectedErr) {
				t.Fatalf("expected %v, got %v", test.expectedErr, err)
			}
			if errors.Is(err, errFake) && errors.Is(err, models.ErrInsufficientCredits) {
				t.Errorf("oracle failure reported as insufficient credits")
			}
			Assert(t, test.expectedRejects, metricService.count(models.MetricName_CreditsRejected), "incorrect rejection count")
		})
	}
}
