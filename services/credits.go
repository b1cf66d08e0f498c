package services

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ceramicnetwork/go-registry/models"
)

// CreditsGate refuses spending when the account has no positive balance.
type CreditsGate struct {
	oracle        models.CreditsOracle
	logger        models.Logger
	metricService models.MetricService
}

func NewCreditsGate(oracle models.CreditsOracle, logger models.Logger, metricService models.MetricService) *CreditsGate {
	return &CreditsGate{oracle, logger, metricService}
}

// CheckBalance returns the current balance, or nil if the account has never held credits.
func (c CreditsGate) CheckBalance(ctx context.Context) (*big.Rat, error) {
	ctx, cancel := context.WithTimeout(ctx, models.CreditsQueryTimeout)
	defer cancel()

	balance, err := c.oracle.Balance(ctx)
	if err != nil {
		return nil, fmt.Errorf("credits: balance query failed: %w", err)
	}
	return balance, nil
}

func (c CreditsGate) EnsureSpendable(ctx context.Context) error {
	balance, err := c.CheckBalance(ctx)
	if err != nil {
		return err
	}
	if (balance == nil) || (balance.Sign() <= 0) {
		c.logger.Warnf("credits: no spendable balance (%v)", balance)
		c.metricService.Count(ctx, models.MetricName_CreditsRejected, 1)
		return models.ErrInsufficientCredits
	}
	return nil
}
