package services

import (
	"context"

	"github.com/ceramicnetwork/go-registry/models"
)

// awaitTransaction consumes statuses until the extrinsic's outcome is known. Success is only reported once the
// ExtrinsicSuccess system event is seen in an included block.
func awaitTransaction(ctx context.Context, statuses <-chan models.TxStatus) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case status, ok := <-statuses:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return &models.TransactionFailedError{Cause: models.OtherError{Message: "subscription closed without an outcome"}}
			}
			if status.Err != nil {
				return status.Err
			}
			switch status.Kind {
			case models.TxStatus_InBlock, models.TxStatus_Finalized:
				if done, err := extrinsicOutcome(status.Events); done {
					return err
				}
			case models.TxStatus_Dropped, models.TxStatus_Invalid:
				return &models.TransactionFailedError{Cause: models.OtherError{Message: "transaction " + string(status.Kind)}}
			}
		}
	}
}

func extrinsicOutcome(events []models.LedgerEvent) (bool, error) {
	for _, event := range events {
		if event.Section != models.EventSection_System {
			continue
		}
		switch event.Method {
		case models.EventMethod_ExtrinsicSuccess:
			return true, nil
		case models.EventMethod_ExtrinsicFailed:
			cause := event.Err
			if cause == nil {
				cause = models.OtherError{Message: "extrinsic failed"}
			}
			return true, &models.TransactionFailedError{Cause: cause}
		}
	}
	return false, nil
}
