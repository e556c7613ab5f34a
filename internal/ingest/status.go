package ingest

import (
	"context"
	"fmt"
)

// Promoter moves active offers to their completed statuses.
type Promoter interface {
	PromoteGoalCompleted(ctx context.Context, connectionID int64) (int64, error)
	PromoteBudgetCompleted(ctx context.Context, connectionID int64) (int64, error)
}

// PromoteResult counts the offers moved by one status pass.
type PromoteResult struct {
	GoalCompleted   int64 `json:"goalCompleted"`
	BudgetCompleted int64 `json:"budgetCompleted"`
}

// StatusUpdater promotes offers whose goal or budget is reached.
type StatusUpdater struct {
	store Promoter
}

// NewStatusUpdater creates a StatusUpdater.
func NewStatusUpdater(store Promoter) *StatusUpdater {
	return &StatusUpdater{store: store}
}

// Update runs the goal pass then the budget pass. A zero connectionID covers
// every connection. Running it twice in a row changes nothing the second time.
func (u *StatusUpdater) Update(ctx context.Context, connectionID int64) (PromoteResult, error) {
	var res PromoteResult
	n, err := u.store.PromoteGoalCompleted(ctx, connectionID)
	if err != nil {
		return res, fmt.Errorf("promote goal completed: %w", err)
	}
	res.GoalCompleted = n

	n, err = u.store.PromoteBudgetCompleted(ctx, connectionID)
	if err != nil {
		return res, fmt.Errorf("promote budget completed: %w", err)
	}
	res.BudgetCompleted = n
	return res, nil
}
