// Package autogrant turns approved purchases and successful initiations into
// grant ledger writes, using the role configuration carried on the
// triggering entity.
package autogrant

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/meridian-club/meridian/internal/grants"
	"github.com/meridian-club/meridian/internal/initiations"
	"github.com/meridian-club/meridian/internal/orders"
)

// Ledger is the single write path into the grant ledger.
type Ledger interface {
	Grant(ctx context.Context, userID, subRoleID int64, source grants.SourceRef, via grants.Via, grantedBy *int64) (*grants.Grant, bool, error)
}

// OrderSource reads purchase state. Handlers re-read current state instead
// of trusting whatever was captured when the job was enqueued.
type OrderSource interface {
	Get(ctx context.Context, id int64) (*orders.Order, error)
	GetProduct(ctx context.Context, id int64) (*orders.Product, error)
}

// InitiationSource reads initiation state.
type InitiationSource interface {
	Get(ctx context.Context, id int64) (*initiations.Initiation, error)
}

// RoleFailure records one configured role id that could not be granted.
type RoleFailure struct {
	SubRoleID int64
	Err       error
}

// PartialGrantError aggregates per-role failures from one triggering event.
// Sibling grants in the same batch are still attempted; the error reports
// what was skipped.
type PartialGrantError struct {
	Failures []RoleFailure
}

func (e *PartialGrantError) Error() string {
	parts := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		parts[i] = fmt.Sprintf("sub-role %d: %v", f.SubRoleID, f.Err)
	}
	return "autogrant: partial failure: " + strings.Join(parts, "; ")
}

// Result summarizes one trigger run.
type Result struct {
	Granted []grants.Grant
	Skipped int
}

// Trigger executes the auto-grant workflow.
type Trigger struct {
	ledger      Ledger
	orders      OrderSource
	initiations InitiationSource
	logger      *slog.Logger
}

// NewTrigger constructs a Trigger.
func NewTrigger(ledger Ledger, orderSource OrderSource, initiationSource InitiationSource, logger *slog.Logger) *Trigger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Trigger{ledger: ledger, orders: orderSource, initiations: initiationSource, logger: logger}
}

// OrderApproved grants the product's configured sub-roles to the purchaser.
// Replay-safe: the ledger's idempotency absorbs duplicate deliveries, and an
// order that is no longer approved (stale job) grants nothing.
func (t *Trigger) OrderApproved(ctx context.Context, orderID int64) (Result, error) {
	order, err := t.orders.Get(ctx, orderID)
	if err != nil {
		return Result{}, fmt.Errorf("autogrant: load order %d: %w", orderID, err)
	}
	if order.Status != orders.OrderStatusApproved {
		t.logger.Warn("auto-grant skipped, order not approved",
			slog.Int64("order_id", orderID),
			slog.String("status", string(order.Status)))
		return Result{}, nil
	}

	product, err := t.orders.GetProduct(ctx, order.ProductID)
	if err != nil {
		return Result{}, fmt.Errorf("autogrant: load product %d: %w", order.ProductID, err)
	}
	if len(product.AutoGrantSubRoleIDs) == 0 {
		return Result{}, nil
	}

	return t.grantAll(ctx, order.UserID, product.AutoGrantSubRoleIDs,
		grants.ProductSource(product.ID), grants.ViaProductPurchase, nil)
}

// InitiationFinished grants the configured sub-roles to the candidate when
// the initiation ended in a successful state, recording the conductor as the
// granting actor. Failed initiations grant nothing.
func (t *Trigger) InitiationFinished(ctx context.Context, initiationID int64) (Result, error) {
	init, err := t.initiations.Get(ctx, initiationID)
	if err != nil {
		return Result{}, fmt.Errorf("autogrant: load initiation %d: %w", initiationID, err)
	}
	if !init.Status.Success() {
		t.logger.Warn("auto-grant skipped, initiation not successful",
			slog.Int64("initiation_id", initiationID),
			slog.String("status", string(init.Status)))
		return Result{}, nil
	}
	if len(init.AutoGrantSubRoleIDs) == 0 {
		return Result{}, nil
	}

	conductor := init.ConductedBy
	return t.grantAll(ctx, init.CandidateID, init.AutoGrantSubRoleIDs,
		grants.InitiationSource(init.ID), grants.ViaInitiationCompleted, &conductor)
}

// grantAll attempts every configured role even when earlier ones fail. A
// role id that does not resolve is skipped and reported; it never aborts the
// batch.
func (t *Trigger) grantAll(ctx context.Context, userID int64, roleIDs []int64, source grants.SourceRef, via grants.Via, grantedBy *int64) (Result, error) {
	var (
		result   Result
		failures []RoleFailure
	)
	for _, roleID := range roleIDs {
		grant, created, err := t.ledger.Grant(ctx, userID, roleID, source, via, grantedBy)
		if err != nil {
			t.logger.Error("auto-grant role failed",
				slog.Int64("user_id", userID),
				slog.Int64("sub_role_id", roleID),
				slog.String("via", string(via)),
				slog.Any("error", err))
			failures = append(failures, RoleFailure{SubRoleID: roleID, Err: err})
			continue
		}
		if created {
			result.Granted = append(result.Granted, *grant)
		} else {
			result.Skipped++
		}
	}
	if len(failures) > 0 {
		return result, &PartialGrantError{Failures: failures}
	}
	return result, nil
}
