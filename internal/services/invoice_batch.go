package services

import (
	"context"
	"fmt"

	"github.com/diewo77/maritime-billing/internal/billing"
	"github.com/diewo77/maritime-billing/validation"
)

// BatchFailure reports one id a batch operation could not apply.
type BatchFailure struct {
	ID  uint
	Err error
}

// BatchResult counts the invoices actually changed and lists the failures.
// Ids already in the requested state are neither affected nor failed.
// Pending holds the ids never attempted because ctx ended first.
type BatchResult struct {
	Affected int
	Failures []BatchFailure
	Pending  []uint
}

// BatchChangeStatus applies ChangeStatus to every id in order, continuing
// past failures.
func (s *InvoiceService) BatchChangeStatus(ctx context.Context, actor uint, ids []uint, to billing.Status, comment string) (BatchResult, error) {
	v := make(validation.Violations)
	if !to.Valid() {
		v.Add("status", "invalid")
	}
	validation.MaxLen("comment", comment, MaxCommentLength, v)
	return s.batch(ctx, ids, v, func(id uint) (bool, error) {
		return s.changeStatus(ctx, actor, id, to, comment)
	})
}

// BatchDelete soft-deletes every id in order, continuing past failures.
func (s *InvoiceService) BatchDelete(ctx context.Context, actor uint, ids []uint) (BatchResult, error) {
	return s.batch(ctx, ids, make(validation.Violations), func(id uint) (bool, error) {
		return s.delete(ctx, actor, id)
	})
}

// batch applies ids in order. When ctx ends mid-way it returns the result so
// far, with the remaining ids in Pending, together with the ctx error; every
// id already applied stays committed.
func (s *InvoiceService) batch(ctx context.Context, ids []uint, v validation.Violations, apply func(uint) (bool, error)) (BatchResult, error) {
	switch {
	case len(ids) == 0:
		v.Add("ids", "required")
	case len(ids) > MaxBatchSize:
		v.Add("ids", "too_many")
	}
	if err := billing.NewValidationError(v); err != nil {
		return BatchResult{}, err
	}
	var res BatchResult
	seen := make(map[uint]bool, len(ids))
	for i, id := range ids {
		if seen[id] {
			continue
		}
		if err := ctx.Err(); err != nil {
			res.Pending = pendingIDs(ids[i:], seen)
			s.log.Warn().Int("affected", res.Affected).Int("pending", len(res.Pending)).
				Err(err).Msg("invoice batch interrupted")
			return res, fmt.Errorf("batch interrupted with %d ids pending: %w", len(res.Pending), err)
		}
		seen[id] = true
		changed, err := apply(id)
		if err != nil {
			res.Failures = append(res.Failures, BatchFailure{ID: id, Err: err})
			continue
		}
		if changed {
			res.Affected++
		}
	}
	if err := ctx.Err(); err != nil {
		return res, fmt.Errorf("batch interrupted on its last id: %w", err)
	}
	s.log.Info().Int("requested", len(seen)).Int("affected", res.Affected).
		Int("failed", len(res.Failures)).Msg("invoice batch done")
	return res, nil
}

func pendingIDs(rest []uint, seen map[uint]bool) []uint {
	out := make([]uint, 0, len(rest))
	for _, id := range rest {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
