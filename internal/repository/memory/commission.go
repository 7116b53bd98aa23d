package memory

import (
	"context"
	"sort"
	"time"

	"affiliate-network-backend/internal/domain"
	"affiliate-network-backend/internal/repository"
)

type commissionRepository struct {
	s *state
}

func (r *commissionRepository) RecordTransaction(_ context.Context, txn *domain.Transaction, records []domain.CommissionRecord) ([]domain.CommissionRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, exists := r.s.transactions[txn.ID]; exists {
		return nil, repository.ErrDuplicate
	}
	t := *txn
	r.s.transactions[txn.ID] = &t

	created := make([]domain.CommissionRecord, 0, len(records))
	for _, rec := range records {
		r.s.nextRecordID++
		rec.ID = r.s.nextRecordID
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = txn.RecordedAt
		}
		c := rec
		r.s.records[rec.ID] = &c
		created = append(created, rec)
	}
	return created, nil
}

func (r *commissionRepository) GetTransaction(_ context.Context, id string) (*domain.Transaction, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	t, ok := r.s.transactions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *t
	return &c, nil
}

func (r *commissionRepository) CancelTransaction(_ context.Context, id string, at time.Time) (*domain.CancellationResult, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	t, ok := r.s.transactions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if t.CancelledAt == nil {
		ts := at
		t.CancelledAt = &ts
	}

	records := r.s.sortedRecords()
	before := make(map[int32]domain.Balance)
	for _, rec := range records {
		if rec.TransactionID == id && rec.Status.Open() {
			if _, seen := before[rec.AffiliateID]; !seen {
				before[rec.AffiliateID] = r.s.balance(rec.AffiliateID)
			}
		}
	}

	result := &domain.CancellationResult{TransactionID: id}
	for _, rec := range records {
		if rec.TransactionID != id {
			continue
		}
		switch {
		case rec.Status.Open():
			stored := r.s.records[rec.ID]
			stored.Status = domain.CommissionCancelled
			ts := at
			stored.CancelledAt = &ts
			result.Cancelled = append(result.Cancelled, *stored)
		case rec.Status == domain.CommissionPaid:
			result.Unreversed = append(result.Unreversed, rec)
		}
	}
	result.UncoveredPayouts = domain.UncoveredByCancellation(before, result.Cancelled)
	return result, nil
}

func (r *commissionRepository) ListByAffiliate(_ context.Context, affiliateID int32, status domain.CommissionStatus) ([]domain.CommissionRecord, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var result []domain.CommissionRecord
	for _, rec := range r.s.sortedRecords() {
		if rec.AffiliateID != affiliateID {
			continue
		}
		if status != "" && rec.Status != status {
			continue
		}
		result = append(result, rec)
	}
	return result, nil
}

func (r *commissionRepository) Approve(_ context.Context, ids []int32, at time.Time) ([]domain.CommissionRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var approved []domain.CommissionRecord
	for _, id := range ids {
		rec, ok := r.s.records[id]
		if !ok || rec.Status != domain.CommissionPending {
			continue
		}
		rec.Status = domain.CommissionApproved
		ts := at
		rec.ApprovedAt = &ts
		approved = append(approved, *rec)
	}
	return approved, nil
}

func (r *commissionRepository) ApproveCreatedBefore(_ context.Context, cutoff, at time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var n int64
	for _, rec := range r.s.records {
		if rec.Status == domain.CommissionPending && rec.CreatedAt.Before(cutoff) {
			rec.Status = domain.CommissionApproved
			ts := at
			rec.ApprovedAt = &ts
			n++
		}
	}
	return n, nil
}

// sortedRecords returns copies of every record in FIFO order. Caller holds the lock.
func (s *state) sortedRecords() []domain.CommissionRecord {
	out := make([]domain.CommissionRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	domain.SortFIFO(out)
	return out
}
