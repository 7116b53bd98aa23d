package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func openRecords() []CommissionRecord {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return []CommissionRecord{
		{ID: 3, Amount: dec("30"), Status: CommissionPending, CreatedAt: base.Add(2 * time.Hour)},
		{ID: 1, Amount: dec("10"), Status: CommissionApproved, CreatedAt: base},
		{ID: 2, Amount: dec("20"), Status: CommissionPending, CreatedAt: base.Add(time.Hour)},
	}
}

func TestAllocatePayout(t *testing.T) {
	t.Run("Exact match settles oldest first", func(t *testing.T) {
		settled, remaining := AllocatePayout(openRecords(), dec("30"))
		assert.Equal(t, []int32{1, 2}, settled)
		assert.True(t, remaining.IsZero())
	})

	t.Run("Partial amount leaves credit", func(t *testing.T) {
		settled, remaining := AllocatePayout(openRecords(), dec("25"))
		assert.Equal(t, []int32{1}, settled)
		assert.True(t, dec("15").Equal(remaining))
	})

	t.Run("Stops at first record that does not fit", func(t *testing.T) {
		recs := openRecords()
		recs[1].Amount = dec("50") // oldest no longer fits
		settled, remaining := AllocatePayout(recs, dec("40"))
		assert.Empty(t, settled)
		assert.True(t, dec("40").Equal(remaining))
	})

	t.Run("Ignores closed records", func(t *testing.T) {
		recs := openRecords()
		recs[1].Status = CommissionPaid
		settled, _ := AllocatePayout(recs, dec("20"))
		assert.Equal(t, []int32{2}, settled)
	})
}

func TestComputeBalance(t *testing.T) {
	t.Run("No payouts", func(t *testing.T) {
		b := ComputeBalance(1, openRecords(), dec("0"), dec("0"))
		assert.True(t, dec("50").Equal(b.Pending))
		assert.True(t, dec("10").Equal(b.Approved))
		assert.True(t, dec("60").Equal(b.Available))
		assert.True(t, b.UnallocatedCredit.IsZero())
	})

	t.Run("Unallocated credit reduces available", func(t *testing.T) {
		// 45 paid out, 10 of it matched by a paid record: 35 credit outstanding.
		b := ComputeBalance(1, openRecords()[0:1], dec("45"), dec("10"))
		assert.True(t, dec("35").Equal(b.UnallocatedCredit))
		assert.True(t, dec("0").Equal(b.Available))
	})

	t.Run("Available never negative", func(t *testing.T) {
		b := ComputeBalance(1, nil, dec("5"), dec("0"))
		assert.True(t, b.Available.IsZero())
	})
}

func TestUncoveredByCancellation(t *testing.T) {
	pending := func(affiliate int32, amount string) CommissionRecord {
		return CommissionRecord{AffiliateID: affiliate, Amount: dec(amount), Status: CommissionPending}
	}

	t.Run("Credit backed only by the cancelled record", func(t *testing.T) {
		before := map[int32]Balance{2: ComputeBalance(2, []CommissionRecord{pending(2, "150")}, dec("100"), dec("0"))}
		uncovered := UncoveredByCancellation(before, []CommissionRecord{pending(2, "150")})
		if assert.Len(t, uncovered, 1) {
			assert.Equal(t, int32(2), uncovered[0].AffiliateID)
			assert.True(t, dec("100").Equal(uncovered[0].Amount))
		}
	})

	t.Run("Other open records still cover the credit", func(t *testing.T) {
		open := []CommissionRecord{pending(2, "150"), pending(2, "200")}
		before := map[int32]Balance{2: ComputeBalance(2, open, dec("100"), dec("0"))}
		assert.Empty(t, UncoveredByCancellation(before, open[:1]))
	})

	t.Run("Partially covered", func(t *testing.T) {
		open := []CommissionRecord{pending(2, "150"), pending(2, "40")}
		before := map[int32]Balance{2: ComputeBalance(2, open, dec("100"), dec("0"))}
		uncovered := UncoveredByCancellation(before, open[:1])
		if assert.Len(t, uncovered, 1) {
			assert.True(t, dec("60").Equal(uncovered[0].Amount))
		}
	})

	t.Run("Existing shortfall is not reported twice", func(t *testing.T) {
		open := []CommissionRecord{pending(2, "30")}
		before := map[int32]Balance{2: ComputeBalance(2, open, dec("100"), dec("0"))}
		assert.True(t, dec("70").Equal(before[2].Shortfall()))
		uncovered := UncoveredByCancellation(before, open)
		if assert.Len(t, uncovered, 1) {
			assert.True(t, dec("30").Equal(uncovered[0].Amount))
		}
	})

	t.Run("No payouts", func(t *testing.T) {
		before := map[int32]Balance{2: ComputeBalance(2, []CommissionRecord{pending(2, "150")}, dec("0"), dec("0"))}
		assert.Empty(t, UncoveredByCancellation(before, []CommissionRecord{pending(2, "150")}))
	})
}

func TestEmailReferral_IsLive(t *testing.T) {
	now := time.Now()
	inv := &EmailReferral{Status: InviteInvited, ExpiresAt: now.Add(time.Hour)}
	assert.True(t, inv.IsLive(now))

	inv.Status = InviteConfirmed
	assert.True(t, inv.IsLive(now))

	assert.False(t, inv.IsLive(now.Add(2*time.Hour)))

	inv.Status = InviteConverted
	assert.False(t, inv.IsLive(now))
}

func TestRole_Can(t *testing.T) {
	assert.True(t, RoleAdmin.Can(CapProcessPayouts))
	assert.False(t, RoleAffiliate.Can(CapProcessPayouts))
	assert.True(t, RoleCoordinator.Can(CapViewNetwork))
	assert.False(t, RoleClient.Can(CapInvite))

	c, ok := OpProcessPayout.RequiredCapability()
	assert.True(t, ok)
	assert.Equal(t, CapProcessPayouts, c)

	_, ok = OpRegister.RequiredCapability()
	assert.False(t, ok)
}
