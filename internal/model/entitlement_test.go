package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

var baseTime = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

func testPlan() *PackagePlan {
	return &PackagePlan{
		ID:             3,
		Name:           "Premium",
		Kind:           PlanKindPremium,
		Price:          500000,
		Duration:       1,
		DurationUnit:   DurationMonth,
		FreePushCount:  5,
		GrantsLandlord: true,
		Quotas: datatypes.NewJSONType([]PlanQuota{
			{ListingType: "vip", Limit: 3},
			{ListingType: "normal", Limit: 10},
		}),
	}
}

func TestMintInstance(t *testing.T) {
	exp := baseTime.AddDate(0, 1, 0)
	inst := MintInstance(testPlan(), "order-1", "inst-1", baseTime, &exp)

	assert.Equal(t, "inst-1", inst.InstanceID)
	assert.Equal(t, InstanceActive, inst.Status)
	assert.True(t, inst.IsActive)
	assert.True(t, inst.GrantsLandlord)
	assert.Equal(t, 5, inst.FreePushCount)
	require.Len(t, inst.Quotas, 2)
	assert.Equal(t, QuotaEntry{ListingType: "vip", Limit: 3}, inst.Quotas[0])
	assert.Equal(t, 3, inst.Remaining("vip"))
	assert.Equal(t, 0, inst.Remaining("unknown"))
}

func TestEntitlementInstance_LiveAndDue(t *testing.T) {
	exp := baseTime.Add(time.Hour)
	inst := MintInstance(testPlan(), "", "i", baseTime, &exp)

	assert.True(t, inst.Live(baseTime))
	assert.True(t, inst.Live(exp))
	assert.False(t, inst.Due(exp))
	assert.True(t, inst.Due(exp.Add(time.Second)))
	assert.False(t, inst.Live(exp.Add(time.Second)))

	forever := MintInstance(testPlan(), "", "f", baseTime, nil)
	assert.True(t, forever.Live(baseTime.AddDate(10, 0, 0)))
	assert.False(t, forever.Due(baseTime.AddDate(10, 0, 0)))
}

func TestEntitlementInstance_ExpireZeroesLimits(t *testing.T) {
	exp := baseTime.Add(time.Hour)
	inst := MintInstance(testPlan(), "", "i", baseTime, &exp).WithUsed("vip", 2)

	expired := inst.Expire()

	assert.False(t, expired.IsActive)
	assert.Equal(t, InstanceExpired, expired.Status)
	assert.Equal(t, 0, expired.FreePushCount)
	for _, q := range expired.Quotas {
		assert.Equal(t, 0, q.Limit)
	}
	q, _ := expired.Quota("vip")
	assert.Equal(t, 2, q.Used)
	assert.Equal(t, exp, *expired.ExpiryDate)

	// 原值不受影响
	assert.True(t, inst.IsActive)
	assert.Equal(t, 3, inst.Quotas[0].Limit)
}

func TestEntitlementInstance_WithUsedClamps(t *testing.T) {
	inst := MintInstance(testPlan(), "", "i", baseTime, nil).WithUsed("vip", -4)
	q, _ := inst.Quota("vip")
	assert.Equal(t, 0, q.Used)
}

func TestEntitlements_ArchiveUpgradeKeepsActive(t *testing.T) {
	exp := baseTime.AddDate(0, 1, 0)
	cur := MintInstance(testPlan(), "", "old", baseTime, &exp)
	s := Entitlements{}.WithCurrent(cur)

	archived := s.Archive(InstanceUpgraded, true)

	assert.Nil(t, archived.Current)
	require.Len(t, archived.History, 1)
	assert.Equal(t, InstanceUpgraded, archived.History[0].Status)
	assert.True(t, archived.History[0].IsActive)

	// 原快照未被修改
	require.NotNil(t, s.Current)
	assert.Equal(t, InstanceActive, s.Current.Status)
}

func TestEntitlements_ArchiveRenewDeactivates(t *testing.T) {
	cur := MintInstance(testPlan(), "", "old", baseTime, nil)
	archived := Entitlements{}.WithCurrent(cur).Archive(InstanceRenewed, false)

	require.Len(t, archived.History, 1)
	assert.Equal(t, InstanceRenewed, archived.History[0].Status)
	assert.False(t, archived.History[0].IsActive)
}

func TestEntitlements_ArchiveKeepsExpiredStatus(t *testing.T) {
	cur := MintInstance(testPlan(), "", "old", baseTime, nil).Expire()
	archived := Entitlements{}.WithCurrent(cur).Archive(InstanceUpgraded, true)

	require.Len(t, archived.History, 1)
	assert.Equal(t, InstanceExpired, archived.History[0].Status)
	assert.False(t, archived.History[0].IsActive)
}

func TestEntitlements_FindAndUpdate(t *testing.T) {
	a := MintInstance(testPlan(), "", "a", baseTime, nil)
	b := MintInstance(testPlan(), "", "b", baseTime, nil)
	s := Entitlements{}.WithCurrent(a).Archive(InstanceUpgraded, true).WithCurrent(b)

	found, ok := s.Find("a")
	require.True(t, ok)
	assert.Equal(t, InstanceUpgraded, found.Status)

	updated, ok := s.UpdateInstance(found.WithTransfer(TransferredListing{ListingID: 7, FromInstanceID: "a", ToInstanceID: "b"}))
	require.True(t, ok)
	h, _ := updated.Find("a")
	require.Len(t, h.TransferredListings, 1)
	assert.Empty(t, updated.Current.TransferredListings)

	_, ok = s.UpdateInstance(MintInstance(testPlan(), "", "zzz", baseTime, nil))
	assert.False(t, ok)
}

func TestEntitlements_ExpireDue(t *testing.T) {
	soon := baseTime.Add(time.Hour)
	later := baseTime.AddDate(0, 1, 0)
	old := MintInstance(testPlan(), "", "old", baseTime, &soon)
	cur := MintInstance(testPlan(), "", "cur", baseTime, &later)
	s := Entitlements{}.WithCurrent(old).Archive(InstanceUpgraded, true).WithCurrent(cur)

	assert.Equal(t, soon, *s.NextExpiry())

	next, expired := s.ExpireDue(soon.Add(time.Minute))
	require.Len(t, expired, 1)
	assert.Equal(t, "old", expired[0].InstanceID)
	assert.True(t, next.Current.IsActive)
	assert.Equal(t, later, *next.NextExpiry())
	assert.True(t, next.HasLiveLandlordGrant(soon.Add(time.Minute)))

	final, expired := next.ExpireDue(later.Add(time.Minute))
	require.Len(t, expired, 1)
	assert.Nil(t, final.NextExpiry())
	assert.False(t, final.HasLiveLandlordGrant(later.Add(time.Minute)))
	assert.False(t, final.HasPackage(later.Add(time.Minute)))
}

func TestEntitlements_LatestOfPlanAndTrial(t *testing.T) {
	trial := &PackagePlan{ID: 1, Name: "Trial", Kind: PlanKindTrial}
	s := Entitlements{}.WithCurrent(MintInstance(trial, "", "t", baseTime, nil)).
		Archive(InstanceUpgraded, false).
		WithCurrent(MintInstance(testPlan(), "", "p", baseTime, nil))

	assert.True(t, s.HasTrial())
	inst, ok := s.LatestOfPlan(1)
	require.True(t, ok)
	assert.Equal(t, "t", inst.InstanceID)
	inst, ok = s.LatestOfPlan(3)
	require.True(t, ok)
	assert.Equal(t, "p", inst.InstanceID)
	_, ok = s.LatestOfPlan(99)
	assert.False(t, ok)
}

func TestEntitlements_PrecedingOfPlan(t *testing.T) {
	other := &PackagePlan{ID: 7, Name: "Basic"}
	s := Entitlements{}.WithCurrent(MintInstance(testPlan(), "", "a", baseTime, nil)).
		Archive(InstanceRenewed, true).
		WithCurrent(MintInstance(other, "", "x", baseTime, nil)).
		Archive(InstanceUpgraded, true).
		WithCurrent(MintInstance(testPlan(), "", "b", baseTime, nil))

	inst, ok := s.PrecedingOfPlan("b", testPlan().ID)
	require.True(t, ok)
	assert.Equal(t, "a", inst.InstanceID)

	s = s.Archive(InstanceUpgraded, true).WithCurrent(MintInstance(other, "", "y", baseTime, nil))
	inst, ok = s.PrecedingOfPlan("b", testPlan().ID)
	require.True(t, ok)
	assert.Equal(t, "a", inst.InstanceID)

	_, ok = s.PrecedingOfPlan("a", testPlan().ID)
	assert.False(t, ok)
	_, ok = s.PrecedingOfPlan("missing", testPlan().ID)
	assert.False(t, ok)
}

func TestEntitlements_FindByOrder(t *testing.T) {
	s := Entitlements{}.WithCurrent(MintInstance(testPlan(), "order-a", "a", baseTime, nil)).
		Archive(InstanceUpgraded, true).
		WithCurrent(MintInstance(testPlan(), "order-b", "b", baseTime, nil))

	inst, ok := s.FindByOrder("order-a")
	require.True(t, ok)
	assert.Equal(t, "a", inst.InstanceID)
	inst, ok = s.FindByOrder("order-b")
	require.True(t, ok)
	assert.Equal(t, "b", inst.InstanceID)
	_, ok = s.FindByOrder("")
	assert.False(t, ok)
}

func TestOrderSuffix(t *testing.T) {
	assert.Equal(t, "ABC123", OrderSuffix("0f8e7d6c-aaaa-bbbb-cccc-dddddabc123"))
	assert.Equal(t, "AB", OrderSuffix("ab"))
}

func TestAddDuration(t *testing.T) {
	assert.Equal(t, baseTime.AddDate(0, 3, 0), AddDuration(baseTime, 3, DurationMonth))
	assert.Equal(t, baseTime.AddDate(1, 0, 0), AddDuration(baseTime, 1, DurationYear))
	assert.Equal(t, baseTime.AddDate(0, 0, 7), AddDuration(baseTime, 7, DurationDay))
}
