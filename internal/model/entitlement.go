package model

import (
	"time"
)

type InstanceStatus string

const (
	InstanceActive   InstanceStatus = "active"
	InstanceUpgraded InstanceStatus = "upgraded"
	InstanceRenewed  InstanceStatus = "renewed"
	InstanceExpired  InstanceStatus = "expired"
)

type QuotaEntry struct {
	ListingType string `json:"listing_type"`
	Limit       int    `json:"limit"`
	Used        int    `json:"used"`
}

// TransferredListing 升级时从该实例迁出的房源记录
type TransferredListing struct {
	ListingID      int64     `json:"listing_id"`
	Title          string    `json:"title"`
	FromInstanceID string    `json:"from_instance_id"`
	ToInstanceID   string    `json:"to_instance_id"`
	FromPlanName   string    `json:"from_plan_name"`
	ToPlanName     string    `json:"to_plan_name"`
	TransferredAt  time.Time `json:"transferred_at"`
}

// EntitlementInstance 一次购买对应的套餐快照，按值传递，不原地修改
type EntitlementInstance struct {
	InstanceID          string               `json:"instance_id"`
	PlanID              int64                `json:"plan_id"`
	PlanName            string               `json:"plan_name"`
	PlanKind            PlanKind             `json:"plan_kind"`
	GrantsLandlord      bool                 `json:"grants_landlord"`
	OrderID             string               `json:"order_id,omitempty"`
	PurchaseDate        time.Time            `json:"purchase_date"`
	ExpiryDate          *time.Time           `json:"expiry_date,omitempty"`
	IsActive            bool                 `json:"is_active"`
	Status              InstanceStatus       `json:"status"`
	FreePushCount       int                  `json:"free_push_count"`
	Quotas              []QuotaEntry         `json:"quotas"`
	TransferredListings []TransferredListing `json:"transferred_listings,omitempty"`
}

// MintInstance 根据套餐生成新的实例，used 全部为 0
func MintInstance(plan *PackagePlan, orderID, instanceID string, purchase time.Time, expiry *time.Time) EntitlementInstance {
	quotas := make([]QuotaEntry, 0, len(plan.Quotas.Data()))
	for _, q := range plan.Quotas.Data() {
		quotas = append(quotas, QuotaEntry{ListingType: q.ListingType, Limit: q.Limit})
	}
	return EntitlementInstance{
		InstanceID:     instanceID,
		PlanID:         plan.ID,
		PlanName:       plan.Name,
		PlanKind:       plan.Kind,
		GrantsLandlord: plan.GrantsLandlord,
		OrderID:        orderID,
		PurchaseDate:   purchase,
		ExpiryDate:     expiry,
		IsActive:       true,
		Status:         InstanceActive,
		FreePushCount:  plan.FreePushCount,
		Quotas:         quotas,
	}
}

func (e EntitlementInstance) Clone() EntitlementInstance {
	out := e
	if e.ExpiryDate != nil {
		exp := *e.ExpiryDate
		out.ExpiryDate = &exp
	}
	out.Quotas = append([]QuotaEntry(nil), e.Quotas...)
	out.TransferredListings = append([]TransferredListing(nil), e.TransferredListings...)
	return out
}

// Live 实例仍处于有效期内
func (e EntitlementInstance) Live(now time.Time) bool {
	return e.IsActive && (e.ExpiryDate == nil || !now.After(*e.ExpiryDate))
}

// Due 实例仍标记为有效但已过期，等待过期处理
func (e EntitlementInstance) Due(now time.Time) bool {
	return e.IsActive && e.ExpiryDate != nil && now.After(*e.ExpiryDate)
}

// Expire 配额 limit 清零（保留 used 作为历史），免费推送清零
func (e EntitlementInstance) Expire() EntitlementInstance {
	out := e.Clone()
	for i := range out.Quotas {
		out.Quotas[i].Limit = 0
	}
	out.FreePushCount = 0
	out.IsActive = false
	out.Status = InstanceExpired
	return out
}

func (e EntitlementInstance) Quota(listingType string) (QuotaEntry, bool) {
	for _, q := range e.Quotas {
		if q.ListingType == listingType {
			return q, true
		}
	}
	return QuotaEntry{}, false
}

func (e EntitlementInstance) Remaining(listingType string) int {
	q, ok := e.Quota(listingType)
	if !ok || q.Used >= q.Limit {
		return 0
	}
	return q.Limit - q.Used
}

// WithUsed 调整某类型的 used，结果不小于 0
func (e EntitlementInstance) WithUsed(listingType string, delta int) EntitlementInstance {
	out := e.Clone()
	for i := range out.Quotas {
		if out.Quotas[i].ListingType == listingType {
			out.Quotas[i].Used += delta
			if out.Quotas[i].Used < 0 {
				out.Quotas[i].Used = 0
			}
		}
	}
	return out
}

// WithUsage 用实际计数覆盖 used
func (e EntitlementInstance) WithUsage(counts map[string]int) EntitlementInstance {
	out := e.Clone()
	for i := range out.Quotas {
		out.Quotas[i].Used = counts[out.Quotas[i].ListingType]
	}
	return out
}

func (e EntitlementInstance) WithTransfer(t TransferredListing) EntitlementInstance {
	out := e.Clone()
	out.TransferredListings = append(out.TransferredListings, t)
	return out
}

// Entitlements 用户当前套餐与历史套餐
type Entitlements struct {
	Current *EntitlementInstance
	History []EntitlementInstance
}

func (s Entitlements) Clone() Entitlements {
	out := Entitlements{History: make([]EntitlementInstance, 0, len(s.History))}
	if s.Current != nil {
		cur := s.Current.Clone()
		out.Current = &cur
	}
	for _, h := range s.History {
		out.History = append(out.History, h.Clone())
	}
	return out
}

// Archive 将当前实例移入历史。已失效的实例保留原状态；
// keepActive 为 true 时实例在到期前继续有效（升级场景）
func (s Entitlements) Archive(status InstanceStatus, keepActive bool) Entitlements {
	out := s.Clone()
	if out.Current == nil {
		return out
	}
	prev := *out.Current
	if prev.Status == InstanceActive {
		prev.Status = status
		prev.IsActive = prev.IsActive && keepActive
	}
	out.History = append(out.History, prev)
	out.Current = nil
	return out
}

func (s Entitlements) WithCurrent(inst EntitlementInstance) Entitlements {
	out := s.Clone()
	cur := inst.Clone()
	out.Current = &cur
	return out
}

// Find 按实例 ID 查找，当前实例优先
func (s Entitlements) Find(instanceID string) (EntitlementInstance, bool) {
	if instanceID == "" {
		return EntitlementInstance{}, false
	}
	if s.Current != nil && s.Current.InstanceID == instanceID {
		return s.Current.Clone(), true
	}
	for i := len(s.History) - 1; i >= 0; i-- {
		if s.History[i].InstanceID == instanceID {
			return s.History[i].Clone(), true
		}
	}
	return EntitlementInstance{}, false
}

// UpdateInstance 按实例 ID 替换，未找到时返回 false
func (s Entitlements) UpdateInstance(inst EntitlementInstance) (Entitlements, bool) {
	out := s.Clone()
	if out.Current != nil && out.Current.InstanceID == inst.InstanceID {
		cur := inst.Clone()
		out.Current = &cur
		return out, true
	}
	for i := len(out.History) - 1; i >= 0; i-- {
		if out.History[i].InstanceID == inst.InstanceID {
			out.History[i] = inst.Clone()
			return out, true
		}
	}
	return out, false
}

// FindByOrder 查找由该订单生成的实例
func (s Entitlements) FindByOrder(orderID string) (EntitlementInstance, bool) {
	if orderID == "" {
		return EntitlementInstance{}, false
	}
	if s.Current != nil && s.Current.OrderID == orderID {
		return s.Current.Clone(), true
	}
	for i := len(s.History) - 1; i >= 0; i-- {
		if s.History[i].OrderID == orderID {
			return s.History[i].Clone(), true
		}
	}
	return EntitlementInstance{}, false
}

// LatestOfPlan 与给定套餐相同的最近一个实例（当前实例优先，其次最新的历史）
func (s Entitlements) LatestOfPlan(planID int64) (EntitlementInstance, bool) {
	if s.Current != nil && s.Current.PlanID == planID {
		return s.Current.Clone(), true
	}
	for i := len(s.History) - 1; i >= 0; i-- {
		if s.History[i].PlanID == planID {
			return s.History[i].Clone(), true
		}
	}
	return EntitlementInstance{}, false
}

// PrecedingOfPlan 在给定实例之前归档的同套餐实例，即续费时被取代的那一个
func (s Entitlements) PrecedingOfPlan(instanceID string, planID int64) (EntitlementInstance, bool) {
	end := -1
	if s.Current != nil && s.Current.InstanceID == instanceID {
		end = len(s.History)
	} else {
		for i := range s.History {
			if s.History[i].InstanceID == instanceID {
				end = i
				break
			}
		}
	}
	for i := end - 1; i >= 0; i-- {
		if s.History[i].PlanID == planID {
			return s.History[i].Clone(), true
		}
	}
	return EntitlementInstance{}, false
}

// ExpireDue 处理所有到期实例，返回新快照和被过期的实例
func (s Entitlements) ExpireDue(now time.Time) (Entitlements, []EntitlementInstance) {
	out := s.Clone()
	var expired []EntitlementInstance
	if out.Current != nil && out.Current.Due(now) {
		e := out.Current.Expire()
		out.Current = &e
		expired = append(expired, e)
	}
	for i := range out.History {
		if out.History[i].Due(now) {
			out.History[i] = out.History[i].Expire()
			expired = append(expired, out.History[i])
		}
	}
	return out, expired
}

// HasLiveLandlordGrant 当前或历史中是否仍有有效的房东权限实例
func (s Entitlements) HasLiveLandlordGrant(now time.Time) bool {
	if s.Current != nil && s.Current.GrantsLandlord && s.Current.Live(now) {
		return true
	}
	for _, h := range s.History {
		if h.GrantsLandlord && h.Live(now) {
			return true
		}
	}
	return false
}

// HasTrial 是否曾经持有试用套餐
func (s Entitlements) HasTrial() bool {
	if s.Current != nil && s.Current.PlanKind == PlanKindTrial {
		return true
	}
	for _, h := range s.History {
		if h.PlanKind == PlanKindTrial {
			return true
		}
	}
	return false
}

// LiveInstances 当前与历史中仍有效的实例 ID
func (s Entitlements) LiveInstances(now time.Time) map[string]bool {
	live := make(map[string]bool)
	if s.Current != nil && s.Current.Live(now) {
		live[s.Current.InstanceID] = true
	}
	for _, h := range s.History {
		if h.Live(now) {
			live[h.InstanceID] = true
		}
	}
	return live
}

// NextExpiry 所有有效实例中最早的到期时间
func (s Entitlements) NextExpiry() *time.Time {
	var next *time.Time
	consider := func(e EntitlementInstance) {
		if !e.IsActive || e.ExpiryDate == nil {
			return
		}
		if next == nil || e.ExpiryDate.Before(*next) {
			t := *e.ExpiryDate
			next = &t
		}
	}
	if s.Current != nil {
		consider(*s.Current)
	}
	for _, h := range s.History {
		consider(h)
	}
	return next
}

// HasPackage 当前实例是否有效
func (s Entitlements) HasPackage(now time.Time) bool {
	return s.Current != nil && s.Current.Live(now)
}
