// Package tenant implements the Tenant/Quota Engine: tenant lifecycle,
// pricing-tier-derived settings, and usage-counter quota enforcement.
package tenant

import "time"

// Status is a tenant's lifecycle state.
type Status string

const (
	Active    Status = "active"
	Suspended Status = "suspended"
	Trial     Status = "trial"
	Cancelled Status = "cancelled"
)

// Tier is a SaaS pricing tier. EnterpriseCustom collapses what are
// elsewhere modeled as separate Enterprise and Custom tiers into one,
// since both carry the same unlimited settings.
type Tier string

const (
	Free             Tier = "free"
	Starter          Tier = "starter"
	Professional     Tier = "professional"
	EnterpriseCustom Tier = "enterprise_custom"
)

// Settings is the per-tenant configuration ceiling derived from Tier.
type Settings struct {
	MaxCampaigns        uint32
	MaxUsers            uint32
	MaxOffersPerHour    uint64
	MaxAPICallsPerDay   uint64
	FeaturesEnabled     []string
	CustomDomain        string
	DataRetentionDays   uint32
}

// Usage is the real-time usage counters for a tenant.
type Usage struct {
	CampaignsActive   uint32
	UsersCount        uint32
	OffersServedToday uint64
	APICallsToday     uint64
	StorageBytes      uint64
	LastReset         time.Time
}

// Tenant is a single tenant in the platform.
type Tenant struct {
	ID          string
	Name        string
	Slug        string
	Status      Status
	PricingTier Tier
	OwnerID     string
	Settings    Settings
	Usage       Usage
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
