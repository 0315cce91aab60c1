package tenant

import (
	"math"
	"strings"

	"github.com/google/uuid"

	"github.com/campaignexpress/controlplane/internal/clock"
	"github.com/campaignexpress/controlplane/internal/errs"
	"github.com/campaignexpress/controlplane/internal/sharded"
)

// Store is the multi-tenant manager: tenant lifecycle, tier-derived
// settings, and quota/usage accounting.
type Store struct {
	clock   clock.Clock
	tenants *sharded.Table[Tenant]
}

// NewStore constructs an empty Store.
func NewStore(c clock.Clock) *Store {
	return &Store{clock: c, tenants: sharded.New[Tenant]()}
}

// slugify lowercases name and replaces every non-alphanumeric rune with a
// dash, producing a URL-safe tenant slug.
func slugify(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('-')
		}
	}
	return b.String()
}

// TierLimits returns the default Settings for a pricing tier.
func TierLimits(tier Tier) Settings {
	switch tier {
	case Free:
		return Settings{
			MaxCampaigns:      5,
			MaxUsers:          2,
			MaxOffersPerHour:  1_000,
			MaxAPICallsPerDay: 10_000,
			FeaturesEnabled:   []string{"basic_targeting"},
			DataRetentionDays: 30,
		}
	case Starter:
		return Settings{
			MaxCampaigns:      25,
			MaxUsers:          10,
			MaxOffersPerHour:  100_000,
			MaxAPICallsPerDay: 100_000,
			FeaturesEnabled:   []string{"basic_targeting", "ab_testing", "analytics"},
			DataRetentionDays: 90,
		}
	case Professional:
		return Settings{
			MaxCampaigns:      100,
			MaxUsers:          50,
			MaxOffersPerHour:  5_000_000,
			MaxAPICallsPerDay: 1_000_000,
			FeaturesEnabled:   []string{"basic_targeting", "ab_testing", "analytics", "journey_builder", "dco"},
			DataRetentionDays: 365,
		}
	case EnterpriseCustom:
		return Settings{
			MaxCampaigns:      math.MaxUint32,
			MaxUsers:          math.MaxUint32,
			MaxOffersPerHour:  math.MaxUint64,
			MaxAPICallsPerDay: math.MaxUint64,
			FeaturesEnabled: []string{
				"basic_targeting", "ab_testing", "analytics", "journey_builder",
				"dco", "cdp", "loyalty", "custom_models",
			},
			DataRetentionDays: 730,
		}
	default:
		return Settings{}
	}
}

// CreateTenant creates and stores a new tenant with tier-appropriate
// settings, active status, and a single counted owner user.
func (s *Store) CreateTenant(name, ownerID string, tier Tier) Tenant {
	now := s.clock.Now()
	t := Tenant{
		ID:          uuid.New().String(),
		Name:        name,
		Slug:        slugify(name),
		Status:      Active,
		PricingTier: tier,
		OwnerID:     ownerID,
		Settings:    TierLimits(tier),
		Usage:       Usage{UsersCount: 1, LastReset: now},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.tenants.Set(t.ID, t)
	return t
}

// GetTenant looks up a tenant by id.
func (s *Store) GetTenant(id string) (Tenant, bool) {
	return s.tenants.Get(id)
}

// ListTenants returns every tenant in the store.
func (s *Store) ListTenants() []Tenant {
	all := s.tenants.All()
	out := make([]Tenant, 0, len(all))
	for _, t := range all {
		out = append(out, t)
	}
	return out
}

// UpdateTier changes a tenant's pricing tier and re-derives its settings
// from the new tier's defaults.
func (s *Store) UpdateTier(id string, tier Tier) (Tenant, error) {
	updated, ok := s.tenants.UpdateIfExists(id, func(t Tenant) Tenant {
		t.PricingTier = tier
		t.Settings = TierLimits(tier)
		t.UpdatedAt = s.clock.Now()
		return t
	})
	if !ok {
		return Tenant{}, errs.NotFoundf("tenant %s not found", id)
	}
	return updated, nil
}

// Suspend transitions a tenant to Suspended. It does not check the current
// status first, so suspending an already-suspended tenant succeeds
// silently rather than returning an InvalidState error; callers that need
// to detect the no-op case should compare Tenant.Status before calling.
func (s *Store) Suspend(id string) (Tenant, error) {
	updated, ok := s.tenants.UpdateIfExists(id, func(t Tenant) Tenant {
		t.Status = Suspended
		t.UpdatedAt = s.clock.Now()
		return t
	})
	if !ok {
		return Tenant{}, errs.NotFoundf("tenant %s not found", id)
	}
	return updated, nil
}

// Reactivate transitions a suspended or cancelled tenant back to Active.
func (s *Store) Reactivate(id string) (Tenant, error) {
	updated, ok := s.tenants.UpdateIfExists(id, func(t Tenant) Tenant {
		t.Status = Active
		t.UpdatedAt = s.clock.Now()
		return t
	})
	if !ok {
		return Tenant{}, errs.NotFoundf("tenant %s not found", id)
	}
	return updated, nil
}

// ResetDailyUsage zeroes the daily usage counters (offers served, API
// calls) and stamps LastReset, leaving campaign/user/storage counters
// untouched.
func (s *Store) ResetDailyUsage(id string) (Tenant, error) {
	updated, ok := s.tenants.UpdateIfExists(id, func(t Tenant) Tenant {
		now := s.clock.Now()
		t.Usage.OffersServedToday = 0
		t.Usage.APICallsToday = 0
		t.Usage.LastReset = now
		t.UpdatedAt = now
		return t
	})
	if !ok {
		return Tenant{}, errs.NotFoundf("tenant %s not found", id)
	}
	return updated, nil
}

// CheckQuota reports whether tenant id is within its quota for resource.
// An unrecognized resource name is always considered within quota, by
// design: quota enforcement is opt-in per named resource.
func (s *Store) CheckQuota(id, resource string) (bool, error) {
	t, ok := s.tenants.Get(id)
	if !ok {
		return false, errs.NotFoundf("tenant %s not found", id)
	}
	switch resource {
	case "campaigns":
		return t.Usage.CampaignsActive < t.Settings.MaxCampaigns, nil
	case "offers":
		return t.Usage.OffersServedToday < t.Settings.MaxOffersPerHour, nil
	case "api_calls":
		return t.Usage.APICallsToday < t.Settings.MaxAPICallsPerDay, nil
	case "users":
		return t.Usage.UsersCount < t.Settings.MaxUsers, nil
	default:
		return true, nil
	}
}

// EnforceQuota is CheckQuota with an OutOfBudget error in place of a false
// result, for call sites that want to fail the request rather than branch
// on a bool.
func (s *Store) EnforceQuota(id, resource string) error {
	ok, err := s.CheckQuota(id, resource)
	if err != nil {
		return err
	}
	if !ok {
		return errs.OutOfBudgetf("tenant %s is over quota for %s", id, resource)
	}
	return nil
}

// saturatingAddU64 adds amount to current, clamping at math.MaxUint64
// instead of wrapping.
func saturatingAddU64(current, amount uint64) uint64 {
	if amount > math.MaxUint64-current {
		return math.MaxUint64
	}
	return current + amount
}

// saturatingAddU32 is saturatingAddU64 for the uint32 counters.
func saturatingAddU32(current uint32, amount uint64) uint32 {
	if amount > uint64(math.MaxUint32-current) {
		return math.MaxUint32
	}
	return current + uint32(amount)
}

// IncrementUsage adds amount to the named usage counter for tenant id,
// using a saturating add so a runaway caller can never wrap a counter back
// to near-zero.
func (s *Store) IncrementUsage(id, resource string, amount uint64) error {
	_, ok := s.tenants.UpdateIfExists(id, func(t Tenant) Tenant {
		switch resource {
		case "campaigns":
			t.Usage.CampaignsActive = saturatingAddU32(t.Usage.CampaignsActive, amount)
		case "offers":
			t.Usage.OffersServedToday = saturatingAddU64(t.Usage.OffersServedToday, amount)
		case "api_calls":
			t.Usage.APICallsToday = saturatingAddU64(t.Usage.APICallsToday, amount)
		case "users":
			t.Usage.UsersCount = saturatingAddU32(t.Usage.UsersCount, amount)
		case "storage":
			t.Usage.StorageBytes = saturatingAddU64(t.Usage.StorageBytes, amount)
		}
		t.UpdatedAt = s.clock.Now()
		return t
	})
	if !ok {
		return errs.NotFoundf("tenant %s not found", id)
	}
	return nil
}

// SeedDemo creates three demo tenants spanning the Enterprise, Starter,
// and Free tiers.
func (s *Store) SeedDemo() {
	s.CreateTenant("Acme Corp", uuid.New().String(), EnterpriseCustom)
	s.CreateTenant("Startup Inc", uuid.New().String(), Starter)
	s.CreateTenant("Hobby Shop", uuid.New().String(), Free)
}
