package tenant

import (
	"testing"
	"time"

	"github.com/campaignexpress/controlplane/internal/clock"
	"github.com/campaignexpress/controlplane/internal/errs"
)

func TestCreateTenant(t *testing.T) {
	s := NewStore(clock.System{})
	tn := s.CreateTenant("My Company", "owner-1", Professional)

	if tn.Name != "My Company" {
		t.Fatalf("name = %q, want %q", tn.Name, "My Company")
	}
	if tn.Slug != "my-company" {
		t.Fatalf("slug = %q, want %q", tn.Slug, "my-company")
	}
	if tn.Status != Active {
		t.Fatalf("status = %v, want Active", tn.Status)
	}
	if tn.Settings.MaxCampaigns != 100 {
		t.Fatalf("max_campaigns = %d, want 100", tn.Settings.MaxCampaigns)
	}

	fetched, ok := s.GetTenant(tn.ID)
	if !ok {
		t.Fatalf("expected tenant to be retrievable by id")
	}
	if fetched.ID != tn.ID {
		t.Fatalf("fetched id = %s, want %s", fetched.ID, tn.ID)
	}
}

// TestQuotaCheck reproduces the original's quota-exhaustion scenario: a
// Free tier's 5-campaign limit is reached and check_quota flips to false.
func TestQuotaCheck(t *testing.T) {
	s := NewStore(clock.System{})
	tn := s.CreateTenant("Free Org", "owner-1", Free)

	within, err := s.CheckQuota(tn.ID, "campaigns")
	if err != nil || !within {
		t.Fatalf("expected a fresh tenant to be within quota, got within=%v err=%v", within, err)
	}

	if err := s.IncrementUsage(tn.ID, "campaigns", 5); err != nil {
		t.Fatalf("IncrementUsage: %v", err)
	}
	within, err = s.CheckQuota(tn.ID, "campaigns")
	if err != nil || within {
		t.Fatalf("expected campaign quota to be exhausted, got within=%v err=%v", within, err)
	}

	within, err = s.CheckQuota(tn.ID, "widgets")
	if err != nil || !within {
		t.Fatalf("unknown resources should always report within quota, got within=%v err=%v", within, err)
	}
}

// TestIncrementUsageSaturatesInsteadOfWrapping checks that adding past the
// numeric ceiling clamps rather than wrapping back toward zero.
func TestIncrementUsageSaturatesInsteadOfWrapping(t *testing.T) {
	s := NewStore(clock.System{})
	tn := s.CreateTenant("Big Spender", "owner-1", EnterpriseCustom)

	if err := s.IncrementUsage(tn.ID, "api_calls", 1); err != nil {
		t.Fatalf("IncrementUsage: %v", err)
	}
	// Push the counter exactly to its ceiling, then overflow it by a wide
	// margin; a wrapping add would land near zero.
	tn, _ = s.GetTenant(tn.ID)
	near := ^uint64(0) - tn.Usage.APICallsToday
	if err := s.IncrementUsage(tn.ID, "api_calls", near); err != nil {
		t.Fatalf("IncrementUsage: %v", err)
	}
	if err := s.IncrementUsage(tn.ID, "api_calls", 1000); err != nil {
		t.Fatalf("IncrementUsage: %v", err)
	}

	tn, _ = s.GetTenant(tn.ID)
	if tn.Usage.APICallsToday != ^uint64(0) {
		t.Fatalf("api_calls_today = %d, want saturated at max uint64", tn.Usage.APICallsToday)
	}
}

func TestSuspendAndReactivate(t *testing.T) {
	fake := clock.NewFake(time.Unix(0, 0))
	s := NewStore(fake)
	tn := s.CreateTenant("Toggled Org", "owner-1", Starter)

	suspended, err := s.Suspend(tn.ID)
	if err != nil {
		t.Fatalf("Suspend: %v", err)
	}
	if suspended.Status != Suspended {
		t.Fatalf("status = %v, want Suspended", suspended.Status)
	}

	reactivated, err := s.Reactivate(tn.ID)
	if err != nil {
		t.Fatalf("Reactivate: %v", err)
	}
	if reactivated.Status != Active {
		t.Fatalf("status = %v, want Active", reactivated.Status)
	}
}

func TestMutatingUnknownTenantReturnsNotFound(t *testing.T) {
	s := NewStore(clock.System{})
	if _, err := s.Suspend("does-not-exist"); err == nil {
		t.Fatalf("expected an error suspending an unknown tenant")
	}
	if _, err := s.UpdateTier("does-not-exist", Starter); err == nil {
		t.Fatalf("expected an error updating the tier of an unknown tenant")
	}
	if err := s.IncrementUsage("does-not-exist", "campaigns", 1); err == nil {
		t.Fatalf("expected an error incrementing usage for an unknown tenant")
	}
}

func TestUpdateTierReplacesSettings(t *testing.T) {
	s := NewStore(clock.System{})
	tn := s.CreateTenant("Growing Org", "owner-1", Free)

	updated, err := s.UpdateTier(tn.ID, Professional)
	if err != nil {
		t.Fatalf("UpdateTier: %v", err)
	}
	if updated.Settings.MaxCampaigns != 100 {
		t.Fatalf("max_campaigns after upgrade = %d, want 100", updated.Settings.MaxCampaigns)
	}
}

func TestResetDailyUsage(t *testing.T) {
	s := NewStore(clock.System{})
	tn := s.CreateTenant("Daily Org", "owner-1", Starter)
	if err := s.IncrementUsage(tn.ID, "offers", 500); err != nil {
		t.Fatalf("IncrementUsage: %v", err)
	}
	if err := s.IncrementUsage(tn.ID, "campaigns", 3); err != nil {
		t.Fatalf("IncrementUsage: %v", err)
	}

	reset, err := s.ResetDailyUsage(tn.ID)
	if err != nil {
		t.Fatalf("ResetDailyUsage: %v", err)
	}
	if reset.Usage.OffersServedToday != 0 {
		t.Fatalf("offers_served_today = %d, want 0 after reset", reset.Usage.OffersServedToday)
	}
	if reset.Usage.CampaignsActive != 3 {
		t.Fatalf("campaigns_active = %d, want 3 (reset must not touch non-daily counters)", reset.Usage.CampaignsActive)
	}
}

func TestEnforceQuotaReturnsOutOfBudget(t *testing.T) {
	s := NewStore(clock.System{})
	tn := s.CreateTenant("Free Org", "owner-1", Free)

	if err := s.EnforceQuota(tn.ID, "campaigns"); err != nil {
		t.Fatalf("EnforceQuota on a fresh tenant: %v", err)
	}
	if err := s.IncrementUsage(tn.ID, "campaigns", 5); err != nil {
		t.Fatalf("IncrementUsage: %v", err)
	}
	err := s.EnforceQuota(tn.ID, "campaigns")
	if kind, ok := errs.KindOf(err); !ok || kind != errs.OutOfBudget {
		t.Fatalf("KindOf(EnforceQuota) = (%v, %v), want (OutOfBudget, true)", kind, ok)
	}
}

// TestSuspendAlreadySuspendedTenantIsIdempotent documents that Suspend does
// not distinguish an already-suspended tenant from an active one: it always
// overwrites status and updated_at rather than returning an InvalidState
// error. Call sites that need that distinction should check Tenant.Status
// themselves before calling Suspend.
func TestSuspendAlreadySuspendedTenantIsIdempotent(t *testing.T) {
	s := NewStore(clock.System{})
	tn := s.CreateTenant("Toggled Org", "owner-1", Starter)

	if _, err := s.Suspend(tn.ID); err != nil {
		t.Fatalf("first Suspend: %v", err)
	}
	again, err := s.Suspend(tn.ID)
	if err != nil {
		t.Fatalf("second Suspend: %v", err)
	}
	if again.Status != Suspended {
		t.Fatalf("status = %v, want Suspended", again.Status)
	}
}

func TestSeedDemoCreatesThreeTiers(t *testing.T) {
	s := NewStore(clock.System{})
	s.SeedDemo()
	if got := len(s.ListTenants()); got != 3 {
		t.Fatalf("len(ListTenants()) = %d, want 3", got)
	}
}
