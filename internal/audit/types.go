// Package audit implements the Tamper-Evident Audit Log: a hash-chained
// append-only event store plus the RBAC route gate that sits in front of
// the management API.
package audit

import (
	"fmt"
	"time"

	"github.com/campaignexpress/controlplane/internal/errs"
)

// Event is a single audit record with tamper-evident hash chaining.
type Event struct {
	ID               string
	Sequence         uint64
	TenantID         string
	UserID           string
	Action           string
	ResourceType     string
	ResourceID       string
	Details          map[string]any
	IPAddress        string
	UserAgent        string
	Timestamp        time.Time
	ComplianceFlags  []string
	EventHash        string
	PreviousHash     string
}

// DataAccessType categorizes a DataAccessEvent.
type DataAccessType string

const (
	Read      DataAccessType = "read"
	Write     DataAccessType = "write"
	Delete    DataAccessType = "delete"
	Export    DataAccessType = "export"
	Anonymize DataAccessType = "anonymize"
)

// DataAccessEvent records who accessed what data, for compliance reporting.
type DataAccessEvent struct {
	ID             string
	TenantID       string
	UserID         string
	AccessType     DataAccessType
	ResourceType   string
	ResourceID     string
	FieldsAccessed []string
	PIIAccessed    bool
	Timestamp      time.Time
}

// ChainVerification is the result of re-verifying every link in the audit
// chain.
type ChainVerification struct {
	Total        int
	Valid        int
	Tampered     []uint64
	ChainIntact  bool
}

// Err returns an Integrity error naming the tampered sequences if the chain
// is broken, or nil if it verified clean.
func (v ChainVerification) Err() error {
	if v.ChainIntact {
		return nil
	}
	return errs.New(errs.Integrity, fmt.Sprintf("audit chain broken at %d of %d sequences: %v", len(v.Tampered), v.Total, v.Tampered))
}

// ComplianceReport summarizes audit and data-access activity for a tenant
// over a time range, including a fresh chain-integrity check.
type ComplianceReport struct {
	TenantID             string
	From                 time.Time
	To                   time.Time
	TotalEvents          uint64
	ComplianceFlaggedEvents uint64
	EventsByAction       map[string]uint64
	DataAccessEvents     int
	PIIAccessEvents      int
	ChainTotal           int
	ChainValid           int
	ChainIntact          bool
}
