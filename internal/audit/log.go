package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/campaignexpress/controlplane/internal/clock"
	"github.com/campaignexpress/controlplane/internal/sharded"
)

// genesisHash is the previous_hash value chained from by the first event
// ever logged.
const genesisHash = "genesis"

// Log is the tamper-evident, hash-chained append-only audit event store.
// Every append happens inside a single critical section that reads the
// prior hash, computes the new one, and advances the sequence, so the
// chain can never fork under concurrent writers.
type Log struct {
	clock  clock.Clock
	logger *zap.Logger

	mu       sync.Mutex
	sequence uint64
	lastHash string

	events     *sharded.Table[Event]
	dataAccess *sharded.Table[DataAccessEvent]
}

// NewLog constructs an empty Log with the genesis hash.
func NewLog(c clock.Clock, logger *zap.Logger) *Log {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Log{
		clock:      c,
		logger:     logger,
		lastHash:   genesisHash,
		events:     sharded.New[Event](),
		dataAccess: sharded.New[DataAccessEvent](),
	}
}

// chainContent builds the canonical string this module hashes over:
// "{sequence}:{action}:{resource_type}:{resource_id}:{rfc3339_timestamp}:{previous_hash}".
func chainContent(e Event) string {
	return fmt.Sprintf("%d:%s:%s:%s:%s:%s",
		e.Sequence, e.Action, e.ResourceType, e.ResourceID,
		e.Timestamp.UTC().Format("2006-01-02T15:04:05.999999999Z07:00"), e.PreviousHash)
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// chainEvent assigns the next sequence number, links to the previous hash,
// and computes this event's hash, all under a single critical section so
// the chain can never fork under concurrent writers.
func (l *Log) chainEvent(e Event) Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.sequence++
	e.Sequence = l.sequence
	e.PreviousHash = l.lastHash

	e.EventHash = sha256Hex(chainContent(e))
	l.lastHash = e.EventHash
	return e
}

// LogAction builds and appends a new hash-chained audit event.
func (l *Log) LogAction(tenantID, userID, action, resourceType, resourceID string, details map[string]any, ipAddress string, complianceFlags []string) Event {
	e := Event{
		ID:              uuid.New().String(),
		TenantID:        tenantID,
		UserID:          userID,
		Action:          action,
		ResourceType:    resourceType,
		ResourceID:      resourceID,
		Details:         details,
		IPAddress:       ipAddress,
		Timestamp:       l.clock.Now(),
		ComplianceFlags: complianceFlags,
	}
	chained := l.chainEvent(e)
	l.events.Set(chained.ID, chained)

	l.logger.Info("audit event logged",
		zap.String("event_id", chained.ID),
		zap.Uint64("sequence", chained.Sequence),
		zap.String("action", chained.Action),
		zap.String("resource_type", chained.ResourceType),
	)
	return chained
}

// LogDataAccess records a data-access event for compliance reporting. It is
// not part of the hash chain: it is a parallel, unordered log.
func (l *Log) LogDataAccess(tenantID, userID string, accessType DataAccessType, resourceType, resourceID string, fieldsAccessed []string, piiAccessed bool) DataAccessEvent {
	e := DataAccessEvent{
		ID:             uuid.New().String(),
		TenantID:       tenantID,
		UserID:         userID,
		AccessType:     accessType,
		ResourceType:   resourceType,
		ResourceID:     resourceID,
		FieldsAccessed: fieldsAccessed,
		PIIAccessed:    piiAccessed,
		Timestamp:      l.clock.Now(),
	}
	l.dataAccess.Set(e.ID, e)
	return e
}

// VerifyChain re-derives every event's hash from its recorded content and
// reports any sequence whose previous_hash or event_hash no longer matches
// what chaining would produce.
func (l *Log) VerifyChain() ChainVerification {
	events := l.sortedEvents()

	total := len(events)
	valid := 0
	var tampered []uint64
	expectedPrev := genesisHash

	for _, e := range events {
		if e.PreviousHash != expectedPrev {
			tampered = append(tampered, e.Sequence)
		} else if sha256Hex(chainContent(e)) == e.EventHash {
			valid++
		} else {
			tampered = append(tampered, e.Sequence)
		}
		expectedPrev = e.EventHash
	}

	return ChainVerification{
		Total:       total,
		Valid:       valid,
		Tampered:    tampered,
		ChainIntact: valid == total,
	}
}

func (l *Log) sortedEvents() []Event {
	all := l.events.All()
	out := make([]Event, 0, len(all))
	for _, e := range all {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out
}

// Query returns events for tenantID, most-recent-first, filtered by an
// optional [from, to] window (both bounds inclusive) and action (zero
// time.Time / empty string disables that filter), capped at limit.
func (l *Log) Query(tenantID string, from, to time.Time, action string, limit int) []Event {
	all := l.events.All()
	results := make([]Event, 0, len(all))
	for _, e := range all {
		if e.TenantID != tenantID {
			continue
		}
		if !from.IsZero() && e.Timestamp.Before(from) {
			continue
		}
		if !to.IsZero() && e.Timestamp.After(to) {
			continue
		}
		if action != "" && e.Action != action {
			continue
		}
		results = append(results, e)
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Timestamp.After(results[j].Timestamp) })
	if limit >= 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}

// QueryDataAccess returns data-access events for tenantID within an
// optional [from, to] window (both bounds inclusive), optionally
// restricted to PII accesses.
func (l *Log) QueryDataAccess(tenantID string, from, to time.Time, piiOnly bool) []DataAccessEvent {
	all := l.dataAccess.All()
	results := make([]DataAccessEvent, 0, len(all))
	for _, e := range all {
		if e.TenantID != tenantID {
			continue
		}
		if piiOnly && !e.PIIAccessed {
			continue
		}
		if !from.IsZero() && e.Timestamp.Before(from) {
			continue
		}
		if !to.IsZero() && e.Timestamp.After(to) {
			continue
		}
		results = append(results, e)
	}
	return results
}

// ExportComplianceReport summarizes audit and data-access activity for
// tenantID over [from, to], including a fresh chain-integrity check.
func (l *Log) ExportComplianceReport(tenantID string, from, to time.Time) ComplianceReport {
	actionCounts := make(map[string]uint64)
	var total, flagged uint64

	for _, e := range l.events.All() {
		if e.TenantID != tenantID || e.Timestamp.Before(from) || e.Timestamp.After(to) {
			continue
		}
		actionCounts[e.Action]++
		total++
		if len(e.ComplianceFlags) > 0 {
			flagged++
		}
	}

	dataAccessEvents := l.QueryDataAccess(tenantID, from, to, false)
	piiCount := 0
	for _, e := range dataAccessEvents {
		if e.PIIAccessed {
			piiCount++
		}
	}

	chain := l.VerifyChain()

	return ComplianceReport{
		TenantID:                tenantID,
		From:                    from,
		To:                      to,
		TotalEvents:             total,
		ComplianceFlaggedEvents: flagged,
		EventsByAction:          actionCounts,
		DataAccessEvents:        len(dataAccessEvents),
		PIIAccessEvents:         piiCount,
		ChainTotal:              chain.Total,
		ChainValid:              chain.Valid,
		ChainIntact:             chain.ChainIntact,
	}
}
