// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite and to simulate backend outages

package store

import (
	"context"
	"errors"
	"sync"
	"time"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu           sync.RWMutex
	certificates map[string]*CertificateRecord // keyed by certificate ID
	audit        []AuditEntry                  // append order
	failWith     error                         // returned by every call when set
	closed       bool
}

// Verify MockStore implements Store interface at compile time.
var _ Store = (*MockStore)(nil)

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		certificates: make(map[string]*CertificateRecord),
	}
}

// SetError makes every subsequent call return err. Pass nil to recover.
func (m *MockStore) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWith = err
}

func (m *MockStore) checkLocked() error {
	if m.closed {
		return errors.New("store closed")
	}
	return m.failWith
}

// copyCertificate returns a deep copy so callers cannot mutate stored state.
func copyCertificate(c *CertificateRecord) *CertificateRecord {
	cp := *c
	if c.RevokedAt != nil {
		t := *c.RevokedAt
		cp.RevokedAt = &t
	}
	return &cp
}

// CreateCertificate stores a new certificate record.
func (m *MockStore) CreateCertificate(ctx context.Context, cert *CertificateRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkLocked(); err != nil {
		return err
	}
	if cert.ID == "" {
		return errors.New("certificate ID is required")
	}
	if _, ok := m.certificates[cert.ID]; ok {
		return ErrDuplicateCertificate
	}

	m.certificates[cert.ID] = copyCertificate(cert)
	return nil
}

// GetCertificate retrieves a certificate record by ID.
func (m *MockStore) GetCertificate(ctx context.Context, id string) (*CertificateRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.checkLocked(); err != nil {
		return nil, err
	}
	c, ok := m.certificates[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyCertificate(c), nil
}

// ListCertificates returns certificate records newest first.
func (m *MockStore) ListCertificates(ctx context.Context, f CertificateFilter) ([]CertificateRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.checkLocked(); err != nil {
		return nil, err
	}

	certs := make([]CertificateRecord, 0, len(m.certificates))
	for _, c := range m.certificates {
		if matchesStatus(c, f.Status) {
			certs = append(certs, *copyCertificate(c))
		}
	}

	sortCertificates(certs)
	if limit := normalizeLimit(f.Limit); len(certs) > limit {
		certs = certs[:limit]
	}
	return certs, nil
}

// RevokeCertificate marks a certificate inactive.
func (m *MockStore) RevokeCertificate(ctx context.Context, id string, at time.Time) (*CertificateRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkLocked(); err != nil {
		return nil, false, err
	}
	c, ok := m.certificates[id]
	if !ok {
		return nil, false, ErrNotFound
	}
	if !c.IsActive {
		return copyCertificate(c), false, nil
	}
	revokedAt := at.UTC()
	c.IsActive = false
	c.RevokedAt = &revokedAt
	return copyCertificate(c), true, nil
}

// AppendAuditLog appends a new entry to the audit log.
func (m *MockStore) AppendAuditLog(ctx context.Context, e *AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkLocked(); err != nil {
		return err
	}
	prepareAuditEntry(e)
	m.audit = append(m.audit, *e)
	return nil
}

// ListAuditLog returns audit entries matching the filter, newest first.
func (m *MockStore) ListAuditLog(ctx context.Context, f AuditFilter) ([]AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.checkLocked(); err != nil {
		return nil, err
	}

	limit := normalizeLimit(f.Limit)
	entries := []AuditEntry{}
	for i := len(m.audit) - 1; i >= 0 && len(entries) < limit; i-- {
		if matchesAuditFilter(&m.audit[i], f) {
			entries = append(entries, m.audit[i])
		}
	}
	return entries, nil
}

// Ping returns the injected error, if any.
func (m *MockStore) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.checkLocked()
}

// Close marks the store closed.
func (m *MockStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
