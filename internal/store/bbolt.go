// ABOUTME: BBolt implementation of the Store interface
// ABOUTME: Single-file embedded alternative to SQLite; records are JSON values keyed by ID

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.etcd.io/bbolt"
)

var (
	certificatesBucket = []byte("certificates")
	auditBucket        = []byte("audit_log")
)

// BoltStore implements the Store interface backed by a BBolt database.
// Every write runs in its own Update transaction, so a committed revocation
// is visible to the next View.
type BoltStore struct {
	db     *bbolt.DB
	logger *slog.Logger
}

var _ Store = (*BoltStore)(nil)

// NewBoltStore opens (or creates) a BBolt database at path.
func NewBoltStore(path string) (*BoltStore, error) {
	logger := slog.Default().With("component", "store", "driver", "bbolt")

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{certificatesBucket, auditBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("creating bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("BBolt store initialized", "path", path)
	return &BoltStore{db: db, logger: logger}, nil
}

// CreateCertificate stores a new certificate record.
func (s *BoltStore) CreateCertificate(ctx context.Context, cert *CertificateRecord) error {
	if cert.ID == "" {
		return errors.New("certificate ID is required")
	}

	data, err := json.Marshal(cert)
	if err != nil {
		return fmt.Errorf("marshaling certificate: %w", err)
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(certificatesBucket)
		if b.Get([]byte(cert.ID)) != nil {
			return ErrDuplicateCertificate
		}
		return b.Put([]byte(cert.ID), data)
	})
	if err != nil {
		return err
	}

	s.logger.Debug("created certificate", "certificate_id", cert.ID, "client", cert.ClientName)
	return nil
}

// GetCertificate retrieves a certificate record by ID.
func (s *BoltStore) GetCertificate(ctx context.Context, id string) (*CertificateRecord, error) {
	var cert *CertificateRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		cert, err = getBoltCertificate(tx.Bucket(certificatesBucket), id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return cert, nil
}

// ListCertificates returns certificate records newest first.
func (s *BoltStore) ListCertificates(ctx context.Context, f CertificateFilter) ([]CertificateRecord, error) {
	certs := []CertificateRecord{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(certificatesBucket).ForEach(func(k, v []byte) error {
			var c CertificateRecord
			if err := json.Unmarshal(v, &c); err != nil {
				return fmt.Errorf("unmarshaling certificate %s: %w", k, err)
			}
			if matchesStatus(&c, f.Status) {
				certs = append(certs, c)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sortCertificates(certs)
	if limit := normalizeLimit(f.Limit); len(certs) > limit {
		certs = certs[:limit]
	}
	return certs, nil
}

// RevokeCertificate marks a certificate inactive inside one read-modify-write
// transaction.
func (s *BoltStore) RevokeCertificate(ctx context.Context, id string, at time.Time) (*CertificateRecord, bool, error) {
	var cert *CertificateRecord
	var changed bool

	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(certificatesBucket)
		c, err := getBoltCertificate(b, id)
		if err != nil {
			return err
		}
		cert = c

		if !c.IsActive {
			return nil
		}

		revokedAt := at.UTC()
		c.IsActive = false
		c.RevokedAt = &revokedAt
		changed = true

		data, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("marshaling certificate: %w", err)
		}
		return b.Put([]byte(id), data)
	})
	if err != nil {
		return nil, false, err
	}

	if changed {
		s.logger.Info("revoked certificate", "certificate_id", id)
	}
	return cert, changed, nil
}

func getBoltCertificate(b *bbolt.Bucket, id string) (*CertificateRecord, error) {
	data := b.Get([]byte(id))
	if data == nil {
		return nil, ErrNotFound
	}
	var c CertificateRecord
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("unmarshaling certificate %s: %w", id, err)
	}
	return &c, nil
}

// AppendAuditLog appends a new entry to the audit log. Keys are prefixed with
// the timestamp so a reverse cursor walk yields newest first.
func (s *BoltStore) AppendAuditLog(ctx context.Context, e *AuditEntry) error {
	prepareAuditEntry(e)

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshaling audit entry: %w", err)
	}

	key := []byte(formatTime(e.Timestamp) + "/" + e.ID)
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(auditBucket).Put(key, data)
	})
}

// ListAuditLog returns audit entries matching the filter, newest first.
func (s *BoltStore) ListAuditLog(ctx context.Context, f AuditFilter) ([]AuditEntry, error) {
	limit := normalizeLimit(f.Limit)
	entries := []AuditEntry{}

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(auditBucket).Cursor()
		for k, v := c.Last(); k != nil && len(entries) < limit; k, v = c.Prev() {
			var e AuditEntry
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("unmarshaling audit entry %s: %w", k, err)
			}
			if matchesAuditFilter(&e, f) {
				entries = append(entries, e)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Ping checks that the database is still open.
func (s *BoltStore) Ping(ctx context.Context) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		if tx.Bucket(certificatesBucket) == nil {
			return errors.New("certificates bucket missing")
		}
		return nil
	})
}

// Close closes the underlying BBolt database.
func (s *BoltStore) Close() error {
	s.logger.Info("closing BBolt store")
	return s.db.Close()
}

// sortCertificates orders records newest first, ties broken by ID.
func sortCertificates(certs []CertificateRecord) {
	sort.Slice(certs, func(i, j int) bool {
		if !certs[i].IssuedAt.Equal(certs[j].IssuedAt) {
			return certs[i].IssuedAt.After(certs[j].IssuedAt)
		}
		return certs[i].ID < certs[j].ID
	})
}
