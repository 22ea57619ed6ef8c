// ABOUTME: SQLite persistence for issued certificate records
// ABOUTME: Create, lookup, listing and one-way revocation of client certificates

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const certificateColumns = `certificate_id, client_name, client_email, issued_at, expires_at, is_active, revoked_at, signed_credential`

// CreateCertificate inserts a new certificate record.
func (s *SQLiteStore) CreateCertificate(ctx context.Context, cert *CertificateRecord) error {
	if cert.ID == "" {
		return errors.New("certificate ID is required")
	}

	var revokedAt any
	if cert.RevokedAt != nil {
		revokedAt = formatTime(*cert.RevokedAt)
	}

	query := `INSERT INTO certificates (` + certificateColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		cert.ID,
		cert.ClientName,
		cert.ClientEmail,
		formatTime(cert.IssuedAt),
		formatTime(cert.ExpiresAt),
		boolToInt(cert.IsActive),
		revokedAt,
		cert.SignedCredential,
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicateCertificate
		}
		return fmt.Errorf("inserting certificate: %w", err)
	}

	s.logger.Debug("created certificate", "certificate_id", cert.ID, "client", cert.ClientName)
	return nil
}

// GetCertificate retrieves a certificate record by ID.
func (s *SQLiteStore) GetCertificate(ctx context.Context, id string) (*CertificateRecord, error) {
	return getCertificate(ctx, s.db, id)
}

// ListCertificates returns certificate records newest first.
func (s *SQLiteStore) ListCertificates(ctx context.Context, f CertificateFilter) ([]CertificateRecord, error) {
	var active *int
	switch f.Status {
	case CertificateStatusActive:
		v := 1
		active = &v
	case CertificateStatusRevoked:
		v := 0
		active = &v
	}

	query := `
		SELECT ` + certificateColumns + `
		FROM certificates
		WHERE (? IS NULL OR is_active = ?)
		ORDER BY issued_at DESC, certificate_id ASC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, active, active, normalizeLimit(f.Limit))
	if err != nil {
		return nil, fmt.Errorf("querying certificates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	certs := []CertificateRecord{}
	for rows.Next() {
		c, err := scanCertificate(rows)
		if err != nil {
			return nil, err
		}
		certs = append(certs, *c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating certificates: %w", err)
	}

	return certs, nil
}

// RevokeCertificate marks a certificate inactive. The conditional update only
// touches active rows, so a second revocation leaves revoked_at untouched.
// The bool reports whether this call performed the revocation.
func (s *SQLiteStore) RevokeCertificate(ctx context.Context, id string, at time.Time) (*CertificateRecord, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx,
		`UPDATE certificates SET is_active = 0, revoked_at = ? WHERE certificate_id = ? AND is_active = 1`,
		formatTime(at), id,
	)
	if err != nil {
		return nil, false, fmt.Errorf("revoking certificate: %w", err)
	}

	changed, err := result.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("checking rows affected: %w", err)
	}

	cert, err := getCertificate(ctx, tx, id)
	if err != nil {
		return nil, false, err
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("committing revocation: %w", err)
	}

	if changed > 0 {
		s.logger.Info("revoked certificate", "certificate_id", id)
	} else {
		s.logger.Debug("certificate already revoked", "certificate_id", id)
	}
	return cert, changed > 0, nil
}

// queryRower is satisfied by *sql.DB and *sql.Tx.
type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getCertificate(ctx context.Context, q queryRower, id string) (*CertificateRecord, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+certificateColumns+` FROM certificates WHERE certificate_id = ?`, id)

	cert, err := scanCertificate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return cert, nil
}

// scanCertificate scans a row into a CertificateRecord.
func scanCertificate(scanner interface{ Scan(dest ...any) error }) (*CertificateRecord, error) {
	var c CertificateRecord
	var issuedStr, expiresStr string
	var active int
	var revokedStr sql.NullString

	if err := scanner.Scan(
		&c.ID,
		&c.ClientName,
		&c.ClientEmail,
		&issuedStr,
		&expiresStr,
		&active,
		&revokedStr,
		&c.SignedCredential,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning certificate: %w", err)
	}

	var err error
	if c.IssuedAt, err = parseTime(issuedStr); err != nil {
		return nil, err
	}
	if c.ExpiresAt, err = parseTime(expiresStr); err != nil {
		return nil, err
	}
	c.IsActive = active == 1

	if revokedStr.Valid {
		t, err := parseTime(revokedStr.String)
		if err != nil {
			return nil, err
		}
		c.RevokedAt = &t
	}

	return &c, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
