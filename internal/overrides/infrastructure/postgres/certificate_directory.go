package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	overrides "github.com/said46/autoSOC/internal/overrides/domain"
)

// DefaultCertificateQuery finds certificates whose id ends with $1.
const DefaultCertificateQuery = `
SELECT id
FROM system_override_certificates
WHERE CAST(id AS TEXT) LIKE '%' || $1
ORDER BY id DESC
LIMIT 2`

var (
	// ErrCertificateNotFound is returned when no certificate matches.
	ErrCertificateNotFound = errors.New("certificate directory: not found")
	// ErrAmbiguousCertificate is returned when more than one certificate matches.
	ErrAmbiguousCertificate = errors.New("certificate directory: ambiguous id")
)

// CertificateDirectory resolves partial SOC ids against the database.
type CertificateDirectory struct {
	db    *sql.DB
	query string
}

// NewCertificateDirectory constructs a directory. An empty query uses
// DefaultCertificateQuery.
func NewCertificateDirectory(db *sql.DB, query string) *CertificateDirectory {
	if query == "" {
		query = DefaultCertificateQuery
	}
	return &CertificateDirectory{db: db, query: query}
}

// Resolve returns the full id of the single certificate matching partial.
// Full ids are returned normalized without a lookup.
func (d *CertificateDirectory) Resolve(ctx context.Context, partial string) (int64, error) {
	id, isPartial, err := overrides.NormalizeCertificateID(partial)
	if err != nil {
		return 0, err
	}
	if !isPartial {
		return strconv.ParseInt(id, 10, 64)
	}
	if d == nil || d.db == nil {
		return 0, errors.New("certificate directory: nil db")
	}

	rows, err := d.db.QueryContext(ctx, d.query, id)
	if err != nil {
		return 0, fmt.Errorf("certificate directory: query: %w", err)
	}
	defer rows.Close()

	var found []string
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return 0, fmt.Errorf("certificate directory: scan: %w", err)
		}
		found = append(found, raw)
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("certificate directory: rows: %w", err)
	}

	switch len(found) {
	case 0:
		return 0, fmt.Errorf("%w: %s", ErrCertificateNotFound, id)
	case 1:
	default:
		return 0, fmt.Errorf("%w: %s matches %d certificates", ErrAmbiguousCertificate, id, len(found))
	}

	full, stillPartial, err := overrides.NormalizeCertificateID(found[0])
	if err != nil {
		return 0, err
	}
	if stillPartial {
		return 0, fmt.Errorf("%w: directory returned %q", overrides.ErrInvalidCertificateID, found[0])
	}
	return strconv.ParseInt(full, 10, 64)
}
