package overrides

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var certificateIDPattern = regexp.MustCompile(`^\d{4,8}$`)

// MinFullCertificateDigits is the length below which an id is partial.
const MinFullCertificateDigits = 7

// NormalizeCertificateID validates a typed certificate id. Eight digit ids
// with a leading zero lose it. The returned partial flag is true when the id
// is too short and must be looked up.
func NormalizeCertificateID(raw string) (id string, partial bool, err error) {
	id = strings.TrimSpace(raw)
	if !certificateIDPattern.MatchString(id) {
		return "", false, fmt.Errorf("%w: %q", ErrInvalidCertificateID, raw)
	}
	if len(id) == 8 && id[0] == '0' {
		id = id[1:]
	}
	return id, len(id) < MinFullCertificateDigits, nil
}

// ParseCertificateID normalizes raw and rejects partial ids.
func ParseCertificateID(raw string) (int64, error) {
	id, partial, err := NormalizeCertificateID(raw)
	if err != nil {
		return 0, err
	}
	if partial {
		return 0, fmt.Errorf("%w: %q is partial", ErrInvalidCertificateID, raw)
	}
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidCertificateID, raw)
	}
	return n, nil
}
