package record

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefix for version content digests. The version suffix allows a
// future algorithm change without ambiguity against old digests.
const domainVersionRow = "stagehand/version-row/v1"

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data). The null separator prevents
// domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// RowDigest computes the content digest stored alongside one table's
// version row. The digest covers the table name, record id, version number
// and the canonical encoding of the field values, so a later audit can
// detect any mutation of supposedly immutable history.
func RowDigest(table string, id ID, version int64, fields Fields) (string, error) {
	canonical, err := MarshalCanonical(fields)
	if err != nil {
		return "", fmt.Errorf("RowDigest %s: %w", table, err)
	}

	header := fmt.Sprintf("%s\x00%d\x00%d\x00", table, id, version)
	payload := make([]byte, 0, len(header)+len(canonical))
	payload = append(payload, header...)
	payload = append(payload, canonical...)

	return hashWithDomain(domainVersionRow, payload), nil
}
