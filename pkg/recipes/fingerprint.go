package recipes

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
)

// fingerprintPayload fixes the field order of the hashed encoding.
type fingerprintPayload struct {
	Materials   []Material `json:"materials"`
	Incantation string     `json:"incantation"`
}

// NormalizeIncantation lower-cases and trims an incantation.
func NormalizeIncantation(incantation string) string {
	return strings.TrimSpace(strings.ToLower(incantation))
}

// SortedMaterials returns a copy of materials ordered by name. Entries with the
// same name are ordered by unit and then quantity so that any permutation of
// the same multiset sorts identically.
func SortedMaterials(materials []Material) []Material {
	ret := make([]Material, len(materials))
	copy(ret, materials)
	sort.SliceStable(ret, func(i, j int) bool {
		a, b := ret[i], ret[j]
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		if a.Unit != b.Unit {
			return a.Unit < b.Unit
		}
		return a.Quantity < b.Quantity
	})
	return ret
}

// Fingerprint computes the sha256 hex digest identifying a request. The input
// is expected to have been validated.
func Fingerprint(materials []Material, incantation string) string {
	sorted := SortedMaterials(materials)
	for i := range sorted {
		// -0 encodes as "-0", 0 as "0"
		if sorted[i].Quantity == 0 {
			sorted[i].Quantity = 0
		}
	}
	payload := fingerprintPayload{
		Materials:   sorted,
		Incantation: NormalizeIncantation(incantation),
	}
	return hex.EncodeToString(fingerprintDigest(payload))
}

// fingerprintDigest hashes the compact JSON encoding of payload, with &, <
// and > left unescaped.
func fingerprintDigest(payload fingerprintPayload) []byte {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	// encoding plain strings and finite floats cannot fail
	_ = enc.Encode(payload)
	sum := sha256.Sum256(bytes.TrimSuffix(buf.Bytes(), []byte("\n")))
	return sum[:]
}

func (r Request) Fingerprint() string {
	return Fingerprint(r.Materials, r.Incantation)
}
