package models

import "encoding/json"

// Keyset is one generation of a mint's signing keys. Keys maps a
// denomination to the hex compressed public key that signs it.
type Keyset struct {
	ID          string           `json:"id"`
	Unit        string           `json:"unit"`
	Active      bool             `json:"active"`
	InputFeePPK int64            `json:"input_fee_ppk"`
	Keys        map[int64]string `json:"-"`
}

// MintInfo is the subset of the NUT-06 info document the wallet reads.
type MintInfo struct {
	Name        string                     `json:"name"`
	Version     string                     `json:"version"`
	Description string                     `json:"description"`
	Nuts        map[string]json.RawMessage `json:"nuts"`
}

// Supports reports whether the mint advertises nut as supported. Mandatory
// NUTs are listed without a "supported" field and count as supported.
func (m MintInfo) Supports(nut string) bool {
	raw, ok := m.Nuts[nut]
	if !ok {
		return false
	}
	var v struct {
		Supported *bool `json:"supported"`
		Disabled  *bool `json:"disabled"`
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}
	if v.Disabled != nil && *v.Disabled {
		return false
	}
	return v.Supported == nil || *v.Supported
}
