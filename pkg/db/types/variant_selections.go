package dbtypes

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
)

// VariantSelection is one name/value pair that disambiguates a product
// variant, e.g. {"color", "black"}.
type VariantSelection struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// VariantSelections is the ordered list of selections attached to a cart line.
// It is persisted as a JSON array.
type VariantSelections []VariantSelection

func (v *VariantSelections) Scan(src any) error {
	if src == nil {
		*v = VariantSelections{}
		return nil
	}

	switch raw := src.(type) {
	case string:
		return v.parse([]byte(raw))
	case []byte:
		return v.parse(raw)
	default:
		return fmt.Errorf("VariantSelections: unsupported Scan type %T", src)
	}
}

func (v VariantSelections) Value() (driver.Value, error) {
	if len(v) == 0 {
		return "[]", nil
	}
	encoded, err := json.Marshal([]VariantSelection(v))
	if err != nil {
		return nil, fmt.Errorf("VariantSelections: marshal: %w", err)
	}
	return string(encoded), nil
}

func (v *VariantSelections) parse(raw []byte) error {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" || trimmed == "[]" {
		*v = VariantSelections{}
		return nil
	}
	var out []VariantSelection
	if err := json.Unmarshal([]byte(trimmed), &out); err != nil {
		return fmt.Errorf("VariantSelections: parse %q: %w", trimmed, err)
	}
	*v = VariantSelections(out)
	return nil
}

// Key returns the canonical encoding used to compare two selection lists.
// Order is significant: [color=red, size=M] and [size=M, color=red] differ.
func (v VariantSelections) Key() string {
	if len(v) == 0 {
		return ""
	}
	parts := make([]string, 0, len(v))
	for _, sel := range v {
		parts = append(parts, escapeKeyPart(sel.Name)+"="+escapeKeyPart(sel.Value))
	}
	return strings.Join(parts, "&")
}

// Equal reports whether both lists hold the same pairs in the same order.
func (v VariantSelections) Equal(other VariantSelections) bool {
	if len(v) != len(other) {
		return false
	}
	for i := range v {
		if v[i] != other[i] {
			return false
		}
	}
	return true
}

var keyEscaper = strings.NewReplacer(`\`, `\\`, "=", `\=`, "&", `\&`)

func escapeKeyPart(s string) string {
	return keyEscaper.Replace(s)
}
