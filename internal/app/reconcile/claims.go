// internal/app/reconcile/claims.go
package reconcile

import "encoding/json"

// Claim accessors for the loosely-typed maps the provider returns.
// JSON numbers arrive as float64; absent or mistyped values fall back
// to the zero value rather than failing the reconciliation.

func claimString(m map[string]any, key string) *string {
	if v, ok := m[key].(string); ok {
		return &v
	}
	return nil
}

func claimBool(m map[string]any, key string) bool {
	v, _ := m[key].(bool)
	return v
}

func claimInt64(m map[string]any, key string) *int64 {
	switch v := m[key].(type) {
	case float64:
		n := int64(v)
		return &n
	case int64:
		return &v
	case int:
		n := int64(v)
		return &n
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return &n
		}
	}
	return nil
}

func claimJSON(m map[string]any, key string) json.RawMessage {
	v, ok := m[key]
	if !ok || v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}

func boolPtr(b bool) *bool { return &b }
