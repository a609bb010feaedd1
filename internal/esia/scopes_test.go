// internal/esia/scopes_test.go
package esia

import (
	"testing"

	"github.com/dalemusser/esiagate/internal/app/system/gwerr"
)

func TestScopeSetValidateAccepts(t *testing.T) {
	ss := NewScopeSet(nil)

	got, err := ss.Validate("openid fullname email")
	if err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	if len(got) != 3 || got[0] != "openid" || got[1] != "fullname" || got[2] != "email" {
		t.Fatalf("Validate returned %v, want [openid fullname email]", got)
	}
}

func TestScopeSetValidateAggregatesInvalid(t *testing.T) {
	ss := NewScopeSet(nil)

	_, err := ss.Validate("openid bogus fullname worse")
	if err == nil {
		t.Fatal("Validate accepted invalid scopes")
	}
	if gwerr.KindOf(err) != gwerr.KindValidation {
		t.Fatalf("error kind = %v, want validation", gwerr.KindOf(err))
	}

	ge, _ := gwerr.As(err)
	invalid, ok := ge.Details["invalid_scopes"].([]string)
	if !ok {
		t.Fatalf("invalid_scopes detail missing or wrong type: %#v", ge.Details["invalid_scopes"])
	}
	if len(invalid) != 2 || invalid[0] != "bogus" || invalid[1] != "worse" {
		t.Fatalf("invalid_scopes = %v, want [bogus worse]", invalid)
	}
	if _, ok := ge.Details["allowed_scopes"]; !ok {
		t.Fatal("allowed_scopes detail missing")
	}
}

func TestScopeSetValidateEmptyString(t *testing.T) {
	ss := NewScopeSet(nil)

	got, err := ss.Validate("")
	if err != nil {
		t.Fatalf("Validate returned error for empty string: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("Validate returned %v for empty string", got)
	}
}

func TestScopeSetCustomAllowList(t *testing.T) {
	ss := NewScopeSet([]string{"openid"})

	if _, err := ss.Validate("openid"); err != nil {
		t.Fatalf("configured scope rejected: %v", err)
	}
	if _, err := ss.Validate("fullname"); err == nil {
		t.Fatal("scope outside the configured allow-list accepted")
	}
}
