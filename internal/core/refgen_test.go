package core

import "testing"

func TestPublicRef(t *testing.T) {
	cases := []struct{ in, want string }{
		{"ORD-GEN-00042", "ORD-GEN-00042"},
		{"ORD-GEN-00042~2", "ORD-GEN-00042"},
		{"ORD-GEN-00042~3", "ORD-GEN-00042"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := PublicRef(tc.in); got != tc.want {
			t.Errorf("PublicRef(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSiblingOrderRef(t *testing.T) {
	if got := siblingOrderRef("ORD-GEN-00042", 2); got != "ORD-GEN-00042~2" {
		t.Errorf("siblingOrderRef = %q, want ORD-GEN-00042~2", got)
	}
	// deriving from an existing sibling still scopes to the bare reference
	if got := siblingOrderRef("ORD-GEN-00042~2", 3); got != "ORD-GEN-00042~3" {
		t.Errorf("siblingOrderRef from sibling = %q, want ORD-GEN-00042~3", got)
	}
}

func TestLotRefFor(t *testing.T) {
	if got := lotRefFor("ORD-GEN-00042", "WIDGET-A"); got != "ORD-GEN-00042-WIDGET-A" {
		t.Errorf("lotRefFor = %q", got)
	}
}
