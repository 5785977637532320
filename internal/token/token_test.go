package token

import (
	"errors"
	"testing"
)

func TestParse(t *testing.T) {
	for _, raw := range []string{"ethereum", "matic", " matic "} {
		if _, err := Parse(raw); err != nil {
			t.Fatalf("Parse(%q) should succeed: %v", raw, err)
		}
	}

	for _, raw := range []string{"dogecoin", "", "matic-network", "ETH"} {
		if _, err := Parse(raw); !errors.Is(err, ErrUnsupported) {
			t.Fatalf("Parse(%q) should fail with ErrUnsupported, got %v", raw, err)
		}
	}
}

func TestProviderMapping(t *testing.T) {
	if Matic.ProviderID() != "matic-network" {
		t.Fatalf("unexpected matic provider id %q", Matic.ProviderID())
	}
	for _, tok := range All() {
		back, ok := FromProviderID(tok.ProviderID())
		if !ok || back != tok {
			t.Fatalf("provider id for %s does not map back", tok)
		}
	}
	if _, ok := FromProviderID("bitcoin"); ok {
		t.Fatal("unknown provider id should not resolve")
	}
}

func TestAllReturnsCopy(t *testing.T) {
	a := All()
	a[0] = "mutated"
	if All()[0] != Ethereum {
		t.Fatal("All must not expose the internal slice")
	}
}
