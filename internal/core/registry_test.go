package core

import (
	"context"
	"testing"
)

func TestNormalizeMAC(t *testing.T) {
	valid := []struct {
		in   string
		want string
	}{
		{"94:B8:6D:AA:BB:CC", "94:B8:6D:AA:BB:CC"},
		{"94B86DAABBCC", "94:B8:6D:AA:BB:CC"},
		{"94b86daabbcc", "94:B8:6D:AA:BB:CC"},
		{"94-b8-6d-aa-bb-cc", "94:B8:6D:AA:BB:CC"},
		{" 94 b8 6d aa bb cc ", "94:B8:6D:AA:BB:CC"},
		{"00:11:22:33:44:55", "00:11:22:33:44:55"},
	}
	for _, tc := range valid {
		got, err := NormalizeMAC(tc.in)
		if err != nil {
			t.Errorf("NormalizeMAC(%q) returned error: %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("NormalizeMAC(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}

	invalid := []string{
		"",
		"94:B8:6D",
		"94:B8:6D:AA:BB:CC:DD",
		"GG:GG:GG:GG:GG:GG",
		"not-a-mac",
	}
	for _, in := range invalid {
		if _, err := NormalizeMAC(in); err == nil {
			t.Errorf("NormalizeMAC(%q) succeeded, want error", in)
		}
	}
}

func TestRegistryUpsertCreatesOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.registry.Upsert(ctx, "94b86daabbcc", "uid-1", "Front Counter", `{"online":true}`)
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if first.MACAddress != "94:B8:6D:AA:BB:CC" {
		t.Fatalf("stored mac = %q, want canonical form", first.MACAddress)
	}
	if !first.IsActive {
		t.Fatal("new printer should be active")
	}

	// A different spelling of the same MAC must hit the same row.
	second, err := env.registry.Upsert(ctx, "94:B8:6D:AA:BB:CC", "", "", "")
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("second upsert created printer %d, want %d", second.ID, first.ID)
	}
	if second.Name != "Front Counter" {
		t.Fatalf("empty name on contact overwrote stored name: got %q", second.Name)
	}
	if second.UID != "uid-1" {
		t.Fatalf("empty uid on contact overwrote stored uid: got %q", second.UID)
	}
	if second.LastSeenAt == nil {
		t.Fatal("last_seen_at not set on contact")
	}
}

func TestRegistryUpsertRefreshesName(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.registry.Upsert(ctx, "001122334455", "", "Old Name", ""); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	p, err := env.registry.Upsert(ctx, "001122334455", "", "New Name", "")
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if p.Name != "New Name" {
		t.Fatalf("name = %q, want refreshed name", p.Name)
	}
}

func TestRegistryFindByMACRejectsInvalid(t *testing.T) {
	env := newTestEnv(t)

	if _, err := env.registry.FindByMAC(context.Background(), "zz"); err == nil {
		t.Fatal("FindByMAC accepted invalid mac")
	}
}
