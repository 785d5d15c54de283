package core

import (
	"errors"
	"testing"
)

func TestParseDriver(t *testing.T) {
	cases := map[string]Driver{"": DriverFilesystem, "FS": DriverFilesystem, " s3 ": DriverS3, "memory": DriverMemory}
	for in, want := range cases {
		got, err := ParseDriver(in)
		if err != nil || got != want {
			t.Fatalf("ParseDriver(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseDriver("gcs"); err == nil {
		t.Fatalf("expected unknown driver error")
	}
}

func TestValidateKey(t *testing.T) {
	for _, key := range []string{"reports/LOTE2024001/a.json", "a", "a/b..c"} {
		if err := ValidateKey(key); err != nil {
			t.Fatalf("ValidateKey(%q): %v", key, err)
		}
	}
	for _, key := range []string{"", "  ", "/abs", "../up", "reports/../x"} {
		if err := ValidateKey(key); !errors.Is(err, ErrInvalidKey) {
			t.Fatalf("ValidateKey(%q) = %v, want ErrInvalidKey", key, err)
		}
	}
}

func TestCloneMetadata(t *testing.T) {
	if CloneMetadata(nil) != nil {
		t.Fatalf("nil should stay nil")
	}
	in := map[string]string{"lot": "LOTE-2024-001"}
	out := CloneMetadata(in)
	out["lot"] = "changed"
	if in["lot"] != "LOTE-2024-001" {
		t.Fatalf("clone aliases input")
	}
}
