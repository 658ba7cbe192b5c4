package auth

import (
	"testing"
)

func TestHashKey(t *testing.T) {
	// sha256("demo-key")
	const want = "c48a01f49fd0f2cc404bc3cbbc80e91457a3d41bb429a695243de4c61794155c"
	hash := HashKey("demo-key")
	if hash != want {
		t.Fatalf("HashKey() = %s, want %s", hash, want)
	}
	if hash != HashKey("demo-key") {
		t.Error("HashKey() not consistent")
	}
	if hash == HashKey("demo-key2") {
		t.Error("HashKey() produced same hash for different keys")
	}
}

func TestMaskKey(t *testing.T) {
	tests := []struct {
		name string
		key  string
	}{
		{name: "short key", key: "k"},
		{name: "typical key", key: "sk-3f9a0c1e7b"},
		{name: "long key", key: "this-is-a-very-long-api-key-with-many-characters-1234567890"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hint := MaskKey(tt.key)
			if len(hint) != maskLength {
				t.Errorf("MaskKey() length = %d, want %d", len(hint), maskLength)
			}
			if hint != HashKey(tt.key)[:maskLength] {
				t.Errorf("MaskKey() = %s, want digest prefix", hint)
			}
		})
	}

	if MaskKey("") != "" {
		t.Error("MaskKey(\"\") should be empty")
	}
}
