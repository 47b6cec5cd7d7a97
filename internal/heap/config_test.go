package heap

import "testing"

func TestParseSize(t *testing.T) {
	cases := []struct {
		in      string
		want    RegionSize
		wantErr bool
	}{
		{"1024", 1024, false},
		{"4k", 4 << 10, false},
		{"4K", 4 << 10, false},
		{"256m", 256 << 20, false},
		{"2G", 2 << 30, false},
		{"  64M  ", 64 << 20, false},
		{"", 0, true},
		{"abc", 0, true},
		{"4x", 0, true},
	}

	for _, c := range cases {
		got, err := ParseSize(c.in)
		if c.wantErr {
			if err == nil {
				t.Errorf("ParseSize(%q): expected error, got %d", c.in, got)
			}

			continue
		}

		if err != nil {
			t.Errorf("ParseSize(%q): unexpected error: %v", c.in, err)
			continue
		}

		if got != c.want {
			t.Errorf("ParseSize(%q) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestConfigValidate(t *testing.T) {
	base := DefaultConfig()

	if err := base.Validate(); err != nil {
		t.Fatalf("default config should validate, got %v", err)
	}

	bad := base
	bad.InitMemory = bad.MaxMemory + 1
	if err := bad.Validate(); err == nil {
		t.Error("expected error when InitMemory exceeds MaxMemory")
	}

	bad = base
	bad.MinYoungGenPercent = 0
	if err := bad.Validate(); err == nil {
		t.Error("expected error when MinYoungGenPercent is 0")
	}

	bad = base
	bad.MinYoungGenPercent = 100
	if err := bad.Validate(); err == nil {
		t.Error("expected error when MinYoungGenPercent is 100")
	}

	bad = base
	bad.HeapAlignment = 3
	if err := bad.Validate(); err == nil {
		t.Error("expected error when HeapAlignment is not a power of two")
	}
}

func TestDefaultConfig(t *testing.T) {
	c := DefaultConfig()

	if c.MaxMemory != 256<<20 {
		t.Errorf("default MaxMemory = %d, want %d", c.MaxMemory, 256<<20)
	}

	if c.InitMemory != 64<<20 {
		t.Errorf("default InitMemory = %d, want %d", c.InitMemory, 64<<20)
	}

	if c.MinYoungGenPercent != 5 {
		t.Errorf("default MinYoungGenPercent = %v, want 5", c.MinYoungGenPercent)
	}
}
