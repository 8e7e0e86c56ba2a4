package params

import "testing"

func TestAccessors(t *testing.T) {
	m := Map{
		"fast":    10,
		"slow":    int64(30),
		"ratio":   2.5,
		"whole":   float64(14),
		"half":    14.5,
		"name":    "sma_cross",
		"enabled": true,
	}

	if got := m.Int("fast", 0); got != 10 {
		t.Errorf("Int(fast) = %d, want 10", got)
	}
	if got := m.Int("slow", 0); got != 30 {
		t.Errorf("Int(slow) = %d, want 30", got)
	}
	if got := m.Int("whole", 0); got != 14 {
		t.Errorf("Int(whole) = %d, want 14 (whole float accepted)", got)
	}
	if got := m.Int("half", 7); got != 7 {
		t.Errorf("Int(half) = %d, want default for fractional value", got)
	}
	if got := m.Int("missing", 20); got != 20 {
		t.Errorf("Int(missing) = %d, want default 20", got)
	}

	if got := m.Float("ratio", 0); got != 2.5 {
		t.Errorf("Float(ratio) = %v, want 2.5", got)
	}
	if got := m.Float("fast", 0); got != 10 {
		t.Errorf("Float(fast) = %v, want 10 (int promoted)", got)
	}

	if got := m.String("name", ""); got != "sma_cross" {
		t.Errorf("String(name) = %q", got)
	}
	if got := m.String("fast", "x"); got != "x" {
		t.Errorf("String(fast) = %q, want default for non-string", got)
	}

	if !m.Bool("enabled", false) {
		t.Error("Bool(enabled) = false, want true")
	}
	if m.Bool("missing", false) {
		t.Error("Bool(missing) = true, want default false")
	}
}

func TestNilMap(t *testing.T) {
	var m Map
	if got := m.Int("any", 5); got != 5 {
		t.Errorf("nil map Int = %d, want default", got)
	}
}
