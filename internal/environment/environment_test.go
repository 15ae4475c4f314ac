package environment

import (
	"testing"
	"time"
)

func TestSetGet(t *testing.T) {
	tests := map[string]struct {
		value interface{}
	}{
		"string": {value: "hello"},
		"int":    {value: 42},
		"nil":    {value: nil},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			env := New()
			env.Set("key", test.value, 0)

			v, ok := env.Get("key")
			if !ok {
				t.Fatalf("expected key to be present")
			}
			if v != test.value {
				t.Fatalf("unexpected value; actual: %v, expected: %v", v, test.value)
			}
		})
	}
}

func TestGetMissing(t *testing.T) {
	env := New()
	if _, ok := env.Get("missing"); ok {
		t.Fatalf("expected key to be absent")
	}
}

func TestExpiry(t *testing.T) {
	env := New()
	env.Set("key", "value", time.Millisecond)

	time.Sleep(5 * time.Millisecond)

	if _, ok := env.Get("key"); ok {
		t.Fatalf("expected entry to have expired")
	}
	if size := env.Size(); size != 0 {
		t.Fatalf("expected expired entry to be reaped on access; size: %d", size)
	}
}

func TestDelete(t *testing.T) {
	env := New()
	env.Set("key", "value", 0)
	env.Delete("key")

	if _, ok := env.Get("key"); ok {
		t.Fatalf("expected key to be deleted")
	}
}

func TestClear(t *testing.T) {
	env := New()
	env.Set("a", 1, 0)
	env.Set("b", 2, 0)
	env.Clear()

	if size := env.Size(); size != 0 {
		t.Fatalf("expected empty environment; size: %d", size)
	}
}

func TestSize(t *testing.T) {
	env := New()
	if size := env.Size(); size != 0 {
		t.Fatalf("unexpected size; actual: %d, expected: 0", size)
	}

	env.Set("a", 1, 0)
	env.Set("b", 2, 0)
	if size := env.Size(); size != 2 {
		t.Fatalf("unexpected size; actual: %d, expected: 2", size)
	}
}
