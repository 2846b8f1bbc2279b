package envutil

import (
	"testing"
	"time"
)

func TestReaders(t *testing.T) {
	t.Setenv("PL_TEST_INT", "42")
	t.Setenv("PL_TEST_BAD_INT", "x")
	t.Setenv("PL_TEST_FLOAT", "0.5")
	t.Setenv("PL_TEST_BOOL", "true")
	t.Setenv("PL_TEST_SECONDS", "30")
	t.Setenv("PL_TEST_NEG", "-1")
	t.Setenv("PL_TEST_MILLIS", "250")

	if got := Int("PL_TEST_INT", 1); got != 42 {
		t.Fatalf("Int=%d", got)
	}
	if got := Int("PL_TEST_BAD_INT", 7); got != 7 {
		t.Fatalf("Int fallback=%d", got)
	}
	if got := Float("PL_TEST_FLOAT", 1); got != 0.5 {
		t.Fatalf("Float=%v", got)
	}
	if !Bool("PL_TEST_BOOL", false) {
		t.Fatalf("Bool")
	}
	if got := Seconds("PL_TEST_SECONDS", time.Minute); got != 30*time.Second {
		t.Fatalf("Seconds=%v", got)
	}
	if got := Seconds("PL_TEST_NEG", time.Minute); got != time.Minute {
		t.Fatalf("Seconds negative fallback=%v", got)
	}
	if got := Millis("PL_TEST_MILLIS", time.Second); got != 250*time.Millisecond {
		t.Fatalf("Millis=%v", got)
	}
	if got := String("PL_TEST_UNSET", "def"); got != "def" {
		t.Fatalf("String=%q", got)
	}
}
