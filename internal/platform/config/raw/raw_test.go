package raw

import (
	"testing"
)

func TestGetDefaultsAndTrim(t *testing.T) {
	c := New().Prefix("RAWTEST_")
	t.Setenv("RAWTEST_NAME", "  hello ")
	if got := c.Get("NAME", "x"); got != "hello" {
		t.Fatalf("Get = %q", got)
	}
	if got := c.Get("MISSING", "fallback"); got != "fallback" {
		t.Fatalf("Get default = %q", got)
	}
}

func TestGetBool(t *testing.T) {
	c := New().Prefix("RAWTEST_")
	cases := []struct {
		val  string
		want bool
	}{
		{"1", true},
		{"true", true},
		{"yes", true},
		{"YES", true},
		{"0", false},
		{"no", false},
		{"junk", false},
	}
	for _, cse := range cases {
		t.Setenv("RAWTEST_FLAG", cse.val)
		if got := c.GetBool("FLAG", false); got != cse.want {
			t.Fatalf("GetBool(%q) = %v, want %v", cse.val, got, cse.want)
		}
	}
	if !c.GetBool("MISSING", true) {
		t.Fatalf("GetBool default not honored")
	}
}

func TestGetInt(t *testing.T) {
	c := New().Prefix("RAWTEST_")
	t.Setenv("RAWTEST_N", "42")
	if got := c.GetInt("N", 7); got != 42 {
		t.Fatalf("GetInt = %d", got)
	}
	t.Setenv("RAWTEST_N", "-3")
	if got := c.GetInt("N", 7); got != 7 {
		t.Fatalf("GetInt negative = %d, want default", got)
	}
	t.Setenv("RAWTEST_N", "4x2")
	if got := c.GetInt("N", 7); got != 7 {
		t.Fatalf("GetInt junk = %d, want default", got)
	}
	if got := c.GetInt("MISSING", 9); got != 9 {
		t.Fatalf("GetInt default = %d", got)
	}
}

func TestNestedPrefix(t *testing.T) {
	c := New().Prefix("A_").Prefix("B_")
	t.Setenv("A_B_K", "v")
	if got := c.Get("K", ""); got != "v" {
		t.Fatalf("nested prefix Get = %q", got)
	}
}
