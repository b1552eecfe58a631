package config

import (
	"testing"
	"time"

	kit "detrelay/internal/platform/testkit"
)

func TestPrefixAndKey(t *testing.T) {
	root := New()
	api := root.Prefix("API_")
	if got := api.key("URL"); got != "API_URL" {
		t.Fatalf("key() = %q, want %q", got, "API_URL")
	}
	// nested prefix
	apiLog := api.Prefix("LOG_")
	if got := apiLog.key("LEVEL"); got != "API_LOG_LEVEL" {
		t.Fatalf("nested key() = %q, want %q", got, "API_LOG_LEVEL")
	}
}

// Must* panics

func TestMustString(t *testing.T) {
	c := New().Prefix("APP_")
	t.Setenv("APP_NAME", "  detrelay ")
	if got := c.MustString("NAME"); got != "detrelay" {
		t.Fatalf("MustString = %q", got)
	}
	kit.MustPanic(t, func() { c.MustString("MISSING") })
}

func TestMustURL(t *testing.T) {
	c := New().Prefix("APP_")
	t.Setenv("APP_URL", "https://api.example.com/v2/detections")
	u := c.MustURL("URL")
	if u.Host != "api.example.com" {
		t.Fatalf("MustURL host = %q", u.Host)
	}
	t.Setenv("APP_URL", "not a url at all\x7f")
	kit.MustPanic(t, func() { c.MustURL("URL") })
	t.Setenv("APP_URL", "/relative/only")
	kit.MustPanic(t, func() { c.MustURL("URL") })
}

func TestRequire(t *testing.T) {
	c := New().Prefix("APP_")
	t.Setenv("APP_A", "1")
	t.Setenv("APP_B", "2")
	kit.MustNotPanic(t, func() { c.Require("A", "B") })
	kit.MustPanic(t, func() { c.Require("A", "B", "C") })
}

// May* defaults

func TestMayString(t *testing.T) {
	c := New().Prefix("APP_")
	if got := c.MayString("NOPE", "def"); got != "def" {
		t.Fatalf("MayString default = %q", got)
	}
	t.Setenv("APP_TOKEN", " tok ")
	if got := c.MayString("TOKEN", "def"); got != "tok" {
		t.Fatalf("MayString = %q", got)
	}
}

func TestMayInt(t *testing.T) {
	c := New().Prefix("APP_")
	if got := c.MayInt("NOPE", 5); got != 5 {
		t.Fatalf("MayInt default = %d", got)
	}
	t.Setenv("APP_N", "12")
	if got := c.MayInt("N", 5); got != 12 {
		t.Fatalf("MayInt = %d", got)
	}
	t.Setenv("APP_N", "twelve")
	if got := c.MayInt("N", 5); got != 5 {
		t.Fatalf("MayInt invalid = %d, want default", got)
	}
}

func TestMayBool(t *testing.T) {
	c := New().Prefix("APP_")
	if got := c.MayBool("NOPE", true); got != true {
		t.Fatalf("MayBool default = %v", got)
	}
	t.Setenv("APP_F", "false")
	if got := c.MayBool("F", true); got != false {
		t.Fatalf("MayBool = %v", got)
	}
	t.Setenv("APP_F", "junk")
	if got := c.MayBool("F", true); got != true {
		t.Fatalf("MayBool invalid = %v, want default", got)
	}
}

func TestMayDuration(t *testing.T) {
	c := New().Prefix("APP_")
	if got := c.MayDuration("NOPE", 2*time.Second); got != 2*time.Second {
		t.Fatalf("MayDuration default = %v", got)
	}
	t.Setenv("APP_T", "250ms")
	if got := c.MayDuration("T", time.Second); got != 250*time.Millisecond {
		t.Fatalf("MayDuration = %v", got)
	}
	t.Setenv("APP_T", "soon")
	if got := c.MayDuration("T", time.Second); got != time.Second {
		t.Fatalf("MayDuration invalid = %v, want default", got)
	}
}

func TestMayCSV(t *testing.T) {
	c := New().Prefix("APP_")
	def := []string{"a"}
	if got := c.MayCSV("NOPE", def); len(got) != 1 || got[0] != "a" {
		t.Fatalf("MayCSV default = %v", got)
	}
	t.Setenv("APP_L", " x , y ,, z ")
	got := c.MayCSV("L", def)
	if len(got) != 3 || got[0] != "x" || got[1] != "y" || got[2] != "z" {
		t.Fatalf("MayCSV = %v", got)
	}
	t.Setenv("APP_L", " , , ")
	if got := c.MayCSV("L", def); len(got) != 1 || got[0] != "a" {
		t.Fatalf("MayCSV all-blank = %v, want default", got)
	}
}

func TestMayIntCSV(t *testing.T) {
	c := New().Prefix("APP_")
	def := []int{429, 500}
	if got := c.MayIntCSV("NOPE", def); len(got) != 2 {
		t.Fatalf("MayIntCSV default = %v", got)
	}
	t.Setenv("APP_CODES", "429,500,502,503,504")
	got := c.MayIntCSV("CODES", def)
	if len(got) != 5 || got[0] != 429 || got[4] != 504 {
		t.Fatalf("MayIntCSV = %v", got)
	}
	t.Setenv("APP_CODES", "429,junk")
	if got := c.MayIntCSV("CODES", def); len(got) != 2 || got[0] != 429 || got[1] != 500 {
		t.Fatalf("MayIntCSV invalid element = %v, want default", got)
	}
}
