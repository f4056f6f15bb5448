// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"testing"
	"time"
)

func TestParseHelpers(t *testing.T) {
	t.Setenv("CAMFETCH_TEST_STRING", "value")
	t.Setenv("CAMFETCH_TEST_EMPTY", "")
	t.Setenv("CAMFETCH_TEST_INT", "42")
	t.Setenv("CAMFETCH_TEST_BAD_INT", "x")
	t.Setenv("CAMFETCH_TEST_DUR", "2m")
	t.Setenv("CAMFETCH_TEST_BOOL", "YES")
	t.Setenv("CAMFETCH_TEST_BAD_BOOL", "maybe")
	t.Setenv("CAMFETCH_TEST_FLOAT", "0.25")
	t.Setenv("CAMFETCH_TEST_TIME", "2024-05-01T10:00:00Z")

	if got := ParseString("CAMFETCH_TEST_STRING", "d"); got != "value" {
		t.Errorf("ParseString = %q", got)
	}
	if got := ParseString("CAMFETCH_TEST_EMPTY", "d"); got != "d" {
		t.Errorf("ParseString(empty) = %q", got)
	}
	if got := ParseString("CAMFETCH_TEST_UNSET", "d"); got != "d" {
		t.Errorf("ParseString(unset) = %q", got)
	}
	if got := ParseInt("CAMFETCH_TEST_INT", 1); got != 42 {
		t.Errorf("ParseInt = %d", got)
	}
	if got := ParseInt("CAMFETCH_TEST_BAD_INT", 1); got != 1 {
		t.Errorf("ParseInt(bad) = %d", got)
	}
	if got := ParseDuration("CAMFETCH_TEST_DUR", time.Second); got != 2*time.Minute {
		t.Errorf("ParseDuration = %s", got)
	}
	if got := ParseBool("CAMFETCH_TEST_BOOL", false); !got {
		t.Errorf("ParseBool = %v", got)
	}
	if got := ParseBool("CAMFETCH_TEST_BAD_BOOL", true); !got {
		t.Errorf("ParseBool(bad) = %v", got)
	}
	if got := ParseFloat("CAMFETCH_TEST_FLOAT", 1); got != 0.25 {
		t.Errorf("ParseFloat = %v", got)
	}
	want := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	if got := ParseTime("CAMFETCH_TEST_TIME", time.Time{}); !got.Equal(want) {
		t.Errorf("ParseTime = %s", got)
	}
}

func TestIsSensitiveKey(t *testing.T) {
	for key, want := range map[string]bool{
		"CAMFETCH_CLOUD_PASSWORD": true,
		"CAMFETCH_REDIS_PASSWORD": true,
		"CAMFETCH_API_TOKEN":      true,
		"CAMFETCH_CLOUD_URL":      false,
	} {
		if got := isSensitiveKey(key); got != want {
			t.Errorf("isSensitiveKey(%s) = %v, want %v", key, got, want)
		}
	}
}
