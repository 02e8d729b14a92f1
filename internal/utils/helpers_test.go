package utils

import (
	"reflect"
	"testing"
)

func TestParseBool(t *testing.T) {
	for _, v := range []string{"1", "true", "YES", " y ", "on"} {
		if !ParseBool(v) {
			t.Fatalf("ParseBool(%q) = false", v)
		}
	}
	for _, v := range []string{"", "0", "false", "off", "maybe"} {
		if ParseBool(v) {
			t.Fatalf("ParseBool(%q) = true", v)
		}
	}
}

func TestGetenvTrim(t *testing.T) {
	t.Setenv("HARBORVIEW_TEST_VALUE", "  spaced  ")
	if got := GetenvTrim("HARBORVIEW_TEST_VALUE"); got != "spaced" {
		t.Fatalf("GetenvTrim = %q", got)
	}
}

func TestNormalizeVersion(t *testing.T) {
	if got := NormalizeVersion(" v1.2.3 "); got != "1.2.3" {
		t.Fatalf("NormalizeVersion = %q", got)
	}
}

func TestSplitList(t *testing.T) {
	got := SplitList(" k8s_*, ,buildkit ,")
	want := []string{"k8s_*", "buildkit"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("SplitList = %v, want %v", got, want)
	}
	if SplitList("") != nil {
		t.Fatal("expected nil for empty input")
	}
}
