package util

import (
	"strconv"
	"testing"
	"time"
)

func TestParseTimeRFC3339(t *testing.T) {
	s := "2026-02-10T10:10:10Z"
	got, ok := ParseTime(s)
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.UTC().Format(time.RFC3339) != s {
		t.Fatalf("unexpected time %v", got)
	}
}

func TestParseTimeUnix(t *testing.T) {
	ts := time.Date(2026, 2, 10, 10, 10, 10, 0, time.UTC).Unix()
	got, ok := ParseTime(strconv.FormatInt(ts, 10))
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.Unix() != ts {
		t.Fatalf("unexpected unix %v", got.Unix())
	}
}

func TestParseTimeDefault(t *testing.T) {
	def := time.Date(2026, 2, 10, 10, 10, 10, 0, time.UTC)
	got := ParseTimeDefault("", def)
	if !got.Equal(def) {
		t.Fatalf("expected default")
	}
}

func TestNormalizeUnix(t *testing.T) {
	sec := int64(1767225600)
	if got := NormalizeUnix(sec * 1000); got != sec {
		t.Fatalf("expected %d, got %d", sec, got)
	}
	if got := NormalizeUnix(sec); got != sec {
		t.Fatalf("expected %d, got %d", sec, got)
	}
}

func TestAlignFromTo(t *testing.T) {
	from := time.Date(2026, 2, 10, 10, 10, 10, 0, time.UTC)
	to := time.Date(2026, 2, 10, 12, 59, 59, 0, time.UTC)
	gf, gt := AlignFromTo(from, to, "1h")
	if gf.Minute() != 0 || gf.Second() != 0 {
		t.Fatalf("from not aligned: %v", gf)
	}
	if gt.Hour() != 12 || gt.Minute() != 0 {
		t.Fatalf("to not aligned: %v", gt)
	}
}
