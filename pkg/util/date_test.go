package util

import (
	"strconv"
	"testing"
	"time"
)

func TestParseTimeRFC3339(t *testing.T) {
	s := "2024-10-10T10:10:10Z"
	got, ok := ParseTime(s)
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.Format(time.RFC3339) != s {
		t.Fatalf("unexpected time %v", got)
	}
}

func TestParseTimeOffsetIsUTC(t *testing.T) {
	got, ok := ParseTime("2024-10-10T12:10:10+02:00")
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.Location() != time.UTC || got.Hour() != 10 {
		t.Fatalf("expected 10:10 UTC, got %v", got)
	}
}

func TestParseTimeUnix(t *testing.T) {
	ts := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC).Unix()
	got, ok := ParseTime(strconv.FormatInt(ts, 10))
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.Unix() != ts {
		t.Fatalf("unexpected unix %v", got.Unix())
	}
}

func TestAlignFromTo(t *testing.T) {
	from := time.Date(2024, 10, 10, 10, 7, 31, 0, time.UTC)
	to := time.Date(2024, 10, 10, 11, 59, 59, 0, time.UTC)

	f, e := AlignFromTo(from, to, 15)
	if !f.Equal(time.Date(2024, 10, 10, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected from %v", f)
	}
	if !e.Equal(time.Date(2024, 10, 10, 11, 45, 0, 0, time.UTC)) {
		t.Fatalf("unexpected to %v", e)
	}

	f, _ = AlignFromTo(from, to, 0)
	if !f.Equal(time.Date(2024, 10, 10, 10, 7, 0, 0, time.UTC)) {
		t.Fatalf("expected minute alignment, got %v", f)
	}
}

func TestTrailingWindow(t *testing.T) {
	now := time.Date(2024, 10, 10, 10, 7, 31, 0, time.UTC)
	from, to := TrailingWindow(now, 2*time.Hour, 1)
	if !from.Equal(time.Date(2024, 10, 10, 8, 7, 0, 0, time.UTC)) || !to.Equal(time.Date(2024, 10, 10, 10, 7, 0, 0, time.UTC)) {
		t.Fatalf("unexpected window %v %v", from, to)
	}
}
