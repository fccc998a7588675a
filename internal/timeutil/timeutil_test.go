package timeutil

import (
	"testing"
	"time"
)

func TestParseStamp(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*3600)

	t.Run("naive stamp takes the target zone", func(t *testing.T) {
		got, err := ParseStamp("2025-01-01 12:00:00", loc)
		if err != nil {
			t.Fatalf("ParseStamp failed: %v", err)
		}
		want := time.Date(2025, 1, 1, 12, 0, 0, 0, loc)
		if !got.Equal(want) {
			t.Errorf("got %s, want %s", got, want)
		}
	})

	t.Run("zoned stamp is converted", func(t *testing.T) {
		got, err := ParseStamp("2025-01-01T12:00:00Z", loc)
		if err != nil {
			t.Fatalf("ParseStamp failed: %v", err)
		}
		want := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
		if !got.Equal(want) {
			t.Errorf("got %s, want %s", got, want)
		}
		if got.Location() != loc {
			t.Errorf("expected location %v, got %v", loc, got.Location())
		}
	})

	t.Run("fractional seconds", func(t *testing.T) {
		got, err := ParseStamp("2025-01-01 12:00:00.500", time.UTC)
		if err != nil {
			t.Fatalf("ParseStamp failed: %v", err)
		}
		if got.Nanosecond() != 500000000 {
			t.Errorf("expected 500ms fraction, got %d ns", got.Nanosecond())
		}
	})

	t.Run("garbage is rejected", func(t *testing.T) {
		if _, err := ParseStamp("not a time", time.UTC); err == nil {
			t.Error("expected error for unparseable stamp")
		}
	})
}

func TestWindowContains(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)

	w, err := NewWindow(&start, &end, time.UTC)
	if err != nil {
		t.Fatalf("NewWindow failed: %v", err)
	}

	t.Run("inclusive bounds", func(t *testing.T) {
		if !w.Contains(start) {
			t.Error("start bound should be inclusive")
		}
		if !w.Contains(end) {
			t.Error("end bound should be inclusive")
		}
		if w.Contains(end.Add(time.Second)) {
			t.Error("just past end should be excluded")
		}
	})

	t.Run("open bounds are unbounded", func(t *testing.T) {
		open := Window{}
		if !open.Contains(time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)) {
			t.Error("open window should contain everything")
		}
		startOnly := Window{Start: &start}
		if startOnly.Contains(start.Add(-time.Second)) {
			t.Error("before start should be excluded")
		}
		if !startOnly.Contains(end.AddDate(10, 0, 0)) {
			t.Error("far future should be included with open end")
		}
	})

	t.Run("start after end is rejected", func(t *testing.T) {
		if _, err := NewWindow(&end, &start, time.UTC); err == nil {
			t.Error("expected error for inverted window")
		}
	})
}

// Containment must be identical whether the window and the probe are
// both expressed in UTC or both in a fixed offset zone.
func TestWindowZoneEquivalence(t *testing.T) {
	offset := time.FixedZone("UTC-5", -5*3600)

	startUTC := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	endUTC := time.Date(2025, 3, 10, 20, 0, 0, 0, time.UTC)

	wUTC, err := NewWindow(&startUTC, &endUTC, time.UTC)
	if err != nil {
		t.Fatalf("NewWindow failed: %v", err)
	}
	wOff, err := NewWindow(&startUTC, &endUTC, offset)
	if err != nil {
		t.Fatalf("NewWindow failed: %v", err)
	}

	probes := []time.Time{
		startUTC.Add(-time.Minute),
		startUTC,
		startUTC.Add(6 * time.Hour),
		endUTC,
		endUTC.Add(time.Minute),
	}
	for _, p := range probes {
		if wUTC.Contains(p) != wOff.Contains(Normalize(p, offset)) {
			t.Errorf("containment differs across zones for %s", p)
		}
	}
}

func TestWindowBuffered(t *testing.T) {
	start := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	end := time.Date(2025, 1, 1, 14, 0, 0, 0, time.UTC)
	w := Window{Start: &start, End: &end, Buffer: 30 * time.Minute}

	b := w.Buffered()
	if !b.Contains(start.Add(-20 * time.Minute)) {
		t.Error("buffered window should cover 20 minutes before start")
	}
	if b.Contains(start.Add(-40 * time.Minute)) {
		t.Error("buffered window should not cover 40 minutes before start")
	}
	if !b.Contains(end.Add(29 * time.Minute)) {
		t.Error("buffered window should cover 29 minutes after end")
	}

	t.Run("zero buffer falls back to default", func(t *testing.T) {
		b := Window{Start: &start, End: &end}.Buffered()
		if !b.Contains(start.Add(-59 * time.Minute)) {
			t.Error("default buffer should be one hour")
		}
	})
}
