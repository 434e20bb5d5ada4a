package scheduling

import (
	"errors"
	"testing"
	"time"
)

func TestExpandGridTwoSlots(t *testing.T) {
	// 50-minute steps from 08:00 capped at 10:00: a third candidate ending
	// 10:30 must not be emitted.
	slots, err := ExpandGrid(BulkCreateRequest{
		Date:            "2024-03-11",
		StartTime:       "08:00",
		EndTime:         "10:00",
		DurationMinutes: 50,
		PriceCents:      15000,
	})
	if err != nil {
		t.Fatalf("expand failed: %v", err)
	}
	if len(slots) != 2 {
		t.Fatalf("expected exactly 2 slots, got %d", len(slots))
	}

	want := [][2]string{
		{"2024-03-11T08:00:00Z", "2024-03-11T08:50:00Z"},
		{"2024-03-11T08:50:00Z", "2024-03-11T09:40:00Z"},
	}
	for i, s := range slots {
		if got := s.StartAt.Format(time.RFC3339); got != want[i][0] {
			t.Errorf("slot %d start = %s, want %s", i, got, want[i][0])
		}
		if got := s.EndAt.Format(time.RFC3339); got != want[i][1] {
			t.Errorf("slot %d end = %s, want %s", i, got, want[i][1])
		}
	}
}

func TestExpandGridExactFit(t *testing.T) {
	slots, err := ExpandGrid(BulkCreateRequest{
		Date:            "2024-03-11",
		StartTime:       "09:00",
		EndTime:         "11:00",
		DurationMinutes: 30,
		PriceCents:      10000,
	})
	if err != nil {
		t.Fatalf("expand failed: %v", err)
	}
	if len(slots) != 4 {
		t.Fatalf("expected 4 slots, got %d", len(slots))
	}
	if !slots[3].EndAt.Equal(time.Date(2024, 3, 11, 11, 0, 0, 0, time.UTC)) {
		t.Fatalf("last slot should end exactly at the window end, got %s", slots[3].EndAt)
	}
}

func TestExpandGridInvalidWindow(t *testing.T) {
	cases := []BulkCreateRequest{
		{Date: "2024-03-11", StartTime: "10:00", EndTime: "08:00", DurationMinutes: 30},
		{Date: "2024-03-11", StartTime: "08:00", EndTime: "08:00", DurationMinutes: 30},
		{Date: "2024-03-11", StartTime: "08:00", EndTime: "10:00", DurationMinutes: 0},
		{Date: "2024-03-11", StartTime: "08:00", EndTime: "10:00", DurationMinutes: -15},
		{Date: "2024-03-11", StartTime: "08:00", EndTime: "10:00", DurationMinutes: 30, PriceCents: -1},
		{Date: "11/03/2024", StartTime: "08:00", EndTime: "10:00", DurationMinutes: 30},
		{Date: "2024-03-11", StartTime: "8am", EndTime: "10:00", DurationMinutes: 30},
	}
	for i, req := range cases {
		if _, err := ExpandGrid(req); !errors.Is(err, ErrInvalidWindow) {
			t.Errorf("case %d: expected ErrInvalidWindow, got %v", i, err)
		}
	}
}

func TestExpandGridWindowShorterThanDuration(t *testing.T) {
	slots, err := ExpandGrid(BulkCreateRequest{
		Date:            "2024-03-11",
		StartTime:       "08:00",
		EndTime:         "08:20",
		DurationMinutes: 30,
	})
	if err != nil {
		t.Fatalf("expand failed: %v", err)
	}
	if len(slots) != 0 {
		t.Fatalf("expected no slots, got %d", len(slots))
	}
}
