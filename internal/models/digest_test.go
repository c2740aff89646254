// Svodka - Regional Community Digest Engine
// Copyright 2026 Okrug Media
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okrugmedia/svodka

package models

import (
	"testing"
	"time"
)

func TestSlotForHour(t *testing.T) {
	tests := []struct {
		hour int
		want TimeSlot
		ok   bool
	}{
		{6, SlotMorning, true},
		{11, SlotMorning, true},
		{12, SlotAfternoon, true},
		{17, SlotAfternoon, true},
		{18, SlotEvening, true},
		{22, SlotEvening, true},
		{23, "", false},
		{0, "", false},
		{5, "", false},
	}
	for _, tt := range tests {
		got, ok := SlotForHour(tt.hour)
		if got != tt.want || ok != tt.ok {
			t.Errorf("SlotForHour(%d) = %q, %v; want %q, %v", tt.hour, got, ok, tt.want, tt.ok)
		}
	}
}

func TestSlotHoursRoundTrip(t *testing.T) {
	for _, slot := range []TimeSlot{SlotMorning, SlotAfternoon, SlotEvening} {
		from, to, ok := SlotHours(slot)
		if !ok {
			t.Fatalf("SlotHours(%q) not ok", slot)
		}
		for h := from; h <= to; h++ {
			if got, _ := SlotForHour(h); got != slot {
				t.Errorf("hour %d maps to %q, want %q", h, got, slot)
			}
		}
	}
	if _, _, ok := SlotHours(TimeSlot("night")); ok {
		t.Error("unknown slot reported ok")
	}
}

func TestDigestScheduled(t *testing.T) {
	d := Digest{}
	if d.Scheduled() {
		t.Error("fresh digest reports scheduled")
	}
	at := time.Now()
	d.ScheduledAt = &at
	if !d.Scheduled() {
		t.Error("scheduled digest reports unscheduled")
	}
}
