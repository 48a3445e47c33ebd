package toolout_test

import (
	"strings"
	"testing"

	"kiln/internal/toolout"
)

func TestParseCdrdaoCombinedProgressLine(t *testing.T) {
	events := toolout.ParseCdrdao("Wrote 123 of 650 MB (buffers 98% 95%) 4.1x")
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %#v", events)
	}
	if events[0].Kind != toolout.KindProgress || events[0].WrittenMiB != 123 || events[0].TotalMiB != 650 {
		t.Fatalf("unexpected progress event: %#v", events[0])
	}
	if events[1].Kind != toolout.KindBuffers || events[1].FifoPercent != 98 || events[1].DevicePercent != 95 {
		t.Fatalf("unexpected buffers event: %#v", events[1])
	}
	if events[2].Kind != toolout.KindSpeed || events[2].Speed != "4.1" {
		t.Fatalf("unexpected speed event: %#v", events[2])
	}
}

func TestParseCdrdaoProgressWithoutTrailingSpeed(t *testing.T) {
	events := toolout.ParseCdrdao("Wrote 1 of 650 MB (buffers 100% 0%)")
	if len(events) != 2 {
		t.Fatalf("expected progress and buffers only, got %#v", events)
	}
}

func TestParseCdrdaoMarkers(t *testing.T) {
	begin := toolout.ParseCdrdao("Starting write at speed 4...")
	if len(begin) != 1 || begin[0].Kind != toolout.KindPhase || begin[0].Phase != toolout.PhaseWrite {
		t.Fatalf("unexpected begin events: %#v", begin)
	}
	finish := toolout.ParseCdrdao("Writing finished successfully.")
	if len(finish) != 1 || finish[0].Kind != toolout.KindDone {
		t.Fatalf("unexpected finish events: %#v", finish)
	}
	warning := toolout.ParseCdrdao("WARNING: Buffer under run condition probable.")
	if len(warning) != 1 || warning[0].Kind != toolout.KindWarning {
		t.Fatalf("unexpected warning events: %#v", warning)
	}
	failure := toolout.ParseCdrdao("ERROR: Cannot open SCSI driver.")
	if len(failure) != 1 || failure[0].Kind != toolout.KindError {
		t.Fatalf("unexpected failure events: %#v", failure)
	}
	if !strings.Contains(failure[0].Message, "could not be opened") {
		t.Fatalf("expected mapped message, got %q", failure[0].Message)
	}
}

func TestParseCdrdaoIgnoresNoise(t *testing.T) {
	if events := toolout.ParseCdrdao("Track 01 (MODE1): start 00:00:00"); len(events) != 0 {
		t.Fatalf("expected no events, got %#v", events)
	}
}
