package indicator

import (
	"errors"
	"math"
	"testing"

	"github.com/sweeney/env-station/internal/clock"
)

func TestEveryStateHasRenderablePattern(t *testing.T) {
	for _, s := range States() {
		p := PatternFor(s)
		if len(p.Steps) == 0 {
			t.Errorf("%s: empty pattern", s)
			continue
		}
		if !p.Static() {
			for i, step := range p.Steps {
				if step.Duration == 0 {
					t.Errorf("%s: animated step %d has zero duration", s, i)
				}
			}
		}
		if s.IsFault() == p.Static() {
			t.Errorf("%s: fault states animate, mode states are solid", s)
		}
	}
}

func TestUnknownStateRendersOff(t *testing.T) {
	out := &FakeOutput{}
	e := NewEngine(out, false)

	if err := e.SetState(State(99), 0); err != nil {
		t.Fatalf("SetState: %v", err)
	}
	if e.State() != Off {
		t.Errorf("expected Off, got %s", e.State())
	}
	if out.Last() != (Color{}) {
		t.Errorf("expected black, got %+v", out.Last())
	}
	if State(-1).String() != "STATE(-1)" {
		t.Errorf("unexpected name for invalid state: %s", State(-1))
	}
}

func TestSetStateRendersImmediately(t *testing.T) {
	out := &FakeOutput{}
	e := NewEngine(out, false)
	if len(out.Colors) != 0 {
		t.Fatal("engine should not write before SetState")
	}

	e.SetState(SolidGreen, 10)
	if len(out.Colors) != 1 || out.Last() != green {
		t.Errorf("expected green written once, got %v", out.Colors)
	}
}

func TestStaticPatternNeverChanges(t *testing.T) {
	out := &FakeOutput{}
	e := NewEngine(out, false)
	e.SetState(SolidBlue, 0)

	for _, now := range []clock.Millis{0, 1, 499, 500, 1000, 60000, math.MaxUint32} {
		if err := e.Update(now); err != nil {
			t.Fatalf("Update(%d): %v", now, err)
		}
		if e.Color() != blue {
			t.Errorf("Update(%d): colour changed to %+v", now, e.Color())
		}
	}
	if len(out.Colors) != 1 {
		t.Errorf("static pattern rewrote output %d times", len(out.Colors))
	}
}

func TestBlinkTiming(t *testing.T) {
	out := &FakeOutput{}
	e := NewEngine(out, false)
	e.SetState(ErrorRtc, 0)

	tests := []struct {
		now  clock.Millis
		step int
	}{
		{0, 0},
		{499, 0},
		{500, 1},
		{999, 1},
		{1000, 0},
		{1499, 0},
		{1500, 1},
	}
	for _, tt := range tests {
		e.Update(tt.now)
		if e.Step() != tt.step {
			t.Errorf("t=%d: step %d, want %d", tt.now, e.Step(), tt.step)
		}
	}
}

func TestSparseUpdateAdvancesOneStep(t *testing.T) {
	out := &FakeOutput{}
	e := NewEngine(out, false)
	e.SetState(ErrorGps, 0)

	e.Update(1300)
	if e.Step() != 1 {
		t.Fatalf("expected step 1 after sparse update, got %d", e.Step())
	}
	if e.stepStart != 500 {
		t.Errorf("step start should advance by one duration to 500, got %d", e.stepStart)
	}

	// Catch-up: the following update lands on the step that is actually due.
	e.Update(1300)
	if e.Step() != 0 {
		t.Errorf("expected catch-up to step 0, got %d", e.Step())
	}
	if e.stepStart != 1000 {
		t.Errorf("expected step start 1000, got %d", e.stepStart)
	}
	e.Update(1499)
	if e.Step() != 0 {
		t.Errorf("expected step 0 at 1499, got %d", e.Step())
	}
}

func TestPulseCycles(t *testing.T) {
	out := &FakeOutput{}
	e := NewEngine(out, false)
	e.SetState(ErrorSensorIncoherent, 0)

	// 200/100/800/100
	checks := []struct {
		now   clock.Millis
		color Color
	}{
		{199, red},
		{200, black},
		{300, green},
		{1099, green},
		{1100, black},
		{1200, red},
	}
	for _, c := range checks {
		e.Update(c.now)
		if e.Color() != c.color {
			t.Errorf("t=%d: colour %+v, want %+v", c.now, e.Color(), c.color)
		}
	}
}

func TestSwitchResetsToFirstStep(t *testing.T) {
	out := &FakeOutput{}
	e := NewEngine(out, false)
	e.SetState(ErrorSdFull, 0)
	e.Update(500)
	if e.Step() != 1 {
		t.Fatalf("expected step 1, got %d", e.Step())
	}

	e.SetState(ErrorSdAccess, 700)
	if e.Step() != 0 {
		t.Errorf("switch should reset to step 0, got %d", e.Step())
	}
	e.Update(899)
	if e.Step() != 0 {
		t.Errorf("step timer should restart at switch, got step %d at 899", e.Step())
	}
	e.Update(900)
	if e.Step() != 1 {
		t.Errorf("expected step 1 at 900, got %d", e.Step())
	}
}

func TestBlinkAcrossClockWrap(t *testing.T) {
	out := &FakeOutput{}
	e := NewEngine(out, false)
	start := clock.Millis(math.MaxUint32 - 200)
	e.SetState(ErrorSensorAccess, start)

	e.Update(start + 499) // wrapped
	if e.Step() != 0 {
		t.Errorf("advanced early across wrap")
	}
	e.Update(start + 500)
	if e.Step() != 1 {
		t.Errorf("did not advance at 500ms across wrap")
	}
}

func TestCommonAnodeInvertsOutput(t *testing.T) {
	out := &FakeOutput{}
	e := NewEngine(out, true)
	e.SetState(SolidGreen, 0)

	if out.Last() != (Color{R: 255, G: 0, B: 255}) {
		t.Errorf("expected inverted green, got %+v", out.Last())
	}
	if e.Color() != green {
		t.Errorf("logical colour should not be inverted, got %+v", e.Color())
	}
}

func TestOutputErrorIsReturned(t *testing.T) {
	out := &FakeOutput{SetError: errors.New("line busy")}
	e := NewEngine(out, false)

	err := e.SetState(ErrorRtc, 0)
	if err == nil {
		t.Fatal("expected error from SetState")
	}
	if !errors.Is(err, out.SetError) {
		t.Errorf("expected wrapped output error, got %v", err)
	}
	// The state is kept so the write can be retried with Render.
	if e.State() != ErrorRtc {
		t.Errorf("state should be ErrorRtc despite write error, got %s", e.State())
	}
}

func TestRenderRetriesCurrentStep(t *testing.T) {
	out := &FakeOutput{SetError: errors.New("line busy")}
	e := NewEngine(out, false)

	if err := e.SetState(SolidGreen, 0); err == nil {
		t.Fatal("expected error from SetState")
	}
	// A static pattern never renders again from Update.
	if err := e.Update(10000); err != nil || len(out.Colors) != 0 {
		t.Fatalf("Update: err=%v writes=%v", err, out.Colors)
	}

	out.SetError = nil
	if err := e.Render(); err != nil {
		t.Fatal(err)
	}
	if out.Last() != green || e.Step() != 0 {
		t.Errorf("render wrote %+v at step %d, want green at step 0", out.Last(), e.Step())
	}
}
