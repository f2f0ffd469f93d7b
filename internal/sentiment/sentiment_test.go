package sentiment

import (
	"math"
	"testing"

	"cryptopolis/internal/entropy"
)

func testOptions() Options {
	return Options{
		Min: -100, Max: 100,
		CyclePeriod:    720,
		CycleAmplitude: 60,
		DecayRate:      0.5,
		NoiseAmplitude: 4,
		Impact:         0.4,
		HistoryCap:     100,
	}
}

func TestTickStaysBounded(t *testing.T) {
	e := New(testOptions(), entropy.NewSeeded(7))
	for i := 0; i < 5000; i++ {
		e.Tick()
		if v := e.Value(); v < -100 || v > 100 {
			t.Fatalf("sentiment %f escaped bounds at tick %d", v, i)
		}
	}
}

func TestYieldMultiplierAtExtremes(t *testing.T) {
	e := New(testOptions(), entropy.NewSeeded(1))
	e.Set(-100)
	if got := e.YieldMultiplier(); math.Abs(got-0.6) > 1e-12 {
		t.Fatalf("at min expected exactly 1-impact=0.6, got %f", got)
	}
	e.Set(100)
	if got := e.YieldMultiplier(); math.Abs(got-1.4) > 1e-12 {
		t.Fatalf("at max expected exactly 1+impact=1.4, got %f", got)
	}
	e.Set(0)
	if got := e.YieldMultiplier(); got != 1 {
		t.Fatalf("at neutral expected exactly 1, got %f", got)
	}
}

func TestVolatilityMultiplier(t *testing.T) {
	e := New(testOptions(), entropy.NewSeeded(1))
	e.Set(-100)
	if got := e.VolatilityMultiplier(); math.Abs(got-1.5) > 1e-12 {
		t.Fatalf("expected 1.5 at full fear, got %f", got)
	}
	e.Set(0)
	if got := e.VolatilityMultiplier(); got != 1 {
		t.Fatalf("expected 1 at neutral, got %f", got)
	}
}

func TestPhaseBands(t *testing.T) {
	e := New(testOptions(), entropy.NewSeeded(1))
	cases := []struct {
		value float64
		want  string
	}{
		{-100, PhaseExtremeFear},
		{-60, PhaseExtremeFear},
		{-59.9, PhaseFear},
		{-20, PhaseFear},
		{0, PhaseNeutral},
		{19.9, PhaseNeutral},
		{20, PhaseGreed},
		{59.9, PhaseGreed},
		{60, PhaseExtremeGreed},
		{100, PhaseExtremeGreed},
	}
	for _, c := range cases {
		e.Set(c.value)
		if got := e.Phase(); got != c.want {
			t.Errorf("phase(%f) = %s, want %s", c.value, got, c.want)
		}
	}
}

func TestShiftClampsAndNotifiesOnlyOnRealDelta(t *testing.T) {
	e := New(testOptions(), entropy.NewSeeded(1))
	calls := 0
	e.OnChange(func(Change) { calls++ })

	e.Set(100)
	if calls != 1 {
		t.Fatalf("expected one notification, got %d", calls)
	}
	e.Shift(50) // already at max, clamped delta is zero
	if calls != 1 {
		t.Fatalf("clamped no-op shift must not notify, got %d calls", calls)
	}
	e.Shift(-30)
	if calls != 2 || e.Value() != 70 {
		t.Fatalf("expected shift to 70 with notification, got %f calls=%d", e.Value(), calls)
	}
}

func TestDeterministicWithSameSeed(t *testing.T) {
	a := New(testOptions(), entropy.NewSeeded(99))
	b := New(testOptions(), entropy.NewSeeded(99))
	for i := 0; i < 200; i++ {
		a.Tick()
		b.Tick()
	}
	if a.Value() != b.Value() {
		t.Fatalf("same seed diverged: %f vs %f", a.Value(), b.Value())
	}
}
