package autoscale

import (
	"math"
	"testing"
	"time"
)

// ─── Helpers ────────────────────────────────────────────────────────────────

func fixedClock(start time.Time, step time.Duration) func() time.Time {
	t := start
	return func() time.Time {
		now := t
		t = t.Add(step)
		return now
	}
}

// ─── Tests ──────────────────────────────────────────────────────────────────

func TestNewScaler_DefaultConfig(t *testing.T) {
	s := NewScaler(DefaultConfig())
	if s == nil {
		t.Fatal("NewScaler returned nil")
	}
	if s.Capacity() != 1 {
		t.Errorf("initial capacity = %d, want 1 (MinCapacity)", s.Capacity())
	}
}

func TestNewScaler_InvalidConfig(t *testing.T) {
	cfg := Config{
		Alpha:       -1,
		MinCapacity: -5,
		MaxCapacity: -1,
	}
	s := NewScaler(cfg)
	if s.cfg.Alpha != 0.3 {
		t.Errorf("expected Alpha=0.3 after fix, got %f", s.cfg.Alpha)
	}
	if s.cfg.MinCapacity != 1 {
		t.Errorf("expected MinCapacity=1 after fix, got %d", s.cfg.MinCapacity)
	}
}

func TestRecordDemand_InitializesSmoothed(t *testing.T) {
	s := NewScaler(DefaultConfig())

	s.RecordDemand(Sample{Demand: 100, Timestamp: time.Now()})
	if math.Abs(s.smoothed-100) > 1e-9 {
		t.Errorf("smoothed after first sample = %f, want 100", s.smoothed)
	}
}

func TestRecordDemand_ExponentialSmoothing(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Alpha = 0.5
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	s := NewScaler(cfg)
	s.RecordDemand(Sample{Demand: 100, Timestamp: base})
	// smoothed = 0.5*200 + 0.5*100 = 150
	s.RecordDemand(Sample{Demand: 200, Timestamp: base.Add(time.Minute)})

	if math.Abs(s.smoothed-150) > 1e-9 {
		t.Errorf("smoothed = %f, want 150", s.smoothed)
	}
}

func TestEvaluate_ScaleUp(t *testing.T) {
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	cfg := DefaultConfig()
	cfg.ScaleUpThreshold = 0.8
	cfg.MinCapacity = 1
	cfg.MaxCapacity = 100
	cfg.CooldownPeriod = 0
	cfg.Now = fixedClock(base, time.Minute)
	s := NewScaler(cfg)
	s.SetCapacity(5)

	for i := 0; i < 10; i++ {
		s.RecordDemand(Sample{Demand: 50, Timestamp: base.Add(time.Duration(i) * time.Minute)})
	}

	d := s.Evaluate()
	if d.Direction != ScaleUp {
		t.Errorf("expected ScaleUp, got %s", d.Direction)
	}
	if d.TargetCapacity <= 5 {
		t.Errorf("target capacity should exceed 5, got %d", d.TargetCapacity)
	}
}

func TestEvaluate_ScaleDown(t *testing.T) {
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	cfg := DefaultConfig()
	cfg.ScaleDownThreshold = 0.3
	cfg.MinCapacity = 1
	cfg.MaxCapacity = 100
	cfg.CooldownPeriod = 0
	cfg.Now = fixedClock(base, time.Minute)
	s := NewScaler(cfg)
	s.SetCapacity(50)

	for i := 0; i < 10; i++ {
		s.RecordDemand(Sample{Demand: 2, Timestamp: base.Add(time.Duration(i) * time.Minute)})
	}

	d := s.Evaluate()
	if d.Direction != ScaleDown {
		t.Errorf("expected ScaleDown, got %s (forecast=%.1f, cap=%d)", d.Direction, d.ForecastDemand, d.CurrentCapacity)
	}
}

func TestEvaluate_Hold(t *testing.T) {
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	cfg := DefaultConfig()
	cfg.ScaleUpThreshold = 0.8
	cfg.ScaleDownThreshold = 0.3
	cfg.MinCapacity = 1
	cfg.MaxCapacity = 100
	cfg.CooldownPeriod = 0
	cfg.Now = fixedClock(base, time.Minute)
	s := NewScaler(cfg)
	s.SetCapacity(20)

	for i := 0; i < 10; i++ {
		s.RecordDemand(Sample{Demand: 10, Timestamp: base.Add(time.Duration(i) * time.Minute)})
	}

	d := s.Evaluate()
	if d.Direction != Hold {
		t.Errorf("expected Hold, got %s (forecast=%.1f, cap=%d)", d.Direction, d.ForecastDemand, d.CurrentCapacity)
	}
}

func TestEvaluate_Cooldown(t *testing.T) {
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	cfg := DefaultConfig()
	cfg.CooldownPeriod = 10 * time.Minute
	cfg.Now = fixedClock(base, time.Second)
	s := NewScaler(cfg)
	s.SetCapacity(5)

	for i := 0; i < 10; i++ {
		s.RecordDemand(Sample{Demand: 50, Timestamp: base.Add(time.Duration(i) * time.Minute)})
	}

	d1 := s.Evaluate()
	if d1.Direction == Hold {
		t.Fatal("first evaluation should scale up")
	}

	d2 := s.Evaluate()
	if d2.Direction != Hold {
		t.Errorf("expected Hold during cooldown, got %s", d2.Direction)
	}
}

func TestSetCapacity_Clamped(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinCapacity = 5
	cfg.MaxCapacity = 50
	s := NewScaler(cfg)

	s.SetCapacity(3)
	if s.Capacity() != 5 {
		t.Errorf("capacity should clamp to 5, got %d", s.Capacity())
	}

	s.SetCapacity(100)
	if s.Capacity() != 50 {
		t.Errorf("capacity should clamp to 50, got %d", s.Capacity())
	}
}

func TestReset(t *testing.T) {
	s := NewScaler(DefaultConfig())
	s.RecordDemand(Sample{Demand: 100, Timestamp: time.Now()})
	s.SetCapacity(10)

	s.Reset()

	if s.inited {
		t.Error("expected inited=false after reset")
	}
	if s.Capacity() != s.cfg.MinCapacity {
		t.Errorf("expected capacity reset to MinCapacity=%d, got %d", s.cfg.MinCapacity, s.Capacity())
	}
}

func TestDirection_String(t *testing.T) {
	tests := []struct {
		d    Direction
		want string
	}{
		{Hold, "HOLD"},
		{ScaleUp, "SCALE_UP"},
		{ScaleDown, "SCALE_DOWN"},
		{Direction(99), "UNKNOWN"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.d.String(); got != tt.want {
				t.Errorf("Direction(%d).String() = %q, want %q", tt.d, got, tt.want)
			}
		})
	}
}
