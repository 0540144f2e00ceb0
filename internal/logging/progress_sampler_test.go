package logging

import "testing"

func TestProgressSamplerDefaultsBucketSize(t *testing.T) {
	for _, size := range []float64{0, -1} {
		s := NewProgressSampler(size)
		if s.bucketSize != 5 {
			t.Errorf("NewProgressSampler(%v) bucketSize = %v, want 5", size, s.bucketSize)
		}
	}
	if s := NewProgressSampler(10); s.bucketSize != 10 {
		t.Errorf("custom bucketSize = %v, want 10", s.bucketSize)
	}
}

func TestProgressSamplerNilAlwaysLogs(t *testing.T) {
	var s *ProgressSampler
	if !s.ShouldLog(50, "rendering", "segment 3 of 8") {
		t.Error("nil sampler must log everything")
	}
	s.Reset()
}

func TestProgressSamplerStageChanges(t *testing.T) {
	s := NewProgressSampler(5)

	if !s.ShouldLog(0, "rendering", "starting segments") {
		t.Error("first stage should log")
	}
	if s.ShouldLog(0, "rendering", "still starting") {
		t.Error("unchanged stage at same percent should stay quiet")
	}
	if !s.ShouldLog(0, "compositing", "crossfading") {
		t.Error("new stage should log")
	}
	if s.lastStage != "compositing" {
		t.Errorf("lastStage = %q, want compositing", s.lastStage)
	}

	// Stage names are trimmed before comparison.
	if s.ShouldLog(0, "  compositing  ", "crossfading") {
		t.Error("whitespace variants of the current stage should not re-log")
	}
}

func TestProgressSamplerPercentBuckets(t *testing.T) {
	s := NewProgressSampler(5)

	steps := []struct {
		percent float64
		want    bool
	}{
		{0, true},   // first event
		{3, false},  // same bucket
		{5, true},   // next bucket
		{7, false},  // same bucket
		{10, true},  // next bucket
		{-1, false}, // unknown percent, no stage change
	}
	for _, step := range steps {
		if got := s.ShouldLog(step.percent, "rendering", ""); got != step.want {
			t.Errorf("ShouldLog(%v) = %v, want %v", step.percent, got, step.want)
		}
	}
}

func TestProgressSamplerCompletionIsSingleBucket(t *testing.T) {
	s := NewProgressSampler(5)
	s.ShouldLog(95, "rendering", "")

	if !s.ShouldLog(100, "rendering", "") {
		t.Error("100%% should log")
	}
	if s.ShouldLog(104, "rendering", "") {
		t.Error("overshoot past 100%% shares the completion bucket")
	}
}

func TestProgressSamplerStageChangeResetsBucket(t *testing.T) {
	s := NewProgressSampler(5)
	s.ShouldLog(50, "rendering", "")
	s.ShouldLog(0, "compositing", "")

	if !s.ShouldLog(10, "compositing", "") {
		t.Error("bucket should restart when the stage changes")
	}
}

func TestProgressSamplerIgnoresMessage(t *testing.T) {
	s := NewProgressSampler(5)
	s.ShouldLog(10, "rendering", "eta 2m")

	if s.ShouldLog(10, "rendering", "eta 90s") {
		t.Error("volatile message text must not defeat sampling")
	}
}

func TestProgressSamplerReset(t *testing.T) {
	s := NewProgressSampler(5)
	s.ShouldLog(50, "rendering", "")

	s.Reset()

	if s.lastStage != "" || s.lastBucket != -1 {
		t.Errorf("after Reset: lastStage=%q lastBucket=%d", s.lastStage, s.lastBucket)
	}
	if !s.ShouldLog(50, "rendering", "") {
		t.Error("first event after Reset should log")
	}
}

func TestProgressSamplerCoarseBuckets(t *testing.T) {
	s := NewProgressSampler(25)
	s.ShouldLog(0, "rendering", "")

	if s.ShouldLog(20, "rendering", "") {
		t.Error("20%% sits below the 25%% bucket boundary")
	}
	if !s.ShouldLog(25, "rendering", "") {
		t.Error("25%% should log")
	}
	if s.ShouldLog(49, "rendering", "") {
		t.Error("49%% should not log")
	}
	if !s.ShouldLog(50, "rendering", "") {
		t.Error("50%% should log")
	}
}
