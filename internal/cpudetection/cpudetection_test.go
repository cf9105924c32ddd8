package cpudetection

import "testing"

func TestCPUDetector(t *testing.T) {
	cd := New()
	features := cd.GetFeatures()
	if features == nil {
		t.Fatal("GetFeatures returned nil")
	}
	if features.Arch == "" {
		t.Error("CPU architecture should not be empty")
	}
	if cd.String() == "" {
		t.Error("String representation should not be empty")
	}
	t.Logf("Detected CPU: %s", cd.String())
}

func BenchmarkCPUDetector(b *testing.B) {
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		New()
	}
}
