package spec

import "testing"

func TestEffectiveLayersLimits(t *testing.T) {
	tests := []struct {
		name    string
		problem ResourceLimit
		contest ResourceLimit
		wantCPU int64
		wantWal int64
		wantMem int64
	}{
		{name: "defaults", wantCPU: 2000, wantWal: 5000, wantMem: 256 << 20},
		{name: "problem cpu derives wall", problem: ResourceLimit{CPUTimeMs: 1000}, wantCPU: 1000, wantWal: 3000, wantMem: 256 << 20},
		{name: "contest overrides problem", problem: ResourceLimit{CPUTimeMs: 1000, MemoryBytes: 64 << 20}, contest: ResourceLimit{MemoryBytes: 128 << 20}, wantCPU: 1000, wantWal: 3000, wantMem: 128 << 20},
		{name: "explicit wall kept", problem: ResourceLimit{WallTimeMs: 700}, wantCPU: 2000, wantWal: 700, wantMem: 256 << 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Effective(DefaultLimits(), tt.problem, tt.contest)
			if got.CPUTimeMs != tt.wantCPU || got.WallTimeMs != tt.wantWal || got.MemoryBytes != tt.wantMem {
				t.Fatalf("unexpected limits: %+v", got)
			}
			if got.PIDs != DefaultPIDs {
				t.Fatalf("expected default pids, got %d", got.PIDs)
			}
		})
	}
}
