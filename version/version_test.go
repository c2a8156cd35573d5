package version

import "testing"

func TestVersion_Default(t *testing.T) {
	// Version may be set by ldflags in CI, so just check it's not empty
	if Version == "" {
		t.Error("Version should not be empty")
	}
}

func TestFull(t *testing.T) {
	origVersion, origCommit, origBuildTime := Version, GitCommit, BuildTime
	t.Cleanup(func() {
		Version, GitCommit, BuildTime = origVersion, origCommit, origBuildTime
	})

	tests := []struct {
		name      string
		commit    string
		buildTime string
		want      string
	}{
		{name: "version only", want: "1.0.0"},
		{name: "with commit", commit: "abc1234", want: "1.0.0-abc1234"},
		{name: "with build time", buildTime: "2026-01-29T12:00:00Z", want: "1.0.0 (2026-01-29T12:00:00Z)"},
		{name: "complete", commit: "abc1234", buildTime: "2026-01-29T12:00:00Z", want: "1.0.0-abc1234 (2026-01-29T12:00:00Z)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			Version, GitCommit, BuildTime = "1.0.0", tt.commit, tt.buildTime
			if got := Full(); got != tt.want {
				t.Errorf("Full() = %q, want %q", got, tt.want)
			}
		})
	}
}
