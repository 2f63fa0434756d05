package models

import (
	"reflect"
	"testing"
)

func TestIsVideoFile(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/videos/flight.mp4", true},
		{"/videos/FLIGHT.MOV", true},
		{"clip.mkv", true},
		{"clip.avi", true},
		{"/videos/flight.mp4.meta.json", false},
		{"/videos/notes.txt", false},
		{"/videos/noext", false},
	}
	for _, tt := range tests {
		if got := IsVideoFile(tt.path); got != tt.want {
			t.Errorf("IsVideoFile(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestClassifySource(t *testing.T) {
	tests := []struct {
		height int
		want   SourceType
	}{
		{2160, SourceOnboard},
		{1080, SourceOnboard},
		{720, SourceDVR},
		{480, SourceDVR},
		{0, SourceUnknown},
	}
	for _, tt := range tests {
		if got := ClassifySource(tt.height); got != tt.want {
			t.Errorf("ClassifySource(%d) = %s, want %s", tt.height, got, tt.want)
		}
	}
}

func TestFrameAnalysisLabels(t *testing.T) {
	tests := []struct {
		name string
		fa   FrameAnalysis
		want []string
	}{
		{
			name: "environment plus style",
			fa:   FrameAnalysis{Environment: []string{"forest", "river"}, FlightStyle: "freestyle"},
			want: []string{"forest", "river", "freestyle"},
		},
		{
			name: "duplicates and empties removed",
			fa:   FrameAnalysis{Environment: []string{"forest", "", "forest"}, FlightStyle: "forest"},
			want: []string{"forest"},
		},
		{
			name: "stationary style excluded",
			fa:   FrameAnalysis{Environment: []string{"field"}, FlightStyle: "stationary"},
			want: []string{"field"},
		},
		{
			name: "nothing",
			fa:   FrameAnalysis{FlightStyle: "unknown"},
			want: []string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.fa.Labels(); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestSidecarNormalize(t *testing.T) {
	sc := &Sidecar{FrameAnalysis: []FrameAnalysis{{Description: "x"}}}
	sc.Normalize()
	if sc.Tags == nil || sc.Highlights == nil || sc.StaticSegments == nil || sc.Custom == nil {
		t.Errorf("expected non-nil collections, got %+v", sc)
	}
	if sc.FrameAnalysis[0].Environment == nil || sc.FrameAnalysis[0].QualityIssues == nil {
		t.Error("expected frame label lists to be non-nil")
	}
}
