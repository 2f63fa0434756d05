package media

import "testing"

func TestParseSceneTimes(t *testing.T) {
	output := []byte(`[Parsed_showinfo_1 @ 0x1] n:   0 pts:  90090 pts_time:3.003   duration:1001
[Parsed_showinfo_1 @ 0x1] n:   1 pts: 270270 pts_time:1.5     duration:1001
frame=    2 fps=0.0 q=-0.0 Lsize=N/A time=00:00:10.01 bitrate=N/A
[Parsed_showinfo_1 @ 0x1] n:   2 pts: 900900 pts_time:10      duration:1001`)

	got := ParseSceneTimes(output)
	want := []float64{1.5, 3.003, 10}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestParseSceneTimesEmpty(t *testing.T) {
	if got := ParseSceneTimes([]byte("no scene changes")); len(got) != 0 {
		t.Errorf("expected no times, got %v", got)
	}
}
