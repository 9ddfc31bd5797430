package media

import "testing"

func TestVideoURL(t *testing.T) {
	cases := []struct {
		name      string
		transform Transform
		want      string
	}{
		{
			name:      "no transform",
			transform: Transform{},
			want:      "https://cdn.example.com/video/upload/videos/abc",
		},
		{
			name:      "quality and format",
			transform: Transform{Quality: "auto", Format: "mp4"},
			want:      "https://cdn.example.com/video/upload/q_auto,f_mp4/videos/abc.mp4",
		},
		{
			name:      "full directive set",
			transform: Transform{Width: 480, Height: 854, SeekSeconds: 1, Quality: "auto", Format: "mp4"},
			want:      "https://cdn.example.com/video/upload/w_480,h_854,so_1.0,q_auto,f_mp4/videos/abc.mp4",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := VideoURL("https://cdn.example.com", "videos/abc", tc.transform)
			if got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestThumbnailURLDefaultsToJPG(t *testing.T) {
	got := ThumbnailURL("https://cdn.example.com/", "videos/abc", Transform{Width: 480, Height: 854, SeekSeconds: 1, Quality: "auto"})
	want := "https://cdn.example.com/video/upload/w_480,h_854,so_1.0,q_auto,f_jpg/videos/abc.jpg"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestDeliveryURLIsDeterministic(t *testing.T) {
	tr := Transform{Width: 320, Quality: "auto"}
	first := VideoURL("https://cdn.example.com", "videos/abc", tr)
	second := VideoURL("https://cdn.example.com", "videos/abc", tr)
	if first != second {
		t.Fatalf("derivation must be deterministic: %q vs %q", first, second)
	}
}
