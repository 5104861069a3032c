package config

import (
	"strings"
	"testing"
)

func TestBuildRTMPURLTrimsTrailingSlash(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		base string
		code string
		want string
	}{
		{"no trailing slash", "rtmps://live.example.com/app", "secret", "rtmps://live.example.com/app/secret"},
		{"trailing slash", "rtmps://live.example.com/app/", "secret", "rtmps://live.example.com/app/secret"},
		{"plain rtmp", "rtmp://live.example.com/app", "secret", "rtmp://live.example.com/app/secret"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := buildRTMPURL(tc.base, tc.code); got != tc.want {
				t.Errorf("buildRTMPURL(%q, %q) = %q, want %q", tc.base, tc.code, got, tc.want)
			}
		})
	}
}

func TestLoggableHostNeverIncludesStreamKey(t *testing.T) {
	t.Parallel()

	c := &Config{RTMPURL: buildRTMPURL("rtmps://live.example.com/app", "super-secret-code")}
	got := c.LoggableHost()

	if got != "rtmps://live.example.com" {
		t.Errorf("LoggableHost() = %q, want %q", got, "rtmps://live.example.com")
	}
	if strings.Contains(got, "super-secret-code") {
		t.Errorf("LoggableHost() leaked the stream key: %q", got)
	}
}
