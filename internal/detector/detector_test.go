package detector

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func richPage() string {
	para := strings.Repeat("VivaTech brings together startups, investors and corporate partners. ", 6)
	return `<html><body><h1>Partners</h1><p>` + para + `</p><a href="/a">About</a>
<form><div class="g-recaptcha"></div></form></body></html>`
}

// beaconPage is an ordinary page from a site fronted by Cloudflare, which
// injects its challenge-platform script into every response.
func beaconPage() string {
	return `<html><head><title>Partners</title></head><body><h1>Partners</h1><p>` +
		strings.Repeat("VivaTech brings together startups, investors and corporate partners. ", 6) +
		`</p><script>(function(){var a=document.createElement('script');` +
		`a.src='/cdn-cgi/challenge-platform/scripts/jsd/main.js';document.head.appendChild(a);})();</script>` +
		`</body></html>`
}

func TestDetect(t *testing.T) {
	t.Parallel()

	h := New(Config{})
	tests := []struct {
		name        string
		status      int
		html        string
		wantBlocked bool
		wantReason  string
	}{
		{
			name:        "cloudflare interstitial",
			status:      503,
			html:        `<html><head><title>Just a moment...</title></head><body><div id="cf-browser-verification">Checking your browser</div></body></html>`,
			wantBlocked: true,
			wantReason:  "challenge page",
		},
		{
			name:        "strong marker on 200",
			status:      200,
			html:        `<html><body><p>Please verify you are human to continue.</p></body></html>`,
			wantBlocked: true,
			wantReason:  "challenge marker",
		},
		{
			name:        "weak marker on thin page",
			status:      200,
			html:        `<html><body><p>Solve the captcha.</p></body></html>`,
			wantBlocked: true,
			wantReason:  "bot check",
		},
		{
			name:        "weak marker on rich page is fine",
			status:      200,
			html:        richPage(),
		},
		{
			name:        "link farm",
			status:      200,
			html:        `<html><body><a href="/1">Buy this domain</a> <a href="/2">Related searches</a> x</body></html>`,
			wantBlocked: true,
			wantReason:  "dominated by links",
		},
		{
			name:   "cloudflare beacon on a healthy page",
			status: 200,
			html:   beaconPage(),
		},
		{
			name:        "challenge widget on a refused page",
			status:      403,
			html:        `<html><body><div id="challenge-platform"></div><p>One moment.</p></body></html>`,
			wantBlocked: true,
			wantReason:  "bot check \"challenge-platform\"",
		},
		{
			name:   "strong marker inside a script is ignored",
			status: 200,
			html:   `<html><body><script>var msg = "Checking your browser";</script><p>Coming soon.</p></body></html>`,
		},
		{
			name:        "short but not link heavy",
			status:      200,
			html:        `<html><body><p>Coming soon. We are building something new.</p></body></html>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			v := h.Detect(tt.status, tt.html)
			require.Equal(t, tt.wantBlocked, v.Blocked, v.Reason)
			if tt.wantReason != "" {
				require.Contains(t, v.Reason, tt.wantReason)
			}
		})
	}
}

func TestDetectCustomMarkersAndThresholds(t *testing.T) {
	t.Parallel()

	h := New(Config{MinBodyChars: 10, MaxLinkRatio: 0.9, ChallengeMarkers: []string{"  Request Unsuccessful "}})
	v := h.Detect(200, `<html><body>Request unsuccessful. Incapsula incident ID: 123</body></html>`)
	require.True(t, v.Blocked)
	require.Contains(t, v.Reason, "request unsuccessful")

	v = h.Detect(200, `<html><body><a href="/x">Only a link here</a> and text</body></html>`)
	require.False(t, v.Blocked)
}

func TestTextStatsIgnoresScripts(t *testing.T) {
	t.Parallel()

	body, links := TextStats(`<html><body><script>var x = "lots of code";</script><p>Hello   world</p>
<a href="/">Home</a></body></html>`)
	require.Equal(t, len("Hello world Home"), body)
	require.Equal(t, len("Home"), links)
}
