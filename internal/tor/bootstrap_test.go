package tor

import "testing"

func TestParseBootstrapLine(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		line    string
		percent int
		message string
		ok      bool
	}{
		{
			name:    "notice line",
			line:    "Jan 01 00:00:00.000 [notice] Bootstrapped 45% (loading_descriptors): Loading relay descriptors",
			percent: 45, message: "loading_descriptors", ok: true,
		},
		{
			name:    "done",
			line:    "[notice] Bootstrapped 100% (done): Done",
			percent: 100, message: "done", ok: true,
		},
		{
			name:    "case insensitive and no space before paren",
			line:    "bootstrapped 5%(conn)",
			percent: 5, message: "conn", ok: true,
		},
		{name: "unrelated line", line: "[notice] Opening Socks listener on 127.0.0.1:9050"},
		{name: "missing tag", line: "Bootstrapped 10%"},
		{name: "over 100", line: "Bootstrapped 101% (bogus)"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			percent, message, ok := ParseBootstrapLine(tc.line)
			if ok != tc.ok || percent != tc.percent || message != tc.message {
				t.Errorf("ParseBootstrapLine(%q) = (%d, %q, %v), want (%d, %q, %v)",
					tc.line, percent, message, ok, tc.percent, tc.message, tc.ok)
			}
		})
	}
}

func TestProgressFuncNil(t *testing.T) {
	t.Parallel()

	var f ProgressFunc
	f.report(50, "no panic")
}
