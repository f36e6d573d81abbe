package tor

import (
	"regexp"
	"strconv"
)

// ProgressFunc receives bootstrap progress while a start is pending.
// percent is 0-100. A nil ProgressFunc is valid and ignores every report.
type ProgressFunc func(percent int, message string)

func (f ProgressFunc) report(percent int, message string) {
	if f != nil {
		f(percent, message)
	}
}

// bootstrapPattern matches tor's notice line, for example
// "Jan 01 00:00:00.000 [notice] Bootstrapped 45% (loading_descriptors): Loading relay descriptors".
var bootstrapPattern = regexp.MustCompile(`(?i)Bootstrapped\s+(\d+)%\s*\(([^)]+)\)`)

// ParseBootstrapLine extracts the percent and the parenthesized tag from a
// tor log line. ok is false for lines without a bootstrap report.
func ParseBootstrapLine(line string) (percent int, message string, ok bool) {
	m := bootstrapPattern.FindStringSubmatch(line)
	if m == nil {
		return 0, "", false
	}
	percent, err := strconv.Atoi(m[1])
	if err != nil || percent > 100 {
		return 0, "", false
	}
	return percent, m[2], true
}
