// Package testhelpers holds shared test fixtures.
package testhelpers

import (
	"fmt"
	"strings"

	"github.com/onsi/ginkgo/v2"

	"github.com/zhleyai/git/log"
)

// TestLogger implements log.Logger on top of Ginkgo's writer so that
// protocol traces land in the suite output.
type TestLogger struct{}

var _ log.Logger = (*TestLogger)(nil)

func NewTestLogger() *TestLogger {
	return &TestLogger{}
}

func (l *TestLogger) Debug(msg string, keysAndValues ...any) {
	l.log("DEBUG", msg, keysAndValues)
}

func (l *TestLogger) Info(msg string, keysAndValues ...any) {
	l.log("INFO", msg, keysAndValues)
}

func (l *TestLogger) Warn(msg string, keysAndValues ...any) {
	l.log("WARN", msg, keysAndValues)
}

func (l *TestLogger) Error(msg string, keysAndValues ...any) {
	l.log("ERROR", msg, keysAndValues)
}

func (l *TestLogger) log(level, msg string, args []any) {
	formatted := msg
	if len(args) > 0 {
		var pairs []string
		for i := 0; i+1 < len(args); i += 2 {
			pairs = append(pairs, fmt.Sprintf("%s=%v", args[i], args[i+1]))
		}
		formatted = fmt.Sprintf("%s (%s)", msg, strings.Join(pairs, ", "))
	}
	ginkgo.GinkgoWriter.Printf("[%s] %s\n", level, formatted)
}
