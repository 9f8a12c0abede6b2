// Package logging provides the daemon's log line format: "YYYY-MM-DD
// HH:MM:SS.mmm [LEVEL] message", in the host's local timezone (falling back
// to UTC+8 when the local zone database is unavailable, as it often is on
// stock Android — see SPEC_FULL.md "SUPPLEMENTED FEATURES" item 1). Built
// as a logrus.Formatter, the same library the teacher wires its own
// Dockerd-style logger through.
package logging

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// cstFallback is used when time.Local cannot be resolved (observed on some
// Android builds without a populated tzdata); spec.md's reference device
// defaults to China Standard Time.
var cstFallback = time.FixedZone("CST", 8*3600)

// Formatter implements logrus.Formatter.
type Formatter struct{}

// NewFormatter builds a Formatter.
func NewFormatter() *Formatter { return &Formatter{} }

// Format renders one log entry as "YYYY-MM-DD HH:MM:SS.mmm [LEVEL] message".
func (f *Formatter) Format(entry *logrus.Entry) ([]byte, error) {
	loc := time.Local
	if loc.String() == "UTC" {
		loc = cstFallback
	}

	ts := entry.Time.In(loc).Format("2006-01-02 15:04:05.000")
	level := strings.ToUpper(entry.Level.String())

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s [%s] %s", ts, level, entry.Message)
	for k, v := range entry.Data {
		fmt.Fprintf(&buf, " %s=%v", k, v)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}
