package formatter

import (
	"bytes"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
)

// ComponentField names the logrus field holding the emitting component.
const ComponentField = "component"

// ComponentFormatter renders "time component level message" lines followed
// by the remaining fields as key=value pairs.
type ComponentFormatter struct {
	TimestampFormat string
	DisableFields   bool
}

// LevelName maps logrus levels onto the level names accepted on the
// command line.
func LevelName(level logrus.Level) string {
	switch level {
	case logrus.TraceLevel, logrus.DebugLevel:
		return "DEBUG"
	case logrus.InfoLevel:
		return "INFO"
	case logrus.WarnLevel:
		return "WARNING"
	case logrus.ErrorLevel:
		return "ERROR"
	default:
		return "CRITICAL"
	}
}

func (f *ComponentFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	b := entry.Buffer
	if b == nil {
		b = &bytes.Buffer{}
	}

	timestampFormat := f.TimestampFormat
	if timestampFormat == "" {
		timestampFormat = time.RFC3339
	}

	component, _ := entry.Data[ComponentField].(string)

	fmt.Fprintf(b, "%s %-12s %-8s %s", entry.Time.Format(timestampFormat), component, LevelName(entry.Level), entry.Message)

	if !f.DisableFields {
		keys := make([]string, 0, len(entry.Data))
		for k := range entry.Data {
			if k != ComponentField {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)

		for _, k := range keys {
			fmt.Fprintf(b, " %s=%v", k, entry.Data[k])
		}
	}

	b.WriteByte('\n')
	return b.Bytes(), nil
}
