package logger

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// LineFormatter writes one plain line per entry:
// 2025-05-30 12:21:53,426 - INFO - Triggering Census sync run sync_id=42
type LineFormatter struct{}

// Format formats a logrus entry as a single line with sorted key=value fields
func (f *LineFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	timestamp := entry.Time.Format("2006-01-02 15:04:05,000")

	var level string
	switch entry.Level {
	case logrus.TraceLevel, logrus.DebugLevel:
		level = "DEBUG"
	case logrus.InfoLevel:
		level = "INFO"
	case logrus.WarnLevel:
		level = "WARNING"
	case logrus.ErrorLevel:
		level = "ERROR"
	default:
		level = "CRITICAL"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s - %s - %s", timestamp, level, entry.Message)

	if len(entry.Data) > 0 {
		keys := make([]string, 0, len(entry.Data))
		for k := range entry.Data {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%s", k, formatValue(entry.Data[k]))
		}
	}
	b.WriteByte('\n')

	return []byte(b.String()), nil
}

func formatValue(v interface{}) string {
	s := fmt.Sprint(v)
	if strings.ContainsAny(s, " \t\"=") {
		return strconv.Quote(s)
	}
	return s
}

// Setup configures the logger with the line formatter
func Setup(logLevel string, testMode bool) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	logger.SetFormatter(&LineFormatter{})
	logger.SetOutput(os.Stdout)

	if testMode {
		logger.Info("TEST MODE ENABLED - No sync runs will be triggered")
	}

	return logger
}

// LogProcessStart logs the start of processing with the configured syncs
func LogProcessStart(logger *logrus.Logger, syncIDs []int64, logLevel string) {
	if len(syncIDs) == 1 {
		logger.Infof("Configured to run the following sync: %d", syncIDs[0])
	} else {
		logger.Infof("Configured to run the following syncs: %s", joinIDs(syncIDs))
	}

	logger.Infof("Logging enabled at %s level", logLevel)
}

// joinIDs joins sync ids with proper formatting
func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ", ")
}
