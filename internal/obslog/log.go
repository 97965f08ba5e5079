// Package obslog is the diagnostic logging glue for the c1 key-value log.
//
// It is deliberately small: this core has no app-bootstrap configuration
// layer (that is an excluded collaborator concern), so there is no
// level-from-config parsing here, just a package-level logger writing to
// logrus's default output (stderr) whose level callers can adjust with
// SetLevel.
package obslog

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
)

var log = logrus.New()

func init() {
	log.SetFormatter(&callerFormatter{timestampFormat: "15:04:05 MST 2006/01/02"})
	log.SetLevel(logrus.InfoLevel)
}

// SetLevel adjusts the package logger's verbosity; callers embedding this
// library in a larger process own their own logging config and call this
// once at startup.
func SetLevel(level logrus.Level) {
	log.SetLevel(level)
}

// callerFormatter renders "[time] [LEVL] (file:func:line) message", matching
// the teacher's logger package layout.
type callerFormatter struct {
	timestampFormat string
}

func (f *callerFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	ts := entry.Time.Format(f.timestampFormat)
	level := strings.ToUpper(entry.Level.String())
	if len(level) > 4 {
		level = level[:4]
	}

	msg := fmt.Sprintf("[%s] [%s] (%s) %s\n", ts, level, caller(), entry.Message)
	return []byte(msg), nil
}

func caller() string {
	for i := 2; i < 20; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}
		if strings.Contains(file, "sirupsen") || strings.Contains(file, "/logrus/") || strings.Contains(file, "/obslog/") {
			continue
		}
		fn := runtime.FuncForPC(pc).Name()
		return fmt.Sprintf("%s:%s:%d", filepath.Base(file), fn, line)
	}
	return "unknown:unknown:0"
}

func Debugf(format string, args ...interface{}) { log.Debugf(format, args...) }
func Infof(format string, args ...interface{})  { log.Infof(format, args...) }
func Warnf(format string, args ...interface{})  { log.Warnf(format, args...) }
func Errorf(format string, args ...interface{}) { log.Errorf(format, args...) }
