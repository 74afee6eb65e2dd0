package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ngfw-tools/ngpatch/fwimage"
	"github.com/ngfw-tools/ngpatch/ngfw"
	"github.com/ngfw-tools/ngpatch/patchfile"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

var log = logrus.New()

// logFile is the --log-file, if open.
var logFile *os.File

// initLogger configures the logger from the config, and connects the library
// packages to it.
func initLogger() error {
	lvl, err := logrus.ParseLevel(viper.GetString("log_level"))
	if err != nil {
		return fmt.Errorf("could not parse log level: %w", err)
	}
	if viper.GetBool("verbose") && lvl < logrus.DebugLevel {
		lvl = logrus.DebugLevel
	}

	var w io.Writer = os.Stderr
	if fn := viper.GetString("log_file"); fn != "" {
		f, err := os.OpenFile(fn, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return fmt.Errorf("could not open log file: %w", err)
		}
		logFile, w = f, f
	}

	log = &logrus.Logger{
		Out: w,
		Formatter: &logrus.TextFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
			FullTimestamp:   true,
			DisableSorting:  true,
		},
		Hooks: make(logrus.LevelHooks),
		Level: lvl,
	}

	ngfw.Log = logf(log.WithField("pkg", "ngfw"), logrus.InfoLevel)
	patchfile.Log = logf(log.WithField("pkg", "patchfile"), logrus.DebugLevel)
	fwimage.Log = logf(log.WithField("pkg", "fwimage"), logrus.InfoLevel)
	return nil
}

// closeLogger closes the log file, if any.
func closeLogger() error {
	if logFile == nil {
		return nil
	}
	err := logFile.Close()
	logFile = nil
	return err
}

// logf adapts a log entry to the printf-style Log variables of the library
// packages, whose messages end with a newline.
func logf(e *logrus.Entry, lvl logrus.Level) func(string, ...interface{}) {
	return func(format string, a ...interface{}) {
		e.Logf(lvl, strings.TrimSuffix(format, "\n"), a...)
	}
}
