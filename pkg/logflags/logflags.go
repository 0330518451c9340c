// Package logflags configures per-component debug logging for memview.
package logflags

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

var view = false
var expr = false
var symbols = false
var sim = false

var logOut io.WriteCloser

func makeLogger(flag bool, fields Fields) Logger {
	lf := loggerFactory
	if lf == nil {
		lf = DefaultLoggerFactory
	}
	return lf(flag, fields, logOut)
}

// Any returns true if any logging is enabled.
func Any() bool {
	return view || expr || symbols || sim
}

// View returns true if the view orchestrator should log.
func View() bool {
	return view
}

// ViewLogger returns a logger for the view orchestrator.
func ViewLogger() Logger {
	return makeLogger(view, Fields{"layer": "view"})
}

// Expr returns true if address expression evaluation should log.
func Expr() bool {
	return expr
}

// ExprLogger returns a logger for address expression evaluation.
func ExprLogger() Logger {
	return makeLogger(expr, Fields{"layer": "expr"})
}

// Symbols returns true if symbol resolution should log.
func Symbols() bool {
	return symbols
}

// SymbolsLogger returns a logger for symbol resolution.
func SymbolsLogger() Logger {
	return makeLogger(symbols, Fields{"layer": "symbols"})
}

// Sim returns true if the simulated backend should log.
func Sim() bool {
	return sim
}

// SimLogger returns a logger for the simulated backend.
func SimLogger() Logger {
	return makeLogger(sim, Fields{"layer": "sim"})
}

var errLogstrWithoutLog = errors.New("--log-output specified without --log")

// Setup sets the component log flags based on the contents of logstr and
// redirects output to logDest if it is non-empty (a file path or a file
// descriptor number).
func Setup(logFlag bool, logstr, logDest string) error {
	if logDest != "" {
		n, err := strconv.Atoi(logDest)
		if err == nil {
			logOut = os.NewFile(uintptr(n), "memview-logs")
		} else {
			fh, err := os.Create(logDest)
			if err != nil {
				return err
			}
			logOut = fh
		}
	}
	if !logFlag {
		if logstr != "" {
			return errLogstrWithoutLog
		}
		return nil
	}
	if logstr == "" {
		logstr = "view"
	}
	for _, logcmd := range strings.Split(logstr, ",") {
		switch logcmd {
		case "view":
			view = true
		case "expr":
			expr = true
		case "symbols":
			symbols = true
		case "sim":
			sim = true
		default:
			return fmt.Errorf("invalid log component %q", logcmd)
		}
	}
	return nil
}

// Close closes the logger output.
func Close() {
	if logOut != nil {
		logOut.Close()
	}
}

// DefaultFormatter is the formatter used by the default logger factory.
var DefaultFormatter logrus.Formatter = &logrus.TextFormatter{
	DisableColors:    true,
	TimestampFormat:  "2006-01-02T15:04:05Z07:00",
	FullTimestamp:    true,
	QuoteEmptyFields: true,
}
