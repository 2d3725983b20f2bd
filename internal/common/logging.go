package common

import (
	"io"
	"log"
	"os"
)

var (
	logger = log.New(os.Stderr, "[dvgate] ", log.LstdFlags|log.Lmicroseconds)
)

// SetOutput redirects the shared logger, typically to a rotating file
// writer configured from the logs section of the config file.
func SetOutput(w io.Writer) {
	logger.SetOutput(w)
}

func Logf(format string, args ...interface{}) {
	logger.Printf(format, args...)
}

func Fatalf(format string, args ...interface{}) {
	logger.Fatalf(format, args...)
}
