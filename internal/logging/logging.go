package logging

import (
	"go.uber.org/zap"
)

var logger *zap.Logger = zap.NewNop()

// Init builds the process-wide logger. Call once at startup before any
// package uses L or S.
func Init(debug bool) error {
	var (
		l   *zap.Logger
		err error
	)
	if debug {
		l, err = zap.NewDevelopment()
	} else {
		l, err = zap.NewProduction()
	}
	if err != nil {
		return err
	}
	logger = l
	return nil
}

func L() *zap.Logger {
	return logger
}

func S() *zap.SugaredLogger {
	return logger.Sugar()
}

func Sync() {
	_ = logger.Sync()
}
