package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var logLevel string

var rootCmd = &cobra.Command{
	Use:   "firmctl",
	Short: "Demo driver embedding the firmgo middle-end/backend toolkit",
	Long: `firmctl is a minimal embedding-interface demo: it plays the role of
a front end or backend driver that constructs a graph by hand, runs it
through dominance/loop analysis, register allocation, and ABI/stack
lowering, and reports what each stage did.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "zap log level: debug, info, warn, error")
	rootCmd.AddCommand(compileCmd)
}

// newLogger builds a zap.SugaredLogger at the requested level, the same
// logger type every internal package's constructor (ir.NewGraph,
// regalloc.Allocate, ...) accepts, so a driver threads one session's
// logger through the whole pipeline.
func newLogger(level string) (*zap.SugaredLogger, error) {
	var lvl zapcore.Level
	if err := lvl.Set(level); err != nil {
		return nil, fmt.Errorf("log-level: %w", err)
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
