// Package logging provides categorized zap-backed logging for attnroute.
// In hook mode stdout carries the protocol payload, so all logging goes to
// stderr and defaults to a nop logger unless verbose/debug mode is enabled.
package logging

import (
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category identifies a subsystem for log filtering.
type Category string

const (
	CategoryRouter    Category = "router"    // attention routing phases
	CategoryAssembly  Category = "assembly"  // context blob assembly
	CategoryState     Category = "state"     // state load/save
	CategoryLearn     Category = "learn"     // learner updates and queries
	CategoryPredict   Category = "predict"   // predictor training and queries
	CategoryPlugin    Category = "plugin"    // plugin supervisor and plugins
	CategoryHook      Category = "hook"      // hook protocol handling
	CategoryConfig    Category = "config"    // config loading
	CategoryTelemetry Category = "telemetry" // turn records, history index
)

var (
	mu     sync.RWMutex
	root   = zap.NewNop()
	sugars = map[Category]*zap.SugaredLogger{}
)

// Initialize installs a real logger writing to stderr. Verbose enables
// debug-level output with development formatting.
func Initialize(verbose bool) error {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	if verbose {
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		return err
	}
	install(logger)
	return nil
}

// Disable reverts to the nop logger. Used when the hook protocol must keep
// stderr quiet.
func Disable() {
	install(zap.NewNop())
}

func install(logger *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	root = logger
	sugars = map[Category]*zap.SugaredLogger{}
}

// Get returns the sugared logger for a category.
func Get(cat Category) *zap.SugaredLogger {
	mu.RLock()
	if s, ok := sugars[cat]; ok {
		mu.RUnlock()
		return s
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if s, ok := sugars[cat]; ok {
		return s
	}
	s := root.Sugar().With("cat", string(cat))
	sugars[cat] = s
	return s
}

// Sync flushes buffered log entries. Safe to call on the nop logger.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	_ = root.Sync()
}

// Timer measures the duration of an operation and logs it on Stop.
type Timer struct {
	cat   Category
	op    string
	start time.Time
}

// StartTimer begins timing an operation for a category.
func StartTimer(cat Category, op string) *Timer {
	return &Timer{cat: cat, op: op, start: time.Now()}
}

// Stop logs the elapsed time at debug level.
func (t *Timer) Stop() {
	elapsed := time.Since(t.start)
	Get(t.cat).Debugw("op complete", "op", t.op, "elapsed_ms", float64(elapsed.Microseconds())/1000.0)
}

// Elapsed returns the time since the timer started.
func (t *Timer) Elapsed() time.Duration {
	return time.Since(t.start)
}

func init() {
	// ATTNROUTE_DEBUG=1 enables verbose logging without argv control, which
	// the hook binary never has.
	if os.Getenv("ATTNROUTE_DEBUG") == "1" {
		_ = Initialize(true)
	}
}
