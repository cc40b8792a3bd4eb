package logger

import "go.uber.org/zap/zapcore"

// Verbosity level constants for CLI flag counts.
//
//	0 (none)  - run results and errors only
//	1 (-v)    - + progress, startup, per-run summaries
//	2 (-vv)   - + per-item outcomes, timing, config details
//	3 (-vvv)  - + remote query/mutation bodies
const (
	VerbosityUser  = 0
	VerbosityInfo  = 1
	VerbosityDebug = 2
	VerbosityTrace = 3
)

// VerbosityToLevel maps verbosity flags (-v, -vv, ...) to zap log levels.
//
//	0 (none)  -> WarnLevel  (errors and warnings only)
//	1 (-v)    -> InfoLevel  (+ informational messages)
//	2+ (-vv)  -> DebugLevel (+ debug messages)
func VerbosityToLevel(verbosity int) zapcore.Level {
	switch {
	case verbosity <= VerbosityUser:
		return zapcore.WarnLevel
	case verbosity == VerbosityInfo:
		return zapcore.InfoLevel
	default:
		return zapcore.DebugLevel
	}
}

// ShouldLogTrace returns true for verbosity >= 3 (-vvv). Used to gate dumping
// full GraphQL request/response bodies.
func ShouldLogTrace(verbosity int) bool {
	return verbosity >= VerbosityTrace
}

// LevelName renders a verbosity count as a human-readable level for banners.
func LevelName(verbosity int) string {
	switch {
	case verbosity <= VerbosityUser:
		return "Warn"
	case verbosity == VerbosityInfo:
		return "Info"
	case verbosity == VerbosityDebug:
		return "Debug"
	default:
		return "Trace"
	}
}
