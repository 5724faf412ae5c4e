// Package logx configures watcher's structured logging.
//
// This repo uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - Bursty warnings rate limited per key (Throttle)
package logx
