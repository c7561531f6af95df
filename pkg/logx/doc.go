// Package logx configures the assistant's structured logging.
//
// A small wrapper (logx.Logger) on top of zerolog keeps:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - An optional announce sink that reads WARN+ records aloud (min-level + rate limiting)
package logx
