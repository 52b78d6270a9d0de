// Package logger is the event journal for sweeps: every sweep and run start
// and finish is appended to a newline delimited JSON log that reports are
// built from.
package logger
