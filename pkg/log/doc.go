/*
Package log provides structured logging for the ctOS deployment controller.

Built on zerolog for zero-allocation structured output. Init configures a
process-wide logger once at startup; packages derive child loggers with
standard fields via WithComponent, WithInstance, WithArtifact, and
WithAttempt so every line produced during a deployment run can be
correlated by instance name and attempt ID.

Console output (human-readable, colorized) is the default; JSON output is
available for log aggregation.
*/
package log
