// Package errors provides standardized error handling patterns for mavrelay.
//
// # Overview
//
// The errors package implements a three-class error classification system for
// the relay pipeline: Transient (temporary, retryable), Invalid (bad input,
// non-retryable), and Fatal (unrecoverable, stop processing).
//
// Classification drives the pipeline's failure-domain rules: transient
// transport errors are retried or skipped, invalid frames degrade to
// empty-payload records, fatal errors terminate the process.
//
// # Error Classification
//
//   - Transient: socket timeouts, connection issues, temporary unavailability
//   - Invalid: malformed frames, checksum mismatches, bad configuration input
//   - Fatal: upstream unreachable, disk full, invalid configuration
//
// The classification system integrates with Go's standard error handling,
// supporting errors.Is(), errors.As(), and error wrapping chains.
//
// # Error Wrapping Pattern
//
// All error wrapping follows the standardized format:
//
//	"component.method: action failed: %w"
//
// Three wrapper functions provide classification-aware wrapping:
//
//	errors.WrapTransient(err, "Component", "Method", "action")
//	errors.WrapInvalid(err, "Component", "Method", "action")
//	errors.WrapFatal(err, "Component", "Method", "action")
//
// The generic Wrap() preserves the original error's classification.
//
// # Standard Error Variables
//
// Pre-defined error variables cover common conditions, organized by category:
// component lifecycle, transport, frame decoding, sinks, and configuration.
// Use these instead of ad-hoc error strings so call sites can rely on
// errors.Is() checks:
//
//	if frameLen < declared {
//	    return errors.ErrTruncatedFrame
//	}
package errors
