// Package matcher finds possible duplicate records by scoring pairs.
//
// Scoring is delegated to an injected Scorer. Match enumerates unordered
// pairs within blocks of records that share a block key (the case-folded
// surname by default). Blocking is a performance policy, not a
// correctness guarantee: pairs split across blocks are assumed not to
// match and are never scored, so a misspelt surname hides a real duplicate.
// Disable Config.Blocking to compare every pair.
//
// A run makes up to two independent passes over the same pairs. The first
// discovers the highest score so a caller can calibrate a threshold
// control. The second recomputes each score and keeps pairs at or above
// the threshold. Scores are not cached between passes. Both passes check
// for cancellation every Config.CheckInterval pairs and report progress
// through a rate-limited Sink.
package matcher
