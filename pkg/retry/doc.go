// Package retry provides bounded retry with pluggable backoff.
//
// Every fallible unit in the pipeline (page fetch, record write) is
// wrapped in Do or DoWithResult with an explicit attempt budget; nothing
// retries indefinitely. The RetryIf predicate consults the typed error
// taxonomy so structural failures fail fast.
package retry
