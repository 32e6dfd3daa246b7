// Package dedupe suppresses duplicate query submissions using a time-based
// cache keyed on the submitting principal and query text.
package dedupe
