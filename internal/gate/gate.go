// Package gate decides whether a document is (re)processed for the
// current template version.
package gate

import "fmt"

// Strategy is the configured reprocessing policy.
type Strategy string

const (
	Always  Strategy = "always"
	Never   Strategy = "never"
	IfNewer Strategy = "ifNewer"
)

// ParseStrategy validates a strategy name.
func ParseStrategy(s string) (Strategy, error) {
	st := Strategy(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown update strategy %q (want always, never or ifNewer)", s)
	}
	return st, nil
}

// Valid reports whether s is a known strategy.
func (s Strategy) Valid() bool {
	switch s {
	case Always, Never, IfNewer:
		return true
	}
	return false
}

// ShouldProcess applies the strategy to a template version and the
// version the document was last processed with. hasDocVersion=false means
// the document was never processed with a template, which ifNewer treats
// as older than any template. Unknown strategies never process.
func ShouldProcess(s Strategy, templateVersion, docVersion int64, hasDocVersion bool) bool {
	switch s {
	case Always:
		return true
	case IfNewer:
		return !hasDocVersion || templateVersion > docVersion
	default:
		return false
	}
}

// FirstTime is the untemplated gate: process only a document that has no
// output yet.
func FirstTime(hasOutput bool) bool {
	return !hasOutput
}
