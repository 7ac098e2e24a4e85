// Package resolver turns a free-text message into a single tool call, first
// through a function-calling model and, when that is unavailable or
// unusable, through a deterministic keyword parser.
package resolver

import (
	"github.com/dohr-michael/taskchat/internal/tools"
)

// Confidence records which path produced an intent.
type Confidence string

const (
	ConfidenceModel    Confidence = "model"
	ConfidenceFallback Confidence = "fallback"
)

// InfoKind names a canned reply that is answered without any tool.
type InfoKind string

const (
	InfoGreeting InfoKind = "greeting"
	InfoHelp     InfoKind = "help"
)

// Intent is the resolved meaning of one message. Exactly one of Call and
// Info is set.
type Intent struct {
	Call       tools.Call
	Info       InfoKind
	Confidence Confidence
	// RawSource is what the intent was derived from: the model's tool call
	// for the model path, the user's text for the fallback.
	RawSource string
}

// Informational reports whether the intent is a canned reply.
func (i *Intent) Informational() bool {
	return i.Call == nil && i.Info != ""
}

// ToolName returns the tool to dispatch, or tools.ActionNone.
func (i *Intent) ToolName() string {
	if i.Call == nil {
		return tools.ActionNone
	}
	return string(i.Call.Tool())
}
