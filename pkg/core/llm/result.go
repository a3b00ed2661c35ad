package llm

import "fmt"

// Status tells a caller what kind of answer a Result carries.
type Status string

const (
	StatusOK        Status = "ok"        // provider answered; Text may legitimately be empty
	StatusNoIndex   Status = "no_index"  // nothing to retrieve from, provider not called
	StatusExhausted Status = "exhausted" // capacity retries used up
	StatusFailed    Status = "failed"    // provider or transport error
	StatusMalformed Status = "malformed" // answer arrived but failed a shape check
	StatusSkipped   Status = "skipped"   // an upstream stage produced no input
)

// UnableToProcess is the text of a query that gave up after shrinking its context.
const UnableToProcess = "Unable to process query due to constraints"

// Result wraps the outcome of an external call so that an empty answer and a
// failed call are never confused.
type Result struct {
	Text     string `json:"text"`
	Status   Status `json:"status"`
	Err      error  `json:"-"`
	Attempts int    `json:"attempts,omitempty"`
	TopK     int    `json:"top_k,omitempty"`
}

// OK reports whether the provider produced an answer.
func (r Result) OK() bool { return r.Status == StatusOK }

// Success builds an OK result.
func Success(text string) Result {
	return Result{Text: text, Status: StatusOK}
}

// Failure builds a failed result with an optional placeholder text.
func Failure(err error, placeholder string) Result {
	return Result{Text: placeholder, Status: StatusFailed, Err: err}
}

// TextOr returns the result text, or placeholder when the call did not succeed
// and carries no text of its own.
func (r Result) TextOr(placeholder string) string {
	if r.Text != "" {
		return r.Text
	}
	if r.OK() {
		return ""
	}
	return placeholder
}

func (r Result) String() string {
	if r.Err != nil {
		return fmt.Sprintf("%s: %v", r.Status, r.Err)
	}
	return string(r.Status)
}
