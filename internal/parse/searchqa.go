package parse

import (
	"regexp"
	"strings"
)

// Feedback classifies a search-qa observation's answer feedback.
type Feedback string

const (
	FeedbackNone      Feedback = ""
	FeedbackCorrect   Feedback = "correct"
	FeedbackIncorrect Feedback = "incorrect"
	// FeedbackInvalid marks the backend rejecting the previous action.
	FeedbackInvalid Feedback = "invalid"
)

// SearchQAState is the structured extraction from a search-qa
// observation.
type SearchQAState struct {
	// Question is the trailing "Question: ..." fragment.
	Question string
	// SearchResults is the payload of an <information> block.
	SearchResults string
	// Feedback classifies fixed marker phrases in the text.
	Feedback Feedback
}

var (
	questionTail     = regexp.MustCompile(`(?s)Question:\s*(.+?)\s*$`)
	informationBlock = regexp.MustCompile(`(?s)<information>(.*?)</information>`)
)

// Fixed marker phrases emitted by the search-qa backend.
const (
	markerCorrect   = "Congratulations! You have answered the question correctly"
	markerIncorrect = "Sorry, your answer is incorrect"
	markerInvalid   = "Your previous action is invalid"
)

// SearchQA extracts question, search results and feedback class from a
// search-qa observation.
func SearchQA(observation string) SearchQAState {
	state := SearchQAState{}

	if m := questionTail.FindStringSubmatch(observation); m != nil {
		state.Question = strings.TrimSpace(m[1])
	}
	if m := informationBlock.FindStringSubmatch(observation); m != nil {
		state.SearchResults = strings.TrimSpace(m[1])
	}

	switch {
	case strings.Contains(observation, markerCorrect):
		state.Feedback = FeedbackCorrect
	case strings.Contains(observation, markerIncorrect):
		state.Feedback = FeedbackIncorrect
	case strings.Contains(observation, markerInvalid):
		state.Feedback = FeedbackInvalid
	}
	return state
}
