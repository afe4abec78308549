// Package parser converts bulk upload text into question drafts.
//
// The upload format is plain UTF-8 text with records separated by an
// em-dash. Each record carries three labeled sections in order: 문제:
// (question with inline ①②③④⑤ options), 답: (answer), 해설: (explanation).
package parser

import (
	"fmt"
	"regexp"
	"strings"

	"quizbank/internal/model"
)

// RecordSeparator splits a bulk upload into records.
const RecordSeparator = "—"

const (
	questionMarker    = "문제:"
	answerMarker      = "답:"
	explanationMarker = "해설:"
)

// optionMarkers matches the fixed circled-digit symbols that introduce
// answer options inside the question section.
var optionMarkers = regexp.MustCompile(`[①②③④⑤]`)

// ErrorKind identifies a class of parse failure.
type ErrorKind string

const (
	// KindMalformedRecord means one of the three section markers is missing
	// or out of order.
	KindMalformedRecord ErrorKind = "malformed_record"
	// KindInsufficientOptions means fewer than two option markers were found.
	KindInsufficientOptions ErrorKind = "insufficient_options"
	// KindEmptyPrompt means no question text precedes the first option.
	KindEmptyPrompt ErrorKind = "empty_prompt"
	// KindAnswerMismatch means the answer text matches none of the options.
	KindAnswerMismatch ErrorKind = "answer_mismatch"
)

// ParseError reports why a record could not be parsed. Record is the
// 1-based index of the failing record among the non-empty records.
type ParseError struct {
	Kind    ErrorKind
	Record  int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("record %d: %s", e.Record, e.Message)
}

// Parse converts one uploaded text blob into question drafts, in input
// order. Parsing is all-or-nothing: the first malformed record aborts the
// whole batch and no drafts are returned. Drafts have no category; the
// caller assigns one for the batch.
func Parse(text string) ([]model.QuestionDraft, error) {
	var drafts []model.QuestionDraft
	record := 0
	for _, block := range strings.Split(text, RecordSeparator) {
		if strings.TrimSpace(block) == "" {
			continue
		}
		record++
		draft, err := parseRecord(block, record)
		if err != nil {
			return nil, err
		}
		drafts = append(drafts, draft)
	}
	return drafts, nil
}

func parseRecord(block string, record int) (model.QuestionDraft, error) {
	question, rest, ok := cutSection(block, questionMarker, answerMarker)
	if !ok {
		return model.QuestionDraft{}, &ParseError{
			Kind:    KindMalformedRecord,
			Record:  record,
			Message: fmt.Sprintf("missing %s or %s marker", questionMarker, answerMarker),
		}
	}
	answer, explanation, ok := cutSection(rest, "", explanationMarker)
	if !ok {
		return model.QuestionDraft{}, &ParseError{
			Kind:    KindMalformedRecord,
			Record:  record,
			Message: fmt.Sprintf("missing %s marker", explanationMarker),
		}
	}

	prompt, options, err := splitOptions(question, record)
	if err != nil {
		return model.QuestionDraft{}, err
	}

	matched, err := matchAnswer(options, strings.TrimSpace(answer), record)
	if err != nil {
		return model.QuestionDraft{}, err
	}

	return model.QuestionDraft{
		Text:        prompt,
		Options:     options,
		Answer:      matched,
		Explanation: strings.TrimSpace(explanation),
	}, nil
}

// cutSection returns the text between the start marker (or the beginning of
// the block when start is empty) and the end marker, plus everything after
// the end marker.
func cutSection(block, start, end string) (section, rest string, ok bool) {
	if start != "" {
		i := strings.Index(block, start)
		if i < 0 {
			return "", "", false
		}
		block = block[i+len(start):]
	}
	j := strings.Index(block, end)
	if j < 0 {
		return "", "", false
	}
	return block[:j], block[j+len(end):], true
}

// splitOptions separates the question prompt from the ①②③④⑤ options that
// follow it. Each option's text is the marker plus everything up to the
// next marker or the end of the section.
func splitOptions(section string, record int) (string, []string, error) {
	locs := optionMarkers.FindAllStringIndex(section, -1)
	if len(locs) < 2 {
		return "", nil, &ParseError{
			Kind:    KindInsufficientOptions,
			Record:  record,
			Message: fmt.Sprintf("found %d options, need at least 2", len(locs)),
		}
	}

	prompt := strings.TrimSpace(section[:locs[0][0]])
	if prompt == "" {
		return "", nil, &ParseError{
			Kind:    KindEmptyPrompt,
			Record:  record,
			Message: "no question text before the first option",
		}
	}

	options := make([]string, 0, len(locs))
	for i, loc := range locs {
		end := len(section)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		options = append(options, strings.TrimSpace(section[loc[0]:end]))
	}
	return prompt, options, nil
}

// matchAnswer resolves the answer section against the parsed options by
// prefix match and returns the full text of the matching option.
func matchAnswer(options []string, answer string, record int) (string, error) {
	if answer != "" {
		for _, opt := range options {
			if strings.HasPrefix(opt, answer) {
				return opt, nil
			}
		}
	}
	return "", &ParseError{
		Kind:    KindAnswerMismatch,
		Record:  record,
		Message: fmt.Sprintf("answer %q matches none of the options", answer),
	}
}
