package interview

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

const (
	ReasonTooShort         = "Interview Too Short"
	ReasonDuplicateContact = "Duplicate Phone Number"
)

// QuestionSelector locates the designated contact-number question inside a
// survey's question tree. Matching order: exact text, semantic tag, pattern.
type QuestionSelector struct {
	ExactText string
	Tag       string
	Pattern   string

	re *regexp.Regexp
}

func (s *QuestionSelector) match(q Question) bool {
	if s.ExactText != "" && q.Text == s.ExactText {
		return true
	}
	if s.Tag != "" && q.Tag == s.Tag {
		return true
	}
	if s.Pattern != "" {
		if s.re == nil {
			re, err := regexp.Compile("(?i)" + s.Pattern)
			if err != nil {
				return false
			}
			s.re = re
		}
		return s.re.MatchString(q.Text)
	}
	return false
}

// Verdict is the combined outcome of all fired rules.
type Verdict struct {
	Reasons  []string
	Feedback string
}

func (v Verdict) Rejected() bool { return len(v.Reasons) > 0 }

// Evaluator runs the auto-rejection rules against one finished response plus
// its sibling responses. It only reads; applying a verdict is the caller's job.
type Evaluator struct {
	responses ResponseRepository
	surveys   SurveyRepository

	// minSeconds is the global minimum-duration threshold; surveys may
	// override it upward or downward via Survey.MinInterviewSeconds.
	minSeconds int

	// dupRules enrolls surveys in the duplicate-contact rule.
	dupRules map[string]*QuestionSelector
}

func NewEvaluator(responses ResponseRepository, surveys SurveyRepository, minSeconds int) *Evaluator {
	if minSeconds <= 0 {
		minSeconds = 180
	}
	return &Evaluator{
		responses:  responses,
		surveys:    surveys,
		minSeconds: minSeconds,
		dupRules:   map[string]*QuestionSelector{},
	}
}

// EnrollDuplicateRule registers the duplicate-contact rule for a survey.
func (e *Evaluator) EnrollDuplicateRule(surveyID string, sel QuestionSelector) {
	e.dupRules[surveyID] = &sel
}

// Evaluate runs both rules; their reasons concatenate. An empty verdict means
// the response passed.
func (e *Evaluator) Evaluate(ctx context.Context, r Response) (Verdict, error) {
	var v Verdict

	survey, ok, err := e.surveys.Get(ctx, r.SurveyID)
	if err != nil {
		return Verdict{}, fmt.Errorf("load survey: %w", err)
	}

	threshold := e.minSeconds
	if ok && survey.MinInterviewSeconds > 0 {
		threshold = survey.MinInterviewSeconds
	}
	if r.TotalTimeSeconds < threshold {
		v.Reasons = append(v.Reasons, ReasonTooShort)
	}

	if sel, enrolled := e.dupRules[r.SurveyID]; enrolled && ok {
		dup, err := e.duplicateContact(ctx, survey, sel, r)
		if err != nil {
			return Verdict{}, err
		}
		if dup {
			v.Reasons = append(v.Reasons, ReasonDuplicateContact)
		}
	}

	if len(v.Reasons) > 0 {
		v.Feedback = "Auto-rejected: " + strings.Join(v.Reasons, "; ")
	}
	return v, nil
}

func (e *Evaluator) duplicateContact(ctx context.Context, survey Survey, sel *QuestionSelector, r Response) (bool, error) {
	var questionID string
	for _, q := range survey.Questions {
		if sel.match(q) {
			questionID = q.ID
			break
		}
	}
	if questionID == "" {
		return false, nil
	}

	own := normalizeContact(r.Answers[questionID])
	if own == "" {
		return false, nil
	}

	siblings, err := e.responses.ListBySurvey(ctx, survey.ID)
	if err != nil {
		return false, fmt.Errorf("list sibling responses: %w", err)
	}
	for _, s := range siblings {
		if s.ID == r.ID {
			continue
		}
		if normalizeContact(s.Answers[questionID]) == own {
			return true, nil
		}
	}
	return false, nil
}

// normalizeContact strips whitespace and punctuation and lowercases, so
// "98765 43210" and "9876543210" compare equal.
func normalizeContact(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}
