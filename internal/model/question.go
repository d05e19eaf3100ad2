package model

import (
	"fmt"
	"strings"
)

type QuestionType string

// The question schema is a closed set of types; each type constrains the
// answer shape it accepts.
const (
	QuestionText     QuestionType = "text"
	QuestionTextarea QuestionType = "textarea"
	QuestionPhone    QuestionType = "phone"
	QuestionDropdown QuestionType = "dropdown"
	QuestionRadio    QuestionType = "radio"
	QuestionCheckbox QuestionType = "checkbox"
)

// Question is one custom field on a booking link. Options are required for
// dropdown, radio and checkbox, and meaningless otherwise.
type Question struct {
	ID       string       `json:"id"`
	Type     QuestionType `json:"type"`
	Label    string       `json:"label"`
	Required bool         `json:"required"`
	Options  []string     `json:"options,omitempty"`
}

// Validate checks a question definition at link-authoring time.
func (q *Question) Validate() error {
	if strings.TrimSpace(q.Label) == "" {
		return fmt.Errorf("question %s: label required", q.ID)
	}
	switch q.Type {
	case QuestionText, QuestionTextarea, QuestionPhone:
		return nil
	case QuestionDropdown, QuestionRadio, QuestionCheckbox:
		if len(q.Options) == 0 {
			return fmt.Errorf("question %s: %s requires options", q.ID, q.Type)
		}
		for _, opt := range q.Options {
			if strings.TrimSpace(opt) == "" {
				return fmt.Errorf("question %s: empty option", q.ID)
			}
		}
		return nil
	default:
		return fmt.Errorf("question %s: unknown type %q", q.ID, q.Type)
	}
}

// ValidateAnswers checks an invitee's answers against the link's questions:
// required questions must be answered, option answers must name defined
// options, and checkbox is the only multi-select type.
func ValidateAnswers(questions []Question, answers []Answer) error {
	byQuestion := make(map[string]Answer, len(answers))
	for _, a := range answers {
		if _, dup := byQuestion[a.QuestionID]; dup {
			return fmt.Errorf("duplicate answer for question %s", a.QuestionID)
		}
		byQuestion[a.QuestionID] = a
	}

	known := make(map[string]struct{}, len(questions))
	for _, q := range questions {
		known[q.ID] = struct{}{}
		a, answered := byQuestion[q.ID]
		if !answered || answerEmpty(q, a) {
			if q.Required {
				return fmt.Errorf("question %q requires an answer", q.Label)
			}
			continue
		}
		if err := checkAnswerShape(q, a); err != nil {
			return err
		}
	}

	for id := range byQuestion {
		if _, ok := known[id]; !ok {
			return fmt.Errorf("answer for unknown question %s", id)
		}
	}
	return nil
}

func answerEmpty(q Question, a Answer) bool {
	if q.Type == QuestionCheckbox {
		return len(a.Selected) == 0
	}
	if q.Type == QuestionDropdown || q.Type == QuestionRadio {
		return strings.TrimSpace(a.Value) == "" && len(a.Selected) == 0
	}
	return strings.TrimSpace(a.Value) == ""
}

func checkAnswerShape(q Question, a Answer) error {
	switch q.Type {
	case QuestionText, QuestionTextarea:
		return nil
	case QuestionPhone:
		if !looksLikePhone(a.Value) {
			return fmt.Errorf("question %q: invalid phone number", q.Label)
		}
		return nil
	case QuestionDropdown, QuestionRadio:
		value := a.Value
		if value == "" && len(a.Selected) == 1 {
			value = a.Selected[0]
		}
		if len(a.Selected) > 1 {
			return fmt.Errorf("question %q accepts a single option", q.Label)
		}
		if !containsOption(q.Options, value) {
			return fmt.Errorf("question %q: unknown option %q", q.Label, value)
		}
		return nil
	case QuestionCheckbox:
		if a.Value != "" {
			return fmt.Errorf("question %q expects selected options", q.Label)
		}
		seen := make(map[string]struct{}, len(a.Selected))
		for _, sel := range a.Selected {
			if !containsOption(q.Options, sel) {
				return fmt.Errorf("question %q: unknown option %q", q.Label, sel)
			}
			if _, dup := seen[sel]; dup {
				return fmt.Errorf("question %q: option %q selected twice", q.Label, sel)
			}
			seen[sel] = struct{}{}
		}
		return nil
	default:
		return fmt.Errorf("question %q: unknown type %q", q.Label, q.Type)
	}
}

func containsOption(options []string, value string) bool {
	for _, opt := range options {
		if opt == value {
			return true
		}
	}
	return false
}

func looksLikePhone(s string) bool {
	digits := 0
	for _, r := range strings.TrimSpace(s) {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '+' || r == '-' || r == ' ' || r == '(' || r == ')' || r == '.':
		default:
			return false
		}
	}
	return digits >= 5 && digits <= 15
}
