package model

import "testing"

func questionSet() []Question {
	return []Question{
		{ID: "q-name", Type: QuestionText, Label: "Topic", Required: true},
		{ID: "q-phone", Type: QuestionPhone, Label: "Phone", Required: false},
		{ID: "q-size", Type: QuestionRadio, Label: "Team size", Required: true, Options: []string{"1-5", "6-20", "21+"}},
		{ID: "q-tools", Type: QuestionCheckbox, Label: "Tools", Required: false, Options: []string{"slack", "teams"}},
	}
}

func TestValidateAnswers_HappyPath(t *testing.T) {
	err := ValidateAnswers(questionSet(), []Answer{
		{QuestionID: "q-name", Value: "Quarterly review"},
		{QuestionID: "q-phone", Value: "+1 (555) 010-2030"},
		{QuestionID: "q-size", Value: "6-20"},
		{QuestionID: "q-tools", Selected: []string{"slack", "teams"}},
	})
	if err != nil {
		t.Fatalf("expected valid answers, got %v", err)
	}
}

func TestValidateAnswers_MissingRequired(t *testing.T) {
	err := ValidateAnswers(questionSet(), []Answer{
		{QuestionID: "q-name", Value: "   "},
		{QuestionID: "q-size", Value: "1-5"},
	})
	if err == nil {
		t.Fatal("blank required answer should fail")
	}
}

func TestValidateAnswers_UnknownOption(t *testing.T) {
	err := ValidateAnswers(questionSet(), []Answer{
		{QuestionID: "q-name", Value: "x"},
		{QuestionID: "q-size", Value: "1000"},
	})
	if err == nil {
		t.Fatal("undefined radio option should fail")
	}
}

func TestValidateAnswers_RadioRejectsMultiSelect(t *testing.T) {
	err := ValidateAnswers(questionSet(), []Answer{
		{QuestionID: "q-name", Value: "x"},
		{QuestionID: "q-size", Selected: []string{"1-5", "6-20"}},
	})
	if err == nil {
		t.Fatal("radio must accept a single option")
	}
}

func TestValidateAnswers_BadPhone(t *testing.T) {
	err := ValidateAnswers(questionSet(), []Answer{
		{QuestionID: "q-name", Value: "x"},
		{QuestionID: "q-phone", Value: "call me maybe"},
		{QuestionID: "q-size", Value: "1-5"},
	})
	if err == nil {
		t.Fatal("non-numeric phone should fail")
	}
}

func TestValidateAnswers_UnknownQuestion(t *testing.T) {
	err := ValidateAnswers(questionSet(), []Answer{
		{QuestionID: "q-name", Value: "x"},
		{QuestionID: "q-size", Value: "1-5"},
		{QuestionID: "q-ghost", Value: "boo"},
	})
	if err == nil {
		t.Fatal("answers to undefined questions should fail")
	}
}

func TestQuestionValidate(t *testing.T) {
	q := Question{ID: "q", Type: QuestionDropdown, Label: "Pick"}
	if err := q.Validate(); err == nil {
		t.Fatal("dropdown without options should fail")
	}
	q.Options = []string{"a"}
	if err := q.Validate(); err != nil {
		t.Fatalf("valid question rejected: %v", err)
	}
	q.Type = "essay"
	if err := q.Validate(); err == nil {
		t.Fatal("unknown question type should fail")
	}
}
