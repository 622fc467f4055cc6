package intake

import (
	"errors"
	"testing"

	"vox/cmd/internal/survey"
)

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

func questionSet() []survey.Question {
	return []survey.Question{
		{Code: "q_name", Type: survey.QuestionText, Required: true, Constraints: survey.Constraints{MinLength: intPtr(2), MaxLength: intPtr(10)}},
		{Code: "q_age", Type: survey.QuestionNumber, Constraints: survey.Constraints{Min: floatPtr(0), Max: floatPtr(120)}},
		{Code: "q_dob", Type: survey.QuestionDate},
		{Code: "q_color", Type: survey.QuestionRadio, Required: true, Options: []string{"red", "green", "blue"}},
		{Code: "q_tools", Type: survey.QuestionCheckbox, Options: []string{"go", "rust", "zig"}},
	}
}

func TestValidateAnswers_FullOK(t *testing.T) {
	t.Parallel()

	err := validateAnswers(questionSet(), map[string]string{
		"q_name":  "Sam",
		"q_age":   "42",
		"q_dob":   "1984-05-04",
		"q_color": "blue",
		"q_tools": "go, zig",
	}, false)
	if err != nil {
		t.Fatalf("validateAnswers: %v", err)
	}
}

func TestValidateAnswers_RequiredOnlyOnFull(t *testing.T) {
	t.Parallel()

	partial := map[string]string{"q_age": "30"}

	if err := validateAnswers(questionSet(), partial, true); err != nil {
		t.Fatalf("partial save must not require answers: %v", err)
	}

	err := validateAnswers(questionSet(), partial, false)
	var verr *ValidationError
	if !errors.As(err, &verr) || !errors.Is(err, ErrValidation) {
		t.Fatalf("full validation: got %v, want ValidationError", err)
	}
	if verr.QuestionCode != "q_name" {
		t.Fatalf("failing question %q, want q_name", verr.QuestionCode)
	}
}

func TestValidateAnswers_Rules(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		answers  map[string]string
		wantCode string
	}{
		{"unknown question", map[string]string{"q_nope": "x"}, "q_nope"},
		{"text too short", map[string]string{"q_name": "a"}, "q_name"},
		{"text too long", map[string]string{"q_name": "abcdefghijk"}, "q_name"},
		{"not a number", map[string]string{"q_age": "forty"}, "q_age"},
		{"number below min", map[string]string{"q_age": "-1"}, "q_age"},
		{"number above max", map[string]string{"q_age": "130"}, "q_age"},
		{"bad date", map[string]string{"q_dob": "04/05/1984"}, "q_dob"},
		{"radio off-list", map[string]string{"q_color": "mauve"}, "q_color"},
		{"checkbox off-list", map[string]string{"q_tools": "go,cobol"}, "q_tools"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			err := validateAnswers(questionSet(), tc.answers, true)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("got %v, want ValidationError", err)
			}
			if verr.QuestionCode != tc.wantCode {
				t.Fatalf("failing question %q, want %q", verr.QuestionCode, tc.wantCode)
			}
		})
	}
}

func TestValidateAnswers_BlankOptionalSkipsConstraints(t *testing.T) {
	t.Parallel()

	err := validateAnswers(questionSet(), map[string]string{
		"q_name":  "Sam",
		"q_color": "red",
		"q_age":   "  ",
	}, false)
	if err != nil {
		t.Fatalf("blank optional answer must pass: %v", err)
	}
}
