package intake

import (
	"strconv"
	"strings"
	"time"

	"vox/cmd/internal/survey"
)

const dateLayout = "2006-01-02"

// validateAnswers checks answers against the survey's question set.
//
// In partial mode (autosave) only the provided values are checked, so a
// respondent can save an incomplete sheet. In full mode (completion) every
// required question must carry a non-blank answer.
func validateAnswers(qs []survey.Question, answers map[string]string, partial bool) error {
	byCode := make(map[string]survey.Question, len(qs))
	for _, q := range qs {
		byCode[q.Code] = q
	}

	for code := range answers {
		if _, ok := byCode[code]; !ok {
			return &ValidationError{QuestionCode: code, Reason: "unknown question"}
		}
	}

	for _, q := range qs {
		raw, present := answers[q.Code]
		blank := strings.TrimSpace(raw) == ""

		if !present || blank {
			if !partial && q.Required {
				return &ValidationError{QuestionCode: q.Code, Reason: "answer required"}
			}
			continue
		}

		if err := validateValue(q, raw); err != nil {
			return err
		}
	}
	return nil
}

func validateValue(q survey.Question, raw string) error {
	switch q.Type {
	case survey.QuestionText:
		n := len([]rune(raw))
		if min := q.Constraints.MinLength; min != nil && n < *min {
			return &ValidationError{QuestionCode: q.Code, Reason: "answer too short"}
		}
		if max := q.Constraints.MaxLength; max != nil && n > *max {
			return &ValidationError{QuestionCode: q.Code, Reason: "answer too long"}
		}

	case survey.QuestionNumber:
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return &ValidationError{QuestionCode: q.Code, Reason: "not a number"}
		}
		if min := q.Constraints.Min; min != nil && v < *min {
			return &ValidationError{QuestionCode: q.Code, Reason: "number below minimum"}
		}
		if max := q.Constraints.Max; max != nil && v > *max {
			return &ValidationError{QuestionCode: q.Code, Reason: "number above maximum"}
		}

	case survey.QuestionDate:
		if _, err := time.Parse(dateLayout, strings.TrimSpace(raw)); err != nil {
			return &ValidationError{QuestionCode: q.Code, Reason: "not a date (want YYYY-MM-DD)"}
		}

	case survey.QuestionDropdown, survey.QuestionRadio:
		if !q.HasOption(raw) {
			return &ValidationError{QuestionCode: q.Code, Reason: "not one of the options"}
		}

	case survey.QuestionCheckbox:
		// Multi-select answers travel as a comma-joined list.
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if !q.HasOption(part) {
				return &ValidationError{QuestionCode: q.Code, Reason: "not one of the options"}
			}
		}

	default:
		return &ValidationError{QuestionCode: q.Code, Reason: "unsupported question type"}
	}
	return nil
}
