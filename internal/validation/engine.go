// Package validation evaluates answer values against the rules declared
// on activity questions. Evaluation is pure: no I/O, no clock, no
// mutation of its inputs.
package validation

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"example.com/taskform/internal/activity"
)

// Answers maps question ids to the values entered so far. Values may be
// strings, numbers, slices, or nil for untouched questions.
type Answers map[string]any

// Issue is one failed rule on one question.
type Issue struct {
	QuestionID string `json:"questionId"`
	Rule       string `json:"rule"`
	Message    string `json:"message"`
	Warning    bool   `json:"warning,omitempty"`
}

var (
	numberPattern = regexp.MustCompile(`^-?\d+(\.\d+)?$`)
	emailPattern  = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

// ValidateQuestion evaluates every rule on the question against the
// answer, in declaration order. Rules whose configuration cannot be
// interpreted (a broken pattern, a non-numeric bound) are skipped.
func ValidateQuestion(q activity.Question, answer any, answers Answers) []Issue {
	issues := make([]Issue, 0)

	// Numeric question types gate on format before any declared rule:
	// a non-empty answer that does not look like a number fails alone.
	if q.Type.IsNumeric() && !isEmpty(answer) && !looksNumeric(answer) {
		return append(issues, Issue{
			QuestionID: q.ID,
			Rule:       string(activity.RuleNumberFormat),
			Message:    "Please enter a valid number",
		})
	}

	rules := q.Validations
	if q.Required && !hasRule(rules, activity.RuleRequired) {
		rules = append([]activity.Rule{{Kind: activity.RuleRequired}}, rules...)
	}

	for _, rule := range rules {
		message, failed := evaluate(rule, answer, answers)
		if !failed {
			continue
		}
		if rule.Text != "" {
			message = rule.Text
		}
		issues = append(issues, Issue{
			QuestionID: q.ID,
			Rule:       string(rule.Kind),
			Message:    message,
			Warning:    rule.WarningOnly,
		})
	}

	return issues
}

// ValidateScreen evaluates every question shown on the screen.
func ValidateScreen(screen activity.ParsedScreen, answers Answers) []Issue {
	issues := make([]Issue, 0)
	for _, element := range screen.Elements {
		issues = append(issues, ValidateQuestion(element.Question, answers[element.Question.ID], answers)...)
	}
	return issues
}

// ValidateAll evaluates every screen of the parsed activity.
func ValidateAll(data activity.ParsedActivityData, answers Answers) []Issue {
	issues := make([]Issue, 0)
	for _, screen := range data.Screens {
		issues = append(issues, ValidateScreen(screen, answers)...)
	}
	return issues
}

// IsScreenValid reports whether the screen has no blocking issues.
// Warning-only findings do not block.
func IsScreenValid(screen activity.ParsedScreen, answers Answers) bool {
	for _, issue := range ValidateScreen(screen, answers) {
		if !issue.Warning {
			return false
		}
	}
	return true
}

func hasRule(rules []activity.Rule, kind activity.RuleKind) bool {
	for _, rule := range rules {
		if rule.Kind == kind {
			return true
		}
	}
	return false
}

func evaluate(rule activity.Rule, answer any, answers Answers) (string, bool) {
	switch rule.Kind {
	case activity.RuleRequired:
		if isEmpty(answer) {
			return "This field is required.", true
		}

	case activity.RuleMin:
		bound, ok := ruleNumber(rule.Value)
		if !ok {
			return "", false
		}
		if n, ok := answerNumber(answer); ok && n < bound {
			return fmt.Sprintf("Value must be at least %s", rule.Value), true
		}

	case activity.RuleMax:
		bound, ok := ruleNumber(rule.Value)
		if !ok {
			return "", false
		}
		if n, ok := answerNumber(answer); ok && n > bound {
			return fmt.Sprintf("Value must be at most %s", rule.Value), true
		}

	case activity.RulePattern:
		if rule.Value == "" {
			return "", false
		}
		re, err := regexp.Compile(anchored(rule.Value))
		if err != nil {
			return "", false
		}
		if s, ok := answer.(string); ok && s != "" && !re.MatchString(s) {
			return "Invalid format.", true
		}

	case activity.RuleEmail:
		if s, ok := answer.(string); ok && s != "" && !emailPattern.MatchString(s) {
			return "Please enter a valid email address.", true
		}

	case activity.RuleURL:
		if s, ok := answer.(string); ok && s != "" {
			parsed, err := url.Parse(s)
			if err != nil || parsed.Scheme == "" || parsed.Host == "" {
				return "Please enter a valid URL.", true
			}
		}

	case activity.RuleMinLength:
		bound, ok := ruleNumber(rule.Value)
		if !ok {
			return "", false
		}
		if length, ok := answerLength(answer); ok && float64(length) < bound {
			return fmt.Sprintf("Must be at least %s characters", rule.Value), true
		}

	case activity.RuleMaxLength:
		bound, ok := ruleNumber(rule.Value)
		if !ok {
			return "", false
		}
		if length, ok := answerLength(answer); ok && float64(length) > bound {
			return fmt.Sprintf("Must be at most %s characters", rule.Value), true
		}

	case activity.RuleCompare:
		if rule.ComparePath == "" {
			return "", false
		}
		other, present := answers[rule.ComparePath]
		if !present || isEmpty(answer) || isEmpty(other) {
			return "", false
		}
		a, aOK := answerNumber(answer)
		b, bOK := answerNumber(other)
		if !aOK || !bOK {
			// Comparison is numeric only; non-numeric operands skip.
			return "", false
		}
		if !compare(a, b, rule.CompareFact) {
			return "Values do not satisfy the comparison.", true
		}
	}

	return "", false
}

// isEmpty treats nil, blank strings, empty slices, and slices whose
// members are all empty as unanswered.
func isEmpty(answer any) bool {
	switch v := answer.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case []any:
		for _, item := range v {
			if !isEmpty(item) {
				return false
			}
		}
		return true
	case []string:
		for _, item := range v {
			if strings.TrimSpace(item) != "" {
				return false
			}
		}
		return true
	}
	return false
}

// looksNumeric is the format gate. Native number types pass outright;
// everything else renders to text and must read as a plain decimal, so
// booleans and composite answers fail the same way a word does.
func looksNumeric(answer any) bool {
	switch v := answer.(type) {
	case float64, float32, int, int64:
		return true
	case string:
		return numberPattern.MatchString(strings.TrimSpace(v))
	default:
		return numberPattern.MatchString(strings.TrimSpace(fmt.Sprint(v)))
	}
}

// answerNumber coerces an answer to a float. Non-numeric answers are
// out of scope for min/max rules, the format gate already covers them.
func answerNumber(answer any) (float64, bool) {
	switch v := answer.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

func ruleNumber(value string) (float64, bool) {
	if value == "" {
		return 0, false
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// answerLength is the rune count for strings and the member count for
// slices.
func answerLength(answer any) (int, bool) {
	switch v := answer.(type) {
	case string:
		if v == "" {
			return 0, false
		}
		return utf8.RuneCountInString(v), true
	case []any:
		return len(v), true
	case []string:
		return len(v), true
	}
	return 0, false
}

// anchored wraps a declared pattern so it must match the whole answer.
func anchored(pattern string) string {
	if !strings.HasPrefix(pattern, "^") {
		pattern = "^" + pattern
	}
	if !strings.HasSuffix(pattern, "$") {
		pattern += "$"
	}
	return pattern
}

func compare(a, b float64, fact activity.CompareFact) bool {
	switch fact {
	case activity.CompareGreaterThan:
		return a > b
	case activity.CompareLessThan:
		return a < b
	case activity.CompareNotEqual:
		return a != b
	case activity.CompareEqual, "":
		return a == b
	}
	return false
}
