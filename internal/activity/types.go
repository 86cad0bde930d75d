// Package activity defines the form model for schema-driven assessments
// and the parser that shapes raw configuration blobs into it.
package activity

// QuestionType enumerates the supported question kinds.
type QuestionType string

const (
	QuestionTypeText          QuestionType = "TEXT"
	QuestionTypeSingleSelect  QuestionType = "SINGLE_SELECT"
	QuestionTypeMultiSelect   QuestionType = "MULTI_SELECT"
	QuestionTypeNumber        QuestionType = "NUMBER"
	QuestionTypeNumberField   QuestionType = "NUMBER_FIELD"
	QuestionTypeNumericScale  QuestionType = "NUMERIC_SCALE"
	QuestionTypeDate          QuestionType = "DATE"
	QuestionTypeTime          QuestionType = "TIME"
	QuestionTypeDateTime      QuestionType = "DATE_TIME"
	QuestionTypeBloodPressure QuestionType = "BLOOD_PRESSURE"
	QuestionTypeTemperature   QuestionType = "TEMPERATURE"
	QuestionTypeWeightHeight  QuestionType = "WEIGHT_HEIGHT"
	QuestionTypeHorizontalVAS QuestionType = "HORIZONTAL_VAS"
	QuestionTypeImageCapture  QuestionType = "IMAGE_CAPTURE"
	QuestionTypeLabel         QuestionType = "LABEL"
)

// IsNumeric reports whether answers for this question type are numbers.
func (t QuestionType) IsNumeric() bool {
	switch t {
	case QuestionTypeNumber, QuestionTypeNumberField, QuestionTypeNumericScale:
		return true
	}
	return false
}

// RuleKind enumerates the declarative validation rule kinds.
type RuleKind string

const (
	RuleRequired  RuleKind = "REQUIRED"
	RuleMin       RuleKind = "MIN"
	RuleMax       RuleKind = "MAX"
	RulePattern   RuleKind = "PATTERN"
	RuleEmail     RuleKind = "EMAIL"
	RuleURL       RuleKind = "URL"
	RuleMinLength RuleKind = "MIN_LENGTH"
	RuleMaxLength RuleKind = "MAX_LENGTH"
	RuleCompare   RuleKind = "COMPARE"

	// RuleNumberFormat is never declared on a question; it tags the
	// implicit format gate on numeric question types.
	RuleNumberFormat RuleKind = "NUMBER_FORMAT"
)

// CompareFact selects the operator for cross-field COMPARE rules.
type CompareFact string

const (
	CompareGreaterThan CompareFact = "GREATER_THAN"
	CompareLessThan    CompareFact = "LESS_THAN"
	CompareEqual       CompareFact = "EQUAL"
	CompareNotEqual    CompareFact = "NOT_EQUAL"
)

// Rule is one declarative validation rule attached to a question.
// Rules are tagged variants dispatched by Kind, kept serializable.
type Rule struct {
	Kind        RuleKind    `json:"type"`
	Value       string      `json:"value,omitempty"`
	Text        string      `json:"text,omitempty"`
	ComparePath string      `json:"comparePath,omitempty"`
	CompareFact CompareFact `json:"compareFact,omitempty"`
	WarningOnly bool        `json:"warningOnly,omitempty"`
}

// Choice is one selectable option for select-style questions.
type Choice struct {
	ID    string `json:"id"`
	Text  string `json:"text"`
	Value string `json:"value,omitempty"`
}

// Question is a single question definition. Immutable after parsing.
type Question struct {
	ID           string       `json:"id"`
	Type         QuestionType `json:"type"`
	Text         string       `json:"text,omitempty"`
	FriendlyName string       `json:"friendlyName,omitempty"`
	Required     bool         `json:"required,omitempty"`
	Validations  []Rule       `json:"validations,omitempty"`
	Choices      []Choice     `json:"choices,omitempty"`
	MinValue     *float64     `json:"minValue,omitempty"`
	MaxValue     *float64     `json:"maxValue,omitempty"`
	Units        string       `json:"units,omitempty"`
}

// DisplayProperty is a key/value rendering hint whose value may itself be
// a JSON-encoded string.
type DisplayProperty struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Element binds a position on a screen to a question id. The inline
// question, when present, takes precedence over the id lookup.
type Element struct {
	ID                string            `json:"id"`
	Order             int               `json:"order,omitempty"`
	Question          *Question         `json:"question,omitempty"`
	DisplayProperties []DisplayProperty `json:"displayProperties,omitempty"`
}

// Screen is one page of a multi-page form as it appears in raw config.
type Screen struct {
	ID                string            `json:"id,omitempty"`
	Name              string            `json:"name,omitempty"`
	Text              string            `json:"text,omitempty"`
	Order             int               `json:"order,omitempty"`
	Elements          []Element         `json:"elements,omitempty"`
	DisplayProperties []DisplayProperty `json:"displayProperties,omitempty"`
}

// Layout groups screens per rendering target. Only MOBILE layouts
// contribute screens to the parsed form.
type Layout struct {
	Type    string   `json:"type"`
	Screens []Screen `json:"screens,omitempty"`
}

// LayoutTypeMobile marks the layout variant this service renders.
const LayoutTypeMobile = "MOBILE"

// ActivityGroup bundles question definitions.
type ActivityGroup struct {
	ID        string     `json:"id,omitempty"`
	Questions []Question `json:"questions,omitempty"`
}

// RawActivityConfig is the untyped ingestion boundary. ActivityGroups may
// be a group object, a slice of groups, or a JSON string encoding either.
// Never persisted; owned transiently by the parser.
type RawActivityConfig struct {
	ActivityGroups     any      `json:"activityGroups,omitempty"`
	Layouts            []Layout `json:"layouts,omitempty"`
	Screens            []Screen `json:"screens,omitempty"`
	IntroductionScreen any      `json:"introductionScreen,omitempty"`
	SummaryScreen      any      `json:"summaryScreen,omitempty"`
	CompletionScreen   any      `json:"completionScreen,omitempty"`
}

// ParsedElement is an element whose question reference has been resolved.
type ParsedElement struct {
	ID                string            `json:"id"`
	Order             int               `json:"order"`
	Question          Question          `json:"question"`
	DisplayProperties map[string]string `json:"displayProperties,omitempty"`
}

// ParsedScreen is a screen with resolved, order-sorted elements.
type ParsedScreen struct {
	ID                string            `json:"id"`
	Name              string            `json:"name"`
	Order             int               `json:"order"`
	Elements          []ParsedElement   `json:"elements"`
	DisplayProperties map[string]string `json:"displayProperties,omitempty"`
}

// ParsedActivityData is the strict in-memory form model. Every element on
// every screen resolves to a question present in Questions. The pseudo
// screens are carried as-is for the renderer.
type ParsedActivityData struct {
	Screens            []ParsedScreen `json:"screens"`
	Questions          []Question     `json:"questions"`
	IntroductionScreen any            `json:"introductionScreen,omitempty"`
	SummaryScreen      any            `json:"summaryScreen,omitempty"`
	CompletionScreen   any            `json:"completionScreen,omitempty"`
}
