package activity

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func sampleGroup() ActivityGroup {
	return ActivityGroup{
		ID: "group-1",
		Questions: []Question{
			{ID: "q1", Type: QuestionTypeText, Text: "How do you feel?", Required: true},
			{ID: "q2", Type: QuestionTypeNumber, Text: "Pain level"},
		},
	}
}

func sampleScreens() []Screen {
	return []Screen{
		{
			ID:    "s1",
			Order: 1,
			Elements: []Element{
				{ID: "q2", Order: 2},
				{ID: "q1", Order: 1},
			},
		},
	}
}

func TestParseConfigAcceptsEquivalentGroupShapes(t *testing.T) {
	group := sampleGroup()
	asArray, err := json.Marshal([]ActivityGroup{group})
	require.NoError(t, err)
	asObject, err := json.Marshal(group)
	require.NoError(t, err)
	doubleEncoded, err := json.Marshal(string(asArray))
	require.NoError(t, err)

	shapes := map[string]any{
		"typed object":   group,
		"typed slice":    []ActivityGroup{group},
		"json array":     string(asArray),
		"json object":    string(asObject),
		"double encoded": string(doubleEncoded),
	}

	want := ParseConfig(RawActivityConfig{ActivityGroups: group, Screens: sampleScreens()})
	require.Len(t, want.Questions, 2)
	require.Len(t, want.Screens, 1)

	for name, shape := range shapes {
		got := ParseConfig(RawActivityConfig{ActivityGroups: shape, Screens: sampleScreens()})
		require.Equal(t, want, got, "shape %q", name)
	}
}

func TestParseConfigSortsElementsAndDropsDanglingRefs(t *testing.T) {
	cfg := RawActivityConfig{
		ActivityGroups: sampleGroup(),
		Screens: []Screen{{
			ID: "s1",
			Elements: []Element{
				{ID: "q2", Order: 5},
				{ID: "missing", Order: 1},
				{ID: "q1", Order: 3},
			},
		}},
	}

	parsed := ParseConfig(cfg)
	require.Len(t, parsed.Screens, 1)

	elements := parsed.Screens[0].Elements
	require.Len(t, elements, 2)
	require.Equal(t, "q1", elements[0].ID)
	require.Equal(t, "q2", elements[1].ID)
	require.Less(t, elements[0].Order, elements[1].Order)
}

func TestParseConfigScreenOrderingIsStable(t *testing.T) {
	cfg := RawActivityConfig{
		ActivityGroups: sampleGroup(),
		Screens: []Screen{
			{ID: "b", Order: 2, Elements: []Element{{ID: "q1"}}},
			{ID: "c", Order: 1, Elements: []Element{{ID: "q2"}}},
			{ID: "a", Order: 1, Elements: []Element{{ID: "q1"}}},
		},
	}

	parsed := ParseConfig(cfg)
	require.Len(t, parsed.Screens, 3)
	require.Equal(t, "c", parsed.Screens[0].ID)
	require.Equal(t, "a", parsed.Screens[1].ID)
	require.Equal(t, "b", parsed.Screens[2].ID)
}

func TestParseConfigFirstDuplicateQuestionWins(t *testing.T) {
	groups := []ActivityGroup{
		{ID: "g1", Questions: []Question{{ID: "q1", Text: "first"}}},
		{ID: "g2", Questions: []Question{{ID: "q1", Text: "second"}, {ID: "q2", Text: "other"}}},
	}

	parsed := ParseConfig(RawActivityConfig{ActivityGroups: groups})
	require.Len(t, parsed.Questions, 2)
	require.Equal(t, "first", parsed.Questions[0].Text)
	require.Equal(t, "q2", parsed.Questions[1].ID)
}

func TestParseConfigFallsBackToMobileLayoutScreens(t *testing.T) {
	cfg := RawActivityConfig{
		ActivityGroups: sampleGroup(),
		Layouts: []Layout{
			{Type: "WEB", Screens: []Screen{{ID: "web", Elements: []Element{{ID: "q1"}}}}},
			{Type: LayoutTypeMobile, Screens: []Screen{{ID: "mobile", Elements: []Element{{ID: "q1"}}}}},
		},
	}

	parsed := ParseConfig(cfg)
	require.Len(t, parsed.Screens, 1)
	require.Equal(t, "mobile", parsed.Screens[0].ID)
}

func TestParseConfigSynthesizesDefaultScreen(t *testing.T) {
	parsed := ParseConfig(RawActivityConfig{ActivityGroups: sampleGroup()})

	require.Len(t, parsed.Screens, 1)
	screen := parsed.Screens[0]
	require.Equal(t, "default-screen", screen.ID)
	require.Equal(t, "Questions", screen.Name)
	require.Len(t, screen.Elements, 2)
	require.Equal(t, "q1", screen.Elements[0].ID)
	require.Equal(t, 0, screen.Elements[0].Order)
	require.Equal(t, 1, screen.Elements[1].Order)
}

func TestParseConfigMalformedGroupsDegradeToEmpty(t *testing.T) {
	for _, raw := range []any{"{not json", "null", 42, true, "\"still-a-string\""} {
		parsed := ParseConfig(RawActivityConfig{ActivityGroups: raw})
		require.Empty(t, parsed.Questions)
		require.Empty(t, parsed.Screens)
	}
}

func TestParseConfigScreenDefaults(t *testing.T) {
	cfg := RawActivityConfig{
		ActivityGroups: sampleGroup(),
		Screens: []Screen{
			{Text: "Intro text", Elements: []Element{{ID: "q1"}}},
			{Elements: []Element{{ID: "q2"}}},
		},
	}

	parsed := ParseConfig(cfg)
	require.Len(t, parsed.Screens, 2)
	require.Equal(t, "screen-0", parsed.Screens[0].ID)
	require.Equal(t, "Intro text", parsed.Screens[0].Name)
	require.Equal(t, "screen-1", parsed.Screens[1].ID)
	require.Equal(t, "Page 2", parsed.Screens[1].Name)
}

func TestParseConfigInlineQuestionWinsOverIndex(t *testing.T) {
	inline := Question{ID: "q1", Text: "inline copy"}
	cfg := RawActivityConfig{
		ActivityGroups: sampleGroup(),
		Screens: []Screen{{
			ID:       "s1",
			Elements: []Element{{ID: "q1", Question: &inline}},
		}},
	}

	parsed := ParseConfig(cfg)
	require.Equal(t, "inline copy", parsed.Screens[0].Elements[0].Question.Text)
}

func TestParseDisplayPropertiesUnwrapsEncodedStrings(t *testing.T) {
	cfg := RawActivityConfig{
		ActivityGroups: sampleGroup(),
		Screens: []Screen{{
			ID: "s1",
			Elements: []Element{{
				ID: "q1",
				DisplayProperties: []DisplayProperty{
					{Key: "label", Value: `"Encoded label"`},
					{Key: "plain", Value: "just text"},
					{Key: "structured", Value: `{"a":1}`},
				},
			}},
		}},
	}

	parsed := ParseConfig(cfg)
	props := parsed.Screens[0].Elements[0].DisplayProperties
	require.Equal(t, "Encoded label", props["label"])
	require.Equal(t, "just text", props["plain"])
	require.Equal(t, `{"a":1}`, props["structured"])
}
