package activity

import (
	"encoding/json"
	"fmt"
	"sort"

	"example.com/taskform/internal/jsonx"
)

// ParseConfig shapes a raw configuration into the strict form model.
//
// It never fails: malformed or missing pieces degrade to empty screens
// and questions so callers can render whatever is available. Duplicate
// question ids across groups resolve to the first occurrence. Elements
// whose id matches no known question are dropped.
func ParseConfig(cfg RawActivityConfig) ParsedActivityData {
	groups := normalizeGroups(cfg.ActivityGroups)

	questions := make([]Question, 0)
	index := make(map[string]Question)
	for _, group := range groups {
		for _, q := range group.Questions {
			if q.ID == "" {
				continue
			}
			if _, seen := index[q.ID]; seen {
				continue
			}
			index[q.ID] = q
			questions = append(questions, q)
		}
	}

	var screens []ParsedScreen
	if len(cfg.Screens) > 0 {
		screens = matchScreens(cfg.Screens, index)
	} else if layoutScreens := mobileScreens(cfg.Layouts); len(layoutScreens) > 0 {
		screens = matchScreens(layoutScreens, index)
	} else {
		screens = defaultScreen(questions)
	}

	sort.SliceStable(screens, func(i, j int) bool {
		return screens[i].Order < screens[j].Order
	})

	return ParsedActivityData{
		Screens:            screens,
		Questions:          questions,
		IntroductionScreen: cfg.IntroductionScreen,
		SummaryScreen:      cfg.SummaryScreen,
		CompletionScreen:   cfg.CompletionScreen,
	}
}

// mobileScreens returns the screens of the first MOBILE layout, if any.
func mobileScreens(layouts []Layout) []Screen {
	for _, layout := range layouts {
		if layout.Type == LayoutTypeMobile && len(layout.Screens) > 0 {
			return layout.Screens
		}
	}
	return nil
}

func matchScreens(screens []Screen, index map[string]Question) []ParsedScreen {
	parsed := make([]ParsedScreen, 0, len(screens))

	for _, screen := range screens {
		elements := append([]Element(nil), screen.Elements...)
		sort.SliceStable(elements, func(i, j int) bool {
			return elements[i].Order < elements[j].Order
		})

		parsedElements := make([]ParsedElement, 0, len(elements))
		for _, element := range elements {
			question := element.Question
			if question == nil {
				if found, ok := index[element.ID]; ok {
					question = &found
				}
			}
			if question == nil {
				// Dangling reference from a partially-synced config.
				continue
			}
			parsedElements = append(parsedElements, ParsedElement{
				ID:                element.ID,
				Order:             element.Order,
				Question:          *question,
				DisplayProperties: parseDisplayProperties(element.DisplayProperties),
			})
		}

		if len(parsedElements) == 0 {
			continue
		}

		id := screen.ID
		if id == "" {
			id = fmt.Sprintf("screen-%d", len(parsed))
		}
		name := screen.Name
		if name == "" {
			name = screen.Text
		}
		if name == "" {
			pageNumber := screen.Order
			if pageNumber == 0 {
				pageNumber = len(parsed) + 1
			}
			name = fmt.Sprintf("Page %d", pageNumber)
		}
		order := screen.Order
		if order == 0 {
			order = len(parsed)
		}

		parsed = append(parsed, ParsedScreen{
			ID:                id,
			Name:              name,
			Order:             order,
			Elements:          parsedElements,
			DisplayProperties: parseDisplayProperties(screen.DisplayProperties),
		})
	}

	return parsed
}

// defaultScreen synthesizes a single screen holding every question, used
// when the config carries questions but no screens or layouts.
func defaultScreen(questions []Question) []ParsedScreen {
	if len(questions) == 0 {
		return nil
	}

	elements := make([]ParsedElement, 0, len(questions))
	for i, question := range questions {
		elements = append(elements, ParsedElement{
			ID:                question.ID,
			Order:             i,
			Question:          question,
			DisplayProperties: map[string]string{},
		})
	}

	return []ParsedScreen{{
		ID:                "default-screen",
		Name:              "Questions",
		Order:             0,
		Elements:          elements,
		DisplayProperties: map[string]string{},
	}}
}

// parseDisplayProperties unwraps JSON-encoded string values one level;
// anything else keeps the raw value.
func parseDisplayProperties(props []DisplayProperty) map[string]string {
	out := make(map[string]string, len(props))
	for _, prop := range props {
		var decoded any
		if err := json.Unmarshal([]byte(prop.Value), &decoded); err == nil {
			if s, ok := decoded.(string); ok {
				out[prop.Key] = s
				continue
			}
		}
		out[prop.Key] = prop.Value
	}
	return out
}

// normalizeGroups accepts a group object, a slice of groups, a JSON
// string encoding either (possibly multiply encoded), or generic decoded
// JSON shapes. Anything else degrades to nil.
func normalizeGroups(raw any) []ActivityGroup {
	switch v := raw.(type) {
	case nil:
		return nil
	case []ActivityGroup:
		return v
	case ActivityGroup:
		return []ActivityGroup{v}
	case *ActivityGroup:
		if v == nil {
			return nil
		}
		return []ActivityGroup{*v}
	case string:
		parsed := jsonx.DeepParse(v, jsonx.DefaultMaxDepth)
		if parsed == nil {
			return nil
		}
		if _, still := parsed.(string); still {
			return nil
		}
		return normalizeGroups(parsed)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil
		}
		var list []ActivityGroup
		if err := json.Unmarshal(data, &list); err == nil {
			return list
		}
		var single ActivityGroup
		if err := json.Unmarshal(data, &single); err == nil {
			return []ActivityGroup{single}
		}
		return nil
	}
}
