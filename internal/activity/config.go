package activity

import (
	"encoding/json"

	"example.com/taskform/internal/jsonx"
)

// containerKeys mark a decoded layouts blob as a full config container
// rather than a bare layout list.
var containerKeys = []string{
	"activityGroups",
	"layouts",
	"screens",
	"introductionScreen",
	"summaryScreen",
	"completionScreen",
}

// BuildConfig reconstructs a RawActivityConfig from the serialized
// layouts and activityGroups fields of a stored activity record, using
// the default unwrap depth.
//
// The layouts field may deep-parse to a full config container, an array
// of layouts, a single layout object, or a container object holding
// layouts/screens. Unusable shapes degrade to an empty config; record
// activityGroups are only consulted when the container did not already
// provide them.
func BuildConfig(layouts, activityGroups any) RawActivityConfig {
	return BuildConfigDepth(layouts, activityGroups, jsonx.DefaultMaxDepth)
}

// BuildConfigDepth is BuildConfig with an explicit bound on how many
// nested string-encodings the top-level fields may carry. A maxDepth of
// zero or less falls back to the default.
func BuildConfigDepth(layouts, activityGroups any, maxDepth int) RawActivityConfig {
	var cfg RawActivityConfig

	if maxDepth <= 0 {
		maxDepth = jsonx.DefaultMaxDepth
	}

	if layouts != nil && layouts != "" {
		parsed := jsonx.DeepParse(layouts, maxDepth)
		switch v := parsed.(type) {
		case map[string]any:
			if isConfigContainer(v) {
				applyContainer(&cfg, v)
			} else {
				applyLooseObject(&cfg, v)
			}
		case []any:
			cfg.Layouts = decodeLayouts(v)
		default:
			// nil (invalid JSON) or a primitive: unusable.
		}
	}

	if cfg.ActivityGroups == nil && activityGroups != nil {
		parsed := jsonx.DeepParse(activityGroups, maxDepth)
		if groups := normalizeGroups(parsed); len(groups) > 0 {
			cfg.ActivityGroups = groups
		}
	}

	return cfg
}

func isConfigContainer(v map[string]any) bool {
	for _, key := range containerKeys {
		if _, ok := v[key]; ok {
			return true
		}
	}
	return false
}

// applyContainer extracts every config part from a full container. Each
// serialized sub-field may itself be JSON-encoded once more.
func applyContainer(cfg *RawActivityConfig, container map[string]any) {
	if groups := normalizeGroups(jsonx.DeepParse(container["activityGroups"], 2)); len(groups) > 0 {
		cfg.ActivityGroups = groups
	}

	cfg.Layouts = decodeLayoutsValue(jsonx.DeepParse(container["layouts"], 2))

	if screens, ok := jsonx.DeepParse(container["screens"], 2).([]any); ok {
		cfg.Screens = decodeScreens(screens)
	}

	cfg.IntroductionScreen = container["introductionScreen"]
	cfg.SummaryScreen = container["summaryScreen"]
	cfg.CompletionScreen = container["completionScreen"]
}

// applyLooseObject handles a decoded object that is either a container
// carrying layouts/screens or a single layout on its own.
func applyLooseObject(cfg *RawActivityConfig, v map[string]any) {
	if layouts := decodeLayoutsValue(jsonx.DeepParse(v["layouts"], 2)); len(layouts) > 0 {
		cfg.Layouts = layouts
	} else if layout, ok := decodeLayout(v); ok {
		cfg.Layouts = []Layout{layout}
	}

	if screens, ok := jsonx.DeepParse(v["screens"], 2).([]any); ok {
		cfg.Screens = decodeScreens(screens)
	}
}

func decodeLayoutsValue(v any) []Layout {
	switch value := v.(type) {
	case []any:
		return decodeLayouts(value)
	case map[string]any:
		if layout, ok := decodeLayout(value); ok {
			return []Layout{layout}
		}
	}
	return nil
}

func decodeLayouts(items []any) []Layout {
	data, err := json.Marshal(items)
	if err != nil {
		return nil
	}
	var layouts []Layout
	if err := json.Unmarshal(data, &layouts); err != nil {
		return nil
	}
	return layouts
}

func decodeLayout(item map[string]any) (Layout, bool) {
	data, err := json.Marshal(item)
	if err != nil {
		return Layout{}, false
	}
	var layout Layout
	if err := json.Unmarshal(data, &layout); err != nil {
		return Layout{}, false
	}
	return layout, true
}

func decodeScreens(items []any) []Screen {
	data, err := json.Marshal(items)
	if err != nil {
		return nil
	}
	var screens []Screen
	if err := json.Unmarshal(data, &screens); err != nil {
		return nil
	}
	return screens
}
