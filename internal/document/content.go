package document

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"mocksync/internal/document/model"
	"mocksync/pkg/logger"
)

// Marshal serializes tabs into the persisted content document.
func Marshal(tabs []model.Tab) ([]byte, error) {
	if tabs == nil {
		tabs = []model.Tab{}
	}
	return json.Marshal(model.Content{Tabs: tabs})
}

// Parse decodes a persisted content document. The document may also arrive
// wrapped in a JSON string, as the backend embeds it. Repeated tab ids are
// dropped.
func Parse(raw []byte) ([]model.Tab, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, errors.New("empty content")
	}
	if raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return nil, fmt.Errorf("decode embedded content: %w", err)
		}
		return Parse([]byte(inner))
	}
	var content model.Content
	if err := json.Unmarshal(raw, &content); err != nil {
		return nil, fmt.Errorf("decode content: %w", err)
	}
	if len(content.Tabs) == 0 {
		return nil, errors.New("content has no tabs")
	}
	tabs := make([]model.Tab, 0, len(content.Tabs))
	seen := make(map[string]struct{}, len(content.Tabs))
	for i, tab := range content.Tabs {
		if tab.ID == "" {
			return nil, fmt.Errorf("tab %d has no id", i)
		}
		// First copy of a repeated id wins, as in Reconcile.
		if _, dup := seen[tab.ID]; dup {
			continue
		}
		seen[tab.ID] = struct{}{}
		tabs = append(tabs, tab)
	}
	return tabs, nil
}

// LoadContent parses raw and falls back to the default document when it is
// missing or malformed.
func LoadContent(projectID string, raw []byte) []model.Tab {
	tabs, err := Parse(raw)
	if err != nil {
		logger.Sugar.Warnf("Invalid content for project %s, starting from an empty tab: %v", projectID, err)
		return DefaultTabs()
	}
	return tabs
}
