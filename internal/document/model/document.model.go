package model

// Tab is one markup+style page of a project.
type Tab struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Markup string `json:"markup"`
	Style  string `json:"style"`
}

// Meta returns the structural part of the tab, as carried by tab-list snapshots.
func (t Tab) Meta() TabMeta {
	return TabMeta{ID: t.ID, Name: t.Name}
}

type TabMeta struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Content is the serialized document persisted by the backend.
type Content struct {
	Tabs []Tab `json:"tabs"`
}

type Project struct {
	ID      string
	Name    string
	Content []byte // serialized Content, may be empty or malformed
}
