package model

// DefaultTabTitle is shown for pages without a title.
const DefaultTabTitle = "New Tab"

// TabInfo is the public view of an open page.
type TabInfo struct {
	ID        string `json:"id"`
	Container string `json:"container"`
	Title     string `json:"title"`
	URL       string `json:"url"`
	// Favicon is the icon URL, "" when unknown.
	Favicon string `json:"favicon"`
	Loading bool   `json:"loading"`
	CanBack bool   `json:"canGoBack"`
	CanFwd  bool   `json:"canGoForward"`
}

// ContainerState is the public view of a container in tab state.
type ContainerState struct {
	Name       string `json:"name"`
	Tor        bool   `json:"tor"`
	Persistent bool   `json:"persistent"`
}

// TabState is broadcast whenever pages or containers change.
type TabState struct {
	ActiveTabID string           `json:"activeTabId"`
	Tabs        []TabInfo        `json:"tabs"`
	Containers  []ContainerState `json:"containers"`
}

// PermissionDecision is the stored decision pair for one host.
type PermissionDecision struct {
	Host  string `json:"host"`
	Media bool   `json:"media"`
	Geo   bool   `json:"geo"`
}
