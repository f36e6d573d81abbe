package model

import "time"

// Event types published on the event bus. The names are the channel names
// UI clients subscribe to.
const (
	EventTorBoot          = "tor:boot"
	EventTorError         = "tor:error"
	EventTabState         = "tab:state"
	EventLoading          = "loading"
	EventDownloadProgress = "download:progress"
	EventDownloadDone     = "download:done"
	EventContainerStatus  = "container:status"
)

// SystemContainer is the container name used for Tor events that are not
// tied to a container.
const SystemContainer = "system"

// Event is one message on the event stream.
type Event struct {
	Type string    `json:"type"`
	Time time.Time `json:"time"`
	Data any       `json:"data"`
}

// TorBoot reports bootstrap progress on behalf of a container.
type TorBoot struct {
	Container string `json:"container"`
	Percent   int    `json:"pct"`
	Message   string `json:"msg"`
}

// TorError reports that Tor could not be used for a container.
type TorError struct {
	Container string `json:"container"`
	Error     string `json:"error"`
}

// Loading reports the load state of a page.
type Loading struct {
	ID      string `json:"id"`
	Loading bool   `json:"loading"`
}

// DownloadProgress reports bytes received so far. Total is -1 when unknown.
type DownloadProgress struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Received int64  `json:"received"`
	Total    int64  `json:"total"`
}

// Download states.
const (
	DownloadCompleted   = "completed"
	DownloadInterrupted = "interrupted"
	DownloadCancelled   = "cancelled"
)

// DownloadDone reports the end of a download.
type DownloadDone struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	State string `json:"state"`
	Path  string `json:"path"`
	// Warnings lists identifying metadata found in the saved file.
	Warnings []string `json:"warnings,omitempty"`
}
