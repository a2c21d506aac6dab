package rpc

// BackendDescriptor is the wire shape spec §6's get_backends() response
// names for one back-end entry.
type BackendDescriptor struct {
	Type           string `json:"type"`
	Name           string `json:"name"`
	Status         string `json:"status"`
	MinDurationSec int    `json:"min_duration_sec"`
	MaxDurationSec int    `json:"max_duration_sec"`
	SampleRate     int    `json:"sample_rate"`
	ModelVersion   string `json:"model_version"`
}

// BackendRegistry reports install/load status for each back-end and drives
// asset downloads. Implemented by internal/daemon, which owns startup
// detection and the download worker; kept as an interface here so this
// package has no direct dependency on internal/model's HTTP client.
type BackendRegistry interface {
	// List returns every known back-end's current descriptor.
	List() []BackendDescriptor
	// StartDownload transitions backend to downloading unless it is already
	// installed or a download is already in flight, reporting either case
	// without treating it as an error.
	StartDownload(backend string) (started, alreadyInstalled bool, err error)
}
