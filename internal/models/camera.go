package models

import (
	"time"
)

// CameraState is the lifecycle state of the camera manager
type CameraState string

const (
	CameraStateStopped   CameraState = "stopped"
	CameraStateStarting  CameraState = "starting"
	CameraStateRunning   CameraState = "running"
	CameraStateSwitching CameraState = "switching"
	CameraStateStopping  CameraState = "stopping"
)

// String returns the string representation of CameraState
func (cs CameraState) String() string {
	return string(cs)
}

// Frame is one published, JPEG encoded frame. Frames are never mutated after
// publication.
type Frame struct {
	Seq        uint64
	Data       []byte
	Device     int
	Width      int
	Height     int
	CapturedAt time.Time
}

// CameraStatus is the externally visible state of the camera manager
type CameraStatus struct {
	State         CameraState `json:"state"`
	Degraded      bool        `json:"degraded"`
	Index         int         `json:"index"`
	Name          string      `json:"name,omitempty"`
	Backend       string      `json:"backend,omitempty"`
	LastSeq       uint64      `json:"last_seq"`
	LastFrameTime time.Time   `json:"last_frame_time"`
	FrameCount    int64       `json:"frame_count"`
	ErrorCount    int64       `json:"error_count"`
	Subscribers   int         `json:"subscribers"`
	LastError     string      `json:"last_error,omitempty"`
}

// ConfigRequest for POST /config
type ConfigRequest struct {
	Index      *int               `json:"index,omitempty"`
	Name       *string            `json:"name,omitempty"`
	SaveDir    *string            `json:"save_dir,omitempty"`
	Properties map[string]float64 `json:"properties,omitempty"`
}

// DeviceEntry is a probed device for GET /config
type DeviceEntry struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
}

// ConfigResponse for GET /config
type ConfigResponse struct {
	AvailableIndices []int              `json:"available_indices"`
	Devices          []DeviceEntry      `json:"devices"`
	CurrentIndex     int                `json:"current_index"`
	CurrentName      string             `json:"current_name,omitempty"`
	SaveDir          string             `json:"save_dir"`
	SaveDirOverride  string             `json:"save_dir_override,omitempty"`
	Properties       map[string]float64 `json:"properties"`
	Unsupported      []string           `json:"unsupported,omitempty"`
	Status           CameraStatus       `json:"status"`
}

// CaptureRequest for POST /capture. UserBaseName is accepted for older UI
// builds.
type CaptureRequest struct {
	Name         string `json:"name"`
	UserBaseName string `json:"user_base_name"`
}

// BaseName returns whichever name field was supplied
func (r CaptureRequest) BaseName() string {
	if r.Name != "" {
		return r.Name
	}
	return r.UserBaseName
}

// SavedImage is the result of one capture
type SavedImage struct {
	Path      string    `json:"saved_path"`
	Filename  string    `json:"filename"`
	Seq       uint64    `json:"seq"`
	Bytes     int       `json:"bytes"`
	Device    int       `json:"device"`
	Timestamp time.Time `json:"timestamp"`
}

// CaptureResponse for POST /capture
type CaptureResponse struct {
	OK bool `json:"ok"`
	SavedImage
}

// ErrorResponse is returned by every endpoint on failure
type ErrorResponse struct {
	OK      bool   `json:"ok"`
	Kind    string `json:"kind"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// CaptureEvent is published on the message bus after a successful capture
type CaptureEvent struct {
	ID        string    `json:"id"`
	Path      string    `json:"saved_path"`
	Filename  string    `json:"filename"`
	Seq       uint64    `json:"seq"`
	Device    int       `json:"device"`
	Bytes     int       `json:"bytes"`
	Timestamp time.Time `json:"timestamp"`
}

// CameraEvent is published on the message bus on camera state changes
type CameraEvent struct {
	ID        string      `json:"id"`
	State     CameraState `json:"state"`
	Degraded  bool        `json:"degraded"`
	Index     int         `json:"index"`
	Reason    string      `json:"reason,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}
