// Package settings implements reading and updating the active configuration:
// the camera in use, its properties and the save directory.
package settings

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"snapcam/internal/models"
	"snapcam/internal/services/source"
)

// ErrInvalid marks malformed configuration input.
var ErrInvalid = errors.New("invalid configuration")

// Camera is the part of the camera manager settings drive.
type Camera interface {
	Switch(ctx context.Context, target source.Target) error
	Target() source.Target
	Status() models.CameraStatus
	SetProperties(ctx context.Context, values map[source.Property]float64) ([]source.Property, error)
	Properties(ctx context.Context) (map[source.Property]float64, []source.Property, error)
	DesiredProperties() map[source.Property]float64
}

// SaveDirs stores the save directory override.
type SaveDirs interface {
	SetSaveDirOverride(dir string)
	SaveDirOverride() string
	SaveDir() string
}

// Devices lists and resolves local cameras.
type Devices interface {
	Devices(ctx context.Context) ([]source.DeviceInfo, error)
	Resolve(ctx context.Context, name string) (int, error)
}

// Service validates configuration changes and forwards them.
type Service struct {
	cam     Camera
	dirs    SaveDirs
	devices Devices
	logger  zerolog.Logger
}

func NewService(cam Camera, dirs SaveDirs, devices Devices, logger zerolog.Logger) *Service {
	return &Service{cam: cam, dirs: dirs, devices: devices, logger: logger}
}

// Get returns the current configuration. Properties come from the device when
// it is running, otherwise from the values that will be applied on open.
func (s *Service) Get(ctx context.Context) *models.ConfigResponse {
	target := s.cam.Target()
	resp := &models.ConfigResponse{
		AvailableIndices: []int{},
		Devices:          []models.DeviceEntry{},
		CurrentIndex:     target.Index,
		CurrentName:      target.Name,
		SaveDir:          s.dirs.SaveDir(),
		SaveDirOverride:  s.dirs.SaveDirOverride(),
		Properties:       map[string]float64{},
		Status:           s.cam.Status(),
	}

	devs, err := s.devices.Devices(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to list camera devices")
	}
	for _, d := range devs {
		resp.AvailableIndices = append(resp.AvailableIndices, d.Index)
		resp.Devices = append(resp.Devices, models.DeviceEntry{Index: d.Index, Name: d.Name})
	}

	values, unsupported, err := s.cam.Properties(ctx)
	if err != nil {
		values = s.cam.DesiredProperties()
		unsupported = nil
	}
	for p, v := range values {
		resp.Properties[string(p)] = v
	}
	resp.Unsupported = propertyNames(unsupported)
	return resp
}

// Apply validates req as a whole and then applies it: the camera switch
// first, then the save directory, then properties. A failed switch leaves
// everything unchanged. Unsupported properties are reported in the response
// rather than failing the request.
func (s *Service) Apply(ctx context.Context, req models.ConfigRequest) (*models.ConfigResponse, error) {
	change, err := s.validate(ctx, req)
	if err != nil {
		return nil, err
	}

	if change.target != nil {
		cur := s.cam.Target()
		st := s.cam.Status()
		if *change.target != cur || st.State != models.CameraStateRunning || st.Degraded {
			if err := s.cam.Switch(ctx, *change.target); err != nil {
				return nil, err
			}
		}
	}

	if change.saveDir != nil {
		s.dirs.SetSaveDirOverride(*change.saveDir)
		s.logger.Info().Str("save_dir", *change.saveDir).Msg("Save directory override updated")
	}

	var unsupported []source.Property
	if len(change.properties) > 0 {
		unsupported, err = s.cam.SetProperties(ctx, change.properties)
		if err != nil {
			// values are kept and applied once the camera is back
			s.logger.Warn().Err(err).Msg("Camera properties stored but not applied")
			unsupported = nil
		}
	}

	resp := s.Get(ctx)
	if len(unsupported) > 0 {
		resp.Unsupported = propertyNames(unsupported)
	}
	return resp, nil
}

type change struct {
	target     *source.Target
	saveDir    *string
	properties map[source.Property]float64
}

func (s *Service) validate(ctx context.Context, req models.ConfigRequest) (change, error) {
	var c change

	switch {
	case req.Index != nil:
		if *req.Index < 0 {
			return c, fmt.Errorf("%w: index must not be negative", ErrInvalid)
		}
		t := source.Target{Index: *req.Index}
		if req.Name != nil {
			t.Name = strings.TrimSpace(*req.Name)
		}
		c.target = &t
	case req.Name != nil:
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return c, fmt.Errorf("%w: name must not be empty", ErrInvalid)
		}
		idx, err := s.devices.Resolve(ctx, name)
		if err != nil {
			return c, err
		}
		c.target = &source.Target{Index: idx, Name: name}
	}

	if req.SaveDir != nil {
		dir := strings.TrimSpace(*req.SaveDir)
		if dir == "" {
			return c, fmt.Errorf("%w: save_dir must not be empty", ErrInvalid)
		}
		abs, err := filepath.Abs(dir)
		if err != nil {
			return c, fmt.Errorf("%w: save_dir: %v", ErrInvalid, err)
		}
		c.saveDir = &abs
	}

	if len(req.Properties) > 0 {
		c.properties = make(map[source.Property]float64, len(req.Properties))
		for name, v := range req.Properties {
			p, err := source.ParseProperty(name)
			if err != nil {
				return c, fmt.Errorf("%w: %v", ErrInvalid, err)
			}
			c.properties[p] = v
		}
	}

	return c, nil
}

func propertyNames(props []source.Property) []string {
	if len(props) == 0 {
		return nil
	}
	out := make([]string, 0, len(props))
	for _, p := range props {
		out = append(out, string(p))
	}
	sort.Strings(out)
	return out
}
