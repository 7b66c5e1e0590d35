package scene

import (
	"fmt"

	"github.com/capturectl/capturectl/internal/devices"
	"github.com/capturectl/capturectl/internal/engine"
	"github.com/capturectl/capturectl/internal/logger"
)

// DefaultMaxTracks is the engine's audio track count.
const DefaultMaxTracks = 6

// firstDeviceTrack is the first track given to a device; track 1 is the master mix.
const firstDeviceTrack = 2

// Track is one audio device routed to its own track and output channel.
type Track struct {
	Number   int          `json:"number"`
	DeviceID string       `json:"deviceId"`
	Name     string       `json:"name"`
	Kind     devices.Kind `json:"kind"`
	Mixers   uint32       `json:"mixers"`
	Input    engine.Input `json:"-"`
}

// MixerMask returns the mixer bits for a source on track n: the master mix
// plus its own track.
func MixerMask(track int) uint32 {
	return 1 | 1<<uint(track-1)
}

// RecTracksMask enables tracks 1..n.
func RecTracksMask(n int) int {
	return 1<<uint(n) - 1
}

// RouteAudio creates an input per output device then per input device,
// skipping the default pseudo-device, and assigns consecutive tracks starting
// at 2. The recorded track mask covers every assigned track.
func (b *Builder) RouteAudio() ([]Track, error) {
	var tracks []Track
	next := firstDeviceTrack

	for _, kind := range []devices.Kind{devices.OutputAudio, devices.InputAudio} {
		list, err := b.devices.ListAudioDevices(kind)
		if err != nil {
			return nil, err
		}

		engineKind := b.profile.OutputAudio
		prefix := "desktop-audio"
		if kind == devices.InputAudio {
			engineKind = b.profile.InputAudio
			prefix = "mic-audio"
		}

		for _, dev := range list {
			if dev.ID == devices.DefaultDeviceID {
				continue
			}
			if next > b.opts.MaxTracks {
				b.log.Warn("no audio track left for device",
					logger.String("device_id", dev.ID),
					logger.String("name", dev.Name),
					logger.Int("max_tracks", b.opts.MaxTracks))
				continue
			}

			track, err := b.routeDevice(engineKind, fmt.Sprintf("%s-%d", prefix, next), dev, next)
			if err != nil {
				return nil, err
			}
			tracks = append(tracks, track)
			next++
		}
	}

	if _, err := b.settings.Set("Output", "RecTracks", RecTracksMask(next-1)); err != nil {
		return nil, err
	}
	return tracks, nil
}

func (b *Builder) routeDevice(engineKind, name string, dev devices.Device, n int) (Track, error) {
	input, err := b.engine.CreateInput(engineKind, name, b.profile.AudioSettings(dev.ID))
	if err != nil {
		return Track{}, sceneError(err, "create_audio_input")
	}
	if _, err := b.settings.Set("Output", fmt.Sprintf("Track%dName", n), dev.Name); err != nil {
		return Track{}, err
	}
	mask := MixerMask(n)
	if err := input.SetAudioMixers(mask); err != nil {
		return Track{}, sceneError(err, "set_audio_mixers")
	}
	if err := b.engine.SetOutputSource(n, input); err != nil {
		return Track{}, sceneError(err, "set_audio_output_source")
	}

	b.log.Debug("audio device routed",
		logger.String("device_id", dev.ID),
		logger.String("name", dev.Name),
		logger.Int("track", n),
		logger.Uint32("mixers", mask))

	return Track{
		Number:   n,
		DeviceID: dev.ID,
		Name:     dev.Name,
		Kind:     dev.Kind,
		Mixers:   mask,
		Input:    input,
	}, nil
}
