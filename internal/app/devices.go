package app

import (
	"strings"

	"github.com/tphakala/playrec/internal/engine/miniaudio"
)

// Devices lists the audio devices of the configured backend. The null backend reports
// one pseudo device per direction.
func (r *Runner) Devices() ([]miniaudio.DeviceInfo, error) {
	backend := r.settings.Engine.Backend
	if strings.EqualFold(backend, "null") {
		return []miniaudio.DeviceInfo{
			{Kind: "playback", Name: "null", ID: "null", IsDefault: true},
			{Kind: "capture", Name: "null", ID: "null", IsDefault: true},
		}, nil
	}
	return miniaudio.EnumerateDevices(backend)
}
