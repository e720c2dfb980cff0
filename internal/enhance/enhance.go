package enhance

import (
	"fmt"
	"strconv"
	"strings"

	"clipforge/internal/services"
)

// BandCount is the number of equalizer bands.
const BandCount = 10

// bandFrequencies are the ISO octave centers the equalizer bands act on, in Hz.
var bandFrequencies = [BandCount]int{31, 62, 125, 250, 500, 1000, 2000, 4000, 8000, 16000}

const (
	// MaxVolume caps the volume multiplier.
	MaxVolume = 2.0
	// MaxGainDB bounds each equalizer band, symmetric around zero.
	MaxGainDB = 12.0
	// MinSpeed and MaxSpeed bound the tempo multiplier. ffmpeg's atempo
	// filter accepts [0.5, 2.0] per instance; out-of-range speeds are
	// reached by chaining instances.
	MinSpeed = 0.25
	MaxSpeed = 4.0
)

// Settings describes the audio enhancements applied to every job built from
// one request. Immutable once attached to a plan.
type Settings struct {
	Volume         float64
	EQGains        [BandCount]float64
	NoiseReduction bool
	Speed          float64
	Normalize      bool
}

// Neutral returns settings that leave the audio untouched.
func Neutral() Settings {
	return Settings{Volume: 1.0, Speed: 1.0}
}

// IsNeutral reports whether the settings require no decoding: unit volume,
// flat equalizer, no noise reduction, unit speed, no loudness normalization.
func (s Settings) IsNeutral() bool {
	if s.Volume != 1.0 || s.Speed != 1.0 || s.NoiseReduction || s.Normalize {
		return false
	}
	for _, gain := range s.EQGains {
		if gain != 0 {
			return false
		}
	}
	return true
}

// Validate checks every field against its documented bounds.
func (s Settings) Validate() error {
	if s.Volume < 0 || s.Volume > MaxVolume {
		return services.Wrap(services.ErrValidation, "enhance", "volume", fmt.Sprintf("%.2f outside [0, %.1f]", s.Volume, MaxVolume), nil)
	}
	for i, gain := range s.EQGains {
		if gain < -MaxGainDB || gain > MaxGainDB {
			return services.Wrap(services.ErrValidation, "enhance", "equalizer", fmt.Sprintf("band %d (%d Hz) gain %.1f dB outside [%.0f, %.0f]", i, bandFrequencies[i], gain, -MaxGainDB, MaxGainDB), nil)
		}
	}
	if s.Speed < MinSpeed || s.Speed > MaxSpeed {
		return services.Wrap(services.ErrValidation, "enhance", "speed", fmt.Sprintf("%.2f outside [%.2f, %.1f]", s.Speed, MinSpeed, MaxSpeed), nil)
	}
	return nil
}

// FilterChain builds the ffmpeg -af value for these settings. The returned
// warnings describe requested enhancements that had to be skipped (noise
// reduction without a model). An empty chain means no filtering is needed.
func (s Settings) FilterChain(noiseModelPath string) (string, []string) {
	var filters []string
	var warnings []string

	if s.Volume != 1.0 {
		filters = append(filters, "volume="+formatFloat(s.Volume))
	}
	for i, gain := range s.EQGains {
		if gain == 0 {
			continue
		}
		filters = append(filters, fmt.Sprintf("equalizer=f=%d:t=q:w=1:g=%s", bandFrequencies[i], formatFloat(gain)))
	}
	if s.NoiseReduction {
		if strings.TrimSpace(noiseModelPath) != "" {
			filters = append(filters, fmt.Sprintf("arnndn=m='%s'", noiseModelPath))
		} else {
			warnings = append(warnings, "noise reduction requested but no arnndn model is configured; skipped")
		}
	}
	if s.Speed != 1.0 {
		filters = append(filters, atempoChain(s.Speed)...)
	}
	if s.Normalize {
		filters = append(filters, "loudnorm=I=-16:LRA=11:TP=-1.5")
	}

	return strings.Join(filters, ","), warnings
}

// atempoChain decomposes a tempo multiplier into atempo instances within the
// filter's [0.5, 2.0] range.
func atempoChain(speed float64) []string {
	var parts []string
	for speed > 2.0 {
		parts = append(parts, "atempo=2.0")
		speed /= 2.0
	}
	for speed < 0.5 {
		parts = append(parts, "atempo=0.5")
		speed /= 0.5
	}
	parts = append(parts, "atempo="+formatFloat(speed))
	return parts
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
