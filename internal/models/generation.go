package models

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/desertthunder/vgen/internal/shared"
)

// MaxPromptLength is the longest prompt, in runes, the gateway accepts.
const MaxPromptLength = 2000

const (
	MinDuration     = 2
	MaxDuration     = 12
	DefaultDuration = 5
)

// Resolution is the output height requested from the provider.
type Resolution string

const (
	Resolution480p  Resolution = "480p"
	Resolution720p  Resolution = "720p"
	Resolution1080p Resolution = "1080p"
)

// Resolutions lists the accepted [Resolution] values.
var Resolutions = []Resolution{Resolution480p, Resolution720p, Resolution1080p}

func (r Resolution) Valid() bool {
	for _, v := range Resolutions {
		if r == v {
			return true
		}
	}
	return false
}

// AspectRatio is the frame shape requested from the provider, written "W:H".
type AspectRatio string

const (
	Ratio16x9 AspectRatio = "16:9"
	Ratio9x16 AspectRatio = "9:16"
	Ratio1x1  AspectRatio = "1:1"
	Ratio4x3  AspectRatio = "4:3"
	Ratio3x4  AspectRatio = "3:4"
	Ratio21x9 AspectRatio = "21:9"
)

// AspectRatios lists the accepted [AspectRatio] values.
var AspectRatios = []AspectRatio{Ratio16x9, Ratio9x16, Ratio1x1, Ratio4x3, Ratio3x4, Ratio21x9}

func (a AspectRatio) Valid() bool {
	for _, v := range AspectRatios {
		if a == v {
			return true
		}
	}
	return false
}

// Float returns width divided by height, or 0 for a malformed ratio.
func (a AspectRatio) Float() float64 {
	var w, h float64
	if _, err := fmt.Sscanf(string(a), "%g:%g", &w, &h); err != nil || h == 0 {
		return 0
	}
	return w / h
}

// FPS is the output frame rate.
type FPS int

const (
	FPS16 FPS = 16
	FPS24 FPS = 24
)

func (f FPS) Valid() bool { return f == FPS16 || f == FPS24 }

// GenerationRequest is submitted to the gateway to create one job.
//
// The session keeps its own copy once submitted.
type GenerationRequest struct {
	Prompt      string      `json:"prompt"`
	Resolution  Resolution  `json:"resolution"`
	AspectRatio AspectRatio `json:"ratio"`
	Duration    int         `json:"duration"`
	FPS         FPS         `json:"fps"`
}

// WithDefaults returns a copy with zero-valued fields filled and the prompt trimmed.
func (r GenerationRequest) WithDefaults() GenerationRequest {
	r.Prompt = strings.TrimSpace(r.Prompt)
	if r.Resolution == "" {
		r.Resolution = Resolution720p
	}
	if r.AspectRatio == "" {
		r.AspectRatio = Ratio16x9
	}
	if r.Duration == 0 {
		r.Duration = DefaultDuration
	}
	if r.FPS == 0 {
		r.FPS = FPS16
	}
	return r
}

// Validate checks the request against the provider constraints.
func (r GenerationRequest) Validate() error {
	prompt := strings.TrimSpace(r.Prompt)
	if prompt == "" {
		return fmt.Errorf("%w: prompt is required", shared.ErrValidation)
	}
	if n := utf8.RuneCountInString(prompt); n > MaxPromptLength {
		return fmt.Errorf("%w: prompt is %d characters, at most %d allowed", shared.ErrValidation, n, MaxPromptLength)
	}
	if !r.Resolution.Valid() {
		return fmt.Errorf("%w: unsupported resolution %q", shared.ErrValidation, r.Resolution)
	}
	if !r.AspectRatio.Valid() {
		return fmt.Errorf("%w: unsupported aspect ratio %q", shared.ErrValidation, r.AspectRatio)
	}
	if r.Duration < MinDuration || r.Duration > MaxDuration {
		return fmt.Errorf("%w: duration must be between %d and %d seconds", shared.ErrValidation, MinDuration, MaxDuration)
	}
	if !r.FPS.Valid() {
		return fmt.Errorf("%w: unsupported frame rate %d", shared.ErrValidation, r.FPS)
	}
	return nil
}
