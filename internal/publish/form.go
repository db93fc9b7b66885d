package publish

import (
	"context"
	"fmt"
	"sync"

	"github.com/desertthunder/vgen/internal/models"
	"github.com/desertthunder/vgen/internal/shared"
	"github.com/desertthunder/vgen/internal/tasks"
)

// Mode is which publish path the form will take.
type Mode int

const (
	ModeEmpty Mode = iota
	ModeUpload
	ModeGenerated
)

func (m Mode) String() string {
	switch m {
	case ModeUpload:
		return "upload"
	case ModeGenerated:
		return "generated"
	default:
		return "empty"
	}
}

// FormState is a read-only copy of a [Form].
type FormState struct {
	Mode       Mode
	Metadata   models.VideoMetadata
	VideoPath  string
	CoverPath  string
	Generated  *models.PendingUseResult
	Attributes Attributes
	Probed     bool
}

// Form is the creation surface: metadata plus either manually selected files or a generated result.
//
// Selecting one kind of media clears the other and marks the media as not yet probed.
type Form struct {
	mu        sync.Mutex
	meta      models.VideoMetadata
	videoPath string
	coverPath string
	generated *models.PendingUseResult
	attrs     Attributes
	probed    bool
}

// NewForm creates an empty [Form].
func NewForm() *Form { return &Form{} }

// SetMetadata replaces the title, description and tags.
func (f *Form) SetMetadata(meta models.VideoMetadata) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.meta = meta
}

// SelectFiles picks local files for the manual path and drops any generated media.
func (f *Form) SelectFiles(videoPath, coverPath string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.videoPath, f.coverPath = videoPath, coverPath
	f.generated = nil
	f.resetMediaLocked()
}

// ApplyGenerated uses a finished generation as the form's media and drops any selected files.
func (f *Form) ApplyGenerated(v models.PendingUseResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applyGeneratedLocked(v)
}

func (f *Form) applyGeneratedLocked(v models.PendingUseResult) {
	f.generated = &v
	f.videoPath, f.coverPath = "", ""
	f.resetMediaLocked()
}

func (f *Form) resetMediaLocked() {
	f.attrs = Attributes{}
	f.probed = false
}

// Sync consumes a pending handoff, if any, and applies it as a generated result.
//
// It reports whether a value was applied. The slot is cleared, so a second call is a no-op.
func (f *Form) Sync(h *tasks.Handoff) bool {
	if h == nil {
		return false
	}
	v := h.Consume()
	if v == nil {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applyGeneratedLocked(*v)
	return true
}

// Probe derives duration and aspect ratio for the current media once.
func (f *Form) Probe(ctx context.Context, p Prober) Attributes {
	f.mu.Lock()
	if f.probed {
		attrs := f.attrs
		f.mu.Unlock()
		return attrs
	}
	videoSrc, coverSrc := f.videoPath, f.coverPath
	if f.generated != nil {
		videoSrc, coverSrc = f.generated.VideoURL, f.generated.CoverURL
	}
	f.mu.Unlock()

	if videoSrc == "" {
		return Attributes{}
	}
	attrs := p.Resolve(ctx, videoSrc, coverSrc, Attributes{})

	f.mu.Lock()
	defer f.mu.Unlock()
	current := f.videoPath
	if f.generated != nil {
		current = f.generated.VideoURL
	}
	// Media changed while probing.
	if current != videoSrc {
		return attrs
	}
	f.attrs = attrs
	f.probed = true
	return attrs
}

// State returns a copy of the form.
func (f *Form) State() FormState {
	f.mu.Lock()
	defer f.mu.Unlock()
	state := FormState{
		Mode:       ModeEmpty,
		Metadata:   f.meta,
		VideoPath:  f.videoPath,
		CoverPath:  f.coverPath,
		Attributes: f.attrs,
		Probed:     f.probed,
	}
	switch {
	case f.generated != nil:
		g := *f.generated
		state.Generated = &g
		state.Mode = ModeGenerated
	case f.videoPath != "" || f.coverPath != "":
		state.Mode = ModeUpload
	}
	return state
}

// Reset clears the form.
func (f *Form) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.meta = models.VideoMetadata{}
	f.videoPath, f.coverPath = "", ""
	f.generated = nil
	f.resetMediaLocked()
}

// Submit publishes through the path matching the form's media and clears the form on success.
func (f *Form) Submit(ctx context.Context, r *Reconciler) (*Result, error) {
	state := f.State()
	if !state.Probed {
		state.Attributes = f.Probe(ctx, r.Prober)
	}

	var (
		res *Result
		err error
	)
	switch state.Mode {
	case ModeGenerated:
		res, err = r.PublishGenerated(ctx, GeneratedInput{
			TaskID:      state.Generated.TaskID,
			VideoURL:    state.Generated.VideoURL,
			CoverURL:    state.Generated.CoverURL,
			Metadata:    state.Metadata,
			Duration:    state.Attributes.Duration,
			AspectRatio: state.Attributes.AspectRatio,
		})
	case ModeUpload:
		res, err = r.PublishUpload(ctx, UploadInput{
			VideoPath:   state.VideoPath,
			CoverPath:   state.CoverPath,
			Metadata:    state.Metadata,
			Duration:    state.Attributes.Duration,
			AspectRatio: state.Attributes.AspectRatio,
		})
	default:
		err = fmt.Errorf("%w: select a video or use a generated result", shared.ErrValidation)
		r.fail(err)
	}
	if err != nil {
		return nil, err
	}

	f.Reset()
	return res, nil
}
