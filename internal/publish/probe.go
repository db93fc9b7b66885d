package publish

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	_ "golang.org/x/image/webp"

	"github.com/desertthunder/vgen/internal/models"
	"github.com/desertthunder/vgen/internal/shared"
)

// MaxRemoteProbeBytes bounds how much of a remote media file is read while probing.
const MaxRemoteProbeBytes = 64 << 20

// Attributes are the media properties the catalog record needs.
type Attributes struct {
	Duration    *float64 // seconds; nil when unknown
	AspectRatio float64  // width / height; zero when unknown
}

// VideoInfo is what [MediaProber.ProbeVideo] reads from an MP4/MOV container.
type VideoInfo struct {
	Duration *float64
	Width    int
	Height   int
}

// MediaProber reads duration and dimensions from local files or remote URLs.
type MediaProber struct {
	client   *http.Client
	logger   *log.Logger
	maxBytes int64
}

// NewMediaProber creates a [MediaProber]. A nil client uses [http.DefaultClient].
func NewMediaProber(client *http.Client, logger *log.Logger) *MediaProber {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &MediaProber{client: client, logger: logger, maxBytes: MaxRemoteProbeBytes}
}

// Resolve fills what known leaves unset.
//
// Duration comes from the video. Aspect ratio comes from the cover, then the video track, then
// [models.FallbackAspectRatio]. Probe failures are logged and never returned.
func (p *MediaProber) Resolve(ctx context.Context, videoSrc, coverSrc string, known Attributes) Attributes {
	out := known
	if out.Duration != nil && out.AspectRatio > 0 {
		return out
	}

	if out.AspectRatio <= 0 && coverSrc != "" {
		w, h, err := p.ProbeImage(ctx, coverSrc)
		if err != nil {
			p.logger.Warn("cover probe failed", "source", coverSrc, "error", err)
		} else {
			out.AspectRatio = float64(w) / float64(h)
		}
	}

	if videoSrc != "" && (out.Duration == nil || out.AspectRatio <= 0) {
		info, err := p.ProbeVideo(ctx, videoSrc)
		if err != nil {
			p.logger.Warn("video probe failed", "source", videoSrc, "error", err)
		} else {
			if out.Duration == nil {
				out.Duration = info.Duration
			}
			if out.AspectRatio <= 0 && info.Width > 0 && info.Height > 0 {
				out.AspectRatio = float64(info.Width) / float64(info.Height)
			}
		}
	}

	if out.AspectRatio <= 0 {
		out.AspectRatio = models.FallbackAspectRatio
	}
	return out
}

// ProbeImage returns the pixel dimensions of a JPEG, PNG, GIF or WebP image.
func (p *MediaProber) ProbeImage(ctx context.Context, src string) (int, int, error) {
	r, closer, size, err := p.open(ctx, src)
	if err != nil {
		return 0, 0, err
	}
	defer closer.Close()

	cfg, _, err := image.DecodeConfig(io.NewSectionReader(r, 0, size))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: decode image: %v", shared.ErrProbe, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return 0, 0, fmt.Errorf("%w: image has no dimensions", shared.ErrProbe)
	}
	return cfg.Width, cfg.Height, nil
}

// ProbeVideo reads the movie duration and the first visual track's dimensions.
func (p *MediaProber) ProbeVideo(ctx context.Context, src string) (VideoInfo, error) {
	r, closer, size, err := p.open(ctx, src)
	if err != nil {
		return VideoInfo{}, err
	}
	defer closer.Close()
	return parseMP4(r, size)
}

// open returns random access to src, which is a local path, a file:// URL or an http(s) URL.
func (p *MediaProber) open(ctx context.Context, src string) (io.ReaderAt, io.Closer, int64, error) {
	u, err := url.Parse(src)
	if err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		data, err := p.fetch(ctx, src)
		if err != nil {
			return nil, nil, 0, err
		}
		return bytes.NewReader(data), io.NopCloser(nil), int64(len(data)), nil
	}

	path := src
	if err == nil && u.Scheme == "file" {
		path = u.Path
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("%w: %v", shared.ErrProbe, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, 0, fmt.Errorf("%w: %v", shared.ErrProbe, err)
	}
	return f, f, info.Size(), nil
}

func (p *MediaProber) fetch(ctx context.Context, src string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrProbe, err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: download: %v", shared.ErrProbe, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: download returned status %d", shared.ErrProbe, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, p.maxBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: download: %v", shared.ErrProbe, err)
	}
	return data, nil
}

// parseMP4 walks the ISO base media box tree for moov/mvhd and moov/trak/tkhd.
func parseMP4(r io.ReaderAt, size int64) (VideoInfo, error) {
	var (
		info     VideoInfo
		foundHdr bool
	)

	err := walkBoxes(r, 0, size, func(typ string, off, n int64) error {
		if typ != "moov" {
			return nil
		}
		return walkBoxes(r, off, off+n, func(typ string, off, n int64) error {
			switch typ {
			case "mvhd":
				d, err := readMovieDuration(r, off, n)
				if err != nil {
					return err
				}
				info.Duration = d
				foundHdr = true
			case "trak":
				if info.Width > 0 {
					return nil
				}
				return walkBoxes(r, off, off+n, func(typ string, off, n int64) error {
					if typ != "tkhd" {
						return nil
					}
					w, h, err := readTrackSize(r, off, n)
					if err != nil {
						return err
					}
					if w > 0 && h > 0 {
						info.Width, info.Height = w, h
					}
					return nil
				})
			}
			return nil
		})
	})
	if err != nil {
		return VideoInfo{}, err
	}
	if !foundHdr {
		return VideoInfo{}, fmt.Errorf("%w: no movie header", shared.ErrProbe)
	}
	return info, nil
}

// walkBoxes calls fn with the type, payload offset and payload size of every box in [start, end).
func walkBoxes(r io.ReaderAt, start, end int64, fn func(typ string, off, n int64) error) error {
	var hdr [16]byte
	for off := start; off+8 <= end; {
		if _, err := r.ReadAt(hdr[:8], off); err != nil {
			return fmt.Errorf("%w: read box header: %v", shared.ErrProbe, err)
		}
		boxSize := int64(binary.BigEndian.Uint32(hdr[:4]))
		typ := string(hdr[4:8])
		headerLen := int64(8)

		switch boxSize {
		case 0:
			boxSize = end - off
		case 1:
			if _, err := r.ReadAt(hdr[8:16], off+8); err != nil {
				return fmt.Errorf("%w: read box size: %v", shared.ErrProbe, err)
			}
			boxSize = int64(binary.BigEndian.Uint64(hdr[8:16]))
			headerLen = 16
		}
		if boxSize < headerLen || off+boxSize > end {
			return fmt.Errorf("%w: malformed %q box", shared.ErrProbe, typ)
		}

		if err := fn(typ, off+headerLen, boxSize-headerLen); err != nil {
			return err
		}
		off += boxSize
	}
	return nil
}

func readMovieDuration(r io.ReaderAt, off, n int64) (*float64, error) {
	buf := make([]byte, min(n, 32))
	if _, err := r.ReadAt(buf, off); err != nil || len(buf) < 20 {
		return nil, fmt.Errorf("%w: short mvhd box", shared.ErrProbe)
	}

	var timescale, units uint64
	if buf[0] == 1 {
		if len(buf) < 32 {
			return nil, fmt.Errorf("%w: short mvhd box", shared.ErrProbe)
		}
		timescale = uint64(binary.BigEndian.Uint32(buf[20:24]))
		units = binary.BigEndian.Uint64(buf[24:32])
		if units == ^uint64(0) {
			return nil, nil
		}
	} else {
		timescale = uint64(binary.BigEndian.Uint32(buf[12:16]))
		units = uint64(binary.BigEndian.Uint32(buf[16:20]))
		if units == uint64(^uint32(0)) {
			return nil, nil
		}
	}

	if timescale == 0 {
		return nil, fmt.Errorf("%w: zero timescale", shared.ErrProbe)
	}
	if units == 0 {
		return nil, nil
	}
	d := float64(units) / float64(timescale)
	return &d, nil
}

// readTrackSize reads the 16.16 fixed-point width and height at the end of a tkhd box.
func readTrackSize(r io.ReaderAt, off, n int64) (int, int, error) {
	var version [1]byte
	if _, err := r.ReadAt(version[:], off); err != nil {
		return 0, 0, fmt.Errorf("%w: short tkhd box", shared.ErrProbe)
	}
	at := int64(76)
	if version[0] == 1 {
		at = 88
	}
	if n < at+8 {
		return 0, 0, fmt.Errorf("%w: short tkhd box", shared.ErrProbe)
	}

	var dims [8]byte
	if _, err := r.ReadAt(dims[:], off+at); err != nil {
		return 0, 0, fmt.Errorf("%w: short tkhd box", shared.ErrProbe)
	}
	w := binary.BigEndian.Uint32(dims[0:4]) >> 16
	h := binary.BigEndian.Uint32(dims[4:8]) >> 16
	return int(w), int(h), nil
}

// contentType guesses an upload content type from a file name.
func contentType(name string) string {
	switch strings.ToLower(fileExt(name)) {
	case "mp4", "m4v":
		return "video/mp4"
	case "mov":
		return "video/quicktime"
	case "webm":
		return "video/webm"
	case "jpg", "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	case "webp":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}

func fileExt(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 && !strings.ContainsAny(name[i:], `/\`) {
		return name[i+1:]
	}
	return ""
}
