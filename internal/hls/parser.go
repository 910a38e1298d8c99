// Package hls parses HTTP Live Streaming playlists.
//
// The parser handles the two manifest shapes streamwatch probes: master
// playlists (variant lists) and media playlists (segment lists). It is
// deliberately tolerant — unknown tags are skipped — because origin
// packagers emit a wide range of vendor tags.
package hls

import (
	"bufio"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// ErrNotHLS is returned when the body does not start with the magic line.
var ErrNotHLS = errors.New("hls: body does not start with #EXTM3U")

// Variant is one renditions entry of a master playlist.
type Variant struct {
	Bandwidth  int64
	Resolution string // "1920x1080", empty if absent
	Codecs     string // empty if absent
	URI        string // absolute
}

// Segment is one media segment of a media playlist.
type Segment struct {
	URI           string // absolute
	DurationSec   float64
	Discontinuity bool
}

// Master is a parsed master playlist. Variants keep manifest order.
type Master struct {
	Variants []Variant
}

// HighestBandwidth returns the variant with the largest BANDWIDTH
// attribute, or false if the master has no variants.
func (m *Master) HighestBandwidth() (Variant, bool) {
	if len(m.Variants) == 0 {
		return Variant{}, false
	}
	best := m.Variants[0]
	for _, v := range m.Variants[1:] {
		if v.Bandwidth > best.Bandwidth {
			best = v
		}
	}
	return best, true
}

// MediaPlaylist is a parsed media playlist. Segments keep manifest order.
type MediaPlaylist struct {
	TargetDurationSec float64
	MediaSequence     int64
	EndList           bool
	Segments          []Segment
}

// Playlist is the result of parsing a manifest body: exactly one of
// Master or Media is non-nil.
type Playlist struct {
	Master *Master
	Media  *MediaPlaylist
}

// Parse parses a manifest body, resolving relative URIs against base.
// It returns ErrNotHLS when the magic line is absent, and an
// error when required tags are missing for the detected playlist shape.
func Parse(body []byte, base *url.URL) (*Playlist, error) {
	sc := bufio.NewScanner(strings.NewReader(string(body)))
	sc.Buffer(make([]byte, 64*1024), 1024*1024)

	if !sc.Scan() || strings.TrimSpace(sc.Text()) != "#EXTM3U" {
		return nil, ErrNotHLS
	}

	var (
		master        Master
		media         MediaPlaylist
		sawTargetDur  bool
		pendingInf    *Segment // set by #EXTINF, consumed by next URI line
		pendingStream *Variant // set by #EXT-X-STREAM-INF, consumed by next URI line
		discontinuity bool
	)

	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}

		switch {
		case strings.HasPrefix(line, "#EXT-X-STREAM-INF:"):
			v := parseStreamInf(line[len("#EXT-X-STREAM-INF:"):])
			pendingStream = &v

		case strings.HasPrefix(line, "#EXTINF:"):
			dur, err := parseExtInf(line[len("#EXTINF:"):])
			if err != nil {
				return nil, fmt.Errorf("hls: %w", err)
			}
			pendingInf = &Segment{DurationSec: dur}

		case strings.HasPrefix(line, "#EXT-X-TARGETDURATION:"):
			f, err := strconv.ParseFloat(strings.TrimSpace(line[len("#EXT-X-TARGETDURATION:"):]), 64)
			if err != nil {
				return nil, fmt.Errorf("hls: invalid EXT-X-TARGETDURATION: %w", err)
			}
			media.TargetDurationSec = f
			sawTargetDur = true

		case strings.HasPrefix(line, "#EXT-X-MEDIA-SEQUENCE:"):
			n, err := strconv.ParseInt(strings.TrimSpace(line[len("#EXT-X-MEDIA-SEQUENCE:"):]), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("hls: invalid EXT-X-MEDIA-SEQUENCE: %w", err)
			}
			media.MediaSequence = n

		case line == "#EXT-X-DISCONTINUITY":
			discontinuity = true

		case line == "#EXT-X-ENDLIST":
			media.EndList = true

		case strings.HasPrefix(line, "#"):
			// Unknown or irrelevant tag; tolerated.

		default:
			// URI line: belongs to whichever tag is pending.
			abs, err := resolve(base, line)
			if err != nil {
				return nil, fmt.Errorf("hls: bad URI %q: %w", line, err)
			}
			switch {
			case pendingStream != nil:
				pendingStream.URI = abs
				master.Variants = append(master.Variants, *pendingStream)
				pendingStream = nil
			case pendingInf != nil:
				pendingInf.URI = abs
				pendingInf.Discontinuity = discontinuity
				media.Segments = append(media.Segments, *pendingInf)
				pendingInf = nil
				discontinuity = false
			}
			// A bare URI with no pending tag is ignored.
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("hls: scan: %w", err)
	}

	if len(master.Variants) > 0 {
		return &Playlist{Master: &master}, nil
	}
	if len(media.Segments) > 0 || media.EndList || sawTargetDur {
		if !sawTargetDur {
			return nil, errors.New("hls: media playlist missing EXT-X-TARGETDURATION")
		}
		return &Playlist{Media: &media}, nil
	}
	return nil, errors.New("hls: playlist has neither variants nor segments")
}

// parseExtInf parses the duration from an EXTINF attribute list
// ("6.006," or "6.006,title").
func parseExtInf(attrs string) (float64, error) {
	dur := attrs
	if i := strings.IndexByte(attrs, ','); i >= 0 {
		dur = attrs[:i]
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(dur), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid EXTINF duration %q", dur)
	}
	return f, nil
}

// parseStreamInf parses the attribute list of an EXT-X-STREAM-INF tag.
// Attributes it does not recognize are skipped.
func parseStreamInf(attrs string) Variant {
	var v Variant
	for _, kv := range splitAttributes(attrs) {
		key, val, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		switch strings.ToUpper(strings.TrimSpace(key)) {
		case "BANDWIDTH":
			if n, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64); err == nil {
				v.Bandwidth = n
			}
		case "RESOLUTION":
			v.Resolution = strings.TrimSpace(val)
		case "CODECS":
			v.Codecs = strings.Trim(strings.TrimSpace(val), `"`)
		}
	}
	return v
}

// splitAttributes splits an HLS attribute list on commas, honoring
// quoted values (CODECS="avc1.64001f,mp4a.40.2").
func splitAttributes(attrs string) []string {
	var (
		out      []string
		start    int
		inQuotes bool
	)
	for i := 0; i < len(attrs); i++ {
		switch attrs[i] {
		case '"':
			inQuotes = !inQuotes
		case ',':
			if !inQuotes {
				out = append(out, attrs[start:i])
				start = i + 1
			}
		}
	}
	out = append(out, attrs[start:])
	return out
}

// resolve makes a URI absolute against the manifest's base URL.
func resolve(base *url.URL, raw string) (string, error) {
	ref, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if base == nil {
		return ref.String(), nil
	}
	return base.ResolveReference(ref).String(), nil
}
