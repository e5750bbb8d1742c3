package dataset

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// ExtractOptions bound a streaming extraction run.
type ExtractOptions struct {
	// Bounds is the acceptance box tested against each feature's
	// outer-ring centroid. Zero value means TravisBounds.
	Bounds orb.Bound
	// MaxFeatures stops the scan after this many accepted features.
	// Defaults to 5000.
	MaxFeatures int
	// MaxBytes stops the scan after roughly this many input bytes.
	// Zero means unbounded.
	MaxBytes int64
}

// ExtractStats reports what a streaming extraction run saw.
type ExtractStats struct {
	Scanned   int   `json:"scanned"`
	Accepted  int   `json:"accepted"`
	Malformed int   `json:"malformed"`
	BytesRead int64 `json:"bytesRead"`
}

// ExtractBounded scans an arbitrarily large GeoJSON FeatureCollection
// from r without loading it into memory, keeps each feature whose
// centroid falls inside the bounds, and writes the accepted features to w
// as a new FeatureCollection. This is the offline preparation path that
// produces the bounded building extract consumed by LoadBuildings; it is
// not used during interactive loading.
//
// The scan is a brace-counting substring parser: it accumulates bytes
// between balanced top-level braces inside the features array and decodes
// each completed object independently, so a single malformed feature is
// counted and skipped rather than aborting the run.
func ExtractBounded(r io.Reader, w io.Writer, opts ExtractOptions) (ExtractStats, error) {
	if opts.MaxFeatures <= 0 {
		opts.MaxFeatures = 5000
	}
	if opts.Bounds.Min == (orb.Point{}) && opts.Bounds.Max == (orb.Point{}) {
		opts.Bounds = TravisBounds
	}

	var stats ExtractStats
	br := bufio.NewReaderSize(r, 64*1024)

	// Skip ahead to the features array.
	if err := seekToFeatures(br, &stats, opts.MaxBytes); err != nil {
		return stats, err
	}

	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(`{"type":"FeatureCollection","features":[`); err != nil {
		return stats, err
	}

	var (
		buf        strings.Builder
		depth      int
		inString   bool
		escaped    bool
		inFeature  bool
		wroteFirst bool
	)

scan:
	for {
		if opts.MaxBytes > 0 && stats.BytesRead >= opts.MaxBytes {
			break
		}
		b, err := br.ReadByte()
		if err == io.EOF {
			break
		}
		if err != nil {
			return stats, err
		}
		stats.BytesRead++

		if inFeature {
			buf.WriteByte(b)
		}

		if inString {
			switch {
			case escaped:
				escaped = false
			case b == '\\':
				escaped = true
			case b == '"':
				inString = false
			}
			continue
		}

		switch b {
		case '"':
			inString = true
		case '{':
			if !inFeature {
				inFeature = true
				buf.Reset()
				buf.WriteByte(b)
			}
			depth++
		case '}':
			if !inFeature {
				continue
			}
			depth--
			if depth > 0 {
				continue
			}
			inFeature = false
			stats.Scanned++
			if f := parseFeature(buf.String()); f != nil && centroidInBounds(f.Geometry, opts.Bounds) {
				if wroteFirst {
					if err := bw.WriteByte(','); err != nil {
						return stats, err
					}
				}
				raw, err := json.Marshal(f)
				if err == nil {
					if _, err := bw.Write(raw); err != nil {
						return stats, err
					}
					wroteFirst = true
					stats.Accepted++
				}
				if stats.Accepted >= opts.MaxFeatures {
					break scan
				}
			} else if f == nil {
				stats.Malformed++
			}
		case ']':
			if depth == 0 {
				break scan
			}
		}
	}

	if _, err := bw.WriteString("]}"); err != nil {
		return stats, err
	}
	return stats, bw.Flush()
}

// seekToFeatures consumes input until just past the `"features"` key.
func seekToFeatures(br *bufio.Reader, stats *ExtractStats, maxBytes int64) error {
	const marker = `"features"`
	matched := 0
	for {
		if maxBytes > 0 && stats.BytesRead >= maxBytes {
			return fmt.Errorf("features array not found within byte budget")
		}
		b, err := br.ReadByte()
		if err != nil {
			return fmt.Errorf("features array not found: %w", err)
		}
		stats.BytesRead++
		if b == marker[matched] {
			matched++
			if matched == len(marker) {
				return nil
			}
		} else {
			matched = 0
		}
	}
}

func parseFeature(s string) *geojson.Feature {
	s = strings.TrimSuffix(strings.TrimSpace(s), ",")
	f, err := geojson.UnmarshalFeature([]byte(s))
	if err != nil || f.Geometry == nil {
		return nil
	}
	return f
}

func centroidInBounds(g orb.Geometry, bounds orb.Bound) bool {
	c, ok := footprintCentroid(g)
	if !ok {
		return false
	}
	return bounds.Contains(c)
}
