package track

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/komasaru/iss-sgp4-json/internal/timescale"
	"github.com/komasaru/iss-sgp4-json/internal/transform"
)

// Point is one sample of the track. Height is in km and Velocity in km/s.
type Point struct {
	Local     string  `json:"local"`
	UTC       string  `json:"utc"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Height    float64 `json:"height"`
	Velocity  float64 `json:"velocity"`
}

// Document is the track file layout.
type Document struct {
	Counts int     `json:"counts"`
	Data   []Point `json:"data"`
}

func newPoint(sc timescale.Scales, res transform.Result) Point {
	return Point{
		Local:     sc.Local.String(),
		UTC:       sc.UTC.String(),
		Latitude:  res.Position.Lat,
		Longitude: res.Position.Lon,
		Height:    res.Position.Height,
		Velocity:  res.Speed,
	}
}

// WriteJSON encodes doc to w with two-space indentation.
func WriteJSON(w io.Writer, doc *Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encoding track: %w", err)
	}
	return nil
}

// WriteFile writes doc to path. The file is written under a temporary name
// in the same directory and renamed into place, so readers never see a
// partial document.
func WriteFile(path string, doc *Document) error {
	dir := filepath.Dir(path)
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("creating track file: %w", err)
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	bw := bufio.NewWriter(f)
	if err := WriteJSON(bw, doc); err != nil {
		f.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("writing track file: %w", err)
	}
	if err := f.Chmod(0o644); err != nil {
		f.Close()
		return fmt.Errorf("writing track file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing track file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("renaming track file: %w", err)
	}
	return nil
}

// ReadFile decodes a track document written by WriteFile.
func ReadFile(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening track file: %w", err)
	}
	defer f.Close()

	var doc Document
	if err := json.NewDecoder(bufio.NewReader(f)).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding track file: %w", err)
	}
	return &doc, nil
}
