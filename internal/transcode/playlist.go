package transcode

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"videopipe/internal/services"
)

// SegmentSet describes a complete encoder output directory.
type SegmentSet struct {
	Dir      string
	Manifest string
	// Segments lists segment file names in playlist order.
	Segments []string
	// TotalBytes covers the manifest and every segment.
	TotalBytes int64
}

// Files returns segment names followed by the manifest name.
func (s SegmentSet) Files() []string {
	files := make([]string, 0, len(s.Segments)+1)
	files = append(files, s.Segments...)
	return append(files, filepath.Base(s.Manifest))
}

// ParsePlaylist returns the media URIs referenced by an HLS playlist, in order.
func ParsePlaylist(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var refs []string
	scanner := bufio.NewScanner(file)
	header := false
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !header {
			if line != "#EXTM3U" {
				return nil, fmt.Errorf("playlist %s: missing #EXTM3U header", filepath.Base(path))
			}
			header = true
			continue
		}
		if strings.HasPrefix(line, "#") {
			continue
		}
		refs = append(refs, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if !header {
		return nil, fmt.Errorf("playlist %s: empty", filepath.Base(path))
	}
	return refs, nil
}

// LoadSegmentSet parses the manifest in dir and verifies every referenced
// segment exists locally.
func LoadSegmentSet(dir string) (SegmentSet, error) {
	manifest := filepath.Join(dir, ManifestName)
	info, err := os.Stat(manifest)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return SegmentSet{}, services.Wrap(services.ErrExternalTool, "transcode", "load segments", "encoder produced no playlist", nil)
		}
		return SegmentSet{}, services.Wrap(services.ErrTransient, "transcode", "load segments", "stat playlist", err)
	}
	refs, err := ParsePlaylist(manifest)
	if err != nil {
		return SegmentSet{}, services.Wrap(services.ErrExternalTool, "transcode", "load segments", "parse playlist", err)
	}
	if len(refs) == 0 {
		return SegmentSet{}, services.Wrap(services.ErrExternalTool, "transcode", "load segments", "playlist references no segments", nil)
	}

	set := SegmentSet{Dir: dir, Manifest: manifest, TotalBytes: info.Size()}
	for _, ref := range refs {
		if ref != filepath.Base(ref) || ref == ".." {
			return SegmentSet{}, services.Wrap(services.ErrFatal, "transcode", "load segments", fmt.Sprintf("segment reference %q escapes output directory", ref), nil)
		}
		segInfo, err := os.Stat(filepath.Join(dir, ref))
		if err != nil {
			return SegmentSet{}, services.Wrap(services.ErrExternalTool, "transcode", "load segments", fmt.Sprintf("missing segment %s", ref), err)
		}
		set.Segments = append(set.Segments, ref)
		set.TotalBytes += segInfo.Size()
	}
	return set, nil
}
