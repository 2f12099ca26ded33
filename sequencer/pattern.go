package sequencer

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
)

var ErrNoSaves = errors.New("no saved patterns")

const stampLayout = "2006-01-02_15-04-05"

// swappable for tests
var timeNow = time.Now

// Pattern is the persistent part of a sequencer
type Pattern struct {
	Tempo int            `json:"tempo"`
	Steps [NumSteps]Step `json:"steps"`
}

// SaveInfo represents a saved pattern file (for listing)
type SaveInfo struct {
	Filename  string
	Name      string // parsed from filename (empty if unnamed)
	Timestamp time.Time
}

// Pattern returns a copy of the current steps and tempo
func (s *Sequencer) Pattern() Pattern {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Pattern{Tempo: s.Tempo, Steps: s.Steps}
}

// LoadPattern replaces steps and tempo. A playing sequencer picks the new
// steps up from the next unscheduled step.
func (s *Sequencer) LoadPattern(p Pattern) {
	s.mu.Lock()
	s.Steps = p.Steps
	s.mu.Unlock()
	if p.Tempo > 0 {
		s.SetTempo(p.Tempo)
	}
}

// PatternsDir returns the pattern directory under base
func PatternsDir(base string) string {
	return filepath.Join(base, "patterns")
}

// ListSaves returns timestamped saves in dir, newest first
func ListSaves(dir string) ([]SaveInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []SaveInfo{}, nil
		}
		return nil, err
	}

	var saves []SaveInfo
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".json") {
			continue
		}

		// 2024-01-15_14-30-00.json or 2024-01-15_14-30-00_name.json
		baseName := strings.TrimSuffix(name, ".json")
		if len(baseName) < len(stampLayout) {
			continue
		}
		ts, err := time.Parse(stampLayout, baseName[:len(stampLayout)])
		if err != nil {
			continue
		}

		saveName := ""
		if len(baseName) > len(stampLayout)+1 && baseName[len(stampLayout)] == '_' {
			saveName = baseName[len(stampLayout)+1:]
		}

		saves = append(saves, SaveInfo{
			Filename:  name,
			Name:      saveName,
			Timestamp: ts,
		})
	}

	sort.Slice(saves, func(i, j int) bool {
		if saves[i].Timestamp.Equal(saves[j].Timestamp) {
			return saves[i].Filename > saves[j].Filename
		}
		return saves[i].Timestamp.After(saves[j].Timestamp)
	})
	return saves, nil
}

// SavePattern writes p to dir with a timestamped filename and returns it
func SavePattern(dir, name string, p Pattern) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return "", err
	}

	filename := timeNow().Format(stampLayout)
	if name != "" {
		filename += "_" + sanitizeFilename(name)
	}
	filename += ".json"

	if err := os.WriteFile(filepath.Join(dir, filename), data, 0644); err != nil {
		return "", err
	}
	return filename, nil
}

// LoadSave reads a save from dir, the most recent one if filename is empty
func LoadSave(dir, filename string) (Pattern, error) {
	if filename == "" {
		saves, err := ListSaves(dir)
		if err != nil {
			return Pattern{}, err
		}
		if len(saves) == 0 {
			return Pattern{}, fault.Wrap(ErrNoSaves, fmsg.With(dir), ftag.With(ftag.NotFound))
		}
		filename = saves[0].Filename
	}

	data, err := os.ReadFile(filepath.Join(dir, filename))
	if err != nil {
		return Pattern{}, err
	}

	var p Pattern
	if err := json.Unmarshal(data, &p); err != nil {
		return Pattern{}, fault.Wrap(err, fmsg.With("parse "+filename), ftag.With(ftag.InvalidArgument))
	}
	for i := range p.Steps {
		p.Steps[i].Note = min(p.Steps[i].Note, 127)
		p.Steps[i].Velocity = min(p.Steps[i].Velocity, 127)
		p.Steps[i].CCNum = min(p.Steps[i].CCNum, 127)
		p.Steps[i].CCValue = min(p.Steps[i].CCValue, 127)
	}
	return p, nil
}

// DeleteSave deletes a specific save file
func DeleteSave(dir, filename string) error {
	return os.Remove(filepath.Join(dir, filename))
}

// RenameSave changes the name part of a save, keeping its timestamp
func RenameSave(dir, oldFilename, newName string) (string, error) {
	baseName := strings.TrimSuffix(oldFilename, ".json")
	if len(baseName) < len(stampLayout) {
		return "", fault.Wrap(errors.New("invalid save filename"), fmsg.With(oldFilename), ftag.With(ftag.InvalidArgument))
	}

	newFilename := baseName[:len(stampLayout)]
	if newName != "" {
		newFilename += "_" + sanitizeFilename(newName)
	}
	newFilename += ".json"

	if err := os.Rename(filepath.Join(dir, oldFilename), filepath.Join(dir, newFilename)); err != nil {
		return "", err
	}
	return newFilename, nil
}

// sanitizeFilename removes/replaces characters that are problematic in filenames
func sanitizeFilename(name string) string {
	r := strings.NewReplacer(
		" ", "-", "/", "-", "\\", "-", ":", "-",
		"*", "", "?", "", "\"", "", "<", "", ">", "", "|", "",
	)
	return r.Replace(name)
}
