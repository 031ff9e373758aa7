package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Kind is the backup_type field of a slot's manifest.
type Kind string

const (
	KindChunk  Kind = "chunk"
	KindRegion Kind = "region"
	KindCustom Kind = "custom"
)

// SubSlotDescriptor is one entry of a custom slot's ordered sub_slot list,
// carrying enough of the original selector to reconstruct it for a partial
// restore (§4.E partial_restore).
type SubSlotDescriptor struct {
	Key                 int      `json:"key"`
	ID                  string   `json:"id"`
	Dimension           string   `json:"dimension"`
	Comment             string   `json:"comment"`
	Command             string   `json:"command"`
	UserCreated         string   `json:"user_created"`
	TimeCreated         string   `json:"time_created"`
	ChunkTopLeftPos     [2]int   `json:"chunk_top_left_pos"`
	ChunkBottomRightPos [2]int   `json:"chunk_bottom_right_pos"`
}

// Manifest is the info.json written into every slot, per spec.md §6.
type Manifest struct {
	Time                string              `json:"time"`
	BackupType          Kind                `json:"backup_type"`
	BackupDimension     []string            `json:"backup_dimension"`
	User                string              `json:"user"`
	Comment             string              `json:"comment"`
	Command             string              `json:"command"`
	VersionCreated      string              `json:"version_created"`
	MinecraftVersion    string              `json:"minecraft_version"`
	UserPos             *[3]float64         `json:"user_pos,omitempty"`
	ChunkTopLeftPos     *[2]int             `json:"chunk_top_left_pos,omitempty"`
	ChunkBottomRightPos *[2]int             `json:"chunk_bottom_right_pos,omitempty"`
	CustomName          string              `json:"custom_name,omitempty"`
	UserCreated         string              `json:"user_created,omitempty"`
	TimeCreated         string              `json:"time_created,omitempty"`
	SubSlot             []SubSlotDescriptor `json:"sub_slot,omitempty"`
}

const manifestFileName = "info.json"

// WriteManifest writes m as slotDir/info.json.
func WriteManifest(slotDir string, m *Manifest) error {
	b, err := json.MarshalIndent(m, "", "    ")
	if err != nil {
		return fmt.Errorf("engine: marshal manifest: %w", err)
	}
	if err := os.MkdirAll(slotDir, 0o755); err != nil {
		return fmt.Errorf("engine: create slot dir %s: %w", slotDir, err)
	}
	path := filepath.Join(slotDir, manifestFileName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("engine: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("engine: finalize %s: %w", path, err)
	}
	return nil
}

// ErrLackInfoFile is returned by ReadManifest when the slot has no
// info.json.
type ErrLackInfoFile struct{ SlotDir string }

func (e *ErrLackInfoFile) Error() string {
	return fmt.Sprintf("engine: %s has no info.json", e.SlotDir)
}

// ReadManifest loads slotDir/info.json.
func ReadManifest(slotDir string) (*Manifest, error) {
	path := filepath.Join(slotDir, manifestFileName)
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, &ErrLackInfoFile{SlotDir: slotDir}
	}
	if err != nil {
		return nil, fmt.Errorf("engine: read %s: %w", path, err)
	}
	var m Manifest
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("engine: parse %s: %w", path, err)
	}
	return &m, nil
}
