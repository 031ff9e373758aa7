// Package config defines chunkback's keyed configuration document and the
// load/merge helpers an embedding application uses to read and upgrade it:
// the Document shape, a pure Merge that only fills zero fields, and Load and
// Save helpers that read and write the document as TOML via viper and
// go-toml.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

// DimensionEntry describes one configured dimension: its canonical id
// string, the world directory it lives under, and the region-bearing
// subfolders within that world directory (region, poi, entities, ...).
type DimensionEntry struct {
	DimensionID      string   `mapstructure:"dimension" toml:"dimension"`
	WorldName        string   `mapstructure:"world_name" toml:"world_name"`
	RegionSubfolders []string `mapstructure:"region_folder" toml:"region_folder"`
}

// DataGetter holds the command templates and response regexes used for the
// host handshake (§4.F): querying a player's position/dimension, and the
// save-off / save-all-flush / save-on sequence.
type DataGetter struct {
	GetPos            string `mapstructure:"get_pos" toml:"get_pos"`
	GetDimension      string `mapstructure:"get_dimension" toml:"get_dimension"`
	SaveWorlds        string `mapstructure:"save_worlds" toml:"save_worlds"`
	AutoSaveOff       string `mapstructure:"auto_save_off" toml:"auto_save_off"`
	AutoSaveOn        string `mapstructure:"auto_save_on" toml:"auto_save_on"`
	GetPosRegex       string `mapstructure:"get_pos_regex" toml:"get_pos_regex"`
	GetDimensionRegex string `mapstructure:"get_dimension_regex" toml:"get_dimension_regex"`
	SaveOffRegex      string `mapstructure:"save_off_regex" toml:"save_off_regex"`
	SavedWorldRegex   string `mapstructure:"saved_world_regex" toml:"saved_world_regex"`
}

// Document is the keyed configuration document of spec.md §6: everything an
// operator can tune about where backups live, how many slots each root
// keeps, how big a selection may be, and how chunkback talks to the host.
type Document struct {
	ServerPath             string                    `mapstructure:"server_path" toml:"server_path"`
	BackupPath             string                    `mapstructure:"backup_path" toml:"backup_path"`
	StaticBackupPath       string                    `mapstructure:"static_backup_path" toml:"static_backup_path"`
	OverwriteBackupFolder  string                    `mapstructure:"overwrite_backup_folder" toml:"overwrite_backup_folder"`
	DimensionInfo          map[string]DimensionEntry `mapstructure:"dimension_info" toml:"dimension_info"`
	DataGetter             DataGetter                `mapstructure:"data_getter" toml:"data_getter"`
	MinimumPermissionLevel map[string]int            `mapstructure:"minimum_permission_level" toml:"minimum_permission_level"`
	Slot                   int                       `mapstructure:"slot" toml:"slot"`
	StaticSlot             int                       `mapstructure:"static_slot" toml:"static_slot"`
	MaxChunkLength         int                       `mapstructure:"max_chunk_length" toml:"max_chunk_length"`
	MaxWorkers             int                       `mapstructure:"max_workers" toml:"max_workers"`
	PluginVersion          string                    `mapstructure:"plugin_version" toml:"plugin_version"`
}

// Default returns the built-in configuration, grounded directly on
// original_source/chunk_backup/config.py's cb_config defaults.
func Default() *Document {
	return &Document{
		ServerPath:            "./server",
		BackupPath:            "./cb_multi",
		StaticBackupPath:      "./cb_static",
		OverwriteBackupFolder: "overwrite",
		DimensionInfo: map[string]DimensionEntry{
			"0":  {DimensionID: "minecraft:overworld", WorldName: "world", RegionSubfolders: []string{"poi", "entities", "region"}},
			"-1": {DimensionID: "minecraft:the_nether", WorldName: "world", RegionSubfolders: []string{"DIM-1/poi", "DIM-1/entities", "DIM-1/region"}},
			"1":  {DimensionID: "minecraft:the_end", WorldName: "world", RegionSubfolders: []string{"DIM1/poi", "DIM1/entities", "DIM1/region"}},
		},
		DataGetter: DataGetter{
			GetPos:            "data get entity {name} Pos",
			GetDimension:      "data get entity {name} Dimension",
			SaveWorlds:        "save-all flush",
			AutoSaveOff:       "save-off",
			AutoSaveOn:        "save-on",
			GetPosRegex:       `^{name} has the following entity data: \[(?P<x>-?[\d.]+)d, (?P<y>-?[\d.]+)d, (?P<z>-?[\d.]+)d\]$`,
			GetDimensionRegex: `^{name} has the following entity data: "(?P<dimension>[^"]+)"$`,
			SaveOffRegex:      "Automatic saving is now disabled",
			SavedWorldRegex:   "Saved the game",
		},
		MinimumPermissionLevel: map[string]int{
			"make": 1, "pmake": 1, "dmake": 1, "back": 2, "restore": 2, "del": 2,
			"confirm": 1, "abort": 1, "reload": 2, "force_reload": 3, "list": 0,
			"show": 1, "set": 2, "custom": 1,
		},
		Slot:           10,
		StaticSlot:     50,
		MaxChunkLength: 320,
		MaxWorkers:     4,
		PluginVersion:  "1.0.0",
	}
}

// Merge deep-merges src into dst, filling only the fields dst leaves at
// their zero value. This is spec.md §9's "template supplies defaults only"
// rule: an operator's existing document is never overwritten by upgrading
// to a newer default set, only extended with whatever keys it is missing.
func Merge(dst, src *Document) {
	if dst.ServerPath == "" {
		dst.ServerPath = src.ServerPath
	}
	if dst.BackupPath == "" {
		dst.BackupPath = src.BackupPath
	}
	if dst.StaticBackupPath == "" {
		dst.StaticBackupPath = src.StaticBackupPath
	}
	if dst.OverwriteBackupFolder == "" {
		dst.OverwriteBackupFolder = src.OverwriteBackupFolder
	}
	if dst.DimensionInfo == nil {
		dst.DimensionInfo = src.DimensionInfo
	} else {
		for k, v := range src.DimensionInfo {
			if _, ok := dst.DimensionInfo[k]; !ok {
				dst.DimensionInfo[k] = v
			}
		}
	}
	mergeDataGetter(&dst.DataGetter, src.DataGetter)
	if dst.MinimumPermissionLevel == nil {
		dst.MinimumPermissionLevel = src.MinimumPermissionLevel
	} else {
		for k, v := range src.MinimumPermissionLevel {
			if _, ok := dst.MinimumPermissionLevel[k]; !ok {
				dst.MinimumPermissionLevel[k] = v
			}
		}
	}
	if dst.Slot == 0 {
		dst.Slot = src.Slot
	}
	if dst.StaticSlot == 0 {
		dst.StaticSlot = src.StaticSlot
	}
	if dst.MaxChunkLength == 0 {
		dst.MaxChunkLength = src.MaxChunkLength
	}
	if dst.MaxWorkers == 0 {
		dst.MaxWorkers = src.MaxWorkers
	}
	if dst.PluginVersion == "" {
		dst.PluginVersion = src.PluginVersion
	}
}

func mergeDataGetter(dst *DataGetter, src DataGetter) {
	if dst.GetPos == "" {
		dst.GetPos = src.GetPos
	}
	if dst.GetDimension == "" {
		dst.GetDimension = src.GetDimension
	}
	if dst.SaveWorlds == "" {
		dst.SaveWorlds = src.SaveWorlds
	}
	if dst.AutoSaveOff == "" {
		dst.AutoSaveOff = src.AutoSaveOff
	}
	if dst.AutoSaveOn == "" {
		dst.AutoSaveOn = src.AutoSaveOn
	}
	if dst.GetPosRegex == "" {
		dst.GetPosRegex = src.GetPosRegex
	}
	if dst.GetDimensionRegex == "" {
		dst.GetDimensionRegex = src.GetDimensionRegex
	}
	if dst.SaveOffRegex == "" {
		dst.SaveOffRegex = src.SaveOffRegex
	}
	if dst.SavedWorldRegex == "" {
		dst.SavedWorldRegex = src.SavedWorldRegex
	}
}

// Load reads a TOML configuration document at path via viper, seeding every
// field with Default() first so a brand-new or partially filled file still
// unmarshals into a complete Document. A missing file is not an error: the
// caller gets Default() back, to be persisted by Save on first run.
func Load(path string) (*Document, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")

	def := Default()
	v.SetDefault("server_path", def.ServerPath)
	v.SetDefault("backup_path", def.BackupPath)
	v.SetDefault("static_backup_path", def.StaticBackupPath)
	v.SetDefault("overwrite_backup_folder", def.OverwriteBackupFolder)
	v.SetDefault("dimension_info", def.DimensionInfo)
	v.SetDefault("data_getter", def.DataGetter)
	v.SetDefault("minimum_permission_level", def.MinimumPermissionLevel)
	v.SetDefault("slot", def.Slot)
	v.SetDefault("static_slot", def.StaticSlot)
	v.SetDefault("max_chunk_length", def.MaxChunkLength)
	v.SetDefault("max_workers", def.MaxWorkers)
	v.SetDefault("plugin_version", def.PluginVersion)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !strings.Contains(err.Error(), "no such file") {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		return def, nil
	}

	var doc Document
	if err := v.Unmarshal(&doc); err != nil {
		return nil, fmt.Errorf("config: unmarshal %s: %w", path, err)
	}
	Merge(&doc, def)
	return &doc, nil
}

// Save writes doc to path as TOML.
func Save(path string, doc *Document) error {
	b, err := toml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: create dir for %s: %w", path, err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}
