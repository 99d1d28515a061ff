// Package csvfeed reads sensor readings from the newest CSV file in each feed folder.
package csvfeed

import (
	"errors"
	"fmt"

	telemetry "hvac-insight/internal/telemetry/domain"
)

// Column maps one CSV value column to a stream kind.
type Column struct {
	Name         string               `mapstructure:"name" yaml:"name"`
	Kind         telemetry.StreamKind `mapstructure:"kind" yaml:"kind"`
	AssetColumn  string               `mapstructure:"asset_column" yaml:"asset_column"`
	ParentColumn string               `mapstructure:"parent_column" yaml:"parent_column"`
	Asset        string               `mapstructure:"asset" yaml:"asset"`
	Parent       string               `mapstructure:"parent" yaml:"parent"`
}

// FeedConfig describes one folder of CSV exports.
type FeedConfig struct {
	Name            string   `mapstructure:"name" yaml:"name"`
	Dir             string   `mapstructure:"dir" yaml:"dir"`
	Pattern         string   `mapstructure:"pattern" yaml:"pattern"`
	TimestampColumn string   `mapstructure:"timestamp_column" yaml:"timestamp_column"`
	TimeLayout      string   `mapstructure:"time_layout" yaml:"time_layout"`
	Columns         []Column `mapstructure:"columns" yaml:"columns"`
	// Kinds maps the non-timestamp columns by position when Columns is empty.
	Kinds        []telemetry.StreamKind `mapstructure:"kinds" yaml:"kinds"`
	AssetColumn  string                 `mapstructure:"asset_column" yaml:"asset_column"`
	ParentColumn string                 `mapstructure:"parent_column" yaml:"parent_column"`
	DefaultAsset string                 `mapstructure:"default_asset" yaml:"default_asset"`
}

// Validate checks the feed definition.
func (f FeedConfig) Validate() error {
	if f.Name == "" {
		return errors.New("csvfeed: feed name required")
	}
	if f.Dir == "" {
		return fmt.Errorf("csvfeed: feed %s: dir required", f.Name)
	}
	if len(f.Columns) == 0 && len(f.Kinds) == 0 {
		return fmt.Errorf("csvfeed: feed %s: columns or kinds required", f.Name)
	}
	for _, column := range f.Columns {
		if column.Name == "" {
			return fmt.Errorf("csvfeed: feed %s: column name required", f.Name)
		}
		if !column.Kind.Valid() {
			return fmt.Errorf("csvfeed: feed %s: column %s: unknown kind %q", f.Name, column.Name, column.Kind)
		}
	}
	for _, kind := range f.Kinds {
		if !kind.Valid() {
			return fmt.Errorf("csvfeed: feed %s: unknown kind %q", f.Name, kind)
		}
	}
	return nil
}

// Provides reports whether the feed carries a stream kind.
func (f FeedConfig) Provides(kind telemetry.StreamKind) bool {
	for _, column := range f.Columns {
		if column.Kind == kind {
			return true
		}
	}
	for _, k := range f.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

func (f FeedConfig) pattern() string {
	if f.Pattern == "" {
		return "*.csv"
	}
	return f.Pattern
}

func (f FeedConfig) defaultAsset() string {
	if f.DefaultAsset != "" {
		return f.DefaultAsset
	}
	return f.Name
}
