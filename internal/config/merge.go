package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/rshade/tryon/internal/engine/job"
)

// Top-level YAML config key names used for shallow merge.
const (
	keyOutput      = "output"
	keyBatch       = "batch"
	keyJob         = "job"
	keyVariant     = "variant"
	keyService     = "service"
	keyCredentials = "credentials"
	keyLogging     = "logging"
)

// ShallowMergeYAML loads a YAML file and merges its top-level keys onto
// the target Config. Keys present in the overlay replace entire sections
// in the target. Keys absent in the overlay are left unchanged, as are
// unknown keys and the version key.
func ShallowMergeYAML(target *Config, overlayPath string) error {
	if target == nil {
		return errors.New("nil target *Config in ShallowMergeYAML")
	}

	data, err := os.ReadFile(overlayPath)
	if err != nil {
		return fmt.Errorf("reading overlay file %s: %w", overlayPath, err)
	}

	// Discover which top-level keys are present in the overlay.
	var overlay map[string]yaml.Node
	if err = yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("parsing overlay YAML from %s: %w", overlayPath, err)
	}

	// Empty or comment-only file: nothing to merge.
	if len(overlay) == 0 {
		return nil
	}

	if v, ok := overlay["version"]; ok {
		if err = CheckVersion(v.Value); err != nil {
			return fmt.Errorf("overlay %s: %w", overlayPath, err)
		}
	}

	for key, node := range overlay {
		if err = unmarshalSection(target, key, &node); err != nil {
			return fmt.Errorf("applying overlay section %q: %w", key, err)
		}
	}

	return nil
}

// unmarshalSection decodes node into the matching field of target. Each
// section is decoded into a fresh zero value so the overlay replaces it
// completely.
func unmarshalSection(target *Config, key string, node *yaml.Node) error {
	switch key {
	case keyOutput:
		var v OutputConfig
		if err := node.Decode(&v); err != nil {
			return err
		}
		target.Output = v
	case keyBatch:
		var v BatchConfig
		if err := node.Decode(&v); err != nil {
			return err
		}
		target.Batch = v
	case keyJob:
		var v JobConfig
		if err := node.Decode(&v); err != nil {
			return err
		}
		target.Job = v
	case keyVariant:
		var v job.VariantConfig
		if err := node.Decode(&v); err != nil {
			return err
		}
		target.Variant = v
	case keyService:
		var v ServiceConfig
		if err := node.Decode(&v); err != nil {
			return err
		}
		target.Service = v
	case keyCredentials:
		var v CredentialsConfig
		if err := node.Decode(&v); err != nil {
			return err
		}
		target.Credentials = v
	case keyLogging:
		var v LoggingConfig
		if err := node.Decode(&v); err != nil {
			return err
		}
		target.Logging = v
	}
	return nil
}
