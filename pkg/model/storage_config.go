package model

import (
	"encoding/json"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/lucasbrambrink/deepvariant/pkg/check"
	"github.com/lucasbrambrink/deepvariant/pkg/union"
)

// DefaultMaxToKeep bounds how many checkpoints are retained when the config does
// not say otherwise.
const DefaultMaxToKeep = 5

// CheckpointStorageConfig configures where checkpoints are written. Exactly one
// backend member is set, selected by the "type" field.
type CheckpointStorageConfig struct {
	MaxToKeep int `json:"max_to_keep"`

	SharedFSConfig *SharedFSConfig `union:"type,shared_fs" json:"-"`
	S3Config       *S3Config       `union:"type,s3" json:"-"`
	GCSConfig      *GCSConfig      `union:"type,gcs" json:"-"`
}

// MarshalJSON implements the json.Marshaler interface.
func (c CheckpointStorageConfig) MarshalJSON() ([]byte, error) {
	return union.Marshal(c)
}

// UnmarshalJSON implements the json.Unmarshaler interface.
func (c *CheckpointStorageConfig) UnmarshalJSON(data []byte) error {
	if err := union.Unmarshal(data, c); err != nil {
		return err
	}
	type DefaultParser *CheckpointStorageConfig
	return errors.Wrap(json.Unmarshal(data, DefaultParser(c)), "failed to parse checkpoint storage")
}

// Validate implements the check.Validatable interface.
func (c CheckpointStorageConfig) Validate() []error {
	count := 0
	for _, set := range []bool{
		c.SharedFSConfig != nil,
		c.S3Config != nil,
		c.GCSConfig != nil,
	} {
		if set {
			count++
		}
	}
	return []error{
		check.Equal(count, 1, "exactly one checkpoint storage backend must be configured"),
		check.GreaterThanOrEqualTo(c.MaxToKeep, 0, "max_to_keep must not be negative"),
	}
}

// SharedFSConfig configures storing checkpoints on a shared filesystem (e.g., NFS).
type SharedFSConfig struct {
	HostPath    string  `json:"host_path"`
	StoragePath *string `json:"storage_path,omitempty"`
}

// PathOnHost resolves the full storage directory under the host path.
func (s SharedFSConfig) PathOnHost() string {
	if s.StoragePath == nil {
		return s.HostPath
	}
	if filepath.IsAbs(*s.StoragePath) {
		return *s.StoragePath
	}
	return filepath.Join(s.HostPath, *s.StoragePath)
}

// Validate implements the check.Validatable interface.
func (s SharedFSConfig) Validate() []error {
	errs := []error{
		check.NotEmpty(s.HostPath, "host_path must be set"),
		check.True(filepath.IsAbs(s.HostPath), "host_path must be an absolute path"),
	}
	if s.StoragePath != nil {
		storagePath := *s.StoragePath
		if filepath.IsAbs(storagePath) {
			rel, err := filepath.Rel(s.HostPath, storagePath)
			if err != nil {
				return append(errs, err)
			}
			storagePath = rel
		}
		errs = append(errs, check.True(
			!strings.HasPrefix(filepath.Clean(storagePath), ".."),
			"storage_path must be a subdirectory of host_path"))
	}
	return errs
}

// S3Config configures storing checkpoints on S3.
type S3Config struct {
	Bucket      string  `json:"bucket"`
	Prefix      *string `json:"prefix,omitempty"`
	AccessKey   *string `json:"access_key,omitempty"`
	SecretKey   *string `json:"secret_key,omitempty"`
	EndpointURL *string `json:"endpoint_url,omitempty"`
}

// Validate implements the check.Validatable interface.
func (s S3Config) Validate() []error {
	return []error{
		check.NotEmpty(s.Bucket, "bucket must be set"),
	}
}

// GCSConfig configures storing checkpoints on GCS.
type GCSConfig struct {
	Bucket string  `json:"bucket"`
	Prefix *string `json:"prefix,omitempty"`
}

// Validate implements the check.Validatable interface.
func (g GCSConfig) Validate() []error {
	return []error{
		check.NotEmpty(g.Bucket, "bucket must be set"),
	}
}
