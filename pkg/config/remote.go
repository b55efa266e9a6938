package config

import (
	"fmt"
	"time"
)

// RemoteConfig contains settings for inputs read from object storage.
// Local paths never consult it.
type RemoteConfig struct {
	// Region is the AWS region used for s3:// inputs (empty = SDK default chain)
	Region string `yaml:"region" json:"region"`
	// Endpoint overrides the S3 endpoint, e.g. for MinIO
	Endpoint string `yaml:"endpoint" json:"endpoint"`
	// UsePathStyle forces path-style S3 addressing
	UsePathStyle bool `yaml:"use_path_style" json:"use_path_style"`
	// CredentialsFile is a GCP service account file for gs:// inputs
	CredentialsFile string `yaml:"credentials_file" json:"credentials_file"`
	// StagingDir receives downloaded containers (empty = os.TempDir)
	StagingDir string `yaml:"staging_dir" json:"staging_dir"`
	// Timeout bounds a single download (0 = no limit)
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
	// PartSizeMB is the S3 multipart download part size
	PartSizeMB int64 `yaml:"part_size_mb" json:"part_size_mb"`
	// Concurrency is the number of parallel S3 part downloads
	Concurrency int `yaml:"concurrency" json:"concurrency"`
}

// Validate checks remote settings
func (r *RemoteConfig) Validate() error {
	if r.Timeout < 0 {
		return fmt.Errorf("remote.timeout cannot be negative")
	}
	if r.PartSizeMB < 0 {
		return fmt.Errorf("remote.part_size_mb cannot be negative")
	}
	if r.Concurrency < 0 {
		return fmt.Errorf("remote.concurrency cannot be negative")
	}
	return nil
}

// GetConcurrency returns the number of parallel part downloads, at least 1
func (r *RemoteConfig) GetConcurrency() int {
	if r.Concurrency <= 0 {
		return 5
	}
	return r.Concurrency
}

// GetPartSize returns the multipart part size in bytes
func (r *RemoteConfig) GetPartSize() int64 {
	if r.PartSizeMB <= 0 {
		return 8 * 1024 * 1024
	}
	return r.PartSizeMB * 1024 * 1024
}
