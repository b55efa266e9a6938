// Package fetch stages input containers kept in object storage onto local
// disk so the loader can map them.
//
// Supported locations:
//   - s3://bucket/key, downloaded with the S3 transfer manager
//   - gs://bucket/object, read through the Cloud Storage client
//   - anything else, treated as a local path and passed through unchanged
package fetch

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"sync"

	"cloud.google.com/go/storage"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/ajitpratap0/trainprep/pkg/config"
	"github.com/ajitpratap0/trainprep/pkg/errors"
	"github.com/ajitpratap0/trainprep/pkg/logger"
)

// Scheme identifies where an input lives
type Scheme string

const (
	// Local is a path on the local filesystem
	Local Scheme = "file"
	// S3 is an Amazon S3 object
	S3 Scheme = "s3"
	// GCS is a Google Cloud Storage object
	GCS Scheme = "gs"
)

// Location is a parsed input URI
type Location struct {
	Scheme Scheme
	Bucket string
	Key    string
	// Path is the local path for Local locations
	Path string
}

// ParseURI splits uri into scheme, bucket and key
func ParseURI(uri string) (Location, error) {
	scheme, rest, ok := strings.Cut(uri, "://")
	if !ok {
		return Location{Scheme: Local, Path: uri}, nil
	}

	switch Scheme(scheme) {
	case S3, GCS:
	case Local:
		return Location{Scheme: Local, Path: rest}, nil
	default:
		return Location{}, errors.Newf(errors.ErrorTypeValidation, "unsupported input scheme %q", scheme)
	}

	bucket, key, _ := strings.Cut(rest, "/")
	if bucket == "" || key == "" || strings.HasSuffix(key, "/") {
		return Location{}, errors.Newf(errors.ErrorTypeValidation,
			"input %q must name a bucket and an object", uri)
	}
	return Location{Scheme: Scheme(scheme), Bucket: bucket, Key: key}, nil
}

// String formats the location back into a URI
func (l Location) String() string {
	if l.Scheme == Local {
		return l.Path
	}
	return fmt.Sprintf("%s://%s/%s", l.Scheme, l.Bucket, l.Key)
}

// Staged is an input available on local disk
type Staged struct {
	// Path is the local file to hand to the loader
	Path string
	// Source is the original location
	Source Location
	// Size is the number of bytes downloaded, 0 for local inputs
	Size int64
}

// Remote reports whether Path is a downloaded copy
func (s *Staged) Remote() bool {
	return s.Source.Scheme != Local
}

// Cleanup removes a downloaded copy. Local inputs are left alone.
func (s *Staged) Cleanup() error {
	if !s.Remote() {
		return nil
	}
	if err := os.Remove(s.Path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to remove staged input").
			WithDetail("path", s.Path)
	}
	return nil
}

// S3Downloader is the subset of manager.Downloader used for staging
type S3Downloader interface {
	Download(ctx context.Context, w io.WriterAt, input *s3.GetObjectInput, options ...func(*manager.Downloader)) (int64, error)
}

// ObjectOpener opens a Cloud Storage object for reading
type ObjectOpener func(ctx context.Context, bucket, object string) (io.ReadCloser, error)

// Stager downloads remote inputs. Clients are created on first use.
type Stager struct {
	cfg    config.RemoteConfig
	logger *zap.Logger

	mu        sync.Mutex
	s3        S3Downloader
	gcsOpen   ObjectOpener
	gcsClient *storage.Client
}

// Option configures a Stager
type Option func(*Stager)

// WithRemoteConfig sets region, endpoint, credentials and staging settings
func WithRemoteConfig(cfg config.RemoteConfig) Option {
	return func(s *Stager) { s.cfg = cfg }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Stager) { s.logger = l }
}

// WithS3Downloader replaces the SDK downloader
func WithS3Downloader(d S3Downloader) Option {
	return func(s *Stager) { s.s3 = d }
}

// WithObjectOpener replaces the Cloud Storage client
func WithObjectOpener(open ObjectOpener) Option {
	return func(s *Stager) { s.gcsOpen = open }
}

// NewStager creates a stager
func NewStager(opts ...Option) *Stager {
	s := &Stager{}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}
	return s
}

// Stage makes the input at uri available locally, downloading it into
// dir when it lives in object storage
func Stage(ctx context.Context, uri, dir string) (*Staged, error) {
	s := NewStager(WithRemoteConfig(config.RemoteConfig{StagingDir: dir}))
	defer func() { _ = s.Close() }()
	return s.Stage(ctx, uri)
}

// Stage makes the input at uri available locally
func (s *Stager) Stage(ctx context.Context, uri string) (*Staged, error) {
	loc, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}
	if loc.Scheme == Local {
		return &Staged{Path: loc.Path, Source: loc}, nil
	}

	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	dir := s.cfg.StagingDir
	if dir == "" {
		dir = os.TempDir()
	}
	f, err := os.CreateTemp(dir, "trainprep-*"+path.Ext(loc.Key))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to create staging file").
			WithDetail("dir", dir)
	}

	log := s.logger.With(zap.String("source", loc.String()), zap.String("path", f.Name()))
	log.Info("staging remote input")

	var n int64
	switch loc.Scheme {
	case S3:
		n, err = s.downloadS3(ctx, loc, f)
	case GCS:
		n, err = s.downloadGCS(ctx, loc, f)
	}
	if closeErr := f.Close(); err == nil && closeErr != nil {
		err = errors.Wrap(closeErr, errors.ErrorTypeFile, "failed to write staging file")
	}
	if err != nil {
		_ = os.Remove(f.Name())
		return nil, err
	}

	log.Info("staged remote input", zap.Int64("bytes", n))
	return &Staged{Path: f.Name(), Source: loc, Size: n}, nil
}

func (s *Stager) downloadS3(ctx context.Context, loc Location, w io.WriterAt) (int64, error) {
	d, err := s.s3Downloader(ctx)
	if err != nil {
		return 0, err
	}

	n, err := d.Download(ctx, w, &s3.GetObjectInput{
		Bucket: aws.String(loc.Bucket),
		Key:    aws.String(loc.Key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		var nsb *types.NoSuchBucket
		if errors.As(err, &nsk) || errors.As(err, &nsb) {
			return 0, errors.Wrap(err, errors.ErrorTypeMissingFile,
				fmt.Sprintf("input %s does not exist", loc))
		}
		return 0, errors.Wrap(err, errors.ErrorTypeConnection,
			fmt.Sprintf("failed to download %s", loc))
	}
	return n, nil
}

func (s *Stager) s3Downloader(ctx context.Context) (S3Downloader, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.s3 != nil {
		return s.s3, nil
	}

	var opts []func(*awsconfig.LoadOptions) error
	if s.cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(s.cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to load AWS configuration")
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if s.cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(s.cfg.Endpoint)
		}
		o.UsePathStyle = s.cfg.UsePathStyle
	})
	s.s3 = manager.NewDownloader(client, func(d *manager.Downloader) {
		d.PartSize = s.cfg.GetPartSize()
		d.Concurrency = s.cfg.GetConcurrency()
	})
	return s.s3, nil
}

// sequentialWriter adapts a WriterAt for streamed copies
type sequentialWriter struct {
	w   io.WriterAt
	off int64
}

func (s *sequentialWriter) Write(p []byte) (int, error) {
	n, err := s.w.WriteAt(p, s.off)
	s.off += int64(n)
	return n, err
}

func (s *Stager) downloadGCS(ctx context.Context, loc Location, w io.WriterAt) (int64, error) {
	open, err := s.objectOpener(ctx)
	if err != nil {
		return 0, err
	}

	r, err := open(ctx, loc.Bucket, loc.Key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
			return 0, errors.Wrap(err, errors.ErrorTypeMissingFile,
				fmt.Sprintf("input %s does not exist", loc))
		}
		return 0, errors.Wrap(err, errors.ErrorTypeConnection,
			fmt.Sprintf("failed to open %s", loc))
	}
	defer r.Close()

	n, err := io.Copy(&sequentialWriter{w: w}, r)
	if err != nil {
		return n, errors.Wrap(err, errors.ErrorTypeConnection,
			fmt.Sprintf("failed to download %s", loc))
	}
	return n, nil
}

func (s *Stager) objectOpener(ctx context.Context) (ObjectOpener, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gcsOpen != nil {
		return s.gcsOpen, nil
	}

	var opts []option.ClientOption
	if s.cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(s.cfg.CredentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to create storage client")
	}

	s.gcsClient = client
	s.gcsOpen = func(ctx context.Context, bucket, object string) (io.ReadCloser, error) {
		return client.Bucket(bucket).Object(object).NewReader(ctx)
	}
	return s.gcsOpen, nil
}

// Close releases the Cloud Storage client if one was created
func (s *Stager) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gcsClient == nil {
		return nil
	}
	err := s.gcsClient.Close()
	s.gcsClient = nil
	return err
}
