package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/jamesainslie/fsfind/pkg/fsfind/types"
)

// Stdin is the source name that reads the snapshot from standard input.
const Stdin = "-"

// ObjectGetter is the subset of the S3 client used to fetch snapshots.
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Opener opens snapshot sources: local files, standard input, and
// s3://bucket/key objects. Names ending in .gz, .zst or .lz4 are
// decompressed transparently.
type Opener struct {
	// S3 fetches s3:// sources. Nil means a client built from the default
	// AWS configuration chain on first use.
	S3 ObjectGetter

	// Stdin replaces os.Stdin for the "-" source.
	Stdin io.Reader
}

// Source is an open snapshot stream.
type Source struct {
	// Name is the source as given to Open.
	Name string

	// Size is the length of the raw (possibly compressed) stream in bytes,
	// or -1 when unknown.
	Size int64

	r       io.Reader
	counter *countingReader
	closers []io.Closer
}

// Open opens name with a default Opener.
func Open(ctx context.Context, name string) (*Source, error) {
	return (&Opener{}).Open(ctx, name)
}

// Open opens the named snapshot source.
func (o *Opener) Open(ctx context.Context, name string) (*Source, error) {
	raw, size, err := o.openRaw(ctx, name)
	if err != nil {
		return nil, err
	}

	src := &Source{
		Name:    name,
		Size:    size,
		counter: &countingReader{r: raw},
		closers: []io.Closer{raw},
	}

	if err := src.decompress(name); err != nil {
		_ = src.Close()
		return nil, err
	}
	return src, nil
}

func (o *Opener) openRaw(ctx context.Context, name string) (io.ReadCloser, int64, error) {
	switch {
	case name == Stdin:
		in := o.Stdin
		if in == nil {
			in = os.Stdin
		}
		return io.NopCloser(in), -1, nil

	case strings.HasPrefix(name, "s3://"):
		return o.openS3(ctx, name)

	default:
		f, err := os.Open(name)
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, fmt.Errorf("%w: snapshot %s does not exist", types.ErrUsage, name)
		}
		if err != nil {
			return nil, 0, fmt.Errorf("%w: opening snapshot: %w", types.ErrIO, err)
		}
		info, err := f.Stat()
		if err != nil {
			_ = f.Close()
			return nil, 0, fmt.Errorf("%w: stat snapshot: %w", types.ErrIO, err)
		}
		if info.IsDir() {
			_ = f.Close()
			return nil, 0, fmt.Errorf("%w: snapshot %s is a directory", types.ErrUsage, name)
		}
		return f, info.Size(), nil
	}
}

// ParseS3URL splits s3://bucket/key into its bucket and key.
func ParseS3URL(name string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(name, "s3://")
	if !ok {
		return "", "", fmt.Errorf("%w: %q is not an s3:// URL", types.ErrUsage, name)
	}
	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("%w: %q must name a bucket and a key", types.ErrUsage, name)
	}
	return bucket, key, nil
}

func (o *Opener) openS3(ctx context.Context, name string) (io.ReadCloser, int64, error) {
	bucket, key, err := ParseS3URL(name)
	if err != nil {
		return nil, 0, err
	}

	if o.S3 == nil {
		cfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: loading AWS configuration: %w", types.ErrIO, err)
		}
		o.S3 = s3.NewFromConfig(cfg)
	}

	out, err := o.S3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, 0, fmt.Errorf("%w: snapshot %s does not exist", types.ErrUsage, name)
		}
		return nil, 0, fmt.Errorf("%w: fetching %s: %w", types.ErrIO, name, err)
	}

	size := int64(-1)
	if out.ContentLength != nil {
		size = *out.ContentLength
	}
	return out.Body, size, nil
}

// decompress layers a decoder over the counting reader according to the
// name's extension.
func (s *Source) decompress(name string) error {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".gz"):
		zr, err := gzip.NewReader(s.counter)
		if err != nil {
			return fmt.Errorf("%w: gzip header: %w", types.ErrFormat, err)
		}
		s.r = zr
		s.closers = append(s.closers, zr)
	case strings.HasSuffix(lower, ".zst"):
		dec, err := zstd.NewReader(s.counter)
		if err != nil {
			return fmt.Errorf("%w: zstd stream: %w", types.ErrFormat, err)
		}
		rc := dec.IOReadCloser()
		s.r = rc
		s.closers = append(s.closers, rc)
	case strings.HasSuffix(lower, ".lz4"):
		s.r = lz4.NewReader(s.counter)
	default:
		s.r = s.counter
	}
	return nil
}

// Read reads decompressed snapshot bytes.
func (s *Source) Read(p []byte) (int, error) {
	return s.r.Read(p)
}

// BytesRead returns how many raw bytes have been consumed so far.
func (s *Source) BytesRead() int64 {
	return s.counter.n.Load()
}

// Close releases the decoder and the underlying stream.
func (s *Source) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type countingReader struct {
	r io.Reader
	n atomic.Int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n.Add(int64(n))
	return n, err
}
