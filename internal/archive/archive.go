// Package archive keeps encrypted copies of finished agreements in
// S3-compatible storage.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// ErrDisabled is returned when no bucket or passphrase is configured.
var ErrDisabled = errors.New("archive storage not configured")

// s3Client is the subset of the S3 API the archiver uses.
type s3Client interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Config holds S3-compatible storage settings.
type Config struct {
	Endpoint   string
	Bucket     string
	Region     string
	AccessKey  string
	SecretKey  string
	Prefix     string
	Passphrase string
}

func (c Config) enabled() bool {
	return c.Bucket != "" && c.AccessKey != "" && c.SecretKey != "" && c.Passphrase != ""
}

// Object describes a stored archive.
type Object struct {
	Key       string
	Size      int64
	CreatedAt time.Time
}

type Archiver struct {
	cfg    Config
	client s3Client
	logger *slog.Logger
	now    func() time.Time
}

// New returns an Archiver. Without complete settings it is disabled and
// every call returns ErrDisabled.
func New(cfg Config, logger *slog.Logger) *Archiver {
	a := &Archiver{cfg: cfg, logger: logger, now: time.Now}
	if cfg.enabled() {
		a.client = newS3Client(cfg)
	}
	return a
}

func newS3Client(cfg Config) *s3.Client {
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

// Enabled reports whether uploads will be attempted.
func (a *Archiver) Enabled() bool {
	return a.client != nil
}

func (a *Archiver) key(contractID int64) string {
	prefix := a.cfg.Prefix
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return fmt.Sprintf("%scontract-%d/%s-%s.pdf.enc", prefix, contractID, a.now().UTC().Format("20060102T150405Z"), uuid.NewString())
}

// Put encrypts pdf and uploads it under a fresh key for the contract.
func (a *Archiver) Put(ctx context.Context, contractID int64, pdf []byte) (*Object, error) {
	if a.client == nil {
		return nil, ErrDisabled
	}
	sealed, err := Encrypt(pdf, a.cfg.Passphrase)
	if err != nil {
		return nil, fmt.Errorf("encrypt archive: %w", err)
	}

	obj := &Object{Key: a.key(contractID), Size: int64(len(sealed)), CreatedAt: a.now()}
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.cfg.Bucket),
		Key:           aws.String(obj.Key),
		Body:          bytes.NewReader(sealed),
		ContentLength: aws.Int64(obj.Size),
		ContentType:   aws.String("application/octet-stream"),
	})
	if err != nil {
		return nil, fmt.Errorf("upload archive: %w", err)
	}
	a.logger.Info("agreement archived", "contract_id", contractID, "key", obj.Key, "bytes", obj.Size)
	return obj, nil
}

// Get downloads and decrypts the archive stored at key.
func (a *Archiver) Get(ctx context.Context, key string) ([]byte, error) {
	if a.client == nil {
		return nil, ErrDisabled
	}
	out, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("download archive: %w", err)
	}
	defer out.Body.Close()

	sealed, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read archive: %w", err)
	}
	return Decrypt(sealed, a.cfg.Passphrase)
}
