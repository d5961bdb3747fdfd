package storage

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	log "github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

// S3Config addresses an S3 compatible store. An empty Endpoint means AWS itself;
// empty keys fall back to the SDK's default credential chain.
type S3Config struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	AccessKeySecret string
}

// S3URI is an "s3://bucket/key" location.
type S3URI struct {
	Bucket string
	Key    string
}

func ParseS3URI(raw string) (S3URI, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return S3URI{}, xerrors.Errorf("parse %q: %w", raw, err)
	}
	if u.Scheme != "s3" || u.Host == "" {
		return S3URI{}, xerrors.Errorf("%q is not an s3://bucket/key uri: %w", raw, ErrUnsupportedURL)
	}
	key := strings.TrimLeft(u.Path, "/")
	if key == "" {
		return S3URI{}, xerrors.Errorf("%q has no object key: %w", raw, ErrUnsupportedURL)
	}
	return S3URI{Bucket: u.Host, Key: key}, nil
}

func (u S3URI) String() string { return "s3://" + u.Bucket + "/" + u.Key }

type S3Store struct {
	client *s3.S3
}

func NewS3Store(conf S3Config) (*S3Store, error) {
	region := conf.Region
	if region == "" {
		region = "us-east-1"
	}
	cfg := &aws.Config{Region: aws.String(region)}
	if conf.Endpoint != "" {
		cfg.Endpoint = aws.String(conf.Endpoint)
		cfg.S3ForcePathStyle = aws.Bool(true)
	}
	if conf.AccessKeyID != "" {
		cfg.Credentials = credentials.NewStaticCredentials(conf.AccessKeyID, conf.AccessKeySecret, "")
	}

	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, xerrors.Errorf("s3 session: %w", err)
	}
	return &S3Store{client: s3.New(sess)}, nil
}

// Download copies the object at src into the local file dst.
func (s *S3Store) Download(ctx context.Context, src, dst string) error {
	uri, err := ParseS3URI(src)
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{"bucket": uri.Bucket, "key": uri.Key}).Info("Downloading from s3")

	if err := os.MkdirAll(filepath.Dir(dst), os.ModePerm); err != nil {
		return xerrors.Errorf("create %s: %w", filepath.Dir(dst), err)
	}
	writer, err := os.Create(dst)
	if err != nil {
		return xerrors.Errorf("create %s: %w", dst, err)
	}
	defer writer.Close()

	downloader := s3manager.NewDownloaderWithClient(s.client)
	n, err := downloader.DownloadWithContext(ctx, writer, &s3.GetObjectInput{
		Bucket: aws.String(uri.Bucket),
		Key:    aws.String(uri.Key),
	})
	if err != nil {
		os.Remove(dst)
		return xerrors.Errorf("download %s: %w", uri, err)
	}
	log.WithField("bytes", n).Info("Download finished")
	return nil
}

// Upload stores the local file at s3 location dst and returns the object URL.
func (s *S3Store) Upload(ctx context.Context, file, dst string) (string, error) {
	uri, err := ParseS3URI(dst)
	if err != nil {
		return "", err
	}
	f, err := os.Open(file)
	if err != nil {
		return "", xerrors.Errorf("open %s: %w", file, err)
	}
	defer f.Close()

	log.WithFields(log.Fields{"bucket": uri.Bucket, "key": uri.Key, "file": file}).Info("Uploading to s3")
	uploader := s3manager.NewUploaderWithClient(s.client)
	up, err := uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket: aws.String(uri.Bucket),
		Key:    aws.String(uri.Key),
		Body:   f,
	})
	if err != nil {
		return "", xerrors.Errorf("upload %s: %w", uri, err)
	}
	return up.Location, nil
}
