package checkpoint

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/pkg/errors"

	"github.com/lucasbrambrink/deepvariant/pkg/model"
	"github.com/lucasbrambrink/deepvariant/pkg/ptrs"
)

// S3 stores checkpoints as objects under a bucket prefix.
type S3 struct {
	bucket     string
	prefix     string
	client     *s3.S3
	uploader   *s3manager.Uploader
	downloader *s3manager.Downloader
}

// NewS3 creates an S3 store. Credentials fall back to the ambient AWS
// environment when the config does not carry them explicitly.
func NewS3(config *model.S3Config) (*S3, error) {
	awsConfig := aws.NewConfig()
	if config.EndpointURL != nil {
		awsConfig = awsConfig.WithEndpoint(*config.EndpointURL).WithS3ForcePathStyle(true)
	}
	if config.AccessKey != nil && config.SecretKey != nil {
		awsConfig = awsConfig.WithCredentials(
			credentials.NewStaticCredentials(*config.AccessKey, *config.SecretKey, ""))
	}
	sess, err := session.NewSessionWithOptions(session.Options{
		SharedConfigState: session.SharedConfigEnable,
		Config:            *awsConfig,
	})
	if err != nil {
		return nil, errors.Wrap(err, "creating aws session")
	}
	if aws.StringValue(sess.Config.Region) == "" {
		sess.Config.Region = aws.String(discoverRegion())
	}
	return &S3{
		bucket: config.Bucket,
		prefix: keyPrefix(config.Prefix),
		client: s3.New(sess),
		uploader: s3manager.NewUploader(sess, func(u *s3manager.Uploader) {
			u.PartSize = DefaultPartSize
		}),
		downloader: s3manager.NewDownloader(sess, func(d *s3manager.Downloader) {
			d.PartSize = DefaultPartSize
		}),
	}, nil
}

// Save implements the Store interface. The metadata object is uploaded last so
// partially saved checkpoints stay invisible to List.
func (s *S3) Save(ctx context.Context, meta Metadata, state []byte) error {
	key := s.prefix + stepKey(meta.Step) + "/"
	if err := s.upload(ctx, key+stateFile, state); err != nil {
		return err
	}
	blob, err := json.Marshal(meta)
	if err != nil {
		return errors.Wrap(err, "marshaling checkpoint metadata")
	}
	return s.upload(ctx, key+metadataFile, blob)
}

// Load implements the Store interface.
func (s *S3) Load(ctx context.Context, step int64) (*Snapshot, error) {
	key := s.prefix + stepKey(step) + "/"
	blob, err := s.download(ctx, key+metadataFile)
	if err != nil {
		return nil, err
	}
	var meta Metadata
	if err := json.Unmarshal(blob, &meta); err != nil {
		return nil, errors.Wrapf(err, "parsing checkpoint metadata for step %d", step)
	}
	state, err := s.download(ctx, key+stateFile)
	if err != nil {
		return nil, err
	}
	return &Snapshot{Metadata: meta, State: state}, nil
}

// List implements the Store interface.
func (s *S3) List(ctx context.Context) ([]Metadata, error) {
	var keys []string
	err := s.client.ListObjectsV2PagesWithContext(
		ctx,
		&s3.ListObjectsV2Input{
			Bucket: ptrs.Ptr(s.bucket),
			Prefix: ptrs.Ptr(s.prefix),
		},
		func(output *s3.ListObjectsV2Output, lastPage bool) bool {
			for _, obj := range output.Contents {
				if strings.HasSuffix(aws.StringValue(obj.Key), "/"+metadataFile) {
					keys = append(keys, aws.StringValue(obj.Key))
				}
			}
			return true
		},
	)
	if err != nil {
		return nil, errors.Wrapf(err, "listing checkpoints in s3://%s/%s", s.bucket, s.prefix)
	}
	metas := make([]Metadata, 0, len(keys))
	for _, key := range keys {
		blob, err := s.download(ctx, key)
		if err != nil {
			return nil, err
		}
		var meta Metadata
		if err := json.Unmarshal(blob, &meta); err != nil {
			return nil, errors.Wrapf(err, "parsing checkpoint metadata %s", key)
		}
		metas = append(metas, meta)
	}
	return metas, nil
}

// Delete implements the Store interface.
func (s *S3) Delete(ctx context.Context, step int64) error {
	prefix := s.prefix + stepKey(step) + "/"
	var objects []*s3.ObjectIdentifier
	err := s.client.ListObjectsV2PagesWithContext(
		ctx,
		&s3.ListObjectsV2Input{
			Bucket: ptrs.Ptr(s.bucket),
			Prefix: ptrs.Ptr(prefix),
		},
		func(output *s3.ListObjectsV2Output, lastPage bool) bool {
			for _, obj := range output.Contents {
				objects = append(objects, &s3.ObjectIdentifier{Key: obj.Key})
			}
			return true
		},
	)
	if err != nil {
		return errors.Wrapf(err, "listing checkpoint objects under %s", prefix)
	}
	if len(objects) == 0 {
		return nil
	}
	_, err = s.client.DeleteObjectsWithContext(ctx, &s3.DeleteObjectsInput{
		Bucket: ptrs.Ptr(s.bucket),
		Delete: &s3.Delete{Objects: objects},
	})
	return errors.Wrapf(err, "deleting checkpoint objects under %s", prefix)
}

// Close implements the Store interface.
func (s *S3) Close() error { return nil }

func (s *S3) upload(ctx context.Context, key string, data []byte) error {
	_, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket: ptrs.Ptr(s.bucket),
		Key:    ptrs.Ptr(key),
		Body:   bytes.NewReader(data),
	})
	return errors.Wrapf(err, "uploading s3://%s/%s", s.bucket, key)
}

func (s *S3) download(ctx context.Context, key string) ([]byte, error) {
	buf := aws.NewWriteAtBuffer(nil)
	_, err := s.downloader.DownloadWithContext(ctx, buf, &s3.GetObjectInput{
		Bucket: ptrs.Ptr(s.bucket),
		Key:    ptrs.Ptr(key),
	})
	if err != nil {
		var aerr awserr.Error
		if errors.As(err, &aerr) && (aerr.Code() == s3.ErrCodeNoSuchKey || aerr.Code() == "NotFound") {
			return nil, ErrNotFound
		}
		return nil, errors.Wrapf(err, "downloading s3://%s/%s", s.bucket, key)
	}
	return buf.Bytes(), nil
}

func keyPrefix(prefix *string) string {
	if prefix == nil {
		return ""
	}
	trimmed := strings.Trim(*prefix, "/")
	if trimmed == "" {
		return ""
	}
	return trimmed + "/"
}

// discoverRegion asks the EC2 instance identity document for the local region.
// Per AWS: https://docs.aws.amazon.com/AWSEC2/latest/UserGuide/instance-identity-documents.html
func discoverRegion() string {
	defaultRegion := "us-west-2"
	client := http.Client{Timeout: 100 * time.Millisecond}

	resp, err := client.Get("http://169.254.169.254/latest/dynamic/instance-identity/document")
	if err != nil || resp.StatusCode != http.StatusOK {
		return defaultRegion
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	blob, err := io.ReadAll(resp.Body)
	if err != nil {
		return defaultRegion
	}
	var doc struct {
		Region string `json:"region"`
	}
	if err := json.Unmarshal(blob, &doc); err != nil || doc.Region == "" {
		return defaultRegion
	}
	return doc.Region
}
