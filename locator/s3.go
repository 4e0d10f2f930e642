package locator

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
)

// S3Source fetches symbol-server candidates from a flat S3 bucket
// (SPEC_FULL.md §4.16): `s3://bucket/prefix` URLs generalize spec.md
// §4.10 candidate 5 the same way an `https://` symbol server does, for
// deployments that front a bucket with a CDN rather than an HTTP origin
// server with directory listing semantics.
type S3Source struct {
	client *s3.S3
}

// NewS3Source builds an S3Source from the standard AWS SDK credential
// chain (env vars, shared config, EC2/ECS instance role).
func NewS3Source() (*S3Source, error) {
	sess, err := session.NewSessionWithOptions(session.Options{
		SharedConfigState: session.SharedConfigEnable,
	})
	if err != nil {
		return nil, fmt.Errorf("locator: create aws session: %w", err)
	}
	return &S3Source{client: s3.New(sess)}, nil
}

// ParseS3URL splits an `s3://bucket/key` candidate URL into its bucket and
// key components.
func ParseS3URL(url string) (bucket, key string, ok bool) {
	const prefix = "s3://"
	if !strings.HasPrefix(url, prefix) {
		return "", "", false
	}
	rest := url[len(prefix):]
	idx := strings.IndexByte(rest, '/')
	if idx < 0 {
		return rest, "", true
	}
	return rest[:idx], rest[idx+1:], true
}

// Fetch downloads the object at url (an `s3://` candidate) and writes it
// to dest.
func (s *S3Source) Fetch(ctx context.Context, url string, dest io.Writer) error {
	bucket, key, ok := ParseS3URL(url)
	if !ok {
		return fmt.Errorf("%s: not an s3:// URL", url)
	}
	out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("locator: s3 GetObject %s/%s: %w", bucket, key, err)
	}
	defer out.Body.Close()

	_, err = io.Copy(dest, out.Body)
	return err
}
