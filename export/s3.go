package export

import (
	"bytes"
	"context"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// NewS3Target builds an export Target backed by aws-sdk-go-v2's managed
// uploader (github.com/aws/aws-sdk-go-v2/feature/s3/manager), the same
// library SPEC_FULL.md's domain-stack table names for this module —
// generalizing the teacher's own dfc/aws.go putobj (which used the v1
// s3manager.Uploader the same way: wrap an *os.File/io.Reader, call
// Upload once) to the v2 client this module's go.mod carries.
func NewS3Target(ctx context.Context, bucket string) (Target, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return Target{}, err
	}
	uploader := manager.NewUploader(s3.NewFromConfig(cfg))
	return Target{
		Name: "s3:" + bucket,
		Upload: func(ctx context.Context, key string, body *bytes.Buffer) error {
			_, err := uploader.Upload(ctx, &s3.PutObjectInput{
				Bucket: &bucket,
				Key:    &key,
				Body:   bytes.NewReader(body.Bytes()),
			})
			return err
		},
	}, nil
}
