package s3

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3Types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"k8s.io/klog/v2"
	k8syaml "sigs.k8s.io/yaml"

	"deploykit/types"
)

//go:generate mockgen -source=s3.go -destination=mock/mock_s3.go -package=mock

const (
	keyPrefix = "deploys"
	recordExt = ".yaml"
)

func NewBackend() *Backend {
	return &Backend{
		Name: "s3",
	}
}

type S3Client interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

type Backend struct {
	Name       string
	Endpoint   string
	Region     string
	BucketName string
	AccessKey  string
	SecretKey  string
	Client     S3Client `json:"-"`
}

func (b *Backend) PreCmd(_ context.Context, _ string) error {
	b.BucketName = os.Getenv("AWS_BUCKET_NAME")
	if b.BucketName == "" {
		return errors.New("AWS_BUCKET_NAME environment variable not set")
	}
	b.AccessKey = os.Getenv("AWS_ACCESS_KEY")
	if b.AccessKey == "" {
		return errors.New("AWS_ACCESS_KEY environment variable not set")
	}
	b.SecretKey = os.Getenv("AWS_SECRET_KEY")
	if b.SecretKey == "" {
		return errors.New("AWS_SECRET_KEY environment variable not set")
	}

	b.Endpoint = os.Getenv("AWS_ENDPOINT")
	b.Region = os.Getenv("AWS_REGION")
	b.Client = s3.New(s3.Options{
		Region:       b.Region,
		UsePathStyle: true,
		Credentials:  credentials.NewStaticCredentialsProvider(b.AccessKey, b.SecretKey, ""),
	}, func(o *s3.Options) {
		if b.Endpoint != "" {
			o.BaseEndpoint = aws.String(b.Endpoint)
		}
	})
	return nil
}

func (b *Backend) Read(ctx context.Context, project, host string) (*types.Record, error) {
	key := recordKey(project, host)
	klog.V(4).Infof("[s3 backend] trying to read object: %s", key)
	remoteFile, err := b.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.BucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "NoSuchKey" {
			return nil, fmt.Errorf("%w: %s", types.ErrNoRecord, key)
		}
		return nil, fmt.Errorf("couldn't download object: %v", err)
	}
	if remoteFile == nil {
		return nil, fmt.Errorf("%w: %s", types.ErrNoRecord, key)
	}
	defer remoteFile.Body.Close()

	data, err := io.ReadAll(remoteFile.Body)
	if err != nil {
		return nil, err
	}
	js, err := k8syaml.YAMLToJSON(data)
	if err != nil {
		return nil, err
	}
	var record types.Record
	if err := json.Unmarshal(js, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

func (b *Backend) Write(ctx context.Context, record *types.Record) error {
	y, err := k8syaml.Marshal(record)
	if err != nil {
		return err
	}
	key := recordKey(record.Project, record.Host)
	klog.V(4).Infof("[s3 backend] trying to write object: %s", key)
	_, err = b.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.BucketName),
		Key:    aws.String(key),
		Body:   bytes.NewReader(y),
	})
	if err != nil {
		return fmt.Errorf("couldn't upload object: %v", err)
	}
	return nil
}

func (b *Backend) Delete(ctx context.Context, project string) error {
	keys, err := b.listKeys(ctx, project)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	objectsToDelete := make([]s3Types.ObjectIdentifier, len(keys))
	for i := range keys {
		objectsToDelete[i] = s3Types.ObjectIdentifier{Key: aws.String(keys[i])}
	}
	_, err = b.Client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(b.BucketName),
		Delete: &s3Types.Delete{
			Objects: objectsToDelete,
		},
	})
	if err != nil {
		return fmt.Errorf("couldn't delete objects: %v", err)
	}
	return nil
}

func (b *Backend) List(ctx context.Context, project string) ([]types.Record, error) {
	keys, err := b.listKeys(ctx, project)
	if err != nil {
		return nil, err
	}
	records := make([]types.Record, 0, len(keys))
	for _, key := range keys {
		host := strings.TrimSuffix(path.Base(key), recordExt)
		record, err := b.Read(ctx, project, host)
		if err != nil {
			return nil, err
		}
		records = append(records, *record)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Host < records[j].Host })
	return records, nil
}

func (b *Backend) listKeys(ctx context.Context, project string) ([]string, error) {
	prefix := path.Join(keyPrefix, project) + "/"
	objects, err := b.Client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.BucketName),
		Prefix: aws.String(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("couldn't list objects: %v", err)
	}
	var keys []string
	for _, object := range objects.Contents {
		if object.Key != nil && strings.HasSuffix(*object.Key, recordExt) {
			keys = append(keys, *object.Key)
		}
	}
	return keys, nil
}

func recordKey(project, host string) string {
	return path.Join(keyPrefix, project, host+recordExt)
}
