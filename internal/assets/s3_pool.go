package assets

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/ILLUVRSE/outfit-review/internal/models"
)

// S3Pool lists category pools from objects under
// s3://<bucket>/<prefix>/<dir>/. Only direct children count as items.
type S3Pool struct {
	bucket  string
	prefix  string
	baseURL string
	client  s3.ListObjectsV2APIClient
}

// NewS3Pool loads the default AWS config (AWS_REGION, AWS_PROFILE, ...) and
// returns a pool over bucket/prefix. baseURL overrides the public object URL
// used for locators; when empty the virtual-hosted S3 URL is used.
func NewS3Pool(ctx context.Context, bucket, prefix, baseURL string) (*S3Pool, error) {
	if bucket == "" {
		return nil, fmt.Errorf("bucket required")
	}
	cfg, err := awsConfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewS3PoolWithClient(s3.NewFromConfig(cfg), bucket, prefix, baseURL), nil
}

// NewS3PoolWithClient wires an existing client, mainly for tests.
func NewS3PoolWithClient(client s3.ListObjectsV2APIClient, bucket, prefix, baseURL string) *S3Pool {
	if baseURL == "" {
		baseURL = fmt.Sprintf("https://%s.s3.amazonaws.com", bucket)
	}
	return &S3Pool{
		bucket:  bucket,
		prefix:  strings.Trim(prefix, "/"),
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

func (p *S3Pool) categoryPrefix(cat models.Category) string {
	return path.Join(p.prefix, CategoryDirs[cat]) + "/"
}

func (p *S3Pool) ListItems(ctx context.Context, cat models.Category) ([]string, error) {
	if _, ok := CategoryDirs[cat]; !ok {
		return nil, unavailable(cat, fmt.Errorf("no prefix for category"))
	}
	prefix := p.categoryPrefix(cat)
	pager := s3.NewListObjectsV2Paginator(p.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(p.bucket),
		Prefix: aws.String(prefix),
	})
	var items []string
	for pager.HasMorePages() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, unavailable(cat, err)
		}
		for _, obj := range page.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), prefix)
			if !models.ValidItemID(name) {
				continue
			}
			items = append(items, name)
		}
	}
	sort.Strings(items)
	return items, nil
}

func (p *S3Pool) Locate(cat models.Category, id string) string {
	return p.baseURL + "/" + p.categoryPrefix(cat) + url.PathEscape(id)
}
