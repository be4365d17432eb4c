package staging

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/kms"
	"github.com/aws/aws-sdk-go/service/kms/kmsiface"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/pingcap/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/specialistvlad/unloadcopy/internal/testutil"
)

type fakeS3 struct {
	s3iface.S3API

	objects   map[string]string
	failKeys  map[string]bool
	deletions [][]string
}

func (f *fakeS3) GetObjectWithContext(_ aws.Context, in *s3.GetObjectInput, _ ...request.Option) (*s3.GetObjectOutput, error) {
	body, ok := f.objects[aws.StringValue(in.Key)]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(body))}, nil
}

func (f *fakeS3) ListObjectsV2PagesWithContext(_ aws.Context, in *s3.ListObjectsV2Input, fn func(*s3.ListObjectsV2Output, bool) bool, _ ...request.Option) error {
	page := &s3.ListObjectsV2Output{}
	for key := range f.objects {
		if strings.HasPrefix(key, aws.StringValue(in.Prefix)) {
			page.Contents = append(page.Contents, &s3.Object{Key: aws.String(key)})
		}
	}
	fn(page, true)
	return nil
}

func (f *fakeS3) DeleteObjectsWithContext(_ aws.Context, in *s3.DeleteObjectsInput, _ ...request.Option) (*s3.DeleteObjectsOutput, error) {
	out := &s3.DeleteObjectsOutput{}
	var batch []string
	for _, obj := range in.Delete.Objects {
		key := aws.StringValue(obj.Key)
		batch = append(batch, key)
		if f.failKeys[key] {
			out.Errors = append(out.Errors, &s3.Error{Key: obj.Key, Message: aws.String("AccessDenied")})
			continue
		}
		delete(f.objects, key)
	}
	f.deletions = append(f.deletions, batch)
	return out, nil
}

type fakeKMS struct {
	kmsiface.KMSAPI

	calls *atomic.Int32
	size  int
}

func (f *fakeKMS) GenerateDataKeyWithContext(_ aws.Context, in *kms.GenerateDataKeyInput, _ ...request.Option) (*kms.GenerateDataKeyOutput, error) {
	f.calls.Inc()
	if aws.StringValue(in.KeySpec) != kms.DataKeySpecAes256 {
		return nil, errors.New("unexpected key spec")
	}
	return &kms.GenerateDataKeyOutput{Plaintext: make([]byte, f.size)}, nil
}

func TestParseLocation(t *testing.T) {
	loc, err := ParseLocation("s3://bucket/some/prefix")
	require.NoError(t, err)
	assert.Equal(t, Location{Bucket: "bucket", Prefix: "some/prefix/"}, loc)
	assert.Equal(t, "s3://bucket/some/prefix/", loc.String())
	assert.Equal(t, "some/prefix/a.gz", loc.Key("a.gz"))

	root, err := ParseLocation("s3://bucket")
	require.NoError(t, err)
	assert.Equal(t, "", root.Prefix)
	assert.Equal(t, "run/", root.Join("run").Prefix)

	for _, raw := range []string{"bucket/prefix", "https://bucket/prefix", "s3:///prefix"} {
		_, err := ParseLocation(raw)
		assert.Error(t, err, raw)
	}
}

func TestArea_TablePaths(t *testing.T) {
	root, err := ParseLocation("s3://bucket/staging/")
	require.NoError(t, err)

	area := NewArea(root, LocalKeyProvider{})
	tbl := area.Table("public", "orders")

	want := "s3://bucket/staging/" + area.RunID() + "/public.orders/"
	assert.Equal(t, want, tbl.DataPrefix())
	assert.Equal(t, want+"manifest", tbl.ManifestPath())
	assert.NotEqual(t, area.RunID(), NewArea(root, LocalKeyProvider{}).RunID())
}

func TestTable_KeyIsMemoized(t *testing.T) {
	calls := atomic.NewInt32(0)
	area := NewArea(Location{Bucket: "b"}, NewKMSKeyProvider(&fakeKMS{calls: calls, size: dataKeyBytes}, "alias/test"))
	tbl := area.Table("s", "t")

	first, err := tbl.Key(context.Background())
	require.NoError(t, err)
	second, err := tbl.Key(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), calls.Load())
}

func TestKMSKeyProvider_RejectsWrongSize(t *testing.T) {
	p := NewKMSKeyProvider(&fakeKMS{calls: atomic.NewInt32(0), size: 16}, "alias/test")
	_, err := p.DataKey(context.Background())
	assert.ErrorContains(t, err, "16-byte")
}

func TestLocalKeyProvider(t *testing.T) {
	key, err := LocalKeyProvider{}.DataKey(context.Background())
	require.NoError(t, err)
	raw, err := base64.StdEncoding.DecodeString(key)
	require.NoError(t, err)
	assert.Len(t, raw, dataKeyBytes)
}

func TestStore_Fetch(t *testing.T) {
	store := NewStore(&fakeS3{objects: map[string]string{"jobs/job.json": `{"a":1}`}})

	data, err := store.Fetch(context.Background(), "s3://bucket/jobs/job.json")
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(data))

	_, err = store.Fetch(context.Background(), "s3://bucket/jobs/missing.json")
	assert.ErrorContains(t, err, "NoSuchKey")

	_, err = store.Fetch(context.Background(), "s3://bucket")
	assert.ErrorContains(t, err, "missing key")
}

func TestStore_DeletePrefix(t *testing.T) {
	ctx, _ := testutil.LoggerContext(t)
	client := &fakeS3{objects: map[string]string{
		"run/s.t/0000_part_00": "",
		"run/s.t/manifest":     "",
		"run/s.u/manifest":     "",
	}}
	store := NewStore(client)

	n, err := store.DeletePrefix(ctx, Location{Bucket: "b", Prefix: "run/s.t/"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, map[string]string{"run/s.u/manifest": ""}, client.objects)
}

func TestStore_DeletePrefixBatchesAndCollectsErrors(t *testing.T) {
	ctx, _ := testutil.LoggerContext(t)
	client := &fakeS3{objects: map[string]string{}, failKeys: map[string]bool{"p/bad-1": true, "p/bad-2": true}}
	for i := 0; i < deleteBatchSize+5; i++ {
		client.objects[fmt.Sprintf("p/part-%04d", i)] = ""
	}
	client.objects["p/bad-1"] = ""
	client.objects["p/bad-2"] = ""

	n, err := NewStore(client).DeletePrefix(ctx, Location{Bucket: "b", Prefix: "p/"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "p/bad-1")
	assert.Contains(t, err.Error(), "p/bad-2")
	assert.Equal(t, deleteBatchSize+5, n)
	assert.Len(t, client.deletions, 2)
	assert.Len(t, client.objects, 2)
}

func TestStore_DeletePrefixRefusesBucketRoot(t *testing.T) {
	ctx, _ := testutil.LoggerContext(t)
	_, err := NewStore(&fakeS3{}).DeletePrefix(ctx, Location{Bucket: "b"})
	assert.ErrorContains(t, err, "whole bucket")
}
