package backup

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/dmitrijs2005/nutkeeper/internal/common"
	"github.com/dmitrijs2005/nutkeeper/internal/cryptox"
	"github.com/dmitrijs2005/nutkeeper/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func newFakeS3() *fakeS3 { return &fakeS3{objects: map[string][]byte{}} }

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

type fakeSource struct {
	key      []byte
	keyErr   error
	state    models.WalletState
	imported []models.WalletState
}

func (f *fakeSource) BackupKey() ([]byte, error) { return f.key, f.keyErr }

func (f *fakeSource) ExportState(ctx context.Context) (models.WalletState, error) {
	return f.state, nil
}

func (f *fakeSource) ImportState(ctx context.Context, st models.WalletState) (models.ImportSummary, error) {
	f.imported = append(f.imported, st)
	var sum models.ImportSummary
	for _, ps := range st.Proofs {
		sum.Proofs += len(ps)
		sum.Amount += ps.Amount()
	}
	return sum, nil
}

func testKey(t *testing.T) []byte {
	t.Helper()
	k, err := cryptox.DeriveKey([]byte("backup test seed"), cryptox.PurposeBackup)
	require.NoError(t, err)
	return k
}

func TestExportImport(t *testing.T) {
	ctx := context.Background()
	fs := newFakeS3()
	store := &S3Store{api: fs, bucket: "nutkeeper"}

	src := &fakeSource{key: testKey(t), state: models.WalletState{
		Version:   1,
		CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Mints:     []string{"https://mint.example"},
		Proofs: map[string]models.Proofs{
			"https://mint.example": {{Amount: 8, ID: "009a1f293253e41e", Secret: "s1", C: "02aa"}},
		},
	}}
	svc := NewService(src, store, nil)

	name, err := svc.Export(ctx)
	require.NoError(t, err)
	assert.Equal(t, ObjectKey(src.key), name)
	assert.Regexp(t, `^wallets/[0-9a-f]{16}\.bin$`, name)

	blob := fs.objects["nutkeeper/"+name]
	require.NotEmpty(t, blob)
	assert.NotContains(t, string(blob), "mint.example")

	sum, err := svc.Import(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(8), sum.Amount)
	require.Len(t, src.imported, 1)
	assert.Equal(t, src.state.Mints, src.imported[0].Mints)
	assert.True(t, src.state.CreatedAt.Equal(src.imported[0].CreatedAt))
}

func TestImport_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("missing object", func(t *testing.T) {
		svc := NewService(&fakeSource{key: testKey(t)}, &S3Store{api: newFakeS3(), bucket: "b"}, nil)
		_, err := svc.Import(ctx)
		assert.ErrorIs(t, err, common.ErrNotFound)
	})

	t.Run("wrong key", func(t *testing.T) {
		fs := newFakeS3()
		store := &S3Store{api: fs, bucket: "b"}
		src := &fakeSource{key: testKey(t), state: models.WalletState{Version: 1}}
		_, err := NewService(src, store, nil).Export(ctx)
		require.NoError(t, err)

		other := make([]byte, cryptox.KeySize)
		// same object name, different key
		fs.objects["b/"+ObjectKey(other)] = fs.objects["b/"+ObjectKey(src.key)]
		_, err = NewService(&fakeSource{key: other}, store, nil).Import(ctx)
		require.Error(t, err)
	})

	t.Run("no seed", func(t *testing.T) {
		svc := NewService(&fakeSource{keyErr: common.ErrNoSeed}, &S3Store{api: newFakeS3(), bucket: "b"}, nil)
		_, err := svc.Import(ctx)
		assert.ErrorIs(t, err, common.ErrNoSeed)
		_, err = svc.Export(ctx)
		assert.ErrorIs(t, err, common.ErrNoSeed)
	})
}

func TestExport_UploadError(t *testing.T) {
	fs := newFakeS3()
	fs.putErr = errors.New("access denied")
	svc := NewService(&fakeSource{key: testKey(t), state: models.WalletState{Version: 1}}, &S3Store{api: fs, bucket: "b"}, nil)

	_, err := svc.Export(context.Background())
	assert.ErrorContains(t, err, "access denied")
}

func TestNewS3Store(t *testing.T) {
	_, err := NewS3Store(context.Background(), S3Config{})
	assert.Error(t, err)

	s, err := NewS3Store(context.Background(), S3Config{
		Bucket: "nutkeeper", Region: "us-east-1", Endpoint: "http://localhost:9000",
		AccessKey: "minio", SecretKey: "minio123",
	})
	require.NoError(t, err)
	assert.Equal(t, "nutkeeper", s.bucket)
}
