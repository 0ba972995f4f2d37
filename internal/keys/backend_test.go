package keys

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func TestKeyringBackend(t *testing.T) {
	ctx := context.Background()

	t.Run("round trip", func(t *testing.T) {
		keyring.MockInit()
		b := NewKeyringBackend("ai-agent")

		_, err := b.Get(ctx, DataKeySecret)
		require.ErrorIs(t, err, ErrSecretNotFound)

		require.NoError(t, b.Set(ctx, DataKeySecret, "value"))
		v, err := b.Get(ctx, DataKeySecret)
		require.NoError(t, err)
		assert.Equal(t, "value", v)

		// stored under the namespaced service
		raw, err := keyring.Get("ai-agent/"+DataKeySecret, DataKeySecret)
		require.NoError(t, err)
		assert.Equal(t, "value", raw)

		require.NoError(t, b.Delete(ctx, DataKeySecret))
		require.NoError(t, b.Delete(ctx, DataKeySecret), "deleting twice is a no-op")
		_, err = b.Get(ctx, DataKeySecret)
		require.ErrorIs(t, err, ErrSecretNotFound)
	})

	t.Run("inaccessible keychain", func(t *testing.T) {
		keyring.MockInitWithError(errors.New("org.freedesktop.secrets not provided"))
		b := NewKeyringBackend("ai-agent")

		_, err := b.Get(ctx, DataKeySecret)
		require.ErrorIs(t, err, ErrKeyUnavailable)
		require.ErrorIs(t, b.Set(ctx, DataKeySecret, "x"), ErrKeyUnavailable)

		_, err = NewManager(b).GetOrCreateKey(ctx, DefaultNamespace)
		require.ErrorIs(t, err, ErrKeyUnavailable)
	})
}

func newTestFileBackend(t *testing.T, dir, passphrase string) *FileBackend {
	t.Helper()
	b, err := NewFileBackend(dir, passphrase)
	require.NoError(t, err)
	b.costN = 1024
	return b
}

func TestFileBackend(t *testing.T) {
	ctx := context.Background()

	t.Run("requires passphrase", func(t *testing.T) {
		_, err := NewFileBackend(t.TempDir(), "")
		require.ErrorIs(t, err, ErrKeyUnavailable)
	})

	t.Run("round trip across instances", func(t *testing.T) {
		dir := t.TempDir()
		b := newTestFileBackend(t, dir, "correct horse")

		_, err := b.Get(ctx, APITokenSecret)
		require.ErrorIs(t, err, ErrSecretNotFound)

		require.NoError(t, b.Set(ctx, APITokenSecret, "sk-123"))
		require.NoError(t, b.Set(ctx, DataKeySecret, "k"))

		info, err := os.Stat(filepath.Join(dir, VaultFile))
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

		other := newTestFileBackend(t, dir, "correct horse")
		v, err := other.Get(ctx, APITokenSecret)
		require.NoError(t, err)
		assert.Equal(t, "sk-123", v)

		require.NoError(t, other.Delete(ctx, APITokenSecret))
		_, err = b.Get(ctx, APITokenSecret)
		require.ErrorIs(t, err, ErrSecretNotFound)
		_, err = b.Get(ctx, DataKeySecret)
		require.NoError(t, err)
	})

	t.Run("wrong passphrase", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, newTestFileBackend(t, dir, "one").Set(ctx, "x", "y"))

		_, err := newTestFileBackend(t, dir, "two").Get(ctx, "x")
		require.ErrorIs(t, err, ErrKeyUnavailable)
	})

	t.Run("rewrites leave only the vault", func(t *testing.T) {
		dir := t.TempDir()
		b := newTestFileBackend(t, dir, "p")
		for _, v := range []string{"a", "b", "c"} {
			require.NoError(t, b.Set(ctx, "x", v))
		}

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, VaultFile, entries[0].Name())

		v, err := newTestFileBackend(t, dir, "p").Get(ctx, "x")
		require.NoError(t, err)
		assert.Equal(t, "c", v)
	})

	t.Run("insecure permissions", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, newTestFileBackend(t, dir, "p").Set(ctx, "x", "y"))
		require.NoError(t, os.Chmod(filepath.Join(dir, VaultFile), 0o644))

		_, err := newTestFileBackend(t, dir, "p").Get(ctx, "x")
		require.ErrorIs(t, err, ErrKeyUnavailable)
		assert.Contains(t, err.Error(), "insecure permissions")
	})
}

type fakeSSM struct {
	params map[string]string
	err    error
}

func (f *fakeSSM) GetParameter(_ context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	v, ok := f.params[*in.Name]
	if !ok {
		return nil, &types.ParameterNotFound{}
	}
	return &ssm.GetParameterOutput{Parameter: &types.Parameter{Name: in.Name, Value: &v}}, nil
}

func (f *fakeSSM) PutParameter(_ context.Context, in *ssm.PutParameterInput, _ ...func(*ssm.Options)) (*ssm.PutParameterOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.params[*in.Name] = *in.Value
	return &ssm.PutParameterOutput{}, nil
}

func (f *fakeSSM) DeleteParameter(_ context.Context, in *ssm.DeleteParameterInput, _ ...func(*ssm.Options)) (*ssm.DeleteParameterOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	if _, ok := f.params[*in.Name]; !ok {
		return nil, &types.ParameterNotFound{}
	}
	delete(f.params, *in.Name)
	return &ssm.DeleteParameterOutput{}, nil
}

func TestSSMBackend(t *testing.T) {
	ctx := context.Background()

	t.Run("validates construction", func(t *testing.T) {
		_, err := NewSSMBackend(nil, "/ai-agent")
		require.Error(t, err)
		_, err = NewSSMBackend(&fakeSSM{}, " / ")
		require.Error(t, err)
	})

	t.Run("round trip under prefix", func(t *testing.T) {
		api := &fakeSSM{params: map[string]string{}}
		b, err := NewSSMBackend(api, "/ai-agent/")
		require.NoError(t, err)

		_, err = b.Get(ctx, DataKeySecret)
		require.ErrorIs(t, err, ErrSecretNotFound)

		require.NoError(t, b.Set(ctx, DataKeySecret, "v"))
		assert.Equal(t, "v", api.params["/ai-agent/data_key"])

		v, err := b.Get(ctx, DataKeySecret)
		require.NoError(t, err)
		assert.Equal(t, "v", v)

		require.NoError(t, b.Delete(ctx, DataKeySecret))
		require.NoError(t, b.Delete(ctx, DataKeySecret))
	})

	t.Run("access denied is unavailable", func(t *testing.T) {
		b, err := NewSSMBackend(&fakeSSM{err: errors.New("AccessDeniedException")}, "/ai-agent")
		require.NoError(t, err)
		_, err = b.Get(ctx, DataKeySecret)
		require.ErrorIs(t, err, ErrKeyUnavailable)
	})
}
