package servicer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/etj-sad/kassia/internal/kasserr"
)

func fakeClient(t *testing.T, responses ...func(args []string) (string, string, int, error)) *Client {
	t.Helper()
	i := 0
	c := New()
	c.run = func(ctx context.Context, name string, args []string) (string, string, int, error) {
		if i >= len(responses) {
			t.Fatalf("unexpected invocation %d: %v", i, args)
		}
		resp := responses[i]
		i++
		return resp(args)
	}
	return c
}

func TestGetImageInfoSuccess(t *testing.T) {
	c := fakeClient(t, func(args []string) (string, string, int, error) {
		return "Index : 1\nName : main\n", "", 0, nil
	})
	err := c.GetImageInfo(context.Background(), "w.wim")
	assert.NoError(t, err)
}

func TestGetImageInfoMissingIndexFails(t *testing.T) {
	c := fakeClient(t, func(args []string) (string, string, int, error) {
		return "Index : 2\n", "", 0, nil
	})
	err := c.GetImageInfo(context.Background(), "w.wim")
	require.Error(t, err)

	var integrity *kasserr.IntegrityFailure
	require.True(t, errors.As(err, &integrity))
}

func TestMountRequiresWindowsDirectory(t *testing.T) {
	dir := t.TempDir()
	c := fakeClient(t, func(args []string) (string, string, int, error) {
		return "", "", 0, nil
	})

	err := c.Mount(context.Background(), "w.wim", dir)
	require.Error(t, err)

	require.NoError(t, os.Mkdir(filepath.Join(dir, "Windows"), 0o755))
	c2 := fakeClient(t, func(args []string) (string, string, int, error) {
		return "", "", 0, nil
	})
	err = c2.Mount(context.Background(), "w.wim", dir)
	assert.NoError(t, err)
}

func TestAddPackageRetriesThenSucceeds(t *testing.T) {
	calls := 0
	c := New()
	c.MaxRetries = 2
	c.RetryBackoff = time.Millisecond
	c.run = func(ctx context.Context, name string, args []string) (string, string, int, error) {
		calls++
		if calls < 3 {
			return "", "failure", 1, nil
		}
		return "", "", 0, nil
	}

	err := c.AddPackage(context.Background(), "p.cab", "M:\\")
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestAddPackageExhaustsRetries(t *testing.T) {
	calls := 0
	c := New()
	c.MaxRetries = 2
	c.RetryBackoff = time.Millisecond
	c.run = func(ctx context.Context, name string, args []string) (string, string, int, error) {
		calls++
		return "", "still failing", 1, nil
	}

	err := c.AddPackage(context.Background(), "p.cab", "M:\\")
	require.Error(t, err)
	assert.Equal(t, 3, calls)

	var sf *kasserr.ServicerFailure
	require.True(t, errors.As(err, &sf))
}

func TestUnmountDiscardUsesDiscardFlag(t *testing.T) {
	var seenArgs []string
	c := fakeClient(t, func(args []string) (string, string, int, error) {
		seenArgs = args
		return "", "", 0, nil
	})
	require.NoError(t, c.Unmount(context.Background(), "M:\\", false))
	assert.Contains(t, seenArgs, "/Discard")
}

func TestExportValidatesDestination(t *testing.T) {
	c := fakeClient(t,
		func(args []string) (string, string, int, error) { return "", "", 0, nil },              // Export-Image
		func(args []string) (string, string, int, error) { return "Index : 1\n", "", 0, nil }, // GetImageInfo on dest
	)
	err := c.Export(context.Background(), "src.wim", "dst.wim")
	assert.NoError(t, err)
}
