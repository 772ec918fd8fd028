//go:build !windows

package hooks

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bluenviron/mtxplayer/internal/conf"
	"github.com/bluenviron/mtxplayer/internal/externalcmd"
	"github.com/bluenviron/mtxplayer/internal/test"
)

func TestOnPlay(t *testing.T) {
	dir := t.TempDir()

	pool := &externalcmd.Pool{}
	pool.Initialize()
	defer pool.Close()

	h := &OnPlay{
		Logger:          test.NilLogger,
		ExternalCmdPool: pool,
		Conf: &conf.Stream{
			Name:              "out",
			SSRC:              1000,
			RunOnPlayStarted:  "printf '%s' $MTX_SOURCE_ID > " + filepath.Join(dir, "started_$MTX_FRAGMENT_ID") + "; sleep 10",
			RunOnPlayFinished: "printf '%s %s' $MTX_STREAM $MTX_SSRC > " + filepath.Join(dir, "finished_$MTX_FRAGMENT_ID"),
		},
	}
	defer h.Close()

	h.OnPlayStarted(3, 42, 1000)

	require.Eventually(t, func() bool {
		byts, err := os.ReadFile(filepath.Join(dir, "started_3"))
		return err == nil && string(byts) == "42"
	}, 5*time.Second, 20*time.Millisecond)

	require.Equal(t, 1, pool.Running())

	h.OnPlayFinished(3, 42, 1000)

	require.Eventually(t, func() bool {
		byts, err := os.ReadFile(filepath.Join(dir, "finished_3"))
		return err == nil && string(byts) == "out 1000"
	}, 5*time.Second, 20*time.Millisecond)

	require.Eventually(t, func() bool {
		return pool.Running() == 0
	}, 5*time.Second, 20*time.Millisecond)
}
