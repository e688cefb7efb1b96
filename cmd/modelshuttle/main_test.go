package main

import (
	"os"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/mdouchement/modelshuttle/internal/model"
	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfirm(t *testing.T) {
	cases := map[string]bool{
		"y\n":   true,
		"YES\n": true,
		" y ":   true,
		"n\n":   false,
		"\n":    false,
		"":      false,
		"maybe": false,
	}
	for answer, expected := range cases {
		assert.Equal(t, expected, confirm(strings.NewReader(answer), ""), "%q", answer)
	}
}

func TestAbbrev(t *testing.T) {
	assert.Equal(t, "0123456789ab", abbrev("0123456789abcdef"))
	assert.Equal(t, "short", abbrev("short"))
}

func TestTrack(t *testing.T) {
	ch := make(chan model.Progress, 8)
	done := track(ch)

	d := digest.FromString("weights")
	ch <- model.Progress{Stage: model.StagePack}
	ch <- model.Progress{Stage: model.StagePack, Digest: d, BytesDone: 3, BytesTotal: 7}
	ch <- model.Progress{Stage: model.StagePack, Digest: d, BytesDone: 7, BytesTotal: 7}
	ch <- model.Progress{Stage: model.StageDone}
	close(ch)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("progress rendering did not stop")
	}
}

func TestInterruptible(t *testing.T) {
	ctx, stop := interruptible()
	defer stop()

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGINT))

	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("context not canceled on interrupt")
	}
}
