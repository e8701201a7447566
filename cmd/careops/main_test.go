package main

import (
	"bytes"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albapepper/carebeat/internal/scheduler"
)

func TestVAPIDCommandPrintsKeyPair(t *testing.T) {
	var out bytes.Buffer
	cmd := vapidCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{})
	require.NoError(t, cmd.Execute())

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "VAPID_PUBLIC_KEY="))
	assert.True(t, strings.HasPrefix(lines[1], "VAPID_PRIVATE_KEY="))
	assert.Greater(t, len(lines[0]), len("VAPID_PUBLIC_KEY="))
}

func TestSchedulersCommandListsIntervals(t *testing.T) {
	var out bytes.Buffer
	cmd := schedulersCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{})
	require.NoError(t, cmd.Execute())

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 5)
	assert.True(t, strings.HasPrefix(lines[0], scheduler.NameMedicine))
	assert.True(t, strings.HasSuffix(lines[0], "every 1m0s"))
	assert.True(t, strings.HasSuffix(lines[3], "every 1h0m0s"))
	assert.True(t, strings.HasSuffix(lines[4], "every 24h0m0s"))
}

func TestSelectEngines(t *testing.T) {
	set := scheduler.NewSet(scheduler.Deps{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, scheduler.Config{Location: time.UTC})

	all, err := selectEngines(set, nil, true)
	require.NoError(t, err)
	assert.Len(t, all, 5)

	some, err := selectEngines(set, []string{scheduler.NameRefill, scheduler.NameMedicine}, false)
	require.NoError(t, err)
	require.Len(t, some, 2)
	assert.Equal(t, scheduler.NameRefill, some[0].Name())

	_, err = selectEngines(set, []string{"nope"}, false)
	assert.Error(t, err)
}

func TestTickRequiresAName(t *testing.T) {
	cmd := tickCmd()
	cmd.SetArgs([]string{})
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	assert.Error(t, cmd.Execute())
}
