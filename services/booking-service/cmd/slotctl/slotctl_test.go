package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestWindowsCommand(t *testing.T) {
	out, err := run(t, "windows", "--date", "2025-03-11", "--timezone", "UTC")
	require.NoError(t, err)
	assert.Contains(t, out, "06:00 UTC")
	assert.Contains(t, out, "21:00 UTC")
	assert.Equal(t, 3, strings.Count(out, "\n"))
}

func TestSlotsCommandAroundBooking(t *testing.T) {
	out, err := run(t, "slots", "--date", "2025-03-11", "--timezone", "UTC", "--duration", "1h", "--booked", "06:30-07:30", "--booked", "18:00-21:00")
	require.NoError(t, err)
	// Morning is fully blocked; the evening leaves only 17:30-18:00 which is too short.
	assert.Contains(t, out, "0 slot(s)")

	out, err = run(t, "slots", "--date", "2025-03-11", "--timezone", "UTC", "--duration", "1h")
	require.NoError(t, err)
	assert.Contains(t, out, "16 slot(s)")
}

func TestSlotsCommandRejectsBadInput(t *testing.T) {
	_, err := run(t, "slots", "--date", "2025-03-11", "--booked", "7pm")
	assert.Error(t, err)

	_, err = run(t, "slots", "--date", "2025-03-11", "--step", "0s")
	assert.Error(t, err)

	_, err = run(t, "windows", "--date", "tomorrow")
	assert.Error(t, err)
}

func TestQuoteCommand(t *testing.T) {
	out, err := run(t, "quote", "--custom", "--minutes", "90", "--people", "7", "--portrait", "family")
	require.NoError(t, err)
	assert.Contains(t, out, "Family surcharge")
	assert.Contains(t, out, "400.00")

	out, err = run(t, "quote", "--package", "classic", "--add-on", "rush-edit")
	require.NoError(t, err)
	assert.Contains(t, out, "375.00")

	_, err = run(t, "quote", "--consultation", "--add-on", "print-set")
	assert.Error(t, err)

	_, err = run(t, "quote")
	assert.Error(t, err)
}
