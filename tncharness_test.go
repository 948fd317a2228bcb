package tncharness

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/machinefabric/tncharness-go/tnc"
	"github.com/machinefabric/tncharness-go/wire"
)

func quietOptions() Options {
	log, _ := logtest.NewNullLogger()
	return Options{Logger: log}
}

func TestRunScenario(t *testing.T) {
	res, err := RunScenario(context.Background(), filepath.Join("scenario", "testdata", "allow_on_ok.yaml"), quietOptions())
	require.NoError(t, err)
	assert.Equal(t, tnc.StateAccessAllowed, res.State)
}

func TestRunScenarioPropagatesRunErrors(t *testing.T) {
	_, err := RunScenario(context.Background(), filepath.Join("scenario", "testdata", "version_mismatch.yaml"), quietOptions())
	assert.True(t, errors.Is(err, tnc.ErrVersionMismatch))
}

func TestRunScenarioMissingFile(t *testing.T) {
	res, err := RunScenario(context.Background(), "does-not-exist.yaml", quietOptions())
	assert.Error(t, err)
	assert.Nil(t, res)
}

func TestRunReferenceRecordsTranscript(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "OK")
	require.NoError(t, os.WriteFile(marker, nil, 0o600))

	var buf bytes.Buffer
	opts := quietOptions()
	opts.TraceID = uuid.New()
	opts.Tracer = NewRecorder(&buf, opts.TraceID)

	res, err := RunReference(context.Background(), marker, opts)
	require.NoError(t, err)
	assert.Equal(t, tnc.StateAccessAllowed, res.State)
	assert.Equal(t, opts.TraceID, res.TraceID)

	frames, err := ReadTranscript(&buf)
	require.NoError(t, err)
	require.NotEmpty(t, frames)
	assert.Equal(t, wire.KindHello, frames[0].Kind)
	assert.Equal(t, wire.KindResult, frames[len(frames)-1].Kind)
}
