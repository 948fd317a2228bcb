package reference

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/machinefabric/tncharness-go/handshake"
	"github.com/machinefabric/tncharness-go/tnc"
)

func run(t *testing.T, markerPath string) (*Verifier, *handshake.Result) {
	t.Helper()
	log, _ := logtest.NewNullLogger()
	verifier := NewVerifier()
	res, err := handshake.NewCoordinator(NewCollector(markerPath), verifier, handshake.Options{Logger: log}).
		Run(context.Background())
	require.NoError(t, err)
	return verifier, res
}

func TestReferencePairAllowsWhenMarkerExists(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "OK")
	require.NoError(t, os.WriteFile(marker, nil, 0o600))

	_, res := run(t, marker)
	assert.Equal(t, tnc.StateAccessAllowed, res.State)
	assert.Equal(t, tnc.EvaluationCompliant, res.Recommendation.Evaluation)
	assert.False(t, res.Solicited)
}

func TestReferencePairDeniesWhenMarkerMissing(t *testing.T) {
	_, res := run(t, filepath.Join(t.TempDir(), "missing"))
	assert.Equal(t, tnc.StateAccessDenied, res.State)
	assert.Equal(t, tnc.ActionNoAccess, res.Recommendation.Action)
	assert.Equal(t, tnc.EvaluationMajorNoncompliant, res.Recommendation.Evaluation)
}

func TestIsOK(t *testing.T) {
	assert.True(t, isOK([]byte("OK\x00")))
	assert.True(t, isOK([]byte("OK\x00trailing\x00")))
	assert.False(t, isOK([]byte("OK")), "must be NUL terminated")
	assert.False(t, isOK([]byte("Problem\x00")))
	assert.False(t, isOK(nil))
}

func TestVerifierRejectsOtherTypes(t *testing.T) {
	v := NewVerifier()
	err := v.ReceiveMessage(0, 0, []byte("OK\x00"), MessageType+1)
	assert.True(t, errors.Is(err, tnc.ErrInvalidParameter))
	_, ok := v.Recommendation(0)
	assert.False(t, ok)
}

func TestUnboundPluginsFail(t *testing.T) {
	assert.Error(t, NewCollector("").BeginHandshake(0, 0))
	assert.Error(t, NewVerifier().SolicitRecommendation(0, 0))
}

func TestNegotiateOnlyVersionOne(t *testing.T) {
	v, err := NewCollector("").Initialize(0, 1, 3)
	require.NoError(t, err)
	assert.Equal(t, tnc.Version1, v)

	_, err = NewVerifier().Initialize(0, 2, 3)
	assert.True(t, errors.Is(err, tnc.ErrVersionMismatch))
}
