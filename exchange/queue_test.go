package exchange

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/machinefabric/tncharness-go/tnc"
)

var okType = tnc.NewMessageType(tnc.VendorTCGNew, 254)

func TestQueueRoundTripPreservesOrder(t *testing.T) {
	q := NewQueue(DefaultLimits())
	require.True(t, q.IsEmpty())

	require.NoError(t, q.Enqueue(NewBasic(okType, []byte("one"))))
	require.NoError(t, q.Enqueue(NewHealth([]byte("two"))))
	require.NoError(t, q.Enqueue(NewExtended(0, 7, 3, []byte("three"), 1, 2)))
	assert.False(t, q.IsEmpty())
	assert.Equal(t, 0, q.Count(), "snapshot is empty before the first swap")

	q.Swap()
	assert.True(t, q.IsEmpty())
	require.Equal(t, 3, q.Count())
	assert.Equal(t, uint64(1), q.Generation())

	m0, ok := q.Get(0)
	require.True(t, ok)
	assert.Equal(t, CategoryBasic, m0.Category)
	assert.Equal(t, okType, m0.Type)
	assert.Equal(t, []byte("one"), m0.Payload)

	m1, _ := q.Get(1)
	assert.Equal(t, CategoryHealth, m1.Category)
	assert.Equal(t, []byte("two"), m1.Payload)

	m2, _ := q.Get(2)
	assert.Equal(t, CategoryExtended, m2.Category)
	assert.Equal(t, tnc.VendorID(7), m2.Vendor)
	assert.Equal(t, tnc.Subtype(3), m2.Subtype)
	assert.Equal(t, tnc.LocalID(1), m2.SourceID)
	assert.Equal(t, tnc.LocalID(2), m2.DestID)

	_, ok = q.Get(3)
	assert.False(t, ok)
	_, ok = q.Get(-1)
	assert.False(t, ok)
}

func TestQueueEnqueueCopiesPayload(t *testing.T) {
	q := NewQueue(DefaultLimits())
	payload := []byte("OK")
	require.NoError(t, q.Enqueue(NewBasic(okType, payload)))
	payload[0] = 'X'

	q.Swap()
	m, _ := q.Get(0)
	assert.Equal(t, []byte("OK"), m.Payload)
}

func TestQueueClearIsIdempotent(t *testing.T) {
	q := NewQueue(DefaultLimits())
	q.Clear()
	assert.Equal(t, 0, q.Count())

	require.NoError(t, q.Enqueue(NewBasic(okType, []byte("x"))))
	q.Swap()
	require.Equal(t, 1, q.Count())

	q.Clear()
	assert.Equal(t, 0, q.Count())
	q.Clear()
	assert.Equal(t, 0, q.Count())
	assert.True(t, q.IsEmpty())
}

func TestQueueSwapReplacesSnapshot(t *testing.T) {
	q := NewQueue(DefaultLimits())
	require.NoError(t, q.Enqueue(NewBasic(okType, []byte("first"))))
	q.Swap()
	require.NoError(t, q.Enqueue(NewBasic(okType, []byte("second"))))
	q.Swap()

	require.Equal(t, 1, q.Count())
	m, _ := q.Get(0)
	assert.Equal(t, []byte("second"), m.Payload)

	q.Swap()
	assert.Equal(t, 0, q.Count(), "swapping an empty active generation leaves an empty snapshot")
}

func TestQueueEnqueueDuringIterationLandsInActive(t *testing.T) {
	q := NewQueue(DefaultLimits())
	require.NoError(t, q.Enqueue(NewBasic(okType, []byte("a"))))
	require.NoError(t, q.Enqueue(NewBasic(okType, []byte("b"))))
	q.Swap()

	for i := 0; i < q.Count(); i++ {
		require.NoError(t, q.Enqueue(NewBasic(okType, []byte("reply"))))
	}
	assert.Equal(t, 2, q.Count())
	assert.Equal(t, 2, q.ActiveCount())
}

func TestQueueLimitsRejectWithoutPartialState(t *testing.T) {
	q := NewQueue(Limits{MaxMessages: 2, MaxMessageSize: 4, MaxActiveBytes: 6})

	err := q.Enqueue(NewBasic(okType, []byte("too long")))
	assert.True(t, errors.Is(err, tnc.ErrOutOfMemory))
	assert.True(t, q.IsEmpty())
	assert.Equal(t, 0, q.ActiveBytes())

	require.NoError(t, q.Enqueue(NewBasic(okType, []byte("abcd"))))
	err = q.Enqueue(NewBasic(okType, []byte("abc")))
	assert.True(t, errors.Is(err, tnc.ErrOutOfMemory), "byte budget")
	assert.Equal(t, 1, q.ActiveCount())
	assert.Equal(t, 4, q.ActiveBytes())

	require.NoError(t, q.Enqueue(NewBasic(okType, []byte("ab"))))
	err = q.Enqueue(NewBasic(okType, nil))
	assert.True(t, errors.Is(err, tnc.ErrOutOfMemory), "message count")
	assert.Equal(t, 2, q.ActiveCount())
}

func TestQueueResetReleasesBothGenerations(t *testing.T) {
	q := NewQueue(DefaultLimits())
	require.NoError(t, q.Enqueue(NewBasic(okType, []byte("a"))))
	q.Swap()
	require.NoError(t, q.Enqueue(NewBasic(okType, []byte("b"))))

	q.Reset()
	assert.True(t, q.IsEmpty())
	assert.Equal(t, 0, q.Count())
	assert.Equal(t, 0, q.ActiveBytes())
}

func TestQueueMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	q := NewQueue(Limits{MaxMessageSize: 1})
	q.SetMetrics(m)

	require.NoError(t, q.Enqueue(NewHealth([]byte("a"))))
	require.Error(t, q.Enqueue(NewHealth([]byte("ab"))))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.MessagesEnqueuedTotal.WithLabelValues("health")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EnqueueFailuresTotal.WithLabelValues("health")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.QueueBytes))

	q.Swap()
	assert.Equal(t, 0.0, testutil.ToFloat64(m.QueueBytes))
}
