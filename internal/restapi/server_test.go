package restapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaykit/krest/internal/broker"
	"github.com/relaykit/krest/internal/clock"
	"github.com/relaykit/krest/internal/consumer"
	"github.com/relaykit/krest/internal/offsetcommit"
)

// stubClient is a broker.Client every test here expects never to be
// dialed: every request either fails at the Manager lookup (NotFound) or
// only exercises instance bookkeeping, never an actual Subscribe.
type stubClient struct{}

func (stubClient) Subscribe(ctx context.Context, group, topic string) (broker.Iterator, error) {
	return nil, assertNever{}
}
func (stubClient) Close() error { return nil }

type assertNever struct{}

func (assertNever) Error() string { return "stubClient.Subscribe should never be called in these tests" }

type stubCommitter struct {
	committed bool
}

func (s *stubCommitter) Commit(ctx context.Context, group, topic string, offsets offsetcommit.Offsets) error {
	s.committed = true
	return nil
}
func (s *stubCommitter) Close() error { return nil }

func newTestServer(t *testing.T) *Server {
	t.Helper()
	mgr := consumer.NewManager(consumer.DefaultProxyConfig(), 2, clock.Real(), nil)
	return NewServer(mgr, stubClient{}, &stubCommitter{}, nil, nil)
}

func doRequest(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestCreateConsumerThenDeleteRoundTrip(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/consumers/g1", createConsumerRequest{ID: "c1", Format: "binary"})
	require.Equal(t, http.StatusOK, rec.Code)

	var created createConsumerResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "c1", created.InstanceID)

	rec = doRequest(t, srv, http.MethodDelete, "/consumers/g1/c1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestCreateConsumerDuplicateIDReturnsConflict(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/consumers/g1", createConsumerRequest{ID: "dup", Format: "binary"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, srv, http.MethodPost, "/consumers/g1", createConsumerRequest{ID: "dup", Format: "binary"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	var body errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, string(consumer.AlreadyExists), body.Kind)
}

func TestDeleteUnknownConsumerReturnsNotFound(t *testing.T) {
	srv := newTestServer(t)
	rec := doRequest(t, srv, http.MethodDelete, "/consumers/g1/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReadTopicUnknownInstanceReturnsNotFound(t *testing.T) {
	srv := newTestServer(t)
	rec := doRequest(t, srv, http.MethodGet, "/consumers/g1/instances/missing/topics/orders/records", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCommitOffsetsUnknownInstanceReturnsNotFound(t *testing.T) {
	srv := newTestServer(t)
	rec := doRequest(t, srv, http.MethodPost, "/consumers/g1/instances/missing/offsets", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateConsumerBadJSONReturnsBadRequest(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/consumers/g1", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateConsumerUnsupportedFormatReturnsBadRequest(t *testing.T) {
	srv := newTestServer(t)
	rec := doRequest(t, srv, http.MethodPost, "/consumers/g1", createConsumerRequest{ID: "c1", Format: "protobuf"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, string(consumer.InvalidArgument), body.Kind)
}

func TestUnroutedPathIsNotFound(t *testing.T) {
	srv := newTestServer(t)
	rec := doRequest(t, srv, http.MethodGet, "/consumers/g1/instances/x/unknown", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatusForKindMapping(t *testing.T) {
	cases := []struct {
		kind consumer.Kind
		want int
	}{
		{consumer.NotFound, http.StatusNotFound},
		{consumer.AlreadySubscribed, http.StatusConflict},
		{consumer.AlreadyExists, http.StatusConflict},
		{consumer.InvalidArgument, http.StatusBadRequest},
		{consumer.ShuttingDown, http.StatusServiceUnavailable},
		{consumer.BrokerInitFailure, http.StatusBadGateway},
		{consumer.BrokerIOFailure, http.StatusBadGateway},
		{consumer.Kind("unmapped"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, statusForKind(c.kind), "kind=%s", c.kind)
	}
}
