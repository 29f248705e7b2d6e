// Package restapi exposes the consumer Manager Facade over HTTP, the
// out-of-scope collaborator spec.md §1 names as "the HTTP surface and
// JSON (de)serialization". It is built the same way the teacher exposes
// ManagerService in src/consumer/manager_service.go: a plain
// net/http.ServeMux, manual JSON encode/decode, no framework, zap logging
// per request. This layer never touches Topic State or the scheduler
// directly — only the Manager Facade.
package restapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/relaykit/krest/internal/broker"
	"github.com/relaykit/krest/internal/config"
	"github.com/relaykit/krest/internal/consumer"
	"github.com/relaykit/krest/internal/format"
	"github.com/relaykit/krest/internal/offsetcommit"
)

// Server adapts consumer.Manager's methods to REST routes. It holds the
// one broker.Client the process was bootstrapped with — spec.md §1 puts
// broker connection construction out of scope for the core, and a single
// proxy process dials exactly one backend (Kafka or Kinesis), so every
// created instance shares it the way cmd/krestproxy wires it up.
type Server struct {
	mgr       *consumer.Manager
	client    broker.Client
	committer offsetcommit.Committer
	cfg       *config.Config
	logger    *zap.Logger
	mux       *http.ServeMux
}

// NewServer builds a Server routing onto mgr, handing client and committer
// to every instance it creates. cfg supplies the YAML instance_overrides
// createConsumer falls back to when the request body doesn't set a field
// itself; it may be nil, in which case only the request body's overrides
// apply.
func NewServer(mgr *consumer.Manager, client broker.Client, committer offsetcommit.Committer, cfg *config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{mgr: mgr, client: client, committer: committer, cfg: cfg, logger: logger.Named("restapi"), mux: http.NewServeMux()}
	s.mux.HandleFunc("/consumers/", s.routeConsumers)
	return s
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

type createConsumerRequest struct {
	ID       string      `json:"id"`
	Name     string      `json:"name"`
	Format   format.Name `json:"format"`
	Instance struct {
		ResponseMinBytes *int64 `json:"response_min_bytes"`
		RequestWaitMs    *int64 `json:"request_wait_ms"`
	} `json:"instance_overrides"`
}

type createConsumerResponse struct {
	InstanceID string `json:"instance_id"`
}

type readRecord struct {
	Partition int64  `json:"partition"`
	Offset    int64  `json:"offset"`
	Key       any    `json:"key,omitempty"`
	Value     any    `json:"value"`
	Timestamp *int64 `json:"timestamp,omitempty"`
}

type commitOffsetsResponse struct {
	Committed bool `json:"committed"`
}

type errorResponse struct {
	Kind    string `json:"error_code"`
	Message string `json:"message"`
}

// routeConsumers dispatches by method and path shape under /consumers/.
// Kept as one handler, following manager_service.go's one-handler-per-
// verb style collapsed onto REST path segments rather than the teacher's
// flat /checkpoint//assign/ routes, since net/http's pre-1.22 ServeMux
// (what the teacher's go.mod-era stdlib offers) has no path-parameter
// matching of its own.
func (s *Server) routeConsumers(w http.ResponseWriter, r *http.Request) {
	segs := splitPath(r.URL.Path)
	// segs[0] == "consumers"
	if len(segs) == 2 && r.Method == http.MethodPost {
		group := segs[1]
		stateCriticalRoute(func(w http.ResponseWriter, r *http.Request) {
			s.createConsumer(w, r, group)
		}, s.logger)(w, r)
		return
	}
	if len(segs) == 5 && segs[2] == "instances" && segs[4] == "offsets" && r.Method == http.MethodPost {
		s.commitOffsets(w, r, segs[1], segs[3])
		return
	}
	if len(segs) == 3 && segs[2] != "" && r.Method == http.MethodDelete {
		group, id := segs[1], segs[2]
		stateCriticalRoute(func(w http.ResponseWriter, r *http.Request) {
			s.deleteConsumer(w, r, group, id)
		}, s.logger)(w, r)
		return
	}
	if len(segs) == 7 && segs[2] == "instances" && segs[4] == "topics" && segs[6] == "records" && r.Method == http.MethodGet {
		s.readTopic(w, r, segs[1], segs[3], segs[5])
		return
	}
	http.NotFound(w, r)
}

func (s *Server) createConsumer(w http.ResponseWriter, r *http.Request, group string) {
	defer r.Body.Close()
	var req createConsumerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	overrides := consumer.InstanceOverrides{
		ResponseMinBytes: req.Instance.ResponseMinBytes,
		RequestWaitMs:    req.Instance.RequestWaitMs,
	}

	lookupID := req.ID
	if lookupID == "" {
		lookupID = req.Name
	}
	if lookupID != "" && s.cfg != nil {
		if cfgOverride, ok := s.cfg.OverrideFor(group, lookupID); ok {
			if overrides.ResponseMinBytes == nil {
				overrides.ResponseMinBytes = cfgOverride.ResponseMinBytes
			}
			if overrides.RequestWaitMs == nil {
				overrides.RequestWaitMs = cfgOverride.RequestWaitMs
			}
		}
	}

	id, err := s.mgr.CreateConsumer(consumer.CreateConsumerRequest{
		Group:     group,
		ID:        req.ID,
		Name:      req.Name,
		Format:    req.Format,
		Client:    s.client,
		Committer: s.committer,
		Overrides: overrides,
	})
	if err != nil {
		s.writeConsumerError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, createConsumerResponse{InstanceID: id})
}

func (s *Server) readTopic(w http.ResponseWriter, r *http.Request, group, id, topic string) {
	q := r.URL.Query()
	maxBytes := parseInt64(q.Get("max_bytes"), 0)
	requestTimeoutMs := parseInt64(q.Get("request_timeout_ms"), 0)

	type result struct {
		records []consumer.ConsumerRecord
		err     error
	}
	done := make(chan result, 1)

	s.mgr.ReadTopic(r.Context(), group, id, topic, maxBytes, requestTimeoutMs, func(records []consumer.ConsumerRecord, err error) {
		done <- result{records, err}
	})

	res := <-done
	if res.err != nil {
		s.writeConsumerError(w, res.err)
		return
	}

	out := make([]readRecord, 0, len(res.records))
	for _, rec := range res.records {
		var ts *int64
		if !rec.Timestamp.IsZero() {
			ms := rec.Timestamp.UnixMilli()
			ts = &ms
		}
		out = append(out, readRecord{
			Partition: int64(rec.Partition),
			Offset:    rec.Offset,
			Key:       rec.Key,
			Value:     rec.Value,
			Timestamp: ts,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) commitOffsets(w http.ResponseWriter, r *http.Request, group, id string) {
	type result struct{ err error }
	done := make(chan result, 1)
	s.mgr.CommitOffsets(r.Context(), group, id, func(err error) { done <- result{err} })

	res := <-done
	if res.err != nil {
		s.writeConsumerError(w, res.err)
		return
	}
	writeJSON(w, http.StatusOK, commitOffsetsResponse{Committed: true})
}

func (s *Server) deleteConsumer(w http.ResponseWriter, r *http.Request, group, id string) {
	if err := s.mgr.DeleteConsumer(group, id); err != nil {
		s.writeConsumerError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeConsumerError(w http.ResponseWriter, err error) {
	ce, ok := consumer.AsError(err)
	if !ok {
		s.logger.Error("unmapped error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	status := statusForKind(ce.Kind)
	if status >= 500 {
		s.logger.Error("read task failed", zap.String("kind", string(ce.Kind)), zap.Error(err))
	}
	writeError(w, status, string(ce.Kind), ce.Error())
}

// statusForKind maps spec.md §7's taxonomy to HTTP status codes.
func statusForKind(k consumer.Kind) int {
	switch k {
	case consumer.NotFound:
		return http.StatusNotFound
	case consumer.AlreadySubscribed, consumer.AlreadyExists:
		return http.StatusConflict
	case consumer.InvalidArgument:
		return http.StatusBadRequest
	case consumer.ShuttingDown:
		return http.StatusServiceUnavailable
	case consumer.BrokerInitFailure, consumer.BrokerIOFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, errorResponse{Kind: kind, Message: message})
}

func splitPath(p string) []string {
	var segs []string
	start := 0
	for i := 0; i <= len(p); i++ {
		if i == len(p) || p[i] == '/' {
			if i > start {
				segs = append(segs, p[start:i])
			}
			start = i + 1
		}
	}
	return segs
}

func parseInt64(s string, def int64) int64 {
	if s == "" {
		return def
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return def
	}
	return v
}
