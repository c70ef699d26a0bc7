package a2a

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/switchboard-dev/switchboard/pkg/telemetry"
)

// maxBodyBytes caps a single JSON-RPC request body.
const maxBodyBytes = 4 << 20

// Handler exposes the task operations over JSON-RPC 2.0 on a single
// POST endpoint, plus the agent card discovery document. Every
// dispatched request answers HTTP 200; failures travel in the JSON-RPC
// error member, never in the HTTP status line.
type Handler struct {
	router  chi.Router
	card    *AgentCard
	service *Service
}

func NewHandler(card *AgentCard, service *Service) *Handler {
	h := &Handler{card: card, service: service}
	h.buildRouter()
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) buildRouter() {
	r := chi.NewRouter()
	r.Get("/.well-known/agent.json", h.handleAgentCard)
	r.Post("/", h.handleRPC)
	h.router = r
}

func (h *Handler) handleAgentCard(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.card); err != nil {
		h.service.logger.Error("encoding agent card", "error", err)
	}
}

func (h *Handler) handleRPC(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		h.writeResponse(w, NewErrorResponse(nil, NewError(CodeParseError, "")))
		return
	}

	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		telemetry.Metrics.RPCErrorsTotal.WithLabelValues(fmt.Sprint(CodeParseError)).Inc()
		h.writeResponse(w, NewErrorResponse(nil, NewError(CodeParseError, "")))
		return
	}
	if req.JSONRPC != Version || req.Method == "" {
		telemetry.Metrics.RPCErrorsTotal.WithLabelValues(fmt.Sprint(CodeInvalidRequest)).Inc()
		h.writeResponse(w, NewErrorResponse(req.ID, NewError(CodeInvalidRequest, "")))
		return
	}

	ctx, span := telemetry.StartSpan(r.Context(), "rpc."+req.Method)
	defer span.End()
	r = r.WithContext(ctx)

	start := time.Now()
	switch req.Method {
	case MethodSendTask:
		h.dispatch(w, req, func() (any, error) {
			var params TaskSendParams
			if err := unmarshalParams(req.Params, &params); err != nil {
				return nil, err
			}
			return h.service.SendTask(r.Context(), params)
		})
	case MethodGetTask:
		h.dispatch(w, req, func() (any, error) {
			var params TaskQueryParams
			if err := unmarshalParams(req.Params, &params); err != nil {
				return nil, err
			}
			return h.service.GetTask(r.Context(), params)
		})
	case MethodCancelTask:
		h.dispatch(w, req, func() (any, error) {
			var params TaskIDParams
			if err := unmarshalParams(req.Params, &params); err != nil {
				return nil, err
			}
			return h.service.CancelTask(r.Context(), params)
		})
	case MethodSetPush:
		h.dispatch(w, req, func() (any, error) {
			var params TaskPushNotificationParams
			if err := unmarshalParams(req.Params, &params); err != nil {
				return nil, err
			}
			return h.service.SetPush(r.Context(), params)
		})
	case MethodGetPush:
		h.dispatch(w, req, func() (any, error) {
			var params TaskIDParams
			if err := unmarshalParams(req.Params, &params); err != nil {
				return nil, err
			}
			return h.service.GetPush(r.Context(), params)
		})
	case MethodSendSubscribe:
		h.streamSubscribe(w, r, req)
	case MethodResubscribe:
		h.streamResubscribe(w, r, req)
	default:
		telemetry.Metrics.RPCErrorsTotal.WithLabelValues(fmt.Sprint(CodeMethodNotFound)).Inc()
		h.writeResponse(w, NewErrorResponse(req.ID, NewError(CodeMethodNotFound, "")))
	}

	telemetry.Metrics.RPCDuration.WithLabelValues(req.Method).Observe(time.Since(start).Seconds())
}

func (h *Handler) dispatch(w http.ResponseWriter, req Request, op func() (any, error)) {
	result, err := op()
	if err != nil {
		rpcErr := Classify(err)
		telemetry.Metrics.RPCRequestsTotal.WithLabelValues(req.Method, "error").Inc()
		telemetry.Metrics.RPCErrorsTotal.WithLabelValues(fmt.Sprint(rpcErr.Code)).Inc()
		h.writeResponse(w, NewErrorResponse(req.ID, rpcErr))
		return
	}
	telemetry.Metrics.RPCRequestsTotal.WithLabelValues(req.Method, "ok").Inc()
	h.writeResponse(w, NewResponse(req.ID, result))
}

// streamSubscribe serves tasks/sendSubscribe as server-sent events.
// Each frame is a complete JSON-RPC response envelope.
func (h *Handler) streamSubscribe(w http.ResponseWriter, r *http.Request, req Request) {
	var params TaskSendParams
	if err := unmarshalParams(req.Params, &params); err != nil {
		h.writeResponse(w, NewErrorResponse(req.ID, Classify(err)))
		return
	}
	h.serveStream(w, r, req, h.service.SubscribeStream(r.Context(), params))
}

func (h *Handler) streamResubscribe(w http.ResponseWriter, r *http.Request, req Request) {
	var params TaskIDParams
	if err := unmarshalParams(req.Params, &params); err != nil {
		h.writeResponse(w, NewErrorResponse(req.ID, Classify(err)))
		return
	}
	stream, err := h.service.ResubscribeStream(r.Context(), params)
	if err != nil {
		h.writeResponse(w, NewErrorResponse(req.ID, Classify(err)))
		return
	}
	h.serveStream(w, r, req, stream)
}

func (h *Handler) serveStream(w http.ResponseWriter, r *http.Request, req Request, stream <-chan StreamItem) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeResponse(w, NewErrorResponse(req.ID, NewError(CodeInternalError, "streaming unsupported")))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	telemetry.Metrics.StreamsActive.Inc()
	defer telemetry.Metrics.StreamsActive.Dec()

	for item := range stream {
		var resp *Response
		if item.Err != nil {
			resp = NewErrorResponse(req.ID, Classify(item.Err))
		} else {
			resp = NewResponse(req.ID, item.Task)
		}
		data, err := json.Marshal(resp)
		if err != nil {
			h.service.logger.Error("encoding stream frame", "error", err)
			return
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return
		}
		flusher.Flush()

		select {
		case <-r.Context().Done():
			return
		default:
		}
	}
	telemetry.Metrics.RPCRequestsTotal.WithLabelValues(req.Method, "ok").Inc()
}

func (h *Handler) writeResponse(w http.ResponseWriter, resp *Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.service.logger.Error("encoding rpc response", "error", err)
	}
}

func unmarshalParams(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return NewError(CodeInvalidParams, "params missing")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return Errorf(CodeInvalidParams, "decoding params: %v", err)
	}
	return nil
}
