package server

import (
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/getbunnyd/bunnyd/pkg/headers"
	"github.com/getbunnyd/bunnyd/pkg/httputil"
)

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	queue := r.PathValue("queue")
	pub, ok := s.publishers[queue]
	if !ok {
		httputil.WriteError(w, http.StatusNotFound, codeUnknownQueue, "no publisher registered for queue "+queue)
		return
	}

	if err := pub.Guard().Allow(r.Header.Get(headers.Identity), r.Header.Get(headers.Token)); err != nil {
		s.writeDomainError(w, err)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	result, err := pub.Send(r.Context(), r.Header, body)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	httputil.WriteCreated(w, result)
}

func (s *Server) handleConsume(w http.ResponseWriter, r *http.Request) {
	queue := r.PathValue("queue")
	con, ok := s.consumers[queue]
	if !ok {
		httputil.WriteError(w, http.StatusNotFound, codeUnknownQueue, "no consumer registered for queue "+queue)
		return
	}

	if err := con.Guard().Allow(r.Header.Get(headers.Identity), r.Header.Get(headers.Token)); err != nil {
		s.writeDomainError(w, err)
		return
	}

	msg, err := con.ConsumeOne()
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	for key, values := range msg.PassThrough {
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
	w.Header().Set("Content-Type", msg.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(msg.Body)))
	w.Header().Set(headers.MessageCount, strconv.Itoa(msg.MessageCount))

	// 205 tells the client the queue state changed underneath it.
	w.WriteHeader(http.StatusResetContent)
	_, _ = w.Write(msg.Body)

	// The response already carries the body; a failed ack means the message
	// is lost to HTTP and the broker will redeliver it.
	if err := msg.Ack(); err != nil {
		s.log.Error("failed to ack consumed message", "queue", queue, "error", err)
	}
}

// writeDomainError translates a domain error into its HTTP shape. Unmatched
// errors get a correlation id so the log line can be found from the response.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	if code == codeInternal {
		correlationID := uuid.NewString()
		s.log.Error("internal error", "correlationId", correlationID, "error", err)
		httputil.WriteError(w, status, code, "internal error, correlation id "+correlationID)
		return
	}
	httputil.WriteError(w, status, code, userMessage(code, err))
	if status >= 500 {
		s.log.Error("request failed", "code", code, "error", err)
	}
}

// userMessage keeps client-facing bodies short and non-leaky.
func userMessage(code string, err error) string {
	switch code {
	case codeForbidden:
		return "identity and token required for this queue"
	case codeEmpty:
		return "queue empty"
	default:
		if err != nil {
			return err.Error()
		}
		return ""
	}
}
