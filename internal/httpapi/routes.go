package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/Aman-CERP/pagemind/internal/daemon"
	apperrors "github.com/Aman-CERP/pagemind/internal/errors"
)

const defaultSearchTopK = 10

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleMessage serves a protocol message. Protocol errors travel in the
// body with status 200; only an unreadable body is a 400.
func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req daemon.Request
	if err := decodeBody(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest,
			daemon.NewErrorResponse("", daemon.ErrCodeParseError, "parse error: "+err.Error()))
		return
	}
	if req.ID == "" {
		req.ID = middleware.GetReqID(r.Context())
	}
	writeJSON(w, http.StatusOK, s.dispatcher.Dispatch(r.Context(), req))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	rep, err := s.svc.Status(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.svc.Stats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var p daemon.AskParams
	if err := decodeBody(w, r, &p); err != nil {
		writeError(w, apperrors.New(apperrors.ErrCodeInvalidInput, "invalid request body", err))
		return
	}
	res, err := s.svc.Ask(r.Context(), p.Question)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	topK := defaultSearchTopK
	if raw := q.Get("top_k"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, apperrors.New(apperrors.ErrCodeInvalidInput, "top_k must be a positive integer", err))
			return
		}
		topK = n
	}
	hits, err := s.svc.Search(r.Context(), q.Get("q"), topK)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, hits)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty body")
		}
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes the wire error with a status matching its category.
func writeError(w http.ResponseWriter, err error) {
	e := daemon.ErrorFor(err)
	writeJSON(w, httpStatus(e.Code), e)
}

func httpStatus(rpcCode int) int {
	switch rpcCode {
	case daemon.ErrCodeInvalidParams:
		return http.StatusBadRequest
	case daemon.ErrCodeMethodNotFound:
		return http.StatusNotFound
	case daemon.ErrCodeConfiguration:
		return http.StatusServiceUnavailable
	case daemon.ErrCodeQuery:
		return http.StatusUnprocessableEntity
	case daemon.ErrCodeUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
