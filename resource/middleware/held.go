package middleware

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// heldResponse keeps a skill's response back until the proof that paid for
// it is committed or released. Nothing reaches the client before release.
type heldResponse struct {
	gin.ResponseWriter
	held     http.Header
	code     int
	payload  bytes.Buffer
	limit    int
	exceeded bool
}

func holdResponse(w gin.ResponseWriter, limit int) *heldResponse {
	return &heldResponse{
		ResponseWriter: w,
		held:           http.Header{},
		code:           http.StatusOK,
		limit:          limit,
	}
}

func (h *heldResponse) Write(data []byte) (int, error) {
	if h.limit > 0 && h.payload.Len()+len(data) > h.limit {
		h.exceeded = true
		return 0, fmt.Errorf("skill response larger than %d bytes", h.limit)
	}
	return h.payload.Write(data)
}

func (h *heldResponse) WriteString(s string) (int, error) {
	return h.Write([]byte(s))
}

func (h *heldResponse) WriteHeader(code int) { h.code = code }

func (h *heldResponse) WriteHeaderNow() {}

func (h *heldResponse) Header() http.Header { return h.held }

func (h *heldResponse) Status() int { return h.code }

func (h *heldResponse) Size() int { return h.payload.Len() }

func (h *heldResponse) Written() bool { return h.payload.Len() > 0 }

func (h *heldResponse) succeeded() bool {
	return h.code >= 200 && h.code < 300
}

// release sends the held response through the underlying writer.
func (h *heldResponse) release() error {
	out := h.ResponseWriter.Header()
	for name, values := range h.held {
		out[name] = append(out[name], values...)
	}
	h.ResponseWriter.WriteHeader(h.code)
	_, err := h.ResponseWriter.Write(h.payload.Bytes())
	return err
}
