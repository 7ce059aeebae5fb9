package pipeline

import (
	"encoding/json"
	"net/http"
)

// Fixed permissive CORS headers carried on every response.
var corsHeaders = map[string]string{
	"Access-Control-Allow-Origin":  "*",
	"Access-Control-Allow-Methods": "GET, POST, PUT, DELETE, OPTIONS",
	"Access-Control-Allow-Headers": "authorization, x-client-info, apikey, content-type",
}

// Response is a terminal pipeline result.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

func newResponse(status int) *Response {
	h := make(http.Header, len(corsHeaders)+1)
	for k, v := range corsHeaders {
		h.Set(k, v)
	}
	return &Response{Status: status, Header: h}
}

// Empty returns a bodyless response.
func Empty(status int) *Response {
	return newResponse(status)
}

// JSON returns a JSON response.
func JSON(status int, v any) *Response {
	resp := newResponse(status)
	body, err := json.Marshal(v)
	if err != nil {
		return Error(http.StatusInternalServerError, "Internal server error")
	}
	resp.Header.Set("Content-Type", "application/json")
	resp.Body = body
	return resp
}

// Error returns a JSON error response with the shape {"error": message}.
func Error(status int, message string) *Response {
	resp := newResponse(status)
	resp.Header.Set("Content-Type", "application/json")
	resp.Body, _ = json.Marshal(map[string]string{"error": message})
	return resp
}

// Write writes the response to w.
func (r *Response) Write(w http.ResponseWriter) {
	for k, vs := range r.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(r.Status)
	if len(r.Body) > 0 {
		_, _ = w.Write(r.Body)
	}
}
