package handler

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
)

// HTTPTriggerRequest represents the structure of the JSON payload for HTTP triggers.
type HTTPTriggerRequest struct {
	Data struct {
		Req struct {
			URL             string              `json:"Url"`
			Method          string              `json:"Method"`
			Query           map[string]string   `json:"Query"`
			Headers         map[string][]string `json:"Headers"`
			Params          map[string]string   `json:"Params"`
			Body            string              `json:"Body"`
			IsBase64Encoded bool                `json:"isBase64Encoded"`
		} `json:"req"`
	} `json:"Data"`
	Metadata map[string]any `json:"Metadata"`
}

// HTTPTriggerResponse represents the structure of the JSON response for HTTP triggers.
type HTTPTriggerResponse struct {
	Outputs struct {
		Res struct {
			StatusCode int               `json:"statusCode"`
			Headers    map[string]string `json:"headers"`
			Body       string            `json:"body"`
		} `json:"res"`
	} `json:"Outputs"`
	Logs        []string `json:"Logs,omitempty"`
	ReturnValue any      `json:"ReturnValue,omitempty"`
}

// decodeBody returns the raw request body. Some hosts base64-encode bodies
// without setting the flag, so unflagged bodies that do not look like JSON
// are decoded when they are valid base64.
func decodeBody(body string, flagged bool) ([]byte, error) {
	if body == "" {
		return nil, nil
	}
	if flagged {
		return base64.StdEncoding.DecodeString(body)
	}
	trimmed := strings.TrimSpace(body)
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		return []byte(body), nil
	}
	if decoded, err := base64.StdEncoding.DecodeString(body); err == nil {
		return decoded, nil
	}
	return []byte(body), nil
}

// toHTTPRequest rebuilds the forwarded request so it can be served by the
// regular router.
func (tr *HTTPTriggerRequest) toHTTPRequest() (*http.Request, error) {
	reqData := tr.Data.Req

	target, err := url.Parse(reqData.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid request URL %q: %w", reqData.URL, err)
	}
	if len(reqData.Query) > 0 {
		q := target.Query()
		for k, v := range reqData.Query {
			if !q.Has(k) {
				q.Set(k, v)
			}
		}
		target.RawQuery = q.Encode()
	}

	body, err := decodeBody(reqData.Body, reqData.IsBase64Encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 body: %w", err)
	}
	var bodyReader io.Reader = http.NoBody
	if len(body) > 0 {
		bodyReader = bytes.NewReader(body)
	}

	method := reqData.Method
	if method == "" {
		method = http.MethodGet
	}
	req, err := http.NewRequest(method, target.String(), bodyReader)
	if err != nil {
		return nil, err
	}
	for k, values := range reqData.Headers {
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}
	return req, nil
}

// HandleHttpTrigger adapts the Azure Functions JSON POST request to a standard HTTP request/response.
// It wraps the provided Next handler (usually the ServeMux).
func (d *Dependencies) HandleHttpTrigger(next http.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var invokeReq HTTPTriggerRequest
		if err := json.NewDecoder(r.Body).Decode(&invokeReq); err != nil {
			slog.Error("failed to unmarshal HTTP trigger request", "error", err)
			http.Error(w, "Failed to unmarshal request", http.StatusBadRequest)
			return
		}

		innerReq, err := invokeReq.toHTTPRequest()
		if err != nil {
			slog.Error("failed to create internal request", "error", err)
			http.Error(w, "Failed to create internal request", http.StatusBadRequest)
			return
		}
		innerReq = innerReq.WithContext(r.Context())
		slog.Debug("serving wrapped HTTP request", "method", innerReq.Method, "path", innerReq.URL.Path)

		recorder := httptest.NewRecorder()
		next.ServeHTTP(recorder, innerReq)

		result := recorder.Result()
		respBody, _ := io.ReadAll(result.Body)
		result.Body.Close()

		var resp HTTPTriggerResponse
		resp.Outputs.Res.StatusCode = result.StatusCode
		resp.Outputs.Res.Body = string(respBody)
		resp.Outputs.Res.Headers = make(map[string]string, len(result.Header))
		for k, v := range result.Header {
			resp.Outputs.Res.Headers[k] = strings.Join(v, ", ")
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			slog.Error("failed to encode HTTP trigger response", "error", err)
		}
	}
}
