// Package handler exposes the verification conversation as a JSON API over
// API Gateway proxy events.
package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"insurance-agent/internal/domain"
	"insurance-agent/internal/usecase"
)

const (
	correlationHeader = "X-Correlation-Id"
	staffHeader       = "X-Staff-Password"
	maxBodyBytes      = 8 << 10
)

type Conversations interface {
	Open(ctx context.Context, key string) (usecase.View, error)
	Get(ctx context.Context, key string) (usecase.View, error)
	Send(ctx context.Context, key, text string) (usecase.View, error)
	Consent(ctx context.Context, key string, granted bool) (usecase.View, error)
	Restart(ctx context.Context, key string) (usecase.View, error)
	Close(ctx context.Context, key string) error
}

type Staff interface {
	Submissions(ctx context.Context, password string) ([]domain.Submission, error)
}

type Handler struct {
	conv  Conversations
	staff Staff
}

type openRequest struct {
	SessionKey string `json:"sessionKey"`
}

type messageRequest struct {
	Text string `json:"text"`
}

type consentRequest struct {
	Granted *bool `json:"granted"`
}

type submissionsResponse struct {
	Submissions []domain.Submission `json:"submissions"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func NewHandler(conv Conversations, staff Staff) (*Handler, error) {
	if conv == nil {
		return nil, errors.New("handler: conversations must not be nil")
	}
	if staff == nil {
		return nil, errors.New("handler: staff gate must not be nil")
	}
	return &Handler{conv: conv, staff: staff}, nil
}

// Handle routes one API Gateway request.
func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	corrID := headerValue(req.Headers, correlationHeader)
	if corrID == "" {
		corrID = uuid.NewString()
	}
	log := slog.With("correlation_id", corrID, "method", req.HTTPMethod)

	body, err := requestBody(req)
	if err != nil {
		return h.fail(log, corrID, invalidBody(err)), nil
	}

	segs := strings.Split(strings.Trim(req.Path, "/"), "/")
	method := req.HTTPMethod

	switch {
	case len(segs) == 1 && segs[0] == "sessions":
		if method != http.MethodPost {
			return methodNotAllowed(corrID), nil
		}
		var in openRequest
		if err := decodeOptional(body, &in); err != nil {
			return h.fail(log, corrID, invalidBody(err)), nil
		}
		return h.view(log, corrID)(h.conv.Open(ctx, in.SessionKey))

	case len(segs) == 2 && segs[0] == "sessions":
		key := sessionKey(req, segs[1])
		switch method {
		case http.MethodGet:
			return h.view(log, corrID)(h.conv.Get(ctx, key))
		case http.MethodDelete:
			if err := h.conv.Close(ctx, key); err != nil {
				return h.fail(log, corrID, err), nil
			}
			return respond(http.StatusNoContent, corrID, nil), nil
		}
		return methodNotAllowed(corrID), nil

	case len(segs) == 3 && segs[0] == "sessions":
		if method != http.MethodPost {
			return methodNotAllowed(corrID), nil
		}
		key := sessionKey(req, segs[1])
		switch segs[2] {
		case "messages":
			var in messageRequest
			if err := json.Unmarshal(body, &in); err != nil {
				return h.fail(log, corrID, invalidBody(err)), nil
			}
			return h.view(log, corrID)(h.conv.Send(ctx, key, in.Text))
		case "consent":
			var in consentRequest
			if err := json.Unmarshal(body, &in); err != nil || in.Granted == nil {
				return h.fail(log, corrID, invalidBody(err)), nil
			}
			return h.view(log, corrID)(h.conv.Consent(ctx, key, *in.Granted))
		case "restart":
			return h.view(log, corrID)(h.conv.Restart(ctx, key))
		}

	case len(segs) == 2 && segs[0] == "staff" && segs[1] == "submissions":
		if method != http.MethodGet {
			return methodNotAllowed(corrID), nil
		}
		subs, err := h.staff.Submissions(ctx, headerValue(req.Headers, staffHeader))
		if err != nil {
			return h.fail(log, corrID, err), nil
		}
		return respond(http.StatusOK, corrID, submissionsResponse{Submissions: subs}), nil
	}

	return respond(http.StatusNotFound, corrID, errorResponse{Error: "NOT_FOUND"}), nil
}

func (h *Handler) view(log *slog.Logger, corrID string) func(usecase.View, error) (events.APIGatewayProxyResponse, error) {
	return func(v usecase.View, err error) (events.APIGatewayProxyResponse, error) {
		if err != nil {
			return h.fail(log, corrID, err), nil
		}
		return respond(http.StatusOK, corrID, v), nil
	}
}

func (h *Handler) fail(log *slog.Logger, corrID string, err error) events.APIGatewayProxyResponse {
	var ue *usecase.Error
	if !errors.As(err, &ue) {
		ue = &usecase.Error{Code: usecase.ErrorInternal, Reason: "unexpected", Err: err}
	}
	status := statusFor(ue.Code)
	if status >= 500 {
		log.Error("request failed", "code", ue.Code, "reason", ue.Reason, "error", ue.Err)
	} else {
		log.Warn("request rejected", "code", ue.Code, "reason", ue.Reason)
	}
	return respond(status, corrID, errorResponse{Error: string(ue.Code)})
}

func statusFor(code usecase.ErrorCode) int {
	switch code {
	case usecase.ErrorInvalidInput:
		return http.StatusBadRequest
	case usecase.ErrorSessionBusy, usecase.ErrorConflict:
		return http.StatusConflict
	case usecase.ErrorUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func invalidBody(err error) error {
	return &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "bad_body", Err: err}
}

func methodNotAllowed(corrID string) events.APIGatewayProxyResponse {
	return respond(http.StatusMethodNotAllowed, corrID, errorResponse{Error: "METHOD_NOT_ALLOWED"})
}

func respond(status int, corrID string, payload any) events.APIGatewayProxyResponse {
	resp := events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":    "application/json",
			"Cache-Control":   "no-store",
			correlationHeader: corrID,
		},
	}
	if payload == nil {
		return resp
	}
	b, err := json.Marshal(payload)
	if err != nil {
		resp.StatusCode = http.StatusInternalServerError
		b = []byte(`{"error":"INTERNAL_ERROR"}`)
	}
	resp.Body = string(b)
	return resp
}

func requestBody(req events.APIGatewayProxyRequest) ([]byte, error) {
	body := []byte(req.Body)
	if req.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(req.Body)
		if err != nil {
			return nil, err
		}
		body = decoded
	}
	if len(body) > maxBodyBytes {
		return nil, errors.New("body too large")
	}
	return body, nil
}

func decodeOptional(body []byte, v any) error {
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil
	}
	return json.Unmarshal(body, v)
}

func sessionKey(req events.APIGatewayProxyRequest, fromPath string) string {
	if k := req.PathParameters["key"]; k != "" {
		return k
	}
	return fromPath
}

// headerValue looks a header up case-insensitively; API Gateway preserves
// whatever casing the client sent.
func headerValue(headers map[string]string, name string) string {
	if v, ok := headers[name]; ok {
		return strings.TrimSpace(v)
	}
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
