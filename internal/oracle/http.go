package oracle

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/nacl/box"

	"insurance-agent/internal/domain"
)

// HTTP posts records to a remote verification endpoint. With a recipient
// public key configured, the record is sealed with NaCl box under a fresh
// sender key per request and only the envelope travels in the clear.
type HTTP struct {
	endpoint   string
	httpClient *http.Client
	recipient  *[32]byte
	now        func() time.Time
}

type HTTPOption func(*HTTP)

func WithHTTPClient(c *http.Client) HTTPOption {
	return func(h *HTTP) {
		if c != nil {
			h.httpClient = c
		}
	}
}

// WithRecipientKey enables sealed submissions.
func WithRecipientKey(key *[32]byte) HTTPOption {
	return func(h *HTTP) { h.recipient = key }
}

func NewHTTP(endpoint string, opts ...HTTPOption) (*HTTP, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, errors.New("oracle: endpoint must not be empty")
	}
	h := &HTTP{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// ParsePublicKey decodes a base64 Curve25519 public key.
func ParsePublicKey(encoded string) (*[32]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil, fmt.Errorf("oracle: decode public key: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("oracle: public key must be 32 bytes, got %d", len(raw))
	}
	var key [32]byte
	copy(key[:], raw)
	return &key, nil
}

type plainRequest struct {
	SessionID string `json:"sessionId,omitempty"`
	Name      string `json:"name"`
	DOB       string `json:"dob"`
	Provider  string `json:"provider"`
	PolicyID  string `json:"policyId"`
	Consent   bool   `json:"consent"`
}

// SealedRequest is the envelope posted when encryption is enabled.
type SealedRequest struct {
	SessionID       string `json:"sessionId"`
	SealedPayload   string `json:"sealedPayload"`
	SenderPublicKey string `json:"senderPublicKey"`
	Nonce           string `json:"nonce"`
	Timestamp       string `json:"timestamp"`
	PatientConsent  bool   `json:"patientConsent"`
}

func (h *HTTP) Submit(ctx context.Context, req Request) (domain.VerificationResult, error) {
	if err := precheck(req); err != nil {
		return domain.VerificationResult{}, err
	}

	body, err := h.body(req)
	if err != nil {
		return domain.VerificationResult{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.VerificationResult{}, serviceErr("http", fmt.Errorf("create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if req.SessionID != "" {
		httpReq.Header.Set("X-Session-Id", req.SessionID)
	}

	res, err := h.httpClient.Do(httpReq)
	if err != nil {
		return domain.VerificationResult{}, networkErr("http", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return domain.VerificationResult{}, serviceErr("http", fmt.Errorf("unexpected status %d: %s", res.StatusCode, snippet))
	}
	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return domain.VerificationResult{}, networkErr("http", fmt.Errorf("read body: %w", err))
	}
	return Normalize(raw)
}

func (h *HTTP) body(req Request) ([]byte, error) {
	plain, err := json.Marshal(plainRequest{
		SessionID: req.SessionID,
		Name:      req.Record.Name,
		DOB:       req.Record.DOB,
		Provider:  req.Record.Provider,
		PolicyID:  req.Record.PolicyID,
		Consent:   req.Consent,
	})
	if err != nil {
		return nil, serviceErr("http", fmt.Errorf("marshal request: %w", err))
	}
	if h.recipient == nil {
		return plain, nil
	}

	senderPub, senderPriv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, serviceErr("seal", fmt.Errorf("generate key: %w", err))
	}
	var nonce [24]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, serviceErr("seal", fmt.Errorf("nonce: %w", err))
	}
	sealed := box.Seal(nil, plain, &nonce, h.recipient, senderPriv)

	env, err := json.Marshal(SealedRequest{
		SessionID:       req.SessionID,
		SealedPayload:   base64.StdEncoding.EncodeToString(sealed),
		SenderPublicKey: base64.StdEncoding.EncodeToString(senderPub[:]),
		Nonce:           base64.StdEncoding.EncodeToString(nonce[:]),
		Timestamp:       h.now().UTC().Format(time.RFC3339),
		PatientConsent:  req.Consent,
	})
	if err != nil {
		return nil, serviceErr("seal", fmt.Errorf("marshal envelope: %w", err))
	}
	return env, nil
}
