// Package notary submits record hashes to an external immutable ledger for
// tamper-evidence. Notarization is best-effort: failures are logged by the
// caller and never block the primary write path.
package notary

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Receipt is the opaque acknowledgement returned by the ledger.
type Receipt struct {
	TxHash    string    `json:"tx_hash"`
	Timestamp time.Time `json:"timestamp"`
}

// Notary is the notarization sink. Any conforming implementation may be
// substituted at the composition root.
type Notary interface {
	Submit(ctx context.Context, recordID, payloadHash string) (*Receipt, error)
}

// PayloadHash produces the canonical sha256 hash of a record's identifying
// fields, pipe-joined in a fixed order.
func PayloadHash(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

// HTTPNotary is the production implementation: a thin POST to the anchoring
// service.
type HTTPNotary struct {
	BaseURL    string
	HttpClient *http.Client
}

// NewHTTPNotary creates a new HTTP client for the anchoring service.
func NewHTTPNotary(baseURL string) *HTTPNotary {
	return &HTTPNotary{
		BaseURL:    baseURL,
		HttpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

type anchorRequest struct {
	RecordID    string `json:"record_id"`
	PayloadHash string `json:"payload_hash"`
}

// Submit anchors one record hash and decodes the receipt.
func (n *HTTPNotary) Submit(ctx context.Context, recordID, payloadHash string) (*Receipt, error) {
	url := fmt.Sprintf("%s/api/v1/anchors", n.BaseURL)
	body, err := json.Marshal(anchorRequest{RecordID: recordID, PayloadHash: payloadHash})
	if err != nil {
		return nil, fmt.Errorf("failed to encode anchor request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request to anchoring service: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.HttpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call anchoring service at %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("anchoring service returned non-OK status %d for record %s", resp.StatusCode, recordID)
	}

	var receipt Receipt
	if err := json.NewDecoder(resp.Body).Decode(&receipt); err != nil {
		return nil, fmt.Errorf("failed to decode anchoring receipt: %w", err)
	}
	if receipt.Timestamp.IsZero() {
		receipt.Timestamp = time.Now().UTC()
	}
	return &receipt, nil
}

// MemoryNotary is the in-memory stub used in tests and local development. It
// returns a deterministic receipt derived from the payload hash. Safe for
// concurrent use since submissions are dispatched asynchronously.
type MemoryNotary struct {
	// Fail forces every submission to error, for exercising the
	// absent-receipt path.
	Fail bool

	mu        sync.Mutex
	submitted []string
}

// NewMemoryNotary creates the stub sink.
func NewMemoryNotary() *MemoryNotary {
	return &MemoryNotary{}
}

// Submit records the call and fabricates a local receipt.
func (n *MemoryNotary) Submit(ctx context.Context, recordID, payloadHash string) (*Receipt, error) {
	if n.Fail {
		return nil, fmt.Errorf("memory notary configured to fail")
	}
	n.mu.Lock()
	n.submitted = append(n.submitted, recordID)
	n.mu.Unlock()
	return &Receipt{
		TxHash:    "local-" + payloadHash[:16],
		Timestamp: time.Now().UTC(),
	}, nil
}

// Submitted returns the record ids anchored so far.
func (n *MemoryNotary) Submitted() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.submitted))
	copy(out, n.submitted)
	return out
}
