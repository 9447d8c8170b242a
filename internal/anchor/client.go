// Package anchor submits accepted attendance records to an external
// anchoring service that timestamps a digest of each record. The service is
// an injected capability: when it is not configured the client runs in Skip
// mode and returns stub receipts, and attendance flow never depends on it.
package anchor

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"classpass/internal/attendance"
)

// TransactionReceipt is the anchoring service's acknowledgement.
type TransactionReceipt struct {
	TxID        string    `json:"tx_id"`
	Anchored    bool      `json:"anchored"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// Client calls the anchoring service.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Skip    bool
}

// New creates a client. With skip set, Submit succeeds without any network
// call.
func New(baseURL string, skip bool) *Client {
	return &Client{
		BaseURL: baseURL,
		Skip:    skip,
		HTTP:    &http.Client{Timeout: 15 * time.Second},
	}
}

// Digest computes the canonical SHA-256 digest of a record's immutable
// attendance fields. Anchor metadata is excluded so the digest is stable.
func Digest(rec attendance.Record) string {
	payload, _ := json.Marshal(map[string]any{
		"id":          rec.ID,
		"session_id":  rec.SessionID,
		"student_id":  attendance.NormalizeStudentID(rec.StudentID),
		"attended_at": rec.AttendedAt.UTC().Format(time.RFC3339Nano),
		"status":      rec.GeofenceStatus,
	})
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// Submit anchors one record and returns the receipt.
func (c *Client) Submit(ctx context.Context, rec attendance.Record) (*TransactionReceipt, error) {
	if c.Skip {
		return &TransactionReceipt{
			TxID:        "skip-" + Digest(rec)[:16],
			Anchored:    true,
			SubmittedAt: time.Now().UTC(),
		}, nil
	}

	body, _ := json.Marshal(map[string]string{
		"record_id": rec.ID,
		"digest":    Digest(rec),
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/anchor", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("anchor service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("anchor service error %s: %s", resp.Status, string(respBody))
	}

	var receipt TransactionReceipt
	if err := json.NewDecoder(resp.Body).Decode(&receipt); err != nil {
		return nil, fmt.Errorf("failed to decode receipt: %w", err)
	}
	return &receipt, nil
}

// Health checks if the anchoring service is reachable.
func (c *Client) Health(ctx context.Context) error {
	if c.Skip {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("anchor service unavailable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("anchor service unhealthy: %s", resp.Status)
	}
	return nil
}
