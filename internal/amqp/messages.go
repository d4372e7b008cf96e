package amqp

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// RefreshRequest asks the refresh worker to download the registry now.
type RefreshRequest struct {
	ID          string    `json:"id"`
	Reason      string    `json:"reason,omitempty"`
	RequestedBy string    `json:"requested_by,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewRefreshRequest creates a request with a fresh ID
func NewRefreshRequest(reason, requestedBy string) *RefreshRequest {
	return &RefreshRequest{
		ID:          uuid.NewString(),
		Reason:      reason,
		RequestedBy: requestedBy,
		Timestamp:   time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *RefreshRequest) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func RefreshRequestFromJSON(data []byte) (*RefreshRequest, error) {
	var msg RefreshRequest
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// RegistryRefreshed announces that a new registry snapshot was stored.
// RequestID is empty for scheduled refreshes.
type RegistryRefreshed struct {
	RequestID string    `json:"request_id,omitempty"`
	URL       string    `json:"url"`
	Records   int       `json:"records"`
	Malformed int       `json:"malformed_dates"`
	FetchedAt time.Time `json:"fetched_at"`
	Timestamp time.Time `json:"timestamp"`
}

func (m *RegistryRefreshed) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func RegistryRefreshedFromJSON(data []byte) (*RegistryRefreshed, error) {
	var msg RegistryRefreshed
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
