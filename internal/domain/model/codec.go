package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/okian/footprint/internal/domain/payload"
)

// ErrUnknownRecord is returned for a Record implementation outside this package.
var ErrUnknownRecord = errors.New("unknown record variant")

// TimestampLayout renders ISO-8601 UTC with millisecond precision.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Timestamp marshals as a TimestampLayout string in UTC.
type Timestamp time.Time

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Time(t).UTC().Format(TimestampLayout) + `"`), nil
}

type pageviewLine struct {
	ID        string            `json:"id"`
	Timestamp Timestamp         `json:"timestamp"`
	Kind      Kind              `json:"kind"`
	Path      string            `json:"path,omitempty"`
	Method    string            `json:"method"`
	IPHash    string            `json:"ipHash"`
	UserAgent string            `json:"userAgent,omitempty"`
	Device    *Device           `json:"device,omitempty"`
	Headers   map[string]string `json:"headers"`
}

type clientLine struct {
	ID        string                `json:"id"`
	Timestamp Timestamp             `json:"timestamp"`
	Kind      Kind                  `json:"kind"`
	Path      *string               `json:"path"`
	IPHash    string                `json:"ipHash"`
	UserAgent string                `json:"userAgent,omitempty"`
	Device    *Device               `json:"device,omitempty"`
	Client    payload.ClientPayload `json:"client"`
}

// MarshalLine serializes a record as one JSON object followed by '\n'.
func MarshalLine(r Record) ([]byte, error) {
	var v any
	switch rec := r.(type) {
	case PageviewRecord:
		headers := rec.Headers
		if headers == nil {
			headers = map[string]string{}
		}
		v = pageviewLine{
			ID:        rec.ID,
			Timestamp: Timestamp(rec.Timestamp),
			Kind:      KindPageview,
			Path:      rec.Path,
			Method:    rec.Method,
			IPHash:    rec.IPHash,
			UserAgent: rec.UserAgent,
			Device:    rec.Device,
			Headers:   headers,
		}
	case ClientRecord:
		v = clientLine{
			ID:        rec.ID,
			Timestamp: Timestamp(rec.Timestamp),
			Kind:      KindClient,
			Path:      rec.Path,
			IPHash:    rec.IPHash,
			UserAgent: rec.UserAgent,
			Device:    rec.Device,
			Client:    rec.Client,
		}
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownRecord, r)
	}

	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal %s record: %w", r.Kind(), err)
	}
	return append(b, '\n'), nil
}
