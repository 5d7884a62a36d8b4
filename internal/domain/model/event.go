// Package model contains domain models passed between layers.
//
// A visit record is a tagged variant: PageviewRecord for server-observed page
// requests and ClientRecord for browser-submitted telemetry. Records are
// values; nothing mutates them after capture.
package model

import (
	"time"

	"github.com/okian/footprint/internal/domain/payload"
)

// Kind names the origin of a record.
type Kind string

// Record kinds.
const (
	KindPageview Kind = "pageview"
	KindClient   Kind = "client"
)

// Record is implemented by PageviewRecord and ClientRecord only.
type Record interface {
	// Kind reports the variant.
	Kind() Kind
	// CapturedAt is the capture instant; it also selects the day file.
	CapturedAt() time.Time
	// RecordID is the per-record UUID.
	RecordID() string

	sealed()
}

// NameVersion pairs a product name with its version.
type NameVersion struct {
	Name    *string `json:"name"`
	Version *string `json:"version"`
}

// Device is the normalized device descriptor stored on a record.
// Every field is nullable; Summary is nil when nothing could be determined.
type Device struct {
	Vendor  *string     `json:"vendor"`
	Model   *string     `json:"model"`
	Type    *string     `json:"type"`
	OS      NameVersion `json:"os"`
	Browser NameVersion `json:"browser"`
	Summary *string     `json:"summary"`
}

// PageviewRecord is captured from a GET that negotiated HTML.
type PageviewRecord struct {
	ID        string
	Timestamp time.Time
	Path      string
	Method    string
	IPHash    string
	UserAgent string
	Device    *Device

	// Headers holds only allow-listed, non-empty request headers.
	Headers map[string]string
}

// Kind implements Record.
func (PageviewRecord) Kind() Kind { return KindPageview }

// CapturedAt implements Record.
func (r PageviewRecord) CapturedAt() time.Time { return r.Timestamp }

// RecordID implements Record.
func (r PageviewRecord) RecordID() string { return r.ID }

func (PageviewRecord) sealed() {}

// ClientRecord is built from a validated POST /collect body.
type ClientRecord struct {
	ID        string
	Timestamp time.Time

	// Path is the referrer (header first, then payload ref); nil when neither is present.
	Path      *string
	IPHash    string
	UserAgent string
	Device    *Device
	Client    payload.ClientPayload
}

// Kind implements Record.
func (ClientRecord) Kind() Kind { return KindClient }

// CapturedAt implements Record.
func (r ClientRecord) CapturedAt() time.Time { return r.Timestamp }

// RecordID implements Record.
func (r ClientRecord) RecordID() string { return r.ID }

func (ClientRecord) sealed() {}

// HeaderAllowList is the fixed set of request headers copied onto pageviews.
var HeaderAllowList = []string{
	"host",
	"accept-language",
	"sec-ch-ua-platform",
	"sec-ch-ua",
	"sec-ch-ua-mobile",
	"referer",
	"origin",
}
