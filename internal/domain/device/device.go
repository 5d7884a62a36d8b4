// Package device normalizes raw user-agent strings into device descriptors.
package device

import (
	"strings"
	"sync"

	"github.com/mileusna/useragent"
	"github.com/ua-parser/uap-go/uaparser"

	"github.com/okian/footprint/internal/domain/model"
)

// Device classes reported in Details.Type.
const (
	TypeMobile = "mobile"
	TypeTablet = "tablet"
)

const (
	segmentSeparator = " | "
	unknownFamily    = "Other"
)

// uap-go fills brand and model with these when it only knows the device class.
var (
	placeholderBrands = map[string]struct{}{
		"Generic":                {},
		"Generic_Android":        {},
		"Generic_Android_Tablet": {},
		"Spider":                 {},
	}
	placeholderModels = map[string]struct{}{
		"Desktop":       {},
		"Feature Phone": {},
		"K":             {},
		"Smartphone":    {},
		"Tablet":        {},
	}
)

// Details holds the normalized fields. Nil means the parser could not tell.
type Details struct {
	Vendor  *string
	Model   *string
	Type    *string
	OS      model.NameVersion
	Browser model.NameVersion
}

// Result is the outcome of Parse.
type Result struct {
	Details Details
	Summary *string
}

// Device converts the result into the record representation.
func (r Result) Device() *model.Device {
	return &model.Device{
		Vendor:  r.Details.Vendor,
		Model:   r.Details.Model,
		Type:    r.Details.Type,
		OS:      r.Details.OS,
		Browser: r.Details.Browser,
		Summary: r.Summary,
	}
}

// Parser parses user agents. The zero value is not usable; use NewParser.
type Parser struct {
	uap *uaparser.Parser
}

var (
	defaultOnce   sync.Once
	defaultParser *Parser
)

// NewParser builds a parser over the regex database embedded in uap-go.
func NewParser() *Parser {
	return &Parser{uap: uaparser.NewFromSaved()}
}

// Default returns a process-wide parser, built on first use.
func Default() *Parser {
	defaultOnce.Do(func() { defaultParser = NewParser() })
	return defaultParser
}

// Parse never panics. Empty or unrecognizable input yields an all-nil Result.
func (p *Parser) Parse(ua string) (res Result) {
	if strings.TrimSpace(ua) == "" {
		return Result{}
	}
	defer func() {
		if recover() != nil {
			res = Result{}
		}
	}()

	c := p.uap.Parse(ua)
	var d Details
	if c.Device != nil {
		d.Vendor = specific(c.Device.Brand, placeholderBrands)
		d.Model = specific(c.Device.Model, placeholderModels)
	}
	if c.Os != nil {
		d.OS = nameVersion(c.Os.Family, c.Os.Major, c.Os.Minor, c.Os.Patch)
	}
	if c.UserAgent != nil {
		d.Browser = nameVersion(c.UserAgent.Family, c.UserAgent.Major, c.UserAgent.Minor, c.UserAgent.Patch)
	}

	if d.Vendor != nil || d.Model != nil || d.OS.Name != nil || d.Browser.Name != nil {
		d.Type = deviceType(ua, c.Device)
	}

	return Result{Details: d, Summary: Summarize(d)}
}

// Summarize renders the human-readable summary, or nil when no segment applies.
func Summarize(d Details) *string {
	segments := make([]string, 0, 4)
	if s := join(d.Vendor, d.Model); s != "" {
		segments = append(segments, s)
	}
	if d.Type != nil && *d.Type != "" {
		segments = append(segments, "type: "+*d.Type)
	}
	if s := join(d.OS.Name, d.OS.Version); s != "" {
		segments = append(segments, "OS: "+s)
	}
	if s := join(d.Browser.Name, d.Browser.Version); s != "" {
		segments = append(segments, "Browser: "+s)
	}
	if len(segments) == 0 {
		return nil
	}
	s := strings.Join(segments, segmentSeparator)
	return &s
}

// deviceType prefers uap's tablet classification and falls back to mileusna.
func deviceType(ua string, dev *uaparser.Device) *string {
	if dev != nil && (mentionsTablet(dev.Family) || mentionsTablet(dev.Brand)) {
		return ptr(TypeTablet)
	}
	parsed := useragent.Parse(ua)
	switch {
	case parsed.Tablet:
		return ptr(TypeTablet)
	case parsed.Mobile:
		return ptr(TypeMobile)
	default:
		return nil
	}
}

func nameVersion(family string, parts ...string) model.NameVersion {
	name := known(family)
	if name == nil {
		return model.NameVersion{}
	}
	var version []string
	for _, p := range parts {
		if p == "" {
			break
		}
		version = append(version, p)
	}
	nv := model.NameVersion{Name: name}
	if len(version) > 0 {
		nv.Version = ptr(strings.Join(version, "."))
	}
	return nv
}

func known(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" || s == unknownFamily {
		return nil
	}
	return &s
}

func specific(s string, placeholders map[string]struct{}) *string {
	v := known(s)
	if v == nil {
		return nil
	}
	if _, ok := placeholders[*v]; ok {
		return nil
	}
	return v
}

func mentionsTablet(s string) bool {
	return strings.Contains(strings.ToLower(s), "tablet")
}

func join(a, b *string) string {
	parts := make([]string, 0, 2)
	for _, p := range []*string{a, b} {
		if p != nil && *p != "" {
			parts = append(parts, *p)
		}
	}
	return strings.Join(parts, " ")
}

func ptr(s string) *string { return &s }
