// Package payload validates browser-submitted telemetry.
//
// Every field is optional; a present field must satisfy its type and bound.
// Keys match case-sensitively and unknown keys are ignored. Any violation
// collapses into ErrInvalidPayload so callers cannot leak which field failed.
package payload

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
)

// ErrInvalidPayload is the single, aggregate validation failure.
var ErrInvalidPayload = errors.New("invalid payload")

var (
	errNotObject  = errors.New("not an object")
	errNull       = errors.New("null value")
	errNotInteger = errors.New("not an integer")
)

const maxSafeInteger = 1<<53 - 1

// Hardware carries navigator memory and concurrency hints.
type Hardware struct {
	MemoryGB *float64 `json:"memoryGB,omitempty" validate:"omitempty,min=0"`
	Cores    *int     `json:"cores,omitempty" validate:"omitempty,min=0"`
}

// Screen carries window.screen geometry.
type Screen struct {
	Width       *int     `json:"width,omitempty" validate:"omitempty,gt=0"`
	Height      *int     `json:"height,omitempty" validate:"omitempty,gt=0"`
	AvailWidth  *int     `json:"availWidth,omitempty" validate:"omitempty,gt=0"`
	AvailHeight *int     `json:"availHeight,omitempty" validate:"omitempty,gt=0"`
	ColorDepth  *int     `json:"colorDepth,omitempty" validate:"omitempty,gt=0"`
	PixelRatio  *float64 `json:"pixelRatio,omitempty" validate:"omitempty,gt=0"`
}

// ClientPayload is the accepted POST /collect body.
type ClientPayload struct {
	Consent   *bool     `json:"consent,omitempty"`
	TZ        *string   `json:"tz,omitempty" validate:"omitempty,max=100"`
	Lang      *string   `json:"lang,omitempty" validate:"omitempty,max=100"`
	Languages []string  `json:"languages,omitempty" validate:"omitempty,max=20"`
	Platform  *string   `json:"platform,omitempty" validate:"omitempty,max=120"`
	UA        *string   `json:"ua,omitempty" validate:"omitempty,max=1024"`
	Vendor    *string   `json:"vendor,omitempty" validate:"omitempty,max=256"`
	HW        *Hardware `json:"hw,omitempty"`
	Screen    *Screen   `json:"screen,omitempty"`
	Ref       *string   `json:"ref,omitempty" validate:"omitempty,max=2048"`
}

// singleton validator instance; it caches struct metadata.
var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate decodes raw JSON and checks it against the schema. An empty body
// is treated as {}. Keys match case-sensitively; anything not in the schema,
// including case variants, is ignored. A present key must carry a value of
// its type, so explicit nulls are rejected.
func Validate(raw []byte) (ClientPayload, error) {
	var p ClientPayload
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return p, nil
	}
	fields, err := decodeObject(raw)
	if err != nil {
		return ClientPayload{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	for key, val := range fields {
		switch key {
		case "consent":
			p.Consent, err = decodeValue[bool](val)
		case "tz":
			p.TZ, err = decodeValue[string](val)
		case "lang":
			p.Lang, err = decodeValue[string](val)
		case "languages":
			p.Languages, err = decodeStrings(val)
		case "platform":
			p.Platform, err = decodeValue[string](val)
		case "ua":
			p.UA, err = decodeValue[string](val)
		case "vendor":
			p.Vendor, err = decodeValue[string](val)
		case "hw":
			p.HW, err = decodeHardware(val)
		case "screen":
			p.Screen, err = decodeScreen(val)
		case "ref":
			p.Ref, err = decodeValue[string](val)
		}
		if err != nil {
			return ClientPayload{}, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, key, err)
		}
	}
	if err := ValidateStruct(&p); err != nil {
		return ClientPayload{}, err
	}
	return p, nil
}

func decodeHardware(raw json.RawMessage) (*Hardware, error) {
	fields, err := decodeObject(raw)
	if err != nil {
		return nil, err
	}
	var hw Hardware
	for key, val := range fields {
		switch key {
		case "memoryGB":
			hw.MemoryGB, err = decodeValue[float64](val)
		case "cores":
			hw.Cores, err = decodeInt(val)
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
	}
	return &hw, nil
}

func decodeScreen(raw json.RawMessage) (*Screen, error) {
	fields, err := decodeObject(raw)
	if err != nil {
		return nil, err
	}
	var sc Screen
	for key, val := range fields {
		switch key {
		case "width":
			sc.Width, err = decodeInt(val)
		case "height":
			sc.Height, err = decodeInt(val)
		case "availWidth":
			sc.AvailWidth, err = decodeInt(val)
		case "availHeight":
			sc.AvailHeight, err = decodeInt(val)
		case "colorDepth":
			sc.ColorDepth, err = decodeInt(val)
		case "pixelRatio":
			sc.PixelRatio, err = decodeValue[float64](val)
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
	}
	return &sc, nil
}

func decodeObject(raw []byte) (map[string]json.RawMessage, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil, errNotObject
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

func decodeValue[T bool | string | float64](raw json.RawMessage) (*T, error) {
	if isNull(raw) {
		return nil, errNull
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// decodeInt accepts any integral JSON number, exponent forms included, up to
// the float64 safe-integer range.
func decodeInt(raw json.RawMessage) (*int, error) {
	f, err := decodeValue[float64](raw)
	if err != nil {
		return nil, err
	}
	if *f != math.Trunc(*f) || math.Abs(*f) > maxSafeInteger {
		return nil, errNotInteger
	}
	n := int(*f)
	return &n, nil
}

func decodeStrings(raw json.RawMessage) ([]string, error) {
	if isNull(raw) {
		return nil, errNull
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, err := decodeValue[string](item)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// ValidateStruct checks an already decoded payload.
func ValidateStruct(p *ClientPayload) error {
	if p == nil {
		return fmt.Errorf("%w: nil payload", ErrInvalidPayload)
	}
	if err := getValidator().Struct(p); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}
