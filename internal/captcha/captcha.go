// Package captcha holds the data model shared by every stage of a solve attempt:
// recognition modes, the located challenge source, the extracted image payload,
// the failure taxonomy, and the acceptance rule for recognized text.
package captcha

import "fmt"

// Mode tells the recognition service which character class to expect.
type Mode string

const (
	ModeNumeric Mode = "numeric"
	ModeAlpha   Mode = "alpha"
	ModeAlnum   Mode = "alnum"
)

var modes = []Mode{ModeNumeric, ModeAlpha, ModeAlnum}

// Valid reports whether m is one of the modes the recognition service accepts.
func (m Mode) Valid() bool {
	for _, known := range modes {
		if m == known {
			return true
		}
	}
	return false
}

// ModeNames lists the accepted modes in their canonical order.
func ModeNames() []string {
	names := make([]string, len(modes))
	for i, m := range modes {
		names[i] = string(m)
	}
	return names
}

// ParseMode converts user input into a Mode.
func ParseMode(s string) (Mode, error) {
	m := Mode(s)
	if !m.Valid() {
		return "", fmt.Errorf("unsupported recognition mode %q", s)
	}
	return m, nil
}

// Kind discriminates how the challenge is presented on the page.
type Kind int

const (
	// KindNone is the zero value: nothing was located.
	KindNone Kind = iota
	KindImage
	KindCanvas
)

func (k Kind) String() string {
	switch k {
	case KindImage:
		return "image"
	case KindCanvas:
		return "canvas"
	default:
		return "none"
	}
}

// Source is the challenge element found on one attempt. Handle is the selector that
// matched; it is only meaningful for the attempt that produced it, since the page may
// swap the element before the next one.
type Source struct {
	Kind   Kind
	Handle string
}

// ImageSource builds a Source for an <img> element.
func ImageSource(handle string) Source { return Source{Kind: KindImage, Handle: handle} }

// CanvasSource builds a Source for a <canvas> element.
func CanvasSource(handle string) Source { return Source{Kind: KindCanvas, Handle: handle} }

// Found reports whether the source refers to an element.
func (s Source) Found() bool { return s.Kind != KindNone }

// Image is the raw challenge payload handed to the recognition service.
type Image struct {
	Data        []byte
	ContentType string
}
