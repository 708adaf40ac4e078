package reaction

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// Color is a packed 0xRRGGBB value.
type Color uint32

const (
	Red   Color = 0xff0000
	Green Color = 0x00ff00
)

// ParseColor accepts "#rrggbb" or "0xrrggbb".
func ParseColor(s string) (Color, error) {
	raw := strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(raw, "#"):
		raw = raw[1:]
	case strings.HasPrefix(raw, "0x"), strings.HasPrefix(raw, "0X"):
		raw = raw[2:]
	default:
		return 0, eris.Errorf("color %q: want #rrggbb or 0xrrggbb", s)
	}
	if len(raw) != 6 {
		return 0, eris.Errorf("color %q: want six hex digits", s)
	}

	v, err := strconv.ParseUint(raw, 16, 32)
	if err != nil {
		return 0, eris.Wrapf(err, "color %q", s)
	}
	return Color(v), nil
}

// Hex renders the color as "#rrggbb".
func (c Color) Hex() string {
	return fmt.Sprintf("#%06x", uint32(c)&0xffffff)
}

// RGB splits the color into its channels.
func (c Color) RGB() (r, g, b uint8) {
	return uint8(c >> 16), uint8(c >> 8), uint8(c)
}

func (c Color) String() string {
	return c.Hex()
}

// MarshalText lets colors appear as hex strings in JSON and YAML.
func (c Color) MarshalText() ([]byte, error) {
	return []byte(c.Hex()), nil
}

func (c *Color) UnmarshalText(text []byte) error {
	parsed, err := ParseColor(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
