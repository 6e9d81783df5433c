package event

import (
	"fmt"
	"math/bits"
	"strings"
)

// Category is the top-level classification bit of an event.
type Category uint16

const (
	// CategorySystem carries engine-level notices and diagnostics.
	CategorySystem Category = 1 << iota
	// CategoryIO carries keyboard, mouse and game device input.
	CategoryIO
	// CategoryTimer carries clock pulses.
	CategoryTimer
	// CategoryVideo carries visual object lifecycle notices.
	CategoryVideo
	// CategoryAudio carries audio object lifecycle notices.
	CategoryAudio
	// CategoryTarget carries commands sent to a frameserver.
	CategoryTarget
	// CategoryFrameserver carries frameserver status updates.
	CategoryFrameserver
	// CategoryExternal carries notices emitted by external programs.
	CategoryExternal
	// CategoryNet carries network connection state.
	CategoryNet
)

// CategoryAll has every known category bit set.
const CategoryAll = CategorySystem | CategoryIO | CategoryTimer | CategoryVideo |
	CategoryAudio | CategoryTarget | CategoryFrameserver | CategoryExternal | CategoryNet

// CategoryNone has no bits set.
const CategoryNone Category = 0

var categoryNames = []struct {
	cat  Category
	name string
}{
	{CategorySystem, "system"},
	{CategoryIO, "io"},
	{CategoryTimer, "timer"},
	{CategoryVideo, "video"},
	{CategoryAudio, "audio"},
	{CategoryTarget, "target"},
	{CategoryFrameserver, "frameserver"},
	{CategoryExternal, "external"},
	{CategoryNet, "net"},
}

// Valid reports whether exactly one known category bit is set.
func (c Category) Valid() bool {
	return c != 0 && c&^CategoryAll == 0 && bits.OnesCount16(uint16(c)) == 1
}

// Has reports whether every bit of other is set in c.
func (c Category) Has(other Category) bool {
	return c&other == other
}

// String returns the category name, or a "|" separated list for masks.
func (c Category) String() string {
	if c == 0 {
		return "none"
	}
	var parts []string
	rest := c
	for _, cn := range categoryNames {
		if c&cn.cat != 0 {
			parts = append(parts, cn.name)
			rest &^= cn.cat
		}
	}
	if rest != 0 {
		parts = append(parts, fmt.Sprintf("0x%x", uint16(rest)))
	}
	return strings.Join(parts, "|")
}

// ParseCategory parses a single category name (case-insensitive).
func ParseCategory(s string) (Category, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for _, cn := range categoryNames {
		if cn.name == name {
			return cn.cat, nil
		}
	}
	if name == "all" {
		return CategoryAll, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownCategory, s)
}

// ParseCategoryMask combines a list of category names into a mask.
// An empty list yields CategoryNone.
func ParseCategoryMask(names []string) (Category, error) {
	var mask Category
	for _, n := range names {
		c, err := ParseCategory(n)
		if err != nil {
			return 0, err
		}
		mask |= c
	}
	return mask, nil
}
