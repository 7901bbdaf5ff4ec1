package effects

import (
	"fmt"
	"strings"
)

// HintKind enumerates classification strategies.
type HintKind uint8

const (
	HintFirstCreated HintKind = iota + 1
	HintPreferShared
	HintPreferOwned
	HintByStructuralType
)

// Hint tells the classifier which created object the caller wants.
type Hint struct {
	Kind HintKind
	Name string // HintByStructuralType only
}

func FirstCreated() Hint                { return Hint{Kind: HintFirstCreated} }
func PreferShared() Hint                { return Hint{Kind: HintPreferShared} }
func PreferOwned() Hint                 { return Hint{Kind: HintPreferOwned} }
func ByStructuralType(name string) Hint { return Hint{Kind: HintByStructuralType, Name: name} }

func (h Hint) String() string {
	switch h.Kind {
	case HintFirstCreated:
		return "FirstCreated"
	case HintPreferShared:
		return "PreferShared"
	case HintPreferOwned:
		return "PreferOwned"
	case HintByStructuralType:
		return fmt.Sprintf("ByStructuralType(%s)", h.Name)
	default:
		return fmt.Sprintf("HintKind(%d)", h.Kind)
	}
}

// ParseHint accepts the String form, or the shorthands "first", "shared",
// "owned" and "type:Name".
func ParseHint(s string) (Hint, error) {
	s = strings.TrimSpace(s)
	switch s {
	case "FirstCreated", "first":
		return FirstCreated(), nil
	case "PreferShared", "shared":
		return PreferShared(), nil
	case "PreferOwned", "owned":
		return PreferOwned(), nil
	}
	if name, ok := strings.CutPrefix(s, "type:"); ok && name != "" {
		return ByStructuralType(strings.TrimSpace(name)), nil
	}
	if inner, ok := strings.CutPrefix(s, "ByStructuralType("); ok && strings.HasSuffix(inner, ")") && len(inner) > 1 {
		return ByStructuralType(strings.TrimSpace(strings.TrimSuffix(inner, ")"))), nil
	}
	return Hint{}, fmt.Errorf("unknown classifier hint %q", s)
}
