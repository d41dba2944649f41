package domain

import (
	"fmt"
	"strings"
)

func (v Visibility) Public() bool {
	return v == VisibilityPublic
}

func VisibilityFor(public bool) Visibility {
	if public {
		return VisibilityPublic
	}
	return VisibilityPrivate
}

func ParseVisibility(raw string) (Visibility, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "public":
		return VisibilityPublic, nil
	case "private":
		return VisibilityPrivate, nil
	default:
		return VisibilityUnknown, fmt.Errorf("visibility must be public or private, got %q", raw)
	}
}
