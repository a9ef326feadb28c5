package netlist

import (
	"fmt"
	"strconv"
	"strings"
)

// Location is a LOC constraint: a required function block and, optionally,
// a required slot within it (spec.md §3 "Requested location"). It is user
// intent, not a placement commitment.
type Location struct {
	FB int
	I  *int
}

// ParseLocation parses a LOC parameter of the form "FBn", "FBn_i", or
// "FBn_Pi" (spec.md §6). A nil loc is not an error; it means no
// constraint was given.
func ParseLocation(loc *string) (*Location, error) {
	if loc == nil {
		return nil, nil
	}
	s := *loc
	if !strings.HasPrefix(s, "FB") {
		return nil, fmt.Errorf("%w: %q", ErrBadLoc, s)
	}
	parts := strings.Split(s, "_")
	switch len(parts) {
	case 1:
		fb, err := strconv.Atoi(parts[0][2:])
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrBadLoc, s)
		}
		return &Location{FB: fb}, nil
	case 2:
		fb, err := strconv.Atoi(parts[0][2:])
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrBadLoc, s)
		}
		idxPart := parts[1]
		if strings.HasPrefix(idxPart, "P") {
			idxPart = idxPart[1:]
		}
		i, err := strconv.Atoi(idxPart)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrBadLoc, s)
		}
		return &Location{FB: fb, I: &i}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrBadLoc, s)
	}
}
