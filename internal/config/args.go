package config

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/BrandonDHaskell/Portunus/door/internal/wiegand"
)

var ErrUsage = errors.New("usage: portunus-door [flags] ACCESS_LIST BITS [BITS...]")

// Args are the positional command-line arguments.
type Args struct {
	AccessList string
	BitLengths []int
}

// ParseArgs splits positional arguments into the access list path and the
// enabled frame lengths.
func ParseArgs(args []string, capacity int) (Args, error) {
	if len(args) < 2 {
		return Args{}, ErrUsage
	}
	lengths, err := ParseBitLengths(args[1:], capacity)
	if err != nil {
		return Args{}, err
	}
	return Args{AccessList: args[0], BitLengths: lengths}, nil
}

// ParseBitLengths validates each argument as a positive integer no larger
// than the capture capacity and known to the decoder.  Duplicates collapse.
func ParseBitLengths(args []string, capacity int) ([]int, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("no bit lengths given: %w", ErrUsage)
	}

	seen := make(map[int]struct{}, len(args))
	out := make([]int, 0, len(args))
	for _, a := range args {
		n, err := strconv.Atoi(a)
		if err != nil {
			return nil, fmt.Errorf("bit length %q is not an integer: %w", a, ErrUsage)
		}
		if n <= 0 {
			return nil, fmt.Errorf("bit length %d must be positive: %w", n, ErrUsage)
		}
		if n > capacity {
			return nil, fmt.Errorf("bit length %d exceeds capture capacity %d: %w", n, capacity, ErrUsage)
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}

	if _, err := wiegand.NewFormats(out...); err != nil {
		return nil, fmt.Errorf("%w: %w", err, ErrUsage)
	}
	return out, nil
}
