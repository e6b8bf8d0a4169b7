// Package playback decides how much of a capture is sent immediately when a
// client connects.
package playback

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Kind identifies an upfront playback policy.
type Kind string

const (
	KindCount      Kind = "count"
	KindPercentage Kind = "perc"
)

// ErrInvalidPolicy is wrapped by every policy validation error.
var ErrInvalidPolicy = errors.New("invalid upfront playback policy")

// Policy is either Count(n) or Percentage(p). The zero value is invalid.
type Policy struct {
	kind     Kind
	count    uint64
	fraction float64
}

// Count sends exactly n records upfront.
func Count(n uint64) Policy {
	return Policy{kind: KindCount, count: n}
}

// Percentage sends records until at least p of the file's bytes were read.
func Percentage(p float64) Policy {
	return Policy{kind: KindPercentage, fraction: p}
}

// Resolve builds a policy from optional inputs. Exactly one must be set.
func Resolve(count *uint64, perc *float64) (Policy, error) {
	switch {
	case count != nil && perc != nil:
		return Policy{}, fmt.Errorf("%w: count and percentage are mutually exclusive", ErrInvalidPolicy)
	case count != nil:
		return Count(*count), nil
	case perc != nil:
		p := Percentage(*perc)
		return p, p.Validate()
	default:
		return Policy{}, fmt.Errorf("%w: neither count nor percentage set", ErrInvalidPolicy)
	}
}

func (p Policy) Kind() Kind { return p.kind }

// N is the record count of a Count policy.
func (p Policy) N() uint64 { return p.count }

// Fraction is the byte fraction of a Percentage policy.
func (p Policy) Fraction() float64 { return p.fraction }

// Target returns the byte threshold for a file of the given size.
// It is zero for Count policies.
func (p Policy) Target(size int64) float64 {
	if p.kind != KindPercentage {
		return 0
	}
	return float64(size) * p.fraction
}

// IsZero reports whether no variant is set.
func (p Policy) IsZero() bool {
	return p.kind == ""
}

// Validate checks that exactly one variant is active and in range.
func (p Policy) Validate() error {
	switch p.kind {
	case KindCount:
		return nil
	case KindPercentage:
		// NaN fails both comparisons.
		if !(p.fraction >= 0 && p.fraction <= 1) {
			return fmt.Errorf("%w: percentage must be within [0,1], got %v", ErrInvalidPolicy, p.fraction)
		}
		return nil
	case "":
		return fmt.Errorf("%w: no policy set", ErrInvalidPolicy)
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidPolicy, p.kind)
	}
}

func (p Policy) String() string {
	switch p.kind {
	case KindCount:
		return "count:" + strconv.FormatUint(p.count, 10)
	case KindPercentage:
		return "perc:" + strconv.FormatFloat(p.fraction, 'g', -1, 64)
	default:
		return "none"
	}
}

// MarshalText encodes the policy as "count:N" or "perc:P".
func (p Policy) MarshalText() ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return []byte(p.String()), nil
}

// UnmarshalText parses the form written by MarshalText.
func (p *Policy) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Parse reads "count:N" or "perc:P".
func Parse(s string) (Policy, error) {
	kind, value, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return Policy{}, fmt.Errorf("%w: %q is not kind:value", ErrInvalidPolicy, s)
	}
	switch Kind(kind) {
	case KindCount:
		n, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return Policy{}, fmt.Errorf("%w: parsing count: %v", ErrInvalidPolicy, err)
		}
		return Count(n), nil
	case KindPercentage:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return Policy{}, fmt.Errorf("%w: parsing percentage: %v", ErrInvalidPolicy, err)
		}
		pol := Percentage(f)
		return pol, pol.Validate()
	default:
		return Policy{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidPolicy, kind)
	}
}
