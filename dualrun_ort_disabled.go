//go:build !cgo || (!ORT && !ALL)

package dualrun

import (
	"errors"

	"github.com/knights-analytics/dualrun/options"
)

var errORTDisabled = errors.New("to enable ORT, run `go build -tags ORT` or `go build -tags ALL`")

func NewORTSession(_ ...options.WithOption) (*Session, error) {
	return nil, errORTDisabled
}

func NewComparisonSession(_ ...options.WithOption) (*Session, error) {
	return nil, errORTDisabled
}
