package service

import (
	"context"

	"github.com/savechina/rv/internal/ruby"
)

// RubyPinService reads and writes the project's .ruby-version file.
type RubyPinService struct{}

// NewRubyPinService creates a new ruby pin service.
func NewRubyPinService() *RubyPinService {
	return &RubyPinService{}
}

// PinRequest contains parameters for the pin operation.
type PinRequest struct {
	// Dir is the project directory.
	Dir string
	// Version to pin. Empty shows the current pin.
	Version string
}

// PinResult describes the pin that was written or found.
type PinResult struct {
	Request ruby.Request
	Path    string
	Written bool
}

// Pin writes Version to Dir, or when Version is empty reports the pin
// found walking up from Dir.
func (s *RubyPinService) Pin(ctx context.Context, req PinRequest) (*PinResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if req.Version == "" {
		pin, path, err := ruby.ReadPin(req.Dir)
		if err != nil {
			return nil, err
		}
		return &PinResult{Request: pin, Path: path}, nil
	}

	pin, err := ruby.ParseRequest(req.Version)
	if err != nil {
		return nil, err
	}
	path, err := ruby.WritePin(req.Dir, pin)
	if err != nil {
		return nil, err
	}
	return &PinResult{Request: pin, Path: path, Written: true}, nil
}
