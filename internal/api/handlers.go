package api

import (
	"context"

	"github.com/vytor/hanziflash/internal/objecturl"
	"github.com/vytor/hanziflash/internal/offline"
	"github.com/vytor/hanziflash/internal/services"
)

// ReadinessCheck is one dependency probed by /readyz.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type Server struct {
	StudyService services.StudyService
	Offline      *offline.Manager
	Blobs        *objecturl.Registry
	Checks       []ReadinessCheck
}
