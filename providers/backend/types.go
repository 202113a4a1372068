package backend

import (
	"context"

	"deploykit/types"
)

//go:generate mockgen -source=types.go -destination=mock/mock_backend.go -package=mock

// Provider stores the last deploy record of every host of a project.
type Provider interface {
	PreCmd(ctx context.Context, project string) error
	Read(ctx context.Context, project, host string) (*types.Record, error)
	Write(ctx context.Context, record *types.Record) error
	Delete(ctx context.Context, project string) error
	List(ctx context.Context, project string) ([]types.Record, error)
}
