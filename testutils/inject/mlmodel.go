package inject

import (
	"context"

	"go.viam.com/livevision/ml"
	"go.viam.com/livevision/rimage"
	"go.viam.com/livevision/services/mlmodel"
)

// MLModel is an injected model.
type MLModel struct {
	mlmodel.Service
	RunFunc      func(ctx context.Context, input *rimage.ImageBuffer) (*ml.Tensor, error)
	MetadataFunc func(ctx context.Context) (mlmodel.MLMetadata, error)
	CloseFunc    func(ctx context.Context) error
}

// NewMLModel returns an injected model with nothing behind it.
func NewMLModel() *MLModel {
	return &MLModel{}
}

// Run calls the injected Run or the real version.
func (m *MLModel) Run(ctx context.Context, input *rimage.ImageBuffer) (*ml.Tensor, error) {
	if m.RunFunc == nil {
		return m.Service.Run(ctx, input)
	}
	return m.RunFunc(ctx, input)
}

// Metadata calls the injected Metadata or the real version.
func (m *MLModel) Metadata(ctx context.Context) (mlmodel.MLMetadata, error) {
	if m.MetadataFunc == nil {
		return m.Service.Metadata(ctx)
	}
	return m.MetadataFunc(ctx)
}

// Close calls the injected Close or the real version.
func (m *MLModel) Close(ctx context.Context) error {
	if m.CloseFunc == nil {
		if m.Service == nil {
			return nil
		}
		return m.Service.Close(ctx)
	}
	return m.CloseFunc(ctx)
}
