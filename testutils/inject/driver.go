package inject

import (
	"context"
	"image"

	"go.viam.com/livevision/components/camera"
)

// Driver is an injected capture driver.
type Driver struct {
	camera.Driver
	OpenFunc  func(ctx context.Context) error
	ReadFunc  func(ctx context.Context) (image.Image, error)
	CloseFunc func(ctx context.Context) error
}

// NewDriver returns an injected driver with nothing behind it.
func NewDriver() *Driver {
	return &Driver{}
}

// Open calls the injected Open or the real version.
func (d *Driver) Open(ctx context.Context) error {
	if d.OpenFunc == nil {
		return d.Driver.Open(ctx)
	}
	return d.OpenFunc(ctx)
}

// Read calls the injected Read or the real version.
func (d *Driver) Read(ctx context.Context) (image.Image, error) {
	if d.ReadFunc == nil {
		return d.Driver.Read(ctx)
	}
	return d.ReadFunc(ctx)
}

// Close calls the injected Close or the real version.
func (d *Driver) Close(ctx context.Context) error {
	if d.CloseFunc == nil {
		if d.Driver == nil {
			return nil
		}
		return d.Driver.Close(ctx)
	}
	return d.CloseFunc(ctx)
}
