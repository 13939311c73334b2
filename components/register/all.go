// Package register registers all frame source drivers
package register

import (
	// register drivers.
	_ "go.viam.com/livevision/components/camera/fake"
	_ "go.viam.com/livevision/components/camera/replay"
	_ "go.viam.com/livevision/components/camera/webcam"
)
