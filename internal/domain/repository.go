package domain

import (
	"context"
	"image"
)

// SnapshotStore is a secondary port that persists captured stills.
// Save returns the path the image was written to.
type SnapshotStore interface {
	Save(img image.Image) (string, error)
}

// Camera is a secondary port for the one-shot high-resolution capture.
// Live frames travel on the frame bus, not through this port.
type Camera interface {
	TakeSnapshot(ctx context.Context) (Frame, error)
}

// Display is a secondary port that accepts preview control commands.
type Display interface {
	Control(ctx context.Context, cmd UIControlCommand) error
}

// TriggerControl is the command side of the trigger state machine.
type TriggerControl interface {
	Control(ctx context.Context, cmd ControlCommand) error
}
