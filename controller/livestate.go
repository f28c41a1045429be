package controller

import "github.com/newmanjoel/Lights/util"

// LiveState is what the render loop publishes after every command and every
// frame. Brightness is the level last requested, the sink may receive less
// if the installation caps it.
type LiveState struct {
	Brightness    uint8   `json:"brightness"`
	AnimationID   int     `json:"animation_id"`
	AnimationName string  `json:"animation_name"`
	FrameIndex    int     `json:"frame_index"`
	FrameCount    int     `json:"frame_count"`
	SpeedFPS      float64 `json:"speed_fps"`
}

const (
	DefaultBrightness = 100
	DefaultSpeedFPS   = 24.0
)

func DefaultLiveState() LiveState {
	return LiveState{
		Brightness: DefaultBrightness,
		SpeedFPS:   DefaultSpeedFPS,
	}
}

// NewLiveState returns the publication cell shared by the coordinator and
// its readers, holding the defaults.
func NewLiveState() *util.Snapshot[LiveState] {
	return util.NewSnapshot(DefaultLiveState())
}
