package producer

import (
	"fmt"
	"log/slog"

	"github.com/newmanjoel/Lights/animation"
	"github.com/newmanjoel/Lights/util"
)

// LoadStartupAnimation queues the library animation with the given id.
// An id of 0 means no startup animation. The send gives up on shutdown.
func LoadStartupAnimation(id int, lib AnimationLookup, cmds chan<- animation.Command, shutdown *util.Shutdown) error {
	if id == 0 {
		return nil
	}
	anim, err := lib.Get(id)
	if err != nil {
		return fmt.Errorf("startup animation %d: %w", id, err)
	}
	slog.Info("Loading startup animation", "animation_id", anim.ID, "name", anim.Name)
	select {
	case cmds <- animation.SetAnimation{Animation: anim}:
	case <-shutdown.Done():
	}
	return nil
}
