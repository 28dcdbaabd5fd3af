package monitor

import "fmt"

// Stage names the step of session start-up that failed.
type Stage string

const (
	StageContext Stage = "context"
	StageResume  Stage = "resume"
	StageLoad    Stage = "load"
	StageGraph   Stage = "graph"
	StagePlay    Stage = "play"
)

// PlaybackError reports a narration that could not be started.
type PlaybackError struct {
	URL   string
	Stage Stage
	Err   error
}

func (e *PlaybackError) Error() string {
	return fmt.Sprintf("narration %s: %s: %v", e.Stage, e.URL, e.Err)
}

func (e *PlaybackError) Unwrap() error { return e.Err }
