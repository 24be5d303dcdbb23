package recipe

type Stage string

const (
	StageIdle       Stage = "idle"
	StagePreparing  Stage = "preparing"
	StageAnalyzing  Stage = "analyzing"
	StageGenerating Stage = "generating"
	StageFormatting Stage = "formatting"
	StageCompleted  Stage = "completed"
)

// Simulated progress while generating climbs from the analyzing value
// toward this ceiling and never reaches the formatting value.
const generatingCeiling = 0.85

// BaseProgress is the progress fraction a stage starts at.
func (s Stage) BaseProgress() float64 {
	switch s {
	case StagePreparing:
		return 0.1
	case StageAnalyzing, StageGenerating:
		return 0.3
	case StageFormatting:
		return 0.9
	case StageCompleted:
		return 1.0
	}
	return 0
}

func (s Stage) next() Stage {
	switch s {
	case StageIdle:
		return StagePreparing
	case StagePreparing:
		return StageAnalyzing
	case StageAnalyzing:
		return StageGenerating
	case StageGenerating:
		return StageFormatting
	case StageFormatting:
		return StageCompleted
	}
	return StageIdle
}

type Progress struct {
	RequestID string  `json:"request_id,omitempty"`
	Stage     Stage   `json:"stage"`
	Value     float64 `json:"progress"`
}
