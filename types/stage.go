package types

// Stage identifies one step of the pipeline.
type Stage string

// Pipeline stages.
const (
	StagePlan     Stage = "plan"
	StageRetrieve Stage = "retrieve"
	StageExecute  Stage = "execute"
	StageCritique Stage = "critique"
	StageRewrite  Stage = "rewrite"
	StageFail     Stage = "fail"
	StageDone     Stage = "done"
)

// AllStages returns every stage in graph order.
func AllStages() []Stage {
	return []Stage{
		StagePlan,
		StageRetrieve,
		StageExecute,
		StageCritique,
		StageRewrite,
		StageFail,
		StageDone,
	}
}

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	switch s {
	case StagePlan, StageRetrieve, StageExecute, StageCritique, StageRewrite, StageFail, StageDone:
		return true
	}
	return false
}

// IsTerminal reports whether the machine stops at s.
// Fail is not terminal here: it still runs once and then moves to Done.
func (s Stage) IsTerminal() bool {
	return s == StageDone
}

func (s Stage) String() string { return string(s) }
