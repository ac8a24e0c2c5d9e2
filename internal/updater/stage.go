package updater

// Stage is a step of a job run.
type Stage string

const (
	StageInit       Stage = "INIT"
	StageCreateDirs Stage = "CREATE_DIRS"
	StageStartProxy Stage = "START_PROXY"
	StageRunSandbox Stage = "RUN_SANDBOX"
	StageCleanup    Stage = "CLEANUP"
	StageDone       Stage = "DONE"
	StageFailed     Stage = "FAILED"
)

// run carries the state of one Run call from stage to stage.
type run struct {
	stage     Stage
	outputDir string
	repoDir   string
	history   []Stage
}

func (r *run) enter(stage Stage) {
	r.stage = stage
	r.history = append(r.history, stage)
}
