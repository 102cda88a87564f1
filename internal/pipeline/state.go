package pipeline

import (
	"datapilot-go/internal/model"
)

// Phase 是编排状态机的状态。
type Phase string

const (
	PhaseStart         Phase = "START"
	PhaseClassified    Phase = "CLASSIFIED"
	PhaseValidated     Phase = "VALIDATED"
	PhaseSchemaInvalid Phase = "SCHEMA_INVALID"
	PhaseKeyed         Phase = "KEYED"
	PhasePersisted     Phase = "PERSISTED"
	PhaseMoved         Phase = "MOVED"
	PhaseLogged        Phase = "LOGGED"
	PhaseDone          Phase = "DONE"
	PhaseFailed        Phase = "FAILED"
)

// Stage 是决策者可以选择调用的阶段，名称同时用作模型工具名。
type Stage string

const (
	StageClassify    Stage = "classify_file"
	StageValidate    Stage = "validate_schema"
	StageIdentifyKey Stage = "identify_primary_key"
	StagePersist     Stage = "insert_records"
	StageMove        Stage = "move_to_category"
	StageLog         Stage = "log_ingestion"
	StageFinish      Stage = "finish"
)

// allowedFrom 列出每个阶段合法的前置状态，固定顺序由它保证。
var allowedFrom = map[Stage][]Phase{
	StageClassify:    {PhaseStart},
	StageValidate:    {PhaseClassified},
	StageIdentifyKey: {PhaseValidated},
	StagePersist:     {PhaseKeyed},
	StageMove:        {PhasePersisted},
	StageLog:         {PhaseMoved, PhaseSchemaInvalid},
	StageFinish:      {PhaseLogged},
}

// Legal 判断在 phase 下调用 stage 是否合法。
func Legal(phase Phase, stage Stage) bool {
	for _, p := range allowedFrom[stage] {
		if p == phase {
			return true
		}
	}
	return false
}

// StageChoice 是决策者的一次输出。Stage 为 StageFinish 时 Summary 携带最终摘要。
type StageChoice struct {
	Stage   Stage
	CallID  string
	Summary string
}

// Observation 记录一次已执行阶段的结果，供模型决策者重建对话。
type Observation struct {
	Stage  Stage
	CallID string
	Result string
}

// effects 记录跨策略保留的副作用：文件当前位置与已写入的日志。
type effects struct {
	location string

	persisted         bool
	persistedCategory string
	inserted, skipped int

	logged         bool
	loggedCategory string
	loggedValid    bool
}

// State 是一次策略运行的全部可变状态。
type State struct {
	Phase        Phase
	Record       model.IngestionRecord
	Dataset      *model.Dataset
	Inserted     int
	Skipped      int
	Destination  string
	Iteration    int
	Observations []Observation

	effects *effects
}

func newState(record model.IngestionRecord, ds *model.Dataset, fx *effects) *State {
	return &State{
		Phase:   PhaseStart,
		Record:  record,
		Dataset: ds,
		effects: fx,
	}
}
