package pipeline

import (
	"context"
	"fmt"
)

// Decider 根据当前状态选择下一个阶段。
type Decider interface {
	NextStage(ctx context.Context, state *State) (StageChoice, error)
}

// RuleDecider 是确定性策略：固定顺序，按校验结果分支，永远可用。
type RuleDecider struct{}

func (RuleDecider) NextStage(_ context.Context, state *State) (StageChoice, error) {
	switch state.Phase {
	case PhaseStart:
		return StageChoice{Stage: StageClassify}, nil
	case PhaseClassified:
		return StageChoice{Stage: StageValidate}, nil
	case PhaseValidated:
		return StageChoice{Stage: StageIdentifyKey}, nil
	case PhaseKeyed:
		return StageChoice{Stage: StagePersist}, nil
	case PhasePersisted:
		return StageChoice{Stage: StageMove}, nil
	case PhaseMoved, PhaseSchemaInvalid:
		return StageChoice{Stage: StageLog}, nil
	case PhaseLogged:
		return StageChoice{Stage: StageFinish, Summary: FormatSummary(state.Record.Category, state.Record.Valid)}, nil
	default:
		return StageChoice{}, fmt.Errorf("no stage after phase %s", state.Phase)
	}
}
