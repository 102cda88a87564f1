package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"datapilot-go/internal/model"
	"datapilot-go/pkg/log"
)

const (
	StrategyGuided        = "guided"
	StrategyDeterministic = "deterministic"

	minGuidedIterations     = 7
	maxGuidedIterations     = 15
	defaultGuidedIterations = 10
	deterministicIterations = 16
)

// LogSink 是只追加的处理日志。
type LogSink interface {
	Append(ctx context.Context, entry *model.IngestionLog) error
}

// Dependencies 是编排器执行各阶段所需的组件。
type Dependencies struct {
	Classifier *Classifier
	Validator  *Validator
	Keys       *KeyIdentifier
	Persister  *Persister
	Mover      *Mover
	Logs       LogSink
	Layout     Layout
}

// GuidedOptions 控制引导式策略；Decider 为 nil 时直接走确定性策略。
type GuidedOptions struct {
	Decider       Decider
	MaxIterations int
	Timeout       time.Duration
}

// Outcome 是获胜策略的最终结果。
type Outcome struct {
	Record      model.IngestionRecord
	Strategy    string
	Inserted    int
	Skipped     int
	Destination string
	Dataset     *model.Dataset
}

// Orchestrator 先尝试引导式策略，失败后以确定性策略重跑，最后做落盘校验。
type Orchestrator struct {
	deps   Dependencies
	guided GuidedOptions
}

// NewOrchestrator 创建 Orchestrator，迭代上限被限制在 [7, 15]，保证合法路径能走完。
func NewOrchestrator(deps Dependencies, guided GuidedOptions) *Orchestrator {
	switch {
	case guided.MaxIterations <= 0:
		guided.MaxIterations = defaultGuidedIterations
	case guided.MaxIterations < minGuidedIterations:
		guided.MaxIterations = minGuidedIterations
	case guided.MaxIterations > maxGuidedIterations:
		guided.MaxIterations = maxGuidedIterations
	}
	if guided.Timeout <= 0 {
		guided.Timeout = 2 * time.Minute
	}
	return &Orchestrator{deps: deps, guided: guided}
}

// Run 处理一个暂存区中的文件。trail 在成功和失败时都记录了每一步。
func (o *Orchestrator) Run(ctx context.Context, filePath, database string, trail *Trail) (*Outcome, error) {
	fileName := filepath.Base(filePath)
	if !SupportedExtension(fileName) {
		trail.Add("不支持的文件类型: %s", fileName)
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, fileName)
	}
	if _, err := os.Stat(filePath); err != nil {
		trail.Add("文件不存在: %s", filePath)
		return nil, fmt.Errorf("%w: %s", ErrSourceMissing, filePath)
	}
	ds, err := LoadDataset(filePath)
	if err != nil {
		trail.Add("读取文件失败: %v", err)
		return nil, err
	}
	trail.Add("已读取 %s: %d 行, %d 列", fileName, len(ds.Rows), len(ds.Columns))

	record := model.IngestionRecord{
		FilePath: filePath,
		FileName: fileName,
		Database: database,
		Columns:  append([]string(nil), ds.Columns...),
	}
	fx := &effects{location: filePath}

	if o.guided.Decider != nil {
		state := newState(record, ds, fx)
		gctx, cancel := context.WithTimeout(ctx, o.guided.Timeout)
		err := o.drive(gctx, o.guided.Decider, state, o.guided.MaxIterations, StrategyGuided, trail)
		cancel()
		if err == nil {
			return o.finish(state, StrategyGuided, trail)
		}
		if errors.Is(err, ErrUnclassified) || ctx.Err() != nil {
			return nil, err
		}
		log.Warnf("[Orchestrator] 引导式策略失败，回退到确定性策略, file: %s, error: %v", fileName, err)
		trail.Add("引导式策略失败 (%v)，回退到确定性策略", err)
	}

	state := newState(record, ds, fx)
	if err := o.drive(ctx, RuleDecider{}, state, deterministicIterations, StrategyDeterministic, trail); err != nil {
		return nil, err
	}
	return o.finish(state, StrategyDeterministic, trail)
}

// finish 对获胜策略做落盘校验。
func (o *Orchestrator) finish(state *State, strategy string, trail *Trail) (*Outcome, error) {
	rec := state.Record
	if rec.Valid {
		expected := o.deps.Layout.OrganizedPath(rec.Category, rec.FileName)
		if _, err := os.Stat(expected); err != nil {
			trail.Add("校验失败: %s 不存在", expected)
			return nil, fmt.Errorf("%w: %s", ErrVerification, expected)
		}
		trail.Add("校验通过: %s", expected)
	}
	trail.Add("策略 %s 完成: Category=%s, Valid=%t", strategy, rec.Category, rec.Valid)
	return &Outcome{
		Record:      rec,
		Strategy:    strategy,
		Inserted:    state.Inserted,
		Skipped:     state.Skipped,
		Destination: state.Destination,
		Dataset:     state.Dataset,
	}, nil
}

func (o *Orchestrator) drive(ctx context.Context, decider Decider, state *State, maxIter int, strategy string, trail *Trail) error {
	trail.Add("开始 %s 策略", strategy)
	for state.Iteration = 0; state.Iteration < maxIter; state.Iteration++ {
		if err := ctx.Err(); err != nil {
			state.Phase = PhaseFailed
			return fmt.Errorf("%s strategy: %w", strategy, err)
		}
		choice, err := decider.NextStage(ctx, state)
		if err != nil {
			state.Phase = PhaseFailed
			return fmt.Errorf("%s strategy: %w", strategy, err)
		}
		if !Legal(state.Phase, choice.Stage) {
			from := state.Phase
			state.Phase = PhaseFailed
			return fmt.Errorf("%s strategy: %w: %q in %s", strategy, errIllegalStage, choice.Stage, from)
		}
		result, err := o.execute(ctx, state, choice, strategy, trail)
		if err != nil {
			state.Phase = PhaseFailed
			return fmt.Errorf("%s strategy: %s: %w", strategy, choice.Stage, err)
		}
		state.Observations = append(state.Observations, Observation{Stage: choice.Stage, CallID: choice.CallID, Result: result})
		if state.Phase == PhaseDone {
			return nil
		}
	}
	state.Phase = PhaseFailed
	return fmt.Errorf("%s strategy: %w (%d)", strategy, errIterationCap, maxIter)
}

// execute 执行一个已确认合法的阶段并推进状态，返回给决策者的观察结果。
func (o *Orchestrator) execute(ctx context.Context, state *State, choice StageChoice, strategy string, trail *Trail) (string, error) {
	rec := &state.Record
	fx := state.effects

	switch choice.Stage {
	case StageClassify:
		category, err := o.deps.Classifier.Classify(ctx, rec.Database, rec.Columns)
		if err != nil {
			return "", err
		}
		rec.Category = category
		trail.Add("分类结果: %s", category)
		if category == model.Unclassified {
			if err := o.appendLog(ctx, state, strategy, trail); err != nil {
				return "", err
			}
			return "", fmt.Errorf("%w: %s", ErrUnclassified, rec.FileName)
		}
		state.Phase = PhaseClassified
		return fmt.Sprintf("Category: %s", category), nil

	case StageValidate:
		valid, err := o.deps.Validator.Validate(ctx, rec.Database, rec.Category, rec.Columns)
		if err != nil {
			return "", err
		}
		rec.Valid = valid
		trail.Add("Schema 校验: %t", valid)
		if valid {
			state.Phase = PhaseValidated
		} else {
			state.Phase = PhaseSchemaInvalid
		}
		return fmt.Sprintf("Valid: %t", valid), nil

	case StageIdentifyKey:
		required, err := o.deps.Validator.RequiredColumns(ctx, rec.Database, rec.Category)
		if err != nil {
			return "", err
		}
		key, err := o.deps.Keys.Identify(ctx, rec.Category, rec.Columns, required)
		if err != nil {
			return "", err
		}
		rec.PrimaryKey = key
		trail.Add("主键: %s", key)
		state.Phase = PhaseKeyed
		return fmt.Sprintf("Primary key: %s", key), nil

	case StagePersist:
		if fx.persisted && fx.persistedCategory == rec.Category {
			state.Inserted, state.Skipped = fx.inserted, fx.skipped
			trail.Add("数据已在上一次尝试中写入，跳过")
		} else {
			inserted, skipped, err := o.deps.Persister.Persist(ctx, rec.Database, rec.Category, rec.PrimaryKey, state.Dataset)
			if err != nil {
				return "", err
			}
			state.Inserted, state.Skipped = inserted, skipped
			fx.persisted, fx.persistedCategory = true, rec.Category
			fx.inserted, fx.skipped = inserted, skipped
			trail.Add("写入 %s.%s: 插入/更新 %d, 跳过 %d", rec.Database, rec.Category, inserted, skipped)
		}
		state.Phase = PhasePersisted
		return fmt.Sprintf("Inserted: %d, Skipped: %d", state.Inserted, state.Skipped), nil

	case StageMove:
		target := o.deps.Layout.OrganizedPath(rec.Category, rec.FileName)
		if fx.location == target {
			trail.Add("文件已位于 %s，跳过移动", target)
		} else {
			dest, err := o.deps.Mover.Move(fx.location, rec.Category, rec.FileName)
			if err != nil {
				return "", err
			}
			fx.location = dest
			trail.Add("已移动到 %s", dest)
		}
		state.Destination = fx.location
		state.Phase = PhaseMoved
		return fmt.Sprintf("Moved to: %s", state.Destination), nil

	case StageLog:
		if err := o.appendLog(ctx, state, strategy, trail); err != nil {
			return "", err
		}
		state.Phase = PhaseLogged
		return "Logged", nil

	case StageFinish:
		category, valid, err := ParseSummary(choice.Summary)
		if err != nil {
			return "", err
		}
		if category != rec.Category || valid != rec.Valid {
			return "", fmt.Errorf("summary %q disagrees with observed state (category=%s, valid=%t)",
				choice.Summary, rec.Category, rec.Valid)
		}
		state.Phase = PhaseDone
		return "Done", nil
	}
	return "", fmt.Errorf("%w: %q", errIllegalStage, choice.Stage)
}

// appendLog 每个文件只写一条日志，回退重跑时不会重复。
func (o *Orchestrator) appendLog(ctx context.Context, state *State, strategy string, trail *Trail) error {
	rec := state.Record
	fx := state.effects
	if fx.logged && fx.loggedCategory == rec.Category && fx.loggedValid == rec.Valid {
		trail.Add("日志已写入，跳过")
		return nil
	}
	entry := &model.IngestionLog{
		FileName: rec.FileName,
		Category: rec.Category,
		Valid:    rec.Valid,
		Strategy: strategy,
	}
	if err := o.deps.Logs.Append(ctx, entry); err != nil {
		return err
	}
	fx.logged, fx.loggedCategory, fx.loggedValid = true, rec.Category, rec.Valid
	trail.Add("已记录日志: %s", entry.Line())
	return nil
}
