package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/askflow/checkpoint"
	"github.com/BaSui01/askflow/memory"
	"github.com/BaSui01/askflow/types"
	"github.com/BaSui01/askflow/workflow"
)

const defaultBatchWorkers = 4

// taskOutput 单个任务的输出行
type taskOutput struct {
	TaskID string `json:"task_id"`
	Query  string `json:"query,omitempty"`
	Status string `json:"status"`
	Answer string `json:"answer,omitempty"`
	Rounds int    `json:"rounds,omitempty"`
	Error  string `json:"error,omitempty"`
}

func outputOf(taskID, query string, state *types.TaskState, err error) taskOutput {
	out := taskOutput{TaskID: taskID, Query: query}
	switch {
	case err != nil:
		out.Status = workflow.OutcomeError
		out.Error = err.Error()
	case state.Failed():
		out.Status = workflow.OutcomeFail
		out.Answer = state.Answer
		out.Rounds = state.Retrieval.Round
	default:
		out.Status = workflow.OutcomePass
		out.Answer = state.Answer
		out.Rounds = state.Retrieval.Round
	}
	return out
}

// withApp 加载配置、装配组件并在结束时释放
func withApp(ctx context.Context, configPath string, stderr io.Writer, fn func(*app) int) int {
	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load config: %v\n", err)
		return exitError
	}

	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize", zap.Error(err))
		fmt.Fprintf(stderr, "Failed to initialize: %v\n", err)
		return exitError
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.Close(closeCtx); err != nil {
			logger.Warn("shutdown incomplete", zap.Error(err))
		}
	}()
	return fn(a)
}

// =============================================================================
// ▶️ run / resume
// =============================================================================

func runCommand(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to config file")
	queryFlag := fs.String("query", "", "User query")
	taskID := fs.String("task", "", "Task id; resumes when a checkpoint exists")
	asJSON := fs.Bool("json", false, "Print the final state as JSON")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	query := strings.TrimSpace(*queryFlag)
	if query == "" || fs.NArg() > 0 {
		fmt.Fprintln(stderr, "run: --query is required and takes no positional arguments")
		return exitUsage
	}

	return withApp(ctx, *configPath, stderr, func(a *app) int {
		var (
			state *types.TaskState
			err   error
		)
		if *taskID != "" {
			state, err = a.orchestrator.RunOrResume(ctx, *taskID, query)
		} else {
			*taskID = workflow.NewTaskID()
			state, err = a.orchestrator.Start(ctx, *taskID, query)
		}
		return report(stdout, stderr, outputOf(*taskID, query, state, err), state, *asJSON)
	})
}

func resumeCommand(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("resume", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to config file")
	taskFlag := fs.String("task", "", "Task id to resume")
	asJSON := fs.Bool("json", false, "Print the final state as JSON")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	taskID := strings.TrimSpace(*taskFlag)
	if taskID == "" || fs.NArg() > 0 {
		fmt.Fprintln(stderr, "resume: --task is required")
		return exitUsage
	}

	return withApp(ctx, *configPath, stderr, func(a *app) int {
		state, err := a.orchestrator.Resume(ctx, taskID)
		if workflow.IsNoCheckpoint(err) {
			fmt.Fprintf(stdout, "No checkpoint for task %s\n", taskID)
			return exitNoCheckpoint
		}
		query := ""
		if state != nil {
			query = state.UserQuery
		}
		return report(stdout, stderr, outputOf(taskID, query, state, err), state, *asJSON)
	})
}

// report 输出任务结果。任务在 fail 阶段结束时仍输出兜底答案，但退出码为 exitError。
func report(stdout, stderr io.Writer, out taskOutput, state *types.TaskState, asJSON bool) int {
	if out.Status == workflow.OutcomeError {
		fmt.Fprintf(stderr, "Task %s failed: %s\n", out.TaskID, out.Error)
		return exitError
	}
	if asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		if err := enc.Encode(state); err != nil {
			fmt.Fprintf(stderr, "encode state: %v\n", err)
			return exitError
		}
	} else {
		fmt.Fprintf(stdout, "task_id: %s\nstatus:  %s\nrounds:  %d\n\n%s\n", out.TaskID, out.Status, out.Rounds, out.Answer)
	}
	return exitCodeOf(out)
}

func exitCodeOf(out taskOutput) int {
	if out.Status == workflow.OutcomePass {
		return exitOK
	}
	return exitError
}

// =============================================================================
// 📜 trace
// =============================================================================

func traceCommand(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("trace", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to config file")
	taskFlag := fs.String("task", "", "Task id whose trace to print")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	taskID := strings.TrimSpace(*taskFlag)
	if taskID == "" || fs.NArg() > 0 {
		fmt.Fprintln(stderr, "trace: --task is required")
		return exitUsage
	}

	return withApp(ctx, *configPath, stderr, func(a *app) int {
		trace, err := loadTrace(ctx, a, taskID)
		if errors.Is(err, checkpoint.ErrNotFound) {
			fmt.Fprintf(stdout, "No trace for task %s\n", taskID)
			return exitNoCheckpoint
		}
		if err != nil {
			fmt.Fprintf(stderr, "trace: %v\n", err)
			return exitError
		}
		enc := json.NewEncoder(stdout)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		if err := enc.Encode(trace); err != nil {
			fmt.Fprintf(stderr, "encode trace: %v\n", err)
			return exitError
		}
		return exitOK
	})
}

// loadTrace 优先读取任务记忆；进程内存储在新进程中为空，此时回退到检查点。
func loadTrace(ctx context.Context, a *app, taskID string) ([]types.TraceEntry, error) {
	trace, err := a.orchestrator.Trace(ctx, taskID)
	if err == nil {
		return trace, nil
	}
	if !errors.Is(err, memory.ErrNotFound) {
		return nil, err
	}
	cp, err := a.checkpoints.Load(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return cp.Memory.Trace, nil
}

// =============================================================================
// 📦 batch
// =============================================================================

func batchCommand(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("batch", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to config file")
	workers := fs.Int("workers", defaultBatchWorkers, "Concurrent tasks")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if *workers <= 0 {
		fmt.Fprintln(stderr, "batch: --workers must be positive")
		return exitUsage
	}

	in := stdin
	if fs.NArg() > 0 && fs.Arg(0) != "-" {
		f, err := os.Open(fs.Arg(0))
		if err != nil {
			fmt.Fprintf(stderr, "batch: %v\n", err)
			return exitError
		}
		defer f.Close()
		in = f
	}
	queries, err := readQueries(in)
	if err != nil {
		fmt.Fprintf(stderr, "batch: %v\n", err)
		return exitError
	}

	return withApp(ctx, *configPath, stderr, func(a *app) int {
		results, err := runBatch(ctx, a.orchestrator, queries, *workers)
		if err != nil {
			fmt.Fprintf(stderr, "batch interrupted: %v\n", err)
		}

		enc := json.NewEncoder(stdout)
		enc.SetEscapeHTML(false)
		code := exitOK
		for _, r := range results {
			if r.TaskID == "" {
				continue
			}
			_ = enc.Encode(r)
			if exitCodeOf(r) != exitOK {
				code = exitError
			}
		}
		if err != nil {
			return exitError
		}
		return code
	})
}

// readQueries 每行一个查询，跳过空行与 # 注释
func readQueries(r io.Reader) ([]string, error) {
	var queries []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		queries = append(queries, line)
	}
	return queries, sc.Err()
}

// runBatch 以有限并发运行任务。单个任务失败只记录在结果中，
// 只有 ctx 取消会中止整批，未开始的任务结果保持为空。
func runBatch(ctx context.Context, orch *workflow.Orchestrator, queries []string, workers int) ([]taskOutput, error) {
	results := make([]taskOutput, len(queries))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, q := range queries {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			taskID := workflow.NewTaskID()
			state, err := orch.Start(gctx, taskID, q)
			out := outputOf(taskID, q, state, err)

			mu.Lock()
			results[i] = out
			mu.Unlock()

			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			return nil
		})
	}
	return results, g.Wait()
}
