// Package score evaluates diet-profile scoring scripts in a sandboxed
// JavaScript runtime. Every evaluation gets a fresh VM with no host access
// beyond a captured console.log.
package score

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/proteinlens/proteinlens/internal/app/domain/nutrition"
)

const (
	// MaxScriptSize bounds profile scripts before they reach the VM.
	MaxScriptSize = 64 * 1024

	// DefaultTimeout interrupts runaway scripts.
	DefaultTimeout = 2 * time.Second

	maxCapturedLogs = 32
)

// Result is the outcome of one evaluation.
type Result struct {
	Score   float64
	Verdict string
	Logs    []string
}

// Engine runs scoring scripts. Safe for concurrent use; each evaluation
// builds its own runtime.
type Engine struct {
	timeout time.Duration
	log     *zap.Logger
}

// NewEngine builds an engine. A non-positive timeout falls back to
// DefaultTimeout; a nil logger discards evaluation logs.
func NewEngine(timeout time.Duration, log *zap.Logger) *Engine {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{timeout: timeout, log: log}
}

// Evaluate runs the script's score(meal) function against the analysis. The
// script must define score(meal) returning either a number or an object with
// a numeric score and optional verdict string.
func (e *Engine) Evaluate(ctx context.Context, script string, a *nutrition.Analysis) (Result, error) {
	if len(script) > MaxScriptSize {
		return Result{}, fmt.Errorf("script exceeds maximum size of %d bytes", MaxScriptSize)
	}
	if a == nil {
		return Result{}, fmt.Errorf("analysis required")
	}

	start := time.Now()
	vm := goja.New()

	timeout := e.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if d := time.Until(deadline); d < timeout {
			timeout = d
		}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-time.After(timeout):
			vm.Interrupt("evaluation timeout")
		case <-done:
		}
	}()
	defer close(done)

	var logs []string
	console := vm.NewObject()
	console.Set("log", func(call goja.FunctionCall) goja.Value {
		if len(logs) >= maxCapturedLogs {
			return goja.Undefined()
		}
		args := make([]interface{}, len(call.Arguments))
		for i, arg := range call.Arguments {
			args[i] = arg.Export()
		}
		logs = append(logs, fmt.Sprint(args...))
		return goja.Undefined()
	})
	vm.Set("console", console)

	if _, err := vm.RunString(script); err != nil {
		return Result{Logs: logs}, fmt.Errorf("script error: %w", err)
	}

	scoreFn, ok := goja.AssertFunction(vm.Get("score"))
	if !ok {
		return Result{Logs: logs}, fmt.Errorf("script does not define a score(meal) function")
	}

	value, err := scoreFn(goja.Undefined(), vm.ToValue(mealObject(a)))
	if err != nil {
		return Result{Logs: logs}, fmt.Errorf("evaluation error: %w", err)
	}

	res, err := exportResult(value)
	if err != nil {
		return Result{Logs: logs}, err
	}
	res.Logs = logs

	e.log.Debug("profile script evaluated",
		zap.Float64("score", res.Score),
		zap.String("verdict", res.Verdict),
		zap.Duration("elapsed", time.Since(start)),
	)
	return res, nil
}

// mealObject flattens the analysis into the plain object handed to scripts.
func mealObject(a *nutrition.Analysis) map[string]interface{} {
	items := make([]map[string]interface{}, 0, len(a.Items))
	for _, it := range a.Items {
		items = append(items, map[string]interface{}{
			"name":      it.Name,
			"portion_g": it.PortionG,
			"calories":  it.Calories,
			"protein_g": it.ProteinG,
			"carbs_g":   it.CarbsG,
			"fat_g":     it.FatG,
		})
	}
	return map[string]interface{}{
		"description": a.Description,
		"calories":    a.Calories,
		"protein_g":   a.ProteinG,
		"carbs_g":     a.CarbsG,
		"fat_g":       a.FatG,
		"fiber_g":     a.FiberG,
		"confidence":  string(a.Confidence),
		"items":       items,
	}
}

func exportResult(v goja.Value) (Result, error) {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return Result{}, fmt.Errorf("score(meal) returned no value")
	}
	switch e := v.Export().(type) {
	case int64:
		return Result{Score: clamp(float64(e))}, nil
	case float64:
		if math.IsNaN(e) || math.IsInf(e, 0) {
			return Result{}, fmt.Errorf("score(meal) returned a non-finite number")
		}
		return Result{Score: clamp(e)}, nil
	case map[string]interface{}:
		raw, ok := e["score"]
		if !ok {
			return Result{}, fmt.Errorf("score(meal) object is missing a score field")
		}
		n, ok := toFloat(raw)
		if !ok || math.IsNaN(n) || math.IsInf(n, 0) {
			return Result{}, fmt.Errorf("score(meal) object has a non-numeric score")
		}
		verdict, _ := e["verdict"].(string)
		return Result{Score: clamp(n), Verdict: verdict}, nil
	default:
		return Result{}, fmt.Errorf("score(meal) must return a number or an object with a score field")
	}
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	}
	return 0, false
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
