package tracing

import (
	"fmt"
	"reflect"

	"github.com/sarchlab/rpscope/coop"
	"github.com/sarchlab/rpscope/hooking"
	"github.com/sarchlab/rpscope/scope"
)

// NamedHookable is a hookable domain that has a name.
type NamedHookable interface {
	hooking.Hookable
	Name() string
}

// CollectTrace lets the tracer collect the captures of a scope.
func CollectTrace(domain NamedHookable, tracer Tracer) {
	attach(domain, domain.Name(), tracer)
}

// CollectTaskTrace lets the tracer collect the tasks of a scheduler.
func CollectTaskTrace(s *coop.Scheduler, where string, tracer Tracer) {
	attach(s, where, tracer)
}

func attach(domain hooking.Hookable, where string, tracer Tracer) {
	for _, hook := range domain.Hooks() {
		hook, ok := hook.(*traceHook)
		if ok && hook.t == tracer {
			panic(fmt.Sprintf(
				"domain %s already has tracer %s",
				where, reflect.TypeOf(tracer)))
		}
	}

	domain.AcceptHook(&traceHook{t: tracer, where: where})
}

// A traceHook turns hook invocations into tracer calls.
type traceHook struct {
	t     Tracer
	where string
}

// Func calls the tracer interfaces when the hook is triggered
func (h *traceHook) Func(ctx hooking.HookCtx) {
	switch ctx.Pos {
	case scope.HookPosCaptureArmed:
		task := h.captureTask(ctx.Item.(scope.CaptureInfo))
		task.StartTime = task.Detail.(scope.CaptureInfo).Time
		h.t.StartTask(task)
	case scope.HookPosCaptureAcquired:
		h.endCapture(ctx, "acquired")
	case scope.HookPosCaptureReset:
		h.endCapture(ctx, "reset")
	case coop.HookPosTaskStart:
		t := ctx.Item.(*coop.Task)
		h.t.StartTask(Task{
			ID:        t.ID(),
			Kind:      KindTask,
			Location:  h.where,
			StartTime: t.Scheduler().Now(),
		})
	case coop.HookPosTaskEnd:
		t := ctx.Item.(*coop.Task)
		h.t.EndTask(Task{
			ID:       t.ID(),
			Kind:     KindTask,
			Location: h.where,
			Outcome:  t.State().String(),
			EndTime:  t.Scheduler().Now(),
		})
	}
}

func (h *traceHook) endCapture(ctx hooking.HookCtx, outcome string) {
	info := ctx.Item.(scope.CaptureInfo)
	task := h.captureTask(info)
	task.Outcome = outcome
	task.EndTime = info.Time
	h.t.EndTask(task)
}

func (h *traceHook) captureTask(info scope.CaptureInfo) Task {
	what := "triggered"
	if info.Rolling {
		what = "rolling"
	}

	return Task{
		ID:       info.ID,
		Kind:     KindCapture,
		What:     what,
		Location: h.where,
		Detail:   info,
	}
}
