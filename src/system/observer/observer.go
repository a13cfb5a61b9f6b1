package observer

import (
	"github.com/voodooEntity/gits"

	"github.com/voodooEntity/sidgraph/src/system/archivist"
	"github.com/voodooEntity/sidgraph/src/system/memory"
	"github.com/voodooEntity/sidgraph/src/system/policy"
)

// Observer watches a policy run through the pass hook and fires the
// registered tick function against the memory instance every tickRate
// passes. On completion the callback receives the memory instance for
// final inspection.
type Observer struct {
	memory       *memory.Memory
	callback     func(memoryInstance *memory.Memory, res policy.Result)
	log          *archivist.Archivist
	tickFunction *func(gitsInstance *gits.Gits, logger *archivist.Archivist)
	tickRate     int
	passCount    int
}

func New(memoryInstance *memory.Memory, cb func(memoryInstance *memory.Memory, res policy.Result), logger *archivist.Archivist) *Observer {
	if logger == nil {
		logger = archivist.New(&archivist.Config{})
	}
	logger.Info("Creating observer")
	return &Observer{
		memory:       memoryInstance,
		callback:     cb,
		log:          logger,
		tickRate:     25,
		tickFunction: nil,
	}
}

func (o *Observer) RegisterTickFunction(tickFn *func(gitsInstance *gits.Gits, logger *archivist.Archivist)) {
	o.tickFunction = tickFn
}

func (o *Observer) SetTickRate(tickRate int) {
	if tickRate > 0 {
		o.tickRate = tickRate
	}
}

func (o *Observer) tick() {
	(*o.tickFunction)(o.memory.Gits, o.log)
}

// PassHook adapts the observer to the policy runner's pass callback.
func (o *Observer) PassHook() func(pass int) {
	return func(pass int) {
		o.passCount++
		o.log.Debug(archivist.DEBUG_LEVEL_MAX, "Observer: pass", pass)
		if nil != o.tickFunction && 0 == o.passCount%o.tickRate {
			o.tick()
		}
	}
}

// Passes reports how many passes the observer has seen.
func (o *Observer) Passes() int {
	return o.passCount
}

// Complete hands the finished run to the callback.
func (o *Observer) Complete(res policy.Result) {
	o.log.InfoF("run complete after %d passes, termination %s", o.passCount, res.Termination)
	if o.callback != nil {
		o.callback(o.memory, res)
	}
}
