package main

import (
	"fmt"
	"log"
	"os"

	"github.com/voodooEntity/gits"

	"github.com/voodooEntity/sidgraph"
	"github.com/voodooEntity/sidgraph/src/system/archivist"
	"github.com/voodooEntity/sidgraph/src/system/memory"
	"github.com/voodooEntity/sidgraph/src/system/policy"
	"github.com/voodooEntity/sidgraph/src/system/rewrite"
)

func main() {
	logger := log.New(os.Stdout, "", 0)

	// create a session. ident is optional and defaults
	// to a fresh uuid. History records every policy run
	// into the gits backed memory.
	engine, err := sidgraph.New(sidgraph.Settings{
		Ident:    "GreatName",
		LogLevel: archivist.LEVEL_INFO,
		Logger:   logger,
		History:  true,
	})
	if err != nil {
		logger.Println("setup failed:", err)
		os.Exit(1)
	}

	// load the working diagram from an expression
	if err := engine.SetDiagramExpr("S+(P(Freedom), P(Justice))", "demo"); err != nil {
		logger.Println("diagram failed:", err)
		os.Exit(1)
	}

	rules := []rewrite.Rule{
		{ID: "R1", Pattern: "S+($a, $b)", Replacement: "C($a, $b)"},
		{ID: "R2", Pattern: "C($a, $b)", Replacement: "T($a)"},
	}

	// get an observer instance. the callback fires once
	// the run completed, with the memory instance for
	// final lookups.
	obsi := engine.GetObserverInstance(func(mi *memory.Memory, res policy.Result) {
		logger.Println("run finished:", res.Termination, "steps:", res.Steps)
	})

	// register a tick function
	fn := func(gitsInstance *gits.Gits, tickLog *archivist.Archivist) {
		tickLog.Info("yes i tick")
	}
	obsi.RegisterTickFunction(&fn)
	obsi.SetTickRate(2)

	// run the rule set under two policies; P3 shuffles
	// deterministically by seed
	for _, req := range []policy.Request{
		{Rules: rules, Policy: policy.P1},
		{Rules: rules, Policy: policy.P3, Seed: 42},
	} {
		res, err := engine.RunPolicy(req)
		if err != nil {
			logger.Println("run failed:", err)
			os.Exit(1)
		}
		logger.Println("policy", req.Policy, "trace:", res.AppliedTrace)
	}

	// drive the field side once and show the masses
	if err := engine.Step(); err != nil {
		logger.Println("step failed:", err)
		os.Exit(1)
	}
	masses := engine.MassMetrics()
	logger.Println(fmt.Sprintf("masses I=%.2f N=%.2f U=%.2f total=%.2f",
		masses.IMass, masses.NMass, masses.UMass, masses.TotalMass))

	// history is enabled so we can look up the
	// recorded runs afterwards
	qry := gits.NewQuery().Read("Run")
	res := gits.GetDefault().Query().Execute(qry)
	fmt.Println(fmt.Sprintf("%+v", res))
}
