// Package mcts implements a Monte Carlo tree search controller that decides,
// for each step of a workflow, whether to reuse a previously explored branch
// or to try a new one.
//
// A workflow calls Choose once per step and receives a Choice whose Filename
// method derives a branch specific artifact name:
//
//	ctrl := mcts.New()
//	for episode := 0; episode < 10; episode++ {
//	    ctrl.Reset()
//	    plan, _ := ctrl.Choose()
//	    code, _ := ctrl.Choose()
//	    // ... generate plan.Filename("plan.md") and code.Filename("code.js")
//	    code.Score(testPassRate)
//	}
//	best := ctrl.BestLeafNodes()
//
// Because generated artifacts are keyed by branch path, revisiting a branch
// hits the artifact cache and only new branches cost model calls.
//
// A Controller is not safe for concurrent use. Workflows drive it from a
// single goroutine.
package mcts
