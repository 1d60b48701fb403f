package model

import "testing"

func TestCanTransition_DocumentDAG(t *testing.T) {
	legal := []struct{ from, to DocumentState }{
		{DocPending, DocStage1Running},
		{DocPending, DocCancelled},
		{DocStage1Running, DocQueued},
		{DocStage1Running, DocFailed},
		{DocStage1Running, DocCancelled},
		{DocQueued, DocStage2Running},
		{DocQueued, DocCancelled},
		{DocStage2Running, DocSucceeded},
		{DocStage2Running, DocFailed},
		{DocStage2Running, DocCancelled},
	}
	for _, tc := range legal {
		if !CanTransition(tc.from, tc.to) {
			t.Errorf("expected %s -> %s to be legal", tc.from, tc.to)
		}
	}

	illegal := []struct{ from, to DocumentState }{
		{DocPending, DocSucceeded},
		{DocSucceeded, DocPending},
		{DocQueued, DocFailed},
		{DocStage2Running, DocStage1Running},
	}
	for _, tc := range illegal {
		if CanTransition(tc.from, tc.to) {
			t.Errorf("expected %s -> %s to be illegal", tc.from, tc.to)
		}
	}
}

func TestCanTransitionBatch_DAG(t *testing.T) {
	legal := []struct{ from, to BatchStatus }{
		{BatchPending, BatchRunning},
		{BatchRunning, BatchCompleted},
		{BatchRunning, BatchCancelled},
	}
	for _, tc := range legal {
		if !CanTransitionBatch(tc.from, tc.to) {
			t.Errorf("expected %s -> %s to be legal", tc.from, tc.to)
		}
	}

	illegal := []struct{ from, to BatchStatus }{
		{BatchPending, BatchCompleted},
		{BatchCompleted, BatchRunning},
		{BatchCancelled, BatchRunning},
	}
	for _, tc := range illegal {
		if CanTransitionBatch(tc.from, tc.to) {
			t.Errorf("expected %s -> %s to be illegal", tc.from, tc.to)
		}
	}
}
