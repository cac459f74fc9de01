package planner

import "sync"

type StepID string

const (
	StepFetchThread StepID = "fetch_thread"
	StepClassify    StepID = "classify"
	StepGenerate    StepID = "generate"
	StepOptimize    StepID = "optimize"
	StepAwaitUser   StepID = "await_user"
	StepSend        StepID = "send"
	StepIndexRAG    StepID = "index_rag"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusError   Status = "error"
)

type Step struct {
	ID     StepID `json:"id"`
	Name   string `json:"name"`
	Status Status `json:"status"`
}

var stepNames = []Step{
	{ID: StepFetchThread, Name: "Fetch Thread"},
	{ID: StepClassify, Name: "Classify Email"},
	{ID: StepGenerate, Name: "Generate Drafts"},
	{ID: StepOptimize, Name: "Optimize Draft"},
	{ID: StepAwaitUser, Name: "Await User Approval"},
	{ID: StepSend, Name: "Send Reply"},
	{ID: StepIndexRAG, Name: "Index RAG"},
}

// Plan is the per-email pipeline progress. It is shared by reference and
// safe for concurrent use.
type Plan struct {
	EmailID string

	mu    sync.Mutex
	steps []Step
}

func newPlan(emailID string) *Plan {
	steps := make([]Step, len(stepNames))
	for i, s := range stepNames {
		steps[i] = Step{ID: s.ID, Name: s.Name, Status: StatusPending}
	}
	return &Plan{EmailID: emailID, steps: steps}
}

// Snapshot returns a copy of the steps in pipeline order.
func (p *Plan) Snapshot() []Step {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Step(nil), p.steps...)
}

// Status returns the status of step, or "" for an unknown step.
func (p *Plan) Status(id StepID) Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.steps {
		if s.ID == id {
			return s.Status
		}
	}
	return ""
}

func (p *Plan) advance(id StepID, to Status) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.steps {
		if p.steps[i].ID != id {
			continue
		}
		if !canTransition(p.steps[i].Status, to) {
			return false
		}
		p.steps[i].Status = to
		return true
	}
	return false
}

// merge applies statuses loaded from a persister. A stored status only
// replaces the local one when that is a forward move; unknown ids are ignored.
func (p *Plan) merge(statuses map[StepID]Status) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.steps {
		st, ok := statuses[p.steps[i].ID]
		if !ok || !validStatus(st) {
			continue
		}
		if canTransition(p.steps[i].Status, st) {
			p.steps[i].Status = st
		}
	}
}

// set records a transition already accepted by the persister.
func (p *Plan) set(id StepID, to Status) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.steps {
		if p.steps[i].ID == id {
			p.steps[i].Status = to
			return
		}
	}
}

func canTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusRunning || to == StatusDone || to == StatusError
	case StatusRunning:
		return to == StatusDone || to == StatusError
	case StatusError:
		return to == StatusDone
	}
	return false
}

func validStatus(s Status) bool {
	switch s {
	case StatusPending, StatusRunning, StatusDone, StatusError:
		return true
	}
	return false
}
