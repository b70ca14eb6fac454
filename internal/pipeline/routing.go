package pipeline

import "github.com/sells-group/reconcile-cli/internal/model"

// Decision is the lifecycle transition chosen for a processed document.
type Decision struct {
	Status   model.DocumentStatus `json:"status"`
	Task     model.TaskType       `json:"task,omitempty"`
	Priority model.TaskPriority   `json:"priority,omitempty"`
}

// HasTask reports whether the decision opens an operational task.
func (d Decision) HasTask() bool { return d.Task != "" }

// Route maps a document type and verdict validity to the next state.
// Invalid documents always go to manual review, whatever their type.
func Route(t model.DocumentType, valid bool) Decision {
	if !valid {
		return Decision{Status: model.StatusPendingReview, Task: model.TaskReview, Priority: model.PriorityNormal}
	}
	switch t {
	case model.DocumentPago:
		return Decision{Status: model.StatusPaidToReconcile, Task: model.TaskReconcile, Priority: model.PriorityNormal}
	case model.DocumentAgendado:
		return Decision{Status: model.StatusToSchedule, Task: model.TaskSchedule, Priority: model.PriorityNormal}
	case model.DocumentEmitirBoleto:
		return Decision{Status: model.StatusAwaitingReceipt, Task: model.TaskIssueBoleto, Priority: model.PriorityHigh}
	case model.DocumentEmitirNF:
		return Decision{Status: model.StatusAwaitingReceipt, Task: model.TaskIssueInvoice, Priority: model.PriorityHigh}
	default:
		return Decision{Status: model.StatusClassified}
	}
}
