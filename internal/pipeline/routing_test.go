package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/reconcile-cli/internal/model"
)

func TestRoute(t *testing.T) {
	tests := []struct {
		typ   model.DocumentType
		valid bool
		want  Decision
	}{
		{model.DocumentPago, true, Decision{model.StatusPaidToReconcile, model.TaskReconcile, model.PriorityNormal}},
		{model.DocumentAgendado, true, Decision{model.StatusToSchedule, model.TaskSchedule, model.PriorityNormal}},
		{model.DocumentEmitirBoleto, true, Decision{model.StatusAwaitingReceipt, model.TaskIssueBoleto, model.PriorityHigh}},
		{model.DocumentEmitirNF, true, Decision{model.StatusAwaitingReceipt, model.TaskIssueInvoice, model.PriorityHigh}},
		{"OUTRO", true, Decision{Status: model.StatusClassified}},
		{model.DocumentPago, false, Decision{model.StatusPendingReview, model.TaskReview, model.PriorityNormal}},
		{"OUTRO", false, Decision{model.StatusPendingReview, model.TaskReview, model.PriorityNormal}},
	}
	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			assert.Equal(t, tt.want, Route(tt.typ, tt.valid))
		})
	}
	assert.False(t, Route("OUTRO", true).HasTask())
}
