package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/segyhp/collections-engine/pkg/utils"
)

// TemplateGenerator renders fixed Spanish texts. It never fails.
type TemplateGenerator struct{}

func (TemplateGenerator) Reminder(_ context.Context, r Reminder) (string, error) {
	return ReminderTemplate(r), nil
}

func (TemplateGenerator) LenderAlert(_ context.Context, a LenderAlert) (string, error) {
	return LenderAlertTemplate(a), nil
}

// ReminderTemplate embeds recipient, amount, date and originator verbatim.
func ReminderTemplate(r Reminder) string {
	return fmt.Sprintf("Hola %s, de parte de %s te recordamos tu pago pendiente de %s para la fecha %s. ¡Feliz día!",
		r.ClientName, r.BusinessName, utils.FormatMoney(r.Amount), formatDate(r.DueDate))
}

// LenderAlertTemplate lists every overdue client below a one-line summary.
func LenderAlertTemplate(a LenderAlert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Atención %s, tienes %d pagos en mora. Revisa tu panel principal.", a.LenderName, len(a.Items))
	for _, item := range a.Items {
		fmt.Fprintf(&b, "\n- %s: %s (%d días de atraso)", item.ClientName, utils.FormatMoney(item.Amount), item.DaysOverdue)
	}
	return b.String()
}
