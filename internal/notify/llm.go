package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/segyhp/collections-engine/pkg/utils"
)

// Completer turns a prompt into model output.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// LLMGenerator builds prompts and delegates to a Completer.
type LLMGenerator struct {
	completer Completer
}

func NewLLMGenerator(c Completer) *LLMGenerator {
	return &LLMGenerator{completer: c}
}

func (g *LLMGenerator) Reminder(ctx context.Context, r Reminder) (string, error) {
	return g.complete(ctx, ReminderPrompt(r))
}

func (g *LLMGenerator) LenderAlert(ctx context.Context, a LenderAlert) (string, error) {
	prompt, err := LenderAlertPrompt(a)
	if err != nil {
		return "", err
	}
	return g.complete(ctx, prompt)
}

func (g *LLMGenerator) complete(ctx context.Context, prompt string) (string, error) {
	out, err := g.completer.Complete(ctx, prompt)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func ReminderPrompt(r Reminder) string {
	freq := r.Frequency
	if freq == "" {
		freq = "MENSUAL"
	}
	return fmt.Sprintf(`Actúa como un asistente financiero amable y profesional de la empresa "%s".
Escribe un mensaje de recordatorio corto y persuasivo para el cliente "%s" que tiene un pago %s pendiente de %s que vence el %s.
El mensaje debe ser para WhatsApp, incluye emojis y sé muy cordial. No mientas, solo usa los datos proporcionados.
Responde SOLO con el mensaje, sin introducciones.`,
		r.BusinessName, r.ClientName, strings.ToLower(freq), utils.FormatMoney(r.Amount), formatDate(r.DueDate))
}

func LenderAlertPrompt(a LenderAlert) (string, error) {
	items, err := json.Marshal(a.Items)
	if err != nil {
		return "", fmt.Errorf("encode overdue items: %w", err)
	}
	return fmt.Sprintf(`Hola %s, actúa como un analista de riesgos.
Tienes los siguientes clientes con pagos vencidos: %s.
Genera un resumen ejecutivo muy breve y urgente con estrategias para recuperar este dinero hoy mismo.
Sé directo y profesional.`, a.LenderName, items), nil
}
