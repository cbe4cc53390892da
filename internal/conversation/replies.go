package conversation

import (
	"fmt"
	"strings"
	"time"

	"agendazap/internal/domain"
	"agendazap/internal/models"
)

var weekdayNames = map[time.Weekday]string{
	time.Sunday:    "domingo",
	time.Monday:    "segunda-feira",
	time.Tuesday:   "terça-feira",
	time.Wednesday: "quarta-feira",
	time.Thursday:  "quinta-feira",
	time.Friday:    "sexta-feira",
	time.Saturday:  "sábado",
}

// formatSlot renders "segunda-feira, 07/01 às 14:00" in loc.
func formatSlot(t time.Time, loc *time.Location) string {
	t = t.In(loc)
	return fmt.Sprintf("%s, %s às %s", weekdayNames[t.Weekday()], t.Format("02/01"), t.Format("15:04"))
}

// formatResult is the fallback wording when the dialogue engine does not
// phrase a result itself.
func formatResult(r models.Result, loc *time.Location, generic string) string {
	var b strings.Builder

	switch r.Status {
	case models.StatusAvailable:
		fmt.Fprintf(&b, "Encontrei disponibilidade com %s para %s.", r.ProfessionalName, formatSlot(*r.Slot, loc))
		if r.OffTurn {
			b.WriteString(" Não havia horário no turno que você pediu, esse é o mais próximo.")
		}
		b.WriteString(" Posso confirmar o agendamento?")
	case models.StatusBooked:
		fmt.Fprintf(&b, "Agendamento confirmado com %s para %s! Nos vemos na clínica.", r.ProfessionalName, formatSlot(*r.Slot, loc))
	case models.StatusConflict:
		b.WriteString("Esse horário acabou de ser ocupado.")
		if r.Slot != nil {
			fmt.Fprintf(&b, " Tenho %s com %s, posso confirmar?", formatSlot(*r.Slot, loc), r.ProfessionalName)
		} else {
			b.WriteString(" Podemos tentar outro dia?")
		}
	case models.StatusCanceled:
		fmt.Fprintf(&b, "Seu agendamento com %s em %s foi cancelado.", r.ProfessionalName, formatSlot(*r.Slot, loc))
	default:
		switch r.ErrorCode {
		case domain.CodeNoSlots:
			b.WriteString("Infelizmente não encontrei vaga disponível nesse dia. Podemos tentar outro?")
		case domain.CodeNotFound:
			b.WriteString("Não encontrei o que você pediu. Pode me passar o nome do profissional e o dia?")
		case domain.CodeValidation:
			b.WriteString("Não entendi o dia ou o horário. Pode repetir, por favor?")
		default:
			return generic
		}
	}

	for _, note := range r.Notes {
		b.WriteString("\n")
		b.WriteString(note)
	}
	return b.String()
}

func formatUpcoming(appts []*models.Appointment, loc *time.Location) string {
	if len(appts) == 0 {
		return "Você não tem agendamentos futuros."
	}
	lines := []string{"Seus próximos agendamentos:"}
	for _, a := range appts {
		lines = append(lines, fmt.Sprintf("- %s com %s", formatSlot(a.ScheduledAt, loc), a.ProfessionalName))
	}
	return strings.Join(lines, "\n")
}

func formatAgenda(appts []*models.Appointment, loc *time.Location) string {
	if len(appts) == 0 {
		return "Você não tem atendimentos marcados nos próximos dias."
	}
	lines := []string{"Seus próximos atendimentos:"}
	for _, a := range appts {
		lines = append(lines, fmt.Sprintf("- %s: %s", formatSlot(a.ScheduledAt, loc), a.ContactName))
	}
	return strings.Join(lines, "\n")
}
