package bot

import (
	"errors"

	"rentacar/internal/contract"
)

const (
	msgRestricted      = "⛔ Este bot es solo para gestores."
	msgTooManyRequests = "⚠️ Demasiadas solicitudes. Espera un momento antes de volver a intentarlo."
	msgUnknownCommand  = "No conozco ese comando. Usa /help para ver la lista."
	msgContractUsage   = "Uso: /contrato <id de reserva>"
	msgRegisterUsage   = "Uso: /registro [AAAA-MM]"
)

func (b *Bot) getErrorMessage(err error) string {
	if err == nil {
		return ""
	}

	if errors.Is(err, contract.ErrContractNotFound) {
		return "ℹ️ Esta reserva todavía no tiene contrato."
	}

	if errors.Is(err, contract.ErrBookingNotFound) {
		return "⚠️ No existe esa reserva."
	}

	return "❌ No se pudo completar la solicitud. Inténtalo más tarde."
}
