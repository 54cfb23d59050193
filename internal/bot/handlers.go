package bot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"rentacar/internal/metrics"
	"rentacar/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

const (
	dateTimeLayout = "02/01/2006 15:04"
	monthLayout    = "2006-01"
)

const helpText = `Comandos disponibles:
/contrato <id> - estado del contrato de una reserva
/registro [AAAA-MM] - registro de contratos del mes en Excel
/resync - reescribe el registro en Google Sheets`

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	command := msg.Command()
	var result string

	switch command {
	case "start", "help":
		b.sendMessage(msg.Chat.ID, helpText)
		result = "ok"
	case "contrato":
		result = b.handleContract(ctx, msg)
	case "registro":
		result = b.handleRegister(ctx, msg)
	case "resync":
		result = b.handleResync(ctx, msg)
	default:
		b.sendMessage(msg.Chat.ID, msgUnknownCommand)
		command, result = "unknown", "ok"
	}
	metrics.IncBotCommand(command, result)
}

func (b *Bot) handleContract(ctx context.Context, msg *tgbotapi.Message) string {
	bookingID, err := strconv.ParseInt(strings.TrimSpace(msg.CommandArguments()), 10, 64)
	if err != nil || bookingID <= 0 {
		b.sendMessage(msg.Chat.ID, msgContractUsage)
		return "invalid"
	}

	c, history, err := b.deps.Contracts.History(ctx, bookingID)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Int64("booking_id", bookingID).Msg("contract lookup failed")
		b.sendMessage(msg.Chat.ID, b.getErrorMessage(err))
		return "error"
	}

	b.sendMessage(msg.Chat.ID, b.contractSummary(c, len(history)))
	return "ok"
}

func (b *Bot) contractSummary(c *models.Contract, revisions int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "📄 Contrato Nº %s\n", c.ContractNumber)
	fmt.Fprintf(&sb, "Reserva #%d\n", c.BookingID)
	fmt.Fprintf(&sb, "Versión: %d\n", c.Version)
	if c.SignedAt != nil {
		fmt.Fprintf(&sb, "Estado: ✍️ firmado el %s\n", c.SignedAt.In(b.loc).Format(dateTimeLayout))
	} else {
		sb.WriteString("Estado: ⏳ pendiente de firma\n")
	}
	fmt.Fprintf(&sb, "Revisiones archivadas: %d\n", revisions)
	fmt.Fprintf(&sb, "Actualizado: %s", c.UpdatedAt.In(b.loc).Format(dateTimeLayout))
	return sb.String()
}

func (b *Bot) handleRegister(ctx context.Context, msg *tgbotapi.Message) string {
	if b.deps.Export == nil {
		b.sendMessage(msg.Chat.ID, "ℹ️ La exportación del registro no está configurada.")
		return "unavailable"
	}

	from, err := b.parseMonth(msg.CommandArguments())
	if err != nil {
		b.sendMessage(msg.Chat.ID, msgRegisterUsage)
		return "invalid"
	}
	to := from.AddDate(0, 1, 0)

	logger := zerolog.Ctx(ctx)
	path, err := b.deps.Export.SaveFile(ctx, from, to)
	if err != nil {
		logger.Error().Err(err).Time("from", from).Msg("export contract register")
		b.sendMessage(msg.Chat.ID, "❌ Error al generar el registro.")
		return "error"
	}

	file, err := os.Open(path)
	if err != nil {
		logger.Error().Err(err).Str("file_path", path).Msg("open export file")
		b.sendMessage(msg.Chat.ID, "❌ Error al abrir el archivo del registro.")
		return "error"
	}
	defer file.Close()

	doc := tgbotapi.NewDocument(msg.Chat.ID, tgbotapi.FileReader{
		Name:   filepath.Base(path),
		Reader: file,
	})
	doc.Caption = "📊 Registro de contratos " + from.Format("01/2006")

	if _, err := b.tg.Send(doc); err != nil {
		logger.Error().Err(err).Msg("send export document")
		b.sendMessage(msg.Chat.ID, "❌ Error al enviar el archivo.")
		return "error"
	}
	return "ok"
}

// parseMonth returns the first instant of the requested month, or of the current one when arg is empty.
func (b *Bot) parseMonth(arg string) (time.Time, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		now := time.Now().In(b.loc)
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, b.loc), nil
	}
	return time.ParseInLocation(monthLayout, arg, b.loc)
}

func (b *Bot) handleResync(ctx context.Context, msg *tgbotapi.Message) string {
	if b.deps.Resync == nil {
		b.sendMessage(msg.Chat.ID, "ℹ️ El registro en Google Sheets no está configurado.")
		return "unavailable"
	}
	if err := b.deps.Resync.EnqueueResync(ctx); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("enqueue register resync")
		b.sendMessage(msg.Chat.ID, b.getErrorMessage(err))
		return "error"
	}
	b.sendMessage(msg.Chat.ID, "🔄 Resincronización del registro programada.")
	return "ok"
}
