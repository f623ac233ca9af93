package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
	"github.com/pivolan/textile_dashboard/core"
	"github.com/pivolan/textile_dashboard/domain/models"
	"github.com/pivolan/textile_dashboard/pages"
	"github.com/pivolan/textile_dashboard/plot"
	"github.com/pivolan/textile_dashboard/summary"
)

// searchRows limits rows sent in one reply.
const searchRows = 20

func (b *Bot) handlePages(ctx context.Context, chatID int64) {
	var sb strings.Builder
	sb.WriteString("Pages:\n")
	for _, p := range pages.All() {
		if p.IsHome() {
			continue
		}
		fmt.Fprintf(&sb, "%s - %s\n", p.Slug, strings.Join(p.Scope, ", "))
	}
	b.reply(ctx, chatID, sb.String())
}

func (b *Bot) handleSearch(ctx context.Context, chatID int64, args string) {
	p, query, problem := splitPage(args)
	if problem != "" {
		b.reply(ctx, chatID, problem)
		return
	}
	v := pages.Render(ctx, b.loader, p, query)

	var sb strings.Builder
	if v.Warning != "" {
		sb.WriteString(v.Warning + "\n")
	}
	fmt.Fprintf(&sb, "%s: %d of %d rows match %q\n", p.Title, v.Table.Len(), v.Total, query)
	if v.Table.Len() > 0 {
		sb.WriteString(summary.RenderTable(v.Table, searchRows))
	}
	b.reply(ctx, chatID, sb.String())
}

func (b *Bot) handleSummary(ctx context.Context, chatID int64, args string) {
	p, query, problem := splitPage(args)
	if problem != "" {
		b.reply(ctx, chatID, problem)
		return
	}
	v := pages.Render(ctx, b.loader, p, query)

	var sb strings.Builder
	if v.Warning != "" {
		sb.WriteString(v.Warning + "\n")
	}
	sb.WriteString(summary.RenderSummary(v.Summary))
	if v.Stats != nil {
		sb.WriteString("\n" + summary.RenderStats(p.DescribeColumn, v.Stats))
	}
	b.reply(ctx, chatID, sb.String())
}

func (b *Bot) handleChart(ctx context.Context, chatID int64, args string) {
	p, column, problem := splitPage(args)
	if problem != "" {
		b.reply(ctx, chatID, problem)
		return
	}
	if column == "" {
		column = p.ChartColumn
	}
	v := pages.Render(ctx, b.loader, p, "")
	if v.Warning != "" {
		b.reply(ctx, chatID, v.Warning)
		return
	}
	if !v.Table.HasColumn(column) {
		b.reply(ctx, chatID, fmt.Sprintf("Column %q not found. Columns: %s", column, strings.Join(v.Table.Columns, ", ")))
		return
	}

	top := summary.TopValues(v.Table, column, 20)
	labels := make([]string, 0, len(top))
	values := make([]float64, 0, len(top))
	for _, vc := range top {
		labels = append(labels, vc.Value)
		values = append(values, float64(vc.Count))
	}
	graph, err := plot.DrawBarChart(plot.NewLabelledData(p.Title+": "+column, "rows", labels, values))
	if errors.Is(err, plot.ErrNoData) {
		b.reply(ctx, chatID, fmt.Sprintf("No values in %s.", column))
		return
	}
	if err != nil {
		core.Errorf(ctx, "telegram: chart %s/%s: %v", p.Slug, column, err)
		b.reply(ctx, chatID, "Could not draw the chart: "+err.Error())
		return
	}

	photo := tgbotapi.NewPhotoUpload(chatID, tgbotapi.FileBytes{
		Name:  fmt.Sprintf("%s_%s_%s.png", p.Slug, column, time.Now().Format("20060102-150405")),
		Bytes: graph,
	})
	photo.Caption = fmt.Sprintf("Most frequent values of %s on %s", column, p.Title)
	if _, err := b.api.Send(photo); err != nil {
		core.Errorf(ctx, "telegram: send chart to %d: %v", chatID, err)
		b.reply(ctx, chatID, "Could not send the chart: "+err.Error())
	}
}

func (b *Bot) handleStart(ctx context.Context, chatID int64) {
	state := b.state(chatID)
	if state.Active() {
		b.reply(ctx, chatID, "The analysis session is already active. Ask away with /ask.")
		return
	}
	b.reply(ctx, chatID, "Uploading datasets...")
	if err := b.analyst.Start(ctx, state, pages.References()); err != nil {
		core.Warnf(ctx, "telegram: analysis start: %v", err)
		b.reply(ctx, chatID, "Could not start the analysis session: "+err.Error())
		return
	}
	b.reply(ctx, chatID, fmt.Sprintf("Analysis session started with %d datasets. Ask a question with /ask.", len(state.FileIDs())))
}

func (b *Bot) handleStop(ctx context.Context, chatID int64) {
	state := b.state(chatID)
	if !state.Active() {
		b.reply(ctx, chatID, "No analysis session is active.")
		return
	}
	if err := b.analyst.Stop(ctx, state); err != nil {
		b.reply(ctx, chatID, "Could not stop the session: "+err.Error())
		return
	}
	b.reply(ctx, chatID, "Analysis session stopped.")
}

// handleAsk streams an answer into one message, editing it as fragments
// arrive at most once per editInterval.
func (b *Bot) handleAsk(ctx context.Context, chatID int64, question string) {
	ans, err := b.analyst.Ask(ctx, b.state(chatID), question)
	switch {
	case errors.Is(err, models.ErrNoActiveSession):
		b.reply(ctx, chatID, "No active analysis session. Start one with /analysis_start.")
		return
	case errors.Is(err, models.ErrSessionBusy):
		b.reply(ctx, chatID, "The previous question is still being answered.")
		return
	case errors.Is(err, models.ErrEmptyQuestion):
		b.reply(ctx, chatID, "Usage: /ask <question>")
		return
	case err != nil:
		b.reply(ctx, chatID, "Analysis failed: "+err.Error())
		return
	}
	defer ans.Close()

	placeholder := b.reply(ctx, chatID, "Thinking...")
	shown := ""
	edit := func(text string) {
		text = truncate(text)
		if text == shown || strings.TrimSpace(text) == "" {
			return
		}
		if _, err := b.api.Send(tgbotapi.NewEditMessageText(chatID, placeholder.MessageID, text)); err != nil {
			core.Warnf(ctx, "telegram: edit answer: %v", err)
			return
		}
		shown = text
	}

	lastEdit := time.Now()
	for {
		_, err := ans.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			core.Errorf(ctx, "telegram: answer for %d: %v", chatID, err)
			if ans.Text() == "" {
				edit("Analysis failed: " + err.Error())
			} else {
				edit(ans.Text() + "\n\n[error] " + err.Error())
			}
			return
		}
		if time.Since(lastEdit) >= b.editInterval {
			edit(ans.Text())
			lastEdit = time.Now()
		}
	}
	if ans.Text() == "" {
		edit("The analyst returned an empty answer.")
		return
	}
	edit(ans.Text())
}
