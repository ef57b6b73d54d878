package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/graaaaa/mclog-companion/internal/event"
)

// Discord embed color constants.
const (
	ColorBan    = 0xE74C3C
	ColorMute   = 0xF39C12
	ColorReport = 0xF1C40F
)

// MaxEmbedsPerRequest is the Discord API limit for embeds per message.
const MaxEmbedsPerRequest = 10

// DiscordPayload represents a Discord webhook request body.
type DiscordPayload struct {
	Content string         `json:"content,omitempty"`
	Embeds  []DiscordEmbed `json:"embeds,omitempty"`
}

// DiscordEmbed represents a Discord embed.
type DiscordEmbed struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Color       int    `json:"color,omitempty"`
	Timestamp   string `json:"timestamp,omitempty"`
}

// BuildPayloads creates Discord payloads from batched records.
// Each punishment gets its own embed; reports are folded into one.
// May return multiple payloads if embeds exceed MaxEmbedsPerRequest.
func BuildPayloads(records []event.Record) []DiscordPayload {
	if len(records) == 0 {
		return nil
	}

	var embeds []DiscordEmbed
	var reports []*event.Report

	for _, rec := range records {
		switch r := rec.(type) {
		case *event.Punishment:
			embeds = append(embeds, buildPunishmentEmbed(r))
		case *event.Report:
			reports = append(reports, r)
		}
	}

	if len(reports) > 0 {
		embeds = append(embeds, buildReportsEmbed(reports))
	}

	return splitIntoPayloads(embeds)
}

func buildPunishmentEmbed(p *event.Punishment) DiscordEmbed {
	title, verb, color := "Player Banned", "banned", ColorBan
	if p.Type == event.PunishmentMute {
		title, verb, color = "Player Muted", "muted", ColorMute
	}

	var b strings.Builder
	fmt.Fprintf(&b, "**%s** %s", p.Username, verb)
	if p.Duration != "" {
		fmt.Fprintf(&b, " for %s", p.Duration)
	}
	if p.Reason != "" {
		fmt.Fprintf(&b, "\nReason: %s", p.Reason)
	}
	if p.ModeratorName != nil {
		fmt.Fprintf(&b, "\nModerator: %s", *p.ModeratorName)
	}
	if p.ExpiresAt != nil {
		fmt.Fprintf(&b, "\nExpires: <t:%d:R>", p.ExpiresAt.Unix())
	} else {
		b.WriteString("\nPermanent")
	}

	return DiscordEmbed{
		Title:       title,
		Description: b.String(),
		Color:       color,
		Timestamp:   p.Timestamp.Format(time.RFC3339),
	}
}

func buildReportsEmbed(reports []*event.Report) DiscordEmbed {
	lines := make([]string, len(reports))
	for i, r := range reports {
		line := fmt.Sprintf("**%s** reported **%s**", r.ReporterName, r.ReportedName)
		if r.Reason != "" {
			line += ": " + r.Reason
		}
		if r.ServerName != nil {
			line += fmt.Sprintf(" (%s)", *r.ServerName)
		}
		lines[i] = line
	}

	title := "Player Reported"
	if len(reports) > 1 {
		title = fmt.Sprintf("%d Reports", len(reports))
	}

	return DiscordEmbed{
		Title:       title,
		Description: strings.Join(lines, "\n"),
		Color:       ColorReport,
		Timestamp:   reports[len(reports)-1].Timestamp.Format(time.RFC3339),
	}
}

func splitIntoPayloads(embeds []DiscordEmbed) []DiscordPayload {
	if len(embeds) == 0 {
		return nil
	}

	var payloads []DiscordPayload
	for i := 0; i < len(embeds); i += MaxEmbedsPerRequest {
		end := min(i+MaxEmbedsPerRequest, len(embeds))
		payloads = append(payloads, DiscordPayload{Embeds: embeds[i:end]})
	}
	return payloads
}

// unsentRecords returns the records whose embeds were not delivered when
// only the first sentEmbeds embeds of BuildPayloads(records) went out.
// Punishment embeds keep record order and the folded report embed is last.
func unsentRecords(records []event.Record, sentEmbeds int) []event.Record {
	var out []event.Record
	punishments := 0
	for _, rec := range records {
		switch rec.(type) {
		case *event.Punishment:
			if punishments >= sentEmbeds {
				out = append(out, rec)
			}
			punishments++
		case *event.Report:
			out = append(out, rec)
		}
	}
	return out
}
