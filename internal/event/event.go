// Package event provides the domain records shared by the ingester, store,
// API and notifier.
package event

import "time"

// Table names double as record kinds.
const (
	KindChatMessage = "chat_messages"
	KindPunishment  = "punishments"
	KindReport      = "reports"
	KindKillEvent   = "kill_events"
)

// Chat message types.
const (
	ChatNormal            = "normal"
	ChatSwearFiltered     = "swear_filtered"
	ChatAdvertiseFiltered = "advertise_filtered"
)

// Punishment types.
const (
	PunishmentBan  = "Ban"
	PunishmentMute = "Mute"
)

// Record is an immutable, deduplicated fact extracted from the log.
type Record interface {
	// Kind returns the table the record belongs to.
	Kind() string
	// Participants returns the usernames the record mentions, in the order
	// their player rows are touched.
	Participants() []string
	// OccurredAt returns the reconstructed log timestamp.
	OccurredAt() time.Time
}

// ChatMessage is a single chat line, possibly flagged by a server filter.
type ChatMessage struct {
	ID          int64     `json:"id,omitempty"`
	Username    string    `json:"username"`
	Message     string    `json:"message"`
	MessageType string    `json:"message_type"`
	ServerName  *string   `json:"server_name"`
	Timestamp   time.Time `json:"chat_timestamp"`
}

func (c *ChatMessage) Kind() string           { return KindChatMessage }
func (c *ChatMessage) Participants() []string { return []string{c.Username} }
func (c *ChatMessage) OccurredAt() time.Time  { return c.Timestamp }

// Punishment is a ban or mute. ExpiresAt is nil for permanent punishments.
type Punishment struct {
	ID            int64      `json:"id,omitempty"`
	Username      string     `json:"username"`
	Type          string     `json:"punishment_type"`
	Duration      string     `json:"duration"`
	Reason        string     `json:"reason"`
	ModeratorName *string    `json:"moderator_name"`
	Timestamp     time.Time  `json:"punishment_timestamp"`
	ExpiresAt     *time.Time `json:"expires_at"`
}

func (p *Punishment) Kind() string           { return KindPunishment }
func (p *Punishment) Participants() []string { return []string{p.Username} }
func (p *Punishment) OccurredAt() time.Time  { return p.Timestamp }

// ActiveAt reports whether the punishment is in force at t.
func (p *Punishment) ActiveAt(t time.Time) bool {
	return p.ExpiresAt == nil || p.ExpiresAt.After(t)
}

// Report is a player report filed in chat.
type Report struct {
	ID           int64     `json:"id,omitempty"`
	ReporterName string    `json:"reporter_name"`
	ReportedName string    `json:"reported_name"`
	Reason       string    `json:"reason"`
	ServerName   *string   `json:"server_name"`
	Timestamp    time.Time `json:"report_timestamp"`
}

func (r *Report) Kind() string           { return KindReport }
func (r *Report) Participants() []string { return []string{r.ReporterName, r.ReportedName} }
func (r *Report) OccurredAt() time.Time  { return r.Timestamp }

// KillEvent records one player killing another.
type KillEvent struct {
	ID        int64     `json:"id,omitempty"`
	Killer    string    `json:"killer"`
	Killed    string    `json:"killed"`
	Timestamp time.Time `json:"timestamp"`
}

func (k *KillEvent) Kind() string           { return KindKillEvent }
func (k *KillEvent) Participants() []string { return []string{k.Killer, k.Killed} }
func (k *KillEvent) OccurredAt() time.Time  { return k.Timestamp }

// Player is the mutable per-username summary.
type Player struct {
	Username  string    `json:"username"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
	IsBanned  bool      `json:"is_banned"`
	IsMuted   bool      `json:"is_muted"`
}

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
