package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Vodeneev/oddsapi/internal/deviation"
	"github.com/Vodeneev/oddsapi/internal/pkg/logging"
	"github.com/Vodeneev/oddsapi/internal/pkg/models"
	"github.com/Vodeneev/oddsapi/internal/pkg/storage"
)

// DefaultMessageLimit is Telegram's text message limit.
const DefaultMessageLimit = 4096

// Sender delivers one message on some platform.
type Sender interface {
	Platform() string
	Send(ctx context.Context, text string) error
}

// Candidates is implemented by deviation.Analyzer.
type Candidates interface {
	FindUnnotified(ctx context.Context, params deviation.Params) ([]deviation.Flagged, error)
}

// Recorder persists delivered notifications, all or nothing.
type Recorder interface {
	Record(ctx context.Context, notifications []models.Notification) error
}

// Notifier reports flagged fixtures that were never reported before.
type Notifier struct {
	candidates Candidates
	sender     Sender
	recorder   Recorder
	limit      int
	logger     *slog.Logger
	now        func() time.Time
	sent       *prometheus.CounterVec
}

func NewNotifier(candidates Candidates, sender Sender, recorder Recorder, limit int, reg prometheus.Registerer, logger *slog.Logger) *Notifier {
	if limit <= 0 {
		limit = DefaultMessageLimit
	}
	sent := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oddsapi_notified_fixtures_total",
			Help: "Fixtures reported to a notification platform",
		},
		[]string{"platform"},
	)
	if reg != nil {
		if err := reg.Register(sent); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				sent = are.ExistingCollector.(*prometheus.CounterVec)
			}
		}
	}
	return &Notifier{
		candidates: candidates,
		sender:     sender,
		recorder:   recorder,
		limit:      limit,
		logger:     logging.OrDefault(logger),
		now:        time.Now,
		sent:       sent,
	}
}

// Run sends one message listing every unnotified flagged fixture and then
// records a notification per fixture. Nothing is recorded when sending
// fails. It returns the number of fixtures reported.
func (n *Notifier) Run(ctx context.Context, params deviation.Params) (int, error) {
	flagged, err := n.candidates.FindUnnotified(ctx, params)
	if err != nil {
		return 0, fmt.Errorf("failed to find unnotified fixtures: %w", err)
	}
	if len(flagged) == 0 {
		n.logger.Info("Nothing to notify")
		return 0, nil
	}

	lines := make([]string, len(flagged))
	for i, f := range flagged {
		lines[i] = FormatLine(f)
	}
	text := strings.Join(lines, "\n")
	if utf8.RuneCountInString(text) > n.limit {
		n.logger.Warn("Notification message truncated",
			"length", utf8.RuneCountInString(text), "limit", n.limit, "fixtures", len(flagged))
		text = Truncate(text, n.limit)
	}

	if err := n.sender.Send(ctx, text); err != nil {
		return 0, err
	}

	sentAt := n.now()
	notifications := make([]models.Notification, len(flagged))
	for i, f := range flagged {
		notifications[i] = models.Notification{
			FixtureID: f.Fixture.ID,
			Platform:  n.sender.Platform(),
			Message:   lines[i],
			SentAt:    sentAt,
		}
	}
	if err := n.recorder.Record(ctx, notifications); err != nil {
		return 0, fmt.Errorf("message sent but notifications not recorded: %w", err)
	}

	n.sent.WithLabelValues(n.sender.Platform()).Add(float64(len(flagged)))
	n.logger.Info("Notification sent", "platform", n.sender.Platform(), "fixtures", len(flagged))
	return len(flagged), nil
}

// FormatLine renders "Home VS Away - 10 May. 21:00: trigger" in the
// fixture's own timezone.
func FormatLine(f deviation.Flagged) string {
	date := f.Fixture.Date
	if loc, err := time.LoadLocation(f.Fixture.Timezone); err == nil && f.Fixture.Timezone != "" {
		date = date.In(loc)
	}
	return fmt.Sprintf("%s VS %s - %s: %s",
		f.Fixture.HomeTeamName, f.Fixture.AwayTeamName, date.Format("02 Jan. 15:04"), f.Trigger)
}

// Truncate cuts s to at most limit runes, ending with "..." when cut.
func Truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	if limit <= 3 {
		return string([]rune(s)[:limit])
	}
	return string([]rune(s)[:limit-3]) + "..."
}

// Transactor is implemented by storage.Postgres.
type Transactor interface {
	WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error
}

// StoreRecorder writes notifications in one transaction.
type StoreRecorder struct {
	db Transactor
}

func NewStoreRecorder(db Transactor) *StoreRecorder {
	return &StoreRecorder{db: db}
}

func (r *StoreRecorder) Record(ctx context.Context, notifications []models.Notification) error {
	return r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		repo := storage.NewNotificationRepository(tx)
		for i := range notifications {
			if err := repo.Create(ctx, &notifications[i]); err != nil {
				return err
			}
		}
		return nil
	})
}
