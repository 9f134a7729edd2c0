package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the affiliate module.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	LinksCreated      prometheus.Counter
	VisitsTracked     *prometheus.CounterVec
	ReferralsCreated  *prometheus.CounterVec
	RewardsGranted    *prometheus.CounterVec
	InvitationsSent   *prometheus.CounterVec
	RewardEventLength *prometheus.HistogramVec
}

// New registers all affiliate metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		LinksCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "affiliate_links_created_total",
			Help: "Total number of affiliate links issued",
		}),
		VisitsTracked: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "affiliate_visits_tracked_total",
			Help: "Tracked affiliate visits by outcome (recorded, duplicate, invalid)",
		}, []string{"outcome"}),
		ReferralsCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "affiliate_referrals_created_total",
			Help: "Referrals created by attribution source",
		}, []string{"source"}),
		RewardsGranted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "affiliate_rewards_granted_total",
			Help: "Rewards granted by kind",
		}, []string{"kind"}),
		InvitationsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "affiliate_invitations_total",
			Help: "Invitation emails by result (sent, failed)",
		}, []string{"result"}),
		RewardEventLength: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "affiliate_reward_event_duration_seconds",
			Help:    "Duration of reward event processing",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"event"}),
	}
}

func (m *Metrics) IncLinkCreated() {
	if m == nil {
		return
	}
	m.LinksCreated.Inc()
}

func (m *Metrics) IncVisit(outcome string) {
	if m == nil {
		return
	}
	m.VisitsTracked.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncReferral(source string) {
	if m == nil {
		return
	}
	m.ReferralsCreated.WithLabelValues(source).Inc()
}

func (m *Metrics) IncReward(kind string) {
	if m == nil {
		return
	}
	m.RewardsGranted.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncInvitation(result string) {
	if m == nil {
		return
	}
	m.InvitationsSent.WithLabelValues(result).Inc()
}

// ObserveRewardEvent records how long a reward event took.
// Call with time.Now() taken at the start of the event.
func (m *Metrics) ObserveRewardEvent(event string, start time.Time) {
	if m == nil {
		return
	}
	m.RewardEventLength.WithLabelValues(event).Observe(time.Since(start).Seconds())
}
