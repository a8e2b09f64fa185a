package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ticksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clubportal_reminder_ticks_total",
		Help: "Number of reminder worker ticks started.",
	})

	remindersSentTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clubportal_reminders_sent_total",
		Help: "Number of reminder emails confirmed sent.",
	})

	sendFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clubportal_reminder_send_failures_total",
		Help: "Number of reminder email send attempts that failed.",
	})

	stuckRecoveredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clubportal_reminder_stuck_recovered_total",
		Help: "Number of stuck dispatches re-armed for retry.",
	})
)
