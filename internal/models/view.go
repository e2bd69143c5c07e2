package models

import "time"

// ViewState is the chart/portfolio loading state of a view.
type ViewState string

const (
	ViewIdle    ViewState = "idle"
	ViewLoading ViewState = "loading"
	ViewReady   ViewState = "ready"
	ViewFailed  ViewState = "failed"
)

// Decision is the outcome of a confirm/cancel prompt.
type Decision int

const (
	DecisionCancelled Decision = iota
	DecisionConfirmed
)

// DecisionFromBool maps a yes/no answer to a Decision.
func DecisionFromBool(confirmed bool) Decision {
	if confirmed {
		return DecisionConfirmed
	}
	return DecisionCancelled
}

func (d Decision) String() string {
	if d == DecisionConfirmed {
		return "confirmed"
	}
	return "cancelled"
}

// NotificationLevel classifies a user-visible notification.
type NotificationLevel string

const (
	NotifySuccess NotificationLevel = "success"
	NotifyWarning NotificationLevel = "warning"
	NotifyError   NotificationLevel = "error"
)

// Notification is a user-visible message raised by a view operation.
type Notification struct {
	Level     NotificationLevel `json:"level"`
	Message   string            `json:"message"`
	Timestamp time.Time         `json:"timestamp"`
}

// ViewSnapshot is the read-only render state of one view.
type ViewSnapshot struct {
	ID            string         `json:"id"`
	State         ViewState      `json:"state"`
	Generation    uint64         `json:"generation"`
	PortfolioID   string         `json:"portfolio_id,omitempty"`
	Range         TimeRange      `json:"range"`
	ComparisonID  string         `json:"comparison_id,omitempty"`
	Portfolio     *Portfolio     `json:"portfolio,omitempty"`
	Chart         *ChartDataset  `json:"chart,omitempty"`
	Error         string         `json:"error,omitempty"`
	StalePrices   []string       `json:"stale_prices,omitempty"`
	Notifications []Notification `json:"notifications"`
}

// ViewEvent is broadcast via WebSocket when a view changes.
type ViewEvent struct {
	Type         string        `json:"type"` // "snapshot", "notification", "closed"
	ViewID       string        `json:"view_id"`
	Snapshot     *ViewSnapshot `json:"snapshot,omitempty"`
	Notification *Notification `json:"notification,omitempty"`
	Timestamp    time.Time     `json:"timestamp"`
}

const (
	ViewEventSnapshot     = "snapshot"
	ViewEventNotification = "notification"
	ViewEventClosed       = "closed"
)
