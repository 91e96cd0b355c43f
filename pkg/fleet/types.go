package fleet

import (
	"github.com/eshaffer321/fleetclient-go/internal/activity"
	"github.com/eshaffer321/fleetclient-go/internal/token"
	internalTypes "github.com/eshaffer321/fleetclient-go/internal/types"
)

type (
	// Request describes one logical call to the API
	Request = internalTypes.Request

	// Response is a successful response with its body read
	Response = internalTypes.Response

	// RequestContext is the per-attempt descriptor passed to OnRetry
	RequestContext = internalTypes.RequestContext

	// Session is returned by the login and refresh endpoints
	Session = internalTypes.Session

	// Claims are the decoded token claims
	Claims = internalTypes.Claims

	// Hooks provides lifecycle hooks for requests
	Hooks = internalTypes.Hooks

	// RetryConfig configures retry behavior
	RetryConfig = internalTypes.RetryConfig

	// Event is a token lifecycle event
	Event        = token.Event
	EventType    = token.EventType
	LogoutReason = token.LogoutReason
	State        = token.State

	// Signal is a kind of user activity
	Signal = activity.Signal

	// ActivityFeed is an ActivitySource the host emits signals into
	ActivityFeed = activity.Feed
)

// Lifecycle events
const (
	EventTokenRefreshed = token.EventTokenRefreshed
	EventTokenWarning   = token.EventTokenWarning
	EventLogout         = token.EventLogout
)

// Logout reasons
const (
	ReasonAutoLogout     = token.ReasonAutoLogout
	ReasonManual         = token.ReasonManual
	ReasonSessionExpired = token.ReasonSessionExpired
)

// Token states
const (
	StateLoggedOut  = token.StateLoggedOut
	StateValid      = token.StateValid
	StateNearExpiry = token.StateNearExpiry
	StateRefreshing = token.StateRefreshing
	StateExpired    = token.StateExpired
)

// Activity signals
const (
	SignalPointerMove = activity.PointerMove
	SignalKeyPress    = activity.KeyPress
	SignalScroll      = activity.Scroll
	SignalTouch       = activity.Touch
	SignalClick       = activity.Click
)

// NewActivityFeed creates an in-process activity source
func NewActivityFeed() *ActivityFeed {
	return activity.NewFeed()
}
