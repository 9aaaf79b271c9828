package avdecc

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// NotificationKind enumerates the AECP-side notification events delivered
// to the host.
type NotificationKind int

const (
	KindNoMatchFound NotificationKind = iota
	KindEndStationConnected
	KindEndStationDisconnected
	KindCommandTimeout
	KindResponseReceived
	KindEndStationReadCompleted
	KindUnsolicitedResponseReceived
)

func (k NotificationKind) String() string {
	switch k {
	case KindNoMatchFound:
		return "NO_MATCH_FOUND"
	case KindEndStationConnected:
		return "END_STATION_CONNECTED"
	case KindEndStationDisconnected:
		return "END_STATION_DISCONNECTED"
	case KindCommandTimeout:
		return "COMMAND_TIMEOUT"
	case KindResponseReceived:
		return "RESPONSE_RECEIVED"
	case KindEndStationReadCompleted:
		return "END_STATION_READ_COMPLETED"
	case KindUnsolicitedResponseReceived:
		return "UNSOLICITED_RESPONSE_RECEIVED"
	default:
		return "UNKNOWN"
	}
}

// Notification is the AECP-side event record. Handle carries the
// opaque handle supplied at the originating host call, or the
// NoNotification sentinel for unsolicited/background events.
type Notification struct {
	Kind            NotificationKind
	EntityID        EUI64
	CommandType     uint16
	DescriptorType  DescriptorType
	DescriptorIndex uint16
	Status          uint8
	Handle          NotificationHandle
}

// ACMPNotificationKind enumerates the ACMP-side notification events.
type ACMPNotificationKind int

const (
	ACMPResponseReceived ACMPNotificationKind = iota
	ACMPCommandTimeout
)

func (k ACMPNotificationKind) String() string {
	if k == ACMPCommandTimeout {
		return "ACMP_COMMAND_TIMEOUT"
	}
	return "ACMP_RESPONSE_RECEIVED"
}

// ACMPNotification is the ACMP-side event record.
type ACMPNotification struct {
	Kind             ACMPNotificationKind
	MessageType      uint8
	TalkerEntityID   EUI64
	TalkerUniqueID   uint16
	ListenerEntityID EUI64
	ListenerUniqueID uint16
	Status           uint8
	Handle           NotificationHandle
}

// LogLevel is the six-level severity taxonomy.
type LogLevel int

const (
	LogError LogLevel = iota
	LogWarning
	LogNotice
	LogInfo
	LogDebug
	LogVerbose
)

func (l LogLevel) String() string {
	switch l {
	case LogError:
		return "ERROR"
	case LogWarning:
		return "WARNING"
	case LogNotice:
		return "NOTICE"
	case LogInfo:
		return "INFO"
	case LogDebug:
		return "DEBUG"
	case LogVerbose:
		return "VERBOSE"
	default:
		return "UNKNOWN"
	}
}

// LogEvent is one emitted log record.
type LogEvent struct {
	Level       LogLevel
	Message     string
	TimestampMs int64
}

const ringCapacity = 256

// notifyRing is a fixed-capacity, non-blocking ring buffer: publish never
// blocks, and once it wraps the oldest unread entry is overwritten while
// Missed counts the loss.
type notifyRing[T any] struct {
	mu      sync.Mutex
	entries [ringCapacity]T
	next    uint64 // next index to write
	read    uint64 // next index to read
	missed  uint64
}

func (r *notifyRing[T]) publish(v T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.next-r.read >= ringCapacity {
		r.read++
		r.missed++
	}
	r.entries[r.next%ringCapacity] = v
	r.next++
}

// drain returns every entry published since the last drain, oldest first.
func (r *notifyRing[T]) drain() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := r.next - r.read
	out := make([]T, 0, n)
	for ; r.read < r.next; r.read++ {
		out = append(out, r.entries[r.read%ringCapacity])
	}
	return out
}

func (r *notifyRing[T]) missedCount() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.missed
}

// Sink is the bounded, asynchronous delivery point for notifications and
// log events (C9). The host is notified synchronously via the callbacks it
// registered at Controller creation; Sink also keeps a bounded ring so a
// host that only polls (rather than registering callbacks) can catch up,
// and so MissedEvents()/MissedLogs() are always answerable.
type Sink struct {
	notifCB     func(Notification)
	acmpNotifCB func(ACMPNotification)
	logCB       func(LogEvent)

	level  LogLevel
	logger *logrus.Entry

	notifications notifyRing[Notification]
	acmpEvents    notifyRing[ACMPNotification]
	logs          notifyRing[LogEvent]
}

// NewSink builds a Sink. Any callback may be nil; the ring buffers still
// capture events for polling consumers.
func NewSink(notifCB func(Notification), acmpCB func(ACMPNotification), logCB func(LogEvent), level LogLevel) *Sink {
	return &Sink{notifCB: notifCB, acmpNotifCB: acmpCB, logCB: logCB, level: level}
}

func (s *Sink) emit(n Notification) {
	s.notifications.publish(n)
	if s.notifCB != nil {
		s.notifCB(n)
	}
}

func (s *Sink) emitACMP(n ACMPNotification) {
	s.acmpEvents.publish(n)
	if s.acmpNotifCB != nil {
		s.acmpNotifCB(n)
	}
}

// SetLevel implements the host-exposed set_logging_level(level).
func (s *Sink) SetLevel(l LogLevel) { s.level = l }

// WithLogger attaches a logrus.Entry that every log() call is additionally
// written through. Optional.
func (s *Sink) WithLogger(entry *logrus.Entry) *Sink {
	s.logger = entry
	return s
}

func (s *Sink) log(l LogLevel, msg string, nowMs int64) {
	if l > s.level {
		return
	}
	ev := LogEvent{Level: l, Message: msg, TimestampMs: nowMs}
	s.logs.publish(ev)
	if s.logCB != nil {
		s.logCB(ev)
	}
	logThrough(s.logger, l, msg, nil)
}

func (s *Sink) logf(l LogLevel, nowMs int64, fields logrus.Fields, msg string) {
	if l > s.level {
		return
	}
	ev := LogEvent{Level: l, Message: msg, TimestampMs: nowMs}
	s.logs.publish(ev)
	if s.logCB != nil {
		s.logCB(ev)
	}
	logThrough(s.logger, l, msg, fields)
}

// DrainNotifications, DrainACMPNotifications and DrainLogs return and
// clear every buffered event since the last drain — a polling alternative
// to the registered callbacks.
func (s *Sink) DrainNotifications() []Notification { return s.notifications.drain() }
func (s *Sink) DrainACMPNotifications() []ACMPNotification { return s.acmpEvents.drain() }
func (s *Sink) DrainLogs() []LogEvent { return s.logs.drain() }

// MissedEvents and MissedLogs report the ring-buffer overflow counters.
func (s *Sink) MissedEvents() uint64 { return s.notifications.missedCount() + s.acmpEvents.missedCount() }
func (s *Sink) MissedLogs() uint64 { return s.logs.missedCount() }
