package avdecc

import "github.com/sirupsen/logrus"

// toLogrusLevel maps the six-level notification taxonomy onto logrus's five
// levels; logrus has no NOTICE, so it is carried as an Info-level record
// tagged notice=true.
func toLogrusLevel(l LogLevel) logrus.Level {
	switch l {
	case LogError:
		return logrus.ErrorLevel
	case LogWarning:
		return logrus.WarnLevel
	case LogNotice, LogInfo:
		return logrus.InfoLevel
	case LogDebug:
		return logrus.DebugLevel
	default:
		return logrus.TraceLevel
	}
}

// logThrough writes a LogEvent to a logrus.Entry in addition to the
// bounded ring buffer / callback path, so an embedder who wires up
// logrus output formatting gets it for free.
func logThrough(entry *logrus.Entry, l LogLevel, msg string, fields logrus.Fields) {
	if entry == nil {
		return
	}
	e := entry
	if fields != nil {
		e = e.WithFields(fields)
	}
	if l == LogNotice {
		e = e.WithField("notice", true)
	}
	e.Log(toLogrusLevel(l), msg)
}
