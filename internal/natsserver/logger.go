package natsserver

import "github.com/rs/zerolog"

// logAdapter routes nats-server logging into zerolog. Server notices are
// demoted to debug; a reminder daemon does not need the startup banner.
type logAdapter struct {
	log zerolog.Logger
}

func newLogAdapter(l zerolog.Logger) *logAdapter {
	return &logAdapter{log: l.With().Str("component", "nats").Logger()}
}

func (a *logAdapter) Noticef(format string, v ...any) { a.log.Debug().Msgf(format, v...) }
func (a *logAdapter) Warnf(format string, v ...any)   { a.log.Warn().Msgf(format, v...) }
func (a *logAdapter) Errorf(format string, v ...any)  { a.log.Error().Msgf(format, v...) }
func (a *logAdapter) Debugf(format string, v ...any)  { a.log.Debug().Msgf(format, v...) }
func (a *logAdapter) Tracef(format string, v ...any)  { a.log.Trace().Msgf(format, v...) }

// Fatalf is logged, not exited on; the daemon decides how to shut down.
func (a *logAdapter) Fatalf(format string, v ...any) {
	a.log.Error().Bool("fatal", true).Msgf(format, v...)
}
