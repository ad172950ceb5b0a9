package logging

import (
	"errors"
	"strings"

	"github.com/sirupsen/logrus"
)

const (
	redactedValue = "[REDACTED]"

	// Shorter values collide with ordinary words in log text.
	minSecretLength = 6
)

// redactHook masks configured secrets in the message and string or error
// fields of every entry. Bot API transport errors embed the request URL,
// which carries the bot token.
type redactHook struct {
	replacer *strings.Replacer
}

func newRedactHook(secrets ...string) *redactHook {
	var pairs []string
	for _, secret := range secrets {
		secret = strings.TrimSpace(secret)
		if len(secret) < minSecretLength {
			continue
		}
		pairs = append(pairs, secret, redactedValue)
	}
	if len(pairs) == 0 {
		return nil
	}
	return &redactHook{replacer: strings.NewReplacer(pairs...)}
}

func (h *redactHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

// Fire runs on the entry copy logrus builds for each write, so rewriting
// Data does not leak into the parent entry.
func (h *redactHook) Fire(entry *logrus.Entry) error {
	entry.Message = h.replacer.Replace(entry.Message)

	for key, value := range entry.Data {
		switch v := value.(type) {
		case string:
			entry.Data[key] = h.replacer.Replace(v)
		case error:
			if msg := v.Error(); h.replacer.Replace(msg) != msg {
				entry.Data[key] = errors.New(h.replacer.Replace(msg))
			}
		}
	}
	return nil
}
