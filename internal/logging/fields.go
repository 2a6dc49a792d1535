package logging

import "github.com/sirupsen/logrus"

// BaseFields tags a log line with the command action and config file.
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// DecisionFields mirrors the decision log entry for debug-level request logs.
func DecisionFields(d Decision) logrus.Fields {
	fields := logrus.Fields{
		"request_id":  d.RequestID,
		"host":        d.Host,
		"path":        d.Path,
		"action":      d.Action,
		"status_code": d.StatusCode,
		"duration_ms": d.DurationMS,
	}
	if d.Rule != "" {
		fields["rule"] = d.Rule
	}
	if d.Location != "" {
		fields["location"] = d.Location
	}
	if d.Error != "" {
		fields["error"] = d.Error
	}
	return fields
}
