package config

import "slices"

// ConfigDiff describes what changed between two configs.
// Only the first group of fields can be applied without a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	ThresholdChanged bool
	NewThreshold     int

	TaxonomyChanged bool
	NewTaxonomyFile string

	WorkersChanged bool
	NewWorkers     int

	// RestartRequired lists changed settings that only take effect after a
	// restart (listen address, TLS, transcription backends).
	RestartRequired []string
}

// Changed reports whether anything differs between the two configs.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.ThresholdChanged || d.TaxonomyChanged ||
		d.WorkersChanged || len(d.RestartRequired) > 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Highlight.DefaultThreshold != new.Highlight.DefaultThreshold {
		d.ThresholdChanged = true
		d.NewThreshold = new.Highlight.DefaultThreshold
	}
	if old.Highlight.TaxonomyFile != new.Highlight.TaxonomyFile {
		d.TaxonomyChanged = true
		d.NewTaxonomyFile = new.Highlight.TaxonomyFile
	}
	if old.Highlight.Workers != new.Highlight.Workers {
		d.WorkersChanged = true
		d.NewWorkers = new.Highlight.Workers
	}

	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}
	if !tlsEqual(old.Server.TLS, new.Server.TLS) {
		d.RestartRequired = append(d.RestartRequired, "server.tls")
	}
	if old.Server.LogFile != new.Server.LogFile {
		d.RestartRequired = append(d.RestartRequired, "server.log_file")
	}
	if !providersEqual(old.Transcription.Providers, new.Transcription.Providers) {
		d.RestartRequired = append(d.RestartRequired, "transcription.providers")
	}
	if old.Transcription.CacheSize != new.Transcription.CacheSize ||
		old.Transcription.CacheTTL != new.Transcription.CacheTTL {
		d.RestartRequired = append(d.RestartRequired, "transcription.cache")
	}

	return d
}

func tlsEqual(a, b *TLSConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// providersEqual compares provider entries field by field. Non-string option
// values are compared by key only.
func providersEqual(a, b []ProviderEntry) bool {
	return slices.EqualFunc(a, b, func(x, y ProviderEntry) bool {
		if x.Name != y.Name || x.APIKey != y.APIKey || x.BaseURL != y.BaseURL ||
			x.Model != y.Model || x.Language != y.Language || x.Timeout != y.Timeout {
			return false
		}
		if len(x.Options) != len(y.Options) {
			return false
		}
		for k, xv := range x.Options {
			yv, ok := y.Options[k]
			if !ok {
				return false
			}
			xs, xok := xv.(string)
			ys, yok := yv.(string)
			if xok && yok && xs != ys {
				return false
			}
		}
		return true
	})
}
