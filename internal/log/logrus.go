/*
Copyright The Helm Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package log

import "github.com/sirupsen/logrus"

// LogrusAdapter adapts a *logrus.Logger to the Logger interface so that
// call sites never depend on the concrete logging library.
type LogrusAdapter struct {
	entry *logrus.Entry
}

// NewLogrusAdapter creates a Logger that forwards to the given logrus.Logger.
func NewLogrusAdapter(logger *logrus.Logger) Logger {
	if logger == nil {
		return DefaultLogger
	}
	return LogrusAdapter{entry: logrus.NewEntry(logger)}
}

func fields(args []any) logrus.Fields {
	f := make(logrus.Fields, len(args)/2)
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			continue
		}
		f[key] = args[i+1]
	}
	return f
}

// Debug implements Logger.Debug.
func (a LogrusAdapter) Debug(msg string, args ...any) {
	a.entry.WithFields(fields(args)).Debug(msg)
}

// Warn implements Logger.Warn.
func (a LogrusAdapter) Warn(msg string, args ...any) {
	a.entry.WithFields(fields(args)).Warn(msg)
}

// Error implements Logger.Error.
func (a LogrusAdapter) Error(msg string, args ...any) {
	a.entry.WithFields(fields(args)).Error(msg)
}

// Info implements Logger.Info.
func (a LogrusAdapter) Info(msg string, args ...any) {
	a.entry.WithFields(fields(args)).Info(msg)
}

// NewTextLogger creates a Logger that writes structured logrus text output,
// the default for Sherpack's command-line surfaces.
func NewTextLogger(debug bool) Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if debug {
		l.SetLevel(logrus.DebugLevel)
	}
	return NewLogrusAdapter(l)
}
