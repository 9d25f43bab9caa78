package logging

import (
	"fmt"
	"regexp"
	"sync"
)

var globalLoggerRegistry = newRegistry()

// Registry tracks named loggers so level patterns can be applied to them after creation.
type Registry struct {
	mu        sync.RWMutex
	loggers   map[string]Logger
	logConfig []LoggerPatternConfig
}

func newRegistry() *Registry {
	return &Registry{
		loggers: make(map[string]Logger),
	}
}

func (lr *Registry) registerLogger(name string, logger Logger) {
	lr.mu.Lock()
	defer lr.mu.Unlock()
	lr.loggers[name] = logger
}

func (lr *Registry) loggerNamed(name string) (logger Logger, ok bool) {
	lr.mu.RLock()
	defer lr.mu.RUnlock()
	logger, ok = lr.loggers[name]
	return
}

// Assumes at least a read lock is held.
func (lr *Registry) updateLoggerLevelWithCfg(name string) {
	for _, lpc := range lr.logConfig {
		r, err := regexp.Compile(buildRegexFromPattern(lpc.Pattern))
		if err != nil {
			continue
		}
		if !r.MatchString(name) {
			continue
		}
		level, err := LevelFromString(lpc.Level)
		if err != nil {
			continue
		}
		if logger, ok := lr.loggers[name]; ok {
			logger.SetLevel(level)
		}
	}
}

func (lr *Registry) updateLoggerLevel(name string, level Level) error {
	lr.mu.RLock()
	defer lr.mu.RUnlock()
	logger, ok := lr.loggers[name]
	if !ok {
		return fmt.Errorf("logger named %s not recognized", name)
	}
	logger.SetLevel(level)
	return nil
}

// UpdateConfig stores the pattern config and re-levels every registered logger. Loggers that no
// pattern matches are set to `defaultLevel`. Later patterns win over earlier ones.
func (lr *Registry) UpdateConfig(logConfig []LoggerPatternConfig, defaultLevel Level, errorLogger Logger) error {
	lr.mu.Lock()
	lr.logConfig = logConfig
	lr.mu.Unlock()

	appliedConfigs := make(map[string]Level)
	for _, lpc := range logConfig {
		if !validatePattern(lpc.Pattern) {
			errorLogger.Warnw("failed to validate a pattern", "pattern", lpc.Pattern)
			continue
		}

		r, err := regexp.Compile(buildRegexFromPattern(lpc.Pattern))
		if err != nil {
			return err
		}

		for _, name := range lr.getRegisteredLoggerNames() {
			if r.MatchString(name) {
				level, err := LevelFromString(lpc.Level)
				if err != nil {
					return err
				}
				appliedConfigs[name] = level
			}
		}
	}

	for _, name := range lr.getRegisteredLoggerNames() {
		level, ok := appliedConfigs[name]
		if !ok {
			level = defaultLevel
		}
		if err := lr.updateLoggerLevel(name, level); err != nil {
			return err
		}
	}

	return nil
}

func (lr *Registry) getRegisteredLoggerNames() []string {
	lr.mu.RLock()
	defer lr.mu.RUnlock()
	registeredNames := make([]string, 0, len(lr.loggers))
	for name := range lr.loggers {
		registeredNames = append(registeredNames, name)
	}
	return registeredNames
}

// registerAndConfigure registers `logger` under `name`, replacing any previous logger with the
// same name, and applies the existing patterns to it.
func (lr *Registry) registerAndConfigure(name string, logger Logger) Logger {
	lr.mu.Lock()
	defer lr.mu.Unlock()
	lr.loggers[name] = logger
	lr.updateLoggerLevelWithCfg(name)
	return logger
}
