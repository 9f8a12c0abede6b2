// Package modstate implements the Module State Manager (spec.md §4.4): it
// keeps module.prop's description line in sync with the current Mode, and
// mirrors DISABLE_FILE's existence into FREE_FILE's content, both through
// the same afero-backed IOServiceIface seam the rest of the daemon uses.
// Grounded on original_source/src/monitoring/module_manager.rs for the
// idempotence and line-rewrite semantics.
package modstate

import (
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/Seyud/FreePPS/config"
	"github.com/Seyud/FreePPS/domain"
	"github.com/Seyud/FreePPS/ferrors"
	"github.com/Seyud/FreePPS/sysfs"
)

const descriptionPrefix = "description="

// Manager owns module.prop rewriting and the Free/Disable file
// reconciliation, with a mutex-guarded idempotence cache so a burst of
// identical inotify events does the real work exactly once (spec.md §4.4
// invariant: "repeated notifications for the same content are a no-op").
type Manager struct {
	ios    domain.IOServiceIface
	paths  config.Paths
	writer *sysfs.Writer
	log    logrus.FieldLogger

	mu        sync.Mutex
	lastState string
}

// NewManager builds a Manager, fully wired and ready to use.
func NewManager(ios domain.IOServiceIface, paths config.Paths, writer *sysfs.Writer, log logrus.FieldLogger) *Manager {
	return &Manager{ios: ios, paths: paths, writer: writer, log: log}
}

// InitializeModule performs the daemon's startup reconciliation (spec.md
// §4.4 step 1): FREE_FILE is created with "1" if absent, a stale
// DISABLE_FILE is removed so the module starts enabled, module.prop's
// description is rewritten to match the resulting mode, and — when the
// module is enabled — both sysfs auth nodes are eagerly asserted to "1" so
// a reboot doesn't have to wait for the first uevent. Mirrors
// original_source/src/monitoring/module_manager.rs's initialize_module.
// Returns FREE_FILE's resulting content so callers can seed the shared
// free_enabled atomic before starting any watcher (spec.md §4.5 step a).
func (m *Manager) InitializeModule() (string, error) {
	freeNode := m.ios.NewIOnode(m.paths.FreeFile)
	if !freeNode.Exists() {
		if err := freeNode.WriteFile("1"); err != nil {
			return "", ferrors.NewFileOperationError("write", m.paths.FreeFile, err)
		}
	}

	disableNode := m.ios.NewIOnode(m.paths.DisableFile)
	if disableNode.Exists() {
		if err := disableNode.Remove(); err != nil {
			return "", ferrors.NewFileOperationError("remove", m.paths.DisableFile, err)
		}
	}

	content, err := freeNode.ReadFile()
	if err != nil {
		return "", ferrors.NewFileOperationError("read", m.paths.FreeFile, err)
	}

	autoExists := m.ios.NewIOnode(m.paths.AutoFile).Exists()
	mode := config.DeriveMode(content, autoExists)
	if err := m.UpdateDescription(mode); err != nil {
		return "", err
	}

	if mode != config.Suspended {
		if err := m.writer.Write(m.paths.PdVerifiedPath, "1"); err != nil {
			m.log.Warnf("modstate: failed to eagerly assert qualcomm node: %v", err)
		}
		if err := m.writer.Write(m.paths.PdAdapterVerifiedPath, "1"); err != nil {
			m.log.Warnf("modstate: failed to eagerly assert mediatek node: %v", err)
		}
	}

	return content, nil
}

// UpdateDescription rewrites module.prop's description= line to carry
// mode's status prefix ahead of whatever human-authored text followed the
// previous prefix, preserving every other line byte-for-byte (spec.md §4.4:
// "the rewrite touches exactly one line; everything else round-trips
// unchanged"). All three known prefixes are stripped first so re-running
// this after a mode flip never accumulates prefixes (spec.md §8 property
// "total prefix-stripping").
func (m *Manager) UpdateDescription(mode config.Mode) error {
	node := m.ios.NewIOnode(m.paths.ModuleProp)
	if !node.Exists() {
		m.log.Warnf("module.prop %s does not exist, skipping description update", m.paths.ModuleProp)
		return nil
	}

	content, err := node.ReadFile()
	if err != nil {
		return ferrors.NewFileOperationError("read", m.paths.ModuleProp, err)
	}

	lines := strings.Split(content, "\n")
	changed := false
	for i, line := range lines {
		if !strings.HasPrefix(line, descriptionPrefix) {
			continue
		}
		rest := strings.TrimPrefix(line, descriptionPrefix)
		rest = stripKnownPrefixes(rest)
		lines[i] = descriptionPrefix + mode.StatusPrefix() + rest
		changed = true
		break
	}

	if !changed {
		m.log.Warnf("module.prop %s has no description= line, skipping", m.paths.ModuleProp)
		return nil
	}

	if err := node.WriteFile(strings.Join(lines, "\n")); err != nil {
		return ferrors.NewFileOperationError("write", m.paths.ModuleProp, err)
	}
	return nil
}

func stripKnownPrefixes(s string) string {
	for _, prefix := range config.KnownStatusPrefixes() {
		if strings.HasPrefix(s, prefix) {
			return strings.TrimPrefix(s, prefix)
		}
	}
	return s
}

// HandleFreeChange is invoked by the free-file watcher whenever FREE_FILE's
// content (or AUTO_FILE's existence) might have changed. It recomputes the
// Mode, skips the rewrite if nothing changed since the last call (the
// idempotence cache), and otherwise rewrites module.prop.
func (m *Manager) HandleFreeChange(freeContent string, autoExists bool) error {
	state := freeContent + ":" + boolString(autoExists)

	m.mu.Lock()
	if state == m.lastState {
		m.mu.Unlock()
		return nil
	}
	m.lastState = state
	m.mu.Unlock()

	mode := config.DeriveMode(freeContent, autoExists)
	m.log.Infof("module mode changed to %s", mode)
	return m.UpdateDescription(mode)
}

// HandleDisableChange mirrors DISABLE_FILE's existence into FREE_FILE: a
// present DISABLE_FILE forces FREE_FILE to "0" (module forced off);
// otherwise FREE_FILE is restored to "1" (spec.md §4.6).
func (m *Manager) HandleDisableChange(disableExists bool) error {
	node := m.ios.NewIOnode(m.paths.FreeFile)
	value := "1"
	if disableExists {
		value = "0"
	}
	if err := node.WriteFile(value); err != nil {
		return ferrors.NewFileOperationError("write", m.paths.FreeFile, err)
	}
	return nil
}

func boolString(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
