package snapshot

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/vistadeck/hostd/internal/displaybackend"
	"github.com/vistadeck/hostd/internal/logging"
)

var log = logging.L("snapshot")

// Ledger manages the three tiers on disk under a fixed directory, per
// spec.md §4.3 / §6.
type Ledger struct {
	dir               string
	preferGoldenFirst bool
}

// NewLedger builds a Ledger rooted at dir. The directory must already
// exist or be creatable by the caller; Ledger does not create it
// implicitly beyond what Save needs.
func NewLedger(dir string, preferGoldenFirst bool) *Ledger {
	return &Ledger{dir: dir, preferGoldenFirst: preferGoldenFirst}
}

func (l *Ledger) path(t Tier) string {
	return filepath.Join(l.dir, t.fileName())
}

// Save filters out devices in blacklist, then atomically writes the
// filtered snapshot to tier's file. If filtering empties the topology,
// Save fails and the tier file is left untouched.
func (l *Ledger) Save(t Tier, s displaybackend.Snapshot, blacklist map[displaybackend.DeviceID]bool) error {
	filtered := filterBlacklist(s, blacklist)
	if filtered.Topology.Empty() {
		return fmt.Errorf("snapshot: save to %s rejected, blacklist empties topology", t)
	}
	if err := filtered.Validate(); err != nil {
		return fmt.Errorf("snapshot: save to %s rejected, invalid snapshot: %w", t, err)
	}
	data, err := marshal(filtered)
	if err != nil {
		return fmt.Errorf("snapshot: marshal failed: %w", err)
	}
	if err := l.atomicWrite(l.path(t), data); err != nil {
		return err
	}
	log.Info("snapshot saved", logging.KeyTier, t.String())
	return nil
}

func filterBlacklist(s displaybackend.Snapshot, blacklist map[displaybackend.DeviceID]bool) displaybackend.Snapshot {
	clone := s.Clone()
	if len(blacklist) == 0 {
		return clone
	}
	var groups [][]displaybackend.DeviceID
	for _, g := range clone.Topology.Groups {
		var kept []displaybackend.DeviceID
		for _, id := range g {
			if !blacklist[id] {
				kept = append(kept, id)
			}
		}
		if len(kept) > 0 {
			groups = append(groups, kept)
		}
	}
	clone.Topology.Groups = groups
	keep := make(map[displaybackend.DeviceID]bool)
	for _, id := range clone.Topology.DeviceIDs() {
		keep[id] = true
	}
	for id := range clone.Modes {
		if !keep[id] {
			delete(clone.Modes, id)
		}
	}
	for id := range clone.HDRStates {
		if !keep[id] {
			delete(clone.HDRStates, id)
		}
	}
	if clone.PrimaryDevice != nil && !keep[*clone.PrimaryDevice] {
		clone.PrimaryDevice = nil
	}
	return clone
}

// Load reads tier's snapshot and returns it only if every device it
// references is present in available; otherwise returns ok=false with
// no error (a missing file or an unavailable device are both misses,
// not failures).
func (l *Ledger) Load(t Tier, available map[displaybackend.DeviceID]bool) (s displaybackend.Snapshot, ok bool, err error) {
	data, err := os.ReadFile(l.path(t))
	if err != nil {
		if os.IsNotExist(err) {
			return displaybackend.Snapshot{}, false, nil
		}
		return displaybackend.Snapshot{}, false, fmt.Errorf("snapshot: read %s failed: %w", t, err)
	}
	snap, err := unmarshal(data)
	if err != nil {
		log.Warn("snapshot load miss", logging.KeyTier, t.String(), logging.KeyError, err.Error())
		return displaybackend.Snapshot{}, false, nil
	}
	for _, id := range MissingDevices(snap, available) {
		_ = id
		return displaybackend.Snapshot{}, false, nil
	}
	return snap, true, nil
}

// Rotate copies Current's serialized bytes to Previous, preserving
// byte equality. If Current is absent, Rotate is a no-op success.
func (l *Ledger) Rotate() error {
	data, err := os.ReadFile(l.path(Current))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("snapshot: read current for rotate failed: %w", err)
	}
	if err := l.atomicWrite(l.path(Previous), data); err != nil {
		return err
	}
	log.Info("rotated current to previous")
	return nil
}

// RecoveryOrder returns the tiers Recovery should walk, in order.
func (l *Ledger) RecoveryOrder() []Tier {
	if l.preferGoldenFirst {
		return []Tier{Golden, Current, Previous}
	}
	return []Tier{Current, Previous, Golden}
}

// MissingDevices returns the device ids in s's topology absent from
// available.
func MissingDevices(s displaybackend.Snapshot, available map[displaybackend.DeviceID]bool) []displaybackend.DeviceID {
	var missing []displaybackend.DeviceID
	for _, id := range s.Topology.DeviceIDs() {
		if !available[id] {
			missing = append(missing, id)
		}
	}
	return missing
}

// atomicWrite serializes to a sibling .tmp file, fsyncs it, then
// renames it over target — the same rename-for-atomicity idiom the
// teacher uses when swapping in a freshly downloaded binary
// (internal/updater.replaceBinary), applied here on every write
// instead of only during an upgrade.
func (l *Ledger) atomicWrite(target string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o700); err != nil {
		return fmt.Errorf("snapshot: mkdir failed: %w", err)
	}
	tmp := target + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("snapshot: create temp file failed: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("snapshot: write temp file failed: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("snapshot: fsync temp file failed: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("snapshot: close temp file failed: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("snapshot: rename temp file failed: %w", err)
	}
	return nil
}

// Probe reports whether tier has a file on disk at all, without
// attempting to parse or availability-gate it.
func (l *Ledger) Probe(t Tier) bool {
	_, err := os.Stat(l.path(t))
	return err == nil
}
