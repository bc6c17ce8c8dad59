// Package snapshot implements the three-tier crash-safe snapshot
// ledger (C5): Current, Previous, and Golden display-state captures
// persisted as versioned JSON documents with atomic
// temp-file-then-fsync-then-rename writes, grounded on the teacher's
// binary-replacement pattern in internal/updater.replaceBinary
// (rename-over-target for atomicity) generalized here to apply on
// every save rather than only during an upgrade.
package snapshot

import (
	"encoding/json"
	"fmt"

	"github.com/vistadeck/hostd/internal/displaybackend"
)

// Tier names one of the three ledger slots.
type Tier int

const (
	Current Tier = iota
	Previous
	Golden
)

func (t Tier) String() string {
	switch t {
	case Current:
		return "current"
	case Previous:
		return "previous"
	case Golden:
		return "golden"
	default:
		return "unknown"
	}
}

func (t Tier) fileName() string {
	return t.String() + ".json"
}

// documentVersion is the current on-disk schema version. A file whose
// "version" field doesn't match this is a load miss, not an error —
// callers get the same behavior as a missing file.
const documentVersion = 1

// document is the exact wire shape described in spec.md §6.
type document struct {
	Version       int                                  `json:"version"`
	Topology      [][]string                            `json:"topology"`
	Modes         map[string]modeDoc                    `json:"modes"`
	HDRStates     map[string]*string                    `json:"hdr_states"`
	PrimaryDevice *string                                `json:"primary_device,omitempty"`
}

type modeDoc struct {
	Width      int `json:"width"`
	Height     int `json:"height"`
	RefreshNum int `json:"refresh_num"`
	RefreshDen int `json:"refresh_den"`
}

func toDocument(s displaybackend.Snapshot) document {
	doc := document{
		Version:   documentVersion,
		Modes:     make(map[string]modeDoc, len(s.Modes)),
		HDRStates: make(map[string]*string, len(s.HDRStates)),
	}
	for _, g := range s.Topology.Groups {
		row := make([]string, len(g))
		for i, id := range g {
			row[i] = string(id)
		}
		doc.Topology = append(doc.Topology, row)
	}
	for id, m := range s.Modes {
		doc.Modes[string(id)] = modeDoc{
			Width: m.Width, Height: m.Height,
			RefreshNum: m.RefreshNum, RefreshDen: m.RefreshDen,
		}
	}
	for id, h := range s.HDRStates {
		if h == displaybackend.HDRUnknown {
			doc.HDRStates[string(id)] = nil
			continue
		}
		v := h.String()
		doc.HDRStates[string(id)] = &v
	}
	if s.PrimaryDevice != nil {
		v := string(*s.PrimaryDevice)
		doc.PrimaryDevice = &v
	}
	return doc
}

func fromDocument(doc document) (displaybackend.Snapshot, error) {
	if doc.Version != documentVersion {
		return displaybackend.Snapshot{}, fmt.Errorf("snapshot: unsupported document version %d", doc.Version)
	}
	s := displaybackend.Snapshot{
		Modes:     make(map[displaybackend.DeviceID]displaybackend.Mode, len(doc.Modes)),
		HDRStates: make(map[displaybackend.DeviceID]displaybackend.HDRState, len(doc.HDRStates)),
	}
	for _, row := range doc.Topology {
		group := make([]displaybackend.DeviceID, len(row))
		for i, id := range row {
			group[i] = displaybackend.DeviceID(id)
		}
		s.Topology.Groups = append(s.Topology.Groups, group)
	}
	for id, m := range doc.Modes {
		s.Modes[displaybackend.DeviceID(id)] = displaybackend.Mode{
			Width: m.Width, Height: m.Height,
			RefreshNum: m.RefreshNum, RefreshDen: m.RefreshDen,
		}
	}
	for id, h := range doc.HDRStates {
		if h == nil {
			s.HDRStates[displaybackend.DeviceID(id)] = displaybackend.HDRUnknown
			continue
		}
		s.HDRStates[displaybackend.DeviceID(id)] = displaybackend.ParseHDRState(*h)
	}
	if doc.PrimaryDevice != nil {
		id := displaybackend.DeviceID(*doc.PrimaryDevice)
		s.PrimaryDevice = &id
	}
	if err := s.Validate(); err != nil {
		return displaybackend.Snapshot{}, err
	}
	return s, nil
}

func marshal(s displaybackend.Snapshot) ([]byte, error) {
	return json.MarshalIndent(toDocument(s), "", "  ")
}

func unmarshal(data []byte) (displaybackend.Snapshot, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return displaybackend.Snapshot{}, err
	}
	return fromDocument(doc)
}
