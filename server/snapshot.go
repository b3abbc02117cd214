// Copyright 2026 The Parlor Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/pierrec/lz4/v4"
	"github.com/zeebo/blake3"

	"github.com/parlor-chat/parlor/lib/codec"
)

// snapshotName is the snapshot's filename inside the state directory.
const snapshotName = "state.snapshot"

// snapshotVersion guards the container layout. Bump on incompatible
// changes; load rejects versions it does not know.
const snapshotVersion = 1

// snapshotFile is the on-disk container: an lz4-compressed CBOR
// payload plus a BLAKE3 digest of the uncompressed bytes. The digest
// is checked on load, so a torn or bit-rotted snapshot fails loudly
// instead of resurrecting a corrupt room index.
type snapshotFile struct {
	Version  int    `cbor:"version"`
	Checksum []byte `cbor:"checksum"`
	Payload  []byte `cbor:"payload"`
}

// snapshotState is the persisted shape of serverState. Only durable
// facts are written: membership and held mail. Presence (online
// flags, the onlineRooms index) never survives a restart, so it is
// simply absent here. Slices are sorted so the deterministic encoder
// produces identical bytes for identical states.
type snapshotState struct {
	Clients []snapshotClient `cbor:"clients,omitempty"`
	Rooms   []snapshotRoom   `cbor:"rooms,omitempty"`
}

type snapshotClient struct {
	Address string             `cbor:"address"`
	Rooms   []string           `cbor:"rooms,omitempty"`
	Held    []codec.RawMessage `cbor:"held,omitempty"`
}

type snapshotRoom struct {
	Name    string   `cbor:"name"`
	Members []string `cbor:"members"`
}

func snapshotPath(stateDir string) string {
	return filepath.Join(stateDir, snapshotName)
}

// saveSnapshot persists state into stateDir, atomically (write to a
// temp file, then rename). An empty stateDir disables persistence.
func saveSnapshot(stateDir string, state *serverState) error {
	if stateDir == "" {
		return nil
	}
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return fmt.Errorf("creating state dir: %w", err)
	}

	plain, err := codec.Marshal(dumpState(state))
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}
	digest := blake3.Sum256(plain)

	var compressed bytes.Buffer
	writer := lz4.NewWriter(&compressed)
	if _, err := writer.Write(plain); err != nil {
		return fmt.Errorf("compressing state: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("compressing state: %w", err)
	}

	path := snapshotPath(stateDir)
	tmp := path + ".tmp"
	file, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	err = codec.NewEncoder(file).Encode(snapshotFile{
		Version:  snapshotVersion,
		Checksum: digest[:],
		Payload:  compressed.Bytes(),
	})
	if err != nil {
		file.Close()
		return fmt.Errorf("encoding snapshot container: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("publishing snapshot: %w", err)
	}
	return nil
}

// loadSnapshot restores state from stateDir. A missing file (or an
// empty stateDir) means a fresh empty state — never an error.
func loadSnapshot(stateDir string) (*serverState, error) {
	if stateDir == "" {
		return newServerState(), nil
	}
	raw, err := os.Open(snapshotPath(stateDir))
	if os.IsNotExist(err) {
		return newServerState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}
	defer raw.Close()

	var file snapshotFile
	if err := codec.NewDecoder(raw).Decode(&file); err != nil {
		return nil, fmt.Errorf("decoding snapshot container: %w", err)
	}
	if file.Version != snapshotVersion {
		return nil, fmt.Errorf("snapshot version %d not supported", file.Version)
	}

	plain, err := io.ReadAll(lz4.NewReader(bytes.NewReader(file.Payload)))
	if err != nil {
		return nil, fmt.Errorf("decompressing snapshot: %w", err)
	}
	digest := blake3.Sum256(plain)
	if !bytes.Equal(digest[:], file.Checksum) {
		return nil, fmt.Errorf("snapshot checksum mismatch")
	}

	var persisted snapshotState
	if err := codec.Unmarshal(plain, &persisted); err != nil {
		return nil, fmt.Errorf("decoding snapshot state: %w", err)
	}
	return restoreState(persisted), nil
}

// removeSnapshot discards the snapshot. Missing is fine.
func removeSnapshot(stateDir string) error {
	if stateDir == "" {
		return nil
	}
	err := os.Remove(snapshotPath(stateDir))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing snapshot: %w", err)
	}
	return nil
}

// dumpState flattens the live maps into the sorted persisted shape.
func dumpState(state *serverState) snapshotState {
	var out snapshotState

	for address, record := range state.clients {
		out.Clients = append(out.Clients, snapshotClient{
			Address: address,
			Rooms:   sortedKeys(record.rooms),
			Held:    record.held,
		})
	}
	sort.Slice(out.Clients, func(i, j int) bool {
		return out.Clients[i].Address < out.Clients[j].Address
	})

	for name, room := range state.allRooms {
		out.Rooms = append(out.Rooms, snapshotRoom{
			Name:    name,
			Members: sortedKeys(room.all),
		})
	}
	sort.Slice(out.Rooms, func(i, j int) bool {
		return out.Rooms[i].Name < out.Rooms[j].Name
	})

	return out
}

// restoreState rebuilds the live maps. Everyone starts offline and
// the onlineRooms index starts empty.
func restoreState(persisted snapshotState) *serverState {
	state := newServerState()

	for _, room := range persisted.Rooms {
		record := &roomRecord{
			name:   room.Name,
			all:    make(map[string]struct{}, len(room.Members)),
			online: make(map[string]struct{}),
		}
		for _, member := range room.Members {
			record.all[member] = struct{}{}
		}
		state.allRooms[room.Name] = record
	}

	for _, client := range persisted.Clients {
		record := &clientRecord{
			address: client.Address,
			rooms:   make(map[string]struct{}, len(client.Rooms)),
			held:    client.Held,
		}
		for _, name := range client.Rooms {
			record.rooms[name] = struct{}{}
		}
		state.clients[client.Address] = record
	}

	return state
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
