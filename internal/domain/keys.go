package domain

import (
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"
)

const runTimeLayout = "20060102-150405"

// Object names under a run
const (
	ManifestObject      = "manifest.json"
	RunDescriptorObject = "run.json"
	OffsetMappingObject = "offset-mapping.json"
	SnapshotsPrefix     = "snapshots"
	RestoresPrefix      = "restores"
)

// NewRunID derives a run id from the resource name and the start time.
func NewRunID(name string, now time.Time) string {
	return name + "-" + now.UTC().Format(runTimeLayout)
}

// ParseRunID reports the start time encoded in runID if it belongs to the
// backup called name. Names sharing a prefix (orders, orders-eu) do not match
// each other's runs.
func ParseRunID(name, runID string) (time.Time, bool) {
	suffix, ok := strings.CutPrefix(runID, name+"-")
	if !ok || len(suffix) != len(runTimeLayout) {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(runTimeLayout, suffix, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// SegmentKey is {run}/topics/{topic}/partition={n}/segment-{seq}{ext}
func SegmentKey(runID, topic string, partition int32, seq int, ext string) string {
	return path.Join(runID, "topics", topic, fmt.Sprintf("partition=%d", partition), fmt.Sprintf("segment-%06d%s", seq, ext))
}

// CheckpointPrefix is the listing prefix for every checkpoint of a run.
func CheckpointPrefix(runID string) string {
	return path.Join(runID, "checkpoints") + "/"
}

// CheckpointKey is {run}/checkpoints/{topic}/partition={n}/checkpoint-{segment}.json
func CheckpointKey(runID, topic string, partition int32, segmentID int) string {
	return path.Join(CheckpointPrefix(runID), topic, fmt.Sprintf("partition=%d", partition), fmt.Sprintf("checkpoint-%06d.json", segmentID))
}

// ParseCheckpointKey extracts topic, partition and segment from a key built
// by CheckpointKey.
func ParseCheckpointKey(runID, key string) (topic string, partition int32, segmentID int, ok bool) {
	rest, found := strings.CutPrefix(key, CheckpointPrefix(runID))
	if !found {
		return "", 0, 0, false
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 3 {
		return "", 0, 0, false
	}
	p, err := strconv.ParseInt(strings.TrimPrefix(parts[1], "partition="), 10, 32)
	if err != nil {
		return "", 0, 0, false
	}
	seq := strings.TrimSuffix(strings.TrimPrefix(parts[2], "checkpoint-"), ".json")
	s, err := strconv.Atoi(seq)
	if err != nil {
		return "", 0, 0, false
	}
	return parts[0], int32(p), s, true
}

// ManifestKey is {run}/manifest.json
func ManifestKey(runID string) string {
	return path.Join(runID, ManifestObject)
}

// RunDescriptorKey is {run}/run.json
func RunDescriptorKey(runID string) string {
	return path.Join(runID, RunDescriptorObject)
}

// SnapshotKey is snapshots/{id}.json
func SnapshotKey(id string) string {
	return path.Join(SnapshotsPrefix, id+".json")
}

// RestoreRunID scopes per-restore checkpoints and the offset mapping.
func RestoreRunID(restoreID string) string {
	return path.Join(RestoresPrefix, restoreID)
}

// OffsetMappingKey is restores/{id}/offset-mapping.json
func OffsetMappingKey(restoreID string) string {
	return path.Join(RestoreRunID(restoreID), OffsetMappingObject)
}

// RunIDFromKey returns the first path element of key.
func RunIDFromKey(key string) string {
	key = strings.TrimPrefix(key, "/")
	if i := strings.IndexByte(key, '/'); i >= 0 {
		return key[:i]
	}
	return key
}
