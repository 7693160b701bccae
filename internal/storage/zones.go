package storage

import (
	"path"
	"strings"
	"time"
)

// Zone prefixes for the three-zone bucket convention. New files arrive in
// the landing zone, invalid files are moved to quarantine, and converted
// data is written to the archive zone under a timestamped folder.
const (
	LandingPrefix    = "landing/"
	QuarantinePrefix = "quarantine/"
	ArchivePrefix    = "processed/"
	StatePrefix      = "state/"
)

// timestampLayout matches the folder naming used by the archival and
// quarantine zones, e.g. 20260831_142501.
const timestampLayout = "20060102_150405"

// TimestampFolder renders t as an archive/quarantine folder component.
func TimestampFolder(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// QuarantinePath returns the quarantine destination for a landed object,
// keeping its base name under a timestamped sub-folder.
func QuarantinePath(t time.Time, objectPath string) string {
	return QuarantinePrefix + TimestampFolder(t) + "/" + path.Base(objectPath)
}

// ArchivePath returns the archive destination for the columnar conversion
// of a landed object. The original extension is replaced with .parquet and
// the path includes a timestamp component to avoid overwrite collisions.
func ArchivePath(t time.Time, objectPath string) string {
	base := path.Base(objectPath)
	base = strings.TrimSuffix(base, path.Ext(base))
	return ArchivePrefix + TimestampFolder(t) + "/" + base + ".parquet"
}

// BloomSnapshotPath is where the clean-table identifier bloom filter
// snapshot lives between invocations.
const BloomSnapshotPath = StatePrefix + "clean_ids.bloom"
