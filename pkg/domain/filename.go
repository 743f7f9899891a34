package domain

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"time"
)

const ArchiveTimestampLayout = "20060102T150405Z"

var (
	targetTagRegex       = regexp.MustCompile(`[^A-Za-z0-9.\-]`)
	archiveFilenameRegex = regexp.MustCompile(`^([A-Za-z0-9.\-]+)_(.+)_(\d{8}T\d{6}Z)(?:\.(\d+))?(?:\.jfr)?$`)
)

// ArchiveFilename is the parsed form of
// <targetTag>_<recordingName>_<timestamp>[.<seq>][.jfr].
type ArchiveFilename struct {
	TargetTag     string
	RecordingName string
	Timestamp     time.Time
	Seq           int
}

func (f ArchiveFilename) String() string {
	name := fmt.Sprintf("%s_%s_%s", f.TargetTag, f.RecordingName, f.Timestamp.UTC().Format(ArchiveTimestampLayout))
	if f.Seq > 0 {
		name += "." + strconv.Itoa(f.Seq)
	}
	return name + ".jfr"
}

func ParseArchiveFilename(name string) (ArchiveFilename, bool) {
	m := archiveFilenameRegex.FindStringSubmatch(name)
	if m == nil {
		return ArchiveFilename{}, false
	}

	ts, err := time.Parse(ArchiveTimestampLayout, m[3])
	if err != nil {
		return ArchiveFilename{}, false
	}

	var seq int
	if m[4] != "" {
		seq, _ = strconv.Atoi(m[4])
	}

	return ArchiveFilename{
		TargetTag:     m[1],
		RecordingName: m[2],
		Timestamp:     ts,
		Seq:           seq,
	}, true
}

// TargetTag is the filename-safe short name of a target.
func TargetTag(target Target) string {
	tag := target.Alias

	if tag == "" {
		if u, err := url.Parse(target.ConnectUrl); err == nil && u.Hostname() != "" {
			tag = u.Hostname()
		}
	}
	if tag == "" {
		tag = target.JvmId
	}
	if tag == "" {
		tag = "unknown"
	}

	return targetTagRegex.ReplaceAllString(tag, "-")
}
