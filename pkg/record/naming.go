package record

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// TimeLayout formats the capture time inside file names. It contains no
// underscores so names split cleanly.
const TimeLayout = "20060102-150405"

// FileName returns {type}_{tag}_{time}_{object}.json.
func FileName(objectType, actionTag string, t time.Time, object string) string {
	return fmt.Sprintf("%s_%s_%s_%s.json", objectType, actionTag, t.Format(TimeLayout), object)
}

// ParseFileName splits a name produced by FileName. Object names may
// contain underscores.
func ParseFileName(objectType, actionTag, name string) (t time.Time, object string, ok bool) {
	prefix := objectType + "_" + actionTag + "_"
	if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".json") {
		return time.Time{}, "", false
	}
	rest := strings.TrimSuffix(strings.TrimPrefix(name, prefix), ".json")
	stamp, object, found := strings.Cut(rest, "_")
	if !found || object == "" {
		return time.Time{}, "", false
	}
	t, err := time.ParseInLocation(TimeLayout, stamp, time.Local)
	if err != nil {
		return time.Time{}, "", false
	}
	return t, object, true
}

// LastObject returns the greatest object name captured in dir for the given
// type and tag. Object lists are ordered, so capture resumes after it.
// ok is false when dir holds no matching episodes.
func LastObject(dir, objectType, actionTag string) (object string, ok bool, err error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("scan save dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		_, obj, match := ParseFileName(objectType, actionTag, e.Name())
		if !match {
			continue
		}
		if !ok || obj > object {
			object, ok = obj, true
		}
	}
	return object, ok, nil
}

// Path joins dir and the episode's file name.
func Path(dir string, ep *Episode, t time.Time) string {
	return filepath.Join(dir, FileName(ep.ObjectType, ep.ActionTag, t, ep.Object))
}
